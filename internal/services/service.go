// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package services defines the lifecycle contract for the agent's
// long-running components; internal/controller's Controller implements it.
// Policy entries are immutable after parsing (see internal/policy), so
// unlike the teacher's hot-reloadable services this contract carries no
// Reload method.
package services

import "context"

// Status represents the current state of a service.
type Status struct {
	Name    string
	Running bool
	Error   string
}

// Service defines the standard lifecycle methods for a long-running worker.
type Service interface {
	// Name returns the unique name of the service.
	Name() string

	// Start starts the service. It must not block past the point where the
	// service's internal goroutine has been launched.
	Start(ctx context.Context) error

	// Stop stops the service and waits for its goroutine to exit.
	Stop(ctx context.Context) error

	// Status returns the current status of the service.
	Status() Status
}
