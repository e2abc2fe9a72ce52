// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package runtimeconfig holds the handful of process-level knobs the
// external CLI collaborator (cmd/netcontrold) sets: the policy file path,
// the nftables table name, and logging verbosity. Unlike the policy file's
// own two-token grammar, these never need a file format of their own.
package runtimeconfig

import "github.com/matislovas/netcontrol-go/internal/logging"

// DefaultTableName is the nftables table the Classifier Programmer creates
// when no override is given.
const DefaultTableName = "netcontrol"

// Config holds the knobs cmd/netcontrold's flag parsing produces.
type Config struct {
	// PolicyPath is the path to the policy file (required).
	PolicyPath string

	// LogPath is an optional log file; when set, log output goes there
	// instead of stderr.
	LogPath string

	// TableName overrides the nftables table name the Programmer installs.
	TableName string

	// LogLevel is the logging verbosity, set by -v/-vv/-vvv.
	LogLevel logging.Level

	// Silent discards all log output regardless of LogLevel.
	Silent bool
}

// DefaultConfig returns the baseline runtime configuration: warn-level
// logging to stderr only, the default table name, no policy path set.
func DefaultConfig() Config {
	return Config{
		TableName: DefaultTableName,
		LogLevel:  logging.LevelWarn,
	}
}
