// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classifier

import (
	"fmt"

	"github.com/matislovas/netcontrol-go/internal/errors"
)

// ProgrammerErrorCode enumerates the ways the Classifier Programmer can fail
// to talk to the kernel.
type ProgrammerErrorCode int

const (
	ErrChannelRefused ProgrammerErrorCode = iota
	ErrBatchRejected
)

func (c ProgrammerErrorCode) String() string {
	switch c {
	case ErrChannelRefused:
		return "ChannelRefused"
	case ErrBatchRejected:
		return "BatchRejected"
	default:
		return "Unknown"
	}
}

// ProgrammerError is returned by Programmer operations that fail against
// the classifier control channel.
type ProgrammerError struct {
	Code       ProgrammerErrorCode
	Underlying error
}

func (e *ProgrammerError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Underlying)
	}
	return e.Code.String()
}

func (e *ProgrammerError) Unwrap() error { return e.Underlying }

func newProgrammerError(code ProgrammerErrorCode, underlying error) error {
	return errors.Wrap(&ProgrammerError{Code: code, Underlying: underlying}, errors.KindClassifier, "classifier programmer failure")
}
