// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	"fmt"

	"github.com/matislovas/netcontrol-go/internal/errors"
)

// EntryErrorCode enumerates the ways a single policy line can fail to parse.
type EntryErrorCode int

const (
	ErrEmpty EntryErrorCode = iota
	ErrBadLen
	ErrInvalidHostFormat
	ErrInvalidQuotaFormat
	ErrDNSFailed
	ErrBadCIDR
	ErrBadDataQuota
	ErrBadTimeQuota
)

func (c EntryErrorCode) String() string {
	switch c {
	case ErrEmpty:
		return "Empty"
	case ErrBadLen:
		return "BadLen"
	case ErrInvalidHostFormat:
		return "InvalidHostFormat"
	case ErrInvalidQuotaFormat:
		return "InvalidQuotaFormat"
	case ErrDNSFailed:
		return "DnsFailed"
	case ErrBadCIDR:
		return "BadCidr"
	case ErrBadDataQuota:
		return "BadDataQuota"
	case ErrBadTimeQuota:
		return "BadTimeQuota"
	default:
		return "Unknown"
	}
}

// EntryError is the error produced while parsing a single non-comment,
// non-blank line of the policy file.
type EntryError struct {
	Code       EntryErrorCode
	Underlying error
}

func (e *EntryError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Underlying)
	}
	return e.Code.String()
}

func (e *EntryError) Unwrap() error { return e.Underlying }

func newEntryError(code EntryErrorCode) error {
	return errors.Wrap(&EntryError{Code: code}, errors.KindConfiguration, "invalid policy entry")
}

func wrapEntryError(code EntryErrorCode, underlying error) error {
	return errors.Wrap(&EntryError{Code: code, Underlying: underlying}, errors.KindConfiguration, "invalid policy entry")
}

// FileError wraps an EntryError with the 1-based line number it occurred on.
// Comment lines do not contribute to the line count used elsewhere in the
// file, but the number recorded here is always the physical line number.
type FileError struct {
	Line int
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("error parsing line %d: %v", e.Line, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
