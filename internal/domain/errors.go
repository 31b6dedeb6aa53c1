package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRow matches any MalformedRowError via errors.Is.
	ErrMalformedRow = errors.New("malformed source row")

	// ErrUnknownCategory is returned for a case_type outside the known set.
	ErrUnknownCategory = errors.New("unknown case type")
)

// MalformedRowError describes a source row that cannot be ingested. Line is
// the 1-based line number in the source, where known.
type MalformedRowError struct {
	Line   int
	Field  string
	Reason string
	Err    error
}

func (e *MalformedRowError) Error() string {
	msg := fmt.Sprintf("malformed source row at line %d: %s: %s", e.Line, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRowError) Unwrap() error { return e.Err }

// Is reports ErrMalformedRow as a match.
func (e *MalformedRowError) Is(target error) bool { return target == ErrMalformedRow }
