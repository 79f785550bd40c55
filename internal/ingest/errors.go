package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// UnrecognizedFormatError is returned when a file matches no known vendor
// export signature. Fatal to parsing: no data is extracted.
type UnrecognizedFormatError struct {
	Known []string
}

func (e *UnrecognizedFormatError) Error() string {
	return fmt.Sprintf("unrecognized export format: expected one of %s", strings.Join(e.Known, ", "))
}

// RowError describes a single data row that could not be normalized.
// The row is skipped and counted; parsing continues.
type RowError struct {
	Line  int
	Field Field
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: bad %s: %v", e.Line, e.Field, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

var (
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrUnknownDirection = errors.New("unknown call direction")
)
