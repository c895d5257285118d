package corpus

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmpty is returned when a source yields no chunks
var ErrEmpty = errors.New("corpus is empty")

// LoadError is returned when a corpus source is missing or malformed.
// It is fatal at startup.
type LoadError struct {
	Path  string // file the error came from, if known
	Index int    // record index within the file, -1 when not record-specific
	Err   error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString("corpus load failed")
	if e.Path != "" {
		fmt.Fprintf(&b, ": %s", e.Path)
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, ": record %d", e.Index)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError checks if err is (or wraps) a *LoadError
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// MissingFieldError reports required chunk fields that are absent or blank
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field(s): %s", strings.Join(e.Fields, ", "))
}

// DuplicateIDError reports a chunk id that appears more than once
type DuplicateIDError struct {
	ID    string
	First int
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate chunk_id %q (first seen at record %d)", e.ID, e.First)
}
