package index

import (
	"fmt"

	"github.com/serpent-os/pisi/pkg/errors"
)

var (
	// ErrUnreadable is returned when the index document cannot be read at all
	ErrUnreadable = errors.New("unreadable index")

	// ErrInvalidRecord is the cause of a skipped record
	ErrInvalidRecord = errors.New("invalid package record")
)

// ParseError reports a record skipped while loading the index.
type ParseError struct {
	// Position of the record in the document, starting at 1
	Position int
	Name     string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("package #%d: %v", e.Position, e.Err)
	}
	return fmt.Sprintf("package #%d (%s): %v", e.Position, e.Name, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
