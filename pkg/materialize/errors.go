package materialize

import (
	"fmt"

	"github.com/serpent-os/pisi/pkg/materialize/status"
)

// ConflictError is a path claimed with different content by two packages of the same unit
type ConflictError struct {
	Unit     string
	Path     string
	Owner    string
	Claimant string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: unit %s: %s is shipped by %s and %s with different content",
		status.ErrPathConflict, e.Unit, e.Path, e.Owner, e.Claimant)
}

// Unwrap to the path conflict sentinel
func (e *ConflictError) Unwrap() error {
	return status.ErrPathConflict
}
