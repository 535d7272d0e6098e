// Package status exports errors produced by the materialize package.
package status

import (
	"github.com/serpent-os/pisi/pkg/errors"
)

var (
	// ErrPathConflict indicates two packages of a unit shipping different content at the same path
	ErrPathConflict = errors.New("path conflict")

	// ErrMerge indicates a failure to move a staged file into the import tree
	ErrMerge = errors.New("cannot merge staging tree")
)
