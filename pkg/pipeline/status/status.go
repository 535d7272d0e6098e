// Package status exports errors produced by the pipeline package.
package status

import (
	"github.com/serpent-os/pisi/pkg/errors"
)

var (
	// ErrPrecondition indicates a run which cannot start, e.g. an unusable output root
	ErrPrecondition = errors.New("precondition failed")

	// ErrIllegalTransition indicates a unit state change outside the transition table
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrInvalidName indicates a unit or package name which cannot be used as a path segment
	ErrInvalidName = errors.New("invalid name")

	// ErrOutput indicates a failure to write the output of a unit
	ErrOutput = errors.New("cannot write unit output")
)
