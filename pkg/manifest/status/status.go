// Package status exports errors produced by the manifest package.
package status

import (
	"github.com/serpent-os/pisi/pkg/errors"
)

var (
	// ErrEmptyTree indicates a unit which produced no file at all
	ErrEmptyTree = errors.New("empty import tree")

	// ErrUnresolved indicates a unit without recipe location
	ErrUnresolved = errors.New("unresolved recipe location")

	// ErrGlobMismatch indicates path globs which do not cover exactly the import tree
	ErrGlobMismatch = errors.New("path globs do not match import tree")

	// ErrEncode indicates a failure to write the manifest document
	ErrEncode = errors.New("cannot encode manifest")
)
