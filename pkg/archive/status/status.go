// Package status exports errors produced by the archive package.
package status

import (
	"github.com/serpent-os/pisi/pkg/errors"
)

var (
	// ErrCorruptArchive indicates an unreadable or truncated archive or payload stream
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrMissingPayload indicates an archive without an install payload
	ErrMissingPayload = errors.New("missing install payload")

	// ErrPathEscape indicates an entry which would be written outside the staging root
	ErrPathEscape = errors.New("path escapes staging root")

	// ErrExtractTimeout indicates an extraction interrupted by its deadline
	ErrExtractTimeout = errors.New("extraction timed out")
)
