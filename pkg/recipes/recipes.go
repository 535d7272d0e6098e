// Package recipes locates the recipes of source units in a recipe monorepo.
//
// The monorepo itself is an external collaborator, exposed through the Index interface.
// It is never mutated.
package recipes

import (
	"context"

	"github.com/serpent-os/pisi/pkg/errors"
)

var (
	// ErrLookup is returned when the recipe index cannot answer
	ErrLookup = errors.New("recipe lookup failed")

	// ErrLookupTimeout is returned when the recipe index did not answer in time
	ErrLookupTimeout = errors.New("recipe lookup timed out")

	// ErrIndexUnavailable is returned when the recipe index cannot be loaded
	ErrIndexUnavailable = errors.New("recipe index unavailable")
)

// Index maps source unit ids to recipe paths within the monorepo.
//
// Implementations must be safe for concurrent use.
type Index interface {
	// Lookup the recipe path for an exact id
	Lookup(context.Context, string) (string, bool, error)

	// IDs known to the index
	IDs(context.Context) ([]string, error)

	// Fingerprint of the snapshot of the monorepo the index describes
	Fingerprint(context.Context) (string, error)

	String() string
}

// CachingIndex is an Index which can tell when an answer came from its cache
type CachingIndex interface {
	Index
	LookupCached(context.Context, string) (pth string, found bool, cached bool, err error)
}
