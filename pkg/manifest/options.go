package manifest

import (
	"github.com/serpent-os/pisi/pkg/grouper"
	"go.uber.org/zap"
)

// Option for the emitter
type Option func(*Emitter)

// Logger for the emitter
func Logger(l *zap.Logger) Option {
	return func(e *Emitter) {
		if l != nil {
			e.l = l
		}
	}
}

// Owners lets the emitter avoid globs over directories in which other units declare files
func Owners(owners *grouper.OwnerIndex) Option {
	return func(e *Emitter) {
		e.owners = owners
	}
}

// SharedDirs replaces the patterns of directories which are never collapsed into a glob
func SharedDirs(patterns []string) Option {
	return func(e *Emitter) {
		e.shared = append([]string(nil), patterns...)
	}
}

// Homepage used when the primary package has none
func Homepage(url string) Option {
	return func(e *Emitter) {
		e.homepage = url
	}
}

// UpstreamBase is the repository URL against which relative package URIs are resolved
func UpstreamBase(base string) Option {
	return func(e *Emitter) {
		e.baseURI = base
	}
}
