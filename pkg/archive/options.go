package archive

import (
	"time"

	"github.com/serpent-os/pisi/pkg/fingerprint"
	"go.uber.org/zap"
)

// Option for the archive reader
type Option func(*Reader)

// Logger for the archive reader
func Logger(l *zap.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.l = l
		}
	}
}

// Timeout bounds a single extraction. Zero means no bound beyond the caller's context.
func Timeout(timeout time.Duration) Option {
	return func(r *Reader) {
		r.timeout = timeout
	}
}

// Hasher sets the content hasher
func Hasher(m *fingerprint.Maker) Option {
	return func(r *Reader) {
		if m != nil {
			r.maker = m
		}
	}
}

// CheckIntegrity compares the extracted files with the declared file list (the default)
func CheckIntegrity(enabled bool) Option {
	return func(r *Reader) {
		r.integrity = enabled
	}
}
