package pipeline

import (
	"time"

	"github.com/serpent-os/pisi/pkg/archive"
	"github.com/serpent-os/pisi/pkg/filter"
	"github.com/serpent-os/pisi/pkg/fingerprint"
	"github.com/serpent-os/pisi/pkg/metrics"
	"go.uber.org/zap"
)

// Option for the pipeline
type Option func(*Pipeline)

// Logger for the pipeline and its components
func Logger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.l = l
		}
	}
}

// Concurrency is the number of units converted in parallel
func Concurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// Extractors is the number of payloads of a single unit extracted in parallel
func Extractors(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.extractors = n
		}
	}
}

// UnitTimeout bounds recipe lookups and payload extraction for a unit
func UnitTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) {
		p.unitTimeout = timeout
	}
}

// Filter selects the units in scope. All units are in scope by default.
func Filter(f *filter.Filter) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.filter = f
		}
	}
}

// WorkRoot holds the staging trees. It defaults to a directory under the output root.
func WorkRoot(pth string) Option {
	return func(p *Pipeline) {
		p.workRoot = pth
	}
}

// KeepStaging leaves staging trees on disk after each unit
func KeepStaging(enabled bool) Option {
	return func(p *Pipeline) {
		p.keepStaging = enabled
	}
}

// Metrics collected during the run
func Metrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// RunID overrides the generated run id
func RunID(id string) Option {
	return func(p *Pipeline) {
		p.runID = id
	}
}

// ArchiveOptions configure the archive reader
func ArchiveOptions(opts ...archive.Option) Option {
	return func(p *Pipeline) {
		p.archiveOpts = append(p.archiveOpts, opts...)
	}
}

// Hasher sets the content hasher of extracted files and unit digests
func Hasher(m *fingerprint.Maker) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.maker = m
		}
	}
}

// UpstreamBase is the repository URL of the payloads listed as recipe upstreams
func UpstreamBase(base string) Option {
	return func(p *Pipeline) {
		p.upstreamBase = base
	}
}

// SharedDirs overrides the directories never collapsed into a glob by the manifest emitter
func SharedDirs(patterns []string) Option {
	return func(p *Pipeline) {
		p.sharedDirs = patterns
	}
}

// MissingDependencies are reported in the summary, e.g. those left out of a base system closure
func MissingDependencies(names []string) Option {
	return func(p *Pipeline) {
		p.missing = append([]string(nil), names...)
	}
}
