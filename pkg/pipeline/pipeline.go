// Copyright © 2018 One Concern

package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/serpent-os/pisi/pkg/archive"
	"github.com/serpent-os/pisi/pkg/filter"
	"github.com/serpent-os/pisi/pkg/fingerprint"
	"github.com/serpent-os/pisi/pkg/grouper"
	"github.com/serpent-os/pisi/pkg/index"
	"github.com/serpent-os/pisi/pkg/manifest"
	"github.com/serpent-os/pisi/pkg/materialize"
	"github.com/serpent-os/pisi/pkg/metrics"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/serpent-os/pisi/pkg/payload"
	"github.com/serpent-os/pisi/pkg/pipeline/status"
	"github.com/serpent-os/pisi/pkg/storage"
	"github.com/serpent-os/pisi/pkg/storage/localfs"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	defaultExtractors = 4
	workDir           = ".pisi-work"
	replacedDir       = ".replaced"
)

// Resolver locates the recipe of a source unit
type Resolver interface {
	Resolve(context.Context, string) (model.RecipeLocation, error)
}

// Pipeline converts units from an index document. A pipeline may be run several times,
// but not concurrently on the same output root.
type Pipeline struct {
	resolver   Resolver
	source     payload.Source
	outputRoot string

	l            *zap.Logger
	concurrency  int
	extractors   int
	unitTimeout  time.Duration
	filter       *filter.Filter
	workRoot     string
	ownWorkRoot  bool
	keepStaging  bool
	metrics      *metrics.Metrics
	runID        string
	archiveOpts  []archive.Option
	sharedDirs   []string
	missing      []string
	upstreamBase string

	maker        *fingerprint.Maker
	reader       *archive.Reader
	materializer *materialize.Materializer
}

// New pipeline writing to outputRoot
func New(resolver Resolver, source payload.Source, outputRoot string, opts ...Option) *Pipeline {
	p := &Pipeline{
		resolver:    resolver,
		source:      source,
		outputRoot:  outputRoot,
		l:           zap.NewNop(),
		concurrency: runtime.GOMAXPROCS(0),
		extractors:  defaultExtractors,
		filter:      filter.All(),
	}
	for _, apply := range opts {
		apply(p)
	}
	if p.workRoot == "" {
		p.workRoot = filepath.Join(outputRoot, workDir)
		p.ownWorkRoot = true
	}
	if p.runID == "" {
		p.runID = uuid.NewString()
	}
	if p.maker == nil {
		p.maker = fingerprint.New()
	}
	p.reader = archive.New(append([]archive.Option{archive.Logger(p.l), archive.Hasher(p.maker)}, p.archiveOpts...)...)
	p.materializer = materialize.New(materialize.Logger(p.l))
	return p
}

// prepare checks that the output root is usable and clears leftovers of an interrupted run
func (p *Pipeline) prepare() error {
	if err := os.MkdirAll(p.outputRoot, 0755); err != nil {
		return status.ErrPrecondition.Wrapf("output root: %w", err)
	}
	probe, err := os.CreateTemp(p.outputRoot, ".pisi-probe-*")
	if err != nil {
		return status.ErrPrecondition.Wrapf("output root is not writable: %w", err)
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	stage := model.GetOutputStagePath(p.outputRoot)
	if err = os.RemoveAll(stage); err != nil {
		return status.ErrPrecondition.Wrapf("clearing output stage: %w", err)
	}
	if err = os.MkdirAll(filepath.Join(stage, replacedDir), 0755); err != nil {
		return status.ErrPrecondition.Wrapf("output stage: %w", err)
	}
	if err = os.MkdirAll(p.workRoot, 0755); err != nil {
		return status.ErrPrecondition.Wrapf("work root: %w", err)
	}
	return nil
}

func (p *Pipeline) cleanup() {
	_ = os.RemoveAll(model.GetOutputStagePath(p.outputRoot))
	if p.keepStaging {
		return
	}
	if p.ownWorkRoot {
		_ = os.RemoveAll(p.workRoot)
		return
	}
	_ = os.RemoveAll(model.GetStagingRoot(p.workRoot))
}

// current drops the packages declared obsolete by the distribution
func current(doc *index.Document) ([]model.PackageRecord, []string) {
	records := make([]model.PackageRecord, 0, len(doc.Records))
	var obsolete []string
	for _, rec := range doc.Records {
		if doc.IsObsolete(rec.Name) {
			obsolete = append(obsolete, "obsolete package "+rec.Name)
			continue
		}
		records = append(records, rec)
	}
	return records, obsolete
}

// Run converts all the units of the index.
//
// It fails only when the run cannot start. Unit failures are reported in the summary,
// which is also written to output_root/summary.yaml. When ctx is cancelled, no more units
// are dispatched and the remaining ones are reported as cancelled.
func (p *Pipeline) Run(ctx context.Context, doc *index.Document) (*Summary, error) {
	sum := &Summary{RunID: p.runID, Started: time.Now().UTC(), Index: doc.Distribution.Name}
	if err := p.prepare(); err != nil {
		return nil, err
	}
	defer p.cleanup()

	records, obsolete := current(doc)
	groups := grouper.Group(records)
	emitOpts := []manifest.Option{manifest.Logger(p.l), manifest.Owners(grouper.NewOwnerIndex(records))}
	if p.sharedDirs != nil {
		emitOpts = append(emitOpts, manifest.SharedDirs(p.sharedDirs))
	}
	if p.upstreamBase != "" {
		emitOpts = append(emitOpts, manifest.UpstreamBase(p.upstreamBase))
	}
	emitter, err := manifest.New(emitOpts...)
	if err != nil {
		return nil, status.ErrPrecondition.Wrapf("manifest emitter: %w", err)
	}

	for _, perr := range doc.ParseErrors() {
		sum.Skipped = append(sum.Skipped, perr.Error())
	}
	for _, dup := range groups.Duplicates() {
		sum.Skipped = append(sum.Skipped, "duplicate package "+dup.String())
	}
	sum.Skipped = append(sum.Skipped, obsolete...)
	sum.Missing = p.missing

	p.l.Info("starting conversion run",
		zap.String("run", p.runID),
		zap.Int("packages", len(records)),
		zap.Int("units", groups.Len()),
		zap.Stringer("filter", p.filter),
		zap.Int("concurrency", p.concurrency),
	)

	c := &collector{}
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, unit := range groups.Units() {
		if !p.filter.InScope(unit.ID) {
			c.add(p.skip(unit, FilteredOut))
			continue
		}
		if ctx.Err() != nil {
			c.add(p.skip(unit, Cancelled))
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			c.add(p.skip(unit, Cancelled))
			continue
		}
		wg.Add(1)
		go func(unit *model.SourceUnit) {
			defer func() {
				<-sem
				wg.Done()
			}()
			c.add(p.convert(ctx, unit, emitter))
		}(unit)
	}
	wg.Wait()

	sum.Finished = time.Now().UTC()
	c.summary(sum)
	p.l.Info("conversion run complete",
		zap.String("run", p.runID),
		zap.Int("units", len(sum.Units)),
		zap.Int("done", sum.Counts[Done]),
		zap.Int("failed", len(sum.Failed())),
		zap.Duration("duration", sum.Finished.Sub(sum.Started)),
	)
	return sum, p.writeSummary(context.WithoutCancel(ctx), sum)
}

// skip reports a unit which is never dispatched
func (p *Pipeline) skip(unit *model.SourceUnit, state State) UnitReport {
	report := UnitReport{Unit: unit.ID, State: state, Version: unit.Version(), Packages: unit.MemberNames()}
	if err := Transition(Pending, state); err != nil {
		report.Error = err.Error()
	}
	p.metrics.Unit(string(state), time.Now())
	return report
}

func (p *Pipeline) writeSummary(ctx context.Context, sum *Summary) error {
	store, err := localfs.NewAtomic(afero.NewBasePathFs(afero.NewOsFs(), p.outputRoot))
	if err != nil {
		return err
	}
	store = storage.Instrument(p.l, store)
	defer func() {
		_ = store.Close()
	}()
	var buf bytes.Buffer
	if err = sum.Write(&buf); err != nil {
		return err
	}
	return store.Put(ctx, model.SummaryFile, &buf, 0644)
}
