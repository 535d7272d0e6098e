package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	units "github.com/docker/go-units"
	"github.com/serpent-os/pisi/pkg/errors"
	"github.com/serpent-os/pisi/pkg/manifest"
	manstatus "github.com/serpent-os/pisi/pkg/manifest/status"
	matstatus "github.com/serpent-os/pisi/pkg/materialize/status"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/serpent-os/pisi/pkg/pipeline/status"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// unitRun tracks the state of a unit being converted
type unitRun struct {
	p      *Pipeline
	ctx    context.Context // the run context, telling cancellation apart from unit failures
	start  time.Time
	report UnitReport
}

func (r *unitRun) step(next State) error {
	if err := Transition(r.report.State, next); err != nil {
		return err
	}
	r.report.State = next
	return nil
}

// fail ends the unit in some failed state, or cancelled when the run was aborted
func (r *unitRun) fail(state State, err error) {
	if r.ctx.Err() != nil {
		state = Cancelled
	}
	if terr := r.step(state); terr != nil {
		r.p.l.Error("unexpected unit state", zap.String("unit", r.report.Unit), zap.Error(terr))
		r.report.State = state
	}
	if err != nil {
		r.report.Error = err.Error()
	}
}

func (r *unitRun) finish() UnitReport {
	r.report.Duration = time.Since(r.start)
	r.p.metrics.Unit(string(r.report.State), r.start)

	fields := []zap.Field{
		zap.String("unit", r.report.Unit),
		zap.String("state", string(r.report.State)),
		zap.Duration("duration", r.report.Duration),
	}
	switch {
	case r.report.State.Failed():
		r.p.l.Warn("unit not converted", append(fields, zap.String("error", r.report.Error))...)
	default:
		r.p.l.Info("unit processed", append(fields,
			zap.Int("files", r.report.Files),
			zap.String("size", units.HumanSize(float64(r.report.Size))),
			zap.Int("warnings", len(r.report.Warnings)),
		)...)
	}
	return r.report
}

func validateNames(unit *model.SourceUnit) error {
	if err := model.ValidateName(unit.ID); err != nil {
		return status.ErrInvalidName.Wrap(err)
	}
	for _, member := range unit.Members {
		if err := model.ValidateName(member.Name); err != nil {
			return status.ErrInvalidName.Wrap(err)
		}
	}
	return nil
}

// convert a single unit, from resolution to the final rename of its output
func (p *Pipeline) convert(ctx context.Context, unit *model.SourceUnit, emitter *manifest.Emitter) UnitReport {
	r := &unitRun{
		p:     p,
		ctx:   ctx,
		start: time.Now(),
		report: UnitReport{
			Unit:     unit.ID,
			State:    Pending,
			Version:  unit.Version(),
			Packages: unit.MemberNames(),
		},
	}
	_ = r.step(Resolving)

	uctx := ctx
	if p.unitTimeout > 0 {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(ctx, p.unitTimeout)
		defer cancel()
	}

	if err := validateNames(unit); err != nil {
		r.fail(Unresolved, err)
		return r.finish()
	}
	loc, err := p.resolver.Resolve(uctx, unit.ID)
	p.metrics.Lookup(string(loc.Match))
	if err != nil {
		r.fail(Unresolved, err)
		return r.finish()
	}
	if !loc.Resolved {
		r.fail(Unresolved, manstatus.ErrUnresolved.WithDetail(unit.ID))
		return r.finish()
	}
	r.report.Recipe, r.report.Match = loc.Path, loc.Match

	stage := filepath.Join(model.GetOutputStagePath(p.outputRoot), unit.ID)
	defer func() {
		_ = os.RemoveAll(stage)
		if !p.keepStaging {
			_ = os.RemoveAll(model.GetUnitStagingPath(p.workRoot, unit.ID))
		}
	}()

	_ = r.step(Extracting)
	extracted, failures := p.extract(uctx, unit)
	var trees []*model.StagingTree
	for _, tree := range extracted {
		if tree != nil {
			trees = append(trees, tree)
			r.report.Warnings = append(r.report.Warnings, tree.Warnings...)
		}
	}
	r.report.Failures = failures
	// a unit timeout or an abort leaves no partial result
	if len(trees) == 0 || uctx.Err() != nil {
		r.fail(ExtractFailed, failures.err())
		return r.finish()
	}
	if len(failures) > 0 {
		// the unit goes on with the members which were extracted
		unit = unit.Only(extractedNames(trees)...)
		r.report.Version = unit.Version()
		p.l.Warn("members not extracted",
			zap.String("unit", unit.ID), zap.Int("failed", len(failures)), zap.Error(failures.err()))
	}

	_ = r.step(Materializing)
	tree, err := p.materializer.Merge(ctx, unit.ID, trees,
		filepath.Join(stage, filepath.FromSlash(model.GetImportTreeRelPath())))
	if err != nil {
		if errors.Is(err, matstatus.ErrPathConflict) {
			r.fail(Conflict, err)
		} else {
			r.fail(EmitFailed, err)
		}
		return r.finish()
	}
	r.report.Files, r.report.Size = len(tree.Entries), tree.Size()
	r.report.Digest = p.digest(tree)
	if len(tree.Entries) == 0 {
		_ = r.step(Empty)
		r.report.Error = manstatus.ErrEmptyTree.Error()
		return r.finish()
	}

	_ = r.step(Emitting)
	var buf bytes.Buffer
	if err = emitter.Emit(unit, loc, tree, &buf); err != nil {
		r.fail(EmitFailed, err)
		return r.finish()
	}
	if err = os.WriteFile(filepath.Join(stage, model.ManifestFile), buf.Bytes(), 0644); err != nil {
		r.fail(EmitFailed, status.ErrOutput.Wrap(err))
		return r.finish()
	}
	if err = p.commit(stage, unit.ID); err != nil {
		r.fail(EmitFailed, err)
		return r.finish()
	}
	_ = r.step(Done)
	return r.finish()
}

// extract all the members of a unit, concurrently.
//
// A failed member does not stop the others: trees holds nil for every failed package.
func (p *Pipeline) extract(ctx context.Context, unit *model.SourceUnit) ([]*model.StagingTree, PackageFailures) {
	var g errgroup.Group
	g.SetLimit(p.extractors)
	trees := make([]*model.StagingTree, len(unit.Members))
	errs := make([]error, len(unit.Members))
	for i, rec := range unit.Members {
		i, rec := i, rec
		g.Go(func() error {
			trees[i], errs[i] = p.extractPackage(ctx, unit.ID, rec)
			return nil
		})
	}
	_ = g.Wait()

	var failures PackageFailures
	for i, err := range errs {
		if err != nil {
			failures = append(failures, PackageFailure{Package: unit.Members[i].Name, Error: err.Error()})
		}
	}
	return trees, failures
}

func extractedNames(trees []*model.StagingTree) []string {
	names := make([]string, 0, len(trees))
	for _, tree := range trees {
		names = append(names, tree.Package)
	}
	return names
}

func (p *Pipeline) extractPackage(ctx context.Context, unitID string, rec model.PackageRecord) (*model.StagingTree, error) {
	pl, err := p.source.Open(ctx, rec)
	if err != nil {
		p.metrics.Fetch(0, err)
		return nil, err
	}
	p.metrics.Fetch(pl.Size(), nil)
	defer func() {
		_ = pl.Close()
	}()

	tree, err := p.reader.Extract(ctx, rec, pl, pl.Size(), model.GetStagingPath(p.workRoot, unitID, rec.Name))
	if err != nil {
		p.metrics.ExtractFailed()
		return nil, err
	}
	var size int64
	for _, e := range tree.Entries {
		size += e.Size
	}
	p.metrics.Extracted(size, len(tree.Warnings))
	return tree, nil
}

// digest fingerprints the content of an import tree
func (p *Pipeline) digest(tree *model.ImportTree) string {
	if len(tree.Entries) == 0 {
		return ""
	}
	entries := make([]model.Entry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entries = append(entries, e.Entry)
	}
	return p.maker.Tree(entries)
}

// commit moves an assembled unit to its final location, replacing any previous output
func (p *Pipeline) commit(stage, unitID string) error {
	final := model.GetUnitPath(p.outputRoot, unitID)
	replaced := filepath.Join(model.GetOutputStagePath(p.outputRoot), replacedDir, unitID)

	hadPrevious := false
	if _, err := os.Lstat(final); err == nil {
		if err = os.Rename(final, replaced); err != nil {
			return status.ErrOutput.Wrap(err)
		}
		hadPrevious = true
	}
	if err := os.Rename(stage, final); err != nil {
		if hadPrevious {
			_ = os.Rename(replaced, final)
		}
		return status.ErrOutput.Wrap(err)
	}
	if hadPrevious {
		_ = os.RemoveAll(replaced)
	}
	return nil
}
