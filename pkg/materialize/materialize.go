// Copyright © 2018 One Concern

package materialize

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	units "github.com/docker/go-units"
	"github.com/serpent-os/pisi/pkg/materialize/status"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const dirPerm = 0755

// Option for the materializer
type Option func(*Materializer)

// Logger for the materializer
func Logger(l *zap.Logger) Option {
	return func(m *Materializer) {
		if l != nil {
			m.l = l
		}
	}
}

// Fs sets the file system holding both the staging trees and the import trees.
// Paths are given as absolute paths on that file system.
func Fs(fs afero.Fs) Option {
	return func(m *Materializer) {
		if fs != nil {
			m.fs = fs
		}
	}
}

// Materializer merges staging trees. Merges of different units may run concurrently.
type Materializer struct {
	fs afero.Fs
	l  *zap.Logger
}

// New materializer, working on the OS file system by default
func New(opts ...Option) *Materializer {
	m := &Materializer{
		fs: afero.NewOsFs(),
		l:  zap.NewNop(),
	}
	for _, apply := range opts {
		apply(m)
	}
	return m
}

type merge struct {
	*Materializer
	unit    string
	dest    string
	owned   map[string]model.OwnedEntry
	parents map[string]string
	shared  int
}

// Merge moves the content of the staging trees of a unit into dest.
//
// Staging trees are consumed: their files are moved, not copied. On error, dest may
// contain a partial tree which the caller discards.
func (m *Materializer) Merge(ctx context.Context, unit string, trees []*model.StagingTree, dest string) (*model.ImportTree, error) {
	start := time.Now()
	ordered := make([]*model.StagingTree, 0, len(trees))
	for _, tree := range trees {
		if tree != nil {
			ordered = append(ordered, tree)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Package < ordered[j].Package })

	if err := m.fs.MkdirAll(dest, dirPerm); err != nil {
		return nil, status.ErrMerge.Wrap(err)
	}

	mg := &merge{
		Materializer: m,
		unit:         unit,
		dest:         dest,
		owned:        make(map[string]model.OwnedEntry),
		parents:      make(map[string]string),
	}
	explicit := make(map[string]struct{})
	for _, tree := range ordered {
		entries := append(model.Entries(nil), tree.Entries...)
		entries.Sort()
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := mg.add(tree, e); err != nil {
				return nil, err
			}
		}
		for _, dir := range tree.Dirs {
			explicit[dir] = struct{}{}
		}
	}

	res := &model.ImportTree{
		Unit:    unit,
		Root:    dest,
		Entries: make([]model.OwnedEntry, 0, len(mg.owned)),
	}
	for _, e := range mg.owned {
		res.Entries = append(res.Entries, e)
	}
	sort.Slice(res.Entries, func(i, j int) bool { return res.Entries[i].Path < res.Entries[j].Path })

	for dir := range explicit {
		if _, isParent := mg.parents[dir]; isParent {
			continue
		}
		if _, isFile := mg.owned[dir]; isFile {
			continue
		}
		if err := m.fs.MkdirAll(mg.target(dir), dirPerm); err != nil {
			return nil, status.ErrMerge.Wrap(err)
		}
		res.Dirs = append(res.Dirs, dir)
	}
	sort.Strings(res.Dirs)

	m.l.Debug("merged import tree",
		zap.String("unit", unit),
		zap.Int("packages", len(ordered)),
		zap.Int("files", len(res.Entries)),
		zap.Int("shared", mg.shared),
		zap.String("size", units.HumanSize(float64(res.Size()))),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (mg *merge) target(pth string) string {
	return filepath.Join(mg.dest, filepath.FromSlash(pth))
}

func (mg *merge) conflict(pth, owner, claimant string) error {
	return &ConflictError{Unit: mg.unit, Path: pth, Owner: owner, Claimant: claimant}
}

func (mg *merge) add(tree *model.StagingTree, e model.Entry) error {
	if prev, seen := mg.owned[e.Path]; seen {
		if prev.Hash == e.Hash && prev.IsSymlink() == e.IsSymlink() {
			mg.shared++
			return nil
		}
		return mg.conflict(e.Path, prev.Owner, tree.Package)
	}
	// a file where another package has a directory, and the other way around
	if owner, isDir := mg.parents[e.Path]; isDir {
		return mg.conflict(e.Path, owner, tree.Package)
	}
	for dir := path.Dir(e.Path); dir != "/" && dir != "."; dir = path.Dir(dir) {
		if prev, isFile := mg.owned[dir]; isFile {
			return mg.conflict(dir, prev.Owner, tree.Package)
		}
	}

	src := filepath.Join(tree.Root, filepath.FromSlash(e.Path))
	if err := mg.move(src, mg.target(e.Path), e); err != nil {
		return err
	}
	mg.owned[e.Path] = model.OwnedEntry{Entry: e, Owner: tree.Package}
	for dir := path.Dir(e.Path); dir != "/" && dir != "."; dir = path.Dir(dir) {
		if _, ok := mg.parents[dir]; ok {
			break
		}
		mg.parents[dir] = tree.Package
	}
	return nil
}

// move renames a staged file into place, copying it when a rename is not possible
// (e.g. staging and output on different devices).
func (mg *merge) move(src, dst string, e model.Entry) error {
	if err := mg.fs.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return status.ErrMerge.Wrap(err)
	}
	if err := mg.fs.Rename(src, dst); err == nil {
		return nil
	}
	if e.IsSymlink() {
		return mg.copyLink(src, dst, e)
	}
	return mg.copyFile(src, dst, e)
}

func (mg *merge) copyLink(src, dst string, e model.Entry) error {
	linker, ok := mg.fs.(afero.Linker)
	if !ok {
		return status.ErrMerge.Wrapf("symlink %s: not supported by %s", e.Path, mg.fs.Name())
	}
	if err := linker.SymlinkIfPossible(e.LinkTarget, dst); err != nil {
		return status.ErrMerge.Wrapf("symlink %s: %w", e.Path, err)
	}
	_ = mg.fs.Remove(src)
	return nil
}

func (mg *merge) copyFile(src, dst string, e model.Entry) error {
	in, err := mg.fs.Open(src)
	if err != nil {
		return status.ErrMerge.Wrapf("open staged %s: %w", e.Path, err)
	}
	defer func() {
		_ = in.Close()
	}()
	out, err := mg.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return status.ErrMerge.Wrapf("create %s: %w", e.Path, err)
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = mg.fs.Remove(dst)
		return status.ErrMerge.Wrapf("copy %s: %w", e.Path, err)
	}
	if err = out.Close(); err != nil {
		return status.ErrMerge.Wrap(err)
	}
	if err = mg.fs.Chmod(dst, e.Mode.Bits()); err != nil {
		return status.ErrMerge.Wrap(err)
	}
	_ = mg.fs.Remove(src)
	return nil
}
