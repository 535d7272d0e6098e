// Copyright © 2018 One Concern

// Package localfs implements a storage.Store over an afero file system.
package localfs

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/serpent-os/pisi/internal/rand"
	"github.com/serpent-os/pisi/pkg/storage"
	"github.com/serpent-os/pisi/pkg/storage/status"
	"github.com/spf13/afero"
)

const (
	dirPerm = 0755

	// modeBits are kept by chmod: permissions plus setuid, setgid and sticky
	modeBits = os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky
)

// New creates a new local file system backed store.
//
// Writes go straight to their destination.
func New(fs afero.Fs) storage.Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &localFS{
		fs: fs,
	}
}

type localFS struct {
	fs afero.Fs
}

func toKey(key string) string {
	cleaned := path.Clean("/" + filepath.ToSlash(key))
	return filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))
}

func (l *localFS) lstat(key string) (os.FileInfo, error) {
	if lst, ok := l.fs.(afero.Lstater); ok {
		fi, _, err := lst.LstatIfPossible(key)
		return fi, err
	}
	return l.fs.Stat(key)
}

func (l *localFS) Has(ctx context.Context, key string) (bool, error) {
	fi, err := l.lstat(toKey(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, status.ErrStorage.Wrap(err)
	}

	return !fi.IsDir(), nil
}

func (l *localFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	has, err := l.Has(ctx, key)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, status.ErrNotExists.WithDetail(key)
	}
	return l.fs.Open(toKey(key))
}

func (l *localFS) ensureParent(key string) error {
	dir := filepath.Dir(key)
	if dir == "." || dir == "" {
		return nil
	}
	if err := l.fs.MkdirAll(dir, dirPerm); err != nil {
		return status.ErrStorage.Wrapf("ensuring directories for %q: %w", key, err)
	}
	return nil
}

func (l *localFS) Put(ctx context.Context, key string, source io.Reader, perm os.FileMode) error {
	return l.put(ctx, toKey(key), source, perm)
}

func (l *localFS) put(ctx context.Context, key string, source io.Reader, perm os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.ensureParent(key); err != nil {
		return err
	}
	// replace rather than truncate: the existing object may be a symlink or read-only
	if err := l.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return status.ErrStorage.Wrapf("replacing %q: %w", key, err)
	}
	target, err := l.fs.OpenFile(key, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return status.ErrStorage.Wrapf("create record for %q: %w", key, err)
	}
	if _, err = io.Copy(target, storage.ContextReader(ctx, source)); err != nil {
		_ = target.Close()
		_ = l.fs.Remove(key)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return status.ErrStorage.Wrapf("write record for %q: %w", key, err)
	}
	if err = target.Close(); err != nil {
		return status.ErrStorage.Wrap(err)
	}
	// the umask applies at creation: set the exact permission bits afterwards
	if err = l.fs.Chmod(key, perm&modeBits); err != nil {
		return status.ErrStorage.Wrapf("chmod %q: %w", key, err)
	}
	return nil
}

func (l *localFS) Symlink(ctx context.Context, key, target string) error {
	return l.symlink(ctx, toKey(key), target)
}

func (l *localFS) symlink(ctx context.Context, key, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	link, err := l.linker()
	if err != nil {
		return err
	}
	if err := l.ensureParent(key); err != nil {
		return err
	}
	if err := l.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return status.ErrStorage.Wrapf("replacing %q: %w", key, err)
	}
	if err := link(target, key); err != nil {
		return status.ErrStorage.Wrapf("symlink %q -> %q: %w", key, target, err)
	}
	return nil
}

// linker creates symlinks with a verbatim target.
//
// afero.BasePathFs rewrites link targets to absolute real paths: a base path fs is assumed
// to sit on the OS file system and links are created directly.
func (l *localFS) linker() (func(target, key string) error, error) {
	switch fs := l.fs.(type) {
	case *afero.BasePathFs:
		return func(target, key string) error {
			realPath, err := fs.RealPath(key)
			if err != nil {
				return err
			}
			return os.Symlink(target, realPath)
		}, nil
	case afero.Linker:
		return fs.SymlinkIfPossible, nil
	default:
		return nil, status.ErrNotSupported.WithDetail("symlinks on " + l.fs.Name())
	}
}

func (l *localFS) Mkdir(ctx context.Context, key string, perm os.FileMode) error {
	key = toKey(key)
	if key == "" {
		return nil
	}
	if err := l.fs.MkdirAll(key, dirPerm); err != nil {
		return status.ErrStorage.Wrapf("mkdir %q: %w", key, err)
	}
	if perm.Perm() != 0 {
		if err := l.fs.Chmod(key, perm&modeBits); err != nil {
			return status.ErrStorage.Wrapf("chmod %q: %w", key, err)
		}
	}
	return nil
}

func (l *localFS) Delete(ctx context.Context, key string) error {
	if err := l.fs.Remove(toKey(key)); err != nil && !os.IsNotExist(err) {
		return status.ErrStorage.Wrapf("removing %q: %w", key, err)
	}
	return nil
}

// Keys lists all files and symlinks, slash separated and sorted
func (l *localFS) Keys(ctx context.Context) ([]string, error) {
	const root = "."
	var res []string
	e := afero.Walk(l.fs, root, func(pth string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if pth == root || info.IsDir() {
			return nil
		}
		res = append(res, filepath.ToSlash(pth))
		return nil
	})
	if e != nil {
		return nil, status.ErrStorage.Wrap(e)
	}
	sort.Strings(res)
	return res, nil
}

func (l *localFS) Clear(ctx context.Context) error {
	entries, err := afero.ReadDir(l.fs, ".")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return status.ErrStorage.Wrap(err)
	}
	for _, entry := range entries {
		if err := l.fs.RemoveAll(entry.Name()); err != nil {
			return status.ErrStorage.Wrap(err)
		}
	}
	return nil
}

func (l *localFS) Close() error {
	return nil
}

func (l *localFS) String() string {
	return describe("localfs", l.fs)
}

func describe(name string, fs afero.Fs) string {
	switch fs := fs.(type) {
	case *afero.BasePathFs:
		pp, err := fs.RealPath("")
		if err != nil {
			return name
		}
		return name + "@" + pp
	default:
		return name
	}
}

/* thread-safe local storage implementation.
 * use a decorator pattern to implement atomic Put()s via atomicity of afero.Fs.Rename()
 * for those filesystems where Rename() is thread-safe:  files are placed in a staging area,
 * then Rename()d into place. A reader never observes a partially written file.
 */

const (
	nestedPutStageName = ".put-stage"
)

func maybeInvalidKey(key string) error {
	pathComponents := strings.Split(toKey(key), string(os.PathSeparator))
	if pathComponents[0] == nestedPutStageName {
		return status.ErrInvalidKey.Wrapf("key %q conflicts with put staging area name %q", key, nestedPutStageName)
	}
	return nil
}

func filterInvalidKeys(ks []string) []string {
	ksFiltered := ks[:0]
	for _, key := range ks {
		if err := maybeInvalidKey(key); err == nil {
			ksFiltered = append(ksFiltered, key)
		}
	}
	for i := len(ksFiltered); i < len(ks); i++ {
		ks[i] = ""
	}
	return ksFiltered
}

// NewAtomic creates a local file system store with atomic writes.
//
// The staging area lives within the file system itself and is removed by Close.
func NewAtomic(fs afero.Fs) (storage.Store, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(nestedPutStageName, 0700); err != nil {
		return nil, status.ErrStorage.Wrapf("ensuring put staging directory for %q: %w", nestedPutStageName, err)
	}
	return &localFSAtomic{
		storeImpl: localFS{fs: fs},
	}, nil
}

type localFSAtomic struct {
	storeImpl localFS
}

func (l *localFSAtomic) Has(ctx context.Context, key string) (bool, error) {
	if err := maybeInvalidKey(key); err != nil {
		return false, err
	}
	return l.storeImpl.Has(ctx, key)
}

func (l *localFSAtomic) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := maybeInvalidKey(key); err != nil {
		return nil, err
	}
	return l.storeImpl.Get(ctx, key)
}

func (l *localFSAtomic) Delete(ctx context.Context, key string) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	return l.storeImpl.Delete(ctx, key)
}

func (l *localFSAtomic) Mkdir(ctx context.Context, key string, perm os.FileMode) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	return l.storeImpl.Mkdir(ctx, key, perm)
}

func (l *localFSAtomic) Keys(ctx context.Context) ([]string, error) {
	ks, err := l.storeImpl.Keys(ctx)
	if err != nil {
		return ks, err
	}
	return filterInvalidKeys(ks), nil
}

func (l *localFSAtomic) Clear(ctx context.Context) error {
	if err := l.storeImpl.Clear(ctx); err != nil {
		return err
	}
	return l.storeImpl.fs.MkdirAll(nestedPutStageName, 0700)
}

func (l *localFSAtomic) Close() error {
	if err := l.storeImpl.fs.RemoveAll(nestedPutStageName); err != nil {
		return status.ErrStorage.Wrap(err)
	}
	return nil
}

// stageKey is a unique name in the staging area: concurrent puts of the same key never share a temp file
func stageKey(key string) string {
	return filepath.Join(nestedPutStageName, rand.TempName(filepath.Base(key)))
}

func (l *localFSAtomic) commit(staged, key string) error {
	if err := l.storeImpl.ensureParent(key); err != nil {
		_ = l.storeImpl.fs.Remove(staged)
		return err
	}
	if err := l.storeImpl.fs.Rename(staged, key); err != nil {
		_ = l.storeImpl.fs.Remove(staged)
		return status.ErrStorage.Wrapf("moving %q into place: %w", key, err)
	}
	return nil
}

func (l *localFSAtomic) Put(ctx context.Context, key string, source io.Reader, perm os.FileMode) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	key = toKey(key)
	staged := stageKey(key)
	if err := l.storeImpl.put(ctx, staged, source, perm); err != nil {
		return err
	}
	return l.commit(staged, key)
}

func (l *localFSAtomic) Symlink(ctx context.Context, key, target string) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	key = toKey(key)
	staged := stageKey(key)
	if err := l.storeImpl.symlink(ctx, staged, target); err != nil {
		return err
	}
	if fi, err := l.storeImpl.lstat(key); err == nil && fi.IsDir() {
		_ = l.storeImpl.fs.Remove(staged)
		return status.ErrExists.WithDetail(key)
	}
	return l.commit(staged, key)
}

func (l *localFSAtomic) String() string {
	return describe("localfs-atomic", l.storeImpl.fs)
}
