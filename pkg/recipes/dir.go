package recipes

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/serpent-os/pisi/pkg/fingerprint"
	"github.com/spf13/afero"
)

// RecipeFiles are the file names which mark a recipe directory
var RecipeFiles = []string{"stone.yml", "package.yml", "pspec.xml"}

// DirIndex scans a monorepo checkout: every directory holding a recipe file is a recipe,
// identified by the directory name.
//
// The scan happens once, on first use. Paths are relative to the root, slash separated.
type DirIndex struct {
	fs    afero.Fs
	root  string
	maker *fingerprint.Maker

	once        sync.Once
	entries     map[string]string
	fingerprint string
	err         error
}

// NewDirIndex builds an index over a monorepo checkout
func NewDirIndex(fs afero.Fs, root string) *DirIndex {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &DirIndex{fs: fs, root: root, maker: fingerprint.New()}
}

func isRecipeFile(name string) bool {
	for _, r := range RecipeFiles {
		if name == r {
			return true
		}
	}
	return false
}

func (d *DirIndex) scan(ctx context.Context) {
	d.entries = make(map[string]string)
	var stamps []string

	d.err = afero.Walk(d.fs, d.root, func(pth string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && pth != d.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !isRecipeFile(info.Name()) {
			return nil
		}

		dir := filepath.Dir(pth)
		rel, err := filepath.Rel(d.root, dir)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		id := path.Base(rel)
		sum, err := d.hashFile(pth)
		if err != nil {
			return err
		}
		stamps = append(stamps, rel+"/"+info.Name()+"\t"+sum)

		// the walk is lexical: the first recipe found for an id wins
		if _, found := d.entries[id]; !found && rel != "." {
			d.entries[id] = rel
		}
		return nil
	})
	if d.err != nil {
		d.err = ErrIndexUnavailable.Wrap(d.err)
		return
	}
	d.fingerprint = d.maker.Strings(stamps)
}

func (d *DirIndex) hashFile(pth string) (string, error) {
	f, err := d.fs.Open(pth)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()
	return d.maker.Stream(f)
}

func (d *DirIndex) load(ctx context.Context) error {
	d.once.Do(func() { d.scan(ctx) })
	return d.err
}

// Lookup an exact id
func (d *DirIndex) Lookup(ctx context.Context, id string) (string, bool, error) {
	if err := d.load(ctx); err != nil {
		return "", false, err
	}
	pth, ok := d.entries[id]
	return pth, ok, nil
}

// IDs found in the checkout
func (d *DirIndex) IDs(ctx context.Context) ([]string, error) {
	if err := d.load(ctx); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(d.entries))
	for id := range d.entries {
		ids = append(ids, id)
	}
	return ids, nil
}

// Fingerprint of the recipe files found: their paths and contents
func (d *DirIndex) Fingerprint(ctx context.Context) (string, error) {
	if err := d.load(ctx); err != nil {
		return "", err
	}
	return d.fingerprint, nil
}

func (d *DirIndex) String() string {
	return "dir@" + d.root
}
