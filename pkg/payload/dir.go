package payload

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/serpent-os/pisi/pkg/model"
	"github.com/spf13/afero"
)

// DirOption configures a DirSource
type DirOption func(*DirSource)

// Verify payloads against the hash published by the index
func Verify(enabled bool) DirOption {
	return func(d *DirSource) {
		d.verify = enabled
	}
}

// DirSource serves payloads from a local mirror of the repository.
//
// A payload is looked up at its PackageURI below the root, then by file name at the root
// for flat mirrors.
type DirSource struct {
	fs     afero.Fs
	root   string
	verify bool
}

// NewDirSource builds a source over a local mirror
func NewDirSource(fs afero.Fs, root string, opts ...DirOption) *DirSource {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	d := &DirSource{fs: fs, root: root}
	for _, apply := range opts {
		apply(d)
	}
	return d
}

func (d *DirSource) candidates(rec model.PackageRecord) []string {
	uri := path.Clean("/" + rec.PackageURI)
	return []string{
		filepath.Join(d.root, filepath.FromSlash(uri)),
		filepath.Join(d.root, rec.PayloadName()),
	}
}

// Open the payload of a package
func (d *DirSource) Open(ctx context.Context, rec model.PackageRecord) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, pth := range d.candidates(rec) {
		f, err := d.fs.Open(pth)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if fi.IsDir() {
			_ = f.Close()
			continue
		}
		if d.verify {
			if err := verify(ctx, f, fi.Size(), rec.PackageHash); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
		return &filePayload{ReaderAt: f, Closer: f, size: fi.Size(), name: rec.PayloadName()}, nil
	}
	return nil, ErrNotFound.WithDetail(rec.PackageURI)
}

func (d *DirSource) String() string {
	return "dir@" + d.root
}
