package archive

import (
	"archive/tar"
	"context"
	"crypto/sha1" //nolint:gosec // eopkg file lists carry sha1 digests
	"encoding/hex"
	"io"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/serpent-os/pisi/pkg/archive/status"
	"github.com/serpent-os/pisi/pkg/fingerprint"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/serpent-os/pisi/pkg/storage"
)

// extraction holds the state of a single payload being unpacked
type extraction struct {
	maker   *fingerprint.Maker
	pkg     string
	store   storage.Store
	entries map[string]model.Entry
	sha1s   map[string]string
	dirs    map[string]struct{}
	links   map[string]struct{}
	skipped []model.IntegrityWarning
	bytes   int64
}

func newExtraction(maker *fingerprint.Maker, pkg string, store storage.Store) *extraction {
	return &extraction{
		maker:   maker,
		pkg:     pkg,
		store:   store,
		entries: make(map[string]model.Entry),
		sha1s:   make(map[string]string),
		dirs:    make(map[string]struct{}),
		links:   make(map[string]struct{}),
	}
}

// streamReader remembers failures on the read side of the payload
type streamReader struct {
	r   io.Reader
	err error
}

func (s *streamReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

func (ex *extraction) run(ctx context.Context, f *zip.File) error {
	stream, closer, err := payloadStream(f)
	if err != nil {
		return classify(ctx, err)
	}
	defer closer()

	sr := &streamReader{r: storage.ContextReader(ctx, stream)}
	tr := tar.NewReader(sr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return classify(ctx, err)
		}
		if err = ex.entry(ctx, tr, hdr); err != nil {
			if sr.err != nil || ctx.Err() != nil {
				return classify(ctx, err)
			}
			return err
		}
	}
}

func (ex *extraction) entry(ctx context.Context, tr io.Reader, hdr *tar.Header) error {
	name, ok := model.CleanEntryPath(hdr.Name)
	if !ok {
		return status.ErrPathEscape.WithDetail(hdr.Name)
	}
	if name == "" {
		return nil
	}
	if parent := ex.throughSymlink(name); parent != "" {
		return status.ErrPathEscape.WithDetail(hdr.Name).Wrapf("parent %s is a symlink", parent)
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if _, isLink := ex.links[name]; isLink {
			return status.ErrPathEscape.WithDetail(hdr.Name).Wrapf("directory over symlink")
		}
		if err := ex.store.Mkdir(ctx, name, hdr.FileInfo().Mode()&model.ModeBits); err != nil {
			return err
		}
		ex.dirs[name] = struct{}{}
	case tar.TypeReg:
		return ex.file(ctx, name, tr, hdr.FileInfo().Mode()&model.ModeBits)
	case tar.TypeSymlink:
		return ex.symlink(ctx, name, hdr.Linkname)
	case tar.TypeLink:
		return ex.hardlink(ctx, name, hdr)
	default:
		ex.skipped = append(ex.skipped, model.IntegrityWarning{
			Package: ex.pkg,
			Path:    name,
			Reason:  "unsupported entry type " + strconv.Itoa(int(hdr.Typeflag)),
		})
	}
	return nil
}

// throughSymlink returns the first parent of name which was extracted as a symlink
func (ex *extraction) throughSymlink(name string) string {
	if len(ex.links) == 0 {
		return ""
	}
	for i := 1; i < len(name); i++ {
		if name[i] != '/' {
			continue
		}
		if _, ok := ex.links[name[:i]]; ok {
			return name[:i]
		}
	}
	return ""
}

func (ex *extraction) file(ctx context.Context, name string, r io.Reader, perm os.FileMode) error {
	digest := sha1.New() //nolint:gosec
	content := ex.maker.NewReader(io.TeeReader(r, digest))
	if err := ex.store.Put(ctx, name, content, perm); err != nil {
		return err
	}
	delete(ex.links, name)
	ex.entries[name] = model.Entry{
		Path: name,
		Hash: content.Sum(),
		Mode: model.FileMode(perm),
		Size: content.Size(),
	}
	ex.sha1s[name] = hex.EncodeToString(digest.Sum(nil))
	ex.bytes += content.Size()
	return nil
}

func (ex *extraction) symlink(ctx context.Context, name, target string) error {
	if err := ex.store.Symlink(ctx, name, target); err != nil {
		return err
	}
	ex.links[name] = struct{}{}
	delete(ex.sha1s, name)
	ex.entries[name] = model.Entry{
		Path:       name,
		Hash:       ex.maker.Bytes([]byte(target)),
		Mode:       model.FileMode(os.ModeSymlink | 0777),
		LinkTarget: target,
	}
	return nil
}

// hardlink duplicates the content of a regular file extracted earlier in the stream
func (ex *extraction) hardlink(ctx context.Context, name string, hdr *tar.Header) error {
	target, ok := model.CleanEntryPath(hdr.Linkname)
	if !ok {
		return status.ErrPathEscape.WithDetail(hdr.Linkname)
	}
	original, found := ex.entries[target]
	if !found || original.IsSymlink() {
		return status.ErrCorruptArchive.Wrapf("hard link %s to unknown file %s", name, hdr.Linkname)
	}
	rc, err := ex.store.Get(ctx, target)
	if err != nil {
		return err
	}
	defer func() {
		_ = rc.Close()
	}()
	if err = ex.store.Put(ctx, name, rc, original.Mode.Bits()); err != nil {
		return err
	}
	delete(ex.links, name)
	original.Path = name
	ex.entries[name] = original
	ex.sha1s[name] = ex.sha1s[target]
	ex.bytes += original.Size
	return nil
}

func (ex *extraction) listing() model.Entries {
	res := make(model.Entries, 0, len(ex.entries))
	for _, e := range ex.entries {
		res = append(res, e)
	}
	res.Sort()
	return res
}

// directories lists the explicit directory entries which are not parents of some file
func (ex *extraction) directories() []string {
	parents := make(map[string]struct{}, len(ex.entries))
	for name := range ex.entries {
		for dir := path.Dir(name); dir != "/"; dir = path.Dir(dir) {
			if _, seen := parents[dir]; seen {
				break
			}
			parents[dir] = struct{}{}
		}
	}
	var res []string
	for dir := range ex.dirs {
		if _, isParent := parents[dir]; isParent {
			continue
		}
		if _, replaced := ex.entries[dir]; replaced {
			continue
		}
		res = append(res, dir)
	}
	sort.Strings(res)
	return res
}

// check compares the extracted tree with the declared file list
func (ex *extraction) check(declared []model.DeclaredFile) []model.IntegrityWarning {
	var warnings []model.IntegrityWarning
	warn := func(pth, reason string) {
		warnings = append(warnings, model.IntegrityWarning{Package: ex.pkg, Path: pth, Reason: reason})
	}

	seen := make(map[string]struct{}, len(declared))
	for _, d := range declared {
		name, ok := model.CleanEntryPath(d.Path)
		if !ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		actual, found := ex.entries[name]
		switch {
		case !found:
			warn(name, model.WarnMissing)
		case actual.IsSymlink():
		case d.Size > 0 && d.Size != actual.Size:
			warn(name, model.WarnSizeMismatch)
		case d.Hash != "" && !strings.EqualFold(d.Hash, ex.sha1s[name]):
			warn(name, model.WarnHashMismatch)
		}
	}
	for name := range ex.entries {
		if _, ok := seen[name]; !ok {
			warn(name, model.WarnUndeclared)
		}
	}
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Path < warnings[j].Path })
	return warnings
}

