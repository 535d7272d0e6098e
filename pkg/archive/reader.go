package archive

import (
	"archive/tar"
	"context"
	"encoding/xml"
	"io"
	"os"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/serpent-os/pisi/pkg/archive/status"
	"github.com/serpent-os/pisi/pkg/errors"
	"github.com/serpent-os/pisi/pkg/fingerprint"
	"github.com/serpent-os/pisi/pkg/index"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/serpent-os/pisi/pkg/storage/localfs"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"
	"go.uber.org/zap"
)

const (
	metadataFile = "metadata.xml"
	filesFile    = "files.xml"
	payloadXZ    = "install.tar.xz"
	payloadZstd  = "install.tar.zst"
)

// Reader extracts eopkg archives. It is safe for concurrent use.
type Reader struct {
	maker     *fingerprint.Maker
	l         *zap.Logger
	timeout   time.Duration
	integrity bool
}

// New archive reader
func New(opts ...Option) *Reader {
	r := &Reader{
		maker:     fingerprint.New(),
		l:         zap.NewNop(),
		integrity: true,
	}
	for _, apply := range opts {
		apply(r)
	}
	return r
}

type members struct {
	metadata, files, install *zip.File
}

func locate(zr *zip.Reader) members {
	var m members
	for _, f := range zr.File {
		switch f.Name {
		case metadataFile:
			m.metadata = f
		case filesFile:
			m.files = f
		case payloadXZ, payloadZstd:
			if m.install == nil {
				m.install = f
			}
		}
	}
	return m
}

// Extract the payload of a package under root.
//
// Any previous content of root is removed first. On error, root may hold a partial
// extraction: the caller owns its cleanup.
func (r *Reader) Extract(ctx context.Context, rec model.PackageRecord, payload io.ReaderAt, size int64, root string) (*model.StagingTree, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()

	zr, err := zip.NewReader(payload, size)
	if err != nil {
		return nil, status.ErrCorruptArchive.Wrap(err)
	}
	m := locate(zr)
	if m.install == nil {
		return nil, status.ErrMissingPayload.WithDetail(rec.PayloadName())
	}

	tree := &model.StagingTree{Package: rec.Name, Root: root}
	if m.metadata != nil {
		if name, err := readMetadataName(m.metadata); err == nil && name != "" && name != rec.Name {
			tree.Warnings = append(tree.Warnings, model.IntegrityWarning{
				Package: rec.Name, Path: metadataFile, Reason: "archive describes package " + name,
			})
		}
	}
	declared := rec.Files
	if len(declared) == 0 && m.files != nil {
		declared, err = readDeclared(m.files)
		if err != nil {
			tree.Warnings = append(tree.Warnings, model.IntegrityWarning{
				Package: rec.Name, Path: filesFile, Reason: "unreadable file list: " + err.Error(),
			})
		}
	}

	if err = os.RemoveAll(root); err != nil {
		return nil, err
	}
	if err = os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	store, err := localfs.NewAtomic(afero.NewBasePathFs(afero.NewOsFs(), root))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = store.Close()
	}()

	ex := newExtraction(r.maker, rec.Name, store)
	if err = ex.run(ctx, m.install); err != nil {
		r.l.Debug("extraction failed", zap.String("package", rec.Name), zap.Error(err))
		return nil, err
	}

	tree.Entries = ex.listing()
	tree.Dirs = ex.directories()
	tree.Warnings = append(tree.Warnings, ex.skipped...)
	if r.integrity && len(declared) > 0 {
		tree.Warnings = append(tree.Warnings, ex.check(declared)...)
	}

	r.l.Debug("extracted package",
		zap.String("package", rec.Name),
		zap.Int("files", len(tree.Entries)),
		zap.String("size", units.HumanSize(float64(ex.bytes))),
		zap.Int("warnings", len(tree.Warnings)),
		zap.Duration("duration", time.Since(start)),
	)
	return tree, nil
}

// classify an error raised while reading the payload stream
func classify(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		if errors.Is(cerr, context.DeadlineExceeded) {
			return status.ErrExtractTimeout.Wrap(cerr)
		}
		return cerr
	}
	if errors.Is(err, status.ErrPathEscape) {
		return err
	}
	return status.ErrCorruptArchive.Wrap(err)
}

// payloadStream opens the decompressed tar stream of the install payload
func payloadStream(f *zip.File) (io.Reader, func(), error) {
	rc, err := f.Open()
	if err != nil {
		return nil, nil, err
	}
	if strings.HasSuffix(f.Name, ".zst") {
		zr, err := zstd.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, nil, err
		}
		return zr, func() { zr.Close(); _ = rc.Close() }, nil
	}
	xr, err := xz.NewReader(rc)
	if err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	return xr, func() { _ = rc.Close() }, nil
}

type xmlMetadata struct {
	Package struct {
		Name string `xml:"Name"`
	} `xml:"Package"`
}

func readMetadataName(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer func() {
		_ = rc.Close()
	}()
	var meta xmlMetadata
	if err := xml.NewDecoder(rc).Decode(&meta); err != nil {
		return "", err
	}
	return strings.TrimSpace(meta.Package.Name), nil
}

func readDeclared(f *zip.File) ([]model.DeclaredFile, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()
	return index.ParseFiles(rc)
}

// OpenTar exposes the decompressed payload of an archive as a tar stream, e.g. to list it
func OpenTar(payload io.ReaderAt, size int64) (*tar.Reader, func(), error) {
	zr, err := zip.NewReader(payload, size)
	if err != nil {
		return nil, nil, status.ErrCorruptArchive.Wrap(err)
	}
	m := locate(zr)
	if m.install == nil {
		return nil, nil, status.ErrMissingPayload
	}
	stream, closer, err := payloadStream(m.install)
	if err != nil {
		return nil, nil, status.ErrCorruptArchive.Wrap(err)
	}
	return tar.NewReader(stream), closer, nil
}
