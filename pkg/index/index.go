package index

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/serpent-os/pisi/pkg/storage"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

var (
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Distribution describes the repository the index was built for
type Distribution struct {
	Name      string   `yaml:"name,omitempty"`
	Version   string   `yaml:"version,omitempty"`
	Type      string   `yaml:"type,omitempty"`
	Obsoletes []string `yaml:"obsoletes,omitempty"`
}

// Document is a loaded index.
type Document struct {
	Distribution Distribution          `yaml:"distribution"`
	Records      []model.PackageRecord `yaml:"packages"`

	// Skipped aggregates the *ParseError of every skipped record
	Skipped error `yaml:"-"`
}

// ParseErrors lists the records that were skipped
func (d *Document) ParseErrors() []error {
	return multierr.Errors(d.Skipped)
}

// IsObsolete tells if the distribution declares a package obsolete
func (d *Document) IsObsolete(name string) bool {
	for _, o := range d.Distribution.Obsoletes {
		if o == name {
			return true
		}
	}
	return false
}

// Open loads an index file
func Open(ctx context.Context, fs afero.Fs, pth string) (*Document, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f, err := fs.Open(pth)
	if err != nil {
		return nil, ErrUnreadable.Wrap(err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Load(ctx, f)
}

// Load reads an index document: XML or YAML, plain, xz or zstd compressed.
//
// Invalid records are skipped and reported in Document.Skipped. An error is only returned
// when the document as a whole cannot be read.
func Load(ctx context.Context, r io.Reader) (*Document, error) {
	plain, closer, err := decompress(bufio.NewReader(r))
	if err != nil {
		return nil, ErrUnreadable.Wrap(err)
	}
	defer closer()

	br := bufio.NewReader(storage.ContextReader(ctx, plain))
	doc := &Document{}
	collect := func(position int, rec model.PackageRecord, err error) {
		if err == nil {
			err = rec.Validate()
		}
		if err != nil {
			doc.Skipped = multierr.Append(doc.Skipped, &ParseError{Position: position, Name: rec.Name, Err: ErrInvalidRecord.Wrap(err)})
			return
		}
		doc.Records = append(doc.Records, rec)
	}

	if isXML(br) {
		err = decodeXML(br, doc, collect)
	} else {
		err = decodeYAML(br, doc, collect)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrUnreadable.Wrap(err)
	}
	return doc, nil
}

func decompress(br *bufio.Reader) (io.Reader, func(), error) {
	noop := func() {}
	magic, _ := br.Peek(len(xzMagic))
	switch {
	case bytes.HasPrefix(magic, xzMagic):
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, noop, err
		}
		return xr, noop, nil
	case bytes.HasPrefix(magic, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, noop, err
		}
		return zr, zr.Close, nil
	default:
		return br, noop, nil
	}
}

// isXML peeks at the first significant byte of the document
func isXML(br *bufio.Reader) bool {
	for i := 1; ; i++ {
		b, err := br.Peek(i)
		if err != nil {
			return false
		}
		switch c := b[i-1]; c {
		case ' ', '\t', '\r', '\n':
			continue
		case 0xef, 0xbb, 0xbf: // utf-8 byte order mark
			continue
		default:
			return c == '<'
		}
	}
}

// yamlRecord keeps the decoding error of a single record instead of failing the document
type yamlRecord struct {
	rec model.PackageRecord
	err error
}

func (y *yamlRecord) UnmarshalYAML(unmarshal func(interface{}) error) error {
	y.err = unmarshal(&y.rec)
	return nil
}

func decodeYAML(r io.Reader, doc *Document, collect func(int, model.PackageRecord, error)) error {
	var raw struct {
		Distribution Distribution `yaml:"distribution"`
		Records      []yamlRecord `yaml:"packages"`
	}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return err
	}
	doc.Distribution = raw.Distribution
	for i, y := range raw.Records {
		rec := y.rec
		for j, f := range rec.Files {
			if pth, ok := model.CleanEntryPath(f.Path); ok {
				rec.Files[j].Path = pth
			}
		}
		collect(i+1, rec, y.err)
	}
	return nil
}

// Write renders a document as YAML
func Write(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
