// Package payload opens the eopkg archives referenced by the index.
package payload

import (
	"context"
	"crypto/sha1" // #nosec: eopkg indices publish sha1 digests
	"encoding/hex"
	"hash"
	"io"
	"strings"

	"github.com/serpent-os/pisi/pkg/errors"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/serpent-os/pisi/pkg/storage"
)

var (
	// ErrNotFound is returned when the payload of a package is not available
	ErrNotFound = errors.New("payload not found")

	// ErrChecksum is returned when the payload does not match the hash published by the index
	ErrChecksum = errors.New("payload checksum mismatch")

	// ErrFetch is returned when the payload cannot be downloaded
	ErrFetch = errors.New("payload download failed")
)

// Payload is an opened eopkg archive
type Payload interface {
	io.ReaderAt
	io.Closer
	Size() int64
	Name() string
}

// Source locates and opens payloads
type Source interface {
	Open(context.Context, model.PackageRecord) (Payload, error)
	String() string
}

type filePayload struct {
	io.ReaderAt
	io.Closer
	size int64
	name string
}

func (f *filePayload) Size() int64 {
	return f.size
}

func (f *filePayload) Name() string {
	return f.name
}

func newHasher() hash.Hash {
	return sha1.New() // #nosec
}

// checksum compares a digest with the expected hex value, if any
func checksum(h hash.Hash, expected string) error {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" {
		return nil
	}
	if actual := hex.EncodeToString(h.Sum(nil)); actual != expected {
		return ErrChecksum.Wrapf("expected %s, got %s", expected, actual)
	}
	return nil
}

// verify reads a whole payload through the hasher
func verify(ctx context.Context, r io.ReaderAt, size int64, expected string) error {
	if strings.TrimSpace(expected) == "" {
		return nil
	}
	h := newHasher()
	if _, err := io.Copy(h, storage.ContextReader(ctx, io.NewSectionReader(r, 0, size))); err != nil {
		return err
	}
	return checksum(h, expected)
}

// verifyingReader fails at EOF when the content does not match the expected hash,
// so that a store never commits a corrupt download
type verifyingReader struct {
	r        io.Reader
	h        hash.Hash
	expected string
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	if n > 0 {
		_, _ = v.h.Write(p[:n])
	}
	if err == io.EOF {
		if cerr := checksum(v.h, v.expected); cerr != nil {
			return n, cerr
		}
	}
	return n, err
}
