// Package fingerprint computes the content hashes recorded for files and trees.
//
// Hashes are blake2b digests, rendered as lowercase hex.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strconv"

	units "github.com/docker/go-units"
	blake2b "github.com/minio/blake2b-simd"
	"github.com/serpent-os/pisi/pkg/model"
)

// DefaultSize is the digest size in bytes (blake2b-256)
const DefaultSize = 32

// Option for a Maker
type Option func(*Maker)

// Size sets the digest size, between 1 and 64 bytes
func Size(sz uint8) Option {
	return func(m *Maker) {
		m.size = sz
	}
}

// BufferSize sets the size of the copy buffer used when hashing files
func BufferSize(sz int) Option {
	return func(m *Maker) {
		m.bufferSize = sz
	}
}

// New hash maker
func New(opts ...Option) *Maker {
	m := &Maker{
		size:       DefaultSize,
		bufferSize: 256 * units.KiB,
	}

	for _, apply := range opts {
		apply(m)
	}
	return m
}

// Maker builds hashers with a fixed configuration.
type Maker struct {
	size       uint8
	bufferSize int
}

// NewHash returns a fresh blake2b hasher
func (m *Maker) NewHash() hash.Hash {
	h, err := blake2b.New(&blake2b.Config{Size: m.size})
	if err != nil {
		// only a digest size out of bounds fails here
		panic(fmt.Sprintf("fingerprint: invalid digest size %d: %v", m.size, err))
	}
	return h
}

// Bytes hashes an in-memory buffer
func (m *Maker) Bytes(b []byte) string {
	h := m.NewHash()
	_, _ = h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

// Process hashes the file at path
func (m *Maker) Process(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	return m.Stream(f)
}

// Stream hashes everything that can be read from r
func (m *Maker) Stream(r io.Reader) (string, error) {
	h := m.NewHash()
	if _, err := io.CopyBuffer(h, r, make([]byte, m.bufferSize)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Reader hashes everything read through it.
type Reader struct {
	r    io.Reader
	h    hash.Hash
	size int64
}

// NewReader wraps a reader with a hasher
func (m *Maker) NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: m.NewHash()}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		_, _ = r.h.Write(p[:n])
		r.size += int64(n)
	}
	return n, err
}

// Sum is the hex digest of what has been read so far
func (r *Reader) Sum() string {
	return hex.EncodeToString(r.h.Sum(nil))
}

// Size is the number of bytes read so far
func (r *Reader) Size() int64 {
	return r.size
}

// Tree fingerprints a file listing: paths, modes, link targets and content hashes.
//
// The result does not depend on the order of the entries.
func (m *Maker) Tree(entries []model.Entry) string {
	sorted := append(model.Entries(nil), entries...)
	sorted.Sort()

	h := m.NewHash()
	for _, e := range sorted {
		_, _ = io.WriteString(h, e.Path)
		_, _ = h.Write([]byte{0})
		_, _ = io.WriteString(h, e.Mode.String())
		_, _ = h.Write([]byte{0})
		_, _ = io.WriteString(h, strconv.FormatInt(e.Size, 10))
		_, _ = h.Write([]byte{0})
		_, _ = io.WriteString(h, e.LinkTarget)
		_, _ = h.Write([]byte{0})
		_, _ = io.WriteString(h, e.Hash)
		_, _ = h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Strings fingerprints a set of strings, e.g. the ids of a recipe snapshot
func (m *Maker) Strings(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)

	h := m.NewHash()
	for _, v := range sorted {
		_, _ = io.WriteString(h, v)
		_, _ = h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
