// Package eopkgtest builds eopkg archives for tests.
package eopkgtest

import (
	"archive/tar"
	"bytes"
	"crypto/sha1" // #nosec
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

// File is an entry of the install payload. Exactly one of Body, Link, HardLink or Dir is meaningful.
type File struct {
	Path     string
	Body     string
	Mode     int64
	Link     string
	HardLink string
	Dir      bool
}

// Reg is a regular file
func Reg(pth, body string) File {
	return File{Path: pth, Body: body, Mode: 0644}
}

// Exec is an executable file
func Exec(pth, body string) File {
	return File{Path: pth, Body: body, Mode: 0755}
}

// Symlink entry
func Symlink(pth, target string) File {
	return File{Path: pth, Link: target}
}

// Dir entry
func Dir(pth string) File {
	return File{Path: pth, Dir: true, Mode: 0755}
}

// Archive describes an eopkg file
type Archive struct {
	Name  string
	Files []File

	// Declared overrides the generated files.xml
	Declared []model.DeclaredFile

	Zstd       bool
	NoPayload  bool
	NoFileList bool

	// Truncate cuts the compressed payload to this many bytes
	Truncate int
}

// SHA1 of a string, hex encoded
func SHA1(s string) string {
	sum := sha1.Sum([]byte(s)) // #nosec
	return hex.EncodeToString(sum[:])
}

// Declare computes the file list of a set of payload entries
func Declare(files []File) []model.DeclaredFile {
	var res []model.DeclaredFile
	for _, f := range files {
		if f.Dir {
			continue
		}
		d := model.DeclaredFile{Path: "/" + strings.TrimPrefix(f.Path, "/")}
		if f.Link == "" && f.HardLink == "" {
			d.Size = int64(len(f.Body))
			d.Hash = SHA1(f.Body)
		}
		res = append(res, d)
	}
	return res
}

func (a Archive) tarball(t testing.TB) []byte {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range a.Files {
		hdr := &tar.Header{Name: strings.TrimPrefix(f.Path, "/"), Mode: f.Mode}
		switch {
		case f.Dir:
			hdr.Typeflag = tar.TypeDir
			hdr.Name += "/"
		case f.Link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = f.Link
			hdr.Mode = 0777
		case f.HardLink != "":
			hdr.Typeflag = tar.TypeLink
			hdr.Linkname = strings.TrimPrefix(f.HardLink, "/")
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(f.Body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(f.Body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func (a Archive) compressed(t testing.TB) []byte {
	raw := a.tarball(t)
	var buf bytes.Buffer
	if a.Zstd {
		zw, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		_, err = zw.Write(raw)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
	} else {
		xw, err := xz.NewWriter(&buf)
		require.NoError(t, err)
		_, err = xw.Write(raw)
		require.NoError(t, err)
		require.NoError(t, xw.Close())
	}
	out := buf.Bytes()
	if a.Truncate > 0 && a.Truncate < len(out) {
		out = out[:a.Truncate]
	}
	return out
}

func filesXML(declared []model.DeclaredFile) string {
	var b strings.Builder
	b.WriteString("<Files>\n")
	for _, d := range declared {
		fmt.Fprintf(&b, "  <File>\n    <Path>%s</Path>\n    <Type>data</Type>\n    <Size>%d</Size>\n    <Hash>%s</Hash>\n  </File>\n",
			strings.TrimPrefix(d.Path, "/"), d.Size, d.Hash)
	}
	b.WriteString("</Files>\n")
	return b.String()
}

// Bytes of the eopkg archive
func (a Archive) Bytes(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, content []byte) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}

	add("metadata.xml", []byte(fmt.Sprintf("<PISI>\n  <Package>\n    <Name>%s</Name>\n  </Package>\n</PISI>\n", a.Name)))
	if !a.NoFileList {
		declared := a.Declared
		if declared == nil {
			declared = Declare(a.Files)
		}
		add("files.xml", []byte(filesXML(declared)))
	}
	if !a.NoPayload {
		name := "install.tar.xz"
		if a.Zstd {
			name = "install.tar.zst"
		}
		add(name, a.compressed(t))
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// Write the archive to dir/name, returning its path
func (a Archive) Write(t testing.TB, dir, name string) string {
	t.Helper()
	pth := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(pth), 0755))
	require.NoError(t, os.WriteFile(pth, a.Bytes(t), 0644))
	return pth
}
