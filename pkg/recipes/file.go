package recipes

import (
	"io"

	"github.com/serpent-os/pisi/pkg/fingerprint"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// ParseIndex reads a YAML mapping of ids to recipe paths:
//
//	zlib: packages/z/zlib
//	xz: packages/x/xz
func ParseIndex(name string, r io.Reader) (*MapIndex, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrIndexUnavailable.Wrap(err)
	}
	return parseIndex(name, content)
}

func parseIndex(name string, content []byte) (*MapIndex, error) {
	entries := make(map[string]string)
	if err := yaml.Unmarshal(content, &entries); err != nil {
		return nil, ErrIndexUnavailable.Wrap(err)
	}
	idx := NewMapIndex(name, entries)
	// fingerprint the whole document, including entries which do not parse as ids
	idx.fingerprint = fingerprint.New().Bytes(content)
	return idx, nil
}

// LoadFileIndex reads a YAML recipe index from a file
func LoadFileIndex(fs afero.Fs, pth string) (*MapIndex, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	content, err := afero.ReadFile(fs, pth)
	if err != nil {
		return nil, ErrIndexUnavailable.Wrap(err)
	}
	return parseIndex("file@"+pth, content)
}
