package recipes

import (
	"context"
	"sort"

	"github.com/serpent-os/pisi/pkg/fingerprint"
)

// MapIndex is an in-memory index
type MapIndex struct {
	name        string
	entries     map[string]string
	fingerprint string
}

// NewMapIndex builds an index from an id to path mapping
func NewMapIndex(name string, entries map[string]string) *MapIndex {
	copied := make(map[string]string, len(entries))
	pairs := make([]string, 0, len(entries))
	for id, pth := range entries {
		copied[id] = pth
		pairs = append(pairs, id+"\t"+pth)
	}
	return &MapIndex{
		name:        name,
		entries:     copied,
		fingerprint: fingerprint.New().Strings(pairs),
	}
}

// Lookup an exact id
func (m *MapIndex) Lookup(_ context.Context, id string) (string, bool, error) {
	pth, ok := m.entries[id]
	return pth, ok, nil
}

// IDs sorted
func (m *MapIndex) IDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Fingerprint of the content of the mapping
func (m *MapIndex) Fingerprint(_ context.Context) (string, error) {
	return m.fingerprint, nil
}

func (m *MapIndex) String() string {
	if m.name == "" {
		return "map"
	}
	return m.name
}
