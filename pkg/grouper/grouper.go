// Package grouper partitions the package records of an index into source units.
package grouper

import (
	iradix "github.com/hashicorp/go-immutable-radix/v2"
	"github.com/serpent-os/pisi/pkg/model"
)

// Groups is an immutable, sorted mapping from source unit id to source unit.
type Groups struct {
	tree       *iradix.Tree[*model.SourceUnit]
	duplicates []model.PackageRecord
}

// Group records by source unit id.
//
// Records which do not declare a source unit become a singleton unit named after the package.
// When several records share a package name, the first one wins: the others are reported by Duplicates.
func Group(records []model.PackageRecord) *Groups {
	var (
		members    = make(map[string][]model.PackageRecord)
		seen       = make(map[string]struct{}, len(records))
		duplicates []model.PackageRecord
	)

	for _, rec := range records {
		if _, ok := seen[rec.Name]; ok {
			duplicates = append(duplicates, rec)
			continue
		}
		seen[rec.Name] = struct{}{}
		id := rec.SourceID()
		members[id] = append(members[id], rec)
	}

	txn := iradix.New[*model.SourceUnit]().Txn()
	for id, recs := range members {
		txn.Insert([]byte(id), model.NewSourceUnit(id, recs...))
	}

	return &Groups{
		tree:       txn.Commit(),
		duplicates: duplicates,
	}
}

// Len is the number of source units
func (g *Groups) Len() int {
	return g.tree.Len()
}

// Get a source unit by id
func (g *Groups) Get(id string) (*model.SourceUnit, bool) {
	return g.tree.Get([]byte(id))
}

// Walk source units in key order, until fn returns true
func (g *Groups) Walk(fn func(*model.SourceUnit) bool) {
	g.tree.Root().Walk(func(_ []byte, u *model.SourceUnit) bool {
		return fn(u)
	})
}

// Keys of all source units, sorted
func (g *Groups) Keys() []string {
	keys := make([]string, 0, g.Len())
	g.Walk(func(u *model.SourceUnit) bool {
		keys = append(keys, u.ID)
		return false
	})
	return keys
}

// Units sorted by key
func (g *Groups) Units() []*model.SourceUnit {
	units := make([]*model.SourceUnit, 0, g.Len())
	g.Walk(func(u *model.SourceUnit) bool {
		units = append(units, u)
		return false
	})
	return units
}

// Duplicates are the records dropped because their package name was already taken
func (g *Groups) Duplicates() []model.PackageRecord {
	return g.duplicates
}
