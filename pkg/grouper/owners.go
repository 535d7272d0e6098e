package grouper

import (
	"sort"
	"strings"

	iradix "github.com/hashicorp/go-immutable-radix/v2"
	"github.com/serpent-os/pisi/pkg/model"
)

// OwnerIndex maps every path declared in the index to the source units declaring it.
//
// It lets the manifest emitter tell when a directory glob would also match files
// shipped by another unit.
type OwnerIndex struct {
	tree *iradix.Tree[[]string]
}

// NewOwnerIndex builds the index from the declared files of all records
func NewOwnerIndex(records []model.PackageRecord) *OwnerIndex {
	txn := iradix.New[[]string]().Txn()
	for _, rec := range records {
		id := rec.SourceID()
		for _, f := range rec.Files {
			key := []byte(f.Path)
			owners, _ := txn.Get(key)
			txn.Insert(key, addOwner(owners, id))
		}
	}
	return &OwnerIndex{tree: txn.Commit()}
}

// addOwner never mutates the slice held by the tree
func addOwner(owners []string, id string) []string {
	i := sort.SearchStrings(owners, id)
	if i < len(owners) && owners[i] == id {
		return owners
	}
	res := make([]string, 0, len(owners)+1)
	res = append(res, owners[:i]...)
	res = append(res, id)
	return append(res, owners[i:]...)
}

// Owners of a path
func (o *OwnerIndex) Owners(pth string) []string {
	if o == nil {
		return nil
	}
	owners, _ := o.tree.Get([]byte(pth))
	return owners
}

// Len is the number of declared paths
func (o *OwnerIndex) Len() int {
	if o == nil {
		return 0
	}
	return o.tree.Len()
}

// Foreign tells if some path below dir is declared by a unit other than unit
func (o *OwnerIndex) Foreign(dir, unit string) bool {
	if o == nil {
		return false
	}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	found := false
	o.tree.Root().WalkPrefix([]byte(prefix), func(_ []byte, owners []string) bool {
		for _, owner := range owners {
			if owner != unit {
				found = true
				return true
			}
		}
		return false
	})
	return found
}
