package model

import (
	"os"
	"sort"
)

// Entry is a file materialized on disk, as found in a staging or import tree.
//
// Path is slash separated and rooted at the install root, e.g. /usr/bin/zlib-flate.
type Entry struct {
	Path       string   `json:"path" yaml:"path"`
	Hash       string   `json:"hash" yaml:"hash"`
	Mode       FileMode `json:"mode" yaml:"mode"`
	Size       int64    `json:"size" yaml:"size"`
	LinkTarget string   `json:"link,omitempty" yaml:"link,omitempty"`
	_          struct{}
}

// IsSymlink tells if the entry is a symbolic link
func (e Entry) IsSymlink() bool {
	return os.FileMode(e.Mode)&os.ModeSymlink != 0
}

// Entries represent a collection of entries
type Entries []Entry

// Sort entries by path
func (entries Entries) Sort() {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}

// Paths of the entries, in their current order
func (entries Entries) Paths() []string {
	res := make([]string, 0, len(entries))
	for _, e := range entries {
		res = append(res, e.Path)
	}
	return res
}

// IntegrityWarning reports a mismatch between the declared file list of a package and
// the actual content of its payload. Warnings never block a conversion.
type IntegrityWarning struct {
	Package string `json:"package" yaml:"package"`
	Path    string `json:"path" yaml:"path"`
	Reason  string `json:"reason" yaml:"reason"`
	_       struct{}
}

func (w IntegrityWarning) String() string {
	return w.Package + ": " + w.Path + ": " + w.Reason
}

// Integrity warning reasons
const (
	WarnMissing      = "declared but not in payload"
	WarnUndeclared   = "in payload but not declared"
	WarnSizeMismatch = "size mismatch"
	WarnHashMismatch = "checksum mismatch"
)

// StagingTree is the extracted payload of a single package.
type StagingTree struct {
	Package  string             `json:"package" yaml:"package"`
	Root     string             `json:"root" yaml:"root"`
	Entries  Entries            `json:"entries" yaml:"entries"`
	Dirs     []string           `json:"dirs,omitempty" yaml:"dirs,omitempty"`
	Warnings []IntegrityWarning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	_        struct{}
}

// OwnedEntry is an entry of an import tree, with the package that provided it
type OwnedEntry struct {
	Entry `json:",inline" yaml:",inline"`
	Owner string `json:"owner" yaml:"owner"`
}

// ImportTree is the merged, canonical file tree of a source unit.
type ImportTree struct {
	Unit    string       `json:"unit" yaml:"unit"`
	Root    string       `json:"root" yaml:"root"`
	Entries []OwnedEntry `json:"entries" yaml:"entries"`
	Dirs    []string     `json:"dirs,omitempty" yaml:"dirs,omitempty"`
	_       struct{}
}

// Paths of all files in the tree, sorted
func (t *ImportTree) Paths() []string {
	res := make([]string, 0, len(t.Entries))
	for _, e := range t.Entries {
		res = append(res, e.Path)
	}
	sort.Strings(res)
	return res
}

// Owners maps every path to its owning package
func (t *ImportTree) Owners() map[string]string {
	res := make(map[string]string, len(t.Entries))
	for _, e := range t.Entries {
		res[e.Path] = e.Owner
	}
	return res
}

// OwnedBy lists the sorted paths owned by some package
func (t *ImportTree) OwnedBy(pkg string) []string {
	var res []string
	for _, e := range t.Entries {
		if e.Owner == pkg {
			res = append(res, e.Path)
		}
	}
	sort.Strings(res)
	return res
}

// Size is the total size in bytes of the files in the tree
func (t *ImportTree) Size() int64 {
	var total int64
	for _, e := range t.Entries {
		total += e.Size
	}
	return total
}
