package manifest

import (
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/serpent-os/pisi/pkg/model"
)

// dir is a directory of the import tree
type dir struct {
	path     string
	parent   *dir
	files    []model.OwnedEntry
	children map[string]*dir
	owners   map[string]struct{} // owners of all files below, recursively
	empty    bool                // explicitly shipped, without content
}

func newDir(pth string, parent *dir) *dir {
	return &dir{path: pth, parent: parent, children: make(map[string]*dir), owners: make(map[string]struct{})}
}

func newTrie(tree *model.ImportTree) *dir {
	root := newDir("/", nil)
	lookup := func(pth string) *dir {
		current := root
		if pth == "/" {
			return current
		}
		for _, part := range strings.Split(strings.TrimPrefix(pth, "/"), "/") {
			child, ok := current.children[part]
			if !ok {
				child = newDir(path.Join(current.path, part), current)
				current.children[part] = child
			}
			current = child
		}
		return current
	}
	for _, e := range tree.Entries {
		parent := lookup(path.Dir(e.Path))
		parent.files = append(parent.files, e)
		for d := parent; d != nil; d = d.parent {
			d.owners[e.Owner] = struct{}{}
		}
	}
	explicit := make([]*dir, 0, len(tree.Dirs))
	for _, pth := range tree.Dirs {
		explicit = append(explicit, lookup(pth))
	}
	for _, d := range explicit {
		d.empty = len(d.files) == 0 && len(d.children) == 0
	}
	return root
}

func (d *dir) sortedChildren() []*dir {
	res := make([]*dir, 0, len(d.children))
	for _, child := range d.children {
		res = append(res, child)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].path < res[j].path })
	return res
}

// escape glob meta characters of a literal path
func escape(pth string) string {
	var b strings.Builder
	for _, r := range pth {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (e *Emitter) shareable(pth string) bool {
	for _, p := range e.shared {
		if ok, _ := doublestar.Match(p, pth); ok {
			return false
		}
	}
	return true
}

// collapse computes the sorted globs covering the files whose owner is accepted.
//
// A directory becomes a single "dir/**" glob when all the files below it are accepted,
// it is not a shared system directory and no other unit declares files below it.
// Explicit empty directories are listed when withDirs is set.
func (e *Emitter) collapse(root *dir, unit string, accept func(string) bool, withDirs bool) []string {
	res := []string{}
	var visit func(*dir)
	visit = func(d *dir) {
		if d.empty {
			if withDirs {
				res = append(res, escape(d.path))
			}
			return
		}
		all, some := true, false
		for owner := range d.owners {
			if accept(owner) {
				some = true
			} else {
				all = false
			}
		}
		if !some && !(withDirs && len(d.owners) == 0) {
			return
		}
		if all && some && d.path != "/" && e.shareable(d.path) && !e.owners.Foreign(d.path, unit) {
			res = append(res, escape(d.path)+"/**")
			return
		}
		for _, f := range d.files {
			if accept(f.Owner) {
				res = append(res, escape(f.Path))
			}
		}
		for _, child := range d.sortedChildren() {
			visit(child)
		}
	}
	visit(root)
	sort.Strings(res)
	return res
}
