// Package filter selects the source units in scope for a run.
//
// Patterns are doublestar globs over source unit ids, e.g. "python-*" or "{zlib,xz}".
// A unit is in scope when it matches at least one include pattern (all units do
// when no include pattern is given) and no exclude pattern.
package filter

import (
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/serpent-os/pisi/pkg/model"
)

// PreconditionError reports an invalid filter, detected before any work starts.
type PreconditionError struct {
	Pattern string
	Err     error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("invalid selection pattern %q: %v", e.Pattern, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// Filter is a compiled, immutable selection filter.
type Filter struct {
	include []string
	exclude []string
	extra   map[string]struct{}
	closure bool
}

// New validates the patterns and builds a filter
func New(include, exclude []string) (*Filter, error) {
	for _, patterns := range [][]string{include, exclude} {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				return nil, &PreconditionError{Pattern: p, Err: doublestar.ErrBadPattern}
			}
		}
	}
	return &Filter{
		include: append([]string(nil), include...),
		exclude: append([]string(nil), exclude...),
	}, nil
}

// All selects every unit
func All() *Filter {
	return &Filter{}
}

func matchAny(patterns []string, id string) bool {
	for _, p := range patterns {
		// patterns were validated at construction
		if ok, _ := doublestar.Match(p, id); ok {
			return true
		}
	}
	return false
}

// InScope tells if a source unit is selected. Exclusion always wins.
func (f *Filter) InScope(id string) bool {
	if f == nil {
		return true
	}
	if matchAny(f.exclude, id) {
		return false
	}
	if len(f.include) == 0 && !f.closure {
		return true
	}
	if _, ok := f.extra[id]; ok {
		return true
	}
	return matchAny(f.include, id)
}

// String representation, for logs
func (f *Filter) String() string {
	if f == nil {
		return "all"
	}
	return fmt.Sprintf("include=%v exclude=%v closure=%d", f.include, f.exclude, len(f.extra))
}

// WithClosure extends the include set with a base system selection.
//
// The seed is every package whose component (PartOf) matches one of the component patterns,
// plus the packages named in extra. The seed is then closed over runtime dependencies, and the
// source units of all the packages reached are included. Dependencies missing from the index are
// returned, sorted, but do not fail the selection.
func (f *Filter) WithClosure(records []model.PackageRecord, components, extra []string) (*Filter, []string, error) {
	for _, p := range components {
		if !doublestar.ValidatePattern(p) {
			return nil, nil, &PreconditionError{Pattern: p, Err: doublestar.ErrBadPattern}
		}
	}

	byName := make(map[string]model.PackageRecord, len(records))
	for _, rec := range records {
		if _, ok := byName[rec.Name]; !ok {
			byName[rec.Name] = rec
		}
	}

	var queue []string
	for _, rec := range records {
		if rec.PartOf != "" && matchAny(components, rec.PartOf) {
			queue = append(queue, rec.Name)
		}
	}
	queue = append(queue, extra...)

	visited := make(map[string]struct{}, len(queue))
	missing := make(map[string]struct{})
	units := make(map[string]struct{})
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, ok := visited[name]; ok {
			continue
		}
		visited[name] = struct{}{}

		rec, ok := byName[name]
		if !ok {
			missing[name] = struct{}{}
			continue
		}
		units[rec.SourceID()] = struct{}{}
		queue = append(queue, rec.RuntimeDeps...)
	}

	res := &Filter{
		include: f.includes(),
		exclude: f.excludes(),
		extra:   units,
		closure: true,
	}
	for id := range f.extras() {
		res.extra[id] = struct{}{}
	}
	return res, sortedKeys(missing), nil
}

// Closure lists the unit ids added by WithClosure, sorted
func (f *Filter) Closure() []string {
	return sortedKeys(f.extras())
}

func (f *Filter) includes() []string {
	if f == nil {
		return nil
	}
	return f.include
}

func (f *Filter) excludes() []string {
	if f == nil {
		return nil
	}
	return f.exclude
}

func (f *Filter) extras() map[string]struct{} {
	if f == nil {
		return nil
	}
	return f.extra
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	res := make([]string, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}
