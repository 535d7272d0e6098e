package model

import (
	"sort"
)

// SourceUnit groups all the binary packages that originate from a single source recipe.
type SourceUnit struct {
	ID      string          `json:"id" yaml:"id"`
	Members []PackageRecord `json:"members" yaml:"members"`
	_       struct{}
}

// NewSourceUnit builds a unit with its members sorted by package name
func NewSourceUnit(id string, members ...PackageRecord) *SourceUnit {
	u := &SourceUnit{ID: id, Members: append([]PackageRecord(nil), members...)}
	sort.SliceStable(u.Members, func(i, j int) bool {
		return u.Members[i].Name < u.Members[j].Name
	})
	return u
}

// Primary is the member from which the unit metadata is taken.
//
// It is the member with the highest version. Ties are broken by the highest release,
// then by the lexically smallest package name.
func (u *SourceUnit) Primary() PackageRecord {
	if len(u.Members) == 0 {
		return PackageRecord{}
	}
	best := u.Members[0]
	for _, candidate := range u.Members[1:] {
		if newerThan(candidate, best) {
			best = candidate
		}
	}
	return best
}

func newerThan(a, b PackageRecord) bool {
	if c := CompareVersions(a.Version, b.Version); c != 0 {
		return c > 0
	}
	if a.Release != b.Release {
		return a.Release > b.Release
	}
	return a.Name < b.Name
}

// Version of the unit, i.e. the version of its primary member
func (u *SourceUnit) Version() string {
	return u.Primary().Version
}

// Release of the unit, i.e. the release of its primary member
func (u *SourceUnit) Release() uint64 {
	return u.Primary().Release
}

// MemberNames lists the package names, in processing order
func (u *SourceUnit) MemberNames() []string {
	names := make([]string, 0, len(u.Members))
	for _, m := range u.Members {
		names = append(names, m.Name)
	}
	return names
}

// Only returns a copy of the unit restricted to some of its members
func (u *SourceUnit) Only(names ...string) *SourceUnit {
	keep := make(map[string]struct{}, len(names))
	for _, name := range names {
		keep[name] = struct{}{}
	}
	res := &SourceUnit{ID: u.ID}
	for _, m := range u.Members {
		if _, ok := keep[m.Name]; ok {
			res.Members = append(res.Members, m)
		}
	}
	return res
}
