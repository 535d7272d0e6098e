package grouper

import (
	"testing"

	"github.com/serpent-os/pisi/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(name, source, version string, release uint64, files ...string) model.PackageRecord {
	r := model.PackageRecord{Name: name, Source: source, Version: version, Release: release, PackageURI: name + ".eopkg"}
	for _, f := range files {
		r.Files = append(r.Files, model.DeclaredFile{Path: f})
	}
	return r
}

func TestGroup(t *testing.T) {
	records := []model.PackageRecord{
		rec("foo-data", "foo", "1.2", 1),
		rec("bar", "bar", "2.0", 3),
		rec("foo", "foo", "1.2", 1),
		rec("orphan", "", "0.1", 1),
		rec("bar", "baz", "9.9", 9),
	}

	g := Group(records)
	require.Equal(t, 3, g.Len())
	assert.Equal(t, []string{"bar", "foo", "orphan"}, g.Keys())

	foo, ok := g.Get("foo")
	require.True(t, ok)
	assert.Equal(t, []string{"foo", "foo-data"}, foo.MemberNames())

	orphan, ok := g.Get("orphan")
	require.True(t, ok)
	assert.Equal(t, []string{"orphan"}, orphan.MemberNames())

	_, ok = g.Get("baz")
	assert.False(t, ok, "duplicate package names never create a unit")
	require.Len(t, g.Duplicates(), 1)
	assert.Equal(t, "baz", g.Duplicates()[0].Source)

	units := g.Units()
	require.Len(t, units, 3)
	assert.Equal(t, "bar", units[0].ID)
}

func TestGroupIsStable(t *testing.T) {
	a := []model.PackageRecord{rec("c", "x", "1", 1), rec("a", "y", "1", 1), rec("b", "x", "1", 1)}
	b := []model.PackageRecord{a[2], a[1], a[0]}

	ga, gb := Group(a), Group(b)
	assert.Equal(t, ga.Keys(), gb.Keys())
	for _, u := range ga.Units() {
		other, ok := gb.Get(u.ID)
		require.True(t, ok)
		assert.Equal(t, u.MemberNames(), other.MemberNames())
	}
}

func TestGroupEveryRecordOnce(t *testing.T) {
	records := []model.PackageRecord{
		rec("a", "s1", "1", 1), rec("b", "s1", "1", 1), rec("c", "s2", "1", 1), rec("d", "", "1", 1),
	}
	count := 0
	Group(records).Walk(func(u *model.SourceUnit) bool {
		count += len(u.Members)
		return false
	})
	assert.Equal(t, len(records), count)
}

func TestOwnerIndex(t *testing.T) {
	records := []model.PackageRecord{
		rec("foo", "foo", "1", 1, "/usr/bin/foo", "/usr/share/foo/a"),
		rec("foo-data", "foo", "1", 1, "/usr/share/foo/b"),
		rec("foobar", "foobar", "1", 1, "/usr/share/foobar/x", "/usr/bin/foobar"),
		rec("plugin", "plugin", "1", 1, "/usr/lib/foo/plugins/p.so"),
		rec("libfoo", "foo", "1", 1, "/usr/lib/foo/libfoo.so"),
	}
	idx := NewOwnerIndex(records)
	assert.Equal(t, 7, idx.Len())
	assert.Equal(t, []string{"foo"}, idx.Owners("/usr/bin/foo"))

	assert.False(t, idx.Foreign("/usr/share/foo", "foo"))
	assert.True(t, idx.Foreign("/usr/share", "foo"))
	assert.True(t, idx.Foreign("/usr/lib/foo", "foo"))
	assert.True(t, idx.Foreign("/usr/bin", "foo"))
	assert.False(t, idx.Foreign("/opt", "foo"))

	var none *OwnerIndex
	assert.False(t, none.Foreign("/usr", "foo"))
	assert.Empty(t, none.Owners("/usr/bin/foo"))
}

func TestOwnerIndexShared(t *testing.T) {
	idx := NewOwnerIndex([]model.PackageRecord{
		rec("a", "x", "1", 1, "/etc/shared.conf"),
		rec("b", "y", "1", 1, "/etc/shared.conf"),
		rec("c", "x", "1", 1, "/etc/shared.conf"),
	})
	assert.Equal(t, []string{"x", "y"}, idx.Owners("/etc/shared.conf"))
}
