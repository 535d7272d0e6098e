package manifest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/serpent-os/pisi/pkg/errors"
	"github.com/serpent-os/pisi/pkg/grouper"
	"github.com/serpent-os/pisi/pkg/manifest/status"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func importTree(unit string, owned map[string][]string, dirs ...string) *model.ImportTree {
	tree := &model.ImportTree{Unit: unit, Dirs: dirs}
	for owner, paths := range owned {
		for _, p := range paths {
			tree.Entries = append(tree.Entries, model.OwnedEntry{Entry: model.Entry{Path: p, Hash: p, Size: 1}, Owner: owner})
		}
	}
	return tree
}

var (
	fooUnit = model.NewSourceUnit("foo",
		model.PackageRecord{Name: "foo-data", Version: "1.2", Release: 1, Summary: "Foo data", Licenses: []string{"CC-BY-4.0"}},
		model.PackageRecord{
			Name: "foo", Version: "1.2", Release: 1,
			Summary:     "Foo tool",
			Description: "Foo does things.\nOver lines.",
			Licenses:    []string{"MIT", "Apache-2.0"},
			Homepage:    "https://foo.example",
		},
	)
	fooLocation = model.RecipeLocation{ID: "foo", Path: "f/foo", Resolved: true, Match: model.MatchExact}
)

func TestBuild(t *testing.T) {
	tree := importTree("foo", map[string][]string{
		"foo":      {"/usr/bin/foo"},
		"foo-data": {"/usr/share/foo/a.dat", "/usr/share/foo/b.dat", "/usr/share/foo/sub/c.dat"},
	})
	e, err := New()
	require.NoError(t, err)

	m, err := e.Build(fooUnit, fooLocation, tree)
	require.NoError(t, err)

	assert.Equal(t, "foo", m.Name)
	assert.Equal(t, "1.2", m.Version)
	assert.Equal(t, uint64(1), m.Release)
	assert.Equal(t, "https://foo.example", m.Homepage)
	assert.Equal(t, "Foo tool", m.Summary)
	assert.Equal(t, "Foo does things. Over lines.", m.Description)
	assert.Equal(t, []string{"MIT", "Apache-2.0"}, m.License)
	assert.Equal(t, "f/foo", m.Recipe)
	assert.Empty(t, m.Upstreams)
	assert.False(t, m.Strip)

	assert.Equal(t, []string{"/usr/bin/foo", "/usr/share/foo/**"}, m.Paths)
	assert.Equal(t, Package{Summary: "Foo tool", Paths: []string{"/usr/bin/foo"}}, m.Packages["foo"])
	assert.Equal(t, Package{Summary: "Foo data", Paths: []string{"/usr/share/foo/**"}}, m.Packages["foo-data"])
	require.NoError(t, Verify(m, tree))
}

func TestUpstreams(t *testing.T) {
	unit := model.NewSourceUnit("zlib",
		model.PackageRecord{Name: "zlib", Version: "1.3", Release: 26, PackageURI: "z/zlib/zlib-1.3-26-1-x86_64.eopkg", PackageHash: "aaaa"},
		model.PackageRecord{Name: "zlib-devel", Version: "1.3", Release: 26, PackageURI: "https://mirror.example/zlib-devel.eopkg"},
	)
	loc := model.RecipeLocation{ID: "zlib", Path: "z/zlib", Resolved: true, Match: model.MatchExact}
	tree := importTree("zlib", map[string][]string{
		"zlib":       {"/usr/lib/libz.so.1"},
		"zlib-devel": {"/usr/include/zlib.h"},
	})

	t.Run("default repository", func(t *testing.T) {
		e, err := New()
		require.NoError(t, err)
		m, err := e.Build(unit, loc, tree)
		require.NoError(t, err)
		assert.Equal(t, []Upstream{
			{URI: DefaultUpstreamBase + "z/zlib/zlib-1.3-26-1-x86_64.eopkg", Hash: "aaaa"},
			{URI: "https://mirror.example/zlib-devel.eopkg"},
		}, m.Upstreams)
	})

	t.Run("custom repository", func(t *testing.T) {
		e, err := New(UpstreamBase("https://cdn.example/repo"))
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, e.Emit(unit, loc, tree, &buf))
		doc := buf.String()
		assert.Contains(t, doc, "\n- https://cdn.example/repo/z/zlib/zlib-1.3-26-1-x86_64.eopkg:\n")
		assert.Contains(t, doc, "unpack: false\n")
		assert.Contains(t, doc, "hash: aaaa\n")

		back, err := Decode(&buf)
		require.NoError(t, err)
		require.Len(t, back.Upstreams, 2)
		assert.Equal(t, Upstream{URI: "https://cdn.example/repo/z/zlib/zlib-1.3-26-1-x86_64.eopkg", Hash: "aaaa"}, back.Upstreams[0])
		assert.Equal(t, "https://mirror.example/zlib-devel.eopkg", back.Upstreams[1].URI)
	})

	t.Run("invalid repository", func(t *testing.T) {
		_, err := New(UpstreamBase("not a url"))
		assert.Error(t, err)
	})
}

func TestBuildErrors(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	_, err = e.Build(fooUnit, fooLocation, &model.ImportTree{Unit: "foo"})
	assert.True(t, errors.Is(err, status.ErrEmptyTree))

	_, err = e.Build(fooUnit, model.Unresolved("foo"), importTree("foo", map[string][]string{"foo": {"/usr/bin/foo"}}))
	assert.True(t, errors.Is(err, status.ErrUnresolved))

	_, err = New(SharedDirs([]string{"/usr/[lib"}))
	assert.Error(t, err)
}

func TestCollapse(t *testing.T) {
	for _, toPin := range []struct {
		name     string
		owned    map[string][]string
		dirs     []string
		foreign  []model.PackageRecord
		paths    []string
		packages map[string][]string
	}{
		{
			name: "directory split between members",
			owned: map[string][]string{
				"foo":      {"/usr/lib/foo/a.so"},
				"foo-data": {"/usr/lib/foo/b.dat"},
			},
			paths: []string{"/usr/lib/foo/**"},
			packages: map[string][]string{
				"foo":      {"/usr/lib/foo/a.so"},
				"foo-data": {"/usr/lib/foo/b.dat"},
			},
		},
		{
			name: "nested directory owned by one member",
			owned: map[string][]string{
				"foo":      {"/usr/lib/foo/a.so", "/usr/lib/foo/plugins/x.so", "/usr/lib/foo/plugins/y/z.so"},
				"foo-data": {"/usr/lib/foo/b.dat"},
			},
			paths: []string{"/usr/lib/foo/**"},
			packages: map[string][]string{
				"foo":      {"/usr/lib/foo/a.so", "/usr/lib/foo/plugins/**"},
				"foo-data": {"/usr/lib/foo/b.dat"},
			},
		},
		{
			name: "shared system directories",
			owned: map[string][]string{
				"foo": {"/usr/bin/foo", "/usr/share/man/man1/foo.1", "/usr/share/doc/foo/README", "/etc/foo.conf"},
			},
			paths: []string{"/etc/foo.conf", "/usr/bin/foo", "/usr/share/doc/foo/**", "/usr/share/man/man1/foo.1"},
			packages: map[string][]string{
				"foo": {"/etc/foo.conf", "/usr/bin/foo", "/usr/share/doc/foo/**", "/usr/share/man/man1/foo.1"},
			},
		},
		{
			name: "directory shared with another unit",
			owned: map[string][]string{
				"foo": {"/usr/share/foo/a.dat", "/usr/share/foo/sub/c.dat"},
			},
			foreign: []model.PackageRecord{
				{Name: "bar", Files: []model.DeclaredFile{{Path: "/usr/share/foo/bar-plugin.dat"}}},
				{Name: "foo", Files: []model.DeclaredFile{{Path: "/usr/share/foo/a.dat"}}},
			},
			paths: []string{"/usr/share/foo/a.dat", "/usr/share/foo/sub/**"},
			packages: map[string][]string{
				"foo": {"/usr/share/foo/a.dat", "/usr/share/foo/sub/**"},
			},
		},
		{
			name:  "empty directories",
			owned: map[string][]string{"foo": {"/usr/bin/foo"}},
			dirs:  []string{"/var/lib/foo"},
			paths: []string{"/usr/bin/foo", "/var/lib/foo"},
			packages: map[string][]string{
				"foo": {"/usr/bin/foo"},
			},
		},
		{
			name:  "glob characters in names",
			owned: map[string][]string{"foo": {"/usr/bin/foo[1]", "/usr/share/foo{x}/a"}},
			paths: []string{`/usr/bin/foo\[1\]`, `/usr/share/foo\{x\}/**`},
			packages: map[string][]string{
				"foo": {`/usr/bin/foo\[1\]`, `/usr/share/foo\{x\}/**`},
			},
		},
	} {
		testCase := toPin
		t.Run(testCase.name, func(t *testing.T) {
			var members []model.PackageRecord
			for name := range testCase.packages {
				members = append(members, model.PackageRecord{Name: name, Source: "foo", Version: "1", Release: 1})
			}
			unit := model.NewSourceUnit("foo", members...)
			tree := importTree("foo", testCase.owned, testCase.dirs...)

			e, err := New(Owners(grouper.NewOwnerIndex(testCase.foreign)))
			require.NoError(t, err)
			m, err := e.Build(unit, fooLocation, tree)
			require.NoError(t, err)

			assert.Equal(t, testCase.paths, m.Paths)
			for name, paths := range testCase.packages {
				assert.Equalf(t, paths, m.Packages[name].Paths, "package %s", name)
			}
			assert.NoError(t, Verify(m, tree))
		})
	}
}

func TestVerifyMismatch(t *testing.T) {
	tree := importTree("foo", map[string][]string{
		"foo":      {"/usr/bin/foo"},
		"foo-data": {"/usr/share/foo/a.dat"},
	})
	m := &Manifest{
		Paths: []string{"/usr/bin/foo"},
		Packages: map[string]Package{
			"foo":      {Paths: []string{"/usr/bin/foo"}},
			"foo-data": {Paths: []string{"/usr/share/foo/**"}},
		},
	}
	assert.True(t, errors.Is(Verify(m, tree), status.ErrGlobMismatch))

	m.Paths = []string{"/usr/**"}
	m.Packages["foo"] = Package{Paths: []string{"/usr/**"}}
	assert.True(t, errors.Is(Verify(m, tree), status.ErrGlobMismatch))
}

func TestEmit(t *testing.T) {
	tree := importTree("foo", map[string][]string{
		"foo":      {"/usr/bin/foo"},
		"foo-data": {"/usr/share/foo/a.dat"},
	})
	e, err := New()
	require.NoError(t, err)

	var first, second bytes.Buffer
	require.NoError(t, e.Emit(fooUnit, fooLocation, tree, &first))
	require.NoError(t, e.Emit(fooUnit, fooLocation, tree, &second))
	assert.Equal(t, first.String(), second.String())

	doc := first.String()
	assert.True(t, strings.HasPrefix(doc, "name: foo\nversion: \"1.2\"\nrelease: 1\n"), doc)
	assert.Contains(t, doc, "upstreams: []\n")
	assert.Contains(t, doc, "strip: false\n")
	assert.Contains(t, doc, "install: |\n  %install_dir %(installroot)\n  cp -a %(pkgdir)/import/. %(installroot)/\n")

	last := -1
	for _, key := range []string{"name:", "version:", "release:", "homepage:", "upstreams:", "summary:", "description:",
		"strip:", "license:", "recipe:", "install:", "paths:", "packages:"} {
		idx := strings.Index(doc, "\n"+key)
		if key == "name:" {
			idx = 0
		}
		require.Truef(t, idx > last, "%s out of order in:\n%s", key, doc)
		last = idx
	}

	back, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	m, err := e.Build(fooUnit, fooLocation, tree)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestEmitNumericVersion(t *testing.T) {
	unit := model.NewSourceUnit("bc", model.PackageRecord{Name: "bc", Version: "1.10", Release: 3})
	tree := importTree("bc", map[string][]string{"bc": {"/usr/bin/bc"}})
	e, err := New()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, e.Emit(unit, fooLocation, tree, &buf))
	back, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "1.10", back.Version)
	assert.Equal(t, DefaultHomepage, back.Homepage)
}
