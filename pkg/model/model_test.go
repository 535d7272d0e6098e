package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestCompareVersions(t *testing.T) {
	for _, toPin := range []struct {
		a, b     string
		expected int
	}{
		{a: "1.2", b: "1.2", expected: 0},
		{a: "1.2", b: "1.3", expected: -1},
		{a: "1.10", b: "1.9", expected: 1},
		{a: "2.38", b: "2.4", expected: 1},
		{a: "1.2.13", b: "1.2.9", expected: 1},
		{a: "1.0rc1", b: "1.0", expected: -1},
		{a: "1.2_p3", b: "1.2_p10", expected: -1},
		{a: "2023.01.a", b: "2023.01.b", expected: -1},
		{a: "1.2a", b: "1.2.1", expected: -1},
		{a: "007", b: "7", expected: -1},
	} {
		testCase := toPin
		t.Run(testCase.a+" vs "+testCase.b, func(t *testing.T) {
			assert.Equal(t, testCase.expected, CompareVersions(testCase.a, testCase.b))
			assert.Equal(t, -testCase.expected, CompareVersions(testCase.b, testCase.a))
		})
	}
}

func TestSourceUnitPrimary(t *testing.T) {
	t.Run("highest version wins", func(t *testing.T) {
		u := NewSourceUnit("foo",
			PackageRecord{Name: "foo-data", Version: "1.2", Release: 1, Summary: "data"},
			PackageRecord{Name: "foo", Version: "1.10", Release: 1, Summary: "main"},
		)
		assert.Equal(t, []string{"foo", "foo-data"}, u.MemberNames())
		assert.Equal(t, "main", u.Primary().Summary)
		assert.Equal(t, "1.10", u.Version())
	})

	t.Run("same version, highest release wins", func(t *testing.T) {
		u := NewSourceUnit("foo",
			PackageRecord{Name: "foo", Version: "1.2", Release: 3, Licenses: []string{"MIT"}},
			PackageRecord{Name: "foo-devel", Version: "1.2", Release: 4, Licenses: []string{"GPL-2.0-only"}},
		)
		assert.Equal(t, "foo-devel", u.Primary().Name)
		assert.Equal(t, uint64(4), u.Release())
		assert.Equal(t, "GPL-2.0-only", u.Primary().License())
	})

	t.Run("full tie, smallest name wins", func(t *testing.T) {
		u := NewSourceUnit("foo",
			PackageRecord{Name: "foo-docs", Version: "1.2", Release: 3},
			PackageRecord{Name: "foo", Version: "1.2", Release: 3},
		)
		assert.Equal(t, "foo", u.Primary().Name)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "", NewSourceUnit("empty").Primary().Name)
	})

	t.Run("restricted to some members", func(t *testing.T) {
		u := NewSourceUnit("foo",
			PackageRecord{Name: "foo", Version: "1.2", Release: 1},
			PackageRecord{Name: "foo-devel", Version: "1.3", Release: 1},
			PackageRecord{Name: "foo-docs", Version: "1.2", Release: 1},
		)
		only := u.Only("foo-docs", "foo", "unknown")
		assert.Equal(t, "foo", only.ID)
		assert.Equal(t, []string{"foo", "foo-docs"}, only.MemberNames())
		assert.Equal(t, "1.2", only.Version())
		assert.Len(t, u.Members, 3)
	})
}

func TestPackageRecord(t *testing.T) {
	p := PackageRecord{Name: "zlib-devel", Source: " zlib ", Version: "1.3", Release: 26, PackageURI: "z/zlib/zlib-devel-1.3-26-1-x86_64.eopkg"}
	require.NoError(t, p.Validate())
	assert.Equal(t, "zlib", p.SourceID())
	assert.Equal(t, "zlib-devel-1.3-26-1-x86_64.eopkg", p.PayloadName())
	assert.Equal(t, "zlib-devel-1.3-26", p.String())

	orphan := PackageRecord{Name: "orphan"}
	assert.Equal(t, "orphan", orphan.SourceID())
	assert.Error(t, orphan.Validate())

	assert.Error(t, PackageRecord{Name: "x", Version: "1", PackageURI: "x.eopkg"}.Validate())
	assert.Error(t, PackageRecord{Name: "x", Version: "1", Release: 1}.Validate())
	assert.Error(t, PackageRecord{Version: "1", Release: 1, PackageURI: "x.eopkg"}.Validate())
}

func TestCleanEntryPath(t *testing.T) {
	for _, toPin := range []struct {
		in       string
		expected string
		ok       bool
	}{
		{in: "usr/bin/foo", expected: "/usr/bin/foo", ok: true},
		{in: "./usr//lib/libz.so", expected: "/usr/lib/libz.so", ok: true},
		{in: "/etc/foo.conf", expected: "/etc/foo.conf", ok: true},
		{in: "./", expected: "", ok: true},
		{in: "../etc/passwd", ok: false},
		{in: "usr/../../etc/passwd", ok: false},
		{in: "usr/lib/../bin", ok: false},
		{in: `usr\..\..\evil`, expected: `/usr\..\..\evil`, ok: true},
		{in: `usr/share/fonts/C:\Windows.ttf`, expected: `/usr/share/fonts/C:\Windows.ttf`, ok: true},
	} {
		testCase := toPin
		t.Run(testCase.in, func(t *testing.T) {
			got, ok := CleanEntryPath(testCase.in)
			assert.Equal(t, testCase.ok, ok)
			assert.Equal(t, testCase.expected, got)
		})
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("zlib"))
	assert.NoError(t, ValidateName("python-3.11"))
	for _, bad := range []string{"", ".", "..", ".hidden", "a/b", `a\b`} {
		assert.Errorf(t, ValidateName(bad), "expected %q to be rejected", bad)
	}
}

func TestLayout(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "foo", "stone.yml"), GetManifestPath("out", "foo"))
	assert.Equal(t, filepath.Join("out", "foo", "pkg", "import"), GetImportTreePath("out", "foo"))
	assert.Equal(t, filepath.Join("work", "staging", "foo", "foo-devel"), GetStagingPath("work", "foo", "foo-devel"))
	assert.Equal(t, filepath.Join("work", "staging"), GetStagingRoot("work"))
	assert.Equal(t, filepath.Join("out", ".pisi-stage"), GetOutputStagePath("out"))
	assert.Equal(t, filepath.Join("out", "summary.yaml"), GetSummaryPath("out"))
}

func TestFileModeYAML(t *testing.T) {
	e := Entry{Path: "/usr/bin/foo", Hash: "abc", Mode: FileMode(0o755), Size: 3}
	b, err := yaml.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(b), `mode: "755"`)

	var back Entry
	require.NoError(t, yaml.Unmarshal(b, &back))
	assert.Equal(t, e, back)

	link := Entry{Path: "/usr/lib/libz.so", Mode: FileMode(os.ModeSymlink | 0o777), LinkTarget: "libz.so.1"}
	assert.True(t, link.IsSymlink())
	assert.False(t, e.IsSymlink())
}

func TestImportTree(t *testing.T) {
	tree := &ImportTree{
		Unit: "foo",
		Entries: []OwnedEntry{
			{Entry: Entry{Path: "/usr/share/foo/b", Size: 2}, Owner: "foo-data"},
			{Entry: Entry{Path: "/usr/bin/foo", Size: 10}, Owner: "foo"},
			{Entry: Entry{Path: "/usr/share/foo/a", Size: 1}, Owner: "foo-data"},
		},
	}
	assert.Equal(t, []string{"/usr/bin/foo", "/usr/share/foo/a", "/usr/share/foo/b"}, tree.Paths())
	assert.Equal(t, []string{"/usr/share/foo/a", "/usr/share/foo/b"}, tree.OwnedBy("foo-data"))
	assert.Equal(t, int64(13), tree.Size())
	assert.Equal(t, "foo", tree.Owners()["/usr/bin/foo"])
}
