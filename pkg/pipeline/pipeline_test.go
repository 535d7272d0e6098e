package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/serpent-os/pisi/internal/eopkgtest"
	"github.com/serpent-os/pisi/pkg/errors"
	"github.com/serpent-os/pisi/pkg/filter"
	"github.com/serpent-os/pisi/pkg/fingerprint"
	"github.com/serpent-os/pisi/pkg/index"
	"github.com/serpent-os/pisi/pkg/manifest"
	"github.com/serpent-os/pisi/pkg/metrics"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/serpent-os/pisi/pkg/payload"
	"github.com/serpent-os/pisi/pkg/pipeline/status"
	"github.com/serpent-os/pisi/pkg/recipes"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingSource records the packages whose payload was opened
type countingSource struct {
	payload.Source
	mu     sync.Mutex
	opened []string
}

func (c *countingSource) Open(ctx context.Context, rec model.PackageRecord) (payload.Payload, error) {
	c.mu.Lock()
	c.opened = append(c.opened, rec.Name)
	c.mu.Unlock()
	return c.Source.Open(ctx, rec)
}

func (c *countingSource) Opened() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := append([]string(nil), c.opened...)
	sort.Strings(res)
	return res
}

type fixture struct {
	mirror  string
	records []model.PackageRecord
	recipes map[string]string
	source  *countingSource
}

func newFixture(t testing.TB) *fixture {
	mirror := filepath.Join(t.TempDir(), "mirror")
	return &fixture{
		mirror:  mirror,
		recipes: make(map[string]string),
		source:  &countingSource{Source: payload.NewDirSource(afero.NewOsFs(), mirror, payload.Verify(true))},
	}
}

// add a package of some source unit to the mirror and the index
func (f *fixture) add(t testing.TB, source, version string, a eopkgtest.Archive) {
	t.Helper()
	uri := path.Join(source[:1], source, fmt.Sprintf("%s-%s-1-1-x86_64.eopkg", a.Name, version))
	content := a.Bytes(t)
	pth := filepath.Join(f.mirror, filepath.FromSlash(uri))
	require.NoError(t, os.MkdirAll(filepath.Dir(pth), 0755))
	require.NoError(t, os.WriteFile(pth, content, 0644))
	f.records = append(f.records, model.PackageRecord{
		Name:        a.Name,
		Source:      source,
		Version:     version,
		Release:     1,
		Summary:     a.Name + " summary",
		Description: "The " + a.Name + " package.",
		Licenses:    []string{"MIT"},
		PackageURI:  uri,
		PackageSize: int64(len(content)),
		PackageHash: eopkgtest.SHA1(string(content)),
	})
	f.recipes[source] = path.Join(source[:1], source)
}

func (f *fixture) run(t testing.TB, ctx context.Context, out string, opts ...Option) (*Summary, error) {
	t.Helper()
	resolver, err := recipes.NewResolver(context.Background(), recipes.NewMapIndex("test", f.recipes))
	require.NoError(t, err)
	doc := &index.Document{Distribution: index.Distribution{Name: "test"}, Records: f.records}
	return New(resolver, f.source, out, append([]Option{Concurrency(2), RunID("test-run")}, opts...)...).Run(ctx, doc)
}

func fooFixture(t testing.TB) *fixture {
	f := newFixture(t)
	f.add(t, "foo", "1.2", eopkgtest.Archive{Name: "foo", Files: []eopkgtest.File{
		eopkgtest.Exec("usr/bin/foo", "#!/bin/sh\necho foo"),
		eopkgtest.Reg("usr/share/doc/foo/LICENSE", "license"),
	}})
	f.add(t, "foo", "1.2", eopkgtest.Archive{Name: "foo-data", Files: []eopkgtest.File{
		eopkgtest.Reg("usr/share/foo/a.dat", "a"),
		eopkgtest.Reg("usr/share/foo/sub/b.dat", "b"),
		eopkgtest.Reg("usr/share/doc/foo/LICENSE", "license"),
	}})
	f.add(t, "bar", "2.0", eopkgtest.Archive{Name: "bar", Files: []eopkgtest.File{
		eopkgtest.Exec("usr/bin/bar", "bar"),
		eopkgtest.Symlink("usr/bin/bar-link", "bar"),
	}})
	return f
}

// snapshot of the files below a directory, keyed by relative path
func snapshot(t testing.TB, root string) map[string]string {
	t.Helper()
	res := make(map[string]string)
	require.NoError(t, filepath.Walk(root, func(pth string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, pth)
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(pth)
			if err != nil {
				return err
			}
			res[rel] = "-> " + target
		case info.IsDir():
			res[rel] = "dir"
		default:
			b, err := os.ReadFile(pth)
			if err != nil {
				return err
			}
			res[rel] = fmt.Sprintf("%o %s", info.Mode().Perm(), b)
		}
		return nil
	}))
	return res
}

func TestRunFooScenario(t *testing.T) {
	f := fooFixture(t)
	out := filepath.Join(t.TempDir(), "out")
	m := metrics.New()

	sum, err := f.run(t, context.Background(), out, Metrics(m))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.ExitCode())
	assert.Equal(t, "test-run", sum.RunID)
	assert.Equal(t, 2, sum.Counts[Done])

	foo, ok := sum.Get("foo")
	require.True(t, ok)
	assert.Equal(t, Done, foo.State)
	assert.Equal(t, []string{"foo", "foo-data"}, foo.Packages)
	assert.Equal(t, "f/foo", foo.Recipe)
	assert.Equal(t, model.MatchExact, foo.Match)
	assert.Equal(t, 4, foo.Files)
	assert.Empty(t, foo.Warnings)

	fd, err := os.Open(model.GetManifestPath(out, "foo"))
	require.NoError(t, err)
	defer func() {
		_ = fd.Close()
	}()
	doc, err := manifest.Decode(fd)
	require.NoError(t, err)
	assert.Equal(t, "foo", doc.Name)
	assert.Equal(t, "1.2", doc.Version)
	assert.Equal(t, "f/foo", doc.Recipe)
	assert.Equal(t, []string{"/usr/bin/foo", "/usr/share/doc/foo/**", "/usr/share/foo/**"}, doc.Paths)
	assert.Equal(t, []string{"/usr/bin/foo", "/usr/share/doc/foo/**"}, doc.Packages["foo"].Paths)
	assert.Equal(t, []string{"/usr/share/foo/**"}, doc.Packages["foo-data"].Paths)

	files := snapshot(t, model.GetImportTreePath(out, "foo"))
	assert.Equal(t, "755 #!/bin/sh\necho foo", files[filepath.Join("usr", "bin", "foo")])
	assert.Equal(t, "644 b", files[filepath.Join("usr", "share", "foo", "sub", "b.dat")])
	assert.Equal(t, "-> bar", snapshot(t, model.GetImportTreePath(out, "bar"))[filepath.Join("usr", "bin", "bar-link")])

	// transient directories are gone, the summary is written
	for _, transient := range []string{model.GetOutputStagePath(out), filepath.Join(out, workDir), filepath.Join(out, ".put-stage")} {
		_, err = os.Stat(transient)
		assert.Truef(t, os.IsNotExist(err), "expected %s to be removed", transient)
	}
	sf, err := os.Open(model.GetSummaryPath(out))
	require.NoError(t, err)
	defer func() {
		_ = sf.Close()
	}()
	written, err := ReadSummary(sf)
	require.NoError(t, err)
	assert.Equal(t, "test-run", written.RunID)
	assert.Len(t, written.Units, 2)
}

func TestRunDeterminism(t *testing.T) {
	f := fooFixture(t)
	base := t.TempDir()
	first, second := filepath.Join(base, "first"), filepath.Join(base, "second")

	one, err := f.run(t, context.Background(), first, Concurrency(1))
	require.NoError(t, err)
	two, err := f.run(t, context.Background(), second, Concurrency(4), Extractors(1), Hasher(fingerprint.New()))
	require.NoError(t, err)

	for _, unit := range []string{"foo", "bar"} {
		assert.Equal(t, snapshot(t, model.GetUnitPath(first, unit)), snapshot(t, model.GetUnitPath(second, unit)))
		a, _ := one.Get(unit)
		b, _ := two.Get(unit)
		assert.NotEmpty(t, a.Digest)
		assert.Equal(t, a.Digest, b.Digest)
	}

	// a different digest size changes every content hash
	third, err := f.run(t, context.Background(), filepath.Join(base, "third"), Hasher(fingerprint.New(fingerprint.Size(16))))
	require.NoError(t, err)
	a, _ := one.Get("foo")
	c, _ := third.Get("foo")
	assert.Len(t, c.Digest, 32)
	assert.NotEqual(t, a.Digest, c.Digest)

	// converting again replaces the previous output with identical content
	before := snapshot(t, model.GetUnitPath(first, "foo"))
	_, err = f.run(t, context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, before, snapshot(t, model.GetUnitPath(first, "foo")))
}

func TestRunConflict(t *testing.T) {
	f := newFixture(t)
	f.add(t, "foo", "1.0", eopkgtest.Archive{Name: "foo", Files: []eopkgtest.File{eopkgtest.Reg("usr/bin/foo", "one")}})
	f.add(t, "foo", "1.0", eopkgtest.Archive{Name: "foo-alt", Files: []eopkgtest.File{eopkgtest.Reg("usr/bin/foo", "two")}})
	f.add(t, "bar", "1.0", eopkgtest.Archive{Name: "bar", Files: []eopkgtest.File{eopkgtest.Reg("usr/bin/bar", "bar")}})
	out := filepath.Join(t.TempDir(), "out")

	sum, err := f.run(t, context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ExitCode())

	foo, _ := sum.Get("foo")
	assert.Equal(t, Conflict, foo.State)
	assert.Contains(t, foo.Error, "/usr/bin/foo")
	_, err = os.Stat(model.GetUnitPath(out, "foo"))
	assert.True(t, os.IsNotExist(err))

	bar, _ := sum.Get("bar")
	assert.Equal(t, Done, bar.State)
}

func TestRunFilter(t *testing.T) {
	f := fooFixture(t)
	f.add(t, "foo-legacy", "0.1", eopkgtest.Archive{Name: "foo-legacy", Files: []eopkgtest.File{eopkgtest.Reg("usr/bin/foo-legacy", "old")}})
	sel, err := filter.New([]string{"foo*"}, []string{"foo-legacy"})
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "out")

	sum, err := f.run(t, context.Background(), out, Filter(sel))
	require.NoError(t, err)

	states := make(map[string]State)
	for _, u := range sum.Units {
		states[u.Unit] = u.State
	}
	assert.Equal(t, map[string]State{"foo": Done, "foo-legacy": FilteredOut, "bar": FilteredOut}, states)
	assert.Equal(t, 0, sum.ExitCode())

	// filtered units never open a payload
	assert.Equal(t, []string{"foo", "foo-data"}, f.source.Opened())
	_, err = os.Stat(model.GetUnitPath(out, "bar"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunTruncatedArchive(t *testing.T) {
	f := newFixture(t)
	f.add(t, "broken", "1.0", eopkgtest.Archive{Name: "broken", Truncate: 40, Files: []eopkgtest.File{
		eopkgtest.Reg("usr/share/broken/data", "some content which does not fit in the truncated payload"),
	}})
	f.add(t, "bar", "1.0", eopkgtest.Archive{Name: "bar", Files: []eopkgtest.File{eopkgtest.Reg("usr/bin/bar", "bar")}})
	out := filepath.Join(t.TempDir(), "out")

	sum, err := f.run(t, context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ExitCode())

	broken, _ := sum.Get("broken")
	assert.Equal(t, ExtractFailed, broken.State)
	assert.Contains(t, broken.Error, "corrupt archive")
	_, err = os.Stat(model.GetUnitPath(out, "broken"))
	assert.True(t, os.IsNotExist(err))

	bar, _ := sum.Get("bar")
	assert.Equal(t, Done, bar.State)
}

func TestRunPartialExtraction(t *testing.T) {
	f := newFixture(t)
	f.add(t, "foo", "1.0", eopkgtest.Archive{Name: "foo", Files: []eopkgtest.File{
		eopkgtest.Exec("usr/bin/foo", "foo"),
	}})
	f.add(t, "foo", "1.0", eopkgtest.Archive{Name: "foo-broken", Truncate: 40, Files: []eopkgtest.File{
		eopkgtest.Reg("usr/share/foo-broken/data", "some content which does not fit in the truncated payload"),
	}})
	out := filepath.Join(t.TempDir(), "out")

	sum, err := f.run(t, context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.ExitCode())

	foo, ok := sum.Get("foo")
	require.True(t, ok)
	assert.Equal(t, Done, foo.State)
	assert.Empty(t, foo.Error)
	assert.Equal(t, 1, foo.Files)
	require.Len(t, foo.Failures, 1)
	assert.Equal(t, "foo-broken", foo.Failures[0].Package)
	assert.Contains(t, foo.Failures[0].Error, "corrupt archive")

	fd, err := os.Open(model.GetManifestPath(out, "foo"))
	require.NoError(t, err)
	defer func() {
		_ = fd.Close()
	}()
	doc, err := manifest.Decode(fd)
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/bin/foo"}, doc.Paths)
	assert.Contains(t, doc.Packages, "foo")
	assert.NotContains(t, doc.Packages, "foo-broken")
	assert.Equal(t, "755 foo", snapshot(t, model.GetImportTreePath(out, "foo"))[filepath.Join("usr", "bin", "foo")])
}

func TestRunUnresolvedAndEmpty(t *testing.T) {
	f := newFixture(t)
	f.add(t, "orphan", "1.0", eopkgtest.Archive{Name: "orphan", Files: []eopkgtest.File{eopkgtest.Reg("usr/bin/orphan", "x")}})
	f.add(t, "hollow", "1.0", eopkgtest.Archive{Name: "hollow", Files: []eopkgtest.File{eopkgtest.Dir("usr/share/hollow")}})
	f.add(t, "Folded_Name", "1.0", eopkgtest.Archive{Name: "Folded_Name", Files: []eopkgtest.File{eopkgtest.Reg("usr/bin/folded", "x")}})
	delete(f.recipes, "orphan")
	delete(f.recipes, "Folded_Name")
	f.recipes["folded-name"] = "f/folded-name"
	out := filepath.Join(t.TempDir(), "out")

	sum, err := f.run(t, context.Background(), out)
	require.NoError(t, err)

	orphan, _ := sum.Get("orphan")
	assert.Equal(t, Unresolved, orphan.State)
	assert.Empty(t, f.sourceOpened("orphan"))

	hollow, _ := sum.Get("hollow")
	assert.Equal(t, Empty, hollow.State)
	assert.False(t, hollow.State.Failed())

	folded, _ := sum.Get("Folded_Name")
	assert.Equal(t, Done, folded.State)
	assert.Equal(t, model.MatchFolded, folded.Match)
	assert.Equal(t, "f/folded-name", folded.Recipe)

	assert.Equal(t, 1, sum.ExitCode())
}

func (f *fixture) sourceOpened(name string) []string {
	var res []string
	for _, opened := range f.source.Opened() {
		if opened == name {
			res = append(res, opened)
		}
	}
	return res
}

func TestRunCancelled(t *testing.T) {
	f := fooFixture(t)
	out := filepath.Join(t.TempDir(), "out")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := f.run(t, ctx, out)
	require.NoError(t, err)
	for _, u := range sum.Units {
		assert.Equalf(t, Cancelled, u.State, "unit %s", u.Unit)
	}
	assert.Equal(t, 1, sum.ExitCode())
	assert.Empty(t, f.source.Opened())

	_, err = os.Stat(model.GetSummaryPath(out))
	assert.NoError(t, err)
}

func TestRunPrecondition(t *testing.T) {
	f := fooFixture(t)
	out := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(out, []byte("file"), 0644))

	_, err := f.run(t, context.Background(), out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrPrecondition))
}

func TestRunSkipsObsoleteAndInvalid(t *testing.T) {
	f := fooFixture(t)
	f.add(t, "dead", "1.0", eopkgtest.Archive{Name: "dead", Files: []eopkgtest.File{eopkgtest.Reg("usr/bin/dead", "x")}})
	resolver, err := recipes.NewResolver(context.Background(), recipes.NewMapIndex("test", f.recipes))
	require.NoError(t, err)
	doc := &index.Document{
		Distribution: index.Distribution{Name: "test", Obsoletes: []string{"dead"}},
		Records:      f.records,
	}
	out := filepath.Join(t.TempDir(), "out")

	sum, err := New(resolver, f.source, out, MissingDependencies([]string{"libghost"})).Run(context.Background(), doc)
	require.NoError(t, err)
	_, found := sum.Get("dead")
	assert.False(t, found)
	assert.Contains(t, sum.Skipped, "obsolete package dead")
	assert.Equal(t, []string{"libghost"}, sum.Missing)
	assert.Equal(t, 0, sum.ExitCode())
}

func TestTransitions(t *testing.T) {
	for _, toPin := range []struct {
		from, to State
		ok       bool
	}{
		{from: Pending, to: Resolving, ok: true},
		{from: Pending, to: FilteredOut, ok: true},
		{from: Resolving, to: Extracting, ok: true},
		{from: Extracting, to: Materializing, ok: true},
		{from: Materializing, to: Empty, ok: true},
		{from: Emitting, to: Done, ok: true},
		{from: Emitting, to: Cancelled, ok: true},
		{from: Pending, to: Done},
		{from: Done, to: Pending},
		{from: Conflict, to: Materializing},
		{from: Extracting, to: Resolving},
	} {
		testCase := toPin
		t.Run(string(testCase.from)+"->"+string(testCase.to), func(t *testing.T) {
			err := Transition(testCase.from, testCase.to)
			if testCase.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, status.ErrIllegalTransition))
		})
	}

	for _, s := range States() {
		switch s {
		case Pending, Resolving, Extracting, Materializing, Emitting:
			assert.Falsef(t, s.Terminal(), "%s", s)
		default:
			assert.Truef(t, s.Terminal(), "%s", s)
		}
	}
}
