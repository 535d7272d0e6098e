package recipes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serpent-os/pisi/pkg/errors"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMonorepo(t testing.TB) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range []string{
		"/repo/packages/z/zlib/stone.yml",
		"/repo/packages/p/python-six/package.yml",
		"/repo/packages/g/gtk_doc/stone.yml",
		"/repo/packages/g/gtk_doc/files/fix.patch",
		"/repo/packages/l/legacy/pspec.xml",
		"/repo/.git/objects/zlib/stone.yml",
		"/repo/README.md",
	} {
		require.NoError(t, afero.WriteFile(fs, f, []byte(f), 0644))
	}
	return fs
}

func TestDirIndex(t *testing.T) {
	ctx := context.Background()
	idx := NewDirIndex(testMonorepo(t), "/repo")

	pth, ok, err := idx.Lookup(ctx, "zlib")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "packages/z/zlib", pth)

	_, ok, err = idx.Lookup(ctx, "files")
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := idx.IDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"zlib", "python-six", "gtk_doc", "legacy"}, ids)

	fp, err := idx.Fingerprint(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, fp)

	again, err := NewDirIndex(testMonorepo(t), "/repo").Fingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, fp, again)
	assert.Equal(t, "dir@/repo", idx.String())
}

func TestDirIndexMissingRoot(t *testing.T) {
	_, _, err := NewDirIndex(afero.NewMemMapFs(), "/nowhere").Lookup(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIndexUnavailable))
}

func TestFileIndex(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/recipes.yaml", []byte("zlib: packages/z/zlib\nxz: packages/x/xz\n"), 0644))

	idx, err := LoadFileIndex(fs, "/recipes.yaml")
	require.NoError(t, err)
	pth, ok, err := idx.Lookup(context.Background(), "xz")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "packages/x/xz", pth)

	ids, err := idx.IDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"xz", "zlib"}, ids)

	_, err = LoadFileIndex(fs, "/missing.yaml")
	assert.True(t, errors.Is(err, ErrIndexUnavailable))

	_, err = ParseIndex("bad", strings.NewReader("- not\n- a map\n"))
	assert.True(t, errors.Is(err, ErrIndexUnavailable))
}

func TestHTTPIndex(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("ETag", `"v42"`)
		_, _ = w.Write([]byte("zlib: packages/z/zlib\n"))
	}))
	defer srv.Close()

	idx := NewHTTPIndex(srv.URL, HTTPTimeout(time.Second), HTTPMaxElapsed(10*time.Second))
	pth, ok, err := idx.Lookup(context.Background(), "zlib")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "packages/z/zlib", pth)

	fp, err := idx.Fingerprint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "etag:v42", fp)

	// fetched once
	_, err = idx.IDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPIndexNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewHTTPIndex(srv.URL).IDs(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIndexUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "client errors are not retried")
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	r, err := NewResolver(ctx, NewMapIndex("test", map[string]string{
		"zlib":     "packages/z/zlib",
		"gtk-doc":  "packages/g/gtk-doc",
		"SDL2":     "packages/s/SDL2",
		"sdl2":     "packages/s/sdl2-lower",
		"python_x": "packages/p/python_x",
	}))
	require.NoError(t, err)

	for _, toPin := range []struct {
		id       string
		expected model.RecipeLocation
	}{
		{id: "zlib", expected: model.RecipeLocation{ID: "zlib", Path: "packages/z/zlib", Resolved: true, Match: model.MatchExact}},
		{id: "gtk_doc", expected: model.RecipeLocation{ID: "gtk_doc", Path: "packages/g/gtk-doc", Resolved: true, Match: model.MatchFolded}},
		{id: "GTK-Doc", expected: model.RecipeLocation{ID: "GTK-Doc", Path: "packages/g/gtk-doc", Resolved: true, Match: model.MatchFolded}},
		{id: "Sdl2", expected: model.RecipeLocation{ID: "Sdl2", Path: "packages/s/SDL2", Resolved: true, Match: model.MatchFolded}},
		{id: "python-x", expected: model.RecipeLocation{ID: "python-x", Path: "packages/p/python_x", Resolved: true, Match: model.MatchFolded}},
		{id: "nope", expected: model.Unresolved("nope")},
	} {
		testCase := toPin
		t.Run(testCase.id, func(t *testing.T) {
			loc, err := r.Resolve(ctx, testCase.id)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, loc)
		})
	}
}

type slowIndex struct {
	*MapIndex
	delay time.Duration
}

func (s slowIndex) Lookup(ctx context.Context, id string) (string, bool, error) {
	select {
	case <-time.After(s.delay):
		return s.MapIndex.Lookup(ctx, id)
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func TestResolveTimeout(t *testing.T) {
	idx := slowIndex{MapIndex: NewMapIndex("slow", map[string]string{"zlib": "z"}), delay: time.Minute}
	r, err := NewResolver(context.Background(), idx, LookupTimeout(20*time.Millisecond))
	require.NoError(t, err)

	loc, err := r.Resolve(context.Background(), "zlib")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLookupTimeout))
	assert.False(t, loc.Resolved)
}

func TestResolveCancelled(t *testing.T) {
	idx := slowIndex{MapIndex: NewMapIndex("slow", map[string]string{"zlib": "z"}), delay: time.Minute}
	r, err := NewResolver(context.Background(), idx)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Resolve(ctx, "zlib")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
