package payload

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	units "github.com/docker/go-units"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/serpent-os/pisi/pkg/errors"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/serpent-os/pisi/pkg/storage"
	"github.com/serpent-os/pisi/pkg/storage/localfs"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// HTTPOption configures an HTTPSource
type HTTPOption func(*HTTPSource)

// HTTPClient sets the client used for downloads
func HTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTPSource) {
		if client != nil {
			h.client = client
		}
	}
}

// HTTPMaxElapsed bounds the time spent retrying a download
func HTTPMaxElapsed(d time.Duration) HTTPOption {
	return func(h *HTTPSource) {
		h.maxElapsed = d
	}
}

// HTTPLogger sets the logger
func HTTPLogger(l *zap.Logger) HTTPOption {
	return func(h *HTTPSource) {
		if l != nil {
			h.l = l
		}
	}
}

// HTTPSource downloads payloads from a repository mirror into a local cache.
//
// Downloads are verified against the hash published by the index before being moved
// into the cache: the cache never holds a partial or corrupt payload.
type HTTPSource struct {
	base       *url.URL
	cacheDir   string
	client     *http.Client
	maxElapsed time.Duration
	l          *zap.Logger

	store storage.Store
	cache *DirSource
}

// NewHTTPSource builds a source for a repository mirror, e.g. https://packages.getsol.us/unstable/
func NewHTTPSource(baseURL, cacheDir string, opts ...HTTPOption) (*HTTPSource, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid payload base url %q: %w", baseURL, err)
	}
	if base.Path != "" && base.Path[len(base.Path)-1] != '/' {
		base.Path += "/"
	}
	if err = os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, err
	}
	fs := afero.NewBasePathFs(afero.NewOsFs(), cacheDir)
	store, err := localfs.NewAtomic(fs)
	if err != nil {
		return nil, err
	}

	h := &HTTPSource{
		base:       base,
		cacheDir:   cacheDir,
		client:     cleanhttp.DefaultPooledClient(),
		maxElapsed: 5 * time.Minute,
		l:          zap.NewNop(),
		cache:      NewDirSource(fs, "/", Verify(true)),
	}
	for _, apply := range opts {
		apply(h)
	}
	h.store = storage.Instrument(h.l, store)
	return h, nil
}

// Close releases the download staging area
func (h *HTTPSource) Close() error {
	return h.store.Close()
}

func (h *HTTPSource) key(rec model.PackageRecord) string {
	return path.Clean("/" + rec.PackageURI)
}

// Open the payload of a package, downloading it unless a verified copy is cached
func (h *HTTPSource) Open(ctx context.Context, rec model.PackageRecord) (Payload, error) {
	p, err := h.cache.Open(ctx, rec)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, ErrChecksum):
		h.l.Warn("discarding corrupt cached payload", zap.String("package", rec.Name), zap.Error(err))
		_ = h.store.Delete(ctx, h.key(rec))
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if err = h.download(ctx, rec); err != nil {
		return nil, err
	}
	return h.cache.Open(ctx, rec)
}

func (h *HTTPSource) download(ctx context.Context, rec model.PackageRecord) error {
	ref, err := url.Parse(rec.PackageURI)
	if err != nil {
		return ErrFetch.Wrap(err)
	}
	target := h.base.ResolveReference(ref).String()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = h.maxElapsed

	start := time.Now()
	err = backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return h.fetch(ctx, target, rec)
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrChecksum) || errors.Is(err, ErrNotFound) {
			return err
		}
		return ErrFetch.Wrap(err)
	}
	h.l.Info("downloaded payload",
		zap.String("package", rec.Name),
		zap.String("size", units.HumanSize(float64(rec.PackageSize))),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (h *HTTPSource) fetch(ctx context.Context, target string, rec model.PackageRecord) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return backoff.Permanent(ErrNotFound.WithDetail(target))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("fetching %s: %s", target, resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("fetching %s: %s", target, resp.Status))
	}

	body := &verifyingReader{r: resp.Body, h: newHasher(), expected: rec.PackageHash}
	if err := h.store.Put(ctx, h.key(rec), body, 0644); err != nil {
		if errors.Is(err, ErrChecksum) {
			// a corrupt transfer is worth another attempt
			return err
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	return nil
}

func (h *HTTPSource) String() string {
	return "http@" + h.base.String() + " (cache " + filepath.Clean(h.cacheDir) + ")"
}
