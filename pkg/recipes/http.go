package recipes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPOption configures an HTTPIndex
type HTTPOption func(*HTTPIndex)

// HTTPClient sets the client used to fetch the index
func HTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTPIndex) {
		if client != nil {
			h.client = client
		}
	}
}

// HTTPTimeout bounds every attempt to fetch the index
func HTTPTimeout(timeout time.Duration) HTTPOption {
	return func(h *HTTPIndex) {
		h.timeout = timeout
	}
}

// HTTPMaxElapsed bounds the total time spent retrying
func HTTPMaxElapsed(d time.Duration) HTTPOption {
	return func(h *HTTPIndex) {
		h.maxElapsed = d
	}
}

// HTTPLogger sets the logger
func HTTPLogger(l *zap.Logger) HTTPOption {
	return func(h *HTTPIndex) {
		if l != nil {
			h.l = l
		}
	}
}

// HTTPIndex is a YAML recipe index published over HTTP.
//
// The document is fetched once. Its fingerprint is the ETag sent by the server, or else the hash of its content.
type HTTPIndex struct {
	url        string
	client     *http.Client
	timeout    time.Duration
	maxElapsed time.Duration
	l          *zap.Logger

	once sync.Once
	idx  *MapIndex
	etag string
	err  error
}

// NewHTTPIndex builds an index served at some URL
func NewHTTPIndex(url string, opts ...HTTPOption) *HTTPIndex {
	h := &HTTPIndex{
		url:        url,
		client:     cleanhttp.DefaultPooledClient(),
		timeout:    defaultHTTPTimeout,
		maxElapsed: 2 * time.Minute,
		l:          zap.NewNop(),
	}
	for _, apply := range opts {
		apply(h)
	}
	return h
}

func (h *HTTPIndex) fetchOnce(ctx context.Context) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, "", backoff.Permanent(err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", fmt.Errorf("fetching %s: %s", h.url, resp.Status)
	default:
		return nil, "", backoff.Permanent(fmt.Errorf("fetching %s: %s", h.url, resp.Status))
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return content, strings.Trim(resp.Header.Get("ETag"), `"`), nil
}

func (h *HTTPIndex) fetch(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = h.maxElapsed

	attempt := 0
	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		attempt++
		content, etag, err := h.fetchOnce(ctx)
		if err != nil {
			h.l.Debug("fetching recipe index", zap.String("url", h.url), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		idx, err := parseIndex("http@"+h.url, content)
		if err != nil {
			return backoff.Permanent(err)
		}
		h.idx, h.etag = idx, etag
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		h.err = ErrIndexUnavailable.Wrap(err)
		return
	}
	h.l.Info("fetched recipe index", zap.String("url", h.url), zap.Int("recipes", len(h.idx.entries)))
}

func (h *HTTPIndex) load(ctx context.Context) error {
	h.once.Do(func() { h.fetch(ctx) })
	return h.err
}

// Lookup an exact id
func (h *HTTPIndex) Lookup(ctx context.Context, id string) (string, bool, error) {
	if err := h.load(ctx); err != nil {
		return "", false, err
	}
	return h.idx.Lookup(ctx, id)
}

// IDs listed in the document
func (h *HTTPIndex) IDs(ctx context.Context) ([]string, error) {
	if err := h.load(ctx); err != nil {
		return nil, err
	}
	return h.idx.IDs(ctx)
}

// Fingerprint is the ETag of the document, or the hash of its content
func (h *HTTPIndex) Fingerprint(ctx context.Context) (string, error) {
	if err := h.load(ctx); err != nil {
		return "", err
	}
	if h.etag != "" {
		return "etag:" + h.etag, nil
	}
	return h.idx.Fingerprint(ctx)
}

func (h *HTTPIndex) String() string {
	return "http@" + h.url
}
