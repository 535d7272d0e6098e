// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
	"os"
)

// Store implementations know how to write the entries of a file tree.
//
// Keys are slash separated paths relative to the root of the store. A leading slash is ignored.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader, os.FileMode) error
	Symlink(ctx context.Context, key, target string) error
	Mkdir(context.Context, string, os.FileMode) error
	Delete(context.Context, string) error
	Keys(context.Context) ([]string, error)
	Clear(context.Context) error
	Close() error
}

// ContextReader interrupts reads as soon as the context is done
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
