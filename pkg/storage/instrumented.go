// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"
)

// Instrument decorates a store with debug logging of every write
func Instrument(l *zap.Logger, store Store) Store {
	if l == nil {
		l = zap.NewNop()
	}
	return &instrumentedStore{
		store: store,
		l:     l.With(zap.String("store", store.String())),
	}
}

type instrumentedStore struct {
	store Store
	l     *zap.Logger
}

func (i *instrumentedStore) Has(ctx context.Context, key string) (bool, error) {
	return i.store.Has(ctx, key)
}

func (i *instrumentedStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return i.store.Get(ctx, key)
}

func (i *instrumentedStore) Put(ctx context.Context, key string, rdr io.Reader, perm os.FileMode) error {
	err := i.store.Put(ctx, key, rdr, perm)
	i.l.Debug("storage put", zap.String("key", key), zap.Stringer("mode", perm), zap.Error(err))
	return err
}

func (i *instrumentedStore) Symlink(ctx context.Context, key, target string) error {
	err := i.store.Symlink(ctx, key, target)
	i.l.Debug("storage symlink", zap.String("key", key), zap.String("target", target), zap.Error(err))
	return err
}

func (i *instrumentedStore) Mkdir(ctx context.Context, key string, perm os.FileMode) error {
	err := i.store.Mkdir(ctx, key, perm)
	i.l.Debug("storage mkdir", zap.String("key", key), zap.Error(err))
	return err
}

func (i *instrumentedStore) Delete(ctx context.Context, key string) error {
	i.l.Debug("storage delete", zap.String("key", key))
	return i.store.Delete(ctx, key)
}

func (i *instrumentedStore) Keys(ctx context.Context) ([]string, error) {
	return i.store.Keys(ctx)
}

func (i *instrumentedStore) Clear(ctx context.Context) error {
	i.l.Debug("storage clear")
	return i.store.Clear(ctx)
}

func (i *instrumentedStore) Close() error {
	return i.store.Close()
}

func (i *instrumentedStore) String() string {
	return i.store.String()
}
