// Package cache persists recipe lookups across runs.
//
// Lookups are stored in a sqlite side-table keyed by source unit id and by the fingerprint
// of the recipe monorepo snapshot they were made against. A new snapshot never sees the
// answers of an older one. An in-process LRU sits in front of the table.
package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/serpent-os/pisi/pkg/errors"
	"github.com/serpent-os/pisi/pkg/recipes"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrCache is returned when the side-table cannot be read or written
var ErrCache = errors.New("recipe cache error")

const defaultLRUSize = 4096

// Option configures a Cache
type Option func(*Cache)

// LRUSize sets the number of lookups kept in memory
func LRUSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.lruSize = n
		}
	}
}

// Logger for the cache
func Logger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.l = l
		}
	}
}

type entry struct {
	path  string
	found bool
}

// Cache is the persistent lookup side-table.
type Cache struct {
	db      *sql.DB
	pth     string
	lruSize int
	front   *lru.Cache[string, entry]
	l       *zap.Logger
}

// Open the cache database, creating it when needed
func Open(pth string, opts ...Option) (*Cache, error) {
	c := &Cache{
		pth:     pth,
		lruSize: defaultLRUSize,
		l:       zap.NewNop(),
	}
	for _, apply := range opts {
		apply(c)
	}

	if dir := filepath.Dir(pth); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, ErrCache.Wrap(err)
		}
	}
	db, err := sql.Open("sqlite", pth)
	if err != nil {
		return nil, ErrCache.Wrap(err)
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, ErrCache.Wrap(err)
	}

	front, err := lru.New[string, entry](c.lruSize)
	if err != nil {
		_ = db.Close()
		return nil, ErrCache.Wrap(err)
	}
	c.db, c.front = db, front
	return c, nil
}

// Close the database
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) String() string {
	return "sqlite@" + c.pth
}

func lruKey(fingerprint, id string) string {
	return fingerprint + "\x00" + id
}

func (c *Cache) get(ctx context.Context, fingerprint, id string) (entry, bool, error) {
	if e, ok := c.front.Get(lruKey(fingerprint, id)); ok {
		return e, true, nil
	}
	var (
		e     entry
		found int
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT path, found FROM lookups WHERE fingerprint = ? AND id = ?`, fingerprint, id,
	).Scan(&e.path, &found)
	switch {
	case err == sql.ErrNoRows:
		return entry{}, false, nil
	case err != nil:
		return entry{}, false, ErrCache.Wrap(err)
	}
	e.found = found != 0
	c.front.Add(lruKey(fingerprint, id), e)
	return e, true, nil
}

func (c *Cache) put(ctx context.Context, fingerprint, id string, e entry) error {
	found := 0
	if e.found {
		found = 1
	}
	if _, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO lookups (fingerprint, id, path, found) VALUES (?, ?, ?, ?)`,
		fingerprint, id, e.path, found,
	); err != nil {
		return ErrCache.Wrap(err)
	}
	c.front.Add(lruKey(fingerprint, id), e)
	return nil
}

func (c *Cache) ids(ctx context.Context, fingerprint string) ([]string, bool, error) {
	var known int
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE fingerprint = ?`, fingerprint,
	).Scan(&known); err != nil {
		return nil, false, ErrCache.Wrap(err)
	}
	if known == 0 {
		return nil, false, nil
	}

	rows, err := c.db.QueryContext(ctx, `SELECT id FROM snapshot_ids WHERE fingerprint = ? ORDER BY id`, fingerprint)
	if err != nil {
		return nil, false, ErrCache.Wrap(err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, false, ErrCache.Wrap(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, false, ErrCache.Wrap(err)
	}
	return ids, true, nil
}

func (c *Cache) putIDs(ctx context.Context, fingerprint, source string, ids []string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return ErrCache.Wrap(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM snapshot_ids WHERE fingerprint = ?`, fingerprint); err != nil {
		return ErrCache.Wrap(err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_ids (fingerprint, id) VALUES (?, ?)`)
	if err != nil {
		return ErrCache.Wrap(err)
	}
	defer func() {
		_ = stmt.Close()
	}()
	for _, id := range ids {
		if _, err = stmt.ExecContext(ctx, fingerprint, id); err != nil {
			return ErrCache.Wrap(err)
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (fingerprint, source) VALUES (?, ?)`, fingerprint, source,
	); err != nil {
		return ErrCache.Wrap(err)
	}
	if err = tx.Commit(); err != nil {
		return ErrCache.Wrap(err)
	}
	return nil
}

// Invalidate drops every entry which does not belong to the given snapshot.
//
// An empty fingerprint drops everything.
func (c *Cache) Invalidate(ctx context.Context, fingerprint string) (int64, error) {
	var dropped int64
	for _, table := range []string{"lookups", "snapshot_ids", "snapshots"} {
		// table names come from the fixed list above
		res, err := c.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE fingerprint != ?`, fingerprint) // #nosec
		if err != nil {
			return dropped, ErrCache.Wrap(err)
		}
		if table == "lookups" {
			dropped, _ = res.RowsAffected()
		}
	}
	c.front.Purge()
	c.l.Info("invalidated recipe cache", zap.String("keep", fingerprint), zap.Int64("dropped", dropped))
	return dropped, nil
}

// Clear drops all entries
func (c *Cache) Clear(ctx context.Context) error {
	_, err := c.Invalidate(ctx, "")
	return err
}

// Stats about the content of the cache
type Stats struct {
	Snapshots int
	Lookups   int
}

// Stats counts the snapshots and lookups stored
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&s.Snapshots); err != nil {
		return s, ErrCache.Wrap(err)
	}
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lookups`).Scan(&s.Lookups); err != nil {
		return s, ErrCache.Wrap(err)
	}
	return s, nil
}

// Wrap an index with the cache
func (c *Cache) Wrap(index recipes.Index) *CachedIndex {
	return &CachedIndex{cache: c, index: index}
}

// CachedIndex serves lookups from the cache when the snapshot of the wrapped index is known.
type CachedIndex struct {
	cache *Cache
	index recipes.Index

	once        sync.Once
	fingerprint string
	err         error

	hits, misses int64
}

var _ recipes.CachingIndex = &CachedIndex{}

func (ci *CachedIndex) snapshot(ctx context.Context) (string, error) {
	ci.once.Do(func() {
		ci.fingerprint, ci.err = ci.index.Fingerprint(ctx)
	})
	return ci.fingerprint, ci.err
}

// LookupCached looks an id up, and tells if the answer came from the cache
func (ci *CachedIndex) LookupCached(ctx context.Context, id string) (string, bool, bool, error) {
	fp, err := ci.snapshot(ctx)
	if err != nil {
		return "", false, false, err
	}
	e, ok, err := ci.cache.get(ctx, fp, id)
	if err != nil {
		ci.cache.l.Warn("recipe cache read failed", zap.String("id", id), zap.Error(err))
	} else if ok {
		atomic.AddInt64(&ci.hits, 1)
		return e.path, e.found, true, nil
	}

	atomic.AddInt64(&ci.misses, 1)
	pth, found, err := ci.index.Lookup(ctx, id)
	if err != nil {
		return "", false, false, err
	}
	if err := ci.cache.put(ctx, fp, id, entry{path: pth, found: found}); err != nil {
		ci.cache.l.Warn("recipe cache write failed", zap.String("id", id), zap.Error(err))
	}
	return pth, found, false, nil
}

// Lookup an exact id
func (ci *CachedIndex) Lookup(ctx context.Context, id string) (string, bool, error) {
	pth, found, _, err := ci.LookupCached(ctx, id)
	return pth, found, err
}

// IDs of the snapshot, from the cache when known
func (ci *CachedIndex) IDs(ctx context.Context) ([]string, error) {
	fp, err := ci.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ids, ok, err := ci.cache.ids(ctx, fp)
	if err == nil && ok {
		return ids, nil
	}
	if err != nil {
		ci.cache.l.Warn("recipe cache read failed", zap.Error(err))
	}

	ids, err = ci.index.IDs(ctx)
	if err != nil {
		return nil, err
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	if err := ci.cache.putIDs(ctx, fp, ci.index.String(), sorted); err != nil {
		ci.cache.l.Warn("recipe cache write failed", zap.Error(err))
	}
	return sorted, nil
}

// Fingerprint of the wrapped index
func (ci *CachedIndex) Fingerprint(ctx context.Context) (string, error) {
	return ci.snapshot(ctx)
}

// Hits and misses so far
func (ci *CachedIndex) Hits() (int64, int64) {
	return atomic.LoadInt64(&ci.hits), atomic.LoadInt64(&ci.misses)
}

func (ci *CachedIndex) String() string {
	return "cached(" + ci.index.String() + ")"
}
