package recipes

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/serpent-os/pisi/pkg/errors"
	"github.com/serpent-os/pisi/pkg/model"
	"go.uber.org/zap"
)

const defaultLookupTimeout = 10 * time.Second

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// LookupTimeout bounds every lookup against the index
func LookupTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// Logger for the resolver
func Logger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.l = l
		}
	}
}

// Resolver finds the recipe location of source units.
//
// The folded lookup table is built once by NewResolver and only read afterwards:
// a resolver is safe for concurrent use.
type Resolver struct {
	index   Index
	folded  map[string]string
	timeout time.Duration
	l       *zap.Logger
}

// Fold normalizes an id for fuzzy matching: lower case, with underscores as hyphens
func Fold(id string) string {
	return strings.ReplaceAll(strings.ToLower(id), "_", "-")
}

// NewResolver loads the ids known to the index and builds the fallback table
func NewResolver(ctx context.Context, index Index, opts ...ResolverOption) (*Resolver, error) {
	r := &Resolver{
		index:   index,
		timeout: defaultLookupTimeout,
		l:       zap.NewNop(),
	}
	for _, apply := range opts {
		apply(r)
	}

	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ids, err := index.IDs(lctx)
	if err != nil {
		return nil, ErrIndexUnavailable.Wrap(err)
	}

	// several ids may fold to the same key: the smallest one wins
	sort.Strings(ids)
	r.folded = make(map[string]string, len(ids))
	for _, id := range ids {
		key := Fold(id)
		if _, ok := r.folded[key]; !ok {
			r.folded[key] = id
		}
	}
	r.l.Debug("recipe resolver ready", zap.Stringer("index", index), zap.Int("recipes", len(ids)))
	return r, nil
}

func (r *Resolver) lookup(ctx context.Context, id string) (string, bool, bool, error) {
	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		pth           string
		found, cached bool
		err           error
	)
	if ci, ok := r.index.(CachingIndex); ok {
		pth, found, cached, err = ci.LookupCached(lctx, id)
	} else {
		pth, found, err = r.index.Lookup(lctx, id)
	}
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return "", false, false, ctx.Err()
		case errors.Is(lctx.Err(), context.DeadlineExceeded):
			return "", false, false, ErrLookupTimeout.Wrap(err)
		default:
			return "", false, false, ErrLookup.Wrap(err)
		}
	}
	return pth, found, cached, nil
}

// Resolve the recipe location of a source unit.
//
// The id is first looked up exactly, then through its folded form. An id found neither way
// is unresolved, which is not an error. Errors only report a failing index.
func (r *Resolver) Resolve(ctx context.Context, id string) (model.RecipeLocation, error) {
	pth, found, cached, err := r.lookup(ctx, id)
	if err != nil {
		return model.Unresolved(id), err
	}
	if found {
		match := model.MatchExact
		if cached {
			match = model.MatchCached
		}
		return model.RecipeLocation{ID: id, Path: pth, Resolved: true, Match: match}, nil
	}

	canonical, ok := r.folded[Fold(id)]
	if !ok || canonical == id {
		r.l.Debug("unresolved recipe", zap.String("unit", id))
		return model.Unresolved(id), nil
	}
	pth, found, _, err = r.lookup(ctx, canonical)
	if err != nil {
		return model.Unresolved(id), err
	}
	if !found {
		return model.Unresolved(id), nil
	}
	r.l.Debug("recipe resolved by folded match", zap.String("unit", id), zap.String("recipe", canonical))
	return model.RecipeLocation{ID: id, Path: pth, Resolved: true, Match: model.MatchFolded}, nil
}

// Index the resolver reads from
func (r *Resolver) Index() Index {
	return r.index
}
