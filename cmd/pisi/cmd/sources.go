package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/serpent-os/pisi/pkg/payload"
	"github.com/serpent-os/pisi/pkg/recipes"
	"github.com/serpent-os/pisi/pkg/recipes/cache"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// openRecipeIndex picks the recipe index implementation from the shape of its location
func openRecipeIndex(location string) (recipes.Index, error) {
	if location == "" {
		return nil, fmt.Errorf("no recipe index specified (--%s)", recipesKey)
	}
	if isURL(location) {
		return recipes.NewHTTPIndex(location,
			recipes.HTTPTimeout(config.GetDuration(lookupTimeoutKey)),
			recipes.HTTPLogger(logger),
		), nil
	}
	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("recipe index: %w", err)
	}
	if info.IsDir() {
		return recipes.NewDirIndex(afero.NewOsFs(), location), nil
	}
	return recipes.LoadFileIndex(afero.NewOsFs(), location)
}

// openCache opens the lookup cache, when one is configured
func openCache() (*cache.Cache, error) {
	pth := config.GetString(cacheKey)
	if pth == "" {
		return nil, nil
	}
	return cache.Open(pth, cache.Logger(logger))
}

// newResolver builds the recipe resolver, fronted by the lookup cache when configured.
//
// The returned function closes the cache and logs its hit ratio.
func newResolver(ctx context.Context) (*recipes.Resolver, func(), error) {
	index, err := openRecipeIndex(config.GetString(recipesKey))
	if err != nil {
		return nil, nil, err
	}
	c, err := openCache()
	if err != nil {
		return nil, nil, err
	}
	closer := func() {}
	var cached *cache.CachedIndex
	if c != nil {
		cached = c.Wrap(index)
		index = cached
		closer = func() {
			hits, misses := cached.Hits()
			logger.Info("recipe cache usage", zap.Stringer("cache", c), zap.Int64("hits", hits), zap.Int64("misses", misses))
			_ = c.Close()
		}
	}

	resolver, err := recipes.NewResolver(ctx, index,
		recipes.LookupTimeout(config.GetDuration(lookupTimeoutKey)),
		recipes.Logger(logger),
	)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return resolver, closer, nil
}

// openPayloads picks a local mirror or a remote repository with a download cache
// upstreamBase is where the recipes fetch payloads from, when not the default repository
func upstreamBase() string {
	if base := config.GetString(upstreamBaseKey); base != "" {
		return base
	}
	if location := config.GetString(payloadsKey); isURL(location) {
		return location
	}
	return ""
}

func openPayloads() (payload.Source, func(), error) {
	location := config.GetString(payloadsKey)
	if location == "" {
		return nil, nil, fmt.Errorf("no payload location specified (--%s)", payloadsKey)
	}
	if !isURL(location) {
		info, err := os.Stat(location)
		if err != nil {
			return nil, nil, fmt.Errorf("payloads: %w", err)
		}
		if !info.IsDir() {
			return nil, nil, fmt.Errorf("payloads: %s is not a directory", location)
		}
		return payload.NewDirSource(afero.NewOsFs(), location, payload.Verify(true)), func() {}, nil
	}

	cacheDir := config.GetString(payloadCacheKey)
	if cacheDir == "" {
		userCache, err := os.UserCacheDir()
		if err != nil {
			return nil, nil, fmt.Errorf("no payload cache directory (--%s): %w", payloadCacheKey, err)
		}
		cacheDir = filepath.Join(userCache, "pisi", "payloads")
	}
	source, err := payload.NewHTTPSource(location, cacheDir, payload.HTTPLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return source, func() {
		_ = source.Close()
	}, nil
}
