// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"io"

	"github.com/serpent-os/pisi/pkg/recipes/cache"
	"github.com/spf13/cobra"
)

type cacheStats struct {
	Path      string `json:"path" yaml:"path"`
	Snapshots int    `json:"snapshots" yaml:"snapshots"`
	Lookups   int    `json:"lookups" yaml:"lookups"`
}

var cacheTable = FormatterFunc(func(w io.Writer, data interface{}) error {
	s := data.(cacheStats)
	_, err := fmt.Fprintf(w, "%s: %d lookups over %d recipe snapshots\n", s.Path, s.Lookups, s.Snapshots)
	return err
})

// withCache runs fn on the configured lookup cache
func withCache(fn func(*cache.Cache) error) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("no recipe cache specified (--%s)", cacheKey)
	}
	defer func() {
		_ = c.Close()
	}()
	return fn(c)
}

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Commands to manage the recipe lookup cache",
		Long: `Commands to manage the recipe lookup cache.

The cache remembers recipe lookups per snapshot of the recipe monorepo. Lookups of a
snapshot are reused until the monorepo changes.
`,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Count the entries of the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			present, err := formatter(cacheTable)
			if err != nil {
				return err
			}
			return withCache(func(c *cache.Cache) error {
				stats, err := c.Stats(commandContext(cmd))
				if err != nil {
					return err
				}
				return present.Format(outWriter, cacheStats{
					Path:      config.GetString(cacheKey),
					Snapshots: stats.Snapshots,
					Lookups:   stats.Lookups,
				})
			})
		},
	}
	addCacheFlag(statsCmd)
	addFormatFlag(statsCmd, formatTable, formatTable, formatYAML, formatJSON)

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop all the entries of the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(c *cache.Cache) error {
				return c.Clear(commandContext(cmd))
			})
		},
	}
	addCacheFlag(clearCmd)

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop the entries of every snapshot but the current one of the recipe monorepo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := openRecipeIndex(config.GetString(recipesKey))
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			fp, err := index.Fingerprint(ctx)
			if err != nil {
				return err
			}
			return withCache(func(c *cache.Cache) error {
				dropped, err := c.Invalidate(ctx, fp)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(outWriter, "dropped %d lookups\n", dropped)
				return err
			})
		},
	}
	addCacheFlag(pruneCmd)
	addRecipesFlag(pruneCmd)

	cacheCmd.AddCommand(statsCmd, clearCmd, pruneCmd)
	return cacheCmd
}
