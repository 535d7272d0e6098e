// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"io"

	"github.com/serpent-os/pisi/pkg/filter"
	"github.com/serpent-os/pisi/pkg/grouper"
	"github.com/serpent-os/pisi/pkg/index"
	"github.com/spf13/cobra"
)

type unitInfo struct {
	Unit     string   `json:"unit" yaml:"unit"`
	Version  string   `json:"version" yaml:"version"`
	Release  uint64   `json:"release" yaml:"release"`
	Packages []string `json:"packages" yaml:"packages"`
}

type indexInfo struct {
	Distribution string     `json:"distribution" yaml:"distribution"`
	Packages     int        `json:"packages" yaml:"packages"`
	Skipped      []string   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Duplicates   []string   `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
	Units        []unitInfo `json:"units" yaml:"units"`
}

var indexTable = FormatterFunc(func(w io.Writer, data interface{}) error {
	info := data.(*indexInfo)
	for _, u := range info.Units {
		if _, err := fmt.Fprintf(w, "%s\t%s-%d\t%v\n", u.Unit, u.Version, u.Release, u.Packages); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\n%s: %d packages in %d units, %d skipped, %d duplicates\n",
		info.Distribution, info.Packages, len(info.Units), len(info.Skipped), len(info.Duplicates))
	return err
})

func newIndexCmd() *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Commands to examine an eopkg index",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "List the source units of an index, with their packages",
		Long: `List the source units of an index, with their packages.

Selection patterns apply as for the convert command, so this shows what a conversion would process.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			present, err := formatter(indexTable)
			if err != nil {
				return err
			}
			doc, err := index.Open(commandContext(cmd), nil, config.GetString(indexKey))
			if err != nil {
				return err
			}
			sel, err := filter.New(config.GetStringSlice(includeKey), config.GetStringSlice(excludeKey))
			if err != nil {
				return err
			}

			groups := grouper.Group(doc.Records)
			info := &indexInfo{Distribution: doc.Distribution.Name, Packages: len(doc.Records)}
			for _, perr := range doc.ParseErrors() {
				info.Skipped = append(info.Skipped, perr.Error())
			}
			for _, dup := range groups.Duplicates() {
				info.Duplicates = append(info.Duplicates, dup.String())
			}
			for _, unit := range groups.Units() {
				if !sel.InScope(unit.ID) {
					continue
				}
				info.Units = append(info.Units, unitInfo{
					Unit:     unit.ID,
					Version:  unit.Version(),
					Release:  unit.Release(),
					Packages: unit.MemberNames(),
				})
			}
			return present.Format(outWriter, info)
		},
	}
	addIndexFlag(showCmd)
	showCmd.Flags().StringSlice(includeKey, nil, "Show only the source units matching these glob patterns")
	showCmd.Flags().StringSlice(excludeKey, nil, "Hide the source units matching these glob patterns")
	addFormatFlag(showCmd, formatTable, formatTable, formatYAML, formatJSON)

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Write an index as YAML, e.g. to prepare test fixtures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := index.Open(commandContext(cmd), nil, config.GetString(indexKey))
			if err != nil {
				return err
			}
			return index.Write(outWriter, doc)
		},
	}
	addIndexFlag(dumpCmd)

	indexCmd.AddCommand(showCmd, dumpCmd)
	return indexCmd
}
