// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/serpent-os/pisi/pkg/archive"
	"github.com/serpent-os/pisi/pkg/filter"
	"github.com/serpent-os/pisi/pkg/index"
	"github.com/serpent-os/pisi/pkg/metrics"
	"github.com/serpent-os/pisi/pkg/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert the packages of an eopkg index into stone.yml recipes",
		Long: `Convert the packages of an eopkg index into stone.yml recipes, one per source unit.

The command exits with status 0 when all selected units are converted (units without any file
are reported but do not fail the run), 1 when some units failed, and 2 when the run could not start.

Example:

  pisi convert --index eopkg-index.xml.xz --payloads https://packages.getsol.us/unstable/ \
    --recipes ./recipes --output ./converted --include 'python-*'
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sum, err := convert(ctx)
			if err != nil {
				return err
			}
			exitCode = exitOK
			if sum.ExitCode() != 0 {
				exitCode = exitUnitFailures
			}
			return nil
		},
	}
	addConvertFlags(cmd)
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// selection builds the unit filter, extended with the base system closure when components are given
func selection(doc *index.Document) (*filter.Filter, []string, error) {
	sel, err := filter.New(config.GetStringSlice(includeKey), config.GetStringSlice(excludeKey))
	if err != nil {
		return nil, nil, err
	}
	components, extra := config.GetStringSlice(componentsKey), config.GetStringSlice(withKey)
	if len(components) == 0 && len(extra) == 0 {
		return sel, nil, nil
	}
	sel, missing, err := sel.WithClosure(doc.Records, components, extra)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("base system selection",
		zap.Strings("components", components),
		zap.Int("units", len(sel.Closure())),
		zap.Strings("missing", missing),
	)
	return sel, missing, nil
}

func convert(ctx context.Context) (*pipeline.Summary, error) {
	output := config.GetString(outputKey)
	if output == "" {
		return nil, fmt.Errorf("no output directory specified (--%s)", outputKey)
	}
	indexPath := config.GetString(indexKey)
	if indexPath == "" {
		return nil, fmt.Errorf("no index specified (--%s)", indexKey)
	}
	present, err := formatter(summaryTable)
	if err != nil {
		return nil, err
	}

	doc, err := index.Open(ctx, nil, indexPath)
	if err != nil {
		return nil, err
	}
	sel, missing, err := selection(doc)
	if err != nil {
		return nil, err
	}

	resolver, closeResolver, err := newResolver(ctx)
	if err != nil {
		return nil, err
	}
	defer closeResolver()

	source, closeSource, err := openPayloads()
	if err != nil {
		return nil, err
	}
	defer closeSource()

	m := metrics.New()
	opts := []pipeline.Option{
		pipeline.Logger(logger),
		pipeline.Concurrency(config.GetInt(concurrencyKey)),
		pipeline.Extractors(config.GetInt(extractorsKey)),
		pipeline.UnitTimeout(config.GetDuration(unitTimeoutKey)),
		pipeline.Filter(sel),
		pipeline.KeepStaging(config.GetBool(keepStagingKey)),
		pipeline.Metrics(m),
		pipeline.MissingDependencies(missing),
		pipeline.ArchiveOptions(archive.CheckIntegrity(config.GetBool(integrityKey))),
	}
	if wr := config.GetString(workdirKey); wr != "" {
		opts = append(opts, pipeline.WorkRoot(wr))
	}
	if base := upstreamBase(); base != "" {
		opts = append(opts, pipeline.UpstreamBase(base))
	}

	sum, err := pipeline.New(resolver, source, output, opts...).Run(ctx, doc)
	if err != nil {
		return nil, err
	}

	if pth := config.GetString(metricsFileKey); pth != "" {
		if merr := m.WriteToTextfile(pth); merr != nil {
			logger.Warn("could not write metrics", zap.String("path", pth), zap.Error(merr))
		}
	}
	if err = present.Format(outWriter, sum); err != nil {
		return nil, err
	}
	return sum, nil
}
