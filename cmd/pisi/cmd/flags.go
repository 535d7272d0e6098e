// Copyright © 2018 One Concern

package cmd

import (
	"runtime"
	"time"

	"github.com/serpent-os/pisi/pkg/dlogger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	envPrefix = "PISI"
	configEnv = "PISI_CONFIG"
)

// configuration keys, also used as flag names
const (
	logLevelKey      = "log-level"
	logFormatKey     = "log-format"
	cpuProfKey       = "cpu-prof"
	memProfKey       = "mem-prof"
	indexKey         = "index"
	payloadsKey      = "payloads"
	payloadCacheKey  = "payload-cache"
	upstreamBaseKey  = "upstream-base"
	recipesKey       = "recipes"
	outputKey        = "output"
	workdirKey       = "workdir"
	includeKey       = "include"
	excludeKey       = "exclude"
	componentsKey    = "components"
	withKey          = "with"
	concurrencyKey   = "concurrency"
	extractorsKey    = "extractors"
	unitTimeoutKey   = "unit-timeout"
	lookupTimeoutKey = "lookup-timeout"
	cacheKey         = "cache"
	keepStagingKey   = "keep-staging"
	integrityKey     = "integrity"
	metricsFileKey   = "metrics-file"
	formatKey        = "format"
)

// bindFlags binds the flags of the command being run to the configuration keys of the same name.
//
// Only the running command is bound: several commands declare the same flags.
func bindFlags(cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if berr := config.BindPFlag(f.Name, f); berr != nil && err == nil {
			err = berr
		}
	})
	return err
}

func addRootFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String(logLevelKey, dlogger.LogLevelInfo, "Log level: debug, info, warn, error or none")
	flags.String(logFormatKey, dlogger.FormatConsole, "Log format: console or json")
	flags.String(cpuProfKey, "", "Write a cpu profile to this file")
	flags.String(memProfKey, "", "Write memory profiles to this directory when the command completes")
}

func addIndexFlag(cmd *cobra.Command) string {
	cmd.Flags().String(indexKey, "", "The eopkg index to convert: eopkg-index.xml, optionally xz or zstd compressed")
	return indexKey
}

func addRecipesFlag(cmd *cobra.Command) string {
	cmd.Flags().String(recipesKey, "", "The recipe monorepo: a checkout directory, a YAML {id: path} file or an http(s) URL to such a file")
	return recipesKey
}

func addCacheFlag(cmd *cobra.Command) string {
	cmd.Flags().String(cacheKey, "", "The recipe lookup cache database. Lookups are not cached when empty")
	return cacheKey
}

func addFormatFlag(cmd *cobra.Command, defaultFormat string, formats ...string) string {
	cmd.Flags().String(formatKey, defaultFormat, "Output format, one of "+joinFormats(formats))
	return formatKey
}

func addConvertFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	addIndexFlag(cmd)
	addRecipesFlag(cmd)
	addCacheFlag(cmd)
	flags.String(payloadsKey, "", "Where payloads are found: a local mirror directory or an http(s) base URL")
	flags.String(payloadCacheKey, "", "The download cache for remote payloads. Defaults to a pisi directory in the user cache")
	flags.String(upstreamBaseKey, "", "The repository URL of the upstreams listed in recipes. Defaults to --payloads when remote")
	flags.String(outputKey, "", "The output directory, receiving one directory per source unit")
	flags.String(workdirKey, "", "The staging area for extracted payloads. Defaults to <output>/.pisi-work")
	flags.StringSlice(includeKey, nil, "Convert only the source units matching these glob patterns")
	flags.StringSlice(excludeKey, nil, "Skip the source units matching these glob patterns")
	flags.StringSlice(componentsKey, nil, "Convert the base system made of the packages of these components, with their runtime dependencies")
	flags.StringSlice(withKey, nil, "Packages added to the base system selection")
	flags.Int(concurrencyKey, runtime.GOMAXPROCS(0), "The number of source units converted concurrently")
	flags.Int(extractorsKey, 4, "The number of packages extracted concurrently within a source unit")
	flags.Duration(unitTimeoutKey, 10*time.Minute, "Bound on payload reads and lookups for a single source unit, 0 to disable")
	flags.Duration(lookupTimeoutKey, 30*time.Second, "Bound on a single recipe lookup")
	flags.Bool(keepStagingKey, false, "Keep extracted payloads after conversion, for debugging")
	flags.Bool(integrityKey, true, "Check payloads against their declared file lists")
	flags.String(metricsFileKey, "", "Write run metrics to this file, in the prometheus text format")
	addFormatFlag(cmd, formatTable, formatTable, formatYAML, formatJSON, formatNone)
}
