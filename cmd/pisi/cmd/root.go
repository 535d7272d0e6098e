// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/serpent-os/pisi/internal"
	"github.com/serpent-os/pisi/pkg/dlogger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	config *viper.Viper
	logger = zap.NewNop()

	stopCPUProf func()
)

// newRootCmd builds the command tree. Flags are bound to a fresh configuration on every call.
func newRootCmd() *cobra.Command {
	config = viper.New()
	rootCmd := &cobra.Command{
		Use:   "pisi",
		Short: "pisi converts eopkg binary packages into stone.yml recipes",
		Long: `pisi converts the binary packages of an eopkg distribution index into stone.yml recipes.

Packages are grouped by source unit. Each unit gets a recipe which reinstalls the files
shipped by its packages, along with the import tree holding these files:

  <output>/<unit>/stone.yml
  <output>/<unit>/pkg/import/...

Conversions are deterministic: running pisi twice on the same inputs yields identical outputs.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(cmd); err != nil {
				return err
			}
			if err := initConfig(); err != nil {
				return err
			}
			l, err := dlogger.GetLoggerWithFormat(config.GetString(logLevelKey), config.GetString(logFormatKey))
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			logger = l
			if used := config.ConfigFileUsed(); used != "" {
				logger.Debug("using config file", zap.String("path", used))
			}
			if pth := config.GetString(cpuProfKey); pth != "" {
				stopCPUProf, err = internal.StartCPUProfile(pth)
				if err != nil {
					return err
				}
			}
			return nil
		},
		// upstream api note:  *PostRun functions aren't called when Run returns an error
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			finish()
		},
	}

	addRootFlags(rootCmd)
	rootCmd.AddCommand(
		newConvertCmd(),
		newIndexCmd(),
		newInspectCmd(),
		newCacheCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// finish flushes profiles and logs, before the process exits
func finish() {
	if stopCPUProf != nil {
		stopCPUProf()
		stopCPUProf = nil
	}
	if dir := config.GetString(memProfKey); dir != "" {
		if _, err := internal.WriteMemProfiles(internal.MemProfParams{DestDir: dir, Logger: logger}); err != nil {
			logger.Warn("could not write memory profiles", zap.Error(err))
		}
	}
	_ = logger.Sync()
}

// Execute runs the pisi command line. This is called by main.main().
func Execute() {
	osExit(execute(os.Args[1:]))
}

// execute a command line, returning the exit code of the process
func execute(args []string) int {
	exitCode = exitOK
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(outWriter)
	rootCmd.SetErr(errWriter)
	if err := rootCmd.Execute(); err != nil {
		return reportFatal(err)
	}
	return exitCode
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	config.SetEnvPrefix(envPrefix)
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()

	if pth := os.Getenv(configEnv); pth != "" {
		config.SetConfigFile(pth)
	} else {
		config.AddConfigPath(".")
		config.AddConfigPath("$HOME/.pisi")
		config.AddConfigPath("/etc/pisi")
		config.SetConfigName("pisi")
	}

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}
