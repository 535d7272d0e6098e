package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// CLIConfig describes the settings of a conversion, as read from flags, PISI_* variables
// and the pisi.yaml config file, in this order of precedence.
type CLIConfig struct {
	Index         string        `mapstructure:"index" yaml:"index"`
	Payloads      string        `mapstructure:"payloads" yaml:"payloads"`
	UpstreamBase  string        `mapstructure:"upstream-base" yaml:"upstream-base,omitempty"`
	PayloadCache  string        `mapstructure:"payload-cache" yaml:"payload-cache,omitempty"`
	Recipes       string        `mapstructure:"recipes" yaml:"recipes"`
	Cache         string        `mapstructure:"cache" yaml:"cache,omitempty"`
	Output        string        `mapstructure:"output" yaml:"output"`
	Workdir       string        `mapstructure:"workdir" yaml:"workdir,omitempty"`
	Include       []string      `mapstructure:"include" yaml:"include,omitempty"`
	Exclude       []string      `mapstructure:"exclude" yaml:"exclude,omitempty"`
	Components    []string      `mapstructure:"components" yaml:"components,omitempty"`
	With          []string      `mapstructure:"with" yaml:"with,omitempty"`
	Concurrency   int           `mapstructure:"concurrency" yaml:"concurrency"`
	Extractors    int           `mapstructure:"extractors" yaml:"extractors"`
	UnitTimeout   time.Duration `mapstructure:"unit-timeout" yaml:"unit-timeout"`
	LookupTimeout time.Duration `mapstructure:"lookup-timeout" yaml:"lookup-timeout"`
	KeepStaging   bool          `mapstructure:"keep-staging" yaml:"keep-staging"`
	Integrity     bool          `mapstructure:"integrity" yaml:"integrity"`
	MetricsFile   string        `mapstructure:"metrics-file" yaml:"metrics-file,omitempty"`
	LogLevel      string        `mapstructure:"log-level" yaml:"log-level"`
	LogFormat     string        `mapstructure:"log-format" yaml:"log-format"`
}

func newCLIConfig() (*CLIConfig, error) {
	var c CLIConfig
	if err := config.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Commands to manage the pisi configuration",
		Long: `Commands to manage the pisi configuration.

Settings are read from the command line flags, then PISI_* environment variables
(e.g. PISI_UNIT_TIMEOUT=5m), then the pisi.yaml config file. The config file is searched
in the current directory, $HOME/.pisi and /etc/pisi, unless PISI_CONFIG points to it.
`,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective conversion settings, in the config file format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCLIConfig()
			if err != nil {
				return err
			}
			b, err := yaml.Marshal(c)
			if err != nil {
				return err
			}
			_, err = outWriter.Write(b)
			return err
		},
	}
	addConvertFlags(showCmd)

	configCmd.AddCommand(showCmd)
	return configCmd
}
