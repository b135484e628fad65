// Package commands implements the silt CLI for inspecting and maintaining
// task state directories.
package commands

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/silt-io/silt/internal/logger"
	"github.com/silt-io/silt/pkg/config"
	"github.com/silt-io/silt/pkg/metrics"
	"github.com/silt-io/silt/pkg/statedir"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "silt",
	Short: "silt - state management for stream-processing tasks",
	Long: `silt manages the on-disk state of stream-processing tasks: per-task
state directories, exclusive directory locks and offset checkpoints.

The CLI inspects and maintains a state root produced by a silt-embedding
application. Use "silt [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(offsetsCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadEnvironment loads configuration and initializes logging, metrics and
// the state directory registry for a command run.
func loadEnvironment() (*config.Config, *statedir.StateDirectory, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, nil, err
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Init(prometheus.DefaultRegisterer); err != nil {
			return nil, nil, err
		}
	}

	dir, err := statedir.New(cfg.State.Dir)
	if err != nil {
		return nil, nil, err
	}
	return cfg, dir, nil
}
