// Command studio serves and browses tabular explorer views backed by a
// cached fetch orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arkilian/studio/internal/config"
	"github.com/arkilian/studio/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

// globalOptions are the flags shared by every command. Set flags take
// priority over STUDIO_* environment variables, which take priority over the
// config file.
type globalOptions struct {
	configFile string
	dataDir    string
	logLevel   string
	sourceType string
	sourcePath string
	verbose    bool

	logger *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "studio",
		Short: "Explore tables through cached, searchable, sortable views",
		Long: `studio loads named views declared in a config file. Each view fetches a
batch of tables together, caches the result for a TTL, and explores each
table with search, single-select filters, sorting and pagination.

Environment variables use the STUDIO_ prefix, for example STUDIO_HTTP_ADDR,
STUDIO_SOURCE_TYPE or STUDIO_CACHE_TTL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			level := opts.logLevel
			if opts.verbose {
				level = "debug"
			}
			if level == "" {
				level = "warn"
			}
			logger, err := logging.New(config.LogConfig{Level: level, Development: opts.verbose})
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "path to configuration file (YAML or JSON)")
	pf.StringVar(&opts.dataDir, "data-dir", "", "base directory for local data files")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&opts.sourceType, "source", "", "row source type: memory, sqlite, local, s3, grpc")
	pf.StringVar(&opts.sourcePath, "source-path", "", "source path (seed file, database or object directory)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newBrowseCmd(opts),
		newSnapshotCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig layers the config file, the environment and the global flags.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if o.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(o.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.sourceType != "" {
		cfg.Source.Type = o.sourceType
	}
	if o.sourcePath != "" {
		cfg.Source.Path = o.sourcePath
	}
	return cfg, nil
}

func (o *globalOptions) log() *zap.Logger {
	return logging.OrNop(o.logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "studio version %s (commit: %s)\n", version, commit)
		},
	}
}
