// sectionquery resolves path expressions against GraphQL documents by
// loading only the sections an expression needs
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nainya/sectionquery/internal/config"
	"github.com/nainya/sectionquery/internal/logger"
	"github.com/nainya/sectionquery/pkg/query"
	"github.com/nainya/sectionquery/pkg/storage"
)

var (
	configPath string
	logLevel   string
	storeRoot  string
	jsonOutput bool

	cfg config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sectionquery",
	Short: "Query GraphQL documents section by section",
	Long: `sectionquery evaluates XPath-like expressions against GraphQL documents.
Only the sections an expression needs are located and parsed, and located
sections and results are cached for the life of the process.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("root") {
			cfg.Store.Root = storeRoot
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		log = logger.NewLogger(cfg.LoggerConfig())
		logger.InitGlobalLogger(cfg.LoggerConfig())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().StringVar(&storeRoot, "root", "", "document root directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(queryCmd, batchCmd, compareCmd, sectionsCmd, serveCmd)
}

// newEngine builds an engine over the configured file store
func newEngine(opts ...query.Option) (*query.Engine, *storage.FileStore) {
	fs := storage.NewFileStore(cfg.Store.Root)
	opts = append(cfg.EngineOptions(), append(opts, query.WithLogger(log))...)
	return query.New(fs, opts...), fs
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
