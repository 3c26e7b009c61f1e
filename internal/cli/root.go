// Package cli implements the docrag command line.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"docrag/internal/app"
	"docrag/internal/config"
	"docrag/internal/contextutil"
	"docrag/internal/indexer"
	"docrag/internal/rag"
	"docrag/internal/scanner"
	"docrag/internal/vectorstore"
)

// Services bundles what the commands operate on.
type Services struct {
	Ingester    indexer.Ingester
	Engine      rag.Engine
	VectorStore vectorstore.VectorStore
	Filter      scanner.Filter
	Collection  string
	Dimension   int
	Distance    vectorstore.Distance
}

var (
	services *Services
	closeFn  func() error
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "docrag",
	Short: "Semantic document retrieval",
	Long: `docrag ingests PDF, markdown and plain text documents into a vector store
and answers semantic search queries over them.

Configuration is read from the environment (and a .env file) exactly as the API server does.`,
	SilenceUsage:      true,
	PersistentPreRunE: ensureServices,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline progress to stderr")
}

// SetServices injects services, bypassing configuration loading.
func SetServices(s *Services) {
	services = s
	closeFn = nil
}

// Close releases connections opened by configuration loading.
func Close() error {
	if closeFn == nil {
		return nil
	}
	err := closeFn()
	closeFn = nil
	services = nil
	return err
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// ensureServices builds the services from configuration unless they were injected.
func ensureServices(cmd *cobra.Command, _ []string) error {
	if services != nil {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !verbose {
		cfg.LogLevel = max(cfg.LogLevel, slog.LevelWarn)
	}
	logger := app.NewLogger(cfg, os.Stderr)
	ctx := contextutil.WithLogger(cmd.Context(), logger)
	cmd.SetContext(ctx)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	services = &Services{
		Ingester:    a.Pipeline,
		Engine:      a.Engine,
		VectorStore: a.VectorStore,
		Filter:      a.Extractor,
		Collection:  cfg.Collection,
		Dimension:   cfg.Retrieval.VectorDimension,
		Distance:    a.Distance,
	}
	closeFn = a.Close
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var errNoServices = errors.New("services not configured")

func requireServices() (*Services, error) {
	if services == nil {
		return nil, errNoServices
	}
	return services, nil
}
