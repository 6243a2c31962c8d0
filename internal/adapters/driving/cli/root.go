// Package cli implements the quire command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quire/internal/adapters/driven/ai"
	"github.com/custodia-labs/quire/internal/adapters/driven/config/file"
	"github.com/custodia-labs/quire/internal/app"
	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driving"
	"github.com/custodia-labs/quire/internal/core/services"
	"github.com/custodia-labs/quire/internal/logger"
)

// skipSettings marks commands that run without resolved settings.
const skipSettings = "skip-settings"

// Container builds the services a command needs from one shared store.
type Container interface {
	Crawl() driving.CrawlService
	Index(ctx context.Context) (driving.IndexService, error)
	Pipeline(ctx context.Context) (driving.PipelineService, error)
	Answer(ctx context.Context) (driving.AnswerService, error)
	Health() driving.HealthService
	Close() error
}

var (
	version = "dev"

	cfgFile string
	dataDir string
	verbose bool

	settingsService driving.SettingsService
	settings        *domain.Settings

	// newContainer opens the store. Tests swap it for a fake.
	newContainer = func(s *domain.Settings) (Container, error) {
		a, err := app.New(s)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
)

var rootCmd = &cobra.Command{
	Use:   "quire",
	Short: "Answer questions from a crawled website",
	Long: `Quire crawls a website from its sitemap, indexes the pages into a local
vector store and answers questions with citations to the pages it used.

  quire pipeline https://example.org/sitemap.xml
  quire ask "What does the site say about ozone?"`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file or directory (default ~/.quire/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.quire)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// Execute runs the root command until it returns or the process is interrupted.
func Execute(v string) error {
	version = v

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func loadSettings(cmd *cobra.Command, _ []string) error {
	if err := file.LoadDotEnv(".env"); err != nil {
		return err
	}

	store, err := file.NewConfigStore(cfgFile)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	settingsService = services.NewSettingsService(store, ai.NewConfigValidator())

	if skipsSettings(cmd) {
		return nil
	}

	s, err := settingsService.Get()
	if err != nil {
		return err
	}
	if dataDir != "" {
		s.DataDir = dataDir
	}
	if verbose {
		s.Log.Verbose = true
	}
	logger.SetFormat(s.Log.Format)
	logger.SetVerbose(s.Log.Verbose)

	if err := s.Validate(); err != nil {
		return err
	}
	settings = s
	return nil
}

func skipsSettings(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipSettings] != "" {
			return true
		}
	}
	return false
}

func openContainer() (Container, error) {
	if settings == nil {
		return nil, errors.New("settings not loaded")
	}
	return newContainer(settings)
}

// sitemapArg returns the sitemap from args or the configured default.
func sitemapArg(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if settings != nil && settings.Crawl.SitemapURL != "" {
		return settings.Crawl.SitemapURL, nil
	}
	return "", fmt.Errorf("%w: no sitemap URL given and crawl.sitemap_url is not set", domain.ErrInvalidInput)
}
