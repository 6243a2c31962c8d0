package cli

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/quire/internal/adapters/driving/api"
	"github.com/custodia-labs/quire/internal/core/services"
	"github.com/custodia-labs/quire/internal/logger"
	"github.com/custodia-labs/quire/internal/telemetry"
)

var (
	serveAddr         string
	serveReindexEvery time.Duration
	serveSitemap      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serves POST /api/chat and GET /api/health.

With --reindex-every the sitemap is crawled and indexed on that interval
while the server runs. The first run starts one interval after startup.

Examples:
  quire serve --addr :8080
  quire serve --reindex-every 24h --sitemap https://example.org/sitemap.xml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
	serveCmd.Flags().DurationVar(&serveReindexEvery, "reindex-every", 0, "crawl and index on this interval (default server.reindex_every)")
	serveCmd.Flags().StringVar(&serveSitemap, "sitemap", "", "sitemap for scheduled runs (default crawl.sitemap_url)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s := settings

	addr := s.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	every := s.Server.ReindexEvery
	if cmd.Flags().Changed("reindex-every") {
		every = serveReindexEvery
	}
	sitemap := s.Crawl.SitemapURL
	if serveSitemap != "" {
		sitemap = serveSitemap
	}

	shutdown, err := telemetry.InitTracer(ctx, version, s.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("telemetry shutdown: %v", err)
		}
	}()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return err
	}

	c, err := openContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	answers, err := c.Answer(ctx)
	if err != nil {
		return err
	}

	if every > 0 {
		pipeline, err := c.Pipeline(ctx)
		if err != nil {
			return err
		}
		scheduler := services.NewScheduler(pipeline, sitemap, every)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
		logger.Info("reindexing %s every %s", sitemap, every)
	}

	if !logger.IsVerbose() {
		gin.SetMode(gin.ReleaseMode)
	}
	server, err := api.NewServer(&api.Ports{Answer: answers, Health: c.Health()}, api.Config{
		Addr:        addr,
		CORSOrigins: s.Server.CORSOrigins,
		Model:       s.LLM.Model,
		Metrics:     metrics,
	})
	if err != nil {
		return err
	}

	cmd.Printf("Serving on %s\n", addr)
	return server.Run(ctx)
}
