package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quire/internal/core/domain"
)

var (
	crawlRefresh   bool
	indexBatchSize int
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [sitemap-url]",
	Short: "Fetch and store every page listed in a sitemap",
	Long: `Enumerates the sitemap (following sitemap indexes) and stores the raw HTML
of every page. Pages already stored are reused unless --refresh is set.
Without an argument the configured crawl.sitemap_url is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCrawl,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Extract, chunk and embed every stored page",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline [sitemap-url]",
	Short: "Crawl a sitemap, then index the stored pages",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPipeline,
}

func init() {
	crawlCmd.Flags().BoolVar(&crawlRefresh, "refresh", false, "refetch pages that are already stored")
	indexCmd.Flags().IntVar(&indexBatchSize, "batch-size", 0, "chunks per embedding request (default index.batch_size)")
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(pipelineCmd)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	sitemap, err := sitemapArg(args)
	if err != nil {
		return err
	}
	if crawlRefresh {
		settings.Crawl.Refresh = true
	}

	c, err := openContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := c.Crawl().Crawl(cmd.Context(), sitemap)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	printCrawlReport(cmd, report)
	return nil
}

func runIndex(cmd *cobra.Command, _ []string) error {
	if indexBatchSize < 0 {
		return fmt.Errorf("%w: batch size must be positive", domain.ErrInvalidInput)
	}
	if indexBatchSize > 0 {
		settings.Index.BatchSize = indexBatchSize
	}

	c, err := openContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	indexer, err := c.Index(cmd.Context())
	if err != nil {
		return err
	}
	report, err := indexer.IndexStored(cmd.Context())
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}
	printIndexReport(cmd, report)
	return nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	sitemap, err := sitemapArg(args)
	if err != nil {
		return err
	}

	c, err := openContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	pipeline, err := c.Pipeline(cmd.Context())
	if err != nil {
		return err
	}
	report, err := pipeline.Run(cmd.Context(), sitemap)
	if report != nil {
		printCrawlReport(cmd, report.Crawl)
		printIndexReport(cmd, report.Index)
	}
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}
	return nil
}

func printCrawlReport(cmd *cobra.Command, r *domain.CrawlReport) {
	if r == nil {
		return
	}
	st := newStyles(cmd.OutOrStdout())
	cmd.Printf("%s %d URLs discovered, %d fetched, %d reused, %d failed\n",
		st.Label("Crawl:"), r.Discovered, r.Fetched, r.Reused, len(r.Failed))
	for _, f := range r.Failed {
		cmd.Printf("  %s %s (%d attempts): %s\n", st.Failure("x"), f.URL, f.Attempts, f.Err)
	}
}

func printIndexReport(cmd *cobra.Command, r *domain.IndexReport) {
	if r == nil {
		return
	}
	st := newStyles(cmd.OutOrStdout())
	cmd.Printf("%s %d documents indexed (%d chunks), %d skipped, %d failed\n",
		st.Label("Index:"), r.Succeeded, r.Chunks, r.Skipped, r.Failed)
	for _, f := range r.Failures {
		cmd.Printf("  %s %s: %s\n", st.Failure("x"), f.SourceURL, f.Err)
	}
}
