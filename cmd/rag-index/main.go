// Package main provides the rag-index CLI for building and querying the policy index.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/policy-rag/internal/app"
	"github.com/bull/policy-rag/internal/config"
	"github.com/bull/policy-rag/internal/rag"
	"github.com/bull/policy-rag/internal/storage"
)

var (
	configPath string
	topK       int
	minScore   float64
	summarize  bool
	asJSON     bool
)

var rootCmd = &cobra.Command{
	Use:          "rag-index",
	Short:        "Policy document index tool",
	Long:         "CLI tool for building, inspecting and querying the policy document index",
	SilenceUsage: true,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the index from the configured source",
	Long: `Reads every document from the data directory (or GITHUB_SOURCE), chunks it,
embeds the chunks and replaces the index. The previous index keeps serving
until the new one is complete.

Environment variables:
  DATA_DIR        Local corpus directory (default: data)
  INDEX_DIR       Index directory for the file backend (default: index)
  INDEX_BACKEND   file or qdrant (default: file)
  OPENAI_API_KEY  OpenAI API key for embeddings (required)
  GITHUB_SOURCE   owner/repo[/path] to index instead of DATA_DIR
  GITHUB_TOKEN    GitHub token for higher rate limits (optional)`,
	RunE: runBuild,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted index",
	RunE:  runStatus,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the persisted index",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to an optional YAML config file")
	askCmd.Flags().IntVar(&topK, "top-k", 0, "chunks to retrieve (default from config)")
	askCmd.Flags().Float64Var(&minScore, "min-score", -1, "minimum similarity score (default from config)")
	askCmd.Flags().BoolVar(&summarize, "summarize", false, "also print a two-sentence summary")
	askCmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	rootCmd.AddCommand(buildCmd, statusCmd, askCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*app.App, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	svc, err := app.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	start := time.Now()

	svc, cfg, err := setup()
	if err != nil {
		return err
	}
	defer svc.Close()

	fmt.Printf("Indexing %s into the %s backend...\n", svc.Source().Name(), cfg.IndexBackend)
	result, err := svc.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Build complete!")
	fmt.Printf("  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	if result.Revision != "" {
		fmt.Printf("  Commit: %s\n", result.Revision)
	}

	if len(result.FailedDocs) > 0 {
		fmt.Println()
		fmt.Println("Skipped documents:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, cfg, err := setup()
	if err != nil {
		return err
	}
	defer svc.Close()

	fmt.Printf("Backend: %s\n", cfg.IndexBackend)
	fmt.Printf("Source: %s\n", svc.Source().Name())

	err = svc.Backend().Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fmt.Println("Index: not built (run `rag-index build`)")
		return nil
	case err != nil:
		return fmt.Errorf("index unusable: %w", err)
	}

	index := svc.Index()
	fmt.Printf("Chunks: %d\n", index.Len())
	fmt.Printf("Dimension: %d\n", index.Dimension())
	if sources := index.Sources(); len(sources) > 0 {
		fmt.Println("Sources:")
		for _, s := range sources {
			fmt.Printf("  - %s\n", s)
		}
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	svc, cfg, err := setup()
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Backend().Load(ctx); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	req := rag.Request{
		Question:  args[0],
		TopK:      cfg.Query.TopK,
		MinScore:  cfg.Query.MinScore,
		Summarize: summarize,
	}
	if topK > 0 {
		req.TopK = topK
	}
	if minScore >= 0 {
		req.MinScore = minScore
	}

	resp, err := svc.Pipeline().Query(ctx, req)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Println(resp.Answer)
	if resp.Summary != nil {
		fmt.Printf("\nSummary: %s\n", *resp.Summary)
	}
	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, s := range resp.Sources {
			fmt.Printf("  [%d] %s (page %s) score=%.3f\n", i+1, s.Source, s.Page, s.Score)
		}
	}
	if len(resp.FollowUpQuestions) > 0 {
		fmt.Println("\nYou might also ask:")
		for _, q := range resp.FollowUpQuestions {
			fmt.Printf("  - %s\n", q)
		}
	}
	return nil
}
