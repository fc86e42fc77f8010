package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/asanagraph/asanagraph/internal/composer"
	"github.com/asanagraph/asanagraph/internal/config"
	"github.com/asanagraph/asanagraph/internal/embedder"
	"github.com/asanagraph/asanagraph/internal/graph"
	"github.com/asanagraph/asanagraph/internal/intent"
	"github.com/asanagraph/asanagraph/internal/judge"
	"github.com/asanagraph/asanagraph/internal/orchestrator"
	"github.com/asanagraph/asanagraph/internal/retrieval"
	"github.com/asanagraph/asanagraph/internal/store"
	"github.com/asanagraph/asanagraph/internal/suitability"
	"github.com/asanagraph/asanagraph/internal/validate"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:   "asanagraph",
		Short: "AsanaGraph — graph-backed yoga sequence recommender",
		Long:  "AsanaGraph retrieves candidate courses by semantic similarity, validates them against the user's request with an LLM judge, screens each pose for safety, and composes a fresh sequence from the pose graph when no course fits.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		recommendCmd(),
		checkCmd(),
		serveCmd(),
		healthCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newEmbedder(logger *slog.Logger) embedder.Embedder {
	return embedder.NewOllamaEmbedder(
		cfg.Ollama.BaseURL,
		cfg.Ollama.Model,
		int(cfg.Qdrant.VectorDimension),
		logger,
	)
}

func newIndex(logger *slog.Logger) (store.Index, error) {
	return store.NewQdrantIndex(
		cfg.Qdrant.Host,
		cfg.Qdrant.GRPCPort,
		cfg.Qdrant.CourseCollection,
		cfg.Qdrant.CategoryCollection,
		cfg.Qdrant.UseTLS,
		logger,
	)
}

func newGraphStore(ctx context.Context, logger *slog.Logger) (graph.Store, error) {
	return graph.NewNeo4jStore(
		ctx,
		cfg.Neo4j.URI,
		cfg.Neo4j.User,
		cfg.Neo4j.Password,
		cfg.Neo4j.Database,
		logger,
	)
}

func newJudge(logger *slog.Logger) judge.Judge {
	var inner judge.Judge
	switch cfg.Judge.Provider {
	case "openai":
		inner = judge.NewOpenAIJudge(cfg.Judge.OpenAIAPIKey, cfg.Judge.Model, logger)
	case "deepseek":
		inner = judge.NewDeepSeekJudge(cfg.Judge.DeepSeekAPIKey, cfg.Judge.Model, logger)
	default:
		inner = judge.NewAnthropicJudge(cfg.Judge.AnthropicAPIKey, cfg.Judge.Model, logger)
	}
	return judge.WithRetry(inner, cfg.Judge.MaxRetries, logger)
}

// newOrchestrator wires the full pipeline. The returned cleanup closes the
// graph driver and the vector index.
func newOrchestrator(ctx context.Context, logger *slog.Logger) (*orchestrator.Orchestrator, func(), error) {
	g, err := newGraphStore(ctx, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to graph: %w", err)
	}

	idx, err := newIndex(logger)
	if err != nil {
		_ = g.Close(ctx)
		return nil, nil, fmt.Errorf("connecting to index: %w", err)
	}

	emb := newEmbedder(logger)
	j := newJudge(logger)

	interp := intent.NewInterpreter(j, logger)
	retr := retrieval.NewRetriever(idx, emb, cfg.Pipeline.CourseTopK, logger)
	valid := validate.NewValidator(j, g, cfg.Pipeline.MaxInFlight, logger)
	check := suitability.NewChecker(j, cfg.Pipeline.MaxInFlight, logger)
	comp := composer.NewComposer(g, idx, emb, composer.Options{
		CategoryTopK:       cfg.Pipeline.CategoryTopK,
		SlotSeconds:        cfg.Pipeline.SlotSeconds,
		DefaultMinSeconds:  cfg.Pipeline.DefaultMinSeconds,
		DefaultMaxSeconds:  cfg.Pipeline.DefaultMaxSeconds,
		ChallengeTolerance: cfg.Pipeline.ChallengeTolerance,
	}, logger)

	orch := orchestrator.New(interp, retr, valid, check, comp, g, orchestrator.Options{
		MaxRemovals:       cfg.Pipeline.MaxRemovals,
		MaxComposeRetries: cfg.Pipeline.MaxComposeRetries,
	}, logger)

	cleanup := func() {
		_ = idx.Close()
		_ = g.Close(context.Background())
	}
	return orch, cleanup, nil
}
