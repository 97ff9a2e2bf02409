package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/minimee-ai/recall/internal/config"
	"github.com/minimee-ai/recall/internal/embeddings"
	openaiembed "github.com/minimee-ai/recall/internal/embeddings/openai"
	"github.com/minimee-ai/recall/internal/embeddings/ollama"
	"github.com/minimee-ai/recall/internal/engine"
	"github.com/minimee-ai/recall/internal/ingest"
	"github.com/minimee-ai/recall/internal/observability"
	"github.com/minimee-ai/recall/internal/rerank"
	"github.com/minimee-ai/recall/internal/store"
	"github.com/minimee-ai/recall/internal/store/pgvector"
	"github.com/minimee-ai/recall/internal/store/sqlite"
	"github.com/minimee-ai/recall/pkg/models"
)

type searchFlags struct {
	owner        string
	conversation string
	sources      []string
	sender       string
	recipient    string
	language     string
	limit        int
	maxTokens    int
	asJSON       bool
}

// app bundles everything a command handler needs.
type app struct {
	cfg    *config.Config
	store  store.Store
	engine *engine.Engine
	logger *slog.Logger
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// newApp loads the configuration and wires store, embedder, reranker, and
// engine together.
func newApp(configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := openEmbedder(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var reranker rerank.Reranker = rerank.Noop{}
	if cfg.Engine.Rerank.Enabled {
		client := openai.NewClient(cfg.Embeddings.APIKey)
		reranker = rerank.NewLLM(client, cfg.Engine.Rerank)
	}

	eng, err := engine.New(engine.Deps{
		Store:    st,
		Embedder: embedder,
		Reranker: reranker,
		Metrics:  metrics,
		Logger:   logger,
	}, cfg.Engine)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: st, engine: eng, logger: logger}, nil
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return sqlite.New(sqlite.Config{
			Path:      cfg.Store.Path,
			Dimension: cfg.Store.Dimension,
		})
	case "pgvector":
		return pgvector.New(pgvector.Config{
			DSN:        cfg.Store.DSN,
			Dimension:  cfg.Store.Dimension,
			InitSchema: true,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func openEmbedder(cfg *config.Config) (embeddings.Provider, error) {
	switch cfg.Embeddings.Provider {
	case "openai":
		return openaiembed.New(openaiembed.Config{
			APIKey:  cfg.Embeddings.APIKey,
			BaseURL: cfg.Embeddings.BaseURL,
			Model:   cfg.Embeddings.Model,
		})
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL: cfg.Embeddings.OllamaURL,
			Model:   cfg.Embeddings.Model,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embeddings.Provider)
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", "error", err)
	}
}

func parserFor(format string) (ingest.Parser, error) {
	switch format {
	case "whatsapp":
		return ingest.NewWhatsAppParser(), nil
	case "gmail":
		return ingest.NewMboxParser(), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func runIngest(cmd *cobra.Command, configPath, file, owner, conversation, format, strategy string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	parser, err := parserFor(format)
	if err != nil {
		return err
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	msgs, err := parser.Parse(f, ingest.ParseOptions{
		OwnerID:        owner,
		ConversationID: conversation,
	})
	if err != nil {
		return fmt.Errorf("failed to parse export: %w", err)
	}
	if len(msgs) == 0 {
		return fmt.Errorf("no messages found in %s", file)
	}

	blocks, err := a.engine.IndexMessages(cmd.Context(), msgs, strategy)
	if err != nil {
		return err
	}

	cmd.Printf("Ingested %d messages into %d blocks (%s)\n", len(msgs), blocks, parser.Name())
	return nil
}

func runSearch(cmd *cobra.Command, configPath, query string, flags searchFlags) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	var sources []models.Source
	if flags.sources != nil {
		sources = make([]models.Source, 0, len(flags.sources))
		for _, s := range flags.sources {
			sources = append(sources, models.Source(s))
		}
	}

	contextStr, details, err := a.engine.RetrieveContext(cmd.Context(), query, &engine.RetrieveOptions{
		OwnerID:        flags.owner,
		ConversationID: flags.conversation,
		Sources:        sources,
		Sender:         flags.sender,
		Recipient:      flags.recipient,
		Language:       flags.language,
		Limit:          flags.limit,
		MaxTokens:      flags.maxTokens,
	})
	if err != nil {
		return err
	}

	if flags.asJSON {
		out, err := json.MarshalIndent(details, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(out))
		return nil
	}

	cmd.Println(contextStr)
	cmd.Printf("\n%d results (top similarity %.2f, avg %.2f, reranked: %v)\n",
		details.ResultsCount, details.TopSimilarity, details.AvgSimilarity, details.Reranked)
	return nil
}

func runStats(cmd *cobra.Command, configPath string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.engine.Stats(cmd.Context())
	if err != nil {
		return err
	}

	cmd.Printf("Messages:  %d\n", stats.TotalMessages)
	cmd.Printf("Records:   %d\n", stats.TotalRecords)
	cmd.Printf("Blocks:    %d\n", stats.TotalBlocks)
	cmd.Printf("Dimension: %d\n", stats.Dimension)
	return nil
}

func runDelete(cmd *cobra.Command, configPath, owner, conversation string, messageIDs []string) error {
	if conversation == "" && len(messageIDs) == 0 {
		return fmt.Errorf("either --conversation or --message is required")
	}
	if conversation != "" && owner == "" {
		return fmt.Errorf("--owner is required with --conversation")
	}

	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if conversation != "" {
		if err := a.engine.DeleteConversation(cmd.Context(), owner, conversation); err != nil {
			return err
		}
		cmd.Printf("Deleted conversation %s\n", conversation)
	}
	if len(messageIDs) > 0 {
		if err := a.engine.DeleteMessages(cmd.Context(), messageIDs); err != nil {
			return err
		}
		cmd.Printf("Deleted %d messages\n", len(messageIDs))
	}
	return nil
}
