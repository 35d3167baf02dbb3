// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/tofunori/obsidian-mcp/internal/ai"
	"github.com/tofunori/obsidian-mcp/internal/api"
	"github.com/tofunori/obsidian-mcp/internal/graph"
	"github.com/tofunori/obsidian-mcp/internal/indexer"
	"github.com/tofunori/obsidian-mcp/internal/mcpserver"
	"github.com/tofunori/obsidian-mcp/internal/noteservice"
	"github.com/tofunori/obsidian-mcp/internal/rank"
	"github.com/tofunori/obsidian-mcp/internal/retriever"
	"github.com/tofunori/obsidian-mcp/internal/sse"
	"github.com/tofunori/obsidian-mcp/internal/storage"
	"github.com/tofunori/obsidian-mcp/internal/vectorstore"
)

// components holds the wired application graph shared by the serve, mcp and
// index entry points.
type components struct {
	cfg          *Config
	logger       *slog.Logger
	vault        storage.Provider
	store        *vectorstore.Store
	graph        *graph.Graph
	ranker       *rank.Ranker
	retriever    *retriever.Retriever
	indexer      *indexer.Indexer
	service      *noteservice.Service
	defaultAlpha float64
}

// bootstrap builds the full application from configuration. logW receives
// structured log output; the MCP entry point logs to stderr because stdout
// carries the protocol stream.
func bootstrap(logW io.Writer, opts ...Option) (*components, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(logW, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("database_path", cfg.Database.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	vault, err := storage.NewFS(cfg.Vault.Path, cfg.Vault.Exclude)
	if err != nil {
		return nil, fmt.Errorf("init vault storage: %w", err)
	}

	store, err := vectorstore.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}

	// Link graph, restored from the last snapshot when one exists.
	g := graph.New()
	if cfg.Database.GraphSnapshot != "" {
		if err := g.Load(cfg.Database.GraphSnapshot); err != nil {
			logger.Debug("graph snapshot not loaded", slog.String("error", err.Error()))
		}
	}

	ranker := rank.NewRanker(store)

	// Embedding provider. Without an API key the server still runs with
	// keyword-only search.
	defaultAlpha := cfg.Search.Alpha
	var embedder ai.Embedder
	if cfg.Embedding.APIKey != "" {
		embedder, err = ai.NewVoyageEmbedder(cfg.Embedding.APIKey,
			ai.WithVoyageModel(cfg.Embedding.Model))
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init embedder: %w", err)
		}
	} else {
		logger.Warn("embedding api key not set, semantic search disabled")
		embedder = ai.Disabled{}
		defaultAlpha = 0
	}

	retOpts := []retriever.Option{
		retriever.WithCacheSize(cfg.Search.CacheSize),
	}
	if cfg.Rerank.Enabled {
		reranker, rerr := ai.NewCohereReranker(cfg.Rerank.APIKey,
			ai.WithCohereModel(cfg.Rerank.Model))
		if rerr != nil {
			store.Close()
			return nil, fmt.Errorf("init reranker: %w", rerr)
		}
		retOpts = append(retOpts, retriever.WithReranker(reranker))
	}
	ret := retriever.New(store, ranker, embedder, logger, retOpts...)

	ix := indexer.New(vault, store, g, embedder, logger,
		indexer.WithGraphSnapshot(cfg.Database.GraphSnapshot),
		indexer.WithWorkers(cfg.Search.IndexWorkers),
		indexer.WithOnChange(func() {
			ret.InvalidateCache()
			_ = ranker.Rebuild(context.Background())
		}))

	svc := noteservice.NewService(vault, store, g, ix, ret)

	return &components{
		cfg:          cfg,
		logger:       logger,
		vault:        vault,
		store:        store,
		graph:        g,
		ranker:       ranker,
		retriever:    ret,
		indexer:      ix,
		service:      svc,
		defaultAlpha: defaultAlpha,
	}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	c, err := bootstrap(os.Stdout, opts...)
	if err != nil {
		return err
	}
	defer c.store.Close()

	cfg := c.cfg
	logger := c.logger

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Run initial incremental scan.
	if stats, err := c.indexer.IndexVault(ctx, true); err != nil {
		logger.Warn("initial scan failed", slog.String("error", err.Error()))
	} else {
		broker.PublishIndexCompleted(stats)
	}

	apiRouter := api.NewRouter(c.service, c.defaultAlpha, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		return c.indexer.Watch(gCtx, cfg.Vault.Path, func(kind, path string) {
			broker.PublishNoteEvent(kind, path)
		})
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP server on stdin/stdout. Logs go to stderr so they do
// not interleave with the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	c, err := bootstrap(os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer c.store.Close()

	if _, err := c.indexer.IndexVault(ctx, true); err != nil {
		c.logger.Warn("initial scan failed", slog.String("error", err.Error()))
	}

	srv := mcpserver.New(c.service, c.defaultAlpha)

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the vault index in sync while the MCP session runs.
	g.Go(func() error {
		return c.indexer.Watch(gCtx, c.cfg.Vault.Path, nil)
	})

	g.Go(func() error {
		c.logger.Info("Starting MCP server on stdio")
		return srv.ServeStdio()
	})

	return g.Wait()
}

// RunSearch performs a one-shot hybrid search against the vault and prints
// the results as JSON to stdout. An incremental scan runs first so the query
// sees the current vault state.
func RunSearch(ctx context.Context, req retriever.Request, opts ...Option) error {
	c, err := bootstrap(os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer c.store.Close()

	// Negative alpha means "not set on the command line".
	if req.Alpha < 0 {
		req.Alpha = c.defaultAlpha
	}

	if _, err := c.indexer.IndexVault(ctx, true); err != nil {
		c.logger.Warn("scan failed", slog.String("error", err.Error()))
	}

	results, err := c.retriever.Search(ctx, req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// RunIndex performs a one-shot vault scan and prints the resulting stats as
// JSON to stdout. full forces re-embedding of unchanged notes.
func RunIndex(ctx context.Context, full bool, opts ...Option) error {
	c, err := bootstrap(os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer c.store.Close()

	stats, err := c.indexer.IndexVault(ctx, !full)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
