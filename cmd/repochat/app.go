package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/repochat/repochat/internal/chunker"
	"github.com/repochat/repochat/internal/config"
	"github.com/repochat/repochat/internal/embedder"
	"github.com/repochat/repochat/internal/fetcher"
	"github.com/repochat/repochat/internal/llm"
	"github.com/repochat/repochat/internal/logger"
	"github.com/repochat/repochat/internal/orchestrator"
	"github.com/repochat/repochat/internal/pipeline"
	"github.com/repochat/repochat/internal/storage"
	"github.com/repochat/repochat/internal/vectorindex"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    *storage.SQLiteStorage
	indexes  *vectorindex.Manager
	embedder embedder.Embedder
	pipeline *pipeline.Pipeline
	orch     *orchestrator.Orchestrator
}

// buildApp loads config and wires storage, pipeline, and orchestrator.
// logOutput is a parameter because the MCP server must keep stdout clean.
func buildApp(logOutput io.Writer, needGenerator bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewWithOutput(logOutput, logger.ParseLevel(cfg.LogLevel))

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	emb, err := embedder.New(embedder.Config{
		GeminiAPIKey:  cfg.GeminiAPIKey,
		MistralAPIKey: cfg.MistralAPIKey,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("embedding provider selected", "provider", emb.Provider(), "dimension", emb.Dimension())

	var gen llm.Generator
	if needGenerator {
		gen, err = llm.New(llm.Config{
			GeminiAPIKey:  cfg.GeminiAPIKey,
			MistralAPIKey: cfg.MistralAPIKey,
		})
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		log.Info("generation model selected", "model", gen.Model())
	}

	indexes := vectorindex.NewManager(store)
	f := fetcher.New(cfg.ReposPath,
		fetcher.WithToken(cfg.GitHubToken),
		fetcher.WithTimeout(cfg.FetchTimeout))
	p := pipeline.New(store, f, chunker.New(cfg.MaxChunkBytes), emb, indexes, log, cfg.MaxConcurrentIngests)

	var orch *orchestrator.Orchestrator
	if needGenerator {
		orch = orchestrator.New(store, indexes, emb, gen, log, orchestrator.Options{
			TopK:            cfg.TopK,
			ContextBudget:   cfg.ContextBudget,
			GenerateTimeout: cfg.GenerateTimeout,
			CacheTTL:        cfg.ResponseCacheTTL,
		})
	}

	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		indexes:  indexes,
		embedder: emb,
		pipeline: p,
		orch:     orch,
	}, nil
}

func (a *app) close() {
	a.pipeline.Wait()
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close storage", "error", err.Error())
	}
}
