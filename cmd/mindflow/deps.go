package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/mindflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/mindflow/pkg/flowgraph/llm"
	"github.com/randalmurphal/mindflow/pkg/mindmoney"
	"github.com/randalmurphal/mindflow/pkg/mindmoney/search"
	"github.com/randalmurphal/mindflow/pkg/mindmoney/store"
)

// newCompletionClient selects the completion backend named by
// settings.Provider.
func newCompletionClient(ctx context.Context, s mindmoney.Settings) (llm.Client, error) {
	switch s.Provider {
	case "gemini":
		return llm.NewGemini(ctx, s.GeminiAPIKey, llm.WithGeminiModel(s.Model))
	case "claude":
		opts := []llm.ClaudeOption{llm.WithTimeout(s.RequestTimeout)}
		if s.Model != "" && s.Model != llm.DefaultGeminiModel {
			opts = append(opts, llm.WithModel(s.Model))
		}
		return llm.NewClaudeCLI(opts...), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", s.Provider)
	}
}

func newSearch(s mindmoney.Settings) *search.Client {
	opts := []search.Option{search.WithMaxResults(s.SearchMaxResults)}
	if len(s.SearchDomains) > 0 {
		opts = append(opts, search.WithIncludeDomains(s.SearchDomains...))
	}
	if s.SearchTimeout > 0 {
		opts = append(opts, search.WithTimeout(s.SearchTimeout))
	}
	return search.New(s.TavilyAPIKey, opts...)
}

// openStore opens the configured conversation store wrapped so that its
// failures never fail a turn.
func openStore(ctx context.Context, s mindmoney.Settings, logger *slog.Logger) (*store.BestEffort, error) {
	db, err := store.Open(ctx, s.StoreDriver, s.StoreDSN)
	if err != nil {
		return nil, err
	}
	logger.Info("store opened", slog.String("driver", s.StoreDriver))
	return store.NewBestEffort(db, logger), nil
}

// openCheckpoints returns nil when checkpointing is not configured.
func openCheckpoints(s mindmoney.Settings) (checkpoint.Store, error) {
	if s.CheckpointPath == "" {
		return nil, nil
	}
	return checkpoint.NewSQLiteStore(s.CheckpointPath)
}
