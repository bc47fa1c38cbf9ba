// Package app assembles the OCR pipeline from configuration. Both binaries
// use it.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"ocr-relay/api/internal/config"
	"ocr-relay/api/internal/normalizer"
	"ocr-relay/api/internal/ocr"
	"ocr-relay/api/internal/ocr/gemini"
	"ocr-relay/api/internal/ocr/gpt"
	"ocr-relay/api/internal/relay"
	"ocr-relay/api/internal/store"
)

// Engines returns every engine the relay knows, configured from cfg.
func Engines(cfg *config.Config, log *zap.Logger) *ocr.Engines {
	return ocr.NewEngines(
		gpt.New(cfg.UpstreamKey, cfg.UpstreamURL, cfg.Model, cfg.Prompt, cfg.RequestTimeout, log.Named("gpt")),
		gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Prompt, cfg.RequestTimeout, log.Named("gemini")),
	)
}

func Normalizer(cfg *config.Config) *normalizer.Normalizer {
	policy := normalizer.PolicyFail
	if cfg.DecodeFallback == config.FallbackPassthrough {
		policy = normalizer.PolicyPassthrough
	}
	return normalizer.New(
		normalizer.WithMaxKB(cfg.MaxImageKB),
		normalizer.WithMaxPixels(cfg.MaxImagePixels),
		normalizer.WithPolicy(policy),
	)
}

// Pipeline is the assembled service plus the resources it holds.
type Pipeline struct {
	Service *relay.Service
	db      *sql.DB
}

func (p *Pipeline) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Build selects the engine, opens the journal when DATABASE_URL is set and
// wires the relay service.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Pipeline, error) {
	eng, err := Engines(cfg, log).GetEngine(cfg.Engine)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{}
	var journal store.Journal = store.Nop{}
	if cfg.DatabaseURL != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		j := store.NewSQLJournal(db)
		if err := j.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal schema: %w", err)
		}
		log.Info("journal.enabled", zap.String("db", store.SafeDSNSummary(cfg.DatabaseURL)))
		p.db, journal = db, j
	}

	p.Service = relay.New(Normalizer(cfg), eng, journal, cfg.NormalizeSlots, log.Named("relay"))
	log.Info("pipeline.ready",
		zap.String("engine", eng.Name()),
		zap.String("model", eng.GetModel()),
		zap.Int("max_image_kb", cfg.MaxImageKB),
		zap.String("decode_fallback", cfg.DecodeFallback),
		zap.Bool("journal", p.db != nil))
	return p, nil
}
