// Package relay runs the normalize-then-extract pipeline shared by the HTTP
// handler and the Telegram bot.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"ocr-relay/api/internal/normalizer"
	"ocr-relay/api/internal/ocr"
	"ocr-relay/api/internal/store"
	"ocr-relay/api/internal/util"
)

const (
	SourceHTTP     = "http"
	SourceTelegram = "telegram"

	journalTimeout = 3 * time.Second
)

// ErrEmptyImage is returned for uploads without bytes.
var ErrEmptyImage = errors.New("empty image")

// Upload is one image handed to the pipeline.
type Upload struct {
	RequestID   string
	Source      string
	Filename    string
	ContentType string
	Data        []byte
}

type Service struct {
	norm    *normalizer.Normalizer
	engine  ocr.Engine
	journal store.Journal
	slots   *semaphore.Weighted
	log     *zap.Logger
}

// New wires the pipeline. slots bounds concurrent normalizations; values
// below 1 mean 1. A nil journal discards entries.
func New(norm *normalizer.Normalizer, engine ocr.Engine, journal store.Journal, slots int, log *zap.Logger) *Service {
	if slots < 1 {
		slots = 1
	}
	if journal == nil {
		journal = store.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		norm:    norm,
		engine:  engine,
		journal: journal,
		slots:   semaphore.NewWeighted(int64(slots)),
		log:     log,
	}
}

// Engine returns the configured upstream engine.
func (s *Service) Engine() ocr.Engine { return s.engine }

// Process normalizes the upload and sends it upstream. Failures are terminal.
func (s *Service) Process(ctx context.Context, up Upload) (ocr.Result, error) {
	if up.RequestID == "" {
		up.RequestID = uuid.NewString()
	}
	start := time.Now()
	log := s.log.With(
		zap.String("request_id", up.RequestID),
		zap.String("source", up.Source),
		zap.String("filename", up.Filename),
		zap.String("content_type", up.ContentType),
		zap.String("engine", s.engine.Name()),
	)
	entry := store.Entry{
		Source:      up.Source,
		Filename:    up.Filename,
		ContentType: up.ContentType,
		InputBytes:  len(up.Data),
		Engine:      s.engine.Name(),
		Model:       s.engine.GetModel(),
	}
	if id, err := uuid.Parse(up.RequestID); err == nil {
		entry.ID = id
	}

	res, err := s.process(ctx, up, &entry, log)
	entry.Duration = time.Since(start)
	entry.Outcome = Outcome(err)
	if err != nil {
		entry.Error = util.Truncate(err.Error(), 1024)
		log.Error("ocr.request.failed",
			zap.String("outcome", entry.Outcome),
			zap.Error(err),
			zap.Int64("elapsed_ms", entry.Duration.Milliseconds()))
	} else {
		entry.Model = res.Model
		entry.TextLen = len(res.Text)
		log.Info("ocr.request.ok",
			zap.String("model", res.Model),
			zap.Int("text_len", len(res.Text)),
			zap.Int64("elapsed_ms", entry.Duration.Milliseconds()))
	}
	s.record(ctx, entry, log)
	return res, err
}

func (s *Service) process(ctx context.Context, up Upload, entry *store.Entry, log *zap.Logger) (ocr.Result, error) {
	if len(up.Data) == 0 {
		return ocr.Result{}, ErrEmptyImage
	}
	entry.ImageHash = util.SHA256Hex(up.Data)

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return ocr.Result{}, fmt.Errorf("wait for normalizer: %w", err)
	}
	out, err := s.norm.Normalize(up.Data)
	s.slots.Release(1)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("normalize: %w", err)
	}
	entry.OutputBytes = len(out.Data)
	if out.Passthrough {
		log.Warn("ocr.normalize.passthrough", zap.Error(out.Cause), zap.Int("bytes", len(out.Data)))
	} else {
		log.Debug("ocr.normalize.ok",
			zap.Int("in_bytes", len(up.Data)),
			zap.Int("out_bytes", len(out.Data)),
			zap.Int("quality", out.Quality),
			zap.Int("attempts", out.Attempts),
			zap.Bool("fits", out.Fits))
	}

	res, err := s.engine.Extract(ctx, out.Data)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("extract: %w", err)
	}
	return res, nil
}

// record writes the journal entry even when the request context is gone.
func (s *Service) record(ctx context.Context, e store.Entry, log *zap.Logger) {
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := s.journal.Record(jctx, e); err != nil {
		log.Warn("ocr.journal.failed", zap.Error(err))
	}
}

// Outcome classifies a pipeline error for the journal and for callers that
// map errors to responses.
func Outcome(err error) string {
	switch {
	case err == nil:
		return store.OutcomeOK
	case errors.Is(err, ErrEmptyImage):
		return store.OutcomeInvalid
	case errors.Is(err, normalizer.ErrDecode):
		return store.OutcomeDecode
	case ocr.IsUpstream(err):
		return store.OutcomeUpstream
	case ocr.IsUnexpectedResponse(err):
		return store.OutcomeUnexpected
	default:
		return store.OutcomeInternal
	}
}
