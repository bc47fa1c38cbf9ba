package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome kinds stored in the journal.
const (
	OutcomeOK         = "ok"
	OutcomeInvalid    = "invalid_input"
	OutcomeDecode     = "decode_error"
	OutcomeUpstream   = "upstream_error"
	OutcomeUnexpected = "unexpected_response"
	OutcomeInternal   = "internal_error"
)

// Entry is one request outcome. It never carries the image or the text.
type Entry struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	Source      string
	Filename    string
	ContentType string
	InputBytes  int
	OutputBytes int
	ImageHash   string
	Engine      string
	Model       string
	TextLen     int
	Outcome     string
	Error       string
	Duration    time.Duration
}

// Journal records request outcomes. Implementations must be safe for
// concurrent use.
type Journal interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards entries. Used when DATABASE_URL is empty.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

// execer is the part of *sql.DB the journal needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type SQLJournal struct{ DB execer }

func NewSQLJournal(db execer) *SQLJournal { return &SQLJournal{DB: db} }

var schema = []string{`
create table if not exists ocr_requests (
  id           uuid primary key,
  created_at   timestamptz not null default now(),
  source       text not null,
  filename     text,
  content_type text,
  input_bytes  integer not null default 0,
  output_bytes integer not null default 0,
  image_hash   text,
  engine       text,
  model        text,
  text_len     integer not null default 0,
  outcome      text not null,
  error        text,
  duration_ms  bigint not null default 0
)`,
	`create index if not exists ocr_requests_created_at_idx on ocr_requests (created_at)`,
}

// EnsureSchema creates the journal table when missing.
func (j *SQLJournal) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := j.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure journal schema: %w", err)
		}
	}
	return nil
}

func (j *SQLJournal) Record(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	const q = `
insert into ocr_requests (
  id, created_at, source, filename, content_type,
  input_bytes, output_bytes, image_hash, engine, model,
  text_len, outcome, error, duration_ms
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err := j.DB.ExecContext(ctx, q,
		e.ID, e.CreatedAt, e.Source, e.Filename, e.ContentType,
		e.InputBytes, e.OutputBytes, e.ImageHash, e.Engine, e.Model,
		e.TextLen, e.Outcome, e.Error, e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}
