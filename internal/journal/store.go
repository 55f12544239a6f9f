// Package journal records relocation and deletion runs in SQLite so an
// interrupted run can be inspected afterwards.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"chanmover/internal/domain"

	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Run is one operation as recorded in the journal.
type Run struct {
	ID            string
	Op            string
	GuildID       string
	SourceChannel string
	DestChannel   string
	Status        string
	Total         int
	Copied        int
	Deleted       int
	Skipped       int
	Partial       bool
	Error         string
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// Outcome is what Finish stores for a completed run.
type Outcome struct {
	Copied  int
	Deleted int
	Skipped int
	Partial bool
	Err     error
}

// Copy maps a source message to its re-posted counterpart.
type Copy struct {
	RunID         string
	SourceChannel string
	SourceMessage string
	DestChannel   string
	DestMessage   string
	CreatedAt     time.Time
}

// Store is the SQLite backed journal.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the journal database at dbPath.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create journal directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion() (int, error) {
	return GetSchemaVersion(s.db)
}

// Start records a new running operation and returns its id. ID and Status
// on r are ignored.
func (s *Store) Start(ctx context.Context, r Run) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, op, guild_id, source_channel, dest_channel, status, total, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.Op, r.GuildID, r.SourceChannel, r.DestChannel, StatusRunning, r.Total, s.now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	s.logger.Debug("journal run started", "run", id, "op", r.Op)
	return id, nil
}

// SetTotal updates the number of messages a run covers once it is known.
func (s *Store) SetTotal(ctx context.Context, runID string, total int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE runs SET total = ? WHERE id = ?", total, runID); err != nil {
		return fmt.Errorf("set run total: %w", err)
	}
	return nil
}

// Finish closes a run with its outcome.
func (s *Store) Finish(ctx context.Context, runID string, o Outcome) error {
	status, errText := StatusDone, ""
	if o.Err != nil {
		status, errText = StatusFailed, o.Err.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, copied = ?, deleted = ?, skipped = ?, partial = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		status, o.Copied, o.Deleted, o.Skipped, o.Partial, errText, s.now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %s", runID)
	}
	return nil
}

// RecordCopy stores the mapping of one re-posted message.
func (s *Store) RecordCopy(ctx context.Context, runID string, source, copied domain.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO copied_messages (run_id, source_channel, source_message, dest_channel, dest_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, source.ChannelID, source.ID, copied.ChannelID, copied.ID, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record copy: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, op, guild_id, source_channel, dest_channel, status,
		       total, copied, deleted, skipped, partial, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Op, &r.GuildID, &r.SourceChannel, &r.DestChannel, &r.Status,
			&r.Total, &r.Copied, &r.Deleted, &r.Skipped, &r.Partial, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Copies returns the messages re-posted by a run, in dispatch order.
func (s *Store) Copies(ctx context.Context, runID string) ([]Copy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, source_channel, source_message, dest_channel, dest_message, created_at
		FROM copied_messages WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query copies: %w", err)
	}
	defer rows.Close()

	var out []Copy
	for rows.Next() {
		var c Copy
		if err := rows.Scan(&c.RunID, &c.SourceChannel, &c.SourceMessage, &c.DestChannel, &c.DestMessage, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan copy: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ForRun binds the store to a run so it can be handed to the relocation
// engine as its copy recorder.
func (s *Store) ForRun(runID string) *RunRecorder {
	return &RunRecorder{store: s, runID: runID}
}

// RunRecorder records copies for a single run.
type RunRecorder struct {
	store *Store
	runID string
}

// RecordCopy implements relocate.Recorder.
func (r *RunRecorder) RecordCopy(ctx context.Context, source, copied domain.Message) error {
	return r.store.RecordCopy(ctx, r.runID, source, copied)
}
