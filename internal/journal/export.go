package journal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// CopiesHeader is the first row written by ExportCopies.
var CopiesHeader = []string{
	"run_id", "op", "guild_id", "source_channel", "source_message",
	"dest_channel", "dest_message", "created_at",
}

// Snapshot writes a consistent single-file copy of the journal to path,
// folding in anything still held in the write-ahead log. path must not
// exist yet.
func (s *Store) Snapshot(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("snapshot target %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat snapshot target: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("snapshot journal: %w", err)
	}
	return nil
}

// ExportCopies writes every recorded copy as CSV, oldest first, and returns
// the number of rows written after the header.
func (s *Store) ExportCopies(ctx context.Context, w io.Writer) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.run_id, r.op, r.guild_id, c.source_channel, c.source_message,
		       c.dest_channel, c.dest_message, c.created_at
		FROM copied_messages c JOIN runs r ON r.id = c.run_id
		ORDER BY c.id`)
	if err != nil {
		return 0, fmt.Errorf("query copies: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(CopiesHeader); err != nil {
		return 0, err
	}
	n := 0
	for rows.Next() {
		var (
			c       Copy
			op, gid string
		)
		if err := rows.Scan(&c.RunID, &op, &gid, &c.SourceChannel, &c.SourceMessage,
			&c.DestChannel, &c.DestMessage, &c.CreatedAt); err != nil {
			return n, fmt.Errorf("scan copy: %w", err)
		}
		if err := cw.Write([]string{
			c.RunID, op, gid, c.SourceChannel, c.SourceMessage,
			c.DestChannel, c.DestMessage, c.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}

// Counts returns how many runs and copies the journal holds.
func (s *Store) Counts(ctx context.Context) (runs, copies int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM runs), (SELECT COUNT(*) FROM copied_messages)`).Scan(&runs, &copies)
	if err != nil {
		return 0, 0, fmt.Errorf("count journal rows: %w", err)
	}
	return runs, copies, nil
}
