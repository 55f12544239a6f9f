package journal

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chanmover/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunMigrations_FreshAndIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(db, testLogger()))
	require.NoError(t, RunMigrations(db, testLogger()))

	v, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)

	for _, table := range []string{"runs", "copied_messages", "schema_version"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestRunMigrations_PartiallyAppliedV2(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	// v1 recorded, but the v2 column already exists.
	_, err = db.Exec(`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, description TEXT, applied_at DATETIME)`)
	require.NoError(t, err)
	_, err = db.Exec(migrations[0].SQL)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO schema_version (version, description) VALUES (1, 'v1')")
	require.NoError(t, err)
	_, err = db.Exec("ALTER TABLE runs ADD COLUMN partial INTEGER DEFAULT 0")
	require.NoError(t, err)

	require.NoError(t, RunMigrations(db, testLogger()))
	v, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestGetSchemaVersion_NewDatabase(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	v, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestStore_RunLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.Start(ctx, Run{Op: "move_range", GuildID: "1", SourceChannel: "10", DestChannel: "20"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, s.SetTotal(ctx, id, 3))

	rec := s.ForRun(id)
	for i, src := range []string{"100", "101", "102"} {
		err := rec.RecordCopy(ctx,
			domain.Message{ID: src, ChannelID: "10"},
			domain.Message{ID: string(rune('a' + i)), ChannelID: "20"},
		)
		require.NoError(t, err)
	}
	require.NoError(t, s.Finish(ctx, id, Outcome{Copied: 3, Deleted: 3, Partial: true}))

	runs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	r := runs[0]
	assert.Equal(t, id, r.ID)
	assert.Equal(t, "move_range", r.Op)
	assert.Equal(t, StatusDone, r.Status)
	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 3, r.Copied)
	assert.Equal(t, 3, r.Deleted)
	assert.True(t, r.Partial)
	assert.Empty(t, r.Error)
	require.NotNil(t, r.FinishedAt)

	copies, err := s.Copies(ctx, id)
	require.NoError(t, err)
	require.Len(t, copies, 3)
	assert.Equal(t, "100", copies[0].SourceMessage)
	assert.Equal(t, "a", copies[0].DestMessage)
	assert.Equal(t, "20", copies[2].DestChannel)
}

func TestStore_FailedRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.Start(ctx, Run{Op: "delete_messages"})
	require.NoError(t, err)
	require.NoError(t, s.Finish(ctx, id, Outcome{Deleted: 1, Err: errors.New("503")}))

	runs, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "503", runs[0].Error)
}

func TestStore_FinishUnknownRun(t *testing.T) {
	s := openStore(t)
	assert.Error(t, s.Finish(context.Background(), "missing", Outcome{}))
}

func TestStore_RecentNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		id, err := s.Start(ctx, Run{Op: "move_message"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)
}

func TestStore_SchemaVersion(t *testing.T) {
	s := openStore(t)
	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)
	assert.Equal(t, schemaVersion, SupportedSchemaVersion())
}
