package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chanmover/internal/config"
	"chanmover/internal/domain"
	"chanmover/internal/journal"
)

func TestRunWizard(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "j.db")
	in := strings.NewReader("tok-123\n42\n\ny\n" + dbPath + "\n")
	var out bytes.Buffer

	if err := runWizard(in, &out, cfgPath); err != nil {
		t.Fatalf("runWizard: %v\n%s", err, out.String())
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "tok-123" && os.Getenv(config.TokenEnv) == "" {
		t.Errorf("token = %q", cfg.Discord.Token)
	}
	if cfg.Discord.GuildID != "42" {
		t.Errorf("guild = %q", cfg.Discord.GuildID)
	}
	if cfg.Discord.HideRoleName != "Hide" {
		t.Errorf("hide role should keep its default, got %q", cfg.Discord.HideRoleName)
	}
	if !cfg.Journal.Enabled || cfg.Journal.DBPath != dbPath {
		t.Errorf("journal = %+v", cfg.Journal)
	}
}

func TestRunWizard_DisableJournal(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	in := strings.NewReader("tok\n\nMuted\nn\n")
	if err := runWizard(in, &bytes.Buffer{}, cfgPath); err != nil {
		t.Fatalf("runWizard: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Journal.Enabled {
		t.Error("journal should be disabled")
	}
	if cfg.Discord.HideRoleName != "Muted" {
		t.Errorf("hide role = %q", cfg.Discord.HideRoleName)
	}
}

func init() {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

func seedJournal(t *testing.T, dbPath string) {
	t.Helper()
	ctx := context.Background()
	store, err := journal.Open(dbPath, logger)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer store.Close()
	id, err := store.Start(ctx, journal.Run{Op: "move_message", GuildID: "1", SourceChannel: "10", DestChannel: "20"})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.RecordCopy(ctx, id, domain.Message{ID: "104", ChannelID: "10"}, domain.Message{ID: "904", ChannelID: "20"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Finish(ctx, id, journal.Outcome{Copied: 1}); err != nil {
		t.Fatal(err)
	}
}

func archiveEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)
	out := map[string]string{}
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(tr)
		out[h.Name] = string(data)
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	dbPath := filepath.Join(dir, "journal.db")
	if err := os.WriteFile(cfgPath, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatal(err)
	}
	seedJournal(t, dbPath)

	archive := filepath.Join(dir, "b.tar.gz")
	m, err := writeBackup(ctx, archive, cfgPath, dbPath)
	if err != nil {
		t.Fatalf("writeBackup: %v", err)
	}
	if m.Runs != 1 || m.Copies != 1 || m.SchemaVersion != journal.SupportedSchemaVersion() || m.Config != "config.json" {
		t.Errorf("manifest = %+v", m)
	}

	entries := archiveEntries(t, archive)
	for _, name := range []string{archiveManifest, archiveJournal, archiveCopies, "config.json"} {
		if _, ok := entries[name]; !ok {
			t.Errorf("archive missing %s (has %v)", name, entries)
		}
	}
	if !strings.Contains(entries[archiveCopies], ",104,20,904,") {
		t.Errorf("copy export:\n%s", entries[archiveCopies])
	}
	if _, ok := entries["journal.db-wal"]; ok {
		t.Error("live write-ahead log must not be archived")
	}

	restoreDir := t.TempDir()
	newCfg := filepath.Join(restoreDir, "config.json")
	newDB := filepath.Join(restoreDir, "data", "journal.db")
	if err := os.MkdirAll(filepath.Dir(newDB), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newDB+"-wal", []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}

	restored, err := restoreBackup(ctx, archive, newDB, newCfg)
	if err != nil {
		t.Fatalf("restoreBackup: %v", err)
	}
	if len(restored) != 2 {
		t.Fatalf("restored %v", restored)
	}
	if _, err := os.Stat(newDB + "-wal"); !errors.Is(err, os.ErrNotExist) {
		t.Error("stale -wal of the replaced journal must be removed")
	}
	if data, _ := os.ReadFile(newCfg); string(data) != `{"a":1}` {
		t.Errorf("config content = %q", data)
	}

	store, err := journal.Open(newDB, logger)
	if err != nil {
		t.Fatalf("open restored journal: %v", err)
	}
	defer store.Close()
	runs, err := store.Recent(ctx, 5)
	if err != nil || len(runs) != 1 || runs[0].Op != "move_message" {
		t.Fatalf("restored runs = %+v, err %v", runs, err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(restoreDir, "data", ".chanmover-restore-*"))
	if len(leftovers) != 0 {
		t.Errorf("staging left behind: %v", leftovers)
	}
}

func TestRestoreRejectsUnusableJournal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	garbage := filepath.Join(dir, "journal.db")
	if err := os.WriteFile(garbage, []byte("not a database, just some bytes that are long enough"), 0o600); err != nil {
		t.Fatal(err)
	}
	newer := filepath.Join(dir, "newer", "journal.db")
	seedJournal(t, newer)
	db, err := sql.Open("sqlite", newer)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version, description) VALUES (99, 'future')`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	for name, src := range map[string]string{"garbage": garbage, "newer schema": newer} {
		t.Run(name, func(t *testing.T) {
			archive := filepath.Join(t.TempDir(), "b.tar.gz")
			if err := createTarGz(archive, []archiveFile{{name: archiveJournal, path: src}}); err != nil {
				t.Fatal(err)
			}

			target := filepath.Join(t.TempDir(), "journal.db")
			if err := os.WriteFile(target, []byte("current"), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := restoreBackup(ctx, archive, target, filepath.Join(t.TempDir(), "config.json")); err == nil {
				t.Fatal("expected restore to fail")
			}
			if data, _ := os.ReadFile(target); string(data) != "current" {
				t.Errorf("current journal was replaced: %q", data)
			}
		})
	}
}

func TestWriteBackup_NothingToArchive(t *testing.T) {
	dir := t.TempDir()
	_, err := writeBackup(context.Background(), filepath.Join(dir, "b.tar.gz"),
		filepath.Join(dir, "missing.json"), filepath.Join(dir, "missing.db"))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	printRuns(&buf, []journal.Run{{
		ID: "r1", Op: "move_channel_to", Status: journal.StatusDone, Partial: true,
		SourceChannel: "10", Total: 3, Copied: 3, StartedAt: time.Unix(0, 0).UTC(),
	}})
	out := buf.String()
	for _, want := range []string{"r1", "move_channel_to", "done (partial)", "1970-01-01T00:00:00Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHideFlag(t *testing.T) {
	if hideFlag(false) != nil {
		t.Error("default should leave hide unset")
	}
	if h := hideFlag(true); h == nil || *h {
		t.Error("--no-hide should disable hiding")
	}
}

func TestRenderUnit(t *testing.T) {
	got := renderUnit(systemdTemplate, map[string]string{"EXEC": "/bin/chanmover", "CONFIG": "/etc/c.json"})
	if !strings.Contains(got, "ExecStart=/bin/chanmover run --config /etc/c.json") {
		t.Errorf("unit:\n%s", got)
	}
}
