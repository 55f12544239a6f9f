package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"chanmover/internal/config"
	"chanmover/internal/journal"
)

// Archive entry names.
const (
	archiveJournal  = "journal.db"
	archiveCopies   = "copied_messages.csv"
	archiveManifest = "manifest.yaml"
)

// manifest describes what a backup archive holds.
type manifest struct {
	CreatedAt     time.Time `yaml:"createdAt"`
	SchemaVersion int       `yaml:"schemaVersion,omitempty"`
	Runs          int       `yaml:"runs"`
	Copies        int       `yaml:"copies"`
	Config        string    `yaml:"config,omitempty"`
}

type archiveFile struct {
	name string
	path string
}

func backupCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the journal, an export of copied messages, and the config",
		Long: `Creates a .tar.gz archive holding a consistent snapshot of the journal
database, copied_messages.csv (every re-posted message with its run), the
config file and a manifest. The live database is never copied byte for byte,
so a backup can be taken while the bot is running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			dbPath := resolveDBPath(cfgPath)

			if outputPath == "" {
				backupDir := filepath.Join(config.DefaultConfigDir(), "backups")
				if err := os.MkdirAll(backupDir, 0o755); err != nil {
					return fmt.Errorf("cannot create backup directory: %w", err)
				}
				ts := time.Now().Format("20060102-150405")
				outputPath = filepath.Join(backupDir, fmt.Sprintf("chanmover-backup-%s.tar.gz", ts))
			}

			m, err := writeBackup(cmd.Context(), outputPath, cfgPath, dbPath)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			size := uint64(0)
			if info, err := os.Stat(outputPath); err == nil {
				size = uint64(info.Size())
			}
			fmt.Printf("Backup created: %s (%s)\n", outputPath, humanize.Bytes(size))
			fmt.Printf("  runs: %d, copied messages: %d, schema: v%d\n", m.Runs, m.Copies, m.SchemaVersion)
			if m.Config != "" {
				fmt.Printf("  config: %s\n", m.Config)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (default: ~/.chanmover/backups/chanmover-backup-<timestamp>.tar.gz)")
	return cmd
}

func restoreCmd() *cobra.Command {
	var inputPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore the journal database and config from a backup archive",
		Long: `Restores the journal database and configuration file from a .tar.gz
archive created by 'chanmover backup'. The archived journal is opened and
migrated before it replaces the current one; stale -wal/-shm files of the
current journal are removed. Stop the bot before restoring.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" && len(args) > 0 {
				inputPath = args[0]
			}
			if inputPath == "" {
				return fmt.Errorf("specify a backup file: chanmover restore <file.tar.gz>")
			}

			cfgPath := resolveConfigPath()
			dbPath := resolveDBPath(cfgPath)

			if !force && (exists(dbPath) || exists(cfgPath)) {
				fmt.Printf("WARNING: This will overwrite existing data.\n")
				fmt.Printf("  Database: %s\n", dbPath)
				fmt.Printf("  Config:   %s\n", cfgPath)
				fmt.Printf("Use --force to skip this warning.\n")
				return fmt.Errorf("restore aborted (use --force to proceed)")
			}

			restored, err := restoreBackup(cmd.Context(), inputPath, dbPath, cfgPath)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			fmt.Printf("Restore completed from: %s\n", inputPath)
			for _, f := range restored {
				fmt.Printf("  - %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "backup file to restore from")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing data without warning")
	return cmd
}

// resolveDBPath returns journal.dbPath from the config at cfgPath, or the
// default journal path when the config cannot be read.
func resolveDBPath(cfgPath string) string {
	if cfg, err := config.Load(cfgPath); err == nil && cfg.Journal.DBPath != "" {
		return cfg.Journal.DBPath
	}
	return config.ExpandPath(config.Defaults().Journal.DBPath)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeBackup archives a snapshot of the journal at dbPath, its copy export
// and the config at cfgPath. Either may be missing, not both.
func writeBackup(ctx context.Context, outputPath, cfgPath, dbPath string) (manifest, error) {
	m := manifest{CreatedAt: time.Now().UTC()}

	staging, err := os.MkdirTemp("", "chanmover-backup-")
	if err != nil {
		return m, err
	}
	defer os.RemoveAll(staging)

	var files []archiveFile
	if exists(dbPath) {
		staged, err := stageJournal(ctx, staging, dbPath, &m)
		if err != nil {
			return m, err
		}
		files = append(files, staged...)
	}
	if exists(cfgPath) {
		m.Config = filepath.Base(cfgPath)
		files = append(files, archiveFile{name: m.Config, path: cfgPath})
	}
	if len(files) == 0 {
		return m, fmt.Errorf("nothing to back up (db: %s, config: %s)", dbPath, cfgPath)
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return m, fmt.Errorf("encode manifest: %w", err)
	}
	manifestPath := filepath.Join(staging, archiveManifest)
	if err := os.WriteFile(manifestPath, data, 0o600); err != nil {
		return m, err
	}
	files = append([]archiveFile{{name: archiveManifest, path: manifestPath}}, files...)

	return m, createTarGz(outputPath, files)
}

func stageJournal(ctx context.Context, staging, dbPath string, m *manifest) ([]archiveFile, error) {
	store, err := journal.Open(dbPath, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	snap := filepath.Join(staging, archiveJournal)
	if err := store.Snapshot(ctx, snap); err != nil {
		return nil, err
	}

	csvPath := filepath.Join(staging, archiveCopies)
	f, err := os.Create(csvPath)
	if err != nil {
		return nil, err
	}
	if _, err := store.ExportCopies(ctx, f); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	if m.Runs, m.Copies, err = store.Counts(ctx); err != nil {
		return nil, err
	}
	if m.SchemaVersion, err = store.SchemaVersion(); err != nil {
		return nil, err
	}
	return []archiveFile{
		{name: archiveJournal, path: snap},
		{name: archiveCopies, path: csvPath},
	}, nil
}

func createTarGz(outputPath string, files []archiveFile) error {
	outFile, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer outFile.Close()

	gzWriter := gzip.NewWriter(outFile)
	tarWriter := tar.NewWriter(gzWriter)

	for _, f := range files {
		if err := addFileToTar(tarWriter, f); err != nil {
			return fmt.Errorf("add %s: %w", f.name, err)
		}
	}
	if err := tarWriter.Close(); err != nil {
		return err
	}
	if err := gzWriter.Close(); err != nil {
		return err
	}
	return outFile.Close()
}

func addFileToTar(tw *tar.Writer, f archiveFile) error {
	file, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = f.name

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}

// restoreBackup unpacks archivePath next to dbPath, checks that the archived
// journal opens at a schema this build understands, then swaps it and the
// config into place.
func restoreBackup(ctx context.Context, archivePath, dbPath, cfgPath string) ([]string, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	staging, err := os.MkdirTemp(filepath.Dir(dbPath), ".chanmover-restore-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	staged, err := extractTarGz(archivePath, staging, cfgPath)
	if err != nil {
		return nil, err
	}
	if staged.journal == "" && staged.config == "" {
		return nil, errors.New("archive holds neither a journal nor a config")
	}

	var restored []string
	if staged.journal != "" {
		if err := verifyJournal(ctx, staged.journal, staged.manifest); err != nil {
			return nil, err
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			if err := os.Remove(dbPath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("remove stale %s: %w", dbPath+suffix, err)
			}
		}
		if err := os.Rename(staged.journal, dbPath); err != nil {
			return nil, fmt.Errorf("install journal: %w", err)
		}
		restored = append(restored, dbPath)
	}
	if staged.config != "" {
		data, err := os.ReadFile(staged.config)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
			return nil, fmt.Errorf("install config: %w", err)
		}
		restored = append(restored, cfgPath)
	}
	return restored, nil
}

// verifyJournal opens the staged journal, which replays any -wal file
// staged beside it and applies pending migrations, and rejects archives
// written by a newer schema.
func verifyJournal(ctx context.Context, path string, m *manifest) error {
	store, err := journal.Open(path, logger)
	if err != nil {
		return fmt.Errorf("archived journal is unusable: %w", err)
	}
	defer store.Close()

	v, err := store.SchemaVersion()
	if err != nil {
		return err
	}
	if m != nil && m.SchemaVersion > v {
		v = m.SchemaVersion
	}
	if v > journal.SupportedSchemaVersion() {
		return fmt.Errorf("archive has journal schema v%d, this build supports v%d", v, journal.SupportedSchemaVersion())
	}
	runs, copies, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	logger.Info("archived journal verified", "schema", v, "runs", runs, "copies", copies)
	return nil
}

type stagedArchive struct {
	journal  string
	config   string
	manifest *manifest
}

// extractTarGz unpacks the entries restore understands into staging.
// Archives from older releases stored the raw database with its -wal and
// -shm files; those land beside the staged journal so opening it replays
// them.
func extractTarGz(archivePath, staging, cfgPath string) (stagedArchive, error) {
	var out stagedArchive

	file, err := os.Open(archivePath)
	if err != nil {
		return out, err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return out, fmt.Errorf("not a valid gzip file: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	journalPath := filepath.Join(staging, archiveJournal)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		baseName := filepath.Base(header.Name)
		var target string
		switch {
		case baseName == archiveManifest:
			var m manifest
			if err := yaml.NewDecoder(tarReader).Decode(&m); err != nil {
				return out, fmt.Errorf("read manifest: %w", err)
			}
			out.manifest = &m
			continue
		case baseName == archiveCopies:
			continue
		case baseName == filepath.Base(cfgPath), baseName == "config.json", baseName == "config.yaml", baseName == "config.yml":
			target = filepath.Join(staging, "config")
			out.config = target
		case strings.HasSuffix(baseName, ".db"):
			target = journalPath
			out.journal = target
		case strings.HasSuffix(baseName, ".db-wal"):
			target = journalPath + "-wal"
		case strings.HasSuffix(baseName, ".db-shm"):
			target = journalPath + "-shm"
		default:
			logger.Warn("skipping unknown file in backup", "name", header.Name)
			continue
		}

		if err := writeEntry(target, tarReader); err != nil {
			return out, err
		}
	}
	return out, nil
}

func writeEntry(target string, r io.Reader) error {
	outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(outFile, r); err != nil {
		outFile.Close()
		return fmt.Errorf("extract %s: %w", target, err)
	}
	return outFile.Close()
}
