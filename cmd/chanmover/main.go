package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"chanmover/internal/config"
	"chanmover/internal/journal"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "chanmover",
		Short: "chanmover: move and delete Discord messages in bulk",
		Long: `chanmover re-posts Discord messages in another channel under their
original author's name and avatar, and deletes message ranges. It runs as a
slash-command bot or as one-off commands from the terminal.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.chanmover/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(wizardCmd())
	root.AddCommand(runCmd())
	root.AddCommand(moveCmd())
	root.AddCommand(moveBelowCmd())
	root.AddCommand(moveRangeCmd())
	root.AddCommand(moveChannelCmd())
	root.AddCommand(deleteCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(daemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config and replaces the package logger with one
// honoring general.logLevel and general.logFile. The returned func closes
// the log file, if any.
func loadConfig() (*config.Config, func(), error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	closeLog, err := setupLogger(cfg.General)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closeLog, nil
}

func setupLogger(g config.GeneralConfig) (func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", g.LogLevel, err)
	}
	var w io.Writer = os.Stderr
	closeFn := func() {}
	if g.LogFile != "" {
		path := config.ExpandPath(g.LogFile)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { f.Close() }
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return closeFn, nil
}

// openJournal opens the journal when enabled. A nil store disables it.
func openJournal(cfg *config.Config) (*journal.Store, error) {
	if !cfg.Journal.Enabled {
		return nil, nil
	}
	store, err := journal.Open(cfg.Journal.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return store, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Printf("Set discord.token in %s or export %s, then run 'chanmover run'.\n", cfgPath, config.TokenEnv)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent operations recorded in the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			store, err := openJournal(cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("journal is disabled (journal.enabled=false)")
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(os.Stdout, runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	cmd.AddCommand(&cobra.Command{
		Use:   "show [run-id]",
		Short: "List the messages copied by one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			store, err := openJournal(cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("journal is disabled (journal.enabled=false)")
			}
			defer store.Close()

			copies, err := store.Copies(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tCOPY\tAT")
			for _, c := range copies {
				fmt.Fprintf(tw, "%s/%s\t%s/%s\t%s\n", c.SourceChannel, c.SourceMessage, c.DestChannel, c.DestMessage, c.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	})
	return cmd
}

func printRuns(w io.Writer, runs []journal.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOP\tSTATUS\tSOURCE\tDEST\tTOTAL\tCOPIED\tDELETED\tSKIPPED\tSTARTED\tERROR")
	for _, r := range runs {
		status := r.Status
		if r.Partial {
			status += " (partial)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.Op, status, r.SourceChannel, orDash(r.DestChannel),
			r.Total, r.Copied, r.Deleted, r.Skipped,
			r.StartedAt.Format(time.RFC3339), orDash(oneLine(r.Error)))
	}
	tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and journal status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true,
				"token_set", cfg.Discord.Token != "",
				"guild", orDash(cfg.Discord.GuildID),
				"metrics", cfg.Metrics.Enabled)

			store, err := openJournal(cfg)
			if err != nil {
				return err
			}
			if store == nil {
				logger.Info("journal", "enabled", false)
				return nil
			}
			defer store.Close()

			schema, err := store.SchemaVersion()
			if err != nil {
				return err
			}
			runs, err := store.Recent(cmd.Context(), 100)
			if err != nil {
				return err
			}
			counts := map[string]int{}
			for _, r := range runs {
				counts[r.Status]++
			}
			logger.Info("journal", "enabled", true, "path", cfg.Journal.DBPath, "schema", schema,
				"recent_runs", len(runs),
				journal.StatusDone, counts[journal.StatusDone],
				journal.StatusFailed, counts[journal.StatusFailed],
				journal.StatusRunning, counts[journal.StatusRunning])
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. pacing.messageDelay)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Println(val)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. pacing.messageDelay 500ms)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			values := config.ListPaths(cfg)
			for _, k := range config.Paths() {
				fmt.Printf("%s = %s\n", k, values[k])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
