package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chanmover/internal/config"
	"chanmover/internal/discord"
	"chanmover/internal/domain"
	"chanmover/internal/history"
	"chanmover/internal/journal"
	"chanmover/internal/metrics"
	"chanmover/internal/ops"
	"chanmover/internal/purge"
	"chanmover/internal/relocate"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the slash-command bot",
		Long:  "Connects to Discord, registers the slash commands and serves them until Ctrl+C. Running operations are finished before exit.",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := newSession(cfg)
	if err != nil {
		return err
	}
	store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	svc := buildService(cfg, discord.NewClient(session), store)

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Endpoint, logger); err != nil {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	bot := discord.NewBot(discord.BotConfig{
		Session: session,
		Ops:     svc,
		GuildID: cfg.Discord.GuildID,
		Logger:  logger,
	})
	logger.Info("bot starting. Press Ctrl+C to stop.", "version", version)
	if err := bot.Start(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete", "uptime", metrics.Uptime().Round(time.Second), "counters", metrics.Snapshot())
	return nil
}

func newSession(cfg *config.Config) (*discordgo.Session, error) {
	if cfg.Discord.Token == "" {
		return nil, errors.New("discord token not set (discord.token or " + config.TokenEnv + ")")
	}
	return discord.NewSession(cfg.Discord.Token, cfg.Pacing.DispatchTimeout.Std())
}

// buildService wires the engines from config.
func buildService(cfg *config.Config, transport domain.Transport, store *journal.Store) *ops.Service {
	p := cfg.Pacing
	fetcher := relocate.NewFetcher(relocate.FetcherConfig{
		Client:     relocate.NewHTTPClient(cfg.Attachments.DownloadTimeout.Std()),
		MaxRetries: cfg.Attachments.MaxRetries,
		MaxBytes:   cfg.Attachments.MaxBytes,
		Logger:     logger,
	})
	return ops.New(ops.Config{
		Transport: transport,
		Resolver: history.New(history.Config{
			Transport: transport,
			PageDelay: p.HistoryPageDelay.Std(),
			PageSize:  p.PageSize,
			Logger:    logger,
		}),
		Relocator: relocate.New(relocate.Config{
			Transport:        transport,
			Fetcher:          fetcher,
			WebhookName:      cfg.Discord.WebhookName,
			HideRole:         cfg.Discord.HideRoleName,
			MessageDelay:     p.MessageDelay.Std(),
			ProgressInterval: p.ProgressInterval.Std(),
			DispatchTimeout:  p.DispatchTimeout.Std(),
			Logger:           logger,
		}),
		Purger: purge.New(purge.Config{
			Transport:    transport,
			MessageDelay: p.MessageDelay.Std(),
			AgeLimit:     p.BatchAgeLimit.Std(),
			BulkMax:      p.BulkMax,
			Logger:       logger,
		}),
		Journal: store,
		Logger:  logger,
	})
}

// withService runs fn against a REST-only session, for one-off commands.
func withService(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, svc *ops.Service) (ops.Summary, error)) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	session, err := newSession(cfg)
	if err != nil {
		return err
	}
	store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := fn(ctx, cfg, buildService(cfg, discord.NewClient(session), store))
	if err != nil {
		if domain.IsUserFacing(err) {
			return errors.New(domain.UserMessage(err))
		}
		return err
	}
	fmt.Printf("found %d, copied %d, skipped %d, deleted %d", sum.Found, sum.Copied, sum.Skipped, sum.Deleted)
	if sum.Dest.ID != "" {
		fmt.Printf(", destination %s", sum.Dest.ID)
	}
	if sum.RunID != "" {
		fmt.Printf(", run %s", sum.RunID)
	}
	fmt.Println()
	if sum.Partial {
		fmt.Println(domain.UserMessage(domain.Errorf(domain.KindBoundaryNotFound, "")))
	}
	return nil
}
