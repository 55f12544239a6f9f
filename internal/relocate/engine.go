// Package relocate re-creates messages in another channel under their
// original author's name and avatar.
package relocate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chanmover/internal/domain"
	"chanmover/internal/metrics"
	"chanmover/internal/pacer"
	"chanmover/internal/progress"
)

// Policy decides whether a message may be relocated.
type Policy func(domain.Message) error

// AllowAll accepts every message.
func AllowAll(domain.Message) error { return nil }

// Recorder is told about every message copied.
type Recorder interface {
	RecordCopy(ctx context.Context, source, copied domain.Message) error
}

// Engine copies messages through a destination webhook.
type Engine struct {
	transport        domain.Transport
	webhooks         *WebhookResolver
	composer         *Composer
	fetcher          *Fetcher
	guard            *Guard
	policy           Policy
	messageDelay     time.Duration
	progressInterval time.Duration
	dispatchTimeout  time.Duration
	logger           *slog.Logger
}

// Config configures an Engine.
type Config struct {
	Transport        domain.Transport
	Fetcher          *Fetcher
	WebhookName      string
	HideRole         string
	Policy           Policy
	MessageDelay     time.Duration // pause after each message
	ProgressInterval time.Duration
	DispatchTimeout  time.Duration
	Logger           *slog.Logger
}

// Options tunes a single Relocate call.
type Options struct {
	// Hide hides the destination from the hide role while copying. Nil
	// means hide.
	Hide     *bool
	Reporter domain.Reporter
	Recorder Recorder
}

// Stats summarises a relocation.
type Stats struct {
	Copied     int
	Skipped    int // dispatches that timed out
	Removed    int // single moves only
	SkippedIDs []string
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = NewFetcher(FetcherConfig{Logger: cfg.Logger})
	}
	if cfg.Policy == nil {
		cfg.Policy = AllowAll
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 4 * time.Second
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 60 * time.Second
	}
	return &Engine{
		transport:        cfg.Transport,
		webhooks:         NewWebhookResolver(cfg.Transport, cfg.WebhookName, cfg.Logger),
		composer:         NewComposer(cfg.Transport),
		fetcher:          cfg.Fetcher,
		guard:            NewGuard(cfg.Transport, cfg.HideRole, cfg.Logger),
		policy:           cfg.Policy,
		messageDelay:     cfg.MessageDelay,
		progressInterval: cfg.ProgressInterval,
		dispatchTimeout:  cfg.DispatchTimeout,
		logger:           cfg.Logger,
	}
}

// Relocate copies msgs, oldest first, into dest. Messages copied before a
// failure are neither removed from dest nor copied again.
func (e *Engine) Relocate(ctx context.Context, msgs []domain.Message, dest domain.Channel, guildID string, opts Options) (Stats, error) {
	hide := true
	if opts.Hide != nil {
		hide = *opts.Hide
	}
	var stats Stats
	err := e.guard.Run(ctx, guildID, dest.ID, hide, func(ctx context.Context) error {
		var err error
		stats, err = e.copyAll(ctx, msgs, dest, guildID, opts)
		return err
	})
	return stats, err
}

func (e *Engine) copyAll(ctx context.Context, msgs []domain.Message, dest domain.Channel, guildID string, opts Options) (Stats, error) {
	var stats Stats
	if len(msgs) == 0 {
		return stats, nil
	}
	for _, m := range msgs {
		if err := e.policy(m); err != nil {
			return stats, err
		}
	}

	target, threadID := dest.PostTarget()
	hook, err := e.webhooks.Active(ctx, target)
	if err != nil {
		return stats, err
	}

	total := len(msgs)
	reporter := progress.NewReporter(opts.Reporter, e.progressInterval, "Moving")
	if opts.Reporter != nil {
		if err := opts.Reporter.Status(ctx, progress.Banner(total)); err != nil {
			e.logger.Warn("progress update failed", "err", err)
		}
	}
	for idx, m := range msgs {
		if err := reporter.Report(ctx, idx, total); err != nil {
			// Interaction tokens expire; the move itself carries on.
			e.logger.Warn("progress update failed", "err", err)
		}
		if (idx+1)%10 == 0 {
			e.logger.Info("moving messages", "guild_id", guildID, "done", idx+1, "total", total)
		}

		copied, err := e.copyOne(ctx, hook, m, threadID, opts.Recorder)
		if err != nil {
			return stats, err
		}
		if !copied {
			stats.Skipped++
			stats.SkippedIDs = append(stats.SkippedIDs, m.ID)
		} else {
			stats.Copied++
		}

		if err := pacer.Sleep(ctx, e.messageDelay); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// RelocateOne copies a single message into dest without hiding it, removing
// the original afterwards when removeSource is set.
func (e *Engine) RelocateOne(ctx context.Context, msg domain.Message, dest domain.Channel, removeSource bool, rec Recorder) (Stats, error) {
	var stats Stats
	if err := e.policy(msg); err != nil {
		return stats, err
	}
	target, threadID := dest.PostTarget()
	hook, err := e.webhooks.Active(ctx, target)
	if err != nil {
		return stats, err
	}
	copied, err := e.copyOne(ctx, hook, msg, threadID, rec)
	if err != nil {
		return stats, err
	}
	if !copied {
		stats.Skipped = 1
		stats.SkippedIDs = []string{msg.ID}
		return stats, nil
	}
	stats.Copied = 1
	if removeSource {
		if err := e.removeSource(ctx, msg); err != nil {
			return stats, err
		}
		stats.Removed = 1
	}
	return stats, nil
}

// copyOne re-posts msg. It reports false when the dispatch timed out and
// the message was skipped.
func (e *Engine) copyOne(ctx context.Context, hook domain.Webhook, msg domain.Message, threadID string, rec Recorder) (bool, error) {
	files, err := e.fetcher.Files(ctx, msg)
	if err != nil {
		return false, err
	}
	payload, err := e.composer.Compose(ctx, msg, files)
	if err != nil {
		return false, err
	}
	payload.ThreadID = threadID

	dctx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
	defer cancel()
	start := time.Now()
	posted, err := e.transport.ExecuteWebhook(dctx, hook, payload)
	metrics.DispatchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			metrics.DispatchTimeouts.Inc()
			e.logger.Warn("webhook dispatch timed out, skipping message",
				"message_id", msg.ID,
				"timeout", e.dispatchTimeout,
			)
			return false, nil
		}
		return false, domain.TransportError("execute webhook", err)
	}
	metrics.MessagesRelocated.Inc()

	if rec != nil {
		if err := rec.RecordCopy(ctx, msg, posted); err != nil {
			e.logger.Warn("failed to record copied message", "message_id", msg.ID, "err", err)
		}
	}
	return true, nil
}

func (e *Engine) removeSource(ctx context.Context, msg domain.Message) error {
	if err := e.transport.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		return domain.TransportError("delete source message", err)
	}
	metrics.MessagesDeleted.Inc()
	metrics.SingleDeleteCalls.Inc()
	return nil
}
