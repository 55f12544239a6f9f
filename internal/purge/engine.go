// Package purge deletes message sequences, using bulk deletion where the
// platform allows it and falling back to one request per message.
package purge

import (
	"context"
	"log/slog"
	"time"

	"chanmover/internal/domain"
	"chanmover/internal/metrics"
	"chanmover/internal/pacer"
)

// DefaultAgeLimit is the oldest a message may be and still be bulk deleted.
const DefaultAgeLimit = 14 * 24 * time.Hour

// Engine deletes messages oldest first.
type Engine struct {
	transport    domain.Transport
	messageDelay time.Duration
	ageLimit     time.Duration
	bulkMax      int
	now          func() time.Time
	logger       *slog.Logger
}

// Config configures an Engine.
type Config struct {
	Transport    domain.Transport
	MessageDelay time.Duration // minimum spacing between single deletes
	AgeLimit     time.Duration // bulk deletion cutoff
	BulkMax      int
	Now          func() time.Time
	Logger       *slog.Logger
}

// Stats summarises a deletion run.
type Stats struct {
	Deleted     int
	BulkCalls   int
	SingleCalls int
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.AgeLimit <= 0 {
		cfg.AgeLimit = DefaultAgeLimit
	}
	if cfg.BulkMax < 2 || cfg.BulkMax > 100 {
		cfg.BulkMax = 100
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		transport:    cfg.Transport,
		messageDelay: cfg.MessageDelay,
		ageLimit:     cfg.AgeLimit,
		bulkMax:      cfg.BulkMax,
		now:          cfg.Now,
		logger:       cfg.Logger,
	}
}

// DeleteAll removes msgs, which must be ordered oldest first. origin, when
// set, names the guild in periodic progress log lines. Messages deleted
// before a failure stay deleted.
func (e *Engine) DeleteAll(ctx context.Context, msgs []domain.Message, origin string) (Stats, error) {
	var stats Stats
	total := len(msgs)
	remaining := msgs
	step := pacer.New(e.messageDelay)

	for len(remaining) > 0 {
		if len(remaining) == 1 || e.tooOld(remaining[0]) {
			n := e.sequentialStretch(remaining)
			for _, m := range remaining[:n] {
				err := step.Step(ctx, func(ctx context.Context) error {
					return e.transport.DeleteMessage(ctx, m.ChannelID, m.ID)
				})
				if err != nil {
					if ctx.Err() != nil {
						return stats, err
					}
					return stats, domain.TransportError("delete message", err)
				}
				stats.Deleted++
				stats.SingleCalls++
				metrics.MessagesDeleted.Inc()
				metrics.SingleDeleteCalls.Inc()

				if stats.Deleted%10 == 0 && origin != "" {
					e.logger.Info("deleting messages",
						"origin", origin,
						"done", stats.Deleted,
						"total", total,
					)
				}
			}
			remaining = remaining[n:]
			continue
		}

		n := min(e.bulkMax, len(remaining))
		batch := remaining[:n]
		ids := make([]string, n)
		for i, m := range batch {
			ids[i] = m.ID
		}
		if err := e.transport.BulkDeleteMessages(ctx, batch[0].ChannelID, ids); err != nil {
			return stats, domain.TransportError("bulk delete messages", err)
		}
		stats.Deleted += n
		stats.BulkCalls++
		metrics.MessagesDeleted.Add(float64(n))
		metrics.BulkDeleteCalls.Inc()
		remaining = remaining[n:]
	}

	if origin != "" {
		e.logger.Info("deleted messages",
			"origin", origin,
			"deleted", stats.Deleted,
			"bulk_calls", stats.BulkCalls,
			"single_calls", stats.SingleCalls,
		)
	}
	return stats, nil
}

func (e *Engine) tooOld(m domain.Message) bool {
	return m.Age(e.now()) > e.ageLimit
}

// sequentialStretch returns how many leading messages must be deleted one at
// a time: every message past the age limit, or the last one left.
func (e *Engine) sequentialStretch(msgs []domain.Message) int {
	n := 0
	for n < len(msgs) && e.tooOld(msgs[n]) {
		n++
	}
	return max(n, 1)
}
