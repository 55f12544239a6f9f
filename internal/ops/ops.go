// Package ops exposes one entry point per use case: move a single message,
// move a message and everything below it, move a range, move a whole
// channel and delete a range. Every request is validated before the first
// mutating call.
package ops

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chanmover/internal/domain"
	"chanmover/internal/history"
	"chanmover/internal/journal"
	"chanmover/internal/metrics"
	"chanmover/internal/purge"
	"chanmover/internal/relocate"
)

// Status texts sent to the requester.
const (
	StatusMoving   = "Moving messages..."
	StatusDeleting = "Deleting messages..."
	StatusDone     = "Done!"
)

// Operation names, as recorded in the journal and metrics.
const (
	OpMoveMessage = "move_message"
	OpMoveBelow   = "move_message_and_below"
	OpMoveRange   = "move_channel_to_until"
	OpMoveChannel = "move_channel_to"
	OpDeleteRange = "delete_messages"
)

func foundStatus(n int) string { return fmt.Sprintf("Found %d messages", n) }

// Service runs operations against a transport.
type Service struct {
	transport domain.Transport
	resolver  *history.Resolver
	relocator *relocate.Engine
	purger    *purge.Engine
	journal   *journal.Store
	logger    *slog.Logger
}

// Config wires a Service. Journal is optional.
type Config struct {
	Transport domain.Transport
	Resolver  *history.Resolver
	Relocator *relocate.Engine
	Purger    *purge.Engine
	Journal   *journal.Store
	Logger    *slog.Logger
}

// New creates a Service. Engines left nil are built with their defaults.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = history.New(history.Config{Transport: cfg.Transport, Logger: cfg.Logger})
	}
	if cfg.Relocator == nil {
		cfg.Relocator = relocate.New(relocate.Config{Transport: cfg.Transport, Logger: cfg.Logger})
	}
	if cfg.Purger == nil {
		cfg.Purger = purge.New(purge.Config{Transport: cfg.Transport, Logger: cfg.Logger})
	}
	return &Service{
		transport: cfg.Transport,
		resolver:  cfg.Resolver,
		relocator: cfg.Relocator,
		purger:    cfg.Purger,
		journal:   cfg.Journal,
		logger:    cfg.Logger,
	}
}

// Summary reports what an operation did.
type Summary struct {
	RunID   string
	Found   int
	Copied  int
	Skipped int
	Deleted int
	// Partial is set when the end boundary was never reached.
	Partial bool
	Dest    domain.Channel
}

// run tracks one operation from validation to completion.
type run struct {
	svc      *Service
	op       string
	id       string
	start    time.Time
	reporter domain.Reporter
	logger   *slog.Logger
}

func (s *Service) begin(ctx context.Context, op string, rec journal.Run, reporter domain.Reporter) *run {
	if reporter == nil {
		reporter = domain.NopReporter
	}
	r := &run{svc: s, op: op, start: time.Now(), reporter: reporter}
	metrics.ActiveOperations.Inc()
	metrics.Operations(op).Inc()

	if s.journal != nil {
		rec.Op = op
		id, err := s.journal.Start(ctx, rec)
		if err != nil {
			s.logger.Warn("journal start failed", "op", op, "err", err)
		} else {
			r.id = id
		}
	}
	r.logger = s.logger.With("op", op, "run", r.id)
	r.logger.Info("operation started", "source", rec.SourceChannel, "dest", rec.DestChannel)
	return r
}

// status pushes a status line. Interaction tokens expire after a while, so
// a failed update is logged and the operation carries on.
func (r *run) status(ctx context.Context, text string) {
	if err := r.reporter.Status(ctx, text); err != nil {
		r.logger.Warn("status update failed", "status", text, "err", err)
	}
}

func (r *run) found(ctx context.Context, n int) {
	r.status(ctx, foundStatus(n))
	if r.id != "" {
		if err := r.svc.journal.SetTotal(ctx, r.id, n); err != nil {
			r.logger.Warn("journal update failed", "err", err)
		}
	}
}

func (r *run) recorder() relocate.Recorder {
	if r.id == "" {
		return nil
	}
	return r.svc.journal.ForRun(r.id)
}

func (r *run) finish(ctx context.Context, sum *Summary, err error) {
	metrics.ActiveOperations.Dec()
	elapsed := time.Since(r.start)
	metrics.OperationLatency.Observe(elapsed.Seconds())
	if err != nil {
		metrics.OperationsFailed.Inc()
		r.logger.Error("operation failed", "err", err, "duration", elapsed)
	} else {
		r.logger.Info("operation finished",
			"copied", sum.Copied,
			"deleted", sum.Deleted,
			"skipped", sum.Skipped,
			"partial", sum.Partial,
			"duration", elapsed,
		)
	}
	sum.RunID = r.id
	if r.id == "" {
		return
	}
	// The run is recorded even when ctx was cancelled mid-operation.
	jctx := context.WithoutCancel(ctx)
	if jerr := r.svc.journal.Finish(jctx, r.id, journal.Outcome{
		Copied:  sum.Copied,
		Deleted: sum.Deleted,
		Skipped: sum.Skipped,
		Partial: sum.Partial,
		Err:     err,
	}); jerr != nil {
		r.logger.Warn("journal finish failed", "err", jerr)
	}
}

// copiedOnly drops the messages whose dispatch was skipped so they are not
// deleted at their source.
func copiedOnly(msgs []domain.Message, skipped []string) []domain.Message {
	if len(skipped) == 0 {
		return msgs
	}
	skip := make(map[string]struct{}, len(skipped))
	for _, id := range skipped {
		skip[id] = struct{}{}
	}
	out := make([]domain.Message, 0, len(msgs)-len(skip))
	for _, m := range msgs {
		if _, ok := skip[m.ID]; !ok {
			out = append(out, m)
		}
	}
	return out
}
