// Package progress renders coarse progress for long running operations.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chanmover/internal/domain"
)

// BarWidth is the number of cells in a rendered bar.
const BarWidth = 40

// Bar renders current/total as a fixed-width bar followed by a rounded-down
// percentage. total must be positive.
func Bar(current, total int) string {
	filled := current * BarWidth / total
	filled = min(max(filled, 0), BarWidth)
	return fmt.Sprintf("[%s%s] %d%%",
		strings.Repeat("=", filled),
		strings.Repeat(" ", BarWidth-filled),
		current*100/total,
	)
}

// Banner is the status shown when a relocation of n messages starts.
func Banner(n int) string {
	switch {
	case n <= 10:
		return "starting up the car :red_car:"
	case n <= 20:
		return "starting up the truck :pickup_truck:"
	case n <= 30:
		return "starting up the truck :truck:"
	case n <= 40:
		return "starting up the lorry :articulated_lorry:"
	default:
		return "starting up the ship :ship:"
	}
}

// Reporter publishes progress through a status sink, at most once per
// interval except for the final step.
type Reporter struct {
	sink     domain.Reporter
	interval time.Duration
	verb     string
	last     time.Time
	now      func() time.Time
}

// NewReporter creates a reporter. verb prefixes each update ("Moving").
func NewReporter(sink domain.Reporter, interval time.Duration, verb string) *Reporter {
	if sink == nil {
		sink = domain.NopReporter
	}
	if verb == "" {
		verb = "Moving"
	}
	return &Reporter{sink: sink, interval: interval, verb: verb, now: time.Now}
}

// Report emits progress for the zero-based index idx of total. Updates are
// skipped until interval has elapsed since the last one, except when idx is
// the last index. The first call always starts the interval clock.
func (r *Reporter) Report(ctx context.Context, idx, total int) error {
	if total <= 0 {
		return nil
	}
	now := r.now()
	if r.last.IsZero() {
		r.last = now
	}
	if now.Sub(r.last) < r.interval && idx != total-1 {
		return nil
	}
	r.last = now
	return r.Emit(ctx, idx, total)
}

// Emit publishes progress unconditionally.
func (r *Reporter) Emit(ctx context.Context, idx, total int) error {
	if total <= 0 {
		return nil
	}
	text := fmt.Sprintf("%s %d/%d:\n%s", r.verb, idx+1, total, Bar(idx, total))
	return r.sink.Status(ctx, text)
}

// LogSink writes status updates to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Status(_ context.Context, text string) error {
	s.Logger.Info("status", "text", text)
	return nil
}
