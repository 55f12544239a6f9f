// Package history turns message boundaries into ordered message sequences
// by paging through channel history.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"chanmover/internal/domain"
	"chanmover/internal/pacer"
)

// Resolver fetches contiguous, chronologically ordered runs of messages.
type Resolver struct {
	transport domain.Transport
	pageDelay time.Duration
	pageSize  int
	logger    *slog.Logger
}

// Config configures a Resolver.
type Config struct {
	Transport domain.Transport
	PageDelay time.Duration // pause between history pages
	PageSize  int
	Logger    *slog.Logger
}

// Result is a resolved sequence, oldest first. Partial is set when the end
// boundary was never reached and the sequence stops early.
type Result struct {
	Messages []domain.Message
	Partial  bool
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	if cfg.PageSize <= 0 || cfg.PageSize > domain.MaxPageSize {
		cfg.PageSize = domain.MaxPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		transport: cfg.Transport,
		pageDelay: cfg.PageDelay,
		pageSize:  cfg.PageSize,
		logger:    cfg.Logger,
	}
}

// Resolve returns the messages between r.From and r.To inclusive, in either
// order. Without r.To only the From message is returned.
func (r *Resolver) Resolve(ctx context.Context, channelID string, rng domain.Range) (Result, error) {
	if rng.To == "" || rng.Single() {
		msg, err := r.fetchOne(ctx, channelID, rng.From)
		if err != nil {
			return Result{}, err
		}
		return Result{Messages: []domain.Message{msg}}, nil
	}
	rng = rng.Normalize()
	return r.collect(ctx, channelID, rng.From, rng.To)
}

// ResolveFrom returns the message from and everything posted after it.
func (r *Resolver) ResolveFrom(ctx context.Context, channelID, from string) (Result, error) {
	return r.collect(ctx, channelID, from, "")
}

func (r *Resolver) fetchOne(ctx context.Context, channelID, id string) (domain.Message, error) {
	msg, err := r.transport.FetchMessage(ctx, channelID, id)
	if err != nil {
		return domain.Message{}, domain.TransportError("fetch message", err)
	}
	return msg, nil
}

// collect pages forward from "from" until "to" is found or history runs out.
// An empty "to" reads to the end of the channel.
func (r *Resolver) collect(ctx context.Context, channelID, from, to string) (Result, error) {
	first, err := r.fetchOne(ctx, channelID, from)
	if err != nil {
		return Result{}, err
	}
	messages := []domain.Message{first}

	for {
		last := messages[len(messages)-1].ID
		page, err := r.transport.FetchMessages(ctx, channelID, domain.PageQuery{After: last, Limit: r.pageSize})
		if err != nil {
			return Result{}, domain.TransportError("fetch messages", err)
		}
		if len(page) == 0 {
			break
		}
		slices.Reverse(page)

		for _, m := range page {
			if domain.CompareIDs(m.ID, messages[len(messages)-1].ID) <= 0 {
				continue
			}
			if to != "" && domain.CompareIDs(m.ID, to) > 0 {
				// The boundary is gone; nothing after it belongs to the range.
				return r.partial(channelID, to, messages), nil
			}
			messages = append(messages, m)
			if domain.CompareIDs(m.ID, to) == 0 {
				return Result{Messages: messages}, nil
			}
		}

		if err := pacer.Sleep(ctx, r.pageDelay); err != nil {
			return Result{}, err
		}
	}

	if to != "" {
		return r.partial(channelID, to, messages), nil
	}
	return Result{Messages: messages}, nil
}

func (r *Resolver) partial(channelID, to string, messages []domain.Message) Result {
	r.logger.Warn("end boundary not found, returning partial range",
		"channel_id", channelID,
		"to", to,
		"collected", len(messages),
	)
	return Result{Messages: messages, Partial: true}
}

// ResolveAll returns the whole history of a channel, oldest first.
func (r *Resolver) ResolveAll(ctx context.Context, channelID string) ([]domain.Message, error) {
	var messages []domain.Message
	before := ""

	for {
		page, err := r.transport.FetchMessages(ctx, channelID, domain.PageQuery{Before: before, Limit: r.pageSize})
		if err != nil {
			return nil, domain.TransportError("fetch messages", err)
		}
		if len(page) == 0 {
			break
		}
		messages = append(messages, page...)
		before = page[len(page)-1].ID

		if len(messages)%1000 < len(page) {
			r.logger.Debug("reading channel history", "channel_id", channelID, "collected", len(messages))
		}
		if err := pacer.Sleep(ctx, r.pageDelay); err != nil {
			return nil, err
		}
	}

	slices.Reverse(messages)
	return dedupe(messages), nil
}

// dedupe drops repeated ids from an ascending sequence.
func dedupe(messages []domain.Message) []domain.Message {
	out := messages[:0]
	for _, m := range messages {
		if len(out) > 0 && domain.CompareIDs(m.ID, out[len(out)-1].ID) <= 0 {
			continue
		}
		out = append(out, m)
	}
	return out
}

// String is used in log lines.
func (r Result) String() string {
	if r.Partial {
		return fmt.Sprintf("%d messages (partial)", len(r.Messages))
	}
	return fmt.Sprintf("%d messages", len(r.Messages))
}
