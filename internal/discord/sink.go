package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"

	"chanmover/internal/domain"
)

// InteractionSink reports status by editing the deferred, ephemeral reply of
// a slash command. Each status replaces the previous one.
type InteractionSink struct {
	edit func(ctx context.Context, content string) error

	mu   sync.Mutex
	last string
}

// NewInteractionSink returns a sink bound to the interaction's reply.
func NewInteractionSink(s *discordgo.Session, i *discordgo.Interaction) *InteractionSink {
	return &InteractionSink{
		edit: func(ctx context.Context, content string) error {
			_, err := s.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &content}, discordgo.WithContext(ctx))
			return err
		},
	}
}

// Status implements domain.Reporter. Repeating the current status is a no-op.
func (s *InteractionSink) Status(ctx context.Context, text string) error {
	text = clip(text, domain.MaxContentLength)
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == s.last {
		return nil
	}
	if err := s.edit(ctx, text); err != nil {
		return domain.TransportError("edit interaction response", err)
	}
	s.last = text
	return nil
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
