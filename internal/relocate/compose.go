package relocate

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"chanmover/internal/domain"
)

const (
	cdnBase          = "https://cdn.discordapp.com"
	maxUsernameLen   = 80
	maxEmbedDescLen  = 4096
	replyFieldName   = "Jump"
	replyFieldFormat = "[Go to message](%s)"
)

// Composer builds the impersonated payload for a message.
type Composer struct {
	transport domain.Transport
}

// NewComposer creates a Composer. The transport is used to look up replied-to
// messages and their channel names.
func NewComposer(t domain.Transport) *Composer {
	return &Composer{transport: t}
}

// Compose returns the payload re-creating msg with the given files.
func (c *Composer) Compose(ctx context.Context, msg domain.Message, files []domain.WebhookFile) (domain.WebhookPayload, error) {
	if utf8.RuneCountInString(msg.Content) > domain.MaxContentLength {
		return domain.WebhookPayload{}, &domain.Error{
			Kind:   domain.KindContentTooLong,
			Detail: fmt.Sprintf("message %s has %d characters", msg.ID, utf8.RuneCountInString(msg.Content)),
		}
	}

	p := domain.WebhookPayload{
		Username:  truncate(msg.Author.DisplayName(), maxUsernameLen),
		AvatarURL: AvatarURL(msg.Author, msg.GuildID),
		Content:   msg.Content,
		Files:     files,
	}
	if len(msg.Embeds) > 0 {
		p.Embeds = append(p.Embeds, msg.Embeds...)
	}
	if msg.IsReply() {
		embed, err := c.ReplyEmbed(ctx, *msg.Reference)
		if err != nil {
			return domain.WebhookPayload{}, err
		}
		p.Embeds = append(p.Embeds, embed)
	}
	return p, nil
}

// ReplyEmbed summarises the referenced message: its author, channel, content
// and time, with a link back to it.
func (c *Composer) ReplyEmbed(ctx context.Context, ref domain.Reference) (*domain.Embed, error) {
	orig, err := c.transport.FetchMessage(ctx, ref.ChannelID, ref.MessageID)
	if err != nil {
		return nil, domain.TransportError("fetch replied message", err)
	}
	ch, err := c.transport.FetchChannel(ctx, orig.ChannelID)
	if err != nil {
		return nil, domain.TransportError("fetch replied channel", err)
	}

	guildID := ref.GuildID
	if guildID == "" {
		guildID = orig.GuildID
	}
	link := MessageLink(guildID, ref.ChannelID, ref.MessageID)

	return &domain.Embed{
		URL: link,
		Author: &domain.EmbedAuthor{
			Name:    orig.Author.DisplayName(),
			IconURL: AvatarURL(orig.Author, orig.GuildID),
		},
		Footer:      &domain.EmbedFooter{Text: ch.Name},
		Description: truncate(orig.Content, maxEmbedDescLen),
		Fields: []*domain.EmbedField{
			{Name: replyFieldName, Value: fmt.Sprintf(replyFieldFormat, link)},
		},
		Timestamp: orig.Timestamp.Format(time.RFC3339),
	}, nil
}

// MessageLink returns the deep link to a message. DMs use "@me" in place of
// a guild id.
func MessageLink(guildID, channelID, messageID string) string {
	if guildID == "" {
		guildID = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

// AvatarURL returns the guild avatar when the author has one, then the
// global avatar, then the platform default avatar.
func AvatarURL(a domain.Author, guildID string) string {
	switch {
	case a.GuildAvatar != "" && guildID != "":
		return fmt.Sprintf("%s/guilds/%s/users/%s/avatars/%s.png", cdnBase, guildID, a.ID, a.GuildAvatar)
	case a.Avatar != "":
		return fmt.Sprintf("%s/avatars/%s/%s.png", cdnBase, a.ID, a.Avatar)
	}
	idx := uint64(0)
	if id, err := strconv.ParseUint(a.ID, 10, 64); err == nil {
		idx = (id >> 22) % 6
	}
	return fmt.Sprintf("%s/embed/avatars/%d.png", cdnBase, idx)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
