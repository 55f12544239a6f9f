// Package discord connects the engines to Discord: a domain.Transport over
// the REST API and a gateway bot answering slash commands.
package discord

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"chanmover/internal/domain"
	"chanmover/internal/relocate"
)

// Client implements domain.Transport over a discordgo session.
type Client struct {
	session *discordgo.Session
}

// NewClient wraps an existing session. The session does not need an open
// gateway connection for REST calls.
func NewClient(s *discordgo.Session) *Client {
	return &Client{session: s}
}

// NewSession creates a bot session for token. Every REST call made through
// it is bounded by the larger of dispatchTimeout plus sessionTimeoutSlack and
// discordgo's default client timeout, so the per-dispatch context always
// expires first.
func NewSession(token string, dispatchTimeout time.Duration) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	s.Client = &http.Client{Timeout: sessionTimeout(s.Client.Timeout, dispatchTimeout)}
	return s, nil
}

const sessionTimeoutSlack = 30 * time.Second

func sessionTimeout(base, dispatchTimeout time.Duration) time.Duration {
	if t := dispatchTimeout + sessionTimeoutSlack; t > base {
		return t
	}
	return base
}

func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (domain.Message, error) {
	m, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return domain.Message{}, fmt.Errorf("get message %s/%s: %w", channelID, messageID, err)
	}
	return toMessage(m), nil
}

func (c *Client) FetchMessages(ctx context.Context, channelID string, q domain.PageQuery) ([]domain.Message, error) {
	limit := q.Limit
	if limit <= 0 || limit > domain.MaxPageSize {
		limit = domain.MaxPageSize
	}
	page, err := c.session.ChannelMessages(channelID, limit, q.Before, q.After, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get messages %s: %w", channelID, err)
	}
	out := make([]domain.Message, 0, len(page))
	for _, m := range page {
		out = append(out, toMessage(m))
	}
	return out, nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete message %s/%s: %w", channelID, messageID, err)
	}
	return nil
}

func (c *Client) BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string) error {
	if len(messageIDs) < 2 || len(messageIDs) > 100 {
		return fmt.Errorf("bulk delete needs 2 to 100 messages, got %d", len(messageIDs))
	}
	if err := c.session.ChannelMessagesBulkDelete(channelID, messageIDs, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("bulk delete %d messages in %s: %w", len(messageIDs), channelID, err)
	}
	return nil
}

func (c *Client) FetchChannel(ctx context.Context, channelID string) (domain.Channel, error) {
	ch, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return domain.Channel{}, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	return toChannel(ch), nil
}

func (c *Client) CreateChannel(ctx context.Context, guildID, name string) (domain.Channel, error) {
	ch, err := c.session.GuildChannelCreate(guildID, name, discordgo.ChannelTypeGuildText, discordgo.WithContext(ctx))
	if err != nil {
		return domain.Channel{}, fmt.Errorf("create channel %q: %w", name, err)
	}
	return toChannel(ch), nil
}

func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := c.session.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete channel %s: %w", channelID, err)
	}
	return nil
}

func (c *Client) ListChannelWebhooks(ctx context.Context, channelID string) ([]domain.Webhook, error) {
	hooks, err := c.session.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list webhooks %s: %w", channelID, err)
	}
	out := make([]domain.Webhook, 0, len(hooks))
	for _, h := range hooks {
		out = append(out, toWebhook(h))
	}
	return out, nil
}

func (c *Client) CreateWebhook(ctx context.Context, channelID, name string) (domain.Webhook, error) {
	h, err := c.session.WebhookCreate(channelID, name, "", discordgo.WithContext(ctx))
	if err != nil {
		return domain.Webhook{}, fmt.Errorf("create webhook in %s: %w", channelID, err)
	}
	return toWebhook(h), nil
}

// ExecuteWebhook posts the payload and waits for the created message.
func (c *Client) ExecuteWebhook(ctx context.Context, hook domain.Webhook, p domain.WebhookPayload) (domain.Message, error) {
	params := toWebhookParams(p)
	var (
		m   *discordgo.Message
		err error
	)
	if p.ThreadID != "" {
		m, err = c.session.WebhookThreadExecute(hook.ID, hook.Token, true, p.ThreadID, params, discordgo.WithContext(ctx))
	} else {
		m, err = c.session.WebhookExecute(hook.ID, hook.Token, true, params, discordgo.WithContext(ctx))
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("execute webhook %s: %w", hook.ID, err)
	}
	if m == nil {
		return domain.Message{ChannelID: hook.ChannelID}, nil
	}
	return toMessage(m), nil
}

func (c *Client) UpdateChannelPermission(ctx context.Context, channelID string, ow domain.Overwrite) error {
	err := c.session.ChannelPermissionSet(channelID, ow.RoleID, discordgo.PermissionOverwriteTypeRole, ow.Allow, ow.Deny, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("set permissions on %s for role %s: %w", channelID, ow.RoleID, err)
	}
	return nil
}

func (c *Client) ListGuildRoles(ctx context.Context, guildID string) ([]domain.Role, error) {
	roles, err := c.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list roles of %s: %w", guildID, err)
	}
	out := make([]domain.Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, domain.Role{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

var _ domain.Transport = (*Client)(nil)

// --- mapping ---

func toMessage(m *discordgo.Message) domain.Message {
	msg := domain.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Embeds:    m.Embeds,
		Timestamp: m.Timestamp,
		Flags:     m.Flags,
	}
	if msg.Timestamp.IsZero() {
		// Partial payloads omit the timestamp; the id still encodes it.
		if ts, err := domain.SnowflakeTime(m.ID); err == nil {
			msg.Timestamp = ts
		}
	}
	if m.Author != nil {
		msg.Author = domain.Author{
			ID:         m.Author.ID,
			Username:   m.Author.Username,
			GlobalName: m.Author.GlobalName,
			Avatar:     m.Author.Avatar,
		}
	}
	if m.Member != nil {
		msg.Author.Nick = m.Member.Nick
		msg.Author.GuildAvatar = m.Member.Avatar
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        a.Size,
			Spoiler:     strings.HasPrefix(a.Filename, relocate.SpoilerPrefix),
		})
	}
	if ref := m.MessageReference; ref != nil && ref.MessageID != "" {
		msg.Reference = &domain.Reference{
			GuildID:   ref.GuildID,
			ChannelID: ref.ChannelID,
			MessageID: ref.MessageID,
		}
		if msg.Reference.ChannelID == "" {
			msg.Reference.ChannelID = m.ChannelID
		}
	}
	return msg
}

func toChannel(ch *discordgo.Channel) domain.Channel {
	c := domain.Channel{ID: ch.ID, Name: ch.Name, GuildID: ch.GuildID}
	if ch.IsThread() {
		c.Kind = domain.ChannelThread
		c.ParentID = ch.ParentID
	}
	return c
}

func toWebhook(h *discordgo.Webhook) domain.Webhook {
	return domain.Webhook{ID: h.ID, ChannelID: h.ChannelID, Name: h.Name, Token: h.Token}
}

// toWebhookParams builds the dispatch body. Attachment descriptions have no
// place in discordgo's multipart upload and are dropped.
func toWebhookParams(p domain.WebhookPayload) *discordgo.WebhookParams {
	params := &discordgo.WebhookParams{
		Content:   p.Content,
		Username:  p.Username,
		AvatarURL: p.AvatarURL,
		Embeds:    p.Embeds,
		// Re-posted content must not ping anyone a second time.
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	for _, f := range p.Files {
		params.Files = append(params.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}
	return params
}
