package domain

import "context"

// PageQuery selects a page of channel history. Exactly one of Before and
// After may be set; with neither, the newest messages are returned.
type PageQuery struct {
	Before string
	After  string
	Limit  int
}

// MaxPageSize is the largest history page the platform returns.
const MaxPageSize = 100

// WebhookFile is an attachment uploaded with a webhook dispatch.
type WebhookFile struct {
	Name        string
	ContentType string
	Description string
	Data        []byte
}

// WebhookPayload is an impersonated message.
type WebhookPayload struct {
	Username  string
	AvatarURL string
	Content   string
	Files     []WebhookFile
	Embeds    []*Embed
	ThreadID  string
}

// Transport is the platform capability the engines are built on.
// History pages are returned newest first, as the platform does.
type Transport interface {
	FetchMessage(ctx context.Context, channelID, messageID string) (Message, error)
	FetchMessages(ctx context.Context, channelID string, q PageQuery) ([]Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string) error

	FetchChannel(ctx context.Context, channelID string) (Channel, error)
	CreateChannel(ctx context.Context, guildID, name string) (Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error

	ListChannelWebhooks(ctx context.Context, channelID string) ([]Webhook, error)
	CreateWebhook(ctx context.Context, channelID, name string) (Webhook, error)
	ExecuteWebhook(ctx context.Context, hook Webhook, payload WebhookPayload) (Message, error)

	UpdateChannelPermission(ctx context.Context, channelID string, ow Overwrite) error
	ListGuildRoles(ctx context.Context, guildID string) ([]Role, error)
}
