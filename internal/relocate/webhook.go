package relocate

import (
	"context"
	"log/slog"

	"chanmover/internal/domain"
	"chanmover/internal/metrics"
)

// DefaultWebhookName names webhooks created for relocation.
const DefaultWebhookName = "interchannel message mover"

// WebhookResolver finds a channel's executable webhook, creating one when
// the channel has none. Nothing is cached between calls, so two concurrent
// runs against the same channel may each create a webhook.
type WebhookResolver struct {
	transport domain.Transport
	name      string
	logger    *slog.Logger
}

// NewWebhookResolver creates a resolver that names new webhooks name.
func NewWebhookResolver(t domain.Transport, name string, logger *slog.Logger) *WebhookResolver {
	if name == "" {
		name = DefaultWebhookName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookResolver{transport: t, name: name, logger: logger}
}

// Active returns the first webhook on channelID that carries a token, or a
// newly created one.
func (w *WebhookResolver) Active(ctx context.Context, channelID string) (domain.Webhook, error) {
	hooks, err := w.transport.ListChannelWebhooks(ctx, channelID)
	if err != nil {
		return domain.Webhook{}, domain.TransportError("list webhooks", err)
	}
	for _, h := range hooks {
		if h.Usable() {
			return h, nil
		}
	}

	hook, err := w.transport.CreateWebhook(ctx, channelID, w.name)
	if err != nil {
		return domain.Webhook{}, domain.TransportError("create webhook", err)
	}
	if !hook.Usable() {
		return domain.Webhook{}, domain.Errorf(domain.KindTransport, "created webhook %s has no token", hook.ID)
	}
	metrics.WebhooksCreated.Inc()
	w.logger.Info("created webhook", "channel_id", channelID, "webhook_id", hook.ID, "name", w.name)
	return hook, nil
}
