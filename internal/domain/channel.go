package domain

import "context"

// ChannelKind distinguishes threads from ordinary channels.
type ChannelKind int

const (
	ChannelStandard ChannelKind = iota
	ChannelThread
)

// Channel is a guild text channel or thread.
type Channel struct {
	ID       string
	Name     string
	Kind     ChannelKind
	ParentID string // set for threads only
	GuildID  string
}

// IsThread reports whether the channel is a thread.
func (c Channel) IsThread() bool { return c.Kind == ChannelThread }

// PostTarget returns the channel that owns webhooks for c and, for threads,
// the thread id to pass along with each dispatch.
func (c Channel) PostTarget() (channelID, threadID string) {
	if c.IsThread() && c.ParentID != "" {
		return c.ParentID, c.ID
	}
	return c.ID, ""
}

// Webhook is a channel-bound impersonation endpoint. Only webhooks with a
// token can be executed.
type Webhook struct {
	ID        string
	ChannelID string
	Name      string
	Token     string
}

// Usable reports whether the webhook carries a secret token.
func (w Webhook) Usable() bool { return w.Token != "" }

// Role is a guild role.
type Role struct {
	ID   string
	Name string
}

// Overwrite is a role permission overwrite applied to a channel.
type Overwrite struct {
	RoleID string
	Allow  int64
	Deny   int64
}

// Reporter receives coarse, human readable status. Each call replaces the
// previous status rather than adding a new one.
type Reporter interface {
	Status(ctx context.Context, text string) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, text string) error

func (f ReporterFunc) Status(ctx context.Context, text string) error { return f(ctx, text) }

// NopReporter discards status updates.
var NopReporter Reporter = ReporterFunc(func(context.Context, string) error { return nil })
