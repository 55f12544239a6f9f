package relocate

import (
	"context"
	"errors"
	"log/slog"

	"chanmover/internal/domain"

	"github.com/bwmarrin/discordgo"
)

// DefaultHideRole is the role hidden from a destination during relocation.
const DefaultHideRole = "Hide"

// Guard hides a destination channel from a role while it is being filled.
type Guard struct {
	transport domain.Transport
	roleName  string
	logger    *slog.Logger
}

// NewGuard creates a Guard for the role named roleName.
func NewGuard(t domain.Transport, roleName string, logger *slog.Logger) *Guard {
	if roleName == "" {
		roleName = DefaultHideRole
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{transport: t, roleName: roleName, logger: logger}
}

// HideOverwrite denies the role view access.
func HideOverwrite(roleID string) domain.Overwrite {
	return domain.Overwrite{RoleID: roleID, Deny: discordgo.PermissionViewChannel}
}

// ShowOverwrite allows the role view access.
func ShowOverwrite(roleID string) domain.Overwrite {
	return domain.Overwrite{RoleID: roleID, Allow: discordgo.PermissionViewChannel}
}

// Run calls fn with channelID hidden from the guard's role when hide is set.
// Visibility is restored on every return path once it was taken away; a
// restore failure is joined to fn's error. A guild without the role runs fn
// unguarded.
func (g *Guard) Run(ctx context.Context, guildID, channelID string, hide bool, fn func(ctx context.Context) error) (err error) {
	if !hide {
		return fn(ctx)
	}
	roleID, err := g.findRole(ctx, guildID)
	if err != nil {
		return err
	}
	if roleID == "" {
		g.logger.Debug("no hide role in guild, channel stays visible", "guild_id", guildID, "role", g.roleName)
		return fn(ctx)
	}

	if err := g.transport.UpdateChannelPermission(ctx, channelID, HideOverwrite(roleID)); err != nil {
		return domain.TransportError("hide channel", err)
	}
	g.logger.Info("channel hidden during relocation", "channel_id", channelID, "role_id", roleID)

	defer func() {
		// Restore even when ctx was cancelled mid-run.
		rctx := context.WithoutCancel(ctx)
		if rerr := g.transport.UpdateChannelPermission(rctx, channelID, ShowOverwrite(roleID)); rerr != nil {
			g.logger.Error("failed to restore channel visibility", "channel_id", channelID, "role_id", roleID, "err", rerr)
			err = errors.Join(err, domain.TransportError("show channel", rerr))
			return
		}
		g.logger.Info("channel visible again", "channel_id", channelID)
	}()

	return fn(ctx)
}

func (g *Guard) findRole(ctx context.Context, guildID string) (string, error) {
	roles, err := g.transport.ListGuildRoles(ctx, guildID)
	if err != nil {
		return "", domain.TransportError("list roles", err)
	}
	for _, r := range roles {
		if r.Name == g.roleName {
			return r.ID, nil
		}
	}
	return "", nil
}
