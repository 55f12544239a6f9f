package main

import (
	"context"

	"chanmover/internal/config"
	"chanmover/internal/ops"
	"chanmover/internal/progress"

	"github.com/spf13/cobra"
)

// guildFlag falls back to discord.guildId when --guild is not given.
func guildFlag(cmd *cobra.Command, cfg *config.Config) string {
	if g, _ := cmd.Flags().GetString("guild"); g != "" {
		return g
	}
	return cfg.Discord.GuildID
}

func addGuildFlag(cmd *cobra.Command) {
	cmd.Flags().String("guild", "", "guild id (default: discord.guildId)")
}

func statusSink() progress.LogSink {
	return progress.LogSink{Logger: logger}
}

func moveCmd() *cobra.Command {
	var dest string
	var deleteOld bool
	cmd := &cobra.Command{
		Use:   "move [message-link]",
		Short: "Move one message to another channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cfg *config.Config, svc *ops.Service) (ops.Summary, error) {
				return svc.MoveMessage(ctx, ops.MoveMessageRequest{
					GuildID:       guildFlag(cmd, cfg),
					Source:        ops.Source{Link: args[0]},
					DestChannelID: dest,
					RemoveSource:  deleteOld,
					Reporter:      statusSink(),
				})
			})
		},
	}
	cmd.Flags().StringVar(&dest, "to", "", "destination channel id")
	cmd.Flags().BoolVar(&deleteOld, "delete-old", false, "delete the original message once moved")
	addGuildFlag(cmd)
	return cmd
}

func moveBelowCmd() *cobra.Command {
	var dest string
	var deleteOld, noHide bool
	cmd := &cobra.Command{
		Use:   "move-below [message-link]",
		Short: "Move a message and every message posted after it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cfg *config.Config, svc *ops.Service) (ops.Summary, error) {
				return svc.MoveBelow(ctx, ops.MoveBelowRequest{
					GuildID:       guildFlag(cmd, cfg),
					Source:        ops.Source{Link: args[0]},
					DestChannelID: dest,
					RemoveSource:  deleteOld,
					Hide:          hideFlag(noHide),
					Reporter:      statusSink(),
				})
			})
		},
	}
	cmd.Flags().StringVar(&dest, "to", "", "destination channel id")
	cmd.Flags().BoolVar(&deleteOld, "delete-old", false, "delete the original messages once moved")
	cmd.Flags().BoolVar(&noHide, "no-hide", false, "keep the destination visible while copying")
	addGuildFlag(cmd)
	return cmd
}

func moveRangeCmd() *cobra.Command {
	var dest destinationFlags
	var deleteOld, noHide bool
	cmd := &cobra.Command{
		Use:   "move-range [from-link] [to-link]",
		Short: "Move the messages between two messages of one channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cfg *config.Config, svc *ops.Service) (ops.Summary, error) {
				return svc.MoveRange(ctx, ops.MoveRangeRequest{
					GuildID:      guildFlag(cmd, cfg),
					FromLink:     args[0],
					ToLink:       args[1],
					Dest:         dest.destination(),
					RemoveSource: deleteOld,
					Hide:         hideFlag(noHide),
					Reporter:     statusSink(),
				})
			})
		},
	}
	dest.register(cmd)
	cmd.Flags().BoolVar(&deleteOld, "delete-old", false, "delete the original messages once moved")
	cmd.Flags().BoolVar(&noHide, "no-hide", false, "keep an existing destination visible while copying")
	addGuildFlag(cmd)
	return cmd
}

func moveChannelCmd() *cobra.Command {
	var dest destinationFlags
	var deleteSource bool
	cmd := &cobra.Command{
		Use:   "move-channel [source-channel-id]",
		Short: "Move every message of a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, cfg *config.Config, svc *ops.Service) (ops.Summary, error) {
				return svc.MoveChannel(ctx, ops.MoveChannelRequest{
					GuildID:         guildFlag(cmd, cfg),
					SourceChannelID: args[0],
					Dest:            dest.destination(),
					DeleteSource:    deleteSource,
					Reporter:        statusSink(),
				})
			})
		},
	}
	dest.register(cmd)
	cmd.Flags().BoolVar(&deleteSource, "delete-source", false, "delete the source channel once moved")
	addGuildFlag(cmd)
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [from-link] [to-link]",
		Short: "Delete a range of messages; without to-link, up to the end of the channel",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ops.DeleteRangeRequest{FromLink: args[0], Reporter: statusSink()}
			if len(args) == 2 {
				req.ToLink = args[1]
			}
			return withService(cmd, func(ctx context.Context, _ *config.Config, svc *ops.Service) (ops.Summary, error) {
				return svc.DeleteRange(ctx, req)
			})
		},
	}
}

type destinationFlags struct {
	channelID string
	name      string
}

func (d *destinationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.channelID, "to", "", "existing destination channel id")
	cmd.Flags().StringVar(&d.name, "to-name", "", "name of a new destination channel")
	cmd.MarkFlagsMutuallyExclusive("to", "to-name")
}

func (d *destinationFlags) destination() ops.Destination {
	return ops.Destination{ChannelID: d.channelID, Name: d.name}
}

// hideFlag returns nil (hide) unless --no-hide was given.
func hideFlag(noHide bool) *bool {
	if !noHide {
		return nil
	}
	hide := false
	return &hide
}
