package discord

import (
	"github.com/bwmarrin/discordgo"
)

// Slash command names.
const (
	CmdMoveMessage          = "move_message"
	CmdMoveMessageLink      = "move_message_link"
	CmdMoveMessageBelow     = "move_message_and_below"
	CmdMoveMessageLinkBelow = "move_message_link_and_below"
	CmdMoveChannel          = "move_channel_to"
	CmdMoveChannelUntil     = "move_channel_to_until"
	CmdDeleteMessages       = "delete_messages"
)

// Option names shared by several commands.
const (
	optMessageID   = "message_id"
	optMessageLink = "message_link"
	optChannel     = "channel"
	optDeleteOld   = "delete_old"
	optChannelFrom = "channel_from"
	optChannelTo   = "channel_to"
	optChannelName = "channel_to_name"
	optMessageFrom = "message_from"
	optMessageTo   = "message_to"
)

var postableChannels = []discordgo.ChannelType{
	discordgo.ChannelTypeGuildText,
	discordgo.ChannelTypeGuildNews,
	discordgo.ChannelTypeGuildPublicThread,
	discordgo.ChannelTypeGuildPrivateThread,
	discordgo.ChannelTypeGuildNewsThread,
}

// Commands returns the slash and message commands the bot registers. Every
// command is guild-only and limited to members who can manage messages.
func Commands() []*discordgo.ApplicationCommand {
	cmds := []*discordgo.ApplicationCommand{
		{
			Name:        CmdMoveMessage,
			Description: "Move a message to the corresponding channel",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt(optMessageID, "Id of the message in this channel", true),
				channelOpt(optChannel, "Destination channel", true),
				deleteOldOpt("Delete the original message once moved"),
			},
		},
		{
			Name:        CmdMoveMessageLink,
			Description: "Move a message to the corresponding channel",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt(optMessageLink, "Link to the message", true),
				channelOpt(optChannel, "Destination channel", true),
				deleteOldOpt("Delete the original message once moved"),
			},
		},
		{
			Name:        CmdMoveMessageBelow,
			Description: "Move all the messages below the chosen one to the corresponding channel",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt(optMessageID, "Id of the first message in this channel", true),
				channelOpt(optChannel, "Destination channel", true),
				deleteOldOpt("Delete the original messages once moved"),
			},
		},
		{
			Name:        CmdMoveMessageLinkBelow,
			Description: "Move all the messages below the chosen one to the corresponding channel",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt(optMessageLink, "Link to the first message", true),
				channelOpt(optChannel, "Destination channel", true),
				deleteOldOpt("Delete the original messages once moved"),
			},
		},
		{
			Name:        CmdMoveChannel,
			Description: "Move messages between channels (uses current channel if none specified)",
			Options: []*discordgo.ApplicationCommandOption{
				channelOpt(optChannelFrom, "Source channel, defaults to this one", false),
				channelOpt(optChannelTo, "Existing destination channel", false),
				stringOpt(optChannelName, "Name of a new destination channel", false),
				deleteOldOpt("Delete the source channel once moved"),
			},
		},
		{
			Name:        CmdMoveChannelUntil,
			Description: "Move part of a channel's messages to another channel",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt(optMessageFrom, "Link to the first message", true),
				stringOpt(optMessageTo, "Link to the last message", true),
				channelOpt(optChannelTo, "Existing destination channel", false),
				stringOpt(optChannelName, "Name of a new destination channel", false),
				deleteOldOpt("Delete the original messages once moved"),
			},
		},
		{
			Name:        CmdDeleteMessages,
			Description: "Delete messages",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt(optMessageFrom, "Link to the first message", true),
				stringOpt(optMessageTo, "Link to the last message, defaults to the end of the channel", false),
			},
		},
	}

	perms := int64(discordgo.PermissionManageMessages)
	dm := false
	contexts := []discordgo.InteractionContextType{discordgo.InteractionContextGuild}
	for _, c := range cmds {
		c.DefaultMemberPermissions = &perms
		c.DMPermission = &dm
		c.Contexts = &contexts
		fr := map[discordgo.Locale]string{discordgo.French: frenchDescriptions[c.Name]}
		c.DescriptionLocalizations = &fr
	}
	for _, c := range contextMenuCommands() {
		c.DefaultMemberPermissions = &perms
		c.DMPermission = &dm
		c.Contexts = &contexts
		cmds = append(cmds, c)
	}
	return cmds
}

var frenchDescriptions = map[string]string{
	CmdMoveMessage:          "Déplace un message jusqu'au channel correspondant",
	CmdMoveMessageLink:      "Déplace un message jusqu'au channel correspondant",
	CmdMoveMessageBelow:     "Déplace tout les messages à partir du message jusqu'au channel correspondant",
	CmdMoveMessageLinkBelow: "Déplace tout les messages à partir du message jusqu'au channel correspondant",
	CmdMoveChannel:          "Déplace un channel jusqu'au channel correspondant",
	CmdMoveChannelUntil:     "Déplace une partie des msgs d'un channel jusqu'à un autre",
	CmdDeleteMessages:       "Supprime une partie des msgs",
}

func stringOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

func channelOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         name,
		Description:  desc,
		Required:     required,
		ChannelTypes: postableChannels,
	}
}

func deleteOldOpt(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionBoolean,
		Name:        optDeleteOld,
		Description: desc,
	}
}
