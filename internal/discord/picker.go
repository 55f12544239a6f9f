package discord

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Message context menu commands, shown under Apps on a message. Both ask
// for the destination with a channel select and delete the originals.
const (
	CtxMoveMessage      = "move message"
	CtxMoveMessageBelow = "move message and all below"
)

const pickerPrefix = "move_to"

var contextCommands = map[string]string{
	CtxMoveMessage:      CmdMoveMessage,
	CtxMoveMessageBelow: CmdMoveMessageBelow,
}

var frenchNames = map[string]string{
	CtxMoveMessage:      "déplacer le message",
	CtxMoveMessageBelow: "déplacer le message et la suite",
}

// contextMenuCommands returns the message commands. They carry no
// description.
func contextMenuCommands() []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(contextCommands))
	for _, name := range []string{CtxMoveMessage, CtxMoveMessageBelow} {
		fr := map[discordgo.Locale]string{discordgo.French: frenchNames[name]}
		out = append(out, &discordgo.ApplicationCommand{
			Name:              name,
			Type:              discordgo.MessageApplicationCommand,
			NameLocalizations: &fr,
		})
	}
	return out
}

// pickerCommand maps a context menu command to the slash command it runs.
func pickerCommand(name string) (string, bool) {
	cmd, ok := contextCommands[name]
	return cmd, ok
}

func pickerID(command, channelID, messageID string) string {
	return strings.Join([]string{pickerPrefix, command, channelID, messageID}, ":")
}

func pickerMenu(command, channelID, messageID string) []discordgo.MessageComponent {
	one := 1
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:     discordgo.ChannelSelectMenu,
				CustomID:     pickerID(command, channelID, messageID),
				Placeholder:  "Destination channel",
				MinValues:    &one,
				MaxValues:    1,
				ChannelTypes: postableChannels,
			},
		}},
	}
}

var errNotPicker = errors.New("not a channel picker")

// parsePicker turns a channel select answer back into the command it
// stands for.
func parsePicker(customID string, values []string) (string, invocation, error) {
	parts := strings.Split(customID, ":")
	if len(parts) != 4 || parts[0] != pickerPrefix {
		return "", invocation{}, errNotPicker
	}
	command, channelID, messageID := parts[1], parts[2], parts[3]
	if command != CmdMoveMessage && command != CmdMoveMessageBelow {
		return "", invocation{}, fmt.Errorf("picker for unknown command %q", command)
	}
	if channelID == "" || messageID == "" {
		return "", invocation{}, fmt.Errorf("picker %q has no source message", customID)
	}
	if len(values) != 1 || values[0] == "" {
		return "", invocation{}, fmt.Errorf("picker %q answered with %d channels", customID, len(values))
	}
	return command, invocation{
		ChannelID: channelID,
		Options: options{
			optMessageID: {Name: optMessageID, Type: discordgo.ApplicationCommandOptionString, Value: messageID},
			optChannel:   {Name: optChannel, Type: discordgo.ApplicationCommandOptionChannel, Value: values[0]},
			optDeleteOld: {Name: optDeleteOld, Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
		},
	}, nil
}
