package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"chanmover/internal/domain"
	"chanmover/internal/ops"
)

// Operations is the set of operations slash commands are dispatched to.
// *ops.Service implements it.
type Operations interface {
	MoveMessage(ctx context.Context, req ops.MoveMessageRequest) (ops.Summary, error)
	MoveBelow(ctx context.Context, req ops.MoveBelowRequest) (ops.Summary, error)
	MoveRange(ctx context.Context, req ops.MoveRangeRequest) (ops.Summary, error)
	MoveChannel(ctx context.Context, req ops.MoveChannelRequest) (ops.Summary, error)
	DeleteRange(ctx context.Context, req ops.DeleteRangeRequest) (ops.Summary, error)
}

// Bot connects to the gateway, registers the slash commands and runs each
// invocation to completion.
type Bot struct {
	session *discordgo.Session
	ops     Operations
	guildID string
	logger  *slog.Logger

	mu       sync.Mutex
	stopping bool
	inflight sync.WaitGroup
}

// BotConfig configures the bot.
type BotConfig struct {
	Session *discordgo.Session
	Ops     Operations
	GuildID string // empty registers global commands
	Logger  *slog.Logger
}

// NewBot creates a bot. It does not connect until Start.
func NewBot(cfg BotConfig) *Bot {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		session: cfg.Session,
		ops:     cfg.Ops,
		guildID: cfg.GuildID,
		logger:  logger,
	}
}

// Start connects, registers commands and blocks until ctx is cancelled.
// Operations still running at that point are waited for before the session
// is closed; invocations arriving during that wait are turned away.
func (b *Bot) Start(ctx context.Context) error {
	remove := b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.onInteraction(ctx, s, i)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	b.logger.Info("discord bot connected", "user", b.session.State.User.Username)

	if err := b.registerCommands(ctx); err != nil {
		_ = b.session.Close()
		return err
	}

	<-ctx.Done()
	b.logger.Info("discord bot disconnecting, waiting for running operations")
	b.drain()
	remove()
	return b.session.Close()
}

// track registers an operation about to start. It reports false once the
// bot is draining.
func (b *Bot) track() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopping {
		return false
	}
	b.inflight.Add(1)
	return true
}

// drain refuses new operations and waits for the tracked ones.
func (b *Bot) drain() {
	b.mu.Lock()
	b.stopping = true
	b.mu.Unlock()
	b.inflight.Wait()
}

func (b *Bot) registerCommands(ctx context.Context) error {
	cmds := Commands()
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.guildID, cmds, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("register slash commands: %w", err)
	}
	b.logger.Info("slash commands registered", "count", len(cmds), "guild", b.guildID)
	return nil
}

const shuttingDown = "The bot is restarting; try again in a moment."

func (b *Bot) onInteraction(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if b.guildID != "" && i.GuildID != b.guildID {
		return
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		logger := b.logger.With("command", data.Name, "guild", i.GuildID, "channel", i.ChannelID, "user", invoker(i))
		if data.CommandType == discordgo.MessageApplicationCommand {
			b.offerPicker(ctx, s, i, data, logger)
			return
		}
		inv := invocation{
			GuildID:   i.GuildID,
			ChannelID: i.ChannelID,
			Options:   collectOptions(data.Options),
		}
		b.start(ctx, s, i, data.Name, inv, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
		}, logger)

	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		logger := b.logger.With("component", data.CustomID, "guild", i.GuildID, "channel", i.ChannelID, "user", invoker(i))
		name, inv, err := parsePicker(data.CustomID, data.Values)
		if err != nil {
			logger.Warn("ignoring component interaction", "err", err)
			return
		}
		inv.GuildID = i.GuildID
		logger = logger.With("command", name)
		b.start(ctx, s, i, name, inv, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Content:    "Moving...",
				Components: []discordgo.MessageComponent{},
			},
		}, logger)
	}
}

// offerPicker answers a message context menu command with a channel select
// whose choice later runs the matching move.
func (b *Bot) offerPicker(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData, logger *slog.Logger) {
	command, ok := pickerCommand(data.Name)
	if !ok {
		logger.Warn("unknown message command")
		return
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:      discordgo.MessageFlagsEphemeral,
			Content:    "Pick the destination channel.",
			Components: pickerMenu(command, i.ChannelID, data.TargetID),
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		logger.Error("offer channel picker failed", "err", err)
	}
}

// start acknowledges the interaction with ack and runs the command in the
// background, reporting progress through the interaction response.
func (b *Bot) start(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, name string, inv invocation, ack *discordgo.InteractionResponse, logger *slog.Logger) {
	if !b.track() {
		logger.Warn("command refused during shutdown")
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral, Content: shuttingDown},
		}, discordgo.WithContext(context.WithoutCancel(ctx)))
		if err != nil {
			logger.Warn("refuse interaction failed", "err", err)
		}
		return
	}

	if err := s.InteractionRespond(i.Interaction, ack, discordgo.WithContext(ctx)); err != nil {
		b.inflight.Done()
		logger.Error("acknowledge interaction failed", "err", err)
		return
	}

	sink := NewInteractionSink(s, i.Interaction)
	// Operations outlive shutdown so a visibility change is always restored.
	opCtx := context.WithoutCancel(ctx)

	go func() {
		defer b.inflight.Done()
		b.run(opCtx, name, inv, sink, logger)
	}()
}

func (b *Bot) run(ctx context.Context, name string, inv invocation, sink domain.Reporter, logger *slog.Logger) {
	logger.Info("command received")
	sum, err := b.dispatch(ctx, name, inv, sink)
	if err != nil {
		if domain.IsUserFacing(err) {
			logger.Warn("command rejected", "err", err)
		} else {
			logger.Error("command failed", "err", err)
		}
		if serr := sink.Status(ctx, domain.UserMessage(err)); serr != nil {
			logger.Warn("report error failed", "err", serr)
		}
		return
	}
	if sum.Partial {
		if serr := sink.Status(ctx, domain.UserMessage(domain.Errorf(domain.KindBoundaryNotFound, ""))); serr != nil {
			logger.Warn("report partial result failed", "err", serr)
		}
	}
	logger.Info("command done",
		"run_id", sum.RunID,
		"found", sum.Found,
		"copied", sum.Copied,
		"skipped", sum.Skipped,
		"deleted", sum.Deleted,
	)
}

// invocation is a slash command stripped of its transport details.
type invocation struct {
	GuildID   string
	ChannelID string
	Options   options
}

// dispatch maps a command to its operation. Commands taking a bare message
// id resolve it in the invoking channel.
func (b *Bot) dispatch(ctx context.Context, name string, inv invocation, rep domain.Reporter) (ops.Summary, error) {
	o := inv.Options
	switch name {
	case CmdMoveMessage, CmdMoveMessageLink:
		return b.ops.MoveMessage(ctx, ops.MoveMessageRequest{
			GuildID:       inv.GuildID,
			Source:        inv.source(),
			DestChannelID: o.string(optChannel),
			RemoveSource:  o.bool(optDeleteOld),
			Reporter:      rep,
		})
	case CmdMoveMessageBelow, CmdMoveMessageLinkBelow:
		return b.ops.MoveBelow(ctx, ops.MoveBelowRequest{
			GuildID:       inv.GuildID,
			Source:        inv.source(),
			DestChannelID: o.string(optChannel),
			RemoveSource:  o.bool(optDeleteOld),
			Reporter:      rep,
		})
	case CmdMoveChannel:
		src := o.string(optChannelFrom)
		if src == "" {
			src = inv.ChannelID
		}
		return b.ops.MoveChannel(ctx, ops.MoveChannelRequest{
			GuildID:         inv.GuildID,
			SourceChannelID: src,
			Dest:            inv.destination(),
			DeleteSource:    o.bool(optDeleteOld),
			Reporter:        rep,
		})
	case CmdMoveChannelUntil:
		return b.ops.MoveRange(ctx, ops.MoveRangeRequest{
			GuildID:      inv.GuildID,
			FromLink:     o.string(optMessageFrom),
			ToLink:       o.string(optMessageTo),
			Dest:         inv.destination(),
			RemoveSource: o.bool(optDeleteOld),
			Reporter:     rep,
		})
	case CmdDeleteMessages:
		return b.ops.DeleteRange(ctx, ops.DeleteRangeRequest{
			FromLink: o.string(optMessageFrom),
			ToLink:   o.string(optMessageTo),
			Reporter: rep,
		})
	}
	return ops.Summary{}, domain.Errorf(domain.KindMissingParameter, "unknown command %q", name)
}

func (inv invocation) source() ops.Source {
	if link := inv.Options.string(optMessageLink); link != "" {
		return ops.Source{Link: link}
	}
	return ops.Source{ChannelID: inv.ChannelID, MessageID: inv.Options.string(optMessageID)}
}

func (inv invocation) destination() ops.Destination {
	return ops.Destination{
		ChannelID: inv.Options.string(optChannelTo),
		Name:      inv.Options.string(optChannelName),
	}
}

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func collectOptions(in []*discordgo.ApplicationCommandInteractionDataOption) options {
	out := make(options, len(in))
	for _, opt := range in {
		out[opt.Name] = opt
	}
	return out
}

// string returns a string or channel option. Channel options carry the
// channel id as their value.
func (o options) string(name string) string {
	opt, ok := o[name]
	if !ok {
		return ""
	}
	v, _ := opt.Value.(string)
	return strings.TrimSpace(v)
}

func (o options) bool(name string) bool {
	opt, ok := o[name]
	if !ok {
		return false
	}
	v, _ := opt.Value.(bool)
	return v
}

func invoker(i *discordgo.InteractionCreate) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	}
	return ""
}
