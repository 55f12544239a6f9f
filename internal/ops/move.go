package ops

import (
	"context"
	"strconv"

	"chanmover/internal/domain"
	"chanmover/internal/journal"
	"chanmover/internal/relocate"
)

// Source names a message, either by link or by channel and message id.
type Source struct {
	Link      string
	ChannelID string
	MessageID string
}

func (s Source) ref(param string) (domain.MessageRef, error) {
	if s.Link != "" {
		return domain.ParseMessageLink(s.Link)
	}
	if s.MessageID == "" {
		return domain.MessageRef{}, domain.Errorf(domain.KindMissingParameter, "%s", param)
	}
	if _, err := strconv.ParseUint(s.MessageID, 10, 64); err != nil {
		return domain.MessageRef{}, domain.Errorf(domain.KindUnresolvedLinkBoundary, "invalid message id %q", s.MessageID)
	}
	if s.ChannelID == "" {
		return domain.MessageRef{}, domain.Errorf(domain.KindMissingParameter, "channel of %s", param)
	}
	return domain.MessageRef{ChannelID: s.ChannelID, MessageID: s.MessageID}, nil
}

// Destination is either an existing channel or the name of a channel to
// create. Exactly one must be set.
type Destination struct {
	ChannelID string
	Name      string
}

func (d Destination) validate() error {
	if (d.ChannelID == "") == (d.Name == "") {
		return domain.Errorf(domain.KindAmbiguousDestination, "channel_to and channel_to_name")
	}
	return nil
}

// open fetches or creates the destination. Created channels are always
// hidden while they fill up.
func (s *Service) open(ctx context.Context, guildID string, d Destination) (domain.Channel, bool, error) {
	if d.Name != "" {
		ch, err := s.transport.CreateChannel(ctx, guildID, d.Name)
		if err != nil {
			return domain.Channel{}, false, domain.TransportError("create channel", err)
		}
		return ch, true, nil
	}
	ch, err := s.transport.FetchChannel(ctx, d.ChannelID)
	if err != nil {
		return domain.Channel{}, false, domain.TransportError("fetch channel", err)
	}
	return ch, false, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// MoveMessageRequest moves one message.
type MoveMessageRequest struct {
	GuildID       string
	Source        Source
	DestChannelID string
	RemoveSource  bool
	Reporter      domain.Reporter
}

// MoveMessage re-posts a single message in another channel.
func (s *Service) MoveMessage(ctx context.Context, req MoveMessageRequest) (Summary, error) {
	ref, err := req.Source.ref("message")
	if err != nil {
		return Summary{}, err
	}
	if req.DestChannelID == "" {
		return Summary{}, domain.Errorf(domain.KindMissingParameter, "channel")
	}
	guildID := firstNonEmpty(ref.GuildID, req.GuildID)

	r := s.begin(ctx, OpMoveMessage, journal.Run{
		GuildID:       guildID,
		SourceChannel: ref.ChannelID,
		DestChannel:   req.DestChannelID,
	}, req.Reporter)
	var sum Summary
	err = func() error {
		r.status(ctx, StatusMoving)
		msg, err := s.transport.FetchMessage(ctx, ref.ChannelID, ref.MessageID)
		if err != nil {
			return domain.TransportError("fetch message", err)
		}
		if msg.GuildID == "" {
			msg.GuildID = guildID
		}
		dest, err := s.transport.FetchChannel(ctx, req.DestChannelID)
		if err != nil {
			return domain.TransportError("fetch channel", err)
		}
		sum.Found, sum.Dest = 1, dest
		r.found(ctx, 1)

		stats, err := s.relocator.RelocateOne(ctx, msg, dest, req.RemoveSource, r.recorder())
		sum.Copied, sum.Skipped, sum.Deleted = stats.Copied, stats.Skipped, stats.Removed
		if err != nil {
			return err
		}
		r.status(ctx, StatusDone)
		return nil
	}()
	r.finish(ctx, &sum, err)
	return sum, err
}

// MoveBelowRequest moves a message and every message after it.
type MoveBelowRequest struct {
	GuildID       string
	Source        Source
	DestChannelID string
	RemoveSource  bool
	Hide          *bool
	Reporter      domain.Reporter
}

// MoveBelow moves a message and everything posted after it in its channel.
func (s *Service) MoveBelow(ctx context.Context, req MoveBelowRequest) (Summary, error) {
	ref, err := req.Source.ref("message")
	if err != nil {
		return Summary{}, err
	}
	if req.DestChannelID == "" {
		return Summary{}, domain.Errorf(domain.KindMissingParameter, "channel")
	}
	guildID := firstNonEmpty(ref.GuildID, req.GuildID)

	r := s.begin(ctx, OpMoveBelow, journal.Run{
		GuildID:       guildID,
		SourceChannel: ref.ChannelID,
		DestChannel:   req.DestChannelID,
	}, req.Reporter)
	var sum Summary
	err = func() error {
		r.status(ctx, StatusMoving)
		res, err := s.resolver.ResolveFrom(ctx, ref.ChannelID, ref.MessageID)
		if err != nil {
			return err
		}
		sum.Found = len(res.Messages)
		r.found(ctx, sum.Found)

		dest, err := s.transport.FetchChannel(ctx, req.DestChannelID)
		if err != nil {
			return domain.TransportError("fetch channel", err)
		}
		sum.Dest = dest
		return s.relocateAndPurge(ctx, r, res.Messages, dest, guildID, req.Hide, req.RemoveSource, &sum)
	}()
	r.finish(ctx, &sum, err)
	return sum, err
}

// MoveRangeRequest moves every message between two links, inclusive.
type MoveRangeRequest struct {
	GuildID      string
	FromLink     string
	ToLink       string
	Dest         Destination
	RemoveSource bool
	Hide         *bool
	Reporter     domain.Reporter
}

// MoveRange moves the messages between two boundaries of one channel, in
// either order, into an existing or a newly created channel.
func (s *Service) MoveRange(ctx context.Context, req MoveRangeRequest) (Summary, error) {
	from, to, err := boundaries(req.FromLink, req.ToLink, true)
	if err != nil {
		return Summary{}, err
	}
	if err := req.Dest.validate(); err != nil {
		return Summary{}, err
	}
	guildID := firstNonEmpty(from.GuildID, req.GuildID)

	r := s.begin(ctx, OpMoveRange, journal.Run{
		GuildID:       guildID,
		SourceChannel: from.ChannelID,
		DestChannel:   firstNonEmpty(req.Dest.ChannelID, req.Dest.Name),
	}, req.Reporter)
	var sum Summary
	err = func() error {
		dest, created, err := s.open(ctx, guildID, req.Dest)
		if err != nil {
			return err
		}
		sum.Dest = dest
		hide := req.Hide
		if created {
			hide = ptr(true)
		}

		r.status(ctx, StatusMoving)
		res, err := s.resolver.Resolve(ctx, from.ChannelID, domain.Range{From: from.MessageID, To: to.MessageID})
		if err != nil {
			return err
		}
		sum.Found, sum.Partial = len(res.Messages), res.Partial
		r.found(ctx, sum.Found)

		return s.relocateAndPurge(ctx, r, res.Messages, dest, guildID, hide, req.RemoveSource, &sum)
	}()
	r.finish(ctx, &sum, err)
	return sum, err
}

// MoveChannelRequest moves a whole channel.
type MoveChannelRequest struct {
	GuildID         string
	SourceChannelID string
	Dest            Destination
	DeleteSource    bool
	Reporter        domain.Reporter
}

// MoveChannel moves every message of a channel, optionally deleting the
// source channel once done.
func (s *Service) MoveChannel(ctx context.Context, req MoveChannelRequest) (Summary, error) {
	if req.SourceChannelID == "" {
		return Summary{}, domain.Errorf(domain.KindMissingParameter, "channel_from")
	}
	if err := req.Dest.validate(); err != nil {
		return Summary{}, err
	}
	if req.Dest.ChannelID == req.SourceChannelID {
		return Summary{}, domain.Errorf(domain.KindAmbiguousDestination, "source and destination are the same channel")
	}

	r := s.begin(ctx, OpMoveChannel, journal.Run{
		GuildID:       req.GuildID,
		SourceChannel: req.SourceChannelID,
		DestChannel:   firstNonEmpty(req.Dest.ChannelID, req.Dest.Name),
	}, req.Reporter)
	var sum Summary
	err := func() error {
		source, err := s.transport.FetchChannel(ctx, req.SourceChannelID)
		if err != nil {
			return domain.TransportError("fetch channel", err)
		}
		guildID := firstNonEmpty(source.GuildID, req.GuildID)

		dest, created, err := s.open(ctx, guildID, req.Dest)
		if err != nil {
			return err
		}
		sum.Dest = dest
		var hide *bool
		if created {
			hide = ptr(true)
		}

		r.status(ctx, StatusMoving)
		msgs, err := s.resolver.ResolveAll(ctx, source.ID)
		if err != nil {
			return err
		}
		sum.Found = len(msgs)
		r.found(ctx, sum.Found)

		if err := s.relocateAndPurge(ctx, r, msgs, dest, guildID, hide, false, &sum); err != nil {
			return err
		}
		if req.DeleteSource {
			if err := s.transport.DeleteChannel(ctx, source.ID); err != nil {
				return domain.TransportError("delete channel", err)
			}
			r.logger.Info("source channel deleted", "channel_id", source.ID)
		}
		return nil
	}()
	r.finish(ctx, &sum, err)
	return sum, err
}

// relocateAndPurge copies msgs into dest, then deletes the copied originals
// in bulk when removeSource is set, and reports completion.
func (s *Service) relocateAndPurge(ctx context.Context, r *run, msgs []domain.Message, dest domain.Channel, guildID string, hide *bool, removeSource bool, sum *Summary) error {
	stats, err := s.relocator.Relocate(ctx, msgs, dest, guildID, relocate.Options{
		Hide:     hide,
		Reporter: r.reporter,
		Recorder: r.recorder(),
	})
	sum.Copied, sum.Skipped = stats.Copied, stats.Skipped
	if err != nil {
		return err
	}
	if removeSource {
		pstats, err := s.purger.DeleteAll(ctx, copiedOnly(msgs, stats.SkippedIDs), guildID)
		sum.Deleted = pstats.Deleted
		if err != nil {
			return err
		}
	}
	r.status(ctx, StatusDone)
	return nil
}

// boundaries parses a pair of message links. The end link may be omitted
// unless requireTo is set; when both are given they must name the same
// channel.
func boundaries(fromLink, toLink string, requireTo bool) (domain.MessageRef, domain.MessageRef, error) {
	var from, to domain.MessageRef
	if fromLink == "" {
		return from, to, domain.Errorf(domain.KindUnresolvedLinkBoundary, "message_from is required")
	}
	if toLink == "" && requireTo {
		return from, to, domain.Errorf(domain.KindUnresolvedLinkBoundary, "message_to is required")
	}
	from, err := domain.ParseMessageLink(fromLink)
	if err != nil {
		return from, to, err
	}
	if toLink == "" {
		return from, to, nil
	}
	to, err = domain.ParseMessageLink(toLink)
	if err != nil {
		return from, to, err
	}
	if from.ChannelID != to.ChannelID {
		return from, to, domain.Errorf(domain.KindBoundaryNotInSameChannel, "%s and %s", from.ChannelID, to.ChannelID)
	}
	return from, to, nil
}

func ptr[T any](v T) *T { return &v }
