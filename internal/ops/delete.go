package ops

import (
	"context"

	"chanmover/internal/domain"
	"chanmover/internal/history"
	"chanmover/internal/journal"
)

// DeleteRangeRequest deletes the messages between two links. Without an end
// link everything from the first message to the channel end is deleted.
type DeleteRangeRequest struct {
	FromLink string
	ToLink   string
	Reporter domain.Reporter
}

// DeleteRange deletes a range of messages, oldest first.
func (s *Service) DeleteRange(ctx context.Context, req DeleteRangeRequest) (Summary, error) {
	from, to, err := boundaries(req.FromLink, req.ToLink, false)
	if err != nil {
		return Summary{}, err
	}

	r := s.begin(ctx, OpDeleteRange, journal.Run{
		GuildID:       from.GuildID,
		SourceChannel: from.ChannelID,
	}, req.Reporter)
	var sum Summary
	err = func() error {
		r.status(ctx, StatusDeleting)
		var (
			res history.Result
			err error
		)
		if to.MessageID == "" {
			res, err = s.resolver.ResolveFrom(ctx, from.ChannelID, from.MessageID)
		} else {
			res, err = s.resolver.Resolve(ctx, from.ChannelID, domain.Range{From: from.MessageID, To: to.MessageID})
		}
		if err != nil {
			return err
		}
		sum.Found, sum.Partial = len(res.Messages), res.Partial
		r.found(ctx, sum.Found)

		stats, err := s.purger.DeleteAll(ctx, res.Messages, from.GuildID)
		sum.Deleted = stats.Deleted
		if err != nil {
			return err
		}
		r.status(ctx, StatusDone)
		return nil
	}()
	r.finish(ctx, &sum, err)
	return sum, err
}
