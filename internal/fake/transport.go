// Package fake provides an in-memory domain.Transport that behaves like the
// platform closely enough to exercise the engines in tests.
package fake

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"chanmover/internal/domain"
)

// ErrNotFound mirrors the platform's unknown-resource response.
var ErrNotFound = errors.New("404 Not Found")

// BulkAgeLimit is the platform's cutoff for bulk deletion.
const BulkAgeLimit = 14 * 24 * time.Hour

// Dispatch is a recorded webhook execution.
type Dispatch struct {
	Webhook domain.Webhook
	Payload domain.WebhookPayload
}

type channelState struct {
	info       domain.Channel
	messages   []domain.Message // ascending
	webhooks   []domain.Webhook
	overwrites map[string]domain.Overwrite
}

// Transport is a test double for domain.Transport.
type Transport struct {
	// Now is used for bulk-delete age checks; defaults to time.Now.
	Now func() time.Time
	// ExecuteFunc, when set, runs before a dispatch is recorded. Returning an
	// error fails the dispatch.
	ExecuteFunc func(ctx context.Context, hook domain.Webhook, p domain.WebhookPayload) error

	mu         sync.Mutex
	channels   map[string]*channelState
	roles      map[string][]domain.Role
	calls      map[string]int
	failures   map[string]failure
	dispatches []Dispatch
	overwrites []domain.Overwrite
	nextID     uint64
}

type failure struct {
	nth int
	err error
}

// New returns an empty transport. Generated ids start above any id a test is
// likely to seed.
func New() *Transport {
	return &Transport{
		channels: make(map[string]*channelState),
		roles:    make(map[string][]domain.Role),
		calls:    make(map[string]int),
		failures: make(map[string]failure),
		nextID:   900000,
	}
}

// AddChannel registers a channel.
func (t *Transport) AddChannel(ch domain.Channel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channels[ch.ID] = &channelState{info: ch, overwrites: make(map[string]domain.Overwrite)}
}

// AddMessages appends messages to a channel, keeping id order.
func (t *Transport) AddMessages(channelID string, msgs ...domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.channel(channelID)
	for _, m := range msgs {
		m.ChannelID = channelID
		if m.GuildID == "" {
			m.GuildID = st.info.GuildID
		}
		st.messages = append(st.messages, m)
	}
	slices.SortFunc(st.messages, func(a, b domain.Message) int { return domain.CompareIDs(a.ID, b.ID) })
}

// AddWebhook registers an existing webhook on a channel.
func (t *Transport) AddWebhook(channelID string, hook domain.Webhook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	hook.ChannelID = channelID
	t.channel(channelID).webhooks = append(t.channel(channelID).webhooks, hook)
}

// AddRole registers a guild role.
func (t *Transport) AddRole(guildID string, role domain.Role) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roles[guildID] = append(t.roles[guildID], role)
}

// FailOn makes the nth call (1-based) to method fail with err. nth <= 0
// fails every call.
func (t *Transport) FailOn(method string, nth int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[method] = failure{nth: nth, err: err}
}

// Calls returns how many times method was called.
func (t *Transport) Calls(method string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[method]
}

// Dispatches returns every recorded webhook execution.
func (t *Transport) Dispatches() []Dispatch {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.dispatches)
}

// Messages returns the ids in a channel, oldest first.
func (t *Transport) Messages(channelID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for _, m := range t.channel(channelID).messages {
		ids = append(ids, m.ID)
	}
	return ids
}

// Webhooks returns the webhooks of a channel.
func (t *Transport) Webhooks(channelID string) []domain.Webhook {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.channel(channelID).webhooks)
}

// Overwrite returns the current overwrite for a role on a channel.
func (t *Transport) Overwrite(channelID, roleID string) (domain.Overwrite, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ow, ok := t.channel(channelID).overwrites[roleID]
	return ow, ok
}

// OverwriteHistory returns every overwrite applied, in order.
func (t *Transport) OverwriteHistory() []domain.Overwrite {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.overwrites)
}

// HasChannel reports whether a channel exists.
func (t *Transport) HasChannel(channelID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.channels[channelID]
	return ok
}

func (t *Transport) channel(id string) *channelState {
	st, ok := t.channels[id]
	if !ok {
		st = &channelState{info: domain.Channel{ID: id}, overwrites: make(map[string]domain.Overwrite)}
		t.channels[id] = st
	}
	return st
}

func (t *Transport) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Transport) newID() string {
	t.nextID++
	return strconv.FormatUint(t.nextID, 10)
}

// enter records a call and returns its injected failure, if any.
func (t *Transport) enter(method string) error {
	t.calls[method]++
	f, ok := t.failures[method]
	if !ok {
		return nil
	}
	if f.nth <= 0 || f.nth == t.calls[method] {
		return f.err
	}
	return nil
}

func (t *Transport) FetchMessage(_ context.Context, channelID, messageID string) (domain.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("FetchMessage"); err != nil {
		return domain.Message{}, err
	}
	for _, m := range t.channel(channelID).messages {
		if m.ID == messageID {
			return m, nil
		}
	}
	return domain.Message{}, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
}

// FetchMessages returns pages newest first, like the platform.
func (t *Transport) FetchMessages(_ context.Context, channelID string, q domain.PageQuery) ([]domain.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("FetchMessages"); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > domain.MaxPageSize {
		limit = domain.MaxPageSize
	}
	all := t.channel(channelID).messages

	var page []domain.Message
	switch {
	case q.After != "":
		for _, m := range all {
			if domain.CompareIDs(m.ID, q.After) > 0 {
				page = append(page, m)
				if len(page) == limit {
					break
				}
			}
		}
	default:
		var older []domain.Message
		for _, m := range all {
			if q.Before == "" || domain.CompareIDs(m.ID, q.Before) < 0 {
				older = append(older, m)
			}
		}
		if len(older) > limit {
			older = older[len(older)-limit:]
		}
		page = older
	}
	page = slices.Clone(page)
	slices.Reverse(page)
	return page, nil
}

func (t *Transport) DeleteMessage(_ context.Context, channelID, messageID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("DeleteMessage"); err != nil {
		return err
	}
	return t.remove(channelID, messageID)
}

func (t *Transport) remove(channelID, messageID string) error {
	st := t.channel(channelID)
	idx := slices.IndexFunc(st.messages, func(m domain.Message) bool { return m.ID == messageID })
	if idx < 0 {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	st.messages = slices.Delete(st.messages, idx, idx+1)
	return nil
}

// BulkDeleteMessages rejects what the platform rejects: fewer than two or
// more than one hundred ids, or any message older than fourteen days.
func (t *Transport) BulkDeleteMessages(_ context.Context, channelID string, messageIDs []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("BulkDeleteMessages"); err != nil {
		return err
	}
	if len(messageIDs) < 2 || len(messageIDs) > 100 {
		return fmt.Errorf("400 Bad Request: bulk delete needs 2 to 100 messages, got %d", len(messageIDs))
	}
	st := t.channel(channelID)
	for _, id := range messageIDs {
		for _, m := range st.messages {
			if m.ID == id && t.now().Sub(m.Timestamp) > BulkAgeLimit {
				return fmt.Errorf("400 Bad Request: message %s is older than 2 weeks", id)
			}
		}
	}
	for _, id := range messageIDs {
		if err := t.remove(channelID, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) FetchChannel(_ context.Context, channelID string) (domain.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("FetchChannel"); err != nil {
		return domain.Channel{}, err
	}
	st, ok := t.channels[channelID]
	if !ok {
		return domain.Channel{}, fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	return st.info, nil
}

func (t *Transport) CreateChannel(_ context.Context, guildID, name string) (domain.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("CreateChannel"); err != nil {
		return domain.Channel{}, err
	}
	ch := domain.Channel{ID: t.newID(), Name: name, GuildID: guildID}
	t.channels[ch.ID] = &channelState{info: ch, overwrites: make(map[string]domain.Overwrite)}
	return ch, nil
}

func (t *Transport) DeleteChannel(_ context.Context, channelID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("DeleteChannel"); err != nil {
		return err
	}
	if _, ok := t.channels[channelID]; !ok {
		return fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	delete(t.channels, channelID)
	return nil
}

func (t *Transport) ListChannelWebhooks(_ context.Context, channelID string) ([]domain.Webhook, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("ListChannelWebhooks"); err != nil {
		return nil, err
	}
	return slices.Clone(t.channel(channelID).webhooks), nil
}

func (t *Transport) CreateWebhook(_ context.Context, channelID, name string) (domain.Webhook, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("CreateWebhook"); err != nil {
		return domain.Webhook{}, err
	}
	id := t.newID()
	hook := domain.Webhook{ID: id, ChannelID: channelID, Name: name, Token: "token-" + id}
	st := t.channel(channelID)
	st.webhooks = append(st.webhooks, hook)
	return hook, nil
}

// ExecuteWebhook records the dispatch and posts a message in the webhook's
// channel, or in the thread named by the payload.
func (t *Transport) ExecuteWebhook(ctx context.Context, hook domain.Webhook, p domain.WebhookPayload) (domain.Message, error) {
	t.mu.Lock()
	if err := t.enter("ExecuteWebhook"); err != nil {
		t.mu.Unlock()
		return domain.Message{}, err
	}
	exec := t.ExecuteFunc
	t.mu.Unlock()

	if exec != nil {
		if err := exec(ctx, hook, p); err != nil {
			return domain.Message{}, err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if hook.Token == "" {
		return domain.Message{}, errors.New("401 Unauthorized: webhook has no token")
	}
	target := hook.ChannelID
	if p.ThreadID != "" {
		target = p.ThreadID
	}
	msg := domain.Message{
		ID:        t.newID(),
		ChannelID: target,
		GuildID:   t.channel(target).info.GuildID,
		Author:    domain.Author{Username: p.Username},
		Content:   p.Content,
		Embeds:    p.Embeds,
		Timestamp: t.now(),
	}
	for _, f := range p.Files {
		msg.Attachments = append(msg.Attachments, domain.Attachment{Filename: f.Name, Size: len(f.Data)})
	}
	st := t.channel(target)
	st.messages = append(st.messages, msg)
	t.dispatches = append(t.dispatches, Dispatch{Webhook: hook, Payload: p})
	return msg, nil
}

func (t *Transport) UpdateChannelPermission(_ context.Context, channelID string, ow domain.Overwrite) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("UpdateChannelPermission"); err != nil {
		return err
	}
	t.channel(channelID).overwrites[ow.RoleID] = ow
	t.overwrites = append(t.overwrites, ow)
	return nil
}

func (t *Transport) ListGuildRoles(_ context.Context, guildID string) ([]domain.Role, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("ListGuildRoles"); err != nil {
		return nil, err
	}
	return slices.Clone(t.roles[guildID]), nil
}

var _ domain.Transport = (*Transport)(nil)

// Seq builds messages with consecutive numeric ids from..to inclusive, all
// created at ts.
func Seq(from, to int, ts time.Time) []domain.Message {
	var out []domain.Message
	for i := from; i <= to; i++ {
		out = append(out, domain.Message{
			ID:        strconv.Itoa(i),
			Author:    domain.Author{ID: "42", Username: "author"},
			Content:   "message " + strconv.Itoa(i),
			Timestamp: ts,
		})
	}
	return out
}

// IDs returns the ids of msgs in order.
func IDs(msgs []domain.Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}
