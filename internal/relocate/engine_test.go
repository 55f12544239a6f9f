package relocate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chanmover/internal/domain"
	"chanmover/internal/fake"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

var dest = domain.Channel{ID: "D", Name: "destination", GuildID: "G"}

func newTransport() *fake.Transport {
	tr := fake.New()
	tr.AddChannel(domain.Channel{ID: "S", Name: "source", GuildID: "G"})
	tr.AddChannel(dest)
	return tr
}

func newEngine(tr domain.Transport) *Engine {
	return New(Config{
		Transport: tr,
		Fetcher:   NewFetcher(FetcherConfig{MaxRetries: 2, InitialDelay: time.Millisecond, Logger: testLogger()}),
		Logger:    testLogger(),
	})
}

func noHide() *bool { b := false; return &b }

func sourceMessages(tr *fake.Transport, from, to int) []domain.Message {
	msgs := fake.Seq(from, to, time.Now())
	tr.AddMessages("S", msgs...)
	for i := range msgs {
		msgs[i].ChannelID = "S"
		msgs[i].GuildID = "G"
	}
	return msgs
}

func TestRelocate_PlainMessageSingleDispatch(t *testing.T) {
	tr := newTransport()
	msgs := sourceMessages(tr, 1, 1)

	stats, err := newEngine(tr).Relocate(context.Background(), msgs, dest, "G", Options{Hide: noHide()})
	require.NoError(t, err)
	assert.Equal(t, Stats{Copied: 1}, stats)

	ds := tr.Dispatches()
	require.Len(t, ds, 1)
	assert.Empty(t, ds[0].Payload.Files)
	assert.Empty(t, ds[0].Payload.Embeds)
	assert.Equal(t, "message 1", ds[0].Payload.Content)
	assert.Equal(t, "author", ds[0].Payload.Username)
	assert.Empty(t, ds[0].Payload.ThreadID)
}

func TestRelocate_CreatesWebhookOnceAndReusesIt(t *testing.T) {
	tr := newTransport()
	msgs := sourceMessages(tr, 1, 5)

	_, err := newEngine(tr).Relocate(context.Background(), msgs, dest, "G", Options{Hide: noHide()})
	require.NoError(t, err)

	hooks := tr.Webhooks("D")
	require.Len(t, hooks, 1)
	assert.Equal(t, DefaultWebhookName, hooks[0].Name)
	assert.Equal(t, 1, tr.Calls("CreateWebhook"))
	for _, d := range tr.Dispatches() {
		assert.Equal(t, hooks[0].ID, d.Webhook.ID)
	}
	assert.Len(t, tr.Dispatches(), 5)
}

func TestRelocate_SkipsTokenlessWebhooks(t *testing.T) {
	tr := newTransport()
	tr.AddWebhook("D", domain.Webhook{ID: "w1", Name: "follower"})
	tr.AddWebhook("D", domain.Webhook{ID: "w2", Name: "usable", Token: "secret"})
	msgs := sourceMessages(tr, 1, 2)

	_, err := newEngine(tr).Relocate(context.Background(), msgs, dest, "G", Options{Hide: noHide()})
	require.NoError(t, err)
	assert.Zero(t, tr.Calls("CreateWebhook"))
	for _, d := range tr.Dispatches() {
		assert.Equal(t, "w2", d.Webhook.ID)
	}
}

func TestRelocate_ReplyAddsOneEmbedWithLink(t *testing.T) {
	tr := newTransport()
	tr.AddMessages("S", domain.Message{
		ID:        "10",
		Author:    domain.Author{ID: "7", Username: "original", Avatar: "abc"},
		Content:   "the question",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	existing := &domain.Embed{Title: "link preview"}
	reply := domain.Message{
		ID:        "11",
		ChannelID: "S",
		GuildID:   "G",
		Author:    domain.Author{ID: "8", Username: "replier"},
		Content:   "the answer",
		Embeds:    []*domain.Embed{existing},
		Reference: &domain.Reference{GuildID: "G", ChannelID: "S", MessageID: "10"},
		Timestamp: time.Now(),
	}
	tr.AddMessages("S", reply)

	_, err := newEngine(tr).Relocate(context.Background(), []domain.Message{reply}, dest, "G", Options{Hide: noHide()})
	require.NoError(t, err)

	ds := tr.Dispatches()
	require.Len(t, ds, 1)
	embeds := ds[0].Payload.Embeds
	require.Len(t, embeds, 2)
	assert.Same(t, existing, embeds[0])

	summary := embeds[1]
	assert.Equal(t, "https://discord.com/channels/G/S/10", summary.URL)
	assert.Equal(t, "original", summary.Author.Name)
	assert.Equal(t, "https://cdn.discordapp.com/avatars/7/abc.png", summary.Author.IconURL)
	assert.Equal(t, "source", summary.Footer.Text)
	assert.Equal(t, "the question", summary.Description)
	assert.Equal(t, "2026-01-02T03:04:05Z", summary.Timestamp)
	require.Len(t, summary.Fields, 1)
	assert.Contains(t, summary.Fields[0].Value, "https://discord.com/channels/G/S/10")
}

func TestRelocate_ThreadDestinationPostsToParent(t *testing.T) {
	tr := newTransport()
	thread := domain.Channel{ID: "T", Kind: domain.ChannelThread, ParentID: "D", GuildID: "G"}
	tr.AddChannel(thread)
	msgs := sourceMessages(tr, 1, 2)

	_, err := newEngine(tr).Relocate(context.Background(), msgs, thread, "G", Options{Hide: noHide()})
	require.NoError(t, err)

	assert.Len(t, tr.Webhooks("D"), 1)
	assert.Empty(t, tr.Webhooks("T"))
	for _, d := range tr.Dispatches() {
		assert.Equal(t, "T", d.Payload.ThreadID)
	}
	assert.Len(t, tr.Messages("T"), 2)
}

func TestRelocate_AttachmentsReuploaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes of " + strings.TrimPrefix(r.URL.Path, "/")))
	}))
	defer srv.Close()

	tr := newTransport()
	msg := domain.Message{
		ID: "1", ChannelID: "S", GuildID: "G",
		Author: domain.Author{ID: "1", Username: "u"},
		Attachments: []domain.Attachment{
			{Filename: "cat.png", URL: srv.URL + "/cat.png"},
			{Filename: "dog.png", URL: srv.URL + "/dog.png", Description: "a dog"},
		},
		Timestamp: time.Now(),
	}
	sensitive := msg
	sensitive.ID = "2"
	sensitive.Flags = discordgo.MessageFlagsEphemeral
	tr.AddMessages("S", msg, sensitive)

	_, err := newEngine(tr).Relocate(context.Background(), []domain.Message{msg, sensitive}, dest, "G", Options{Hide: noHide()})
	require.NoError(t, err)

	ds := tr.Dispatches()
	require.Len(t, ds, 2)
	require.Len(t, ds[0].Payload.Files, 2)
	assert.Equal(t, "cat.png", ds[0].Payload.Files[0].Name)
	assert.Equal(t, []byte("bytes of cat.png"), ds[0].Payload.Files[0].Data)
	assert.Equal(t, "a dog", ds[0].Payload.Files[1].Description)
	assert.Equal(t, "SPOILER_cat.png", ds[1].Payload.Files[0].Name)
	assert.Equal(t, "SPOILER_dog.png", ds[1].Payload.Files[1].Name)
}

func TestRelocate_ContentTooLongAborts(t *testing.T) {
	tr := newTransport()
	msgs := sourceMessages(tr, 1, 3)
	msgs[1].Content = strings.Repeat("é", domain.MaxContentLength+1)

	stats, err := newEngine(tr).Relocate(context.Background(), msgs, dest, "G", Options{Hide: noHide()})
	require.Error(t, err)
	assert.Equal(t, domain.KindContentTooLong, domain.KindOf(err))
	assert.Equal(t, 1, stats.Copied)
	assert.Len(t, tr.Dispatches(), 1)
}

func TestRelocate_ContentAtLimitIsAccepted(t *testing.T) {
	tr := newTransport()
	msgs := sourceMessages(tr, 1, 1)
	msgs[0].Content = strings.Repeat("é", domain.MaxContentLength)

	_, err := newEngine(tr).Relocate(context.Background(), msgs, dest, "G", Options{Hide: noHide()})
	require.NoError(t, err)
}

func TestRelocate_DispatchTimeoutSkipsMessage(t *testing.T) {
	tr := newTransport()
	var calls atomic.Int32
	tr.ExecuteFunc = func(ctx context.Context, _ domain.Webhook, _ domain.WebhookPayload) error {
		if calls.Add(1) == 2 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}
	msgs := sourceMessages(tr, 1, 3)
	e := New(Config{Transport: tr, DispatchTimeout: 20 * time.Millisecond, Logger: testLogger()})

	stats, err := e.Relocate(context.Background(), msgs, dest, "G", Options{Hide: noHide()})
	require.NoError(t, err)
	assert.Equal(t, Stats{Copied: 2, Skipped: 1, SkippedIDs: []string{"2"}}, stats)
	assert.Len(t, tr.Messages("D"), 2)
}

func TestRelocate_TransportErrorAborts(t *testing.T) {
	tr := newTransport()
	tr.FailOn("ExecuteWebhook", 2, errors.New("500 Internal Server Error"))
	msgs := sourceMessages(tr, 1, 4)

	stats, err := newEngine(tr).Relocate(context.Background(), msgs, dest, "G", Options{Hide: noHide()})
	require.Error(t, err)
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, 2, tr.Calls("ExecuteWebhook"))
}

func TestRelocate_LeavesSourceInPlace(t *testing.T) {
	tr := newTransport()
	msgs := sourceMessages(tr, 1, 3)

	stats, err := newEngine(tr).Relocate(context.Background(), msgs, dest, "G", Options{Hide: noHide()})
	require.NoError(t, err)
	assert.Zero(t, stats.Removed)
	assert.Len(t, tr.Messages("S"), 3)
	assert.Len(t, tr.Messages("D"), 3)
	assert.Zero(t, tr.Calls("DeleteMessage"))
}

func TestRelocate_PolicyRejectsBeforeAnyCall(t *testing.T) {
	tr := newTransport()
	msgs := sourceMessages(tr, 1, 3)
	e := New(Config{
		Transport: tr,
		Logger:    testLogger(),
		Policy: func(m domain.Message) error {
			if m.ID == "3" {
				return errors.New("not allowed")
			}
			return nil
		},
	})

	_, err := e.Relocate(context.Background(), msgs, dest, "G", Options{Hide: noHide()})
	require.Error(t, err)
	assert.Zero(t, tr.Calls("ListChannelWebhooks"))
	assert.Empty(t, tr.Dispatches())
}

type statusRecorder struct{ texts []string }

func (r *statusRecorder) Status(_ context.Context, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func TestRelocate_ReportsFinalProgress(t *testing.T) {
	tr := newTransport()
	msgs := sourceMessages(tr, 1, 4)
	rec := &statusRecorder{}

	_, err := newEngine(tr).Relocate(context.Background(), msgs, dest, "G", Options{Hide: noHide(), Reporter: rec})
	require.NoError(t, err)
	require.NotEmpty(t, rec.texts)
	assert.True(t, strings.HasPrefix(rec.texts[len(rec.texts)-1], "Moving 4/4:"))
}

type copyLog struct{ pairs [][2]string }

func (c *copyLog) RecordCopy(_ context.Context, src, dst domain.Message) error {
	c.pairs = append(c.pairs, [2]string{src.ID, dst.ID})
	return nil
}

func TestRelocate_RecordsCopies(t *testing.T) {
	tr := newTransport()
	msgs := sourceMessages(tr, 1, 2)
	log := &copyLog{}

	_, err := newEngine(tr).Relocate(context.Background(), msgs, dest, "G", Options{Hide: noHide(), Recorder: log})
	require.NoError(t, err)
	require.Len(t, log.pairs, 2)
	assert.Equal(t, "1", log.pairs[0][0])
	assert.Equal(t, tr.Messages("D"), []string{log.pairs[0][1], log.pairs[1][1]})
}

func TestRelocateOne(t *testing.T) {
	tr := newTransport()
	tr.AddRole("G", domain.Role{ID: "R", Name: DefaultHideRole})
	msgs := sourceMessages(tr, 1, 1)

	stats, err := newEngine(tr).RelocateOne(context.Background(), msgs[0], dest, true, nil)
	require.NoError(t, err)
	assert.Equal(t, Stats{Copied: 1, Removed: 1}, stats)
	assert.Empty(t, tr.Messages("S"))
	assert.Len(t, tr.Messages("D"), 1)
	// Single moves never touch visibility.
	assert.Zero(t, tr.Calls("ListGuildRoles"))
}

func TestRelocate_EmptySequence(t *testing.T) {
	tr := newTransport()
	stats, err := newEngine(tr).Relocate(context.Background(), nil, dest, "G", Options{Hide: noHide()})
	require.NoError(t, err)
	assert.Zero(t, stats)
	assert.Zero(t, tr.Calls("ListChannelWebhooks"))
}
