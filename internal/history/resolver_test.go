package history

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"chanmover/internal/domain"
	"chanmover/internal/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newResolver(tr domain.Transport, pageSize int) *Resolver {
	return New(Config{Transport: tr, PageSize: pageSize, Logger: testLogger()})
}

func seeded(from, to int) *fake.Transport {
	tr := fake.New()
	tr.AddChannel(domain.Channel{ID: "C", GuildID: "G"})
	tr.AddMessages("C", fake.Seq(from, to, time.Now())...)
	return tr
}

func TestResolve_BoundedRange(t *testing.T) {
	tr := seeded(100, 110)
	r := newResolver(tr, 100)

	res, err := r.Resolve(context.Background(), "C", domain.Range{From: "100", To: "105"})
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "101", "102", "103", "104", "105"}, fake.IDs(res.Messages))
	assert.False(t, res.Partial)
}

func TestResolve_SwappedBoundsGiveSameSequence(t *testing.T) {
	tr := seeded(100, 110)
	r := newResolver(tr, 3)
	ctx := context.Background()

	forward, err := r.Resolve(ctx, "C", domain.Range{From: "102", To: "108"})
	require.NoError(t, err)
	backward, err := r.Resolve(ctx, "C", domain.Range{From: "108", To: "102"})
	require.NoError(t, err)

	assert.Equal(t, fake.IDs(forward.Messages), fake.IDs(backward.Messages))
	assert.Equal(t, []string{"102", "103", "104", "105", "106", "107", "108"}, fake.IDs(forward.Messages))
}

func TestResolve_IdenticalBoundsReturnOneMessage(t *testing.T) {
	tr := seeded(100, 110)
	r := newResolver(tr, 100)

	res, err := r.Resolve(context.Background(), "C", domain.Range{From: "104", To: "104"})
	require.NoError(t, err)
	assert.Equal(t, []string{"104"}, fake.IDs(res.Messages))
	assert.Zero(t, tr.Calls("FetchMessages"))
}

func TestResolve_OpenEndedReturnsSingleMessage(t *testing.T) {
	tr := seeded(100, 110)
	r := newResolver(tr, 100)

	res, err := r.Resolve(context.Background(), "C", domain.Range{From: "107"})
	require.NoError(t, err)
	assert.Equal(t, []string{"107"}, fake.IDs(res.Messages))
}

func TestResolve_PagesAcrossSmallPages(t *testing.T) {
	tr := seeded(1, 250)
	r := newResolver(tr, 100)

	res, err := r.Resolve(context.Background(), "C", domain.Range{From: "5", To: "230"})
	require.NoError(t, err)
	require.Len(t, res.Messages, 226)
	assert.Equal(t, "5", res.Messages[0].ID)
	assert.Equal(t, "230", res.Messages[225].ID)
	assert.Equal(t, 3, tr.Calls("FetchMessages"))
}

func TestResolve_BoundaryNotFoundReturnsPartial(t *testing.T) {
	tr := seeded(100, 103)
	r := newResolver(tr, 2)

	res, err := r.Resolve(context.Background(), "C", domain.Range{From: "100", To: "500"})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, []string{"100", "101", "102", "103"}, fake.IDs(res.Messages))
	assert.Contains(t, res.String(), "partial")
}

func TestResolve_DeletedBoundaryStopsAtGap(t *testing.T) {
	tr := fake.New()
	tr.AddChannel(domain.Channel{ID: "C"})
	tr.AddMessages("C", fake.Seq(100, 104, time.Now())...)
	tr.AddMessages("C", fake.Seq(106, 120, time.Now())...)
	r := newResolver(tr, 100)

	res, err := r.Resolve(context.Background(), "C", domain.Range{From: "100", To: "105"})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, []string{"100", "101", "102", "103", "104"}, fake.IDs(res.Messages))
}

func TestResolveFrom_ReadsToChannelEnd(t *testing.T) {
	tr := seeded(1, 30)
	r := newResolver(tr, 7)

	res, err := r.ResolveFrom(context.Background(), "C", "20")
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.Equal(t, []string{"20", "21", "22", "23", "24", "25", "26", "27", "28", "29", "30"}, fake.IDs(res.Messages))
}

func TestResolve_TransportErrorAborts(t *testing.T) {
	tr := seeded(1, 300)
	tr.FailOn("FetchMessages", 2, errors.New("502 Bad Gateway"))
	r := newResolver(tr, 100)

	_, err := r.Resolve(context.Background(), "C", domain.Range{From: "1", To: "290"})
	require.Error(t, err)
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
}

func TestResolve_MissingStartMessage(t *testing.T) {
	tr := seeded(1, 3)
	r := newResolver(tr, 100)

	_, err := r.Resolve(context.Background(), "C", domain.Range{From: "77", To: "2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, fake.ErrNotFound)
}

func TestResolveAll_ChronologicalOrder(t *testing.T) {
	tr := seeded(1, 257)
	r := newResolver(tr, 100)

	msgs, err := r.ResolveAll(context.Background(), "C")
	require.NoError(t, err)
	require.Len(t, msgs, 257)
	for i := 1; i < len(msgs); i++ {
		assert.Equal(t, -1, domain.CompareIDs(msgs[i-1].ID, msgs[i].ID))
	}
	// Three full or partial pages plus the terminating empty page.
	assert.Equal(t, 4, tr.Calls("FetchMessages"))
}

func TestResolveAll_EmptyChannel(t *testing.T) {
	tr := fake.New()
	tr.AddChannel(domain.Channel{ID: "C"})
	r := newResolver(tr, 100)

	msgs, err := r.ResolveAll(context.Background(), "C")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestResolve_PageDelayHonoursCancel(t *testing.T) {
	tr := seeded(1, 50)
	r := New(Config{Transport: tr, PageSize: 10, PageDelay: time.Hour, Logger: testLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.ResolveAll(ctx, "C")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
