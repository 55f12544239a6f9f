package progress

import (
	"context"
	"strings"
	"testing"
	"time"

	"chanmover/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBar(t *testing.T) {
	tests := []struct {
		current, total int
		filled         int
		pct            string
	}{
		{0, 10, 0, "0%"},
		{5, 10, 20, "50%"},
		{1, 3, 13, "33%"},
		{2, 3, 26, "66%"},
		{10, 10, 40, "100%"},
	}
	for _, tt := range tests {
		bar := Bar(tt.current, tt.total)
		inner := bar[1 : 1+BarWidth]
		assert.Len(t, inner, BarWidth)
		assert.Equal(t, tt.filled, strings.Count(inner, "="), bar)
		assert.True(t, strings.HasSuffix(bar, "] "+tt.pct), bar)
	}
}

func TestBanner(t *testing.T) {
	assert.Contains(t, Banner(0), "car")
	assert.Contains(t, Banner(15), "pickup_truck")
	assert.Contains(t, Banner(25), ":truck:")
	assert.Contains(t, Banner(40), "lorry")
	assert.Contains(t, Banner(41), "ship")
}

type recorder struct{ texts []string }

func (r *recorder) Status(_ context.Context, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func TestReporter_ThrottlesAndAlwaysReportsLast(t *testing.T) {
	rec := &recorder{}
	clock := time.Unix(0, 0)
	r := NewReporter(rec, 4*time.Second, "")
	r.now = func() time.Time { return clock }
	ctx := context.Background()

	for idx := 0; idx < 10; idx++ {
		require.NoError(t, r.Report(ctx, idx, 10))
		clock = clock.Add(time.Second)
	}
	// idx 4 and 8 cross the interval, idx 9 is the last.
	require.Len(t, rec.texts, 3)
	assert.True(t, strings.HasPrefix(rec.texts[0], "Moving 5/10:\n"))
	assert.True(t, strings.HasPrefix(rec.texts[2], "Moving 10/10:\n"))
}

func TestReporter_SingleMessage(t *testing.T) {
	rec := &recorder{}
	r := NewReporter(rec, time.Hour, "Deleting")
	require.NoError(t, r.Report(context.Background(), 0, 1))
	require.Len(t, rec.texts, 1)
	assert.Equal(t, "Deleting 1/1:\n"+Bar(0, 1), rec.texts[0])
}

func TestReporter_ZeroTotalIsIgnored(t *testing.T) {
	rec := &recorder{}
	r := NewReporter(rec, 0, "")
	require.NoError(t, r.Report(context.Background(), 0, 0))
	require.NoError(t, r.Emit(context.Background(), 0, 0))
	assert.Empty(t, rec.texts)
}

func TestReporter_NilSink(t *testing.T) {
	r := NewReporter(nil, 0, "")
	assert.NoError(t, r.Emit(context.Background(), 0, 2))
	var _ domain.Reporter = LogSink{}
}
