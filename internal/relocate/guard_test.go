package relocate

import (
	"context"
	"errors"
	"testing"

	"chanmover/internal/domain"
	"chanmover/internal/fake"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_HidesThenShows(t *testing.T) {
	tr := newTransport()
	tr.AddRole("G", domain.Role{ID: "everyone", Name: "@everyone"})
	tr.AddRole("G", domain.Role{ID: "R", Name: "Hide"})
	g := NewGuard(tr, "", testLogger())

	var during domain.Overwrite
	err := g.Run(context.Background(), "G", "D", true, func(context.Context) error {
		during, _ = tr.Overwrite("D", "R")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(discordgo.PermissionViewChannel), during.Deny)
	after, ok := tr.Overwrite("D", "R")
	require.True(t, ok)
	assert.Equal(t, int64(discordgo.PermissionViewChannel), after.Allow)
	assert.Zero(t, after.Deny)
	assert.Len(t, tr.OverwriteHistory(), 2)
}

func TestGuard_RestoresVisibilityOnFailure(t *testing.T) {
	tr := newTransport()
	tr.AddRole("G", domain.Role{ID: "R", Name: "Hide"})
	g := NewGuard(tr, "", testLogger())

	boom := errors.New("relocation failed")
	err := g.Run(context.Background(), "G", "D", true, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	after, ok := tr.Overwrite("D", "R")
	require.True(t, ok)
	assert.Equal(t, ShowOverwrite("R"), after)
}

func TestGuard_RestoresAfterCancel(t *testing.T) {
	tr := newTransport()
	tr.AddRole("G", domain.Role{ID: "R", Name: "Hide"})
	g := NewGuard(tr, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	err := g.Run(ctx, "G", "D", true, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	after, _ := tr.Overwrite("D", "R")
	assert.Equal(t, ShowOverwrite("R"), after)
}

func TestGuard_RestoreFailureIsReported(t *testing.T) {
	tr := newTransport()
	tr.AddRole("G", domain.Role{ID: "R", Name: "Hide"})
	tr.FailOn("UpdateChannelPermission", 2, errors.New("403 Forbidden"))
	g := NewGuard(tr, "", testLogger())

	err := g.Run(context.Background(), "G", "D", true, func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
}

func TestGuard_NoRoleSkipsSilently(t *testing.T) {
	tr := newTransport()
	tr.AddRole("G", domain.Role{ID: "R", Name: "hide"}) // case matters
	g := NewGuard(tr, "", testLogger())

	ran := false
	err := g.Run(context.Background(), "G", "D", true, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Empty(t, tr.OverwriteHistory())
}

func TestGuard_NotRequested(t *testing.T) {
	tr := fake.New()
	g := NewGuard(tr, "", testLogger())
	require.NoError(t, g.Run(context.Background(), "G", "D", false, func(context.Context) error { return nil }))
	assert.Zero(t, tr.Calls("ListGuildRoles"))
}

func TestGuard_HideFailureSkipsRun(t *testing.T) {
	tr := newTransport()
	tr.AddRole("G", domain.Role{ID: "R", Name: "Hide"})
	tr.FailOn("UpdateChannelPermission", 1, errors.New("403 Forbidden"))
	g := NewGuard(tr, "", testLogger())

	ran := false
	err := g.Run(context.Background(), "G", "D", true, func(context.Context) error {
		ran = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, ran)
}

func TestRelocate_HidesDestinationByDefault(t *testing.T) {
	tr := newTransport()
	tr.AddRole("G", domain.Role{ID: "R", Name: "Hide"})
	msgs := sourceMessages(tr, 1, 3)

	_, err := newEngine(tr).Relocate(context.Background(), msgs, dest, "G", Options{})
	require.NoError(t, err)

	history := tr.OverwriteHistory()
	require.Len(t, history, 2)
	assert.Equal(t, HideOverwrite("R"), history[0])
	assert.Equal(t, ShowOverwrite("R"), history[1])
}
