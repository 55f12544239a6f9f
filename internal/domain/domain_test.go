package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"100", "105", -1},
		{"105", "100", 1},
		{"100", "100", 0},
		{"99", "100", -1}, // numeric, not lexical
		{"1209600000000000000", "999", 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.a, tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, CompareIDs(tt.a, tt.b))
		})
	}
}

func TestRange_Normalize(t *testing.T) {
	assert.Equal(t, Range{From: "100", To: "105"}, Range{From: "105", To: "100"}.Normalize())
	assert.Equal(t, Range{From: "100", To: "105"}, Range{From: "100", To: "105"}.Normalize())
	assert.Equal(t, Range{From: "100"}, Range{From: "100"}.Normalize())
	assert.True(t, Range{From: "7", To: "7"}.Single())
	assert.False(t, Range{From: "7"}.Single())
}

func TestSnowflakeTime(t *testing.T) {
	// 175928847299117063 is the example snowflake from the platform docs.
	ts, err := SnowflakeTime("175928847299117063")
	require.NoError(t, err)
	assert.Equal(t, int64(1462015105796), ts.UnixMilli())

	_, err = SnowflakeTime("nope")
	assert.Error(t, err)
}

func TestAuthor_DisplayName(t *testing.T) {
	assert.Equal(t, "nick", Author{Username: "u", GlobalName: "g", Nick: "nick"}.DisplayName())
	assert.Equal(t, "g", Author{Username: "u", GlobalName: "g"}.DisplayName())
	assert.Equal(t, "u", Author{Username: "u"}.DisplayName())
}

func TestMessage_Flags(t *testing.T) {
	m := Message{Flags: discordgo.MessageFlagsEphemeral}
	assert.True(t, m.Sensitive())
	assert.False(t, Message{}.Sensitive())

	assert.False(t, Message{}.IsReply())
	assert.True(t, Message{Reference: &Reference{ChannelID: "1", MessageID: "2"}}.IsReply())

	now := time.Now()
	assert.Equal(t, time.Hour, Message{Timestamp: now.Add(-time.Hour)}.Age(now))
}

func TestChannel_PostTarget(t *testing.T) {
	ch, th := Channel{ID: "5", Kind: ChannelThread, ParentID: "4"}.PostTarget()
	assert.Equal(t, "4", ch)
	assert.Equal(t, "5", th)

	ch, th = Channel{ID: "5"}.PostTarget()
	assert.Equal(t, "5", ch)
	assert.Empty(t, th)
}

func TestError_KindsAndMessages(t *testing.T) {
	cause := errors.New("503 Service Unavailable")
	err := fmt.Errorf("relocate: %w", TransportError("execute webhook", cause))

	assert.Equal(t, KindTransport, KindOf(err))
	assert.False(t, IsUserFacing(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, UserMessage(err), "503")

	ambiguous := Errorf(KindAmbiguousDestination, "channel_to and channel_to_name")
	assert.True(t, IsUserFacing(ambiguous))
	assert.Equal(t, ambiguous, TransportError("x", ambiguous))

	plain := errors.New("boom")
	assert.Equal(t, KindUnknown, KindOf(plain))
	assert.Equal(t, "Something went wrong: boom", UserMessage(plain))
	assert.Empty(t, UserMessage(nil))
}

func TestError_EveryKindRenders(t *testing.T) {
	kinds := []ErrorKind{
		KindBoundaryNotInSameChannel, KindAmbiguousDestination, KindUnresolvedLinkBoundary,
		KindMissingParameter, KindContentTooLong, KindBoundaryNotFound, KindTransport,
	}
	for _, k := range kinds {
		t.Run(k.String(), func(t *testing.T) {
			msg := UserMessage(Errorf(k, "detail"))
			assert.NotEmpty(t, msg)
			assert.NotContains(t, msg, "Something went wrong")
		})
	}
}

func TestError_BoundaryNotFoundIsOperationNeutral(t *testing.T) {
	msg := UserMessage(Errorf(KindBoundaryNotFound, "detail"))
	assert.Equal(t, "The end message was not found; only the messages before the gap were handled.", msg)
	for _, verb := range []string{"moved", "deleted", "end of the channel"} {
		assert.NotContains(t, msg, verb)
	}
}

func TestParseMessageLink(t *testing.T) {
	tests := []struct {
		name string
		link string
		want MessageRef
	}{
		{"stable", "https://discord.com/channels/1/22/333", MessageRef{GuildID: "1", ChannelID: "22", MessageID: "333"}},
		{"ptb", "https://ptb.discord.com/channels/1/22/333", MessageRef{GuildID: "1", ChannelID: "22", MessageID: "333"}},
		{"canary", "https://canary.discord.com/channels/1/22/333", MessageRef{GuildID: "1", ChannelID: "22", MessageID: "333"}},
		{"legacy host", "https://discordapp.com/channels/1/22/333", MessageRef{GuildID: "1", ChannelID: "22", MessageID: "333"}},
		{"direct message", "https://discord.com/channels/@me/22/333", MessageRef{ChannelID: "22", MessageID: "333"}},
		{"surrounding text", "  see <https://discord.com/channels/1/22/333> ", MessageRef{GuildID: "1", ChannelID: "22", MessageID: "333"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMessageLink(tt.link)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMessageLink_Invalid(t *testing.T) {
	for _, link := range []string{
		"",
		"333",
		"https://discord.com/channels/1/22",
		"https://example.com/channels/1/22/333",
		"https://notdiscord.com/channels/1/22/333",
	} {
		_, err := ParseMessageLink(link)
		assert.Equal(t, KindUnresolvedLinkBoundary, KindOf(err), "link %q", link)
	}
}
