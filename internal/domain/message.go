package domain

import (
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
)

// MaxContentLength is the platform's per-message content limit, in characters.
const MaxContentLength = 2000

// Embed is passed through to the destination unmodified.
type Embed = discordgo.MessageEmbed

// Message is a fetched chat message. It is not modified after fetching.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string // empty for DMs
	Author      Author
	Content     string
	Attachments []Attachment
	Embeds      []*Embed
	Reference   *Reference
	Timestamp   time.Time
	Flags       discordgo.MessageFlags
}

// Author carries the identity shown when a message is re-posted.
type Author struct {
	ID          string
	Username    string
	GlobalName  string
	Nick        string // guild nickname override
	Avatar      string // global avatar hash
	GuildAvatar string // guild-specific avatar hash
}

// DisplayName returns the nickname when set, then the global display name,
// then the account name.
func (a Author) DisplayName() string {
	switch {
	case a.Nick != "":
		return a.Nick
	case a.GlobalName != "":
		return a.GlobalName
	default:
		return a.Username
	}
}

// Attachment is a file attached to a message. Data is filled lazily by the
// relocation engine and dropped once uploaded.
type Attachment struct {
	ID          string
	Filename    string
	URL         string
	Description string
	ContentType string
	Size        int
	Spoiler     bool
	Data        []byte
}

// Reference points at a replied-to message.
type Reference struct {
	GuildID   string
	ChannelID string
	MessageID string
}

// IsReply reports whether the message replies to another message.
func (m Message) IsReply() bool {
	return m.Reference != nil && m.Reference.MessageID != "" && m.Reference.ChannelID != ""
}

// Sensitive reports whether attachments must be re-uploaded as spoilers.
func (m Message) Sensitive() bool {
	return m.Flags&discordgo.MessageFlagsEphemeral != 0
}

// Age returns how long ago the message was created.
func (m Message) Age(now time.Time) time.Duration {
	return now.Sub(m.Timestamp)
}

// CompareIDs orders two snowflakes numerically. Snowflake order is
// chronological order. Unparseable ids fall back to length then lexical order.
func CompareIDs(a, b string) int {
	ai, errA := strconv.ParseUint(a, 10, 64)
	bi, errB := strconv.ParseUint(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// discordEpoch is the first millisecond of 2015, in unix milliseconds.
const discordEpoch = 1420070400000

// SnowflakeTime returns the creation time encoded in a snowflake.
func SnowflakeTime(id string) (time.Time, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	ms := int64(n>>22) + discordEpoch
	return time.UnixMilli(ms), nil
}

// Range bounds a relocation or deletion. An empty To is open-ended.
type Range struct {
	From string
	To   string
}

// Normalize returns the range with From as the earlier boundary.
func (r Range) Normalize() Range {
	if r.To != "" && CompareIDs(r.From, r.To) > 0 {
		return Range{From: r.To, To: r.From}
	}
	return r
}

// Single reports whether both boundaries name the same message.
func (r Range) Single() bool {
	return r.To != "" && CompareIDs(r.From, r.To) == 0
}

// Embed parts used when synthesising embeds.
type (
	EmbedAuthor = discordgo.MessageEmbedAuthor
	EmbedFooter = discordgo.MessageEmbedFooter
	EmbedField  = discordgo.MessageEmbedField
)
