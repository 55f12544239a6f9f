package domain

import (
	"regexp"
	"strings"
)

// MessageRef locates a message. GuildID is empty for direct messages.
type MessageRef struct {
	GuildID   string
	ChannelID string
	MessageID string
}

var messageLinkPattern = regexp.MustCompile(`(?:^|//|\.)discord(?:app)?\.com/channels/(\d+|@me)/(\d+)/(\d+)`)

// ParseMessageLink extracts the ids from a message link such as
// https://discord.com/channels/<guild>/<channel>/<message>. The ptb and
// canary hosts and the @me guild of direct messages are accepted.
func ParseMessageLink(link string) (MessageRef, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return MessageRef{}, Errorf(KindUnresolvedLinkBoundary, "empty message link")
	}
	caps := messageLinkPattern.FindStringSubmatch(link)
	if caps == nil {
		return MessageRef{}, Errorf(KindUnresolvedLinkBoundary, "invalid message link %q", link)
	}
	ref := MessageRef{GuildID: caps[1], ChannelID: caps[2], MessageID: caps[3]}
	if ref.GuildID == "@me" {
		ref.GuildID = ""
	}
	return ref, nil
}
