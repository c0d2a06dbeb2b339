package ircslack

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// Channel name prefixes. Public and private Slack channels both map to a
// regular "#" channel on IRC; multi-party IMs get "&". Thread channels
// reuse the parent's prefix with a hash suffix, so they are not a
// separate prefix. One-to-one IMs map to plain queries and have no
// channel name at all.
const (
	ChannelPrefixChannel = "#"
	ChannelPrefixMpIM    = "&"
)

// MpIMNameMaxLen caps the synthetic multi-party IM channel name.
const MpIMNameMaxLen = 50

// HasChannelPrefix returns true if the name starts with one of the
// supported channel prefixes.
func HasChannelPrefix(name string) bool {
	if len(name) == 0 {
		return false
	}
	switch string(name[0]) {
	case ChannelPrefixChannel, ChannelPrefixMpIM:
		return true
	default:
		return false
	}
}

// StripChannelPrefix returns a channel name without its channel prefix. If no
// channel prefix is present, the string is returned unchanged.
func StripChannelPrefix(name string) string {
	if HasChannelPrefix(name) {
		return name[1:]
	}
	return name
}

// ChannelMembers returns a list of users in the given conversation.
func ChannelMembers(ctx *IrcContext, channelID string) ([]slack.User, error) {
	var (
		members, m []string
		nextCursor string
		err        error
		page       int
	)
	for {
		attempt := 0
		for {
			// retry if rate-limited, no more than MaxSlackAPIAttempts times
			if attempt >= MaxSlackAPIAttempts {
				return nil, fmt.Errorf("ChannelMembers: exceeded the maximum number of attempts (%d) with the Slack API", MaxSlackAPIAttempts)
			}
			log.Debugf("ChannelMembers: page %d attempt #%d nextCursor=%s", page, attempt, nextCursor)
			m, nextCursor, err = ctx.SlackClient.GetUsersInConversation(&slack.GetUsersInConversationParameters{ChannelID: channelID, Cursor: nextCursor, Limit: 1000})
			if err != nil {
				log.Errorf("Failed to get users in conversation '%s': %v", channelID, err)
				if rlErr, ok := err.(*slack.RateLimitedError); ok {
					// wait as much as Slack instructs us to do
					log.Warningf("Hit Slack API rate limiter. Waiting %v", rlErr.RetryAfter)
					time.Sleep(rlErr.RetryAfter)
					attempt++
					continue
				}
				return nil, fmt.Errorf("Cannot get member list for conversation %s: %v", channelID, err)
			}
			break
		}
		members = append(members, m...)
		log.Debugf("Fetched %d user IDs for channel %s (fetched so far: %d)", len(m), channelID, len(members))
		if nextCursor == "" {
			break
		}
		page++
	}
	log.Debugf("Retrieving user information for %d users", len(members))
	users, err := ctx.Users.FetchByIDs(ctx.SlackClient, false, members...)
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch users by their IDs: %v", err)
	}
	return users, nil
}

// Channel wraps a Slack conversation with a few utility functions.
type Channel slack.Channel

// IsPublicChannel returns true if the channel is public.
func (c *Channel) IsPublicChannel() bool {
	return c.IsChannel && !c.IsPrivate
}

// IsPrivateChannel returns true if the channel is private.
func (c *Channel) IsPrivateChannel() bool {
	return (c.IsGroup || c.IsChannel) && c.IsPrivate
}

// IsMP returns true if it is a multi-party conversation.
func (c *Channel) IsMP() bool {
	return c.IsMpIM
}

// IRCName returns the channel name as it would appear on IRC.
// Examples:
// * #channel for public and private channels
// * &nick1-nick2-nick3 for multi-party IMs
// One-to-one IMs have no channel name and yield the empty string.
func (c *Channel) IRCName() string {
	switch {
	case c.IsPublicChannel(), c.IsPrivateChannel():
		return ChannelPrefixChannel + c.Name
	case c.IsMP():
		// Slack names these "mpdm-nick1--nick2--nick3-1"; rebuild a stable
		// sorted nick list out of that.
		name := strings.TrimPrefix(c.Name, "mpdm-")
		if idx := strings.LastIndex(name, "-"); idx > 0 {
			name = name[:idx]
		}
		nicks := strings.Split(name, "--")
		sort.Strings(nicks)
		ircName := ChannelPrefixMpIM + strings.Join(nicks, "-")
		if len(ircName) > MpIMNameMaxLen {
			// keep a hash of the full nick list in the name, so two
			// conversations sharing the first 50 bytes stay distinct
			sum := crc32.ChecksumIEEE([]byte(ircName))
			ircName = fmt.Sprintf("%s-%08x", ircName[:MpIMNameMaxLen-9], sum)
		}
		return ircName
	case c.IsIM:
		return ""
	default:
		log.Warningf("Unknown channel type for channel %+v", c)
		return ""
	}
}

// SlackName returns the slack.Channel.Name field.
func (c *Channel) SlackName() string {
	return c.Name
}

// MembersDiff compares the members of this channel with another members list
// and return a slice of members who joined and a slice of members who left.
func (c *Channel) MembersDiff(otherMembers []string) ([]string, []string) {
	var membersMap = map[string]bool{}
	for _, m := range c.Members {
		membersMap[m] = true
	}
	var otherMembersMap = map[string]bool{}
	for _, m := range otherMembers {
		otherMembersMap[m] = true
	}

	added := make([]string, 0)
	for _, m := range otherMembers {
		if _, ok := membersMap[m]; !ok {
			added = append(added, m)
		}
	}

	removed := make([]string, 0)
	for _, m := range c.Members {
		if _, ok := otherMembersMap[m]; !ok {
			removed = append(removed, m)
		}
	}
	return added, removed
}
