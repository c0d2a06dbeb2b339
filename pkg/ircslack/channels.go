package ircslack

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/sync/singleflight"
)

// Channels wraps the conversation list with convenient operations and
// cache. Conversations are indexed by Slack ID, with a secondary index by
// IRC name so that JOIN/PART/PRIVMSG lookups are O(1).
type Channels struct {
	channels   map[string]Channel
	byName     map[string]string
	Pagination int
	mu         sync.Mutex
	group      singleflight.Group
}

// NewChannels creates a new Channels object.
func NewChannels(pagination int) *Channels {
	return &Channels{
		channels:   make(map[string]Channel),
		byName:     make(map[string]string),
		Pagination: pagination,
	}
}

// SupportedChannelPrefixes returns a list of supported channel prefixes.
func SupportedChannelPrefixes() []string {
	return []string{
		ChannelPrefixChannel,
		ChannelPrefixMpIM,
	}
}

// AsMap returns the channels as a map of ID -> channel. The map is copied to
// avoid data races.
func (c *Channels) AsMap() map[string]Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make(map[string]Channel, len(c.channels))
	for k, v := range c.channels {
		ret[k] = v
	}
	return ret
}

func (c *Channels) insertLocked(ch Channel) {
	if old, ok := c.channels[ch.ID]; ok {
		if name := old.IRCName(); name != "" {
			delete(c.byName, name)
		}
	}
	c.channels[ch.ID] = ch
	if name := ch.IRCName(); name != "" {
		c.byName[name] = ch.ID
	}
}

// Insert adds or replaces one conversation in the cache.
func (c *Channels) Insert(ch Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(ch)
}

// Evict removes a conversation from the cache, e.g. when Slack reports it
// archived or deleted.
func (c *Channels) Evict(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[id]; ok {
		if name := ch.IRCName(); name != "" {
			delete(c.byName, name)
		}
		delete(c.channels, id)
	}
}

// FetchByIDs fetches the conversations with the specified IDs and updates the
// internal channel mapping.
func (c *Channels) FetchByIDs(client *slack.Client, skipCache bool, channelIDs ...string) ([]Channel, error) {
	var (
		toRetrieve       []string
		alreadyRetrieved []Channel
	)

	if !skipCache {
		c.mu.Lock()
		for _, cid := range channelIDs {
			if ch, ok := c.channels[cid]; !ok {
				toRetrieve = append(toRetrieve, cid)
			} else {
				alreadyRetrieved = append(alreadyRetrieved, ch)
			}
		}
		c.mu.Unlock()
		log.Debugf("Fetching information for %d channels out of %d (%d already in cache)", len(toRetrieve), len(channelIDs), len(channelIDs)-len(toRetrieve))
	} else {
		toRetrieve = channelIDs
	}
	allFetchedChannels := make([]Channel, 0, len(channelIDs))
	for i := 0; i < len(toRetrieve); i++ {
		attempt := 0
		for {
			if attempt >= MaxSlackAPIAttempts {
				return nil, fmt.Errorf("Channels.FetchByIDs: exceeded the maximum number of attempts (%d) with the Slack API", MaxSlackAPIAttempts)
			}
			log.Debugf("Fetching %d channels of %d, attempt %d of %d", len(toRetrieve), len(channelIDs), attempt+1, MaxSlackAPIAttempts)
			slackChannel, err := client.GetConversationInfo(&slack.GetConversationInfoInput{
				ChannelID:     toRetrieve[i],
				IncludeLocale: true,
			})
			if err != nil {
				if rlErr, ok := err.(*slack.RateLimitedError); ok {
					// we were rate-limited. Let's wait the recommended delay
					log.Warningf("Hit Slack API rate limiter. Waiting %v", rlErr.RetryAfter)
					time.Sleep(rlErr.RetryAfter)
					attempt++
					continue
				}
				return nil, err
			}
			ch := Channel(*slackChannel)
			allFetchedChannels = append(allFetchedChannels, ch)
			c.mu.Lock()
			c.insertLocked(ch)
			c.mu.Unlock()
			break
		}
	}
	allChannels := append(alreadyRetrieved, allFetchedChannels...)
	if len(channelIDs) != len(allChannels) {
		return allFetchedChannels, fmt.Errorf("Found %d channels but %d were requested", len(allChannels), len(channelIDs))
	}
	return allChannels, nil
}

// Refresh fetches one conversation by ID, deduplicating concurrent lookups
// of the same ID.
func (c *Channels) Refresh(client *slack.Client, channelID string) (*Channel, error) {
	v, err, _ := c.group.Do(channelID, func() (interface{}, error) {
		channels, err := c.FetchByIDs(client, true, channelID)
		if err != nil {
			return nil, err
		}
		if len(channels) == 0 {
			return nil, fmt.Errorf("no such channel: %s", channelID)
		}
		return &channels[0], nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Channel), nil
}

// Fetch retrieves all the conversations the user is a member of, including
// one-to-one and multi-party IMs. The Slack client has to be valid and
// connected.
func (c *Channels) Fetch(client *slack.Client) error {
	log.Infof("Fetching all conversations, might take a while on large Slack teams")
	var (
		ctx      = context.Background()
		channels = make(map[string]Channel)
	)
	start := time.Now()
	params := slack.GetConversationsParameters{
		Types: []string{"public_channel", "private_channel", "mpim", "im"},
		Limit: c.Pagination,
	}
	for {
		chans, nextCursor, err := client.GetConversationsContext(ctx, &params)
		if err != nil {
			if rateLimitedError, ok := err.(*slack.RateLimitedError); ok {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(rateLimitedError.RetryAfter):
					continue
				}
			}
			return err
		}
		log.Debugf("Retrieved %d conversations (current total is %d)", len(chans), len(channels))
		for _, sch := range chans {
			ch := Channel(sch)
			channels[ch.ID] = ch
		}
		if nextCursor == "" {
			break
		}
		params.Cursor = nextCursor
	}
	log.Infof("Retrieved %d conversations in %s", len(channels), time.Since(start))
	c.mu.Lock()
	c.channels = channels
	c.byName = make(map[string]string, len(channels))
	for _, ch := range channels {
		if name := ch.IRCName(); name != "" {
			c.byName[name] = ch.ID
		}
	}
	c.mu.Unlock()
	return nil
}

// Count returns the number of conversations. This method must be called after
// `Fetch`.
func (c *Channels) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.channels)
}

// CountChannels returns the number of named channels, excluding IMs and
// multi-party IMs. Used by the LUSERS-style counters.
func (c *Channels) CountChannels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ch := range c.channels {
		chCopy := ch
		if chCopy.IsPublicChannel() || chCopy.IsPrivateChannel() {
			n++
		}
	}
	return n
}

// ByID retrieves a conversation by its Slack ID.
func (c *Channels) ByID(id string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[id]; ok {
		return &ch
	}
	return nil
}

// ByName retrieves a conversation by its IRC name (with or without prefix).
func (c *Channels) ByName(name string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.byName[name]; ok {
		ch := c.channels[id]
		return &ch
	}
	// tolerate a bare name for public/private channels
	if !HasChannelPrefix(name) {
		if id, ok := c.byName[ChannelPrefixChannel+name]; ok {
			ch := c.channels[id]
			return &ch
		}
	}
	return nil
}
