package ircslack

import (
	"fmt"
	"strconv"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"
)

// DefaultHistoryWindow caps how far back the history backfill reaches for
// rooms with no saved cursor.
const DefaultHistoryWindow = 24 * time.Hour

// backfillConcurrency bounds parallel conversations.history calls so a
// workspace with hundreds of rooms does not trip the rate limiter on
// every reconnect.
const backfillConcurrency = 4

func slackTs(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

// fetchRoomHistory returns the messages of one room newer than its
// delivery cursor, oldest first.
func (ic *IrcContext) fetchRoomHistory(roomID string) ([]slack.Message, error) {
	oldest := ic.DeliveryCursor(roomID)
	if oldest == "" {
		oldest = slackTs(time.Now().Add(-DefaultHistoryWindow))
	}
	params := slack.GetConversationHistoryParameters{
		ChannelID: roomID,
		Oldest:    oldest,
		Inclusive: false,
		Limit:     200,
	}
	var all []slack.Message
	for {
		attempt := 0
		var resp *slack.GetConversationHistoryResponse
		for {
			if attempt >= MaxSlackAPIAttempts {
				return nil, fmt.Errorf("history of %s: exceeded the maximum number of attempts (%d) with the Slack API", roomID, MaxSlackAPIAttempts)
			}
			var err error
			resp, err = ic.SlackClient.GetConversationHistory(&params)
			if err != nil {
				if rlErr, ok := err.(*slack.RateLimitedError); ok {
					log.Warningf("Hit Slack API rate limiter. Waiting %v", rlErr.RetryAfter)
					time.Sleep(rlErr.RetryAfter)
					attempt++
					continue
				}
				return nil, err
			}
			break
		}
		all = append(all, resp.Messages...)
		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			break
		}
		params.Cursor = resp.ResponseMetaData.NextCursor
	}
	// conversations.history returns newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

// BackfillHistory replays messages missed while the bridge was down, for
// every given room, through the deliver callback. Rooms are fetched a few
// at a time; per-room ordering is oldest first. A room whose fetch fails
// is logged and skipped, the others still go through. Live events arriving
// meanwhile are held and returned for replay.
func (ic *IrcContext) BackfillHistory(roomIDs []string, deliver func(roomID string, msg slack.Message)) []slack.RTMEvent {
	ic.BeginBackfill()
	start := time.Now()
	var g errgroup.Group
	g.SetLimit(backfillConcurrency)
	for _, roomID := range roomIDs {
		roomID := roomID
		g.Go(func() error {
			msgs, err := ic.fetchRoomHistory(roomID)
			if err != nil {
				log.Warningf("Skipping history of %s: %v", roomID, err)
				return nil
			}
			for _, msg := range msgs {
				if msg.SubType == "message_deleted" {
					continue
				}
				if !ic.MarkDelivered(roomID, msg.Timestamp) {
					continue
				}
				deliver(roomID, msg)
			}
			return nil
		})
	}
	g.Wait()
	log.Infof("History backfill of %d rooms done in %s", len(roomIDs), time.Since(start))
	return ic.EndBackfill()
}
