package ircslack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSlackHTTPClientConvo serves the conversation endpoints used when a
// channel or thread is joined and its history replayed.
type fakeSlackHTTPClientConvo struct{}

func (c fakeSlackHTTPClientConvo) Do(req *http.Request) (*http.Response, error) {
	var data []byte
	switch req.URL.Path {
	case "/api/conversations.replies":
		// https://api.slack.com/methods/conversations.replies
		data = []byte(`{"ok": true, "messages": [{"type": "message", "user": "U1", "text": "the database is on fire", "ts": "1618247241.000700", "thread_ts": "1618247241.000700"}], "has_more": false}`)
	case "/api/conversations.members":
		// https://api.slack.com/methods/conversations.members
		data = []byte(`{"ok": true, "members": ["U1", "U2"], "response_metadata": {"next_cursor": ""}}`)
	case "/api/conversations.history":
		// https://api.slack.com/methods/conversations.history
		data = []byte(`{"ok": true, "messages": [{"type": "message", "user": "U1", "text": "missed while hidden", "ts": "1618247300.000100"}], "has_more": false}`)
	case "/api/conversations.mark":
		data = []byte(`{"ok": true}`)
	case "/api/users.info":
		data = []byte(`{"ok": true, "users": [{"id": "U2", "name": "bob"}]}`)
	default:
		return nil, fmt.Errorf("testing: http client URL not supported: %s", req.URL)
	}
	return &http.Response{
		Status:     "200 OK",
		StatusCode: 200,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Body:       io.NopCloser(bytes.NewBuffer(data)),
	}, nil
}

func memberChannel(id, name string) Channel {
	return Channel{
		GroupConversation: slack.GroupConversation{
			Conversation: slack.Conversation{ID: id},
			Name:         name,
		},
		IsChannel: true,
		IsMember:  true,
	}
}

func TestThreadChannelAnnounce(t *testing.T) {
	ctx, output := testContextDraining(t)
	ctx.SlackClient = slack.New("test-token", slack.OptionHTTPClient(fakeSlackHTTPClientConvo{}))
	ctx.Channels.Insert(memberChannel("C1", "general"))
	ctx.Users.Insert(slack.User{ID: "U1", Name: "alice"})
	ctx.Users.Insert(slack.User{ID: "U2", Name: "bob"})

	name := resolveChannelName(ctx, "C1", "1618247241.000700")
	th := ctx.Threads.ByKey("C1", "1618247241.000700")
	require.NotNil(t, th)
	assert.Equal(t, th.IRCName, name)

	out := output()
	assert.Contains(t, out, "JOIN "+name)
	// the thread channel's topic names its parent
	assert.Contains(t, out, "Thread in #general")
	// the parent channel's members populate the NAMES burst
	assert.Contains(t, out, "alice bob")
	// the thread opener is replayed into the new channel
	assert.Contains(t, out, "the database is on fire")
}

func TestWithheldMessageKeepsCursor(t *testing.T) {
	ctx := testContext(t)
	ctx.Channels.Insert(memberChannel("C1", "general"))
	ctx.Part("#general")

	ev := slack.RTMEvent{Type: "message", Data: &slack.MessageEvent{
		Msg: slack.Msg{Type: "message", Channel: "C1", User: "U1", Text: "hi there", Timestamp: "1618247241.000700"},
	}}
	handleRTMEvent(ctx, nil, ev)
	// the cursor must stay behind so a later JOIN backfills this message
	assert.Equal(t, "", ctx.DeliveryCursor("C1"))
}

func TestIsDuplicateReactionError(t *testing.T) {
	assert.True(t, isDuplicateReactionError(errors.New("already_reacted")))
	assert.True(t, isDuplicateReactionError(errors.New("already reacted")))
	assert.True(t, isDuplicateReactionError(errors.New("duplicate_reaction")))
	assert.True(t, isDuplicateReactionError(errors.New("too_many_reactions")))
	assert.False(t, isDuplicateReactionError(errors.New("invalid_auth")))
	assert.False(t, isDuplicateReactionError(errors.New("channel_not_found")))
}
