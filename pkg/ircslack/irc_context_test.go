package ircslack

import (
	"io"
	"net"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) *IrcContext {
	t.Helper()
	cfg := &Config{ServerName: "localhost", ChunkSize: 512}
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewIrcContext(server, cfg)
}

// testContextDraining returns a context whose IRC connection is read by a
// background goroutine, for tests that make the bridge write to the
// client. The returned function closes the connection and returns
// everything that was written.
func testContextDraining(t *testing.T) (*IrcContext, func() string) {
	t.Helper()
	cfg := &Config{ServerName: "localhost", ChunkSize: 512}
	client, server := net.Pipe()
	done := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(client)
		done <- string(b)
	}()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	ctx := NewIrcContext(server, cfg)
	return ctx, func() string {
		server.Close()
		return <-done
	}
}

func TestNick(t *testing.T) {
	ctx := testContext(t)
	assert.Equal(t, "*", ctx.Nick())

	ctx.OrigName = "pre-auth-nick"
	assert.Equal(t, "pre-auth-nick", ctx.Nick())

	ctx.User = &slack.User{ID: "U1", Name: "insomniac"}
	assert.Equal(t, "insomniac", ctx.Nick())
}

func TestMarkDelivered(t *testing.T) {
	ctx := testContext(t)

	assert.True(t, ctx.MarkDelivered("C1", "1618247241.000700"))
	// replaying the same or an older timestamp is rejected
	assert.False(t, ctx.MarkDelivered("C1", "1618247241.000700"))
	assert.False(t, ctx.MarkDelivered("C1", "1618247240.000100"))
	// newer timestamps advance the cursor
	assert.True(t, ctx.MarkDelivered("C1", "1618247242.000100"))
	assert.Equal(t, "1618247242.000100", ctx.DeliveryCursor("C1"))

	// rooms have independent cursors
	assert.True(t, ctx.MarkDelivered("C2", "1618247241.000700"))

	// events with no timestamp always pass
	assert.True(t, ctx.MarkDelivered("C1", ""))
}

func TestDeliveryCursorsRoundtrip(t *testing.T) {
	ctx := testContext(t)
	require.True(t, ctx.MarkDelivered("C1", "1618247241.000700"))
	cursors := ctx.DeliveryCursors()
	assert.Equal(t, map[string]string{"C1": "1618247241.000700"}, cursors)

	other := testContext(t)
	other.LoadDeliveryCursors(cursors)
	assert.False(t, other.MarkDelivered("C1", "1618247241.000700"))
	assert.True(t, other.MarkDelivered("C1", "1618247243.000000"))
}

func TestPartedRooms(t *testing.T) {
	ctx := testContext(t)
	assert.False(t, ctx.IsParted("#general"))
	ctx.Part("#general")
	assert.True(t, ctx.IsParted("#general"))
	ctx.Rejoin("#general")
	assert.False(t, ctx.IsParted("#general"))
}

func TestAwayMessage(t *testing.T) {
	ctx := testContext(t)
	assert.Equal(t, "", ctx.AwayMessage())
	ctx.SetAway("lunch")
	assert.Equal(t, "lunch", ctx.AwayMessage())
	ctx.SetAway("")
	assert.Equal(t, "", ctx.AwayMessage())
}

func TestHoldEvents(t *testing.T) {
	ctx := testContext(t)
	ev := slack.RTMEvent{Type: "message", Data: &slack.MessageEvent{}}

	// nothing is held outside a backfill
	assert.False(t, ctx.HoldEvent(ev))

	ctx.BeginBackfill()
	assert.True(t, ctx.HoldEvent(ev))
	assert.True(t, ctx.HoldEvent(ev))

	held := ctx.EndBackfill()
	assert.Equal(t, 2, len(held))
	// the backfill window is closed again
	assert.False(t, ctx.HoldEvent(ev))
	assert.Empty(t, ctx.EndBackfill())
}

func TestResolveRoomThreadAndChannel(t *testing.T) {
	ctx := testContext(t)
	ctx.Channels.Insert(Channel{
		GroupConversation: slack.GroupConversation{
			Conversation: slack.Conversation{ID: "C1"},
			Name:         "general",
		},
		IsChannel: true,
	})

	id, ts, err := ctx.ResolveRoom("#general")
	require.NoError(t, err)
	assert.Equal(t, "C1", id)
	assert.Equal(t, "", ts)

	th := ctx.Threads.Observe("C1", "1618247241.000700", "#general")
	id, ts, err = ctx.ResolveRoom(th.IRCName)
	require.NoError(t, err)
	assert.Equal(t, "C1", id)
	assert.Equal(t, "1618247241.000700", ts)

	_, _, err = ctx.ResolveRoom("#nosuch")
	assert.Error(t, err)
}
