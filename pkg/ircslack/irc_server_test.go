package ircslack

import (
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitReplyNoChunking(t *testing.T) {
	chunks := SplitReply(":localhost 372 nick :", "short motd", 0)
	require.Equal(t, 1, len(chunks))
	assert.Equal(t, ":localhost 372 nick :short motd\r\n", chunks[0])
}

func TestSplitReplyShortMessage(t *testing.T) {
	chunks := SplitReply(":localhost 353 nick = #chan :", "alice bob", 512)
	require.Equal(t, 1, len(chunks))
	assert.Equal(t, ":localhost 353 nick = #chan :alice bob\r\n", chunks[0])
}

func TestSplitReplyLongMessage(t *testing.T) {
	preamble := ":localhost 353 nick = #chan :"
	var nicks []string
	for i := 0; i < 200; i++ {
		nicks = append(nicks, "verylongnickname")
	}
	msg := strings.Join(nicks, " ")
	chunks := SplitReply(preamble, msg, 512)
	require.Greater(t, len(chunks), 1)
	var got []string
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 512)
		assert.True(t, strings.HasPrefix(chunk, preamble))
		assert.True(t, strings.HasSuffix(chunk, "\r\n"))
		body := strings.TrimSuffix(strings.TrimPrefix(chunk, preamble), "\r\n")
		got = append(got, strings.Fields(body)...)
	}
	// no nick is lost in the chunking
	assert.Equal(t, nicks, got)
}

func TestJoinChannelsAutojoinDisabled(t *testing.T) {
	ctx, output := testContextDraining(t)
	ctx.Config.AutoJoin = false
	ctx.Channels.Insert(memberChannel("C1", "general"))

	require.NoError(t, joinChannels(ctx))
	// the channel stays hidden until an explicit JOIN
	assert.True(t, ctx.IsParted("#general"))
	assert.NotContains(t, output(), "JOIN")
}

func TestJoinReplaysWithheldHistory(t *testing.T) {
	ctx, output := testContextDraining(t)
	ctx.SlackClient = slack.New("test-token", slack.OptionHTTPClient(fakeSlackHTTPClientConvo{}))
	ctx.Users.Insert(slack.User{ID: "U1", Name: "alice"})
	ctx.Users.Insert(slack.User{ID: "U2", Name: "bob"})
	ctx.Channels.Insert(memberChannel("C1", "general"))
	ctx.Part("#general")

	IrcJoinHandler(ctx, "", "JOIN", []string{"#general"}, "")
	assert.False(t, ctx.IsParted("#general"))

	out := output()
	assert.Contains(t, out, "JOIN #general")
	// the message received while the channel was hidden arrives now
	assert.Contains(t, out, "missed while hidden")
	assert.Equal(t, "1618247300.000100", ctx.DeliveryCursor("C1"))
}

func TestPasswordToTokenAndCookie(t *testing.T) {
	token, cookie, err := passwordToTokenAndCookie("xoxp-123")
	require.NoError(t, err)
	assert.Equal(t, "xoxp-123", token)
	assert.Equal(t, "", cookie)

	token, cookie, err = passwordToTokenAndCookie("xoxc-123|d=abc;")
	require.NoError(t, err)
	assert.Equal(t, "xoxc-123", token)
	assert.Equal(t, "d=abc;", cookie)

	_, _, err = passwordToTokenAndCookie("xoxp-123|d=abc;")
	assert.Error(t, err)

	_, _, err = passwordToTokenAndCookie("xoxc-123|")
	assert.Error(t, err)

	_, _, err = passwordToTokenAndCookie("xoxc-123|abc")
	assert.Error(t, err)

	_, _, err = passwordToTokenAndCookie("a|b|c")
	assert.Error(t, err)
}

func TestParseRuleDuration(t *testing.T) {
	assert.Equal(t, defaultRuleDuration, parseRuleDuration(""))
	assert.Equal(t, 5*time.Minute, parseRuleDuration("5"))
	assert.Equal(t, defaultRuleDuration, parseRuleDuration("abc"))
	assert.Equal(t, defaultRuleDuration, parseRuleDuration("-3"))
	assert.Equal(t, defaultRuleDuration, parseRuleDuration("0"))
}
