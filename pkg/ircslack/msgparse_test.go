package ircslack

import (
	"strings"
	"testing"

	"github.com/kyokomi/emoji/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRenderEnv() *RenderEnv {
	return &RenderEnv{
		SelfNick: "insomniac",
		UserNick: func(id string) (string, bool) {
			switch id {
			case "U1":
				return "alice", true
			case "U2":
				return "bob", true
			}
			return "", false
		},
		ChannelName: func(id string) (string, bool) {
			if id == "C1" {
				return "general", true
			}
			return "", false
		},
	}
}

func render(t *testing.T, msg string, env *RenderEnv) string {
	t.Helper()
	return RenderSpans(Parse(msg), env)
}

func TestParsePlainText(t *testing.T) {
	spans := Parse("hello world")
	require.Equal(t, 1, len(spans))
	assert.Equal(t, SpanText, spans[0].Kind)
	assert.Equal(t, "hello world", spans[0].Text)
}

func TestParseEntities(t *testing.T) {
	assert.Equal(t, "a < b && c > d", render(t, "a &lt; b &amp;&amp; c &gt; d", testRenderEnv()))
}

func TestRenderMention(t *testing.T) {
	env := testRenderEnv()
	assert.Equal(t, "hey alice, ping", render(t, "hey <@U1>, ping", env))

	// members of the destination channel get an @ so clients highlight
	env.InDestChannel = func(nick string) bool { return nick == "alice" }
	assert.Equal(t, "hey @alice, ping", render(t, "hey <@U1>, ping", env))

	// unknown mentions fall back to the label, then the raw id
	assert.Equal(t, "hey dave", render(t, "hey <@U9|dave>", env))
	assert.Equal(t, "hey U9", render(t, "hey <@U9>", env))
}

func TestRenderChannelMention(t *testing.T) {
	env := testRenderEnv()
	assert.Equal(t, "see #general please", render(t, "see <#C1|general> please", env))
	assert.Equal(t, "see #C9", render(t, "see <#C9>", env))
}

func TestRenderYell(t *testing.T) {
	env := testRenderEnv()
	assert.Equal(t, "@here [insomniac] meeting", render(t, "<!here> meeting", env))
	assert.Equal(t, "@channel [insomniac]", render(t, "<!channel>", env))

	env.SilencedYeller = true
	assert.Equal(t, "yelling here meeting", render(t, "<!here> meeting", env))
	assert.Equal(t, "yelling channel", render(t, "<!channel>", env))
}

func TestRenderSubteamMention(t *testing.T) {
	env := testRenderEnv()
	assert.Equal(t, "@oncall [insomniac]", render(t, "<!subteam^S123|oncall>", env))
}

func TestRenderLink(t *testing.T) {
	env := testRenderEnv()
	assert.Equal(t, "https://example.com", render(t, "<https://example.com>", env))
	// a label that repeats the URL adds nothing
	assert.Equal(t, "https://example.com", render(t, "<https://example.com|https://example.com>", env))
	assert.Equal(t, "https://example.com/", render(t, "<https://example.com/|https://example.com>", env))
	// a text label is kept alongside the URL
	assert.Equal(t, "docs (https://example.com)", render(t, "<https://example.com|docs>", env))
	// a label that is itself a different URL is demoted
	assert.Equal(t, "LINK (https://a.example)", render(t, "<https://a.example|https://b.example>", env))
}

func TestRenderEmoji(t *testing.T) {
	env := testRenderEnv()
	want := emoji.CodeMap()[":smile:"]
	require.NotEmpty(t, want)
	assert.Equal(t, "hi "+want, render(t, "hi :smile:", env))
	// unknown shortcodes pass through untouched
	assert.Equal(t, "hi :not_an_emoji_xyz:", render(t, "hi :not_an_emoji_xyz:", env))
	// colons in times are not shortcodes
	assert.Equal(t, "at 12:30 then", render(t, "at 12:30 then", env))
}

func TestRenderPreformatted(t *testing.T) {
	env := testRenderEnv()
	out := render(t, "look: ```a < b```", env)
	assert.Equal(t, "look: ```a < b```", out)
}

func TestRenderPreformattedLinkFlattened(t *testing.T) {
	env := testRenderEnv()
	out := render(t, "```curl <https://example.com|example.com>```", env)
	assert.Equal(t, "```curl example.com```", out)
}

func TestRenderPreformattedOverflow(t *testing.T) {
	env := testRenderEnv()
	env.FormattedMaxLines = 2
	env.SaveOverflow = func(text string) (string, error) {
		assert.True(t, strings.Contains(text, "line3"))
		return "/tmp/pre-123.txt", nil
	}
	out := render(t, "```line1\nline2\nline3\nline4```", env)
	assert.Contains(t, out, "=== preformatted text at /tmp/pre-123.txt")
	assert.NotContains(t, out, "line2")
}

func testSlackEnv() *SlackEnv {
	return &SlackEnv{
		UserID: func(nick string) (string, bool) {
			switch nick {
			case "alice":
				return "U1", true
			case "bob":
				return "U2", true
			}
			return "", false
		},
		ChannelID: func(name string) (string, bool) {
			if name == "general" {
				return "C1", true
			}
			return "", false
		},
	}
}

func TestToSlackMention(t *testing.T) {
	env := testSlackEnv()
	assert.Equal(t, "hey <@U1> ping", ToSlack("hey @alice ping", env))
	assert.Equal(t, "<@U1>: ping", ToSlack("alice: ping", env))
	assert.Equal(t, "hey <@U1>", ToSlack("hey alice", env))
	// unknown nicks pass through
	assert.Equal(t, "hey @mallory", ToSlack("hey @mallory", env))
}

func TestToSlackChannel(t *testing.T) {
	env := testSlackEnv()
	assert.Equal(t, "see <#C1|general>", ToSlack("see #general", env))
	assert.Equal(t, "see #nosuch", ToSlack("see #nosuch", env))
}

func TestToSlackYell(t *testing.T) {
	env := testSlackEnv()
	assert.Equal(t, "<!here> now", ToSlack("@here now", env))
	assert.Equal(t, "<!channel> now", ToSlack("@channel now", env))
	assert.Equal(t, "<!everyone> now", ToSlack("@everyone now", env))
}

func TestToSlackEscaping(t *testing.T) {
	env := testSlackEnv()
	assert.Equal(t, "a &lt; b &amp; c &gt; d", ToSlack("a < b & c > d", env))
}
