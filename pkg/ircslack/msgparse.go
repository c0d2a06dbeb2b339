package ircslack

import (
	"fmt"
	"html"
	"strings"

	"github.com/kyokomi/emoji/v2"
)

// SpanKind discriminates the typed spans produced by Parse.
type SpanKind int

// Span kinds. Slack wraps anything special in angle brackets; everything
// else is plain text, backtick code, or an emoji shortcode.
const (
	SpanText SpanKind = iota
	SpanMention
	SpanChannelMention
	SpanSpecial
	SpanLink
	SpanEmoji
	SpanPre
)

// Span is one element of a parsed Slack message.
type Span struct {
	Kind SpanKind
	// Text carries the literal text for SpanText, the code block body for
	// SpanPre and the shortcode (without colons) for SpanEmoji.
	Text string
	// Val is the id for mentions and channel mentions, the key for
	// specials (here/channel/everyone/subteam^ID) and the URL for links.
	Val string
	// Label is the optional human-readable part after the pipe.
	Label string
}

func unescapeEntities(s string) string {
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&lt;", "<")
	return s
}

func escapeEntities(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	return s
}

// preBlocks splits msg into alternating normal/preformatted chunks. The
// triple backticks are consumed. The boolean tells whether the chunk was
// inside a fence.
func preBlocks(msg string) []struct {
	Text string
	Pre  bool
} {
	var out []struct {
		Text string
		Pre  bool
	}
	pre := false
	for {
		idx := strings.Index(msg, "```")
		if idx < 0 {
			break
		}
		out = append(out, struct {
			Text string
			Pre  bool
		}{msg[:idx], pre})
		pre = !pre
		msg = msg[idx+3:]
	}
	out = append(out, struct {
		Text string
		Pre  bool
	}{msg, pre})
	return out
}

// parseAngle parses the contents of one <...> item, brackets excluded.
func parseAngle(body string) Span {
	val := body
	label := ""
	if sep := strings.Index(body, "|"); sep >= 0 {
		val = body[:sep]
		label = body[sep+1:]
	}
	switch {
	case strings.HasPrefix(val, "@"):
		return Span{Kind: SpanMention, Val: val[1:], Label: label}
	case strings.HasPrefix(val, "#"):
		return Span{Kind: SpanChannelMention, Val: val[1:], Label: label}
	case strings.HasPrefix(val, "!"):
		return Span{Kind: SpanSpecial, Val: val[1:], Label: label}
	default:
		return Span{Kind: SpanLink, Val: val, Label: label}
	}
}

// emitText appends txt to spans, splitting out :shortcode: emoji tokens.
func emitText(spans []Span, txt string) []Span {
	for {
		start := strings.Index(txt, ":")
		if start < 0 {
			break
		}
		rest := txt[start+1:]
		end := strings.Index(rest, ":")
		if end <= 0 {
			break
		}
		name := rest[:end]
		if !isEmojiName(name) {
			// Not a shortcode (e.g. a time like 12:30:45). Keep the
			// first colon as text and continue after it.
			spans = appendText(spans, txt[:start+1])
			txt = rest
			continue
		}
		spans = appendText(spans, txt[:start])
		spans = append(spans, Span{Kind: SpanEmoji, Text: name})
		txt = rest[end+1:]
	}
	return appendText(spans, txt)
}

func appendText(spans []Span, txt string) []Span {
	if txt == "" {
		return spans
	}
	if n := len(spans); n > 0 && spans[n-1].Kind == SpanText {
		spans[n-1].Text += txt
		return spans
	}
	return append(spans, Span{Kind: SpanText, Text: txt})
}

func isEmojiName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '+':
		default:
			return false
		}
	}
	return true
}

// Parse tokenizes Slack message markup into a flat span sequence. HTML
// entities are unescaped in text and pre spans; angle-bracket items are
// typed by their leading sigil; ``` fences become SpanPre.
func Parse(msg string) []Span {
	var spans []Span
	for _, blk := range preBlocks(msg) {
		if blk.Pre {
			// Links can show up inside fences when Slack linkifies
			// something like example.com; flatten them back to text.
			var b strings.Builder
			for _, part := range splitAngle(blk.Text) {
				if part.isTag {
					sp := parseAngle(part.text)
					if sp.Kind == SpanLink && sp.Label != "" {
						b.WriteString(sp.Label)
					} else if sp.Kind == SpanLink {
						b.WriteString(sp.Val)
					} else {
						b.WriteString("<" + part.text + ">")
					}
				} else {
					b.WriteString(part.text)
				}
			}
			spans = append(spans, Span{Kind: SpanPre, Text: unescapeEntities(b.String())})
			continue
		}
		for _, part := range splitAngle(blk.Text) {
			if part.isTag {
				spans = append(spans, parseAngle(part.text))
			} else {
				spans = emitText(spans, unescapeEntities(part.text))
			}
		}
	}
	return spans
}

type angleChunk struct {
	text  string
	isTag bool
}

// splitAngle yields alternating plain text and <...> bodies (brackets
// stripped). An unterminated < is treated as text.
func splitAngle(msg string) []angleChunk {
	var out []angleChunk
	for {
		begin := strings.Index(msg, "<")
		if begin < 0 {
			break
		}
		end := strings.Index(msg[begin:], ">")
		if end < 0 {
			break
		}
		if begin > 0 {
			out = append(out, angleChunk{text: msg[:begin]})
		}
		out = append(out, angleChunk{text: msg[begin+1 : begin+end], isTag: true})
		msg = msg[begin+end+1:]
	}
	if msg != "" {
		out = append(out, angleChunk{text: msg})
	}
	return out
}

// RenderEnv carries everything needed to turn a span sequence into IRC
// text for one specific delivery.
type RenderEnv struct {
	// SelfNick is the nick of the attached IRC client.
	SelfNick string
	// SilencedYeller is true when the sender or the delivering room is in
	// the silenced-yellers set.
	SilencedYeller bool
	// UserNick resolves a Slack user id to a nick.
	UserNick func(id string) (string, bool)
	// ChannelName resolves a Slack channel id to its name (no prefix).
	ChannelName func(id string) (string, bool)
	// InDestChannel reports whether the nick is a member of the IRC
	// channel this message is delivered to. Always false for queries.
	InDestChannel func(nick string) bool
	// FormattedMaxLines is the fence overflow threshold; 0 disables it.
	FormattedMaxLines int
	// SaveOverflow stores an oversized preformatted block and returns a
	// reference (path or URL) to deliver in its place.
	SaveOverflow func(text string) (string, error)
}

func renderMention(sp Span, env *RenderEnv) string {
	nick, ok := env.UserNick(sp.Val)
	if !ok {
		if sp.Label != "" {
			return sp.Label
		}
		return sp.Val
	}
	if env.InDestChannel != nil && env.InDestChannel(nick) {
		return "@" + nick
	}
	return nick
}

func renderSpecial(sp Span, env *RenderEnv) string {
	word := sp.Val
	if idx := strings.Index(word, "^"); idx >= 0 {
		// subteam^ID mentions carry the readable name in the label
		if sp.Label != "" {
			word = sp.Label
		} else {
			word = word[idx+1:]
		}
	}
	if env.SilencedYeller {
		return "yelling " + word
	}
	return fmt.Sprintf("@%s [%s]", word, env.SelfNick)
}

// renderLink renders a Slack link item. A label that just repeats the URL
// (possibly with a trailing slash either side) adds nothing and is dropped.
// A label that is itself a URL is Slack's usual URL-labelled-with-URL
// pattern; it is demoted behind a LINK marker. This mirrors the upstream
// string-prefix heuristic, quirks included.
func renderLink(sp Span) string {
	u, label := sp.Val, sp.Label
	if label == "" || label == u || label == u+"/" || u == label+"/" {
		return u
	}
	if strings.Contains(label, "://") {
		return fmt.Sprintf("LINK (%s)", u)
	}
	return fmt.Sprintf("%s (%s)", label, u)
}

func renderEmoji(name string) string {
	if uni, ok := emoji.CodeMap()[":"+name+":"]; ok {
		return uni
	}
	return ":" + name + ":"
}

// RenderSpans turns a parsed message into IRC-safe text.
func RenderSpans(spans []Span, env *RenderEnv) string {
	var b strings.Builder
	for _, sp := range spans {
		switch sp.Kind {
		case SpanText:
			b.WriteString(sp.Text)
		case SpanMention:
			b.WriteString(renderMention(sp, env))
		case SpanChannelMention:
			if name, ok := env.ChannelName(sp.Val); ok {
				b.WriteString("#" + name)
			} else {
				b.WriteString("#" + sp.Val)
			}
		case SpanSpecial:
			b.WriteString(renderSpecial(sp, env))
		case SpanLink:
			b.WriteString(renderLink(sp))
		case SpanEmoji:
			b.WriteString(renderEmoji(sp.Text))
		case SpanPre:
			if env.FormattedMaxLines > 0 && strings.Count(sp.Text, "\n") > env.FormattedMaxLines && env.SaveOverflow != nil {
				ref, err := env.SaveOverflow(sp.Text)
				if err == nil {
					fmt.Fprintf(&b, "\n=== preformatted text at %s\n", ref)
					continue
				}
				log.Warningf("Failed to store preformatted block: %v", err)
			}
			b.WriteString("```" + sp.Text + "```")
		}
	}
	return html.UnescapeString(b.String())
}

// SlackEnv resolves nicks and channel names for the IRC to Slack
// direction.
type SlackEnv struct {
	// UserID resolves a nick to a Slack user id.
	UserID func(nick string) (string, bool)
	// ChannelID resolves a channel name (no prefix) to its Slack id.
	ChannelID func(name string) (string, bool)
}

// ToSlack rewrites an outgoing IRC message into Slack markup: known
// "@nick" and "nick:" tokens become <@id>, "#name" becomes <#id|name>,
// the yell keywords become <!...> items, entities are escaped. Unknown
// tokens pass through untouched; Slack linkifies URLs on its own.
func ToSlack(text string, env *SlackEnv) string {
	text = escapeEntities(text)
	tokens := strings.Split(text, " ")
	for i, tok := range tokens {
		switch tok {
		case "@here":
			tokens[i] = "<!here>"
			continue
		case "@channel":
			tokens[i] = "<!channel>"
			continue
		case "@everyone":
			tokens[i] = "<!everyone>"
			continue
		}
		if strings.HasPrefix(tok, "#") && env.ChannelID != nil {
			if id, ok := env.ChannelID(tok[1:]); ok {
				tokens[i] = fmt.Sprintf("<#%s|%s>", id, tok[1:])
				continue
			}
		}
		if env.UserID == nil {
			continue
		}
		switch {
		case strings.HasPrefix(tok, "@"):
			if id, ok := env.UserID(tok[1:]); ok {
				tokens[i] = fmt.Sprintf("<@%s>", id)
			}
		case strings.HasSuffix(tok, ":"):
			if id, ok := env.UserID(tok[:len(tok)-1]); ok {
				tokens[i] = fmt.Sprintf("<@%s>:", id)
			}
		default:
			if id, ok := env.UserID(tok); ok {
				tokens[i] = fmt.Sprintf("<@%s>", id)
			}
		}
	}
	return strings.Join(tokens, " ")
}
