package ircslack

import (
	"fmt"
	"strings"
)

// EditWindow renders a word-level diff between the previous and the
// current text of an edited message. The output is the shortest
// contiguous changed window as "old → new", with one word of unchanged
// context on either side. Identical inputs yield the empty string.
func EditWindow(previous, current string) string {
	if previous == current {
		return ""
	}
	a := strings.Fields(previous)
	b := strings.Fields(current)

	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	oldPart := strings.Join(a[prefix:len(a)-suffix], " ")
	newPart := strings.Join(b[prefix:len(b)-suffix], " ")

	var sb strings.Builder
	if prefix > 0 {
		sb.WriteString(a[prefix-1] + " ")
	}
	fmt.Fprintf(&sb, "**%s → %s**", oldPart, newPart)
	if suffix > 0 {
		sb.WriteString(" " + a[len(a)-suffix])
	}
	return sb.String()
}
