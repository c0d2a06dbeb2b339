package ircslack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEditWindowSingleWord(t *testing.T) {
	out := EditWindow("the quick brown fox", "the quick red fox")
	assert.Equal(t, "quick **brown → red** fox", out)
}

func TestEditWindowIdentical(t *testing.T) {
	assert.Equal(t, "", EditWindow("same text", "same text"))
}

func TestEditWindowAllDifferent(t *testing.T) {
	assert.Equal(t, "**abc → xyz**", EditWindow("abc", "xyz"))
}

func TestEditWindowAppended(t *testing.T) {
	assert.Equal(t, "b ** → c**", EditWindow("a b", "a b c"))
}

func TestEditWindowRemoved(t *testing.T) {
	assert.Equal(t, "a **b → ** c", EditWindow("a b c", "a c"))
}

func TestEditWindowMultiWord(t *testing.T) {
	out := EditWindow("one two three four five", "one 2 3 four five")
	assert.Equal(t, "one **two three → 2 3** four", out)
}
