package ircslack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnoyRulesFireAndDebounce(t *testing.T) {
	rules := NewAnnoyRules()
	rules.Add("U1", "alice", time.Minute)

	assert.True(t, rules.ShouldFire("U1"))
	// a second typing burst within the debounce window is ignored
	assert.False(t, rules.ShouldFire("U1"))
	assert.False(t, rules.ShouldFire("U2"))
}

func TestAnnoyRulesExpiry(t *testing.T) {
	rules := NewAnnoyRules()
	rules.Add("U1", "alice", -time.Second)
	assert.False(t, rules.ShouldFire("U1"))
	// the expired rule is dropped on the first check
	assert.Empty(t, rules.List())
}

func TestAnnoyRulesDrop(t *testing.T) {
	rules := NewAnnoyRules()
	rules.Add("U1", "alice", time.Minute)
	assert.True(t, rules.Drop("U1"))
	assert.False(t, rules.Drop("U1"))
	assert.False(t, rules.ShouldFire("U1"))
}

func TestAnnoyRulesLoadSkipsExpired(t *testing.T) {
	rules := NewAnnoyRules()
	rules.Load([]AnnoyRule{
		{UserID: "U1", Nick: "alice", Expiry: time.Now().Add(time.Minute)},
		{UserID: "U2", Nick: "bob", Expiry: time.Now().Add(-time.Minute)},
	})
	list := rules.List()
	require.Equal(t, 1, len(list))
	assert.Equal(t, "U1", list[0].UserID)
}

func TestAnnoyRulesSweep(t *testing.T) {
	rules := NewAnnoyRules()
	rules.Add("U1", "alice", time.Minute)
	rules.Add("U2", "bob", -time.Second)
	assert.Equal(t, 1, rules.Sweep())
	assert.Equal(t, 1, len(rules.List()))
}

func TestAutoreactRulesMatch(t *testing.T) {
	rules := NewAutoreactRules()
	rules.rand = func() float64 { return 0 }
	rules.Add(AutoreactRule{
		UserID:      "U1",
		Nick:        "alice",
		Probability: 0.5,
		Reaction:    "thumbsup",
		Expiry:      time.Now().Add(time.Minute),
	})

	assert.Equal(t, []string{"thumbsup"}, rules.Match("U1", "C1"))
	assert.Nil(t, rules.Match("U2", "C1"))

	// an unlucky roll posts nothing
	rules.rand = func() float64 { return 0.9 }
	assert.Nil(t, rules.Match("U1", "C1"))
}

func TestAutoreactRulesChannelScope(t *testing.T) {
	rules := NewAutoreactRules()
	rules.rand = func() float64 { return 0 }
	rules.Add(AutoreactRule{
		UserID:      "U1",
		Nick:        "alice",
		ChannelID:   "C1",
		Probability: 1,
		Reaction:    "eyes",
		Expiry:      time.Now().Add(time.Minute),
	})

	assert.Equal(t, []string{"eyes"}, rules.Match("U1", "C1"))
	assert.Nil(t, rules.Match("U1", "C2"))
}

func TestAutoreactRulesExpiry(t *testing.T) {
	rules := NewAutoreactRules()
	rules.rand = func() float64 { return 0 }
	rules.Add(AutoreactRule{
		UserID:      "U1",
		Nick:        "alice",
		Probability: 1,
		Reaction:    "eyes",
		Expiry:      time.Now().Add(-time.Minute),
	})
	assert.Nil(t, rules.Match("U1", "C1"))
	assert.Empty(t, rules.List())
}

func TestAutoreactRulesMultiple(t *testing.T) {
	rules := NewAutoreactRules()
	rules.rand = func() float64 { return 0 }
	rules.Add(AutoreactRule{UserID: "U1", Probability: 1, Reaction: "eyes", Expiry: time.Now().Add(time.Minute)})
	rules.Add(AutoreactRule{UserID: "U1", Probability: 1, Reaction: "tada", Expiry: time.Now().Add(time.Minute)})
	assert.Equal(t, []string{"eyes", "tada"}, rules.Match("U1", "C1"))

	assert.True(t, rules.Drop("U1"))
	assert.Nil(t, rules.Match("U1", "C1"))
}

func TestAutoreactRulesSweep(t *testing.T) {
	rules := NewAutoreactRules()
	rules.Add(AutoreactRule{UserID: "U1", Probability: 1, Reaction: "eyes", Expiry: time.Now().Add(time.Minute)})
	rules.Add(AutoreactRule{UserID: "U1", Probability: 1, Reaction: "tada", Expiry: time.Now().Add(-time.Minute)})
	rules.Add(AutoreactRule{UserID: "U2", Probability: 1, Reaction: "wave", Expiry: time.Now().Add(-time.Minute)})
	assert.Equal(t, 2, rules.Sweep())
	assert.Equal(t, 1, len(rules.List()))
}
