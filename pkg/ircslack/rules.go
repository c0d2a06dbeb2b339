package ircslack

import (
	"math/rand"
	"sync"
	"time"
)

// RuleSweepInterval is how often expired annoy/autoreact rules are purged.
const RuleSweepInterval = 30 * time.Second

// annoyDebounce is the minimum gap between two typing responses to the
// same user.
const annoyDebounce = 3 * time.Second

// AnnoyRule mirrors a typing indicator back at a user until it expires.
type AnnoyRule struct {
	UserID string    `json:"user_id"`
	Nick   string    `json:"nick"`
	Expiry time.Time `json:"expiry"`

	lastFired time.Time
}

// AnnoyRules is the active annoy rule table, keyed by target user ID.
type AnnoyRules struct {
	mu    sync.Mutex
	rules map[string]*AnnoyRule
}

// NewAnnoyRules creates an empty annoy table.
func NewAnnoyRules() *AnnoyRules {
	return &AnnoyRules{rules: make(map[string]*AnnoyRule)}
}

// Add installs or refreshes a rule for the given user.
func (a *AnnoyRules) Add(userID, nick string, duration time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules[userID] = &AnnoyRule{
		UserID: userID,
		Nick:   nick,
		Expiry: time.Now().Add(duration),
	}
}

// Drop removes the rule for the given user, reporting whether one existed.
func (a *AnnoyRules) Drop(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.rules[userID]; !ok {
		return false
	}
	delete(a.rules, userID)
	return true
}

// ShouldFire reports whether a typing event from userID must be answered
// now. It enforces both the expiry and the per-user debounce, and records
// the firing time.
func (a *AnnoyRules) ShouldFire(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.rules[userID]
	if !ok {
		return false
	}
	now := time.Now()
	if now.After(r.Expiry) {
		delete(a.rules, userID)
		return false
	}
	if now.Sub(r.lastFired) < annoyDebounce {
		return false
	}
	r.lastFired = now
	return true
}

// List returns a snapshot of the active rules.
func (a *AnnoyRules) List() []AnnoyRule {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AnnoyRule, 0, len(a.rules))
	for _, r := range a.rules {
		out = append(out, *r)
	}
	return out
}

// Load replaces the table with saved rules, dropping already-expired ones.
func (a *AnnoyRules) Load(rules []AnnoyRule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = make(map[string]*AnnoyRule, len(rules))
	now := time.Now()
	for _, r := range rules {
		if now.After(r.Expiry) {
			continue
		}
		rr := r
		a.rules[r.UserID] = &rr
	}
}

// Sweep removes expired rules and reports how many were dropped.
func (a *AnnoyRules) Sweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	dropped := 0
	for id, r := range a.rules {
		if now.After(r.Expiry) {
			delete(a.rules, id)
			dropped++
		}
	}
	return dropped
}

// AutoreactRule posts a reaction to messages from a user, optionally only
// in one room, with the given probability.
type AutoreactRule struct {
	UserID      string    `json:"user_id"`
	Nick        string    `json:"nick"`
	ChannelID   string    `json:"channel_id,omitempty"`
	Probability float64   `json:"probability"`
	Reaction    string    `json:"reaction"`
	Expiry      time.Time `json:"expiry"`
}

// AutoreactRules is the active autoreact table, keyed by target user ID.
type AutoreactRules struct {
	mu    sync.Mutex
	rules map[string][]AutoreactRule
	// rand is swappable for deterministic tests
	rand func() float64
}

// NewAutoreactRules creates an empty autoreact table.
func NewAutoreactRules() *AutoreactRules {
	return &AutoreactRules{
		rules: make(map[string][]AutoreactRule),
		rand:  rand.Float64,
	}
}

// Add appends a rule for the given user.
func (a *AutoreactRules) Add(r AutoreactRule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules[r.UserID] = append(a.rules[r.UserID], r)
}

// Drop removes all rules for the given user, reporting whether any existed.
func (a *AutoreactRules) Drop(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.rules[userID]; !ok {
		return false
	}
	delete(a.rules, userID)
	return true
}

// Match evaluates the rules for a message from userID in channelID and
// returns the reactions to post. Expired rules are pruned on the way.
func (a *AutoreactRules) Match(userID, channelID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	rules, ok := a.rules[userID]
	if !ok {
		return nil
	}
	now := time.Now()
	var (
		kept      []AutoreactRule
		reactions []string
	)
	for _, r := range rules {
		if now.After(r.Expiry) {
			continue
		}
		kept = append(kept, r)
		if r.ChannelID != "" && r.ChannelID != channelID {
			continue
		}
		if a.rand() <= r.Probability {
			reactions = append(reactions, r.Reaction)
		}
	}
	if len(kept) == 0 {
		delete(a.rules, userID)
	} else {
		a.rules[userID] = kept
	}
	return reactions
}

// List returns a snapshot of the active rules.
func (a *AutoreactRules) List() []AutoreactRule {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []AutoreactRule
	for _, rules := range a.rules {
		out = append(out, rules...)
	}
	return out
}

// Load replaces the table with saved rules, dropping already-expired ones.
func (a *AutoreactRules) Load(rules []AutoreactRule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = make(map[string][]AutoreactRule)
	now := time.Now()
	for _, r := range rules {
		if now.After(r.Expiry) {
			continue
		}
		a.rules[r.UserID] = append(a.rules[r.UserID], r)
	}
}

// Sweep removes expired rules and reports how many were dropped.
func (a *AutoreactRules) Sweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	dropped := 0
	for id, rules := range a.rules {
		var kept []AutoreactRule
		for _, r := range rules {
			if now.After(r.Expiry) {
				dropped++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(a.rules, id)
		} else {
			a.rules[id] = kept
		}
	}
	return dropped
}
