package ircslack

import (
	"fmt"
	"hash/crc32"
	"strings"
	"sync"
)

// Thread identifies a Slack thread: the parent room and the timestamp of
// the message that opened it.
type Thread struct {
	ChannelID string
	ThreadTS  string
	// IRCName is the synthetic channel the thread is shown as.
	IRCName string
}

// Threads maps synthetic IRC channel names to Slack threads. A thread
// channel exists only once a message of that thread has been observed, so
// posting to a name not in this map is rejected. The left set remembers
// threads the user parted; those are not auto-joined again.
type Threads struct {
	mu     sync.Mutex
	byName map[string]*Thread
	byKey  map[string]*Thread // "channelID:threadTS"
	left   map[string]bool
}

// NewThreads creates an empty thread registry.
func NewThreads() *Threads {
	return &Threads{
		byName: make(map[string]*Thread),
		byKey:  make(map[string]*Thread),
		left:   make(map[string]bool),
	}
}

func threadKey(channelID, threadTS string) string {
	return channelID + ":" + threadTS
}

// ThreadChannelName builds the synthetic channel name for a thread in the
// given parent channel. The timestamp is compressed to a short hash so
// the name stays within IRC limits.
func ThreadChannelName(parentIRCName, threadTS string) string {
	h := crc32.ChecksumIEEE([]byte(threadTS))
	return fmt.Sprintf("%s-0x%08x", parentIRCName, h)
}

// Observe registers a thread, assigning it a collision-free synthetic
// channel name, and returns it. Calling it again for the same thread
// returns the already-registered entry.
func (t *Threads) Observe(channelID, threadTS, parentIRCName string) *Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := threadKey(channelID, threadTS)
	if th, ok := t.byKey[key]; ok {
		return th
	}
	name := ThreadChannelName(parentIRCName, threadTS)
	// hash collisions within a session get a numeric suffix
	for n := 2; ; n++ {
		if _, taken := t.byName[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s-%d", ThreadChannelName(parentIRCName, threadTS), n)
	}
	th := &Thread{ChannelID: channelID, ThreadTS: threadTS, IRCName: name}
	t.byName[name] = th
	t.byKey[key] = th
	return th
}

// ByName returns the thread shown as the given IRC channel name, or nil.
func (t *Threads) ByName(name string) *Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byName[name]
}

// ByKey returns the registered thread for (channelID, threadTS), or nil.
func (t *Threads) ByKey(channelID, threadTS string) *Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byKey[threadKey(channelID, threadTS)]
}

// Leave marks a thread channel as parted on IRC. The Slack subscription
// is unaffected; the thread is just not auto-joined any more.
func (t *Threads) Leave(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.left[name] = true
}

// Rejoin clears the parted mark, e.g. after an explicit /join or a
// mention of the attached user.
func (t *Threads) Rejoin(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.left, name)
}

// IsLeft reports whether the thread channel was parted on IRC.
func (t *Threads) IsLeft(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.left[name]
}

// IsThreadName reports whether an IRC channel name looks like one of the
// synthetic thread channels of this session.
func (t *Threads) IsThreadName(name string) bool {
	if !strings.Contains(name, "-0x") {
		return false
	}
	return t.ByName(name) != nil
}
