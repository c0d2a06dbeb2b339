package ircslack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadChannelName(t *testing.T) {
	name := ThreadChannelName("#general", "1618247241.000700")
	assert.True(t, strings.HasPrefix(name, "#general-0x"))
	// 8 hex digits after the 0x marker
	assert.Equal(t, len("#general")+len("-0x")+8, len(name))
	// same thread, same name
	assert.Equal(t, name, ThreadChannelName("#general", "1618247241.000700"))
	assert.NotEqual(t, name, ThreadChannelName("#general", "1618247241.000701"))
}

func TestThreadsObserve(t *testing.T) {
	threads := NewThreads()
	th := threads.Observe("C1", "1618247241.000700", "#general")
	require.NotNil(t, th)
	assert.Equal(t, "C1", th.ChannelID)
	assert.Equal(t, "1618247241.000700", th.ThreadTS)

	// observing the same thread again returns the same entry
	again := threads.Observe("C1", "1618247241.000700", "#general")
	assert.Equal(t, th, again)

	assert.Equal(t, th, threads.ByName(th.IRCName))
	assert.Equal(t, th, threads.ByKey("C1", "1618247241.000700"))
	assert.Nil(t, threads.ByKey("C1", "1618247241.000800"))
}

func TestThreadsLeaveRejoin(t *testing.T) {
	threads := NewThreads()
	th := threads.Observe("C1", "1618247241.000700", "#general")
	assert.False(t, threads.IsLeft(th.IRCName))

	threads.Leave(th.IRCName)
	assert.True(t, threads.IsLeft(th.IRCName))

	threads.Rejoin(th.IRCName)
	assert.False(t, threads.IsLeft(th.IRCName))
}

func TestThreadsIsThreadName(t *testing.T) {
	threads := NewThreads()
	th := threads.Observe("C1", "1618247241.000700", "#general")
	assert.True(t, threads.IsThreadName(th.IRCName))
	assert.False(t, threads.IsThreadName("#general"))
	assert.False(t, threads.IsThreadName("#general-0xdeadbeef"))
}
