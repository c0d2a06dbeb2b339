package ircslack

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelsNewChannels(t *testing.T) {
	c := NewChannels(200)
	require.NotNil(t, c)
	assert.NotNil(t, c.channels)
	assert.Equal(t, 200, c.Pagination)
}

type fakeSlackHTTPClientChannels struct{}

func (c fakeSlackHTTPClientChannels) Do(req *http.Request) (*http.Response, error) {
	switch req.URL.Path {
	case "/api/conversations.list":
		// reply as per https://api.slack.com/methods/conversations.list
		data := []byte(`{"ok": true, "channels": [
			{"id": "C1234", "name": "general", "is_channel": true},
			{"id": "G5678", "name": "mpdm-insomniac--alice--bob-1", "is_mpim": true, "is_group": true},
			{"id": "D9012", "user": "UABCD", "is_im": true}
		], "response_metadata": {"next_cursor": ""}}`)
		return &http.Response{
			Status:     "200 OK",
			StatusCode: 200,
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Body:       io.NopCloser(bytes.NewBuffer(data)),
		}, nil
	default:
		return nil, fmt.Errorf("testing: http client URL not supported: %s", req.URL)
	}
}

func TestChannelsFetch(t *testing.T) {
	client := slack.New("test-token", slack.OptionHTTPClient(fakeSlackHTTPClientChannels{}))
	channels := NewChannels(200)
	err := channels.Fetch(client)
	require.NoError(t, err)
	assert.Equal(t, 3, channels.Count())
	assert.Equal(t, 1, channels.CountChannels())
}

func TestChannelsById(t *testing.T) {
	client := slack.New("test-token", slack.OptionHTTPClient(fakeSlackHTTPClientChannels{}))
	channels := NewChannels(200)
	err := channels.Fetch(client)
	require.NoError(t, err)
	c := channels.ByID("C1234")
	require.NotNil(t, c)
	assert.Equal(t, "C1234", c.ID)
	assert.Equal(t, "general", c.Name)
}

func TestChannelsByName(t *testing.T) {
	client := slack.New("test-token", slack.OptionHTTPClient(fakeSlackHTTPClientChannels{}))
	channels := NewChannels(200)
	err := channels.Fetch(client)
	require.NoError(t, err)
	c := channels.ByName("#general")
	require.NotNil(t, c)
	assert.Equal(t, "C1234", c.ID)

	// a bare name resolves too
	c = channels.ByName("general")
	require.NotNil(t, c)
	assert.Equal(t, "C1234", c.ID)

	// the multi-party IM is indexed under its synthetic name
	c = channels.ByName("&alice-bob-insomniac")
	require.NotNil(t, c)
	assert.Equal(t, "G5678", c.ID)

	// one-to-one IMs have no channel name
	assert.Nil(t, channels.ByName(""))
}

func TestChannelsInsertEvict(t *testing.T) {
	channels := NewChannels(0)
	channels.Insert(Channel{
		GroupConversation: slack.GroupConversation{
			Conversation: slack.Conversation{ID: "C1"},
			Name:         "random",
		},
		IsChannel: true,
	})
	require.NotNil(t, channels.ByName("#random"))

	// a rename must drop the old name index entry
	channels.Insert(Channel{
		GroupConversation: slack.GroupConversation{
			Conversation: slack.Conversation{ID: "C1"},
			Name:         "less-random",
		},
		IsChannel: true,
	})
	assert.Nil(t, channels.ByName("#random"))
	require.NotNil(t, channels.ByName("#less-random"))

	channels.Evict("C1")
	assert.Nil(t, channels.ByID("C1"))
	assert.Nil(t, channels.ByName("#less-random"))
	assert.Equal(t, 0, channels.Count())
}
