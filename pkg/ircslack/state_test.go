package ircslack

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthPrefixedRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	in := map[string]string{"room": "1618247241.000700"}
	require.NoError(t, WriteLengthPrefixed(&buf, in))

	var out map[string]string
	require.NoError(t, ReadLengthPrefixed(&buf, &out))
	assert.Equal(t, in, out)
}

func TestLengthPrefixedOversized(t *testing.T) {
	// a corrupt header must not turn into a giant allocation
	buf := bytes.NewBuffer([]byte{0xff, 0xff, 0xff, 0xff})
	var out map[string]string
	err := ReadLengthPrefixed(buf, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length prefix too large")
}

func TestLengthPrefixedTruncated(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00, 0x00, 0x00, 0x10, 'x'})
	var out map[string]string
	assert.Error(t, ReadLengthPrefixed(buf, &out))
}

func TestStatusRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	status := NewStatus(path)

	doc := StatusDocument{
		Cursors: map[string]string{"C1": "1618247241.000700"},
		Annoy: []AnnoyRule{
			{UserID: "U1", Nick: "alice", Expiry: time.Now().Add(time.Hour).UTC()},
		},
		Autoreact: []AutoreactRule{
			{UserID: "U2", Nick: "bob", Probability: 0.5, Reaction: "eyes", Expiry: time.Now().Add(time.Hour).UTC()},
		},
		SilencedYellers: []string{"#loud"},
	}
	require.NoError(t, status.Save(&doc))

	loaded, err := status.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, StatusVersion, loaded.Version)
	assert.Equal(t, doc.Cursors, loaded.Cursors)
	require.Equal(t, 1, len(loaded.Annoy))
	assert.Equal(t, "U1", loaded.Annoy[0].UserID)
	require.Equal(t, 1, len(loaded.Autoreact))
	assert.Equal(t, "eyes", loaded.Autoreact[0].Reaction)
	assert.Equal(t, []string{"#loud"}, loaded.SilencedYellers)
}

func TestStatusLoadMissing(t *testing.T) {
	status := NewStatus(filepath.Join(t.TempDir(), "nope"))
	doc, err := status.Load()
	assert.NoError(t, err)
	assert.Nil(t, doc)
}

func TestStatusLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	require.NoError(t, os.WriteFile(path, []byte("not a status file"), 0o600))
	status := NewStatus(path)
	_, err := status.Load()
	assert.Error(t, err)
}

func TestStatusLoadWrongVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	var buf bytes.Buffer
	require.NoError(t, WriteLengthPrefixed(&buf, &StatusDocument{Version: StatusVersion + 1}))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	status := NewStatus(path)
	_, err := status.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported status file version")
}

func TestStatusDisabled(t *testing.T) {
	status := NewStatus("")
	assert.NoError(t, status.Save(&StatusDocument{}))
	doc, err := status.Load()
	assert.NoError(t, err)
	assert.Nil(t, doc)
}
