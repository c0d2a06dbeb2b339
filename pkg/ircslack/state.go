package ircslack

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// StatusVersion is the schema version of the status file.
const StatusVersion = 1

// statusSaveTimeout bounds how long a save may block, so a slow disk can
// never hold up shutdown.
const statusSaveTimeout = time.Second

// StatusDocument is the persisted session state: delivery cursors and the
// rule tables, plus an echo of the configured silenced yellers for
// inspection with lsi-send get-config or a hex dump.
type StatusDocument struct {
	Version         int               `json:"version"`
	Cursors         map[string]string `json:"cursors"`
	Annoy           []AnnoyRule       `json:"annoy"`
	Autoreact       []AutoreactRule   `json:"autoreact"`
	SilencedYellers []string          `json:"silenced_yellers"`
}

// Status reads and writes the status file. The on-disk format is a 4-byte
// big-endian length followed by one JSON document, the same framing the
// control socket uses.
type Status struct {
	path string
	mu   sync.Mutex
}

// NewStatus creates a Status bound to the given path. An empty path
// disables persistence; Load and Save become no-ops.
func NewStatus(path string) *Status {
	return &Status{path: path}
}

// WriteLengthPrefixed writes one length-prefixed JSON document.
func WriteLengthPrefixed(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadLengthPrefixed reads one length-prefixed JSON document into v. The
// length is capped to keep a corrupt header from allocating gigabytes.
func ReadLengthPrefixed(r io.Reader, v interface{}) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > 16<<20 {
		return fmt.Errorf("length prefix too large: %d", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}

// Load reads the status file. Any failure is non-fatal: the error is
// returned for logging and the caller starts fresh.
func (s *Status) Load() (*StatusDocument, error) {
	if s.path == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var doc StatusDocument
	if err := ReadLengthPrefixed(f, &doc); err != nil {
		return nil, fmt.Errorf("corrupt status file %s: %v", s.path, err)
	}
	if doc.Version != StatusVersion {
		return nil, fmt.Errorf("unsupported status file version %d", doc.Version)
	}
	return &doc, nil
}

// Save writes the status file atomically via a temp file rename. It gives
// up after statusSaveTimeout and leaves the old file in place.
func (s *Status) Save(doc *StatusDocument) error {
	if s.path == "" {
		return nil
	}
	doc.Version = StatusVersion
	done := make(chan error, 1)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		var buf bytes.Buffer
		if err := WriteLengthPrefixed(&buf, doc); err != nil {
			done <- err
			return
		}
		tmp := s.path + ".tmp"
		if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
			done <- err
			return
		}
		done <- os.Rename(tmp, s.path)
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(statusSaveTimeout):
		return fmt.Errorf("timed out writing status file %s", s.path)
	}
}

// SaveFrom snapshots the context's cursors and rule tables and writes them
// out. Called on rule mutation and on clean shutdown.
func (s *Status) SaveFrom(ic *IrcContext) {
	if s == nil || s.path == "" {
		return
	}
	doc := StatusDocument{
		Cursors:         ic.DeliveryCursors(),
		Annoy:           ic.Annoy.List(),
		Autoreact:       ic.Autoreact.List(),
		SilencedYellers: ic.Config.SilencedYellers,
	}
	if err := s.Save(&doc); err != nil {
		log.Warningf("Failed to save status: %v", err)
	}
}

// RestoreTo loads the status file into the context. Best-effort.
func (s *Status) RestoreTo(ic *IrcContext) {
	if s == nil || s.path == "" {
		return
	}
	doc, err := s.Load()
	if err != nil {
		log.Warningf("Ignoring saved status: %v", err)
		return
	}
	if doc == nil {
		return
	}
	ic.LoadDeliveryCursors(doc.Cursors)
	ic.Annoy.Load(doc.Annoy)
	ic.Autoreact.Load(doc.Autoreact)
	log.Infof("Restored status: %d cursors, %d annoy rules, %d autoreact rules",
		len(doc.Cursors), len(doc.Annoy), len(doc.Autoreact))
}
