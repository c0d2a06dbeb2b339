package ircslack

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
)

// SlackPostMessage represents a message sent to the Slack API.
type SlackPostMessage struct {
	Target   string
	TargetTs string
	Text     string
}

// IrcContext holds the client context information.
type IrcContext struct {
	Conn net.Conn
	User *slack.User
	// RealName is whatever the client put in the USER command.
	RealName         string
	OrigName         string
	SlackClient      *slack.Client
	SlackRTM         *slack.RTM
	SlackAPIKey      string
	SlackCookie      string
	SlackConnected   bool
	ServerName       string
	IsAuthenticating bool
	Config           *Config
	Channels         *Channels
	Users            *Users
	Threads          *Threads
	ChunkSize        int
	FileHandler      *FileHandler
	Status           *Status
	postMessage      chan SlackPostMessage
	postMessageQuit  chan struct{}

	// Away holds the away message set with the AWAY command, empty when
	// the user is back.
	awayMu  sync.Mutex
	awayMsg string

	// parted named channels the user left on IRC; events from those are
	// dropped until a rejoin.
	partedMu sync.Mutex
	parted   map[string]bool

	// delivered tracks the newest message timestamp delivered per room,
	// deduplicating the history backfill against live RTM events.
	deliveredMu sync.Mutex
	delivered   map[string]string

	// events arriving while the backfill is still running are held and
	// replayed afterwards.
	heldMu      sync.Mutex
	heldEvents  []slack.RTMEvent
	backfilling bool

	Annoy     *AnnoyRules
	Autoreact *AutoreactRules
}

// NewIrcContext creates a session context bound to one IRC connection.
func NewIrcContext(conn net.Conn, cfg *Config) *IrcContext {
	return &IrcContext{
		Conn:            conn,
		Config:          cfg,
		ServerName:      cfg.ServerName,
		ChunkSize:       cfg.ChunkSize,
		Channels:        NewChannels(cfg.Pagination),
		Users:           NewUsers(cfg.Pagination),
		Threads:         NewThreads(),
		postMessage:     make(chan SlackPostMessage),
		postMessageQuit: make(chan struct{}),
		parted:          make(map[string]bool),
		delivered:       make(map[string]string),
		Annoy:           NewAnnoyRules(),
		Autoreact:       NewAutoreactRules(),
	}
}

// Nick returns the nickname of the user. Before the Slack profile is
// known, the nick the client registered with is used.
func (ic *IrcContext) Nick() string {
	if ic.User == nil {
		if ic.OrigName != "" {
			return ic.OrigName
		}
		return "*"
	}
	return ic.User.Name
}

// UserName returns the user's name. Currently this is equivalent to the user's
// Slack ID.
func (ic *IrcContext) UserName() string {
	if ic.User == nil {
		return "<unknown>"
	}
	return ic.User.ID
}

// UserID returns the user's Slack ID.
func (ic *IrcContext) UserID() string {
	if ic.User == nil {
		return "<unknown>"
	}
	return ic.User.ID
}

// Mask returns the IRC mask for the current user.
func (ic *IrcContext) Mask() string {
	host := "localhost"
	if addr, ok := ic.Conn.RemoteAddr().(*net.TCPAddr); ok {
		host = addr.IP.String()
	}
	return fmt.Sprintf("%v!%v@%v", ic.Nick(), ic.UserName(), host)
}

// SetAway records the away message; empty marks the user back.
func (ic *IrcContext) SetAway(msg string) {
	ic.awayMu.Lock()
	ic.awayMsg = msg
	ic.awayMu.Unlock()
}

// AwayMessage returns the current away message, empty if not away.
func (ic *IrcContext) AwayMessage() string {
	ic.awayMu.Lock()
	defer ic.awayMu.Unlock()
	return ic.awayMsg
}

// Part marks a named channel as left on IRC. Slack membership is not
// touched for multi-party IMs and threads.
func (ic *IrcContext) Part(ircName string) {
	ic.partedMu.Lock()
	ic.parted[ircName] = true
	ic.partedMu.Unlock()
}

// Rejoin clears the parted mark for a channel.
func (ic *IrcContext) Rejoin(ircName string) {
	ic.partedMu.Lock()
	delete(ic.parted, ircName)
	ic.partedMu.Unlock()
}

// IsParted reports whether the channel was left on IRC.
func (ic *IrcContext) IsParted(ircName string) bool {
	ic.partedMu.Lock()
	defer ic.partedMu.Unlock()
	return ic.parted[ircName]
}

// tsLess compares two Slack timestamps ("1723640000.000100") numerically.
func tsLess(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return fa < fb
}

// MarkDelivered advances the per-room delivery cursor, and reports whether
// the message was new. A message at or before the cursor was already shown
// (typically by the history backfill) and must not be repeated.
func (ic *IrcContext) MarkDelivered(room, ts string) bool {
	if ts == "" {
		return true
	}
	ic.deliveredMu.Lock()
	defer ic.deliveredMu.Unlock()
	if last, ok := ic.delivered[room]; ok && !tsLess(last, ts) {
		return false
	}
	ic.delivered[room] = ts
	return true
}

// DeliveryCursors returns a copy of the per-room cursors, for persistence.
func (ic *IrcContext) DeliveryCursors() map[string]string {
	ic.deliveredMu.Lock()
	defer ic.deliveredMu.Unlock()
	out := make(map[string]string, len(ic.delivered))
	for k, v := range ic.delivered {
		out[k] = v
	}
	return out
}

// LoadDeliveryCursors seeds the cursors from a saved session.
func (ic *IrcContext) LoadDeliveryCursors(cursors map[string]string) {
	ic.deliveredMu.Lock()
	defer ic.deliveredMu.Unlock()
	for k, v := range cursors {
		ic.delivered[k] = v
	}
}

// DeliveryCursor returns the last delivered timestamp for a room, or "".
func (ic *IrcContext) DeliveryCursor(room string) string {
	ic.deliveredMu.Lock()
	defer ic.deliveredMu.Unlock()
	return ic.delivered[room]
}

// BeginBackfill switches the event handler into hold mode: live RTM events
// are queued until EndBackfill replays them.
func (ic *IrcContext) BeginBackfill() {
	ic.heldMu.Lock()
	ic.backfilling = true
	ic.heldMu.Unlock()
}

// HoldEvent queues an event during backfill. Returns false if no backfill
// is running and the event should be handled right away.
func (ic *IrcContext) HoldEvent(ev slack.RTMEvent) bool {
	ic.heldMu.Lock()
	defer ic.heldMu.Unlock()
	if !ic.backfilling {
		return false
	}
	ic.heldEvents = append(ic.heldEvents, ev)
	return true
}

// EndBackfill stops holding events and returns the queued ones for replay.
func (ic *IrcContext) EndBackfill() []slack.RTMEvent {
	ic.heldMu.Lock()
	defer ic.heldMu.Unlock()
	ic.backfilling = false
	held := ic.heldEvents
	ic.heldEvents = nil
	return held
}

// GetThreadOpener returns the first message of the thread the given
// timestamp belongs to.
func (ic *IrcContext) GetThreadOpener(channel string, threadTimestamp string) (slack.Message, error) {
	msgs, _, _, err := ic.SlackClient.GetConversationReplies(&slack.GetConversationRepliesParameters{
		ChannelID: channel,
		Timestamp: threadTimestamp,
	})
	if err != nil || len(msgs) == 0 {
		return slack.Message{}, err
	}
	return msgs[0], nil
}

// Start handles batching of messages to Slack. Consecutive lines to the
// same target within a second are merged in one chat.postMessage call.
func (ic *IrcContext) Start() {
	type buffered struct {
		text     string
		targetTs string
	}
	textBuffer := make(map[string]buffered)
	timer := time.NewTimer(time.Second)
	for {
		select {
		case message := <-ic.postMessage:
			log.Debugf("Got new message %v", message)
			key := message.Target + "\x00" + message.TargetTs
			buf := textBuffer[key]
			buf.text += message.Text + "\n"
			buf.targetTs = message.TargetTs
			textBuffer[key] = buf
			timer.Reset(time.Second)
		case <-timer.C:
			for key, buf := range textBuffer {
				target := strings.SplitN(key, "\x00", 2)[0]
				opts := []slack.MsgOption{
					slack.MsgOptionAsUser(true),
					slack.MsgOptionText(strings.TrimSpace(buf.text), false),
				}
				if buf.targetTs != "" {
					opts = append(opts, slack.MsgOptionTS(buf.targetTs))
				}
				if _, _, err := ic.SlackClient.PostMessage(target, opts...); err != nil {
					log.Warningf("Failed to post message to Slack to target %s: %v", target, err)
				}
			}
			textBuffer = make(map[string]buffered)
		case <-ic.postMessageQuit:
			return
		}
	}
}

// Stop terminates the message batching loop.
func (ic *IrcContext) Stop() {
	close(ic.postMessageQuit)
}

// PostTextMessage batches a message to be posted to Slack.
func (ic *IrcContext) PostTextMessage(target, text, targetTs string) {
	ic.postMessage <- SlackPostMessage{
		Target:   target,
		TargetTs: targetTs,
		Text:     text,
	}
}

// GetUserInfo returns a slack.User instance from a given user ID, or nil if
// no user with that ID was found. On a cache miss it refreshes from the
// API once.
func (ic *IrcContext) GetUserInfo(userID string) *slack.User {
	if u := ic.Users.ByID(userID); u != nil {
		return u
	}
	u, err := ic.Users.Refresh(ic.SlackClient, userID)
	if err != nil {
		log.Warningf("GetUserInfo: unknown user ID '%s': %v", userID, err)
		return nil
	}
	return u
}

// GetUserInfoByName returns a slack.User instance from a given user name, or
// nil if no user with that name was found.
func (ic *IrcContext) GetUserInfoByName(username string) *slack.User {
	u := ic.Users.ByName(username)
	if u == nil {
		log.Warningf("GetUserInfoByName: unknown user name '%s'", username)
	}
	return u
}

// GetConversationInfo returns the conversation with the given ID, using
// the channel cache and refreshing it on a miss.
func (ic *IrcContext) GetConversationInfo(conversation string) (*slack.Channel, error) {
	if ch := ic.Channels.ByID(conversation); ch != nil {
		sch := slack.Channel(*ch)
		return &sch, nil
	}
	ch, err := ic.Channels.Refresh(ic.SlackClient, conversation)
	if err != nil {
		return nil, err
	}
	sch := slack.Channel(*ch)
	return &sch, nil
}

// IRCNameForChannelID maps a Slack conversation ID to the IRC channel name
// it is presented as, or "" for one-to-one IMs and unknown IDs.
func (ic *IrcContext) IRCNameForChannelID(channelID string) string {
	ch := ic.Channels.ByID(channelID)
	if ch == nil {
		return ""
	}
	return ch.IRCName()
}

// ResolveRoom maps an IRC target (channel name with prefix, thread channel
// name, or bare nick) to the Slack conversation ID to post to, plus the
// thread timestamp for thread channels.
func (ic *IrcContext) ResolveRoom(target string) (channelID, threadTs string, err error) {
	if th := ic.Threads.ByName(target); th != nil {
		return th.ChannelID, th.ThreadTS, nil
	}
	if HasChannelPrefix(target) {
		ch := ic.Channels.ByName(target)
		if ch == nil {
			return "", "", fmt.Errorf("no such channel: %s", target)
		}
		return ch.ID, "", nil
	}
	// direct message: open (or reuse) the IM with that user
	user := ic.GetUserInfoByName(target)
	if user == nil {
		return "", "", fmt.Errorf("no such nick: %s", target)
	}
	imChannel, _, _, err := ic.SlackClient.OpenConversation(&slack.OpenConversationParameters{Users: []string{user.ID}, ReturnIM: true})
	if err != nil {
		return "", "", fmt.Errorf("cannot open IM with %s: %v", target, err)
	}
	return imChannel.ID, "", nil
}

// Maps of user contexts and nicknames
var (
	UserContexts = map[net.Addr]*IrcContext{}
)

// SendUnknownError sends an IRC 400 (ERR_UNKNOWNERROR) message to the client
// and prints a warning about it.
func (ic *IrcContext) SendUnknownError(fmtstr string, args ...interface{}) {
	msg := fmt.Sprintf(fmtstr, args...)
	log.Warningf("Sending ERR_UNKNOWNERROR (400) to client with message: %s", msg)
	if err := SendIrcNumeric(ic, 400, ic.Nick(), msg); err != nil {
		log.Warningf("Failed to send ERR_UNKNOWNERROR (400) to client: %v", err)
	}
}
