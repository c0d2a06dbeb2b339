package ircslack

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

// Project constants
const (
	ProjectName = "localslackirc"
	ProjectURL  = "https://github.com/insomniacslk/localslackirc"
)

// Defaults for the annoy/autoreact commands when no duration or reaction
// is given.
const (
	defaultRuleDuration = 10 * time.Minute
	defaultReaction     = "thumbsup"
)

// IrcCommandHandler is the prototype that every IRC command handler has to implement
type IrcCommandHandler func(*IrcContext, string, string, []string, string)

// IrcCommandHandlers maps each IRC command to its handler function
var IrcCommandHandlers = map[string]IrcCommandHandler{
	"CAP":           IrcCapHandler,
	"NICK":          IrcNickHandler,
	"USER":          IrcUserHandler,
	"PING":          IrcPingHandler,
	"PONG":          IrcPongHandler,
	"PRIVMSG":       IrcPrivMsgHandler,
	"NOTICE":        IrcPrivMsgHandler,
	"USERHOST":      IrcUserhostHandler,
	"QUIT":          IrcQuitHandler,
	"MODE":          IrcModeHandler,
	"PASS":          IrcPassHandler,
	"WHOIS":         IrcWhoisHandler,
	"WHO":           IrcWhoHandler,
	"JOIN":          IrcJoinHandler,
	"PART":          IrcPartHandler,
	"TOPIC":         IrcTopicHandler,
	"NAMES":         IrcNamesHandler,
	"LIST":          IrcListHandler,
	"AWAY":          IrcAwayHandler,
	"INVITE":        IrcInviteHandler,
	"KICK":          IrcKickHandler,
	"SENDFILE":      IrcSendfileHandler,
	"ANNOY":         IrcAnnoyHandler,
	"DROPANNOY":     IrcDropAnnoyHandler,
	"LISTANNOY":     IrcListAnnoyHandler,
	"AUTOREACT":     IrcAutoreactHandler,
	"DROPAUTOREACT": IrcDropAutoreactHandler,
	"LISTAUTOREACT": IrcListAutoreactHandler,
}

// IrcNumericsSafeToChunk is a list of IRC numeric replies that are safe
// to chunk. As per RFC2182, the maximum message size is 512, including
// newlines. Sending longer lines breaks some clients like ZNC.
// Being safe to split doesn't mean that it *will* be split. The actual
// behaviour depends on the IrcContext.ChunkSize value.
var IrcNumericsSafeToChunk = []int{
	// RPL_WHOREPLY
	352,
	// RPL_NAMREPLY
	353,
}

var rxSlackArchiveURL = regexp.MustCompile(`https?://[a-z0-9\-]+\.slack\.com/archives/([a-zA-Z0-9]+)/p([0-9]{10})([0-9]{6})`)

// ircRaw writes one raw IRC line, terminator included, to the client.
func ircRaw(ctx *IrcContext, msg string) {
	if _, err := ctx.Conn.Write([]byte(msg + "\r\n")); err != nil {
		log.Warningf("Failed to send IRC message: %v", err)
	}
}

// ircSend formats and writes one raw IRC line to the client.
func ircSend(ctx *IrcContext, format string, args ...interface{}) {
	ircRaw(ctx, fmt.Sprintf(format, args...))
}

// ircNotice sends a server NOTICE to the client. Used for the replies of
// the gateway's own commands (ANNOY, AUTOREACT, ...).
func ircNotice(ctx *IrcContext, format string, args ...interface{}) {
	ircSend(ctx, ":%s NOTICE %s :%s", ctx.ServerName, ctx.Nick(), fmt.Sprintf(format, args...))
}

// SplitReply will split a reply message if necessary. See
// IrcNumericsSafeToChunk for background on why splitting.
// The function will return a list of chunks to be sent separately.
// Any chunk size below 512 disables splitting.
func SplitReply(preamble, msg string, chunksize int) []string {
	if chunksize < 512 || chunksize >= len(preamble)+len(msg)+2 {
		// return the whole string as one chunk
		return []string{preamble + msg + "\r\n"}
	}
	log.Debugf("Splitting reply in %d-byte chunks", chunksize)
	// Splitting ignores multiple contiguous white-spaces. Squeezing
	// multiple contiguous spaces could render the final reply shorter
	// than the chunk size, but we don't care here.
	maxLen := chunksize - len(preamble) - 2
	lines := WordWrap(strings.Fields(msg), maxLen)
	reply := make([]string, len(lines))
	for idx, line := range lines {
		reply[idx] = preamble + line + "\r\n"
	}
	return reply
}

// SendIrcNumeric sends a numeric code message to the recipient
func SendIrcNumeric(ctx *IrcContext, code int, args, desc string) error {
	preamble := fmt.Sprintf(":%s %03d %s :", ctx.ServerName, code, args)
	chunks := SplitReply(preamble, desc, ctx.ChunkSize)
	for _, chunk := range chunks {
		log.Debugf("Sending numeric reply: %s", chunk)
		_, err := ctx.Conn.Write([]byte(chunk))
		if err != nil {
			return err
		}
	}
	return nil
}

// slackEnv builds the nick and channel resolvers for the IRC-to-Slack
// message translation.
func (ic *IrcContext) slackEnv() *SlackEnv {
	return &SlackEnv{
		UserID: func(nick string) (string, bool) {
			u := ic.Users.ByName(nick)
			if u == nil {
				return "", false
			}
			return u.ID, true
		},
		ChannelID: func(name string) (string, bool) {
			ch := ic.Channels.ByName(ChannelPrefixChannel + name)
			if ch == nil {
				return "", false
			}
			return ch.ID, true
		},
	}
}

// SendToTarget translates and posts a message to an IRC target: a
// channel, a multi-party IM, a thread channel, or a nick.
func (ic *IrcContext) SendToTarget(target, text string) error {
	if ic.SlackClient == nil {
		return errors.New("not connected to Slack")
	}
	channelID, threadTs, err := ic.ResolveRoom(target)
	if err != nil {
		return err
	}
	ic.PostTextMessage(channelID, ToSlack(text, ic.slackEnv()), threadTs)
	return nil
}

// SendFileToTarget uploads a local file to an IRC target. The upload runs
// detached so a multi-MB file does not stall the command loop; failures
// come back as an ERR_FILEERROR notice.
func (ic *IrcContext) SendFileToTarget(target, path string) error {
	if ic.SlackClient == nil {
		return errors.New("not connected to Slack")
	}
	channelID, threadTs, err := ic.ResolveRoom(target)
	if err != nil {
		return err
	}
	go func() {
		if err := ic.FileHandler.Upload(ic.SlackClient, channelID, threadTs, path); err != nil {
			log.Warningf("SENDFILE to %s failed: %v", target, err)
			// ERR_FILEERROR
			if err := SendIrcNumeric(ic, 424, ic.Nick(), fmt.Sprintf("File transfer to %s failed: %v", target, err)); err != nil {
				log.Warningf("Failed to send IRC message: %v", err)
			}
		}
	}()
	return nil
}

// IrcSendChanInfoAfterJoin sends channel information to the user about a joined
// channel.
func IrcSendChanInfoAfterJoin(ctx *IrcContext, ch *Channel, members []slack.User) {
	IrcSendChanInfoAfterJoinCustom(ctx, ch.IRCName(), ch.ID, ch.Purpose.Value, members)
}

// IrcSendChanInfoAfterJoinCustom sends channel information to the user about a joined
// channel. It can be used as an alternative to IrcSendChanInfoAfterJoin when
// you need to specify custom chan name, id, and topic.
func IrcSendChanInfoAfterJoinCustom(ctx *IrcContext, chanName, chanID, topic string, members []slack.User) {
	memberNames := make([]string, 0, len(members))
	for _, m := range members {
		if m.Deleted {
			continue
		}
		memberNames = append(memberNames, m.Name)
	}
	ircSend(ctx, ":%s JOIN %s", ctx.Mask(), chanName)
	// RPL_TOPIC
	if err := SendIrcNumeric(ctx, 332, fmt.Sprintf("%s %s", ctx.Nick(), chanName), topic); err != nil {
		log.Warningf("Failed to send IRC TOPIC message: %v", err)
	}
	// RPL_NAMREPLY
	if len(memberNames) > 0 {
		if err := SendIrcNumeric(ctx, 353, fmt.Sprintf("%s = %s", ctx.Nick(), chanName), strings.Join(memberNames, " ")); err != nil {
			log.Warningf("Failed to send IRC NAMREPLY message: %v", err)
		}
	}
	// RPL_ENDOFNAMES
	if err := SendIrcNumeric(ctx, 366, fmt.Sprintf("%s %s", ctx.Nick(), chanName), "End of NAMES list"); err != nil {
		log.Warningf("Failed to send IRC ENDOFNAMES message: %v", err)
	}
	log.Infof("Joined channel %s", chanName)
}

// joinChannel notifies the IRC client of a channel it is a member of on
// Slack, fetching the member list first.
func joinChannel(ctx *IrcContext, ch *Channel) error {
	log.Infof("%s topic=%s members=%d", ch.IRCName(), ch.Purpose.Value, ch.NumMembers)
	var members []slack.User
	if !ctx.Config.NoUserList {
		var err error
		members, err = ChannelMembers(ctx, ch.ID)
		if err != nil {
			jErr := fmt.Errorf("Failed to fetch users in channel `%s (channel ID: %s): %v", ch.Name, ch.ID, err)
			ctx.SendUnknownError(jErr.Error())
			return jErr
		}
	}
	IrcSendChanInfoAfterJoin(ctx, ch, members)
	return nil
}

// mpimHideDelay keeps stale multi-party IMs out of the autojoin. A
// conversation with no activity for this long stays hidden until it sees
// traffic again.
const mpimHideDelay = 50 * 24 * time.Hour

func mpimIsStale(ch *Channel) bool {
	var last string
	if ch.Latest != nil {
		last = ch.Latest.Timestamp
	} else if ch.LastRead != "" {
		last = ch.LastRead
	} else {
		return false
	}
	f, err := strconv.ParseFloat(last, 64)
	if err != nil {
		return false
	}
	return time.Since(time.Unix(int64(f), 0)) > mpimHideDelay
}

// joinChannels presents every Slack conversation the user is a member of
// as a joined IRC channel.
func joinChannels(ctx *IrcContext) error {
	for _, sch := range ctx.Channels.AsMap() {
		ch := sch
		switch {
		case ch.IsPublicChannel() || ch.IsPrivateChannel():
			if !ch.IsMember {
				continue
			}
		case ch.IsMP():
			if mpimIsStale(&ch) {
				log.Debugf("Hiding stale multi-party IM %s", ch.IRCName())
				continue
			}
		default:
			continue
		}
		name := ch.IRCName()
		if ctx.Config.IsIgnoredChannel(name) {
			log.Debugf("Ignoring channel %s per configuration", name)
			continue
		}
		if !ctx.Config.AutoJoin {
			// with autojoin off, conversations stay hidden until an
			// explicit JOIN; their cursor does not move so the missed
			// messages are replayed then
			log.Debugf("Autojoin disabled, hiding %s", name)
			ctx.Part(name)
			continue
		}
		if ctx.IsParted(name) {
			continue
		}
		if err := joinChannel(ctx, &ch); err != nil {
			return err
		}
	}
	return nil
}

// sendIrcWelcome completes IRC registration: welcome numerics, ISUPPORT
// and the MOTD. Sent before any Slack traffic, so the client sees a
// responsive server even while the websocket is still dialing.
func sendIrcWelcome(ctx *IrcContext) {
	nick := ctx.Nick()
	n := func(code int, args, desc string) {
		if err := SendIrcNumeric(ctx, code, args, desc); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
	}
	// RPL_WELCOME
	n(1, nick, fmt.Sprintf("Welcome to the %s IRC chat, %s!", ctx.ServerName, nick))
	// RPL_YOURHOST
	n(2, nick, fmt.Sprintf("Your host is %s, running %s", ctx.ServerName, ProjectName))
	// RPL_CREATED
	n(3, nick, "This server was created just for you")
	// RPL_MYINFO
	n(4, fmt.Sprintf("%s %s %s o o", nick, ctx.ServerName, ProjectName), "")
	// RPL_ISUPPORT
	n(5, fmt.Sprintf("%s CHANTYPES=%s NETWORK=Slack NICKLEN=50", nick, strings.Join(SupportedChannelPrefixes(), "")), "are supported by this server")
	// RPL_MOTDSTART
	n(375, nick, fmt.Sprintf("- %s Message of the day -", ctx.ServerName))
	n(372, nick, fmt.Sprintf("This is an IRC-to-Slack gateway. More information at %s.", ProjectURL))
	// RPL_ENDOFMOTD
	n(376, nick, "End of MOTD")
}

// IrcAfterLoggingIn is called once the Slack side of the session is up.
// IRC registration already happened; here the client learns its real
// Slack nick and gets joined to its conversations.
func IrcAfterLoggingIn(ctx *IrcContext, rtm *slack.RTM) error {
	if ctx.OrigName != ctx.Nick() {
		// Force the user into the Slack nick
		ircSend(ctx, ":%s NICK %s", ctx.OrigName, ctx.Nick())
	}
	// RPL_LUSERCLIENT
	if err := SendIrcNumeric(ctx, 251, ctx.Nick(), fmt.Sprintf("There are %d users and %d channels on 1 server", ctx.Users.Count(), ctx.Channels.CountChannels())); err != nil {
		log.Warningf("Failed to send IRC message: %v", err)
	}
	ircNotice(ctx, "Slack team name: %s", rtm.GetInfo().Team.Name)

	if err := joinChannels(ctx); err != nil {
		return err
	}

	rooms := backfillRooms(ctx)
	held := ctx.BackfillHistory(rooms, func(roomID string, msg slack.Message) {
		deliverHistoryMessage(ctx, roomID, msg)
	})
	go eventHandler(ctx, rtm)
	for _, ev := range held {
		handleRTMEvent(ctx, rtm, ev)
	}
	return nil
}

// replayRoomHistory delivers the messages a conversation accumulated
// while it was hidden, then replays any events held during the fetch.
func replayRoomHistory(ctx *IrcContext, roomID string) {
	held := ctx.BackfillHistory([]string{roomID}, func(id string, msg slack.Message) {
		deliverHistoryMessage(ctx, id, msg)
	})
	for _, ev := range held {
		handleRTMEvent(ctx, ctx.SlackRTM, ev)
	}
}

// backfillRooms lists the conversation IDs whose missed history must be
// replayed: joined channels, live multi-party IMs and one-to-one IMs.
func backfillRooms(ctx *IrcContext) []string {
	var rooms []string
	for id, sch := range ctx.Channels.AsMap() {
		ch := sch
		switch {
		case ch.IsPublicChannel() || ch.IsPrivateChannel():
			if !ch.IsMember {
				continue
			}
			name := ch.IRCName()
			if ctx.Config.IsIgnoredChannel(name) || ctx.IsParted(name) {
				continue
			}
		case ch.IsMP():
			if mpimIsStale(&ch) || ctx.IsParted(ch.IRCName()) {
				continue
			}
		case ch.IsIM:
			// always backfill direct messages
		default:
			continue
		}
		rooms = append(rooms, id)
	}
	return rooms
}

// IrcCapHandler is called when a CAP command is sent
func IrcCapHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) > 1 {
		if args[0] == "LS" {
			ircSend(ctx, ":%s CAP * LS :", ctx.ServerName)
		} else {
			log.Debugf("Got CAP %v", args)
		}
	}
}

// IrcPrivMsgHandler is called when a PRIVMSG command is sent
func IrcPrivMsgHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	var target, text string
	switch len(args) {
	case 1:
		target = args[0]
		text = trailing
	case 2:
		target = args[0]
		text = args[1]
	default:
		log.Warningf("Invalid number of parameters for PRIVMSG, want 1 or 2, got %d", len(args))
	}
	if target == "" || text == "" {
		log.Warningf("Invalid PRIVMSG command args: %v %v", args, trailing)
		return
	}
	if strings.HasPrefix(text, "\x01ACTION ") && strings.HasSuffix(text, "\x01") {
		// this is a MeMessage; strip off the ACTION and \x01 wrapper.
		// chat.meMessage needs a channel ID anyway, so emulate it with
		// italics through the regular send path.
		text = "_" + text[len("\x01ACTION "):len(text)-1] + "_"
	}
	if err := ctx.SendToTarget(target, text); err != nil {
		if HasChannelPrefix(target) {
			// ERR_NOSUCHCHANNEL
			if err := SendIrcNumeric(ctx, 403, fmt.Sprintf("%s %s", ctx.Nick(), target), "No such channel"); err != nil {
				log.Warningf("Failed to send IRC message: %v", err)
			}
			return
		}
		// ERR_NOSUCHNICK
		if err := SendIrcNumeric(ctx, 401, fmt.Sprintf("%s %s", ctx.Nick(), target), "No such nick/channel"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
	}
}

// wrapped logger that satisfies the slack.logger interface
type loggerWrapper struct {
	*logrus.Entry
}

func (l *loggerWrapper) Output(calldepth int, s string) error {
	l.Print(s)
	return nil
}

// custom HTTP client used to set the auth cookie if requested, and only over
// TLS.
type httpClient struct {
	c      http.Client
	cookie string
}

func (hc httpClient) Do(req *http.Request) (*http.Response, error) {
	if hc.cookie != "" {
		log.Debugf("Setting auth cookie")
		if strings.ToLower(req.URL.Scheme) == "https" {
			req.Header.Add("Cookie", hc.cookie)
		} else {
			log.Warning("Cookie is set but connection is not HTTPS, skipping")
		}
	}
	return hc.c.Do(req)
}

// passwordToTokenAndCookie parses the password specified by the user into a
// Slack token and optionally a cookie. Auth cookies can be specified by
// appending a "|" symbol and the auth cookie to the Slack token.
func passwordToTokenAndCookie(p string) (string, string, error) {
	parts := strings.Split(p, "|")

	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		if !strings.HasPrefix(parts[0], "xoxc-") {
			return "", "", errors.New("auth cookie is set, but token does not start with xoxc-")
		}
		if parts[1] == "" {
			return "", "", errors.New("auth cookie is empty")
		}
		if !strings.HasPrefix(parts[1], "d=") || !strings.HasSuffix(parts[1], ";") {
			return "", "", errors.New("auth cookie must have the format 'd=XXX;'")
		}
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("failed to parse password into token and cookie, got %d components, want 1 or 2", len(parts))
	}
}

func connectToSlack(ctx *IrcContext) error {
	token, cookie := ctx.SlackAPIKey, ctx.SlackCookie
	if cookie == "" && strings.Contains(token, "|") {
		var err error
		token, cookie, err = passwordToTokenAndCookie(token)
		if err != nil {
			return err
		}
	}
	if strings.HasPrefix(token, "xoxc-") && cookie == "" {
		return errors.New("xoxc- tokens require an auth cookie")
	}
	ctx.SlackClient = slack.New(
		token,
		slack.OptionDebug(ctx.Config.Debug),
		slack.OptionLog(&loggerWrapper{logger.GetLogger("slack-api")}),
		slack.OptionHTTPClient(&httpClient{cookie: cookie}),
	)
	rtm := ctx.SlackClient.NewRTM()
	ctx.SlackRTM = rtm
	go rtm.ManageConnection()
	log.Info("Starting Slack client")
	// Wait until the websocket is connected, then print client info
	var info *slack.Info
	timeout := 30 * time.Second
	start := time.Now()
	for {
		if info = rtm.GetInfo(); info != nil {
			break
		}
		if time.Now().After(start.Add(timeout)) {
			return fmt.Errorf("Connection to Slack timed out after %v", timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
	log.Infof("Connected to Slack team %s as %s", info.Team.Name, info.User.Name)
	// the users cache is not yet populated at this point, so we call the Slack
	// API directly.
	user, err := ctx.SlackClient.GetUserInfo(info.User.ID)
	if err != nil {
		return fmt.Errorf("Cannot get info for user %s (ID: %s): %v", info.User.Name, info.User.ID, err)
	}
	ctx.User = user
	ctx.RealName = user.RealName
	if _, err := ctx.Users.Fetch(ctx.SlackClient); err != nil {
		return fmt.Errorf("Failed to fetch users: %v", err)
	}
	if err := ctx.Channels.Fetch(ctx.SlackClient); err != nil {
		return fmt.Errorf("Failed to fetch conversations: %v", err)
	}
	ctx.Status.RestoreTo(ctx)
	go ctx.Start()
	go ruleSweeper(ctx)
	return IrcAfterLoggingIn(ctx, rtm)
}

// ruleSweeper periodically drops expired annoy/autoreact rules.
func ruleSweeper(ctx *IrcContext) {
	ticker := time.NewTicker(RuleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := ctx.Annoy.Sweep() + ctx.Autoreact.Sweep(); n > 0 {
				log.Debugf("Expired %d annoy/autoreact rules", n)
				ctx.Status.SaveFrom(ctx)
			}
		case <-ctx.postMessageQuit:
			return
		}
	}
}

// maybeStartSession connects to Slack once NICK and USER have been seen.
// The IRC registration burst goes out first, so no Slack traffic ever
// precedes the welcome.
func maybeStartSession(ctx *IrcContext) {
	if ctx.SlackClient != nil || ctx.IsAuthenticating {
		return
	}
	if ctx.OrigName == "" || ctx.RealName == "" {
		return
	}
	if ctx.SlackAPIKey == "" {
		ctx.SlackAPIKey = ctx.Config.Token
		ctx.SlackCookie = ctx.Config.Cookie
	}
	if ctx.SlackAPIKey == "" {
		// ERR_PASSWDMISMATCH
		if err := SendIrcNumeric(ctx, 464, ctx.Nick(), "No Slack token configured, send PASS or set TOKEN"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		ctx.Conn.Close()
		return
	}
	ctx.IsAuthenticating = true
	sendIrcWelcome(ctx)
	go func() {
		defer func() { ctx.IsAuthenticating = false }()
		if err := connectToSlack(ctx); err != nil {
			log.Warningf("Cannot connect to Slack: %v", err)
			// ERR_PASSWDMISMATCH
			if err := SendIrcNumeric(ctx, 464, ctx.Nick(), fmt.Sprintf("Cannot connect to Slack: %v", err)); err != nil {
				log.Warningf("Failed to send IRC message: %v", err)
			}
			ctx.Conn.Close()
		}
	}()
}

// IrcNickHandler is called when a NICK command is sent
func IrcNickHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	nick := trailing
	if len(args) == 1 {
		nick = args[0]
	}
	if nick == "" {
		// ERR_NONICKNAMEGIVEN
		if err := SendIrcNumeric(ctx, 431, "*", "No nickname given"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	if strings.ContainsAny(nick, " ,*?!@") {
		// ERR_ERRONEUSNICKNAME
		if err := SendIrcNumeric(ctx, 432, fmt.Sprintf("* %s", nick), "Erroneous nickname"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}

	if ctx.SlackClient != nil {
		if nick != ctx.Nick() {
			// You cannot change nick, so force it back
			ircSend(ctx, ":%s NICK %s", nick, ctx.Nick())
		}
		return
	}

	// We need the original nick later to change it
	ctx.OrigName = nick
	maybeStartSession(ctx)
}

// IrcUserHandler is called when a USER command is sent
func IrcUserHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	// ignore the user-specified username, the Slack profile wins later
	ctx.RealName = trailing
	if ctx.RealName == "" && len(args) > 0 {
		ctx.RealName = args[0]
	}
	maybeStartSession(ctx)
}

// IrcPingHandler is called when a PING command is sent
func IrcPingHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	msg := fmt.Sprintf("PONG %s", strings.Join(args, " "))
	if trailing != "" {
		msg += " :" + trailing
	}
	ircRaw(ctx, msg)
}

// IrcPongHandler is called when a PONG command is sent. Client pongs
// need no reply.
func IrcPongHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	log.Debugf("Got PONG %v %s", args, trailing)
}

// IrcUserhostHandler is called when a USERHOST command is sent
func IrcUserhostHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) == 0 {
		if err := SendIrcNumeric(ctx, 461, fmt.Sprintf("%s USERHOST", ctx.Nick()), "Not enough parameters"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	var replies []string
	for _, nick := range args {
		u := ctx.Users.ByName(nick)
		if u == nil {
			continue
		}
		away := "+"
		if u.Presence == "away" {
			away = "-"
		}
		replies = append(replies, fmt.Sprintf("%s=%s%s@%s", u.Name, away, u.ID, ctx.ServerName))
	}
	// RPL_USERHOST
	if err := SendIrcNumeric(ctx, 302, ctx.Nick(), strings.Join(replies, " ")); err != nil {
		log.Warningf("Failed to send IRC message: %v", err)
	}
}

// IrcQuitHandler is called when a QUIT command is sent
func IrcQuitHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	ctx.Conn.Close()
}

// IrcModeHandler is called when a MODE command is sent
func IrcModeHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	switch len(args) {
	case 0:
		log.Warningf("Invalid call to MODE handler: no arguments passed")
	case 1:
		// get mode request. Always no mode (for now)
		mode := "+"
		// RPL_CHANNELMODEIS
		if err := SendIrcNumeric(ctx, 324, fmt.Sprintf("%s %s %s", ctx.Nick(), args[0], mode), ""); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
	default:
		// set mode request. Not handled
		// ERR_UMODEUNKNOWNFLAG
		if err := SendIrcNumeric(ctx, 501, args[0], fmt.Sprintf("Unknown MODE flags %s", strings.Join(args[1:], " "))); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
	}
}

// IrcPassHandler is called when a PASS command is sent
func IrcPassHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) != 1 {
		log.Warningf("Invalid PASS arguments. Arguments are not shown for this method because they may contain Slack tokens or cookies")
		// ERR_PASSWDMISMATCH
		if err := SendIrcNumeric(ctx, 464, "", "Invalid password"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	token, cookie, err := passwordToTokenAndCookie(args[0])
	if err != nil {
		// ERR_PASSWDMISMATCH
		if err := SendIrcNumeric(ctx, 464, "", fmt.Sprintf("Invalid password: %v", err)); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	ctx.SlackAPIKey = token
	ctx.SlackCookie = cookie
	ctx.FileHandler.SlackAPIKey = token
	maybeStartSession(ctx)
}

// IrcWhoHandler is called when a WHO command is sent
func IrcWhoHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) != 1 && len(args) != 2 {
		ctx.SendUnknownError("Invalid WHO command. Syntax: WHO <nickname|channel>")
		return
	}
	target := args[0]
	if HasChannelPrefix(target) {
		ch := ctx.Channels.ByName(target)
		if ch == nil {
			// ERR_NOSUCHCHANNEL
			if err := SendIrcNumeric(ctx, 403, fmt.Sprintf("%s %s", ctx.Nick(), target), "No such channel"); err != nil {
				log.Warningf("Failed to send IRC message: %v", err)
			}
			return
		}
		for _, un := range ch.Members {
			u := ctx.Users.ByID(un)
			if u == nil || u.Deleted {
				continue
			}
			rargs := fmt.Sprintf("%s %s %s %s %s %s H", ctx.Nick(), target, u.ID, ctx.ServerName, ctx.ServerName, u.Name)
			desc := fmt.Sprintf("0 %s", u.RealName)
			// RPL_WHOREPLY
			// "<channel> <user> <host> <server> <nick> \
			//  <H|G>[*][@|+] :<hopcount> <real name>"
			if err := SendIrcNumeric(ctx, 352, rargs, desc); err != nil {
				log.Warningf("Failed to send IRC message: %v", err)
			}
		}
		// RPL_ENDOFWHO
		if err := SendIrcNumeric(ctx, 315, fmt.Sprintf("%s %s", ctx.Nick(), target), "End of WHO list"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	user := ctx.GetUserInfoByName(target)
	if user == nil {
		// ERR_NOSUCHNICK
		if err := SendIrcNumeric(ctx, 401, fmt.Sprintf("%s %s", ctx.Nick(), target), "No such nick/channel"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	rargs := fmt.Sprintf("%s * %s %s %s %s H", ctx.Nick(), user.ID, ctx.ServerName, ctx.ServerName, user.Name)
	desc := fmt.Sprintf("0 %s", user.RealName)
	if err := SendIrcNumeric(ctx, 352, rargs, desc); err != nil {
		log.Warningf("Failed to send IRC message: %v", err)
	}
	if err := SendIrcNumeric(ctx, 315, fmt.Sprintf("%s %s", ctx.Nick(), target), "End of WHO list"); err != nil {
		log.Warningf("Failed to send IRC message: %v", err)
	}
}

// IrcWhoisHandler is called when a WHOIS command is sent
func IrcWhoisHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) != 1 && len(args) != 2 {
		ctx.SendUnknownError("Invalid WHOIS command. Syntax: WHOIS <username>")
		return
	}
	username := args[0]
	// if the second argument is the same as the first, it's a request of WHOIS
	// with idle time
	withIdleTime := len(args) == 2 && args[0] == args[1]
	user := ctx.GetUserInfoByName(username)
	if user == nil {
		// ERR_NOSUCHNICK
		if err := SendIrcNumeric(ctx, 401, fmt.Sprintf("%s %s", ctx.Nick(), username), "No such nick/channel"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	// RPL_WHOISUSER
	// "<nick> <user> <host> * :<real name>"
	if err := SendIrcNumeric(ctx, 311, fmt.Sprintf("%s %s %s %s *", ctx.Nick(), username, user.ID, ctx.ServerName), user.RealName); err != nil {
		log.Warningf("Failed to send IRC message: %v", err)
	}
	// RPL_WHOISSERVER
	// "<nick> <server> :<server info>"
	if err := SendIrcNumeric(ctx, 312, fmt.Sprintf("%s %s %s", ctx.Nick(), username, ctx.ServerName), fmt.Sprintf("%s, %s", ProjectName, ProjectURL)); err != nil {
		log.Warningf("Failed to send IRC message: %v", err)
	}
	if user.IsBot {
		// RPL_WHOISOPERATOR abused to flag bot users
		if err := SendIrcNumeric(ctx, 313, fmt.Sprintf("%s %s", ctx.Nick(), username), "is a bot"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
	}
	// Send additional user status information, abusing the RPL_WHOISSERVER
	// reply.
	if user.Profile.StatusText != "" || user.Profile.StatusEmoji != "" {
		userStatus := fmt.Sprintf("user status: '%s' %s", user.Profile.StatusText, user.Profile.StatusEmoji)
		if user.Profile.StatusExpiration != 0 {
			userStatus += " until " + time.Unix(int64(user.Profile.StatusExpiration), 0).String()
		}
		if err := SendIrcNumeric(ctx, 312, fmt.Sprintf("%s %s %s", ctx.Nick(), username, ctx.ServerName), userStatus); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
	}
	// RPL_AWAY
	if user.ID == ctx.UserID() && ctx.AwayMessage() != "" {
		if err := SendIrcNumeric(ctx, 301, fmt.Sprintf("%s %s", ctx.Nick(), username), ctx.AwayMessage()); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
	} else if user.Presence == "away" {
		if err := SendIrcNumeric(ctx, 301, fmt.Sprintf("%s %s", ctx.Nick(), username), "User is away"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
	}
	// RPL_WHOISCHANNELS
	// "<nick> :{[@|+]<channel><space>}"
	var channels []string
	for _, ch := range ctx.Channels.AsMap() {
		for _, u := range ch.Members {
			if u == user.ID {
				chCopy := ch
				channels = append(channels, chCopy.IRCName())
			}
		}
	}
	sort.Strings(channels)
	if len(channels) > 0 {
		if err := SendIrcNumeric(ctx, 319, fmt.Sprintf("%s %s", ctx.Nick(), username), strings.Join(channels, " ")); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
	}
	if withIdleTime {
		// RPL_WHOISIDLE
		// "<nick> <integer> :seconds idle"
		if err := SendIrcNumeric(ctx, 317, fmt.Sprintf("%s %s 0", ctx.Nick(), username), "seconds idle"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
	}
	// RPL_ENDOFWHOIS
	if err := SendIrcNumeric(ctx, 318, fmt.Sprintf("%s %s", ctx.Nick(), username), "End of /WHOIS list"); err != nil {
		log.Warningf("Failed to send IRC message: %v", err)
	}
}

// IrcJoinHandler is called when a JOIN command is sent
func IrcJoinHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) != 1 {
		ctx.SendUnknownError("Invalid JOIN command")
		return
	}
	// A multi join (e.g. /join #chan1,#chan2,#chan3) needs each channel
	// joined separately.
	channames := strings.Split(args[0], ",")
	for _, channame := range channames {
		// rejoining a thread or multi-party IM that was parted earlier
		if th := ctx.Threads.ByName(channame); th != nil {
			ctx.Threads.Rejoin(channame)
			parent := ctx.Channels.ByID(th.ChannelID)
			topic := ""
			if parent != nil {
				topic = "Thread in " + parent.IRCName()
			}
			var members []slack.User
			if parent != nil && !ctx.Config.NoUserList {
				members, _ = ChannelMembers(ctx, parent.ID)
			}
			IrcSendChanInfoAfterJoinCustom(ctx, channame, th.ChannelID, topic, members)
			continue
		}
		if ch := ctx.Channels.ByName(channame); ch != nil && (ch.IsMP() || ch.IsMember) {
			ctx.Rejoin(channame)
			if err := joinChannel(ctx, ch); err != nil {
				log.Warningf("Failed to join channel `%s`: %v", channame, err)
				continue
			}
			replayRoomHistory(ctx, ch.ID)
			continue
		}
		sch, _, _, err := ctx.SlackClient.JoinConversation(StripChannelPrefix(channame))
		if err != nil {
			log.Warningf("Cannot join channel %s: %v", channame, err)
			// ERR_NOSUCHCHANNEL
			if err := SendIrcNumeric(ctx, 403, fmt.Sprintf("%s %s", ctx.Nick(), channame), "No such channel"); err != nil {
				log.Warningf("Failed to send IRC message: %v", err)
			}
			continue
		}
		log.Infof("Joined channel %s", channame)
		ch := Channel(*sch)
		ctx.Channels.Insert(ch)
		ctx.Rejoin(ch.IRCName())
		if err := joinChannel(ctx, &ch); err != nil {
			log.Warningf("Failed to join channel `%s`: %v", ch.Name, err)
			continue
		}
	}
}

// IrcPartHandler is called when a PART command is sent
func IrcPartHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) < 1 {
		ctx.SendUnknownError("Invalid PART command")
		return
	}
	channame := args[0]
	// thread channels only disappear from the IRC view, the Slack
	// subscription stays
	if th := ctx.Threads.ByName(channame); th != nil {
		ctx.Threads.Leave(channame)
		ircSend(ctx, ":%s PART %s", ctx.Mask(), channame)
		return
	}
	ch := ctx.Channels.ByName(channame)
	if ch == nil {
		// ERR_NOSUCHCHANNEL
		if err := SendIrcNumeric(ctx, 403, fmt.Sprintf("%s %s", ctx.Nick(), channame), "No such channel"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	if ch.IsMP() {
		// cannot leave a multi-party IM on Slack, just hide it
		ctx.Part(ch.IRCName())
		ircSend(ctx, ":%s PART %s", ctx.Mask(), ch.IRCName())
		return
	}
	notInChan, err := ctx.SlackClient.LeaveConversation(ch.ID)
	if err != nil {
		log.Warningf("Cannot leave channel %s (id: %s): %v", channame, ch.ID, err)
		ctx.SendUnknownError("Cannot leave channel %s: %v", channame, err)
		return
	}
	if notInChan {
		// ERR_USERNOTINCHANNEL
		if err := SendIrcNumeric(ctx, 441, fmt.Sprintf("%s %s %s", ctx.Nick(), ctx.Nick(), channame), "They aren't on that channel"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	ctx.Part(ch.IRCName())
	log.Debugf("Left channel %s", channame)
	ircSend(ctx, ":%s PART %s", ctx.Mask(), ch.IRCName())
}

// IrcTopicHandler is called when a TOPIC command is sent
func IrcTopicHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) < 1 {
		// ERR_NEEDMOREPARAMS
		if err := SendIrcNumeric(ctx, 461, ctx.Nick(), "TOPIC :Not enough parameters"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	channame := args[0]
	channel := ctx.Channels.ByName(channame)
	if channel == nil {
		// ERR_NOSUCHCHANNEL
		if err := SendIrcNumeric(ctx, 403, fmt.Sprintf("%s %s", ctx.Nick(), channame), "No such channel"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	if trailing == "" {
		// topic query
		if channel.Purpose.Value == "" {
			// RPL_NOTOPIC
			if err := SendIrcNumeric(ctx, 331, fmt.Sprintf("%s %s", ctx.Nick(), channame), "No topic is set"); err != nil {
				log.Warningf("Failed to send IRC message: %v", err)
			}
			return
		}
		// RPL_TOPIC
		if err := SendIrcNumeric(ctx, 332, fmt.Sprintf("%s %s", ctx.Nick(), channame), channel.Purpose.Value); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		if channel.Purpose.Creator != "" {
			setter := channel.Purpose.Creator
			if u := ctx.Users.ByID(setter); u != nil {
				setter = u.Name
			}
			// RPL_TOPICWHOTIME
			if err := SendIrcNumeric(ctx, 333, fmt.Sprintf("%s %s %s %d", ctx.Nick(), channame, setter, channel.Purpose.LastSet.Time().Unix()), ""); err != nil {
				log.Warningf("Failed to send IRC message: %v", err)
			}
		}
		return
	}
	newTopic, err := ctx.SlackClient.SetPurposeOfConversation(channel.ID, trailing)
	if err != nil {
		ctx.SendUnknownError("%s :Cannot set topic: %v", channame, err)
		return
	}
	updated := Channel(*newTopic)
	ctx.Channels.Insert(updated)
	// RPL_TOPIC
	if err := SendIrcNumeric(ctx, 332, fmt.Sprintf("%s %s", ctx.Nick(), channame), newTopic.Purpose.Value); err != nil {
		log.Warningf("Failed to send IRC message: %v", err)
	}
}

// IrcNamesHandler is called when a NAMES command is sent
func IrcNamesHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) < 1 {
		// ERR_NEEDMOREPARAMS
		if err := SendIrcNumeric(ctx, 461, ctx.Nick(), "NAMES :Not enough parameters"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	ch := ctx.Channels.ByName(args[0])
	if ch == nil {
		ctx.SendUnknownError("Channel `%s` not found", args[0])
		return
	}

	members, err := ChannelMembers(ctx, ch.ID)
	if err != nil {
		ctx.SendUnknownError("Failed to fetch users in channel `%s` (channel ID: %s): %v", ch.Name, ch.ID, err)
		return
	}
	memberNames := make([]string, 0, len(members))
	for _, m := range members {
		if m.Deleted {
			continue
		}
		memberNames = append(memberNames, m.Name)
	}
	// RPL_NAMREPLY
	if len(memberNames) > 0 {
		if err := SendIrcNumeric(ctx, 353, fmt.Sprintf("%s = %s", ctx.Nick(), ch.IRCName()), strings.Join(memberNames, " ")); err != nil {
			log.Warningf("Failed to send IRC NAMREPLY message: %v", err)
		}
	}
	// RPL_ENDOFNAMES
	if err := SendIrcNumeric(ctx, 366, fmt.Sprintf("%s %s", ctx.Nick(), ch.IRCName()), "End of NAMES list"); err != nil {
		log.Warningf("Failed to send IRC ENDOFNAMES message: %v", err)
	}
}

// IrcListHandler is called when a LIST command is sent
func IrcListHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	// RPL_LISTSTART
	if err := SendIrcNumeric(ctx, 321, fmt.Sprintf("%s Channel", ctx.Nick()), "Users Name"); err != nil {
		log.Warningf("Failed to send IRC message: %v", err)
	}
	for _, ch := range ctx.Channels.AsMap() {
		chCopy := ch
		if !chCopy.IsPublicChannel() && !chCopy.IsPrivateChannel() {
			continue
		}
		// RPL_LIST
		if err := SendIrcNumeric(ctx, 322, fmt.Sprintf("%s %s %d", ctx.Nick(), chCopy.IRCName(), chCopy.NumMembers), chCopy.Purpose.Value); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
	}
	// RPL_LISTEND
	if err := SendIrcNumeric(ctx, 323, ctx.Nick(), "End of LIST"); err != nil {
		log.Warningf("Failed to send IRC message: %v", err)
	}
}

// IrcAwayHandler is called when an AWAY command is sent. It is mapped to
// the Slack presence.
func IrcAwayHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if trailing == "" && len(args) == 0 {
		ctx.SetAway("")
		if err := ctx.SlackClient.SetUserPresence("auto"); err != nil {
			log.Warningf("Failed to set presence: %v", err)
		}
		// RPL_UNAWAY
		if err := SendIrcNumeric(ctx, 305, ctx.Nick(), "You are no longer marked as being away"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	msg := trailing
	if msg == "" {
		msg = strings.Join(args, " ")
	}
	ctx.SetAway(msg)
	if err := ctx.SlackClient.SetUserPresence("away"); err != nil {
		log.Warningf("Failed to set presence: %v", err)
	}
	// RPL_NOWAWAY
	if err := SendIrcNumeric(ctx, 306, ctx.Nick(), "You have been marked as being away"); err != nil {
		log.Warningf("Failed to send IRC message: %v", err)
	}
}

// IrcInviteHandler is called when an INVITE command is sent
func IrcInviteHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) != 2 {
		// ERR_NEEDMOREPARAMS
		if err := SendIrcNumeric(ctx, 461, ctx.Nick(), "INVITE :Not enough parameters"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	nick, channame := args[0], args[1]
	user := ctx.GetUserInfoByName(nick)
	if user == nil {
		// ERR_NOSUCHNICK
		if err := SendIrcNumeric(ctx, 401, fmt.Sprintf("%s %s", ctx.Nick(), nick), "No such nick/channel"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	ch := ctx.Channels.ByName(channame)
	if ch == nil {
		// ERR_NOSUCHCHANNEL
		if err := SendIrcNumeric(ctx, 403, fmt.Sprintf("%s %s", ctx.Nick(), channame), "No such channel"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	if _, err := ctx.SlackClient.InviteUsersToConversation(ch.ID, user.ID); err != nil {
		ctx.SendUnknownError("Cannot invite %s to %s: %v", nick, channame, err)
		return
	}
	// RPL_INVITING
	if err := SendIrcNumeric(ctx, 341, fmt.Sprintf("%s %s %s", ctx.Nick(), nick, channame), ""); err != nil {
		log.Warningf("Failed to send IRC message: %v", err)
	}
}

// IrcKickHandler is called when a KICK command is sent
func IrcKickHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) < 2 {
		// ERR_NEEDMOREPARAMS
		if err := SendIrcNumeric(ctx, 461, ctx.Nick(), "KICK :Not enough parameters"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	channame, nick := args[0], args[1]
	ch := ctx.Channels.ByName(channame)
	if ch == nil {
		// ERR_NOSUCHCHANNEL
		if err := SendIrcNumeric(ctx, 403, fmt.Sprintf("%s %s", ctx.Nick(), channame), "No such channel"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	user := ctx.GetUserInfoByName(nick)
	if user == nil {
		// ERR_NOSUCHNICK
		if err := SendIrcNumeric(ctx, 401, fmt.Sprintf("%s %s", ctx.Nick(), nick), "No such nick/channel"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	if err := ctx.SlackClient.KickUserFromConversation(ch.ID, user.ID); err != nil {
		ctx.SendUnknownError("Cannot kick %s from %s: %v", nick, channame, err)
		return
	}
	ircSend(ctx, ":%s KICK %s %s :%s", ctx.Mask(), ch.IRCName(), nick, trailing)
}

// IrcSendfileHandler uploads a local file to a channel, thread or user.
// Syntax: SENDFILE <target> <path>
func IrcSendfileHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) < 2 {
		// ERR_NEEDMOREPARAMS
		if err := SendIrcNumeric(ctx, 461, ctx.Nick(), "SENDFILE :Not enough parameters"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	target, path := args[0], strings.Join(args[1:], " ")
	if err := ctx.SendFileToTarget(target, path); err != nil {
		// ERR_FILEERROR
		if err := SendIrcNumeric(ctx, 424, ctx.Nick(), fmt.Sprintf("File error: %v", err)); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	ircNotice(ctx, "Uploading %s to %s", path, target)
}

func parseRuleDuration(arg string) time.Duration {
	if arg == "" {
		return defaultRuleDuration
	}
	minutes, err := strconv.Atoi(arg)
	if err != nil || minutes <= 0 {
		return defaultRuleDuration
	}
	return time.Duration(minutes) * time.Minute
}

// IrcAnnoyHandler installs an annoy rule. Syntax: ANNOY <nick> [minutes]
func IrcAnnoyHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) < 1 {
		// ERR_NEEDMOREPARAMS
		if err := SendIrcNumeric(ctx, 461, ctx.Nick(), "ANNOY :Not enough parameters"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	nick := args[0]
	user := ctx.GetUserInfoByName(nick)
	if user == nil {
		// ERR_NOSUCHNICK
		if err := SendIrcNumeric(ctx, 401, fmt.Sprintf("%s %s", ctx.Nick(), nick), "No such nick/channel"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	duration := defaultRuleDuration
	if len(args) > 1 {
		duration = parseRuleDuration(args[1])
	}
	ctx.Annoy.Add(user.ID, user.Name, duration)
	ctx.Status.SaveFrom(ctx)
	ircNotice(ctx, "Annoying %s for %s", nick, duration)
}

// IrcDropAnnoyHandler removes an annoy rule. Syntax: DROPANNOY <nick>
func IrcDropAnnoyHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) < 1 {
		// ERR_NEEDMOREPARAMS
		if err := SendIrcNumeric(ctx, 461, ctx.Nick(), "DROPANNOY :Not enough parameters"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	nick := args[0]
	user := ctx.GetUserInfoByName(nick)
	if user == nil || !ctx.Annoy.Drop(user.ID) {
		ircNotice(ctx, "No annoy rule for %s", nick)
		return
	}
	ctx.Status.SaveFrom(ctx)
	ircNotice(ctx, "No longer annoying %s", nick)
}

// IrcListAnnoyHandler lists the active annoy rules.
func IrcListAnnoyHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	rules := ctx.Annoy.List()
	if len(rules) == 0 {
		ircNotice(ctx, "No active annoy rules")
		return
	}
	for _, r := range rules {
		ircNotice(ctx, "annoy %s until %s", r.Nick, r.Expiry.Format(time.RFC3339))
	}
}

// IrcAutoreactHandler installs an autoreact rule.
// Syntax: AUTOREACT <nick> <probability> [reaction] [minutes]
func IrcAutoreactHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) < 2 {
		// ERR_NEEDMOREPARAMS
		if err := SendIrcNumeric(ctx, 461, ctx.Nick(), "AUTOREACT :Not enough parameters"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	nick := args[0]
	user := ctx.GetUserInfoByName(nick)
	if user == nil {
		// ERR_NOSUCHNICK
		if err := SendIrcNumeric(ctx, 401, fmt.Sprintf("%s %s", ctx.Nick(), nick), "No such nick/channel"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	probability, err := strconv.ParseFloat(args[1], 64)
	if err != nil || probability <= 0 || probability > 1 {
		ircNotice(ctx, "Invalid probability %q, want a number in (0, 1]", args[1])
		return
	}
	reaction := defaultReaction
	if len(args) > 2 {
		reaction = strings.Trim(args[2], ":")
	}
	duration := defaultRuleDuration
	if len(args) > 3 {
		duration = parseRuleDuration(args[3])
	}
	ctx.Autoreact.Add(AutoreactRule{
		UserID:      user.ID,
		Nick:        user.Name,
		Probability: probability,
		Reaction:    reaction,
		Expiry:      time.Now().Add(duration),
	})
	ctx.Status.SaveFrom(ctx)
	ircNotice(ctx, "Reacting to %s with :%s: (p=%g) for %s", nick, reaction, probability, duration)
}

// IrcDropAutoreactHandler removes all autoreact rules for a user.
// Syntax: DROPAUTOREACT <nick>
func IrcDropAutoreactHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	if len(args) < 1 {
		// ERR_NEEDMOREPARAMS
		if err := SendIrcNumeric(ctx, 461, ctx.Nick(), "DROPAUTOREACT :Not enough parameters"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	nick := args[0]
	user := ctx.GetUserInfoByName(nick)
	if user == nil || !ctx.Autoreact.Drop(user.ID) {
		ircNotice(ctx, "No autoreact rules for %s", nick)
		return
	}
	ctx.Status.SaveFrom(ctx)
	ircNotice(ctx, "No longer reacting to %s", nick)
}

// IrcListAutoreactHandler lists the active autoreact rules.
func IrcListAutoreactHandler(ctx *IrcContext, prefix, cmd string, args []string, trailing string) {
	rules := ctx.Autoreact.List()
	if len(rules) == 0 {
		ircNotice(ctx, "No active autoreact rules")
		return
	}
	for _, r := range rules {
		scope := "everywhere"
		if r.ChannelID != "" {
			scope = ctx.IRCNameForChannelID(r.ChannelID)
		}
		ircNotice(ctx, "autoreact to %s with :%s: (p=%g, %s) until %s", r.Nick, r.Reaction, r.Probability, scope, r.Expiry.Format(time.RFC3339))
	}
}
