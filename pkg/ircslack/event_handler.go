package ircslack

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

func joinText(first string, second string, separator string) string {
	if first == "" {
		return second
	}
	if second == "" {
		return first
	}
	return first + separator + second
}

// resolveChannelName maps a Slack conversation and optional thread to the
// IRC name the message must be delivered to. For new threads this also
// announces the synthetic thread channel and replays its opener.
func resolveChannelName(ctx *IrcContext, msgChannel, threadTimestamp string) string {
	if strings.HasPrefix(msgChannel, "C") || strings.HasPrefix(msgChannel, "G") {
		channel := ctx.Channels.ByID(msgChannel)
		if channel == nil {
			// try fetching it, in case it's a new channel
			var err error
			channel, err = ctx.Channels.Refresh(ctx.SlackClient, msgChannel)
			if err != nil {
				ctx.SendUnknownError("Failed to fetch channel with ID `%s`: %v", msgChannel, err)
				return ""
			}
		}
		if threadTimestamp != "" {
			known := ctx.Threads.ByKey(msgChannel, threadTimestamp) != nil
			th := ctx.Threads.Observe(msgChannel, threadTimestamp, channel.IRCName())
			if ctx.Threads.IsLeft(th.IRCName) {
				return ""
			}
			if !known {
				opener, err := ctx.GetThreadOpener(msgChannel, threadTimestamp)
				if err != nil {
					log.Warningf("Failed to get thread opener for `%s`: %v", msgChannel, err)
				}
				var members []slack.User
				if !ctx.Config.NoUserList {
					if members, err = ChannelMembers(ctx, msgChannel); err != nil {
						log.Warningf("Failed to fetch members of %s: %v", msgChannel, err)
					}
				}
				IrcSendChanInfoAfterJoinCustom(ctx, th.IRCName, msgChannel, "Thread in "+channel.IRCName(), members)
				if opener.Text != "" {
					openerNick := opener.User
					if u := ctx.GetUserInfo(opener.User); u != nil {
						openerNick = u.Name
					}
					ircSend(ctx, ":%v!%v@%v PRIVMSG %v :%s",
						openerNick, opener.User, ctx.ServerName, th.IRCName,
						renderMessageText(ctx, opener.Text, th.IRCName, openerNick))
				}
			}
			return th.IRCName
		}
		return channel.IRCName()
	} else if strings.HasPrefix(msgChannel, "D") {
		// Direct message to me: deliver as a query from the other party.
		channel := ctx.Channels.ByID(msgChannel)
		if channel == nil {
			var err error
			channel, err = ctx.Channels.Refresh(ctx.SlackClient, msgChannel)
			if err != nil {
				ctx.SendUnknownError("Failed to fetch IM chat with ID `%s`: %v", msgChannel, err)
				return ""
			}
		}
		other := channel.User
		if other == "" || other == ctx.UserID() {
			// a DM with myself shows up under my own nick
			return ctx.Nick()
		}
		user := ctx.GetUserInfo(other)
		if user == nil {
			ctx.SendUnknownError("Unknown destination user ID %s for direct message %s", other, msgChannel)
			return ""
		}
		return user.Name
	}
	log.Warningf("Unknown recipient ID: %s", msgChannel)
	return ""
}

func getConversationDetails(
	ctx *IrcContext,
	channelID string,
	timestamp string,
) (slack.Message, string, error) {
	message, err := ctx.SlackClient.GetConversationHistory(&slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Latest:    timestamp,
		Limit:     1,
		Inclusive: true,
	})
	if err != nil {
		return slack.Message{}, "", err
	}
	if len(message.Messages) > 0 {
		parent := message.Messages[0]
		// If the timestamps are not equal, we're looking for a threaded message
		if parent.Timestamp != timestamp {
			msgs, _, _, err := ctx.SlackClient.GetConversationReplies(&slack.GetConversationRepliesParameters{ChannelID: channelID, Timestamp: parent.Timestamp})
			if err == nil {
				for _, msg := range msgs {
					if msg.Timestamp == timestamp {
						channame := resolveChannelName(ctx, channelID, parent.Timestamp)
						return msg, channame, nil
					}
				}
			}
			log.Warningf("Did not find threaded message with timestamp %v under %v", timestamp, parent.Timestamp)
		}
		channame := resolveChannelName(ctx, channelID, "")
		return parent, channame, nil
	}
	return slack.Message{}, "", fmt.Errorf("No such message found")
}

// replacePermalinkWithText appends the quoted message text when the
// message contains a Slack archive permalink.
func replacePermalinkWithText(ctx *IrcContext, text string) string {
	matches := rxSlackArchiveURL.FindStringSubmatch(text)
	if len(matches) != 4 {
		return text
	}
	channel := matches[1]
	timestamp := matches[2] + "." + matches[3]
	message, _, err := getConversationDetails(ctx, channel, timestamp)
	if err != nil {
		log.Warningf("Could not get message details from permalink %s: %v", matches[0], err)
		return text
	}
	return text + "\n> " + message.Text
}

// renderMessageText runs the Slack markup of one message through the
// parser and renders it for the given IRC destination.
func renderMessageText(ctx *IrcContext, text, destName, senderNick string) string {
	env := &RenderEnv{
		SelfNick: ctx.Nick(),
		SilencedYeller: ctx.Config.IsSilencedYeller(senderNick) ||
			ctx.Config.IsSilencedYeller(destName),
		UserNick: func(id string) (string, bool) {
			if u := ctx.Users.ByID(id); u != nil {
				return u.Name, true
			}
			return "", false
		},
		ChannelName: func(id string) (string, bool) {
			if ch := ctx.Channels.ByID(id); ch != nil {
				return ch.Name, true
			}
			return "", false
		},
		InDestChannel:     destChannelMembership(ctx, destName),
		FormattedMaxLines: ctx.Config.FormattedMaxLines,
		SaveOverflow:      ctx.FileHandler.SaveOverflow,
	}
	out := RenderSpans(Parse(text), env)
	return replacePermalinkWithText(ctx, out)
}

// destChannelMembership reports channel membership by nick for mention
// highlighting. Queries never highlight; channels with an unknown member
// list highlight everyone.
func destChannelMembership(ctx *IrcContext, destName string) func(nick string) bool {
	if !HasChannelPrefix(destName) {
		return func(string) bool { return false }
	}
	ch := ctx.Channels.ByName(destName)
	if ch == nil || len(ch.Members) == 0 {
		return func(string) bool { return true }
	}
	members := make(map[string]bool, len(ch.Members))
	for _, id := range ch.Members {
		if u := ctx.Users.ByID(id); u != nil {
			members[u.Name] = true
		}
	}
	return func(nick string) bool { return members[nick] }
}

// maybeRejoinOnMention clears the parted state of a room when the
// attached user is mentioned in it, so the message is not lost.
func maybeRejoinOnMention(ctx *IrcContext, message *slack.Msg) {
	if ctx.Config.NoRejoinOnMention || ctx.User == nil {
		return
	}
	if !strings.Contains(message.Text, "<@"+ctx.User.ID+">") {
		return
	}
	if message.ThreadTimestamp != "" {
		if th := ctx.Threads.ByKey(message.Channel, message.ThreadTimestamp); th != nil && ctx.Threads.IsLeft(th.IRCName) {
			ctx.Threads.Rejoin(th.IRCName)
		}
		return
	}
	if ch := ctx.Channels.ByID(message.Channel); ch != nil {
		name := ch.IRCName()
		if ctx.IsParted(name) {
			ctx.Rejoin(name)
			if err := joinChannel(ctx, ch); err != nil {
				log.Warningf("Failed to rejoin %s on mention: %v", name, err)
			}
		}
	}
}

// printMessage renders one Slack message and delivers it as one or more
// PRIVMSG lines. The prefix, when set, goes in front of the first line
// ("[edit]", "[deleted]", ...).
func printMessage(ctx *IrcContext, message slack.Msg, prefix string) {
	user := ctx.GetUserInfo(message.User)
	name := ""
	if user == nil {
		if message.User != "" {
			log.Warningf("Failed to get user info for %v %s", message.User, message.Username)
			name = message.User
		} else if message.Username != "" {
			// bot message posting under a display name
			name = strings.ReplaceAll(message.Username, " ", "_")
		} else {
			name = "bot"
		}
	} else {
		if user.Deleted {
			log.Debugf("Skipping message from deleted user %s", user.Name)
			return
		}
		name = user.Name
	}
	if message.BotID != "" && message.User == "" {
		// flag bot traffic so it is not mistaken for a human
		prefix = joinText(prefix, "["+name+"]", " ")
	}

	maybeRejoinOnMention(ctx, &message)
	// get channel or other recipient (e.g. recipient of a direct message)
	channame := resolveChannelName(ctx, message.Channel, message.ThreadTimestamp)
	if channame == "" {
		return
	}
	if ctx.Config.IsIgnoredChannel(channame) || ctx.IsParted(channame) {
		log.Debugf("Dropping message for hidden channel %s", channame)
		return
	}

	text := message.Text
	for _, attachment := range message.Attachments {
		text = joinText(text, attachment.Pretext, "\n")
		text = joinText(text, attachment.Title, "\n")
		if attachment.Text != "" {
			text = joinText(text, attachment.Text, "\n")
		} else {
			text = joinText(text, attachment.Fallback, "\n")
		}
		text = joinText(text, attachment.ImageURL, "\n")
	}
	for _, file := range message.Files {
		text = joinText(text, fmt.Sprintf("[file upload] %s %s", file.Name, ctx.FileHandler.Download(file)), "\n")
	}

	log.Debugf("SLACK msg from %v (%v) on %v: %v", message.User, name, message.Channel, text)
	if name == "" && text == "" {
		log.Warningf("Empty username and message: %+v", message)
		return
	}
	text = renderMessageText(ctx, text, channame, name)
	text = joinText(prefix, text, " ")

	if name == ctx.Nick() && message.ClientMsgID == "" {
		// Don't print my own messages posted through this gateway; the
		// client already has them. Messages typed in another Slack client
		// carry a client message ID and are shown.
		log.Debugf("Skipping message sent by me")
		return
	}
	// handle multi-line messages
	var linePrefix, lineSuffix string
	if message.SubType == "me_message" {
		// handle /me messages
		linePrefix = "\x01ACTION "
		lineSuffix = "\x01"
	}
	for _, line := range strings.Split(text, "\n") {
		ircSend(ctx, ":%v!%v@%v PRIVMSG %v :%s%s%s",
			name, message.User, ctx.ServerName,
			channame, linePrefix, line, lineSuffix,
		)
	}
	if message.Timestamp != "" && message.Channel != "" {
		// advance the Slack read marker to what was actually shown
		if err := ctx.SlackClient.MarkConversation(message.Channel, message.Timestamp); err != nil {
			log.Debugf("Failed to mark %s read at %s: %v", message.Channel, message.Timestamp, err)
		}
	}
}

// deliverHistoryMessage replays one backfilled message.
func deliverHistoryMessage(ctx *IrcContext, roomID string, msg slack.Message) {
	m := msg.Msg
	m.Channel = roomID
	printMessage(ctx, m, "")
}

// printEditedMessage renders an edit as the minimal changed window
// between the previous and the new text.
func printEditedMessage(ctx *IrcContext, message *slack.MessageEvent) {
	if message.SubMessage == nil {
		return
	}
	edited := *message.SubMessage
	edited.Channel = message.Channel
	if message.PreviousMessage != nil && message.PreviousMessage.Text != "" {
		window := EditWindow(message.PreviousMessage.Text, message.SubMessage.Text)
		if window == "" {
			// text unchanged, e.g. an attachment unfurl update
			return
		}
		edited.Text = window
	}
	printMessage(ctx, edited, "[edit]")
}

// syncChannelMembers diffs the cached member list of a channel against
// Slack and emits JOIN/PART lines for the drift.
func syncChannelMembers(ctx *IrcContext, channelID string) {
	old := ctx.Channels.ByID(channelID)
	if old == nil {
		return
	}
	name := old.IRCName()
	if name == "" || ctx.IsParted(name) || ctx.Config.IsIgnoredChannel(name) {
		return
	}
	ids, _, err := ctx.SlackClient.GetUsersInConversation(&slack.GetUsersInConversationParameters{ChannelID: channelID, Limit: 1000})
	if err != nil {
		log.Warningf("Cannot fetch members of %s: %v", channelID, err)
		return
	}
	added, removed := old.MembersDiff(ids)
	for _, id := range added {
		if u := ctx.GetUserInfo(id); u != nil && !u.Deleted {
			ircSend(ctx, ":%s!%s@%s JOIN %s", u.Name, u.ID, ctx.ServerName, name)
		}
	}
	for _, id := range removed {
		if u := ctx.GetUserInfo(id); u != nil {
			ircSend(ctx, ":%s!%s@%s PART %s", u.Name, u.ID, ctx.ServerName, name)
		}
	}
	updated := *old
	updated.Members = ids
	ctx.Channels.Insert(updated)
}

// isDuplicateReactionError reports whether a reactions.add failure means
// the reaction is already there. Slack has changed the error's spelling
// over time, so match loosely on the reaction and duplicate words.
func isDuplicateReactionError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "reaction") || strings.Contains(s, "reacted") || strings.Contains(s, "duplicate")
}

// postAutoreactions evaluates the autoreact rules for a delivered message.
func postAutoreactions(ctx *IrcContext, message *slack.Msg) {
	if message.User == "" || message.Timestamp == "" {
		return
	}
	for _, reaction := range ctx.Autoreact.Match(message.User, message.Channel) {
		err := ctx.SlackClient.AddReaction(reaction, slack.NewRefToMessage(message.Channel, message.Timestamp))
		if err != nil && !isDuplicateReactionError(err) {
			log.Warningf("Failed to react with :%s: in %s: %v", reaction, message.Channel, err)
		}
	}
}

// handleRTMEvent dispatches one event from the Slack RTM stream.
func handleRTMEvent(ctx *IrcContext, rtm *slack.RTM, msg slack.RTMEvent) {
	switch ev := msg.Data.(type) {
	case *slack.MessageEvent:
		// https://api.slack.com/events/message
		message := ev.Msg
		switch message.SubType {
		case "message_changed":
			// https://api.slack.com/events/message/message_changed
			printEditedMessage(ctx, ev)
			return
		case "message_deleted":
			// https://api.slack.com/events/message/message_deleted
			if ev.PreviousMessage != nil {
				deleted := *ev.PreviousMessage
				deleted.Channel = message.Channel
				printMessage(ctx, deleted, "[deleted]")
			}
			return
		case "channel_topic":
			// https://api.slack.com/events/message/channel_topic
			channel := ctx.Channels.ByID(message.Channel)
			if channel == nil {
				log.Warningf("Cannot get channel name for %v", message.Channel)
				return
			}
			updated := *channel
			updated.Purpose.Value = message.Topic
			ctx.Channels.Insert(updated)
			senderNick := message.User
			if u := ctx.GetUserInfo(message.User); u != nil {
				senderNick = u.Name
			}
			ircSend(ctx, ":%s!%s@%s TOPIC %s :%s", senderNick, message.User, ctx.ServerName, channel.IRCName(), message.Topic)
			return
		case "channel_join", "channel_leave":
			// handled by slack.MemberJoinedChannelEvent and
			// slack.MemberLeftChannelEvent
			return
		}
		if message.Hidden {
			return
		}
		if ch := ctx.Channels.ByID(message.Channel); ch != nil && ctx.IsParted(ch.IRCName()) {
			// keep the cursor behind so a later JOIN backfills this
			log.Debugf("Withholding message for hidden channel %s", ch.IRCName())
			return
		}
		if !ctx.MarkDelivered(message.Channel, message.Timestamp) {
			log.Debugf("Skipping already delivered message %s/%s", message.Channel, message.Timestamp)
			return
		}
		printMessage(ctx, message, "")
		postAutoreactions(ctx, &message)
	case *slack.ConnectedEvent:
		log.Info("Connected to Slack")
		reconnect := ctx.SlackConnected
		ctx.SlackConnected = true
		if reconnect {
			// the stream may have dropped messages; refresh and backfill
			if err := ctx.Channels.Fetch(ctx.SlackClient); err != nil {
				log.Warningf("Failed to refresh conversations after reconnect: %v", err)
			}
			held := ctx.BackfillHistory(backfillRooms(ctx), func(roomID string, m slack.Message) {
				deliverHistoryMessage(ctx, roomID, m)
			})
			for _, hev := range held {
				handleRTMEvent(ctx, rtm, hev)
			}
		}
	case *slack.DisconnectedEvent:
		log.Warningf("Disconnected from Slack (intentional: %v, cause: %v)", ev.Intentional, ev.Cause)
		ctx.SlackConnected = false
		if ev.Intentional {
			ctx.Conn.Close()
		}
	case *slack.MemberJoinedChannelEvent:
		// https://api.slack.com/events/member_joined_channel
		log.Infof("Event: Member Joined Channel: %+v", ev)
		syncChannelMembers(ctx, ev.Channel)
	case *slack.MemberLeftChannelEvent:
		// https://api.slack.com/events/member_left_channel
		log.Infof("Event: Member Left Channel: %+v", ev)
		syncChannelMembers(ctx, ev.Channel)
	case *slack.TeamJoinEvent:
		// https://api.slack.com/events/team_join
		ctx.Users.Insert(ev.User)
	case *slack.UserChangeEvent:
		// https://api.slack.com/events/user_change
		ctx.Users.Insert(ev.User)
	case *slack.ChannelJoinedEvent:
		// https://api.slack.com/events/channel_joined
		// joining from another client joins here too
		ch := Channel(ev.Channel)
		ctx.Channels.Insert(ch)
		ctx.Rejoin(ch.IRCName())
		if err := joinChannel(ctx, &ch); err != nil {
			log.Warningf("Failed to join channel %s: %v", ch.IRCName(), err)
		}
	case *slack.ChannelLeftEvent:
		// https://api.slack.com/events/channel_left
		if ch := ctx.Channels.ByID(ev.Channel); ch != nil {
			ctx.Part(ch.IRCName())
			ircSend(ctx, ":%s PART %s", ctx.Mask(), ch.IRCName())
		}
	case *slack.ReactionAddedEvent:
		// https://api.slack.com/events/reaction_added
		user := ctx.GetUserInfo(ev.User)
		name := ev.User
		if user != nil {
			name = user.Name
		}
		msg, channame, err := getConversationDetails(ctx, ev.Item.Channel, ev.Item.Timestamp)
		if err != nil {
			log.Warningf("Could not get conversation details: %v", err)
			return
		}
		if channame == "" {
			return
		}
		msgText := renderMessageText(ctx, msg.Text, channame, name)
		msgText = strings.Split(msgText, "\n")[0]
		if len(msgText) > 100 {
			msgText = msgText[:100]
		}
		ircSend(ctx, ":%v!%v@%v PRIVMSG %v :\x01ACTION reacted with %s to: \x0315%s\x03\x01",
			name, ev.User, ctx.ServerName, channame, ev.Reaction, msgText)
	case *slack.UserTypingEvent:
		// https://api.slack.com/events/user_typing
		if ctx.Annoy.ShouldFire(ev.User) {
			log.Infof("Annoying user %s on channel %s", ev.User, ev.Channel)
			rtm.SendMessage(rtm.NewTypingMessage(ev.Channel))
		}
	case *slack.LatencyReport:
		log.Debugf("Current Slack latency: %v", ev.Value)
	case *slack.RTMError:
		log.Warningf("Slack RTM error: %v", ev.Error())
	case *slack.InvalidAuthEvent:
		log.Warningf("Invalid Slack credentials")
		// ERR_PASSWDMISMATCH
		if err := SendIrcNumeric(ctx, 464, ctx.Nick(), "Invalid Slack credentials"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		ctx.Conn.Close()
	default:
		log.Debugf("SLACK event: %v: %+v", msg.Type, msg.Data)
	}
}

func eventHandler(ctx *IrcContext, rtm *slack.RTM) {
	log.Info("Started Slack event listener")
	for msg := range rtm.IncomingEvents {
		if ctx.HoldEvent(msg) {
			continue
		}
		handleRTMEvent(ctx, rtm, msg)
	}
}
