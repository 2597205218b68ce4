// Package slack implements a Slack adapter for the warden bot library.
package slack

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-warden/warden"
	"github.com/go-warden/warden/reactions"
	"github.com/nlopes/slack"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// BotAdapter implements a warden.Adapter that reads and writes messages via
// the Slack RTM API. Slack has no bulk deletion, channel rename or emoji
// upload API comparable to Discord so the corresponding optional capabilities
// are not implemented and cogs that need them report ErrNotImplemented.
type BotAdapter struct {
	context context.Context
	logger  *zap.Logger
	name    string
	userID  string

	sendMsgParams slack.PostMessageParameters

	slack      slackAPI
	events     chan slack.RTMEvent
	disconnect func() error
}

// Config contains the configuration of a BotAdapter.
type Config struct {
	Token  string
	Name   string
	Debug  bool
	Logger *zap.Logger

	// SendMsgParams are the parameters used when sending any message.
	SendMsgParams slack.PostMessageParameters
}

// The slackAPI interface allows mocking the slack API client in unit tests.
type slackAPI interface {
	AuthTest() (*slack.AuthTestResponse, error)
	PostMessage(channelID string, opts ...slack.MsgOption) (respChannel, respTimestamp string, err error)
	DeleteMessage(channel, messageTimestamp string) (string, string, error)
	AddReaction(name string, item slack.ItemRef) error
}

// Adapter returns a new Slack adapter as warden.Module. The token is the
// "Bot User OAuth Access Token" of the Slack app.
func Adapter(token string, opts ...Option) warden.Module {
	return warden.ModuleFunc(func(wconf *warden.Config) error {
		conf, err := newConf(token, wconf, opts)
		if err != nil {
			return err
		}

		a, err := NewAdapter(wconf.Context, conf)
		if err != nil {
			return err
		}

		wconf.SetAdapter(a)
		return nil
	})
}

func newConf(token string, wconf *warden.Config, opts []Option) (Config, error) {
	conf := Config{Token: token, Name: wconf.Name}
	conf.SendMsgParams = slack.PostMessageParameters{
		AsUser:    true,
		LinkNames: 1,
	}

	for _, opt := range opts {
		err := opt(&conf)
		if err != nil {
			return conf, err
		}
	}

	if conf.Logger == nil {
		conf.Logger = wconf.Logger("slack")
	}

	return conf, nil
}

// NewAdapter creates a new *BotAdapter that connects to Slack. Note that you
// will usually configure the slack adapter as warden.Module (i.e. using the
// Adapter function of this package).
func NewAdapter(ctx context.Context, conf Config) (*BotAdapter, error) {
	client := slack.New(conf.Token, slack.OptionDebug(conf.Debug))
	rtm := client.NewRTM()

	a, err := newAdapter(ctx, client, rtm.IncomingEvents, conf)
	if err != nil {
		return nil, err
	}

	a.disconnect = rtm.Disconnect
	go rtm.ManageConnection()

	return a, nil
}

func newAdapter(ctx context.Context, client slackAPI, events chan slack.RTMEvent, conf Config) (*BotAdapter, error) {
	a := &BotAdapter{
		context:       ctx,
		logger:        conf.Logger,
		name:          conf.Name,
		slack:         client,
		events:        events,
		sendMsgParams: conf.SendMsgParams,
	}

	if a.logger == nil {
		a.logger = zap.NewNop()
	}

	resp, err := client.AuthTest()
	if err != nil {
		return nil, errors.Wrap(err, "slack auth test failed")
	}

	a.userID = resp.UserID
	a.logger.Info("Connected to slack API",
		zap.String("url", resp.URL),
		zap.String("user", resp.User),
		zap.String("user_id", resp.UserID),
	)

	return a, nil
}

// RegisterAt implements the warden.Adapter interface by starting a goroutine
// that translates the incoming RTM events into their corresponding warden
// events and emits them via the brain.
func (a *BotAdapter) RegisterAt(brain *warden.Brain) {
	go a.handleSlackEvents(brain)
}

func (a *BotAdapter) handleSlackEvents(brain *warden.Brain) {
	for msg := range a.events {
		switch ev := msg.Data.(type) {
		case *slack.MessageEvent:
			a.handleMessageEvent(ev, brain)

		case *slack.ReactionAddedEvent:
			a.handleReactionAddedEvent(ev, brain)

		case *slack.UserTypingEvent:
			brain.Emit(warden.UserTypingEvent{
				User:    warden.User{ID: ev.User},
				Channel: ev.Channel,
			})

		case *slack.RTMError:
			a.logger.Error("Slack RTM error", zap.String("error", ev.Error()))

		case *slack.InvalidAuthEvent:
			a.logger.Error("Invalid authentication error", zap.Any("event", ev))
			return
		}
	}
}

func (a *BotAdapter) handleMessageEvent(ev *slack.MessageEvent, brain *warden.Brain) {
	switch ev.SubType {
	case "message_changed":
		if ev.SubMessage == nil || ev.SubMessage.User == a.userID {
			return
		}

		// Slack does not include the previous content so OldText stays empty.
		brain.Emit(warden.MessageUpdatedEvent{
			ID:       ev.SubMessage.Timestamp,
			Text:     ev.SubMessage.Text,
			AuthorID: ev.SubMessage.User,
			Channel:  ev.Channel,
			Time:     slackTime(ev.Timestamp),
		})

	case "message_deleted":
		brain.Emit(warden.MessageDeletedEvent{
			ID:      ev.DeletedTimestamp,
			Channel: ev.Channel,
			Time:    slackTime(ev.Timestamp),
		})

	default:
		if ev.User == a.userID {
			return
		}

		brain.Emit(warden.ReceiveMessageEvent{
			ID:         ev.Timestamp,
			Text:       ev.Text,
			AuthorID:   ev.User,
			AuthorName: ev.Username,
			Channel:    ev.Channel,
			Mentions:   slackMentions(ev.Text),
			Bot:        ev.BotID != "",
			Time:       slackTime(ev.Timestamp),
			Data:       ev,
		})
	}
}

func (a *BotAdapter) handleReactionAddedEvent(ev *slack.ReactionAddedEvent, brain *warden.Brain) {
	if ev.Item.Type != "message" {
		return
	}

	brain.Emit(reactions.Event{
		Reaction:  reactions.Reaction{Shortcode: ev.Reaction},
		MessageID: ev.Item.Timestamp,
		Channel:   ev.Item.Channel,
		AuthorID:  ev.User,
	})
}

// Send implements the warden.Adapter interface by sending all text messages
// to the given slack channel ID.
func (a *BotAdapter) Send(text, channel string) error {
	a.logger.Info("Sending message to channel",
		zap.String("channel_id", channel),
		// do not leak actual message content since it might be sensitive
	)

	_, _, err := a.slack.PostMessage(channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionPostMessageParameters(a.sendMsgParams),
	)

	return err
}

// Close implements the warden.Adapter interface by disconnecting from the
// slack RTM API.
func (a *BotAdapter) Close() error {
	if a.disconnect == nil {
		return nil
	}

	return a.disconnect()
}

// PostMessage implements the warden.MessagePoster interface. Slack identifies
// messages by their timestamp which is reported as message ID.
func (a *BotAdapter) PostMessage(text, channel string) (string, error) {
	_, ts, err := a.slack.PostMessage(channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionPostMessageParameters(a.sendMsgParams),
	)

	return ts, err
}

// SendEmbed implements the warden.EmbedSender interface by rendering the
// embed as a slack message attachment.
func (a *BotAdapter) SendEmbed(channel, text string, embed warden.Embed) error {
	attachment := slack.Attachment{
		Title:    embed.Title,
		Text:     embed.Description,
		Color:    fmt.Sprintf("#%06X", embed.Color),
		ThumbURL: embed.Thumbnail,
		Footer:   embed.Footer,
	}

	for _, f := range embed.Fields {
		attachment.Fields = append(attachment.Fields, slack.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Inline,
		})
	}

	_, _, err := a.slack.PostMessage(channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionAttachments(attachment),
		slack.MsgOptionPostMessageParameters(a.sendMsgParams),
	)

	return err
}

// DeleteMessage implements the warden.MessageDeleter interface.
func (a *BotAdapter) DeleteMessage(channel, messageID string) error {
	_, _, err := a.slack.DeleteMessage(channel, messageID)
	return err
}

// React implements the warden.ReactionAwareAdapter interface.
func (a *BotAdapter) React(reaction reactions.Reaction, msg warden.Message) error {
	ref := slack.NewRefToMessage(msg.Channel, msg.ID)
	return a.slack.AddReaction(slackReaction(reaction), ref)
}

// slackNames maps the unicode emoji used by the cogs to their slack name.
var slackNames = map[string]string{
	"👍":  "thumbsup",
	"👎":  "thumbsdown",
	"👀":  "eyes",
	"🎉":  "tada",
	"🔔":  "bell",
	"🗑️": "wastebasket",
}

func slackReaction(r reactions.Reaction) string {
	if name, ok := slackNames[r.Shortcode]; ok {
		return name
	}

	return strings.Trim(r.Shortcode, ":")
}

var slackMentionRE = regexp.MustCompile(`<@([UW][A-Z0-9]+)>`)

func slackMentions(text string) []warden.User {
	matches := slackMentionRE.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	out := make([]warden.User, 0, len(matches))
	for _, m := range matches {
		out = append(out, warden.User{ID: m[1]})
	}

	return out
}

// slackTime converts a slack message timestamp (e.g. "1573037694.000200")
// into a time.Time.
func slackTime(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Now()
	}

	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}
