// Package discord implements a Discord adapter for the warden bot library.
package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-warden/warden"
	"github.com/go-warden/warden/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultCacheSize is the number of recent messages the adapter remembers
	// so it can resolve the old content of edited and deleted messages.
	DefaultCacheSize = 1024

	// DefaultSendRate is the number of outgoing messages per second the
	// adapter allows before it starts queueing sends.
	DefaultSendRate = 20

	// DefaultSendBurst is the number of sends that may go out back to back
	// before the send rate kicks in.
	DefaultSendBurst = 5
)

// DefaultIntents covers everything the stock cogs consume: guild messages
// including their content, message edits and deletions, typing starts and
// emoji metadata.
const DefaultIntents = discordgo.IntentGuilds |
	discordgo.IntentGuildMessages |
	discordgo.IntentMessageContent |
	discordgo.IntentGuildMessageTyping |
	discordgo.IntentGuildEmojis

// BotAdapter is a warden.Adapter implementation that connects the bot to
// Discord via the gateway websocket API. Beyond plain text messages it
// implements all optional adapter capabilities of the warden package (embeds,
// bulk deletion, channel renames, presence updates, emoji uploads, reactions
// and channel history).
type BotAdapter struct {
	context context.Context
	logger  *zap.Logger
	name    string
	userID  string

	api     discordAPI
	events  warden.EventEmitter
	limiter *rate.Limiter
	cache   *messageCache
	metrics metrics.Metrics
}

// Config contains the configuration of a BotAdapter. It can be created
// manually for use with NewAdapter or via the Option functions that are
// passed to the Adapter module.
type Config struct {
	Token  string
	Name   string
	Logger *zap.Logger

	// Intents narrow which gateway events Discord delivers to the bot.
	// Defaults to DefaultIntents if unset.
	Intents discordgo.Intent

	// CacheSize bounds the adapter side message cache that backs the old
	// content of the MessageUpdatedEvent and MessageDeletedEvent.
	CacheSize int

	// SendsPerSecond and SendBurst throttle outgoing messages across all
	// channels. Discord suspends bots that exceed its global rate limits.
	SendsPerSecond float64
	SendBurst      int

	// Metrics receives the latency of all outbound Discord calls, labeled
	// by call kind. Observations are discarded if unset.
	Metrics metrics.Metrics
}

// The discordAPI interface covers the subset of the discordgo session that
// the adapter uses. It allows mocking the Discord API in unit tests.
type discordAPI interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error

	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessagesBulkDelete(channelID string, messages []string, options ...discordgo.RequestOption) error
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildEmojiCreate(guildID string, data *discordgo.EmojiParams, options ...discordgo.RequestOption) (*discordgo.Emoji, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
}

// Adapter returns a new Discord adapter as a warden.Module. The token is the
// bot token from the Discord developer portal, without the "Bot " prefix.
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
	for _, opt := range opts {
		err := opt(&conf)
		if err != nil {
			return conf, err
		}
	}

	if conf.Logger == nil {
		conf.Logger = wconf.Logger("discord")
	}

	return conf, nil
}

// NewAdapter creates a new *BotAdapter that connects to Discord. Note that
// you will usually configure the Discord adapter as warden.Module (i.e. using
// the Adapter function of this package).
func NewAdapter(ctx context.Context, conf Config) (*BotAdapter, error) {
	session, err := discordgo.New("Bot " + conf.Token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord session")
	}

	if conf.Intents == 0 {
		conf.Intents = DefaultIntents
	}

	session.Identify.Intents = conf.Intents

	return newAdapter(ctx, session, conf)
}

func newAdapter(ctx context.Context, api discordAPI, conf Config) (*BotAdapter, error) {
	if conf.CacheSize <= 0 {
		conf.CacheSize = DefaultCacheSize
	}

	if conf.SendsPerSecond <= 0 {
		conf.SendsPerSecond = DefaultSendRate
	}

	if conf.SendBurst <= 0 {
		conf.SendBurst = DefaultSendBurst
	}

	a := &BotAdapter{
		context: ctx,
		logger:  conf.Logger,
		name:    conf.Name,
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(conf.SendsPerSecond), conf.SendBurst),
		cache:   newMessageCache(conf.CacheSize),
		metrics: conf.Metrics,
	}

	if a.logger == nil {
		a.logger = zap.NewNop()
	}

	if a.metrics.SendLatency == nil {
		a.metrics = metrics.NewNop()
	}

	self, err := a.api.User("@me")
	if err != nil {
		return nil, errors.Wrap(err, "failed to identify bot user")
	}

	a.userID = self.ID
	a.logger.Info("Connected to discord API",
		zap.String("username", self.Username),
		zap.String("user_id", self.ID),
	)

	return a, nil
}

// RegisterAt implements the warden.Adapter interface by registering the
// gateway event handlers and then opening the websocket connection. Incoming
// gateway events are translated into their corresponding warden events and
// emitted via the brain.
func (a *BotAdapter) RegisterAt(brain *warden.Brain) {
	a.events = brain

	a.api.AddHandler(a.handleReady)
	a.api.AddHandler(a.handleMessageCreate)
	a.api.AddHandler(a.handleMessageUpdate)
	a.api.AddHandler(a.handleMessageDelete)
	a.api.AddHandler(a.handleTypingStart)

	err := a.api.Open()
	if err != nil {
		a.logger.Error("Failed to open discord gateway connection", zap.Error(err))
	}
}

// Send implements the warden.Adapter interface by sending a plain text
// message to the given channel ID.
func (a *BotAdapter) Send(text, channel string) error {
	defer a.timeCall("send", time.Now())

	err := a.waitSend()
	if err != nil {
		return err
	}

	a.logger.Info("Sending message to channel",
		zap.String("channel", channel),
		// do not leak actual message content since it might be sensitive
	)

	_, err = a.api.ChannelMessageSend(channel, text, discordgo.WithContext(a.context))
	return err
}

// Close implements the warden.Adapter interface by closing the gateway
// connection.
func (a *BotAdapter) Close() error {
	return a.api.Close()
}

// waitSend blocks until the rate limiter admits another outgoing message. It
// only fails when the bot context ends while we are still waiting.
func (a *BotAdapter) waitSend() error {
	err := a.limiter.Wait(a.context)
	return errors.Wrap(err, "send rate limiter")
}

// timeCall reports the duration of an outbound Discord call, including any
// time spent waiting on the send rate limiter.
func (a *BotAdapter) timeCall(kind string, start time.Time) {
	a.metrics.SendLatency.Observe(time.Since(start).Seconds(), kind)
}
