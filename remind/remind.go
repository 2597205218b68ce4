// Package remind implements a server bump reminder. It watches for the
// confirmation message of a bump bot (DISBOARD by default), thanks the user
// who bumped and reminds the server once the bump cooldown has elapsed.
// Between bumps the reminder channel can be renamed to a countdown so members
// see at a glance when the next bump is due.
//
// All timing runs through a pulse.Engine, so reminders survive restarts and
// are delivered at most once per bump.
package remind

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/go-warden/warden"
	"github.com/go-warden/warden/pulse"
	"github.com/go-warden/warden/throttle"
)

const (
	// Scope is the permission scope required to manage bump reminders.
	Scope = "remind"

	// DefaultBumper is the user ID of the DISBOARD bot.
	DefaultBumper = "302050872383242240"

	// DefaultPhrase marks a successful bump in a message of the bumper bot.
	// It is matched case insensitively against the message text and all
	// embed contents.
	DefaultPhrase = "Bump done"

	// DefaultReply thanks the bumper. {user} mentions the bumper,
	// {user_name} inserts their plain name and {minutes} the full cooldown
	// in minutes.
	DefaultReply = "Thanks {user} for bumping! Next bump in {minutes} minutes."

	// DefaultTitle, DefaultText and DefaultColor make up the reminder embed
	// for guilds that never customized it.
	DefaultTitle = "🔔 It's time to bump!"
	DefaultText  = "Please do /bump to bump the server again."
	DefaultColor = 0x5865F2

	// DefaultReadyName and DefaultWaitName are the channel names applied
	// when the bump is available respectively still on cooldown. {minutes}
	// is replaced with the remaining whole minutes, rounded up.
	DefaultReadyName = "bump-ready"
	DefaultWaitName  = "bump-wait-{minutes}m"

	// DefaultRenameThrottle spaces out the countdown renames of the
	// reminder channel. Discord only allows two channel renames per ten
	// minutes.
	DefaultRenameThrottle = 5 * time.Minute
)

const statusColor = 0x2B2D31

// A Cog watches for server bumps and sends the reminder once the cooldown
// has elapsed. It implements pulse.Effects; the engine it drives is owned by
// the cog and shares the storage of the bot.
type Cog struct {
	logger     *zap.Logger
	store      *warden.Storage
	auth       *warden.Auth
	adapter    warden.Adapter
	engine     *pulse.Engine
	engineOpts []pulse.Option
	renames    *throttle.Gate

	mu     sync.Mutex
	labels map[string]appliedLabel
}

// appliedLabel remembers the last channel name the cog applied so unchanged
// labels never hit the chat platform again.
type appliedLabel struct {
	channel string
	name    string
	ready   bool
}

// An Option configures the Cog during New.
type Option func(*Cog)

// WithRenameThrottle changes how often the countdown may rename the reminder
// channel while the cooldown is running.
func WithRenameThrottle(d time.Duration) Option {
	return func(c *Cog) {
		if d > 0 {
			c.renames = throttle.New(d)
		}
	}
}

// WithEngineOptions passes additional options to the pulse engine of the cog,
// e.g. pulse.WithMetrics.
func WithEngineOptions(opts ...pulse.Option) Option {
	return func(c *Cog) {
		c.engineOpts = append(c.engineOpts, opts...)
	}
}

// New creates the bump reminder cog and registers its event handlers and
// commands at the given bot. The engine starts ticking when the bot runs and
// stops with it.
func New(b *warden.Bot, opts ...Option) *Cog {
	c := &Cog{
		logger:  b.Logger.Named("remind"),
		store:   b.Store,
		auth:    b.Auth,
		adapter: b.Adapter,
		labels:  map[string]appliedLabel{},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.renames == nil {
		c.renames = throttle.New(DefaultRenameThrottle)
	}

	engineOpts := append([]pulse.Option{pulse.WithKeyPrefix("remind.pulse")}, c.engineOpts...)
	c.engine = pulse.New(c.logger.Named("engine"), b.Store, c, engineOpts...)

	b.Brain.RegisterHandler(c.handleMessage)
	b.Brain.RegisterHandler(func(warden.InitEvent) error {
		return c.engine.Start(b.Context)
	})
	b.Brain.RegisterHandler(func(warden.ShutdownEvent) {
		c.engine.Stop()
	})

	b.Command("bump status", "!bump status — show the bump reminder configuration", c.status)
	b.Command("bump channel", "!bump channel [#channel|off] — where reminders are posted", c.setChannel)
	b.Command("bump role", "!bump role [@role|off] — role to ping with the reminder", c.setRole)
	b.Command("bump cooldown", "!bump cooldown <duration> — time between bumps", c.setCooldown)
	b.Command("bump reply", "!bump reply <template|off|default> — thanks message after a bump", c.setReply)
	b.Command("bump names", "!bump names <ready> | <wait> — channel names, {minutes} is replaced", c.setNames)
	b.Command("bump embed", "!bump embed <title> | <text> | <#color> — the reminder embed", c.setEmbed)
	b.Command("bump now", "!bump now — send the reminder immediately", c.now)
	b.Command("bump reset", "!bump reset — reset all bump reminder settings", c.reset)

	return c
}

// handleMessage watches every guild message for the bump confirmation of the
// configured bump bot.
func (c *Cog) handleMessage(ctx context.Context, evt warden.ReceiveMessageEvent) error {
	if evt.Guild == "" {
		return nil
	}

	conf, err := c.loadConfig(evt.Guild)
	if err != nil {
		return err
	}

	if evt.AuthorID != conf.bumperID() || !matchesPhrase(evt, conf.bumpPhrase()) {
		return nil
	}

	c.logger.Info("Server bump detected",
		zap.String("guild", evt.Guild),
		zap.String("channel", evt.Channel),
	)

	ts := evt.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	c.engine.RecordEvent(evt.Guild, ts)

	if conf.LastChannel != evt.Channel {
		conf.LastChannel = evt.Channel
		if err := c.saveConfig(evt.Guild, conf); err != nil {
			c.logger.Error("Failed to remember bump channel", zap.Error(err))
		}
	}

	c.thank(evt, conf)
	c.engine.Refresh(ctx, evt.Guild)

	return nil
}

// matchesPhrase reports whether the message contains the bump confirmation
// phrase, either in its plain text or in one of its embeds. DISBOARD puts
// the confirmation into an embed description.
func matchesPhrase(evt warden.ReceiveMessageEvent, phrase string) bool {
	phrase = strings.ToLower(phrase)
	if strings.Contains(strings.ToLower(evt.Text), phrase) {
		return true
	}

	for _, e := range evt.Embeds {
		if strings.Contains(strings.ToLower(e.Title+" "+e.Description), phrase) {
			return true
		}
	}

	return false
}

// thank replies to a detected bump. The bumper is taken from the first
// mention of the confirmation message; DISBOARD mentions the user who ran
// the bump command.
func (c *Cog) thank(evt warden.ReceiveMessageEvent, conf *guildConfig) {
	if conf.ReplyOff {
		return
	}

	mention, name := "someone", "someone"
	if len(evt.Mentions) > 0 {
		mention = "<@" + evt.Mentions[0].ID + ">"
		if evt.Mentions[0].Name != "" {
			name = evt.Mentions[0].Name
		}
	}

	st := c.engine.Status(evt.Guild)
	minutes := (st.Cooldown + 59) / 60

	text := strings.NewReplacer(
		"{user}", mention,
		"{user_name}", name,
		"{minutes}", strconv.FormatInt(minutes, 10),
	).Replace(conf.replyTemplate())

	if err := c.adapter.Send(text, evt.Channel); err != nil {
		c.logger.Error("Failed to thank the bumper", zap.Error(err))
	}
}
