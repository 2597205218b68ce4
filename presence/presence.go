// Package presence manages the bots own status and activity. A list of
// activities can be rotated on a fixed interval, e.g. to alternate between
// "Playing …" and "Watching …" displays. The rotation list, the interval and
// the running state are persisted, so a rotation that was running before a
// restart resumes on its own.
package presence

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
	"github.com/go-warden/warden/pulse"
)

const (
	// Scope is the permission scope required to manage the bot presence.
	Scope = "presence"

	// DefaultStreamURL is attached to streaming activities that were added
	// without an explicit URL. Discord requires one to render the
	// "Streaming" display.
	DefaultStreamURL = "https://twitch.tv/example"

	// rotationScope is the single engine scope of this cog. The presence is
	// a property of the bot, not of a guild.
	rotationScope = "global"

	settingsKey = "presence.global"
)

// settings is the persisted presence outside of the rotation list: the
// status and the activity that is currently shown. The rotation itself lives
// in the engine state.
type settings struct {
	Status string `json:"status,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Text   string `json:"text,omitempty"`
	URL    string `json:"url,omitempty"`
}

func (s *settings) status() string {
	switch s.Status {
	case "online", "idle", "dnd", "invisible":
		return s.Status
	}
	return "online"
}

func (s *settings) activity() *warden.Activity {
	if s.Text == "" {
		return nil
	}

	return &warden.Activity{Kind: s.Kind, Text: s.Text, URL: s.URL}
}

// A Cog rotates and persists the bot presence. It implements pulse.Effects;
// only the rotation half of the engine is used, the cooldown half never
// fires because the cog records no events.
type Cog struct {
	logger     *zap.Logger
	store      *warden.Storage
	auth       *warden.Auth
	adapter    warden.Adapter
	engine     *pulse.Engine
	engineOpts []pulse.Option
}

// An Option configures the Cog during New.
type Option func(*Cog)

// WithEngineOptions passes additional options to the pulse engine of the cog,
// e.g. pulse.WithMetrics.
func WithEngineOptions(opts ...pulse.Option) Option {
	return func(c *Cog) {
		c.engineOpts = append(c.engineOpts, opts...)
	}
}

// New creates the presence cog and registers its commands at the given bot.
// The persisted presence is applied as soon as the bot runs and a rotation
// that was running or is marked for autostart resumes.
func New(b *warden.Bot, opts ...Option) *Cog {
	c := &Cog{
		logger:  b.Logger.Named("presence"),
		store:   b.Store,
		auth:    b.Auth,
		adapter: b.Adapter,
	}

	for _, opt := range opts {
		opt(c)
	}

	engineOpts := append([]pulse.Option{pulse.WithKeyPrefix("presence.pulse")}, c.engineOpts...)
	c.engine = pulse.New(c.logger.Named("engine"), b.Store, c, engineOpts...)

	b.Brain.RegisterHandler(func(warden.InitEvent) error {
		if err := c.engine.Start(b.Context); err != nil {
			return err
		}

		conf, err := c.loadSettings()
		if err != nil {
			return err
		}

		err = c.applyPresence(conf)
		if errors.Is(err, warden.ErrNotImplemented) {
			return nil
		}
		return err
	})
	b.Brain.RegisterHandler(func(warden.ShutdownEvent) {
		c.engine.Stop()
	})

	b.Command("rotation add", "!rotation add <type> <text> — add an activity to the rotation", c.rotationAdd)
	b.Command("rotation del", "!rotation del <n> — remove a rotation item by its number", c.rotationDel)
	b.Command("rotation list", "!rotation list — list all rotation items", c.rotationList)
	b.Command("rotation start", "!rotation start [interval] — start rotating activities", c.rotationStart)
	b.Command("rotation stop", "!rotation stop — stop the rotation", c.rotationStop)
	b.Command("rotation autostart", "!rotation autostart <on|off> — resume the rotation on boot", c.rotationAutostart)
	b.Command("status", "!status [online|idle|dnd|invisible] — show or set the bot status", c.status)
	b.Command("activity", "!activity <type> <text>|off — set a fixed activity, stops the rotation", c.activity)

	return c
}

func (c *Cog) loadSettings() (*settings, error) {
	conf := new(settings)
	_, err := c.store.Get(settingsKey, conf)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load presence settings")
	}

	return conf, nil
}

func (c *Cog) saveSettings(conf *settings) error {
	err := c.store.Set(settingsKey, conf)
	return errors.Wrap(err, "failed to save presence settings")
}

// applyPresence pushes the given settings to the chat platform. It returns
// ErrNotImplemented if the adapter cannot change the presence.
func (c *Cog) applyPresence(conf *settings) error {
	updater, ok := c.adapter.(warden.PresenceUpdater)
	if !ok {
		return warden.ErrNotImplemented
	}

	return updater.SetPresence(warden.Presence{
		Status:   conf.status(),
		Activity: conf.activity(),
	})
}

// Show implements pulse.Effects and applies the next rotation item. The item
// is persisted as the current activity first so a restart comes back up with
// the same display.
func (c *Cog) Show(ctx context.Context, scope string, item pulse.Item) error {
	conf, err := c.loadSettings()
	if err != nil {
		return err
	}

	conf.Kind, conf.Text, conf.URL = item.Kind, item.Text, item.URL
	if err := c.saveSettings(conf); err != nil {
		c.logger.Error("Failed to persist rotated activity", zap.Error(err))
	}

	err = c.applyPresence(conf)
	if errors.Is(err, warden.ErrNotImplemented) {
		return nil
	}
	return err
}

// Notify implements pulse.Effects. The presence rotation records no events,
// so there is never anything to announce.
func (c *Cog) Notify(ctx context.Context, scope string) error {
	return nil
}

// Countdown implements pulse.Effects and is a no-op for the same reason as
// Notify.
func (c *Cog) Countdown(ctx context.Context, scope string, remaining time.Duration, ready bool) error {
	return nil
}
