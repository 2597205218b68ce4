package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-warden/warden"
	"github.com/go-warden/warden/afk"
	"github.com/go-warden/warden/autoreact"
	"github.com/go-warden/warden/blacklist"
	"github.com/go-warden/warden/embeds"
	"github.com/go-warden/warden/emoji"
	"github.com/go-warden/warden/help"
	"github.com/go-warden/warden/metrics"
	"github.com/go-warden/warden/modlog"
	"github.com/go-warden/warden/presence"
	"github.com/go-warden/warden/pulse"
	"github.com/go-warden/warden/purge"
	"github.com/go-warden/warden/remind"
	"github.com/go-warden/warden/sticky"
	"github.com/go-warden/warden/tickets"
	"github.com/go-warden/warden/triggers"
)

// Bot bundles the warden bot with the cogs the configuration enabled.
type Bot struct {
	*warden.Bot
	conf    Config
	metrics metrics.Metrics
	scopes  []string
}

// New creates the bot with all configured modules and cogs and grants the
// admins their scopes. The context stops the bot when it is canceled.
func New(ctx context.Context, conf Config, m metrics.Metrics) (*Bot, error) {
	logger, err := conf.Log.Logger()
	if err != nil {
		return nil, err
	}

	modules := []warden.Module{warden.WithContext(ctx)}
	if logger != nil {
		modules = append(modules, warden.WithLogger(logger))
	}
	modules = append(modules, conf.Modules(m)...)

	b := &Bot{
		Bot:     warden.New(conf.Name, modules...),
		conf:    conf,
		metrics: m,
	}

	b.Brain.RegisterHandler(func(warden.ReceiveMessageEvent) {
		b.metrics.MessagesCount.Observe(1)
	})

	b.registerCogs()

	err = b.grantAdmins()
	if err != nil {
		return nil, err
	}

	return b, nil
}

// registerCogs sets up every enabled cog and collects the permission scopes
// that admins need to manage them.
func (b *Bot) registerCogs() {
	if b.conf.Cogs.Remind {
		remind.New(b.Bot, remind.WithEngineOptions(pulse.WithMetrics(b.metrics)))
		b.scopes = append(b.scopes, remind.Scope)
	}
	if b.conf.Cogs.Presence {
		presence.New(b.Bot, presence.WithEngineOptions(pulse.WithMetrics(b.metrics)))
		b.scopes = append(b.scopes, presence.Scope)
	}
	if b.conf.Cogs.AFK {
		afk.New(b.Bot)
		b.scopes = append(b.scopes, afk.Scope)
	}
	if b.conf.Cogs.Blacklist {
		blacklist.New(b.Bot)
		b.scopes = append(b.scopes, blacklist.Scope)
	}
	if b.conf.Cogs.Sticky {
		sticky.New(b.Bot)
		b.scopes = append(b.scopes, sticky.Scope)
	}
	if b.conf.Cogs.Triggers {
		triggers.New(b.Bot)
		b.scopes = append(b.scopes, triggers.Scope)
	}
	if b.conf.Cogs.Purge {
		purge.New(b.Bot)
		b.scopes = append(b.scopes, purge.Scope)
	}
	if b.conf.Cogs.Emoji {
		emoji.New(b.Bot)
		b.scopes = append(b.scopes, emoji.Scope)
	}
	if b.conf.Cogs.Embeds {
		embeds.New(b.Bot)
		b.scopes = append(b.scopes, embeds.Scope)
	}
	if b.conf.Cogs.Tickets {
		tickets.New(b.Bot)
		b.scopes = append(b.scopes, tickets.Scope)
	}
	if b.conf.Cogs.Autoreact {
		autoreact.New(b.Bot)
		b.scopes = append(b.scopes, autoreact.Scope)
	}
	if b.conf.Cogs.Modlog {
		modlog.New(b.Bot)
		b.scopes = append(b.scopes, modlog.Scope)
	}
	if b.conf.Cogs.Help {
		help.New(b.Bot)
	}
}

// grantAdmins gives every configured admin the scope of every enabled cog.
// Grants are persisted, so admins keep scopes of cogs that were enabled in
// an earlier run until they are revoked.
func (b *Bot) grantAdmins() error {
	for _, userID := range b.conf.Admins {
		for _, scope := range b.scopes {
			_, err := b.Auth.Grant(scope, userID)
			if err != nil {
				return errors.Wrapf(err, "failed to grant %q to admin %s", scope, userID)
			}
		}
	}

	return nil
}
