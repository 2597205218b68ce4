package remind

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
	"github.com/go-warden/warden/pulse"
)

// Notify implements pulse.Effects and announces that the bump is ready
// again. Returning an error keeps the reminder armed so the engine retries
// on the next tick, e.g. when the channel is temporarily not writable.
func (c *Cog) Notify(ctx context.Context, scope string) error {
	conf, err := c.loadConfig(scope)
	if err != nil {
		return err
	}

	channel := conf.target()
	if channel == "" {
		// There is nowhere to deliver the reminder to, so it is dropped
		// instead of retried forever.
		c.logger.Warn("No channel to deliver the bump reminder to", zap.String("guild", scope))
		return nil
	}

	c.logger.Info("Sending bump reminder",
		zap.String("guild", scope),
		zap.String("channel", channel),
	)

	return c.announce(channel, conf)
}

// announce sends the reminder embed with an optional role ping. Adapters
// without embed support get a plain text rendition instead.
func (c *Cog) announce(channel string, conf *guildConfig) error {
	var content string
	if conf.Role != "" {
		content = "<@&" + conf.Role + ">"
	}

	embed := conf.embed()
	sender, ok := c.adapter.(warden.EmbedSender)
	if !ok {
		text := embed.Title + " " + embed.Description
		if content != "" {
			text = content + " " + text
		}
		return c.adapter.Send(text, channel)
	}

	return sender.SendEmbed(channel, content, embed)
}

// Countdown implements pulse.Effects and renames the reminder channel to
// reflect the remaining cooldown. Transitions between the ready and the wait
// name apply immediately, the minute by minute countdown updates are
// throttled because Discord only allows two channel renames per ten minutes.
func (c *Cog) Countdown(ctx context.Context, scope string, remaining time.Duration, ready bool) error {
	renamer, ok := c.adapter.(warden.ChannelRenamer)
	if !ok {
		return nil
	}

	conf, err := c.loadConfig(scope)
	if err != nil {
		return err
	}

	// Only an explicitly configured channel is renamed. Falling back to the
	// last bump channel would rename a general chat channel.
	if conf.Channel == "" {
		return nil
	}

	name := conf.waitLabel(remaining)
	if ready {
		name = conf.readyLabel()
	}

	c.mu.Lock()
	last, seen := c.labels[scope]
	c.mu.Unlock()

	if seen && last.channel == conf.Channel && last.name == name {
		return nil
	}

	transition := !seen || last.channel != conf.Channel || last.ready != ready
	if !ready && !transition && !c.renames.Allow(scope) {
		return nil
	}

	if err := renamer.RenameChannel(conf.Channel, name); err != nil {
		return errors.Wrapf(err, "failed to rename channel to %q", name)
	}

	c.mu.Lock()
	c.labels[scope] = appliedLabel{channel: conf.Channel, name: name, ready: ready}
	c.mu.Unlock()

	return nil
}

// Show implements pulse.Effects. Bump reminders do not rotate anything.
func (c *Cog) Show(ctx context.Context, scope string, item pulse.Item) error {
	return nil
}
