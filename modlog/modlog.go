// Package modlog posts an embed to a configured log channel whenever a
// message is edited or deleted, so moderators can review content that is no
// longer visible. The previous content of edited and deleted messages is
// only available when the adapter keeps a cache of recent messages.
package modlog

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
)

// Scope is the permission scope required to configure the message log.
const Scope = "modlog"

// logColor is the accent color of the log embeds.
const logColor = 0xD30000

// noContent is shown in place of message content the adapter did not cache.
const noContent = "*No content*"

type config struct {
	Channel string `json:"channel"`
}

// A Cog posts message edits and deletions to a log channel.
type Cog struct {
	logger  *zap.Logger
	store   *warden.Storage
	auth    *warden.Auth
	adapter warden.Adapter
	prefix  string
}

// New creates the modlog cog and registers its event handlers and commands
// at the given bot.
func New(b *warden.Bot) *Cog {
	c := &Cog{
		logger:  b.Logger.Named("modlog"),
		store:   b.Store,
		auth:    b.Auth,
		adapter: b.Adapter,
		prefix:  b.Prefix(),
	}

	b.Brain.RegisterHandler(c.handleUpdate)
	b.Brain.RegisterHandler(c.handleDelete)

	b.Command("modlog channel", "!modlog channel [#channel] — log message edits and deletions", c.channel)
	b.Command("modlog off", "!modlog off — stop logging message edits and deletions", c.off)

	return c
}

func (c *Cog) handleUpdate(evt warden.MessageUpdatedEvent) error {
	if evt.Guild == "" || evt.OldText == evt.Text {
		return nil
	}

	before := evt.OldText
	if before == "" {
		before = noContent
	}
	after := evt.Text
	if after == "" {
		after = noContent
	}

	embed := warden.Embed{
		Title: "📝 Message Edited",
		Color: logColor,
		Fields: []warden.EmbedField{
			{Name: "Before", Value: before},
			{Name: "After", Value: after},
			{Name: "Channel", Value: "<#" + evt.Channel + ">", Inline: true},
		},
		Footer: footer(evt.AuthorID),
	}

	return c.post(evt.Guild, evt.Channel, embed)
}

func (c *Cog) handleDelete(evt warden.MessageDeletedEvent) error {
	if evt.Guild == "" {
		return nil
	}

	content := evt.Text
	if content == "" {
		content = noContent
	}

	embed := warden.Embed{
		Title: "🗑 Message Deleted",
		Color: logColor,
		Fields: []warden.EmbedField{
			{Name: "Content", Value: content},
			{Name: "Channel", Value: "<#" + evt.Channel + ">", Inline: true},
		},
		Footer: footer(evt.AuthorID),
	}

	return c.post(evt.Guild, evt.Channel, embed)
}

// post sends the embed to the configured log channel of the guild. Events
// from the log channel itself are dropped so cleaning up the log does not
// fill it right back up.
func (c *Cog) post(guild, channel string, embed warden.Embed) error {
	conf, ok, err := c.load(guild)
	if err != nil {
		return err
	}
	if !ok || conf.Channel == channel {
		return nil
	}

	sender, isSender := c.adapter.(warden.EmbedSender)
	if !isSender {
		c.logger.Debug("Adapter cannot send embeds")
		return nil
	}

	err = sender.SendEmbed(conf.Channel, "", embed)
	return errors.Wrap(err, "failed to post message log")
}

func footer(authorID string) string {
	if authorID == "" {
		return "User ID: unknown"
	}

	return "User ID: " + authorID
}

func (c *Cog) authorized(msg *warden.Message) bool {
	if msg.Guild == "" {
		msg.Respond("This command only works in a server.")
		return false
	}

	if err := c.auth.CheckPermission(Scope, msg.AuthorID); err != nil {
		if !errors.Is(err, warden.ErrNotAllowed) {
			c.logger.Error("Failed to check permission", zap.Error(err))
		}
		msg.Respond("You are not allowed to configure the message log.")
		return false
	}

	return true
}

// channel points the message log at the mentioned channel, or at the channel
// the command was sent in when none is mentioned.
func (c *Cog) channel(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	target := msg.Channel
	if args := strings.TrimSpace(msg.Matches[0]); args != "" {
		target = parseChannel(args)
		if target == "" {
			msg.Respond("Usage: `%smodlog channel [#channel]`", c.prefix)
			return nil
		}
	}

	err := c.store.Set(storageKey(msg.Guild), config{Channel: target})
	if err != nil {
		return errors.Wrap(err, "failed to save message log config")
	}

	msg.Respond("📜 Message edits and deletions are now logged to <#%s>.", target)
	return nil
}

func (c *Cog) off(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	ok, err := c.store.Delete(storageKey(msg.Guild))
	if err != nil {
		return errors.Wrap(err, "failed to delete message log config")
	}

	if !ok {
		msg.Respond("Message logging is not configured.")
		return nil
	}

	msg.Respond("Message logging is now off.")
	return nil
}

// parseChannel extracts the ID from a <#channel> mention.
func parseChannel(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "<#") || !strings.HasSuffix(s, ">") {
		return ""
	}

	return s[2 : len(s)-1]
}

func (c *Cog) load(guild string) (config, bool, error) {
	var conf config
	ok, err := c.store.Get(storageKey(guild), &conf)
	if err != nil {
		return config{}, false, errors.Wrap(err, "failed to load message log config")
	}

	return conf, ok, nil
}

func storageKey(guild string) string {
	return "modlog." + guild
}
