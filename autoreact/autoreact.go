// Package autoreact attaches a configured set of reactions to every message
// of a channel, e.g. a 📋 on everything posted in a suggestions channel.
// Edited messages are covered as well since platforms drop reactions when a
// message is replaced. Messages of other bots get reactions too, the adapter
// already drops the bot's own.
package autoreact

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
	"github.com/go-warden/warden/reactions"
)

// Scope is the permission scope required to manage auto reactions.
const Scope = "autoreact"

// MaxPerChannel bounds how many reactions a single channel may configure.
const MaxPerChannel = 10

// customEmoji matches custom emoji tokens such as <:blobwave:123> or
// animated <a:party:456>. The reaction code the platforms expect for those
// is "name:id".
var customEmoji = regexp.MustCompile(`^<a?:([A-Za-z0-9_]+):(\d+)>$`)

// A Cog reacts to new and edited messages in configured channels.
type Cog struct {
	logger  *zap.Logger
	store   *warden.Storage
	auth    *warden.Auth
	adapter warden.Adapter
	prefix  string
}

// New creates the autoreact cog and registers its event handlers and
// commands at the given bot.
func New(b *warden.Bot) *Cog {
	c := &Cog{
		logger:  b.Logger.Named("autoreact"),
		store:   b.Store,
		auth:    b.Auth,
		adapter: b.Adapter,
		prefix:  b.Prefix(),
	}

	b.Brain.RegisterHandler(c.handleMessage)
	b.Brain.RegisterHandler(c.handleUpdate)

	b.Command("autoreact add", "!autoreact add <emoji> — react to every message in this channel", c.add)
	b.Command("autoreact remove", "!autoreact remove <emoji> — stop one auto reaction", c.remove)
	b.Command("autoreact list", "!autoreact list — show the auto reactions of this channel", c.list)

	return c
}

func (c *Cog) handleMessage(evt warden.ReceiveMessageEvent) error {
	if evt.Guild == "" || strings.HasPrefix(evt.Text, c.prefix) {
		return nil
	}

	return c.react(evt.Guild, evt.Channel, evt.ID)
}

func (c *Cog) handleUpdate(evt warden.MessageUpdatedEvent) error {
	if evt.Guild == "" || strings.HasPrefix(evt.Text, c.prefix) {
		return nil
	}

	return c.react(evt.Guild, evt.Channel, evt.ID)
}

// react attaches all configured reactions of the channel to the message.
// Individual failures are logged and skipped so one revoked emoji does not
// silence the rest.
func (c *Cog) react(guild, channel, messageID string) error {
	config, err := c.load(guild)
	if err != nil {
		return err
	}

	emojis := config[channel]
	if len(emojis) == 0 {
		return nil
	}

	reactor, ok := c.adapter.(warden.ReactionAwareAdapter)
	if !ok {
		c.logger.Debug("Adapter cannot add reactions")
		return nil
	}

	msg := warden.Message{ID: messageID, Channel: channel, Guild: guild}
	for _, emoji := range emojis {
		err := reactor.React(reactions.Reaction{Shortcode: emoji}, msg)
		if err != nil {
			c.logger.Warn("Failed to react",
				zap.String("channel", channel),
				zap.String("emoji", emoji),
				zap.Error(err),
			)
		}
	}

	return nil
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
		msg.Respond("You are not allowed to manage auto reactions.")
		return false
	}

	return true
}

// add configures one more reaction for the channel the command was sent in.
func (c *Cog) add(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	emoji := normalize(msg.Matches[0])
	if emoji == "" {
		msg.Respond("Usage: `%sautoreact add <emoji>`", c.prefix)
		return nil
	}

	config, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	emojis := config[msg.Channel]
	for _, e := range emojis {
		if e == emoji {
			msg.Respond("⚠️ **%s** is already an auto reaction in this channel.", emoji)
			return nil
		}
	}

	if len(emojis) >= MaxPerChannel {
		msg.Respond("A channel can have at most %d auto reactions.", MaxPerChannel)
		return nil
	}

	config[msg.Channel] = append(emojis, emoji)
	if err := c.save(msg.Guild, config); err != nil {
		return err
	}

	msg.Respond("✅ Every message in this channel now gets a **%s** reaction.", emoji)
	return nil
}

func (c *Cog) remove(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	emoji := normalize(msg.Matches[0])
	if emoji == "" {
		msg.Respond("Usage: `%sautoreact remove <emoji>`", c.prefix)
		return nil
	}

	config, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	emojis := config[msg.Channel]
	idx := -1
	for i, e := range emojis {
		if e == emoji {
			idx = i
			break
		}
	}

	if idx < 0 {
		msg.Respond("⚠️ **%s** is not an auto reaction in this channel.", emoji)
		return nil
	}

	emojis = append(emojis[:idx], emojis[idx+1:]...)
	if len(emojis) == 0 {
		delete(config, msg.Channel)
	} else {
		config[msg.Channel] = emojis
	}

	if err := c.save(msg.Guild, config); err != nil {
		return err
	}

	msg.Respond("🗑️ Removed **%s** from this channel's auto reactions.", emoji)
	return nil
}

func (c *Cog) list(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	config, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	emojis := config[msg.Channel]
	if len(emojis) == 0 {
		msg.Respond("This channel has no auto reactions. Add one with `%sautoreact add <emoji>`.", c.prefix)
		return nil
	}

	sorted := append([]string(nil), emojis...)
	sort.Strings(sorted)

	msg.Respond("🤖 Auto reactions in this channel: **%s**", strings.Join(sorted, ", "))
	return nil
}

// normalize turns the user input into the reaction code the adapter expects.
// Custom emoji tokens become "name:id", everything else (unicode emoji)
// passes through unchanged.
func normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := customEmoji.FindStringSubmatch(raw); m != nil {
		return m[1] + ":" + m[2]
	}

	return raw
}

// load returns the auto reactions of a guild keyed by channel.
func (c *Cog) load(guild string) (map[string][]string, error) {
	config := map[string][]string{}
	if _, err := c.store.Get(storageKey(guild), &config); err != nil {
		return nil, errors.Wrap(err, "failed to load auto reactions")
	}

	return config, nil
}

func (c *Cog) save(guild string, config map[string][]string) error {
	if len(config) == 0 {
		_, err := c.store.Delete(storageKey(guild))
		return errors.Wrap(err, "failed to save auto reactions")
	}

	return errors.Wrap(c.store.Set(storageKey(guild), config), "failed to save auto reactions")
}

func storageKey(guild string) string {
	return "autoreact." + guild
}
