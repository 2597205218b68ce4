// Package blacklist removes messages that contain forbidden words. Matching
// is case insensitive and looks for substrings, so blacklisting "nitro"
// also catches "free-nitro.example". Offenders get a short notice that
// disappears again after a moment.
package blacklist

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
)

// Scope is the permission scope required to manage the word blacklist.
const Scope = "blacklist"

const warnTTL = 2 * time.Second

// A Cog deletes messages containing blacklisted words.
type Cog struct {
	logger  *zap.Logger
	store   *warden.Storage
	auth    *warden.Auth
	adapter warden.Adapter
	prefix  string
}

// New creates the blacklist cog and registers its event handlers and
// commands at the given bot.
func New(b *warden.Bot) *Cog {
	c := &Cog{
		logger:  b.Logger.Named("blacklist"),
		store:   b.Store,
		auth:    b.Auth,
		adapter: b.Adapter,
		prefix:  b.Prefix(),
	}

	b.Brain.RegisterHandler(c.handleMessage)

	b.Command("blacklist add", "!blacklist add <word> — forbid a word or phrase", c.add)
	b.Command("blacklist remove", "!blacklist remove <word> — allow a word again", c.remove)
	b.Command("blacklist list", "!blacklist list — show all forbidden words", c.list)

	return c
}

// handleMessage checks every guild message against the blacklist of its
// guild. Bot messages and commands are exempt, otherwise adding a word to
// the blacklist would delete the very command that added it.
func (c *Cog) handleMessage(evt warden.ReceiveMessageEvent) error {
	if evt.Bot || evt.Guild == "" || strings.HasPrefix(evt.Text, c.prefix) {
		return nil
	}

	words, err := c.load(evt.Guild)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		return nil
	}

	text := strings.ToLower(evt.Text)
	var word string
	for _, w := range words {
		if strings.Contains(text, w) {
			word = w
			break
		}
	}
	if word == "" {
		return nil
	}

	c.logger.Info("Deleting message with forbidden word",
		zap.String("guild", evt.Guild),
		zap.String("channel", evt.Channel),
		zap.String("author", evt.AuthorID),
		zap.String("word", word),
	)

	deleter, ok := c.adapter.(warden.MessageDeleter)
	if !ok {
		c.logger.Warn("Adapter cannot delete messages")
		return nil
	}

	if err := deleter.DeleteMessage(evt.Channel, evt.ID); err != nil {
		return errors.Wrap(err, "failed to delete message")
	}

	c.warn(evt)
	return nil
}

// warn tells the author why their message disappeared. The notice removes
// itself after a moment so the channel is not cluttered twice.
func (c *Cog) warn(evt warden.ReceiveMessageEvent) {
	text := fmt.Sprintf("<@%s>, that word is not allowed here.", evt.AuthorID)

	var err error
	if ts, ok := c.adapter.(warden.TemporarySender); ok {
		err = ts.SendTemporary(text, evt.Channel, warnTTL)
	} else {
		err = c.adapter.Send(text, evt.Channel)
	}

	if err != nil {
		c.logger.Error("Failed to warn about forbidden word", zap.Error(err))
	}
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
		msg.Respond("You are not allowed to manage the blacklist.")
		return false
	}

	return true
}

func (c *Cog) add(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	word := strings.ToLower(strings.TrimSpace(msg.Matches[0]))
	if word == "" {
		msg.Respond("Usage: `%sblacklist add <word>`", c.prefix)
		return nil
	}

	words, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	for _, w := range words {
		if w == word {
			msg.Respond("⚠️ **%s** is already blacklisted.", word)
			return nil
		}
	}

	words = append(words, word)
	sort.Strings(words)
	if err := c.save(msg.Guild, words); err != nil {
		return err
	}

	msg.Respond("✅ Added **%s** to the blacklist.", word)
	return nil
}

func (c *Cog) remove(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	word := strings.ToLower(strings.TrimSpace(msg.Matches[0]))
	if word == "" {
		msg.Respond("Usage: `%sblacklist remove <word>`", c.prefix)
		return nil
	}

	words, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	idx := -1
	for i, w := range words {
		if w == word {
			idx = i
			break
		}
	}
	if idx < 0 {
		msg.Respond("⚠️ **%s** is not in the blacklist.", word)
		return nil
	}

	words = append(words[:idx], words[idx+1:]...)
	if err := c.save(msg.Guild, words); err != nil {
		return err
	}

	msg.Respond("✅ Removed **%s** from the blacklist.", word)
	return nil
}

func (c *Cog) list(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	words, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	if len(words) == 0 {
		msg.Respond("✅ No words are currently blacklisted.")
		return nil
	}

	msg.Respond("🚫 Blacklisted words: **%s**", strings.Join(words, ", "))
	return nil
}

// load returns the blacklisted words of a guild, sorted.
func (c *Cog) load(guild string) ([]string, error) {
	var words []string
	if _, err := c.store.Get(storageKey(guild), &words); err != nil {
		return nil, errors.Wrap(err, "failed to load blacklist")
	}

	return words, nil
}

func (c *Cog) save(guild string, words []string) error {
	if len(words) == 0 {
		_, err := c.store.Delete(storageKey(guild))
		return errors.Wrap(err, "failed to save blacklist")
	}

	return errors.Wrap(c.store.Set(storageKey(guild), words), "failed to save blacklist")
}

func storageKey(guild string) string {
	return "blacklist." + guild
}
