// Package triggers answers messages that contain configured keywords.
// Single word keywords only match as whole words while keywords with spaces
// match as plain substrings, so "hi" does not fire on "this" but
// "good morning" fires inside a longer sentence. A per channel cooldown
// keeps popular keywords from turning into spam.
package triggers

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
	"github.com/go-warden/warden/throttle"
)

// Scope is the permission scope required to manage chat triggers.
const Scope = "triggers"

// DefaultCooldown is how long a keyword stays quiet per channel after it
// fired.
const DefaultCooldown = 3 * time.Second

// A Cog replies to messages containing configured keywords.
type Cog struct {
	logger  *zap.Logger
	store   *warden.Storage
	auth    *warden.Auth
	adapter warden.Adapter
	prefix  string
	gate    *throttle.Gate
}

// An Option configures the Cog during New.
type Option func(*Cog)

// WithCooldown changes how long a keyword stays quiet per channel after it
// fired.
func WithCooldown(d time.Duration) Option {
	return func(c *Cog) {
		if d > 0 {
			c.gate = throttle.New(d)
		}
	}
}

// New creates the triggers cog and registers its event handlers and
// commands at the given bot.
func New(b *warden.Bot, opts ...Option) *Cog {
	c := &Cog{
		logger:  b.Logger.Named("triggers"),
		store:   b.Store,
		auth:    b.Auth,
		adapter: b.Adapter,
		prefix:  b.Prefix(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.gate == nil {
		c.gate = throttle.New(DefaultCooldown)
	}

	b.Brain.RegisterHandler(c.handleMessage)

	b.Command("trigger add", "!trigger add <keyword> | <response> — auto-reply to a keyword", c.add)
	b.Command("trigger del", "!trigger del <keyword> — remove a trigger", c.del)
	b.Command("trigger list", "!trigger list — show all triggers", c.list)

	return c
}

// handleMessage answers the first matching keyword of a message. Commands
// never fire triggers.
func (c *Cog) handleMessage(evt warden.ReceiveMessageEvent) error {
	if evt.Bot || evt.Guild == "" || strings.HasPrefix(evt.Text, c.prefix) {
		return nil
	}

	triggers, err := c.load(evt.Guild)
	if err != nil {
		return err
	}
	if len(triggers) == 0 {
		return nil
	}

	keyword, reply := match(evt.Text, triggers)
	if keyword == "" {
		return nil
	}

	if !c.gate.Allow(evt.Channel + ":" + keyword) {
		return nil
	}

	if err := c.adapter.Send(reply, evt.Channel); err != nil {
		return errors.Wrap(err, "failed to send trigger reply")
	}

	return nil
}

// match returns the first keyword of the trigger map that appears in the
// text, single words before phrases and alphabetically within each group so
// the outcome never depends on map order.
func match(text string, triggers map[string]string) (keyword, reply string) {
	lower := strings.ToLower(text)
	if lower == "" {
		return "", ""
	}

	var words, phrases []string
	for k := range triggers {
		if strings.ContainsRune(k, ' ') {
			phrases = append(phrases, k)
		} else {
			words = append(words, k)
		}
	}
	sort.Strings(words)
	sort.Strings(phrases)

	set := wordSet(lower)
	for _, k := range words {
		if _, ok := set[k]; ok {
			return k, triggers[k]
		}
	}

	for _, k := range phrases {
		if strings.Contains(lower, k) {
			return k, triggers[k]
		}
	}

	return "", ""
}

// wordSet splits the text into words. Everything that is not a letter or a
// digit counts as a separator, which gives whole word matching without
// regular expressions.
func wordSet(text string) map[string]struct{} {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, text)

	set := map[string]struct{}{}
	for _, w := range strings.Fields(clean) {
		set[w] = struct{}{}
	}

	return set
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
		msg.Respond("You are not allowed to manage triggers.")
		return false
	}

	return true
}

func (c *Cog) add(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	parts := strings.SplitN(msg.Matches[0], "|", 2)
	if len(parts) != 2 {
		msg.Respond("Usage: `%strigger add <keyword> | <response>`", c.prefix)
		return nil
	}

	keyword := strings.ToLower(strings.TrimSpace(parts[0]))
	reply := strings.TrimSpace(parts[1])
	if keyword == "" || reply == "" {
		msg.Respond("Usage: `%strigger add <keyword> | <response>`", c.prefix)
		return nil
	}

	triggers, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	triggers[keyword] = reply
	if err := c.save(msg.Guild, triggers); err != nil {
		return err
	}

	msg.Respond("✅ Added trigger **%s**.", keyword)
	return nil
}

func (c *Cog) del(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	keyword := strings.ToLower(strings.TrimSpace(msg.Matches[0]))
	if keyword == "" {
		msg.Respond("Usage: `%strigger del <keyword>`", c.prefix)
		return nil
	}

	triggers, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	if _, ok := triggers[keyword]; !ok {
		msg.Respond("⚠️ There is no trigger **%s**.", keyword)
		return nil
	}

	delete(triggers, keyword)
	if err := c.save(msg.Guild, triggers); err != nil {
		return err
	}

	msg.Respond("🗑️ Removed trigger **%s**.", keyword)
	return nil
}

func (c *Cog) list(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	triggers, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	if len(triggers) == 0 {
		msg.Respond("No triggers configured. Add one with `%strigger add <keyword> | <response>`.", c.prefix)
		return nil
	}

	keywords := make([]string, 0, len(triggers))
	for k := range triggers {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)

	lines := make([]string, 0, len(keywords)+1)
	lines = append(lines, fmt.Sprintf("📣 %d trigger(s):", len(keywords)))
	for i, k := range keywords {
		lines = append(lines, fmt.Sprintf("%d. **%s** — %s", i+1, k, triggers[k]))
	}

	msg.Respond(strings.Join(lines, "\n"))
	return nil
}

// load returns the triggers of a guild keyed by keyword.
func (c *Cog) load(guild string) (map[string]string, error) {
	triggers := map[string]string{}
	if _, err := c.store.Get(storageKey(guild), &triggers); err != nil {
		return nil, errors.Wrap(err, "failed to load triggers")
	}

	return triggers, nil
}

func (c *Cog) save(guild string, triggers map[string]string) error {
	if len(triggers) == 0 {
		_, err := c.store.Delete(storageKey(guild))
		return errors.Wrap(err, "failed to save triggers")
	}

	return errors.Wrap(c.store.Set(storageKey(guild), triggers), "failed to save triggers")
}

func storageKey(guild string) string {
	return "triggers." + guild
}
