// Package afk lets members mark themselves as away. Whoever mentions an AFK
// member gets a short notice with the reason and how long they have been
// gone. The status clears itself with the member's next regular message, so
// nobody has to remember to turn it off.
package afk

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
	"github.com/go-warden/warden/throttle"
)

const (
	// Scope is the permission scope required to clear the AFK status of
	// somebody else. Setting your own status needs no permission.
	Scope = "afk"

	// DefaultReason is stored when a member goes AFK without giving one.
	DefaultReason = "No reason provided."

	// DefaultNoticeThrottle limits how often the same member is told that
	// the same AFK member was mentioned.
	DefaultNoticeThrottle = 30 * time.Second

	welcomeTTL = 5 * time.Second
)

// status is the persisted AFK record of a single member.
type status struct {
	Reason string `json:"reason"`
	Since  int64  `json:"since"`
}

// A Cog tracks which members are away and answers mentions of them.
type Cog struct {
	logger  *zap.Logger
	store   *warden.Storage
	auth    *warden.Auth
	adapter warden.Adapter
	prefix  string
	notices *throttle.Gate
}

// An Option configures the Cog during New.
type Option func(*Cog)

// WithNoticeThrottle changes how often mention notices for the same author
// and AFK member pair may be sent.
func WithNoticeThrottle(d time.Duration) Option {
	return func(c *Cog) {
		if d > 0 {
			c.notices = throttle.New(d)
		}
	}
}

// New creates the AFK cog and registers its event handlers and the !afk
// command at the given bot.
func New(b *warden.Bot, opts ...Option) *Cog {
	c := &Cog{
		logger:  b.Logger.Named("afk"),
		store:   b.Store,
		auth:    b.Auth,
		adapter: b.Adapter,
		prefix:  b.Prefix(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.notices == nil {
		c.notices = throttle.New(DefaultNoticeThrottle)
	}

	b.Brain.RegisterHandler(c.handleMessage)
	b.Command("afk", "!afk [reason] — mark yourself AFK, !afk clear @member removes it for someone else", c.afk)

	return c
}

// handleMessage clears the AFK status of returning members and posts a
// notice when somebody mentions a member who is away.
func (c *Cog) handleMessage(evt warden.ReceiveMessageEvent) error {
	if evt.Bot || evt.Guild == "" {
		return nil
	}

	entries, err := c.load(evt.Guild)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	// Commands stay invisible to the tracker so members can run !afk again
	// to update their reason without clearing the status first.
	if _, away := entries[evt.AuthorID]; away && !strings.HasPrefix(evt.Text, c.prefix) {
		delete(entries, evt.AuthorID)
		if err := c.save(evt.Guild, entries); err != nil {
			return err
		}
		c.welcomeBack(evt)
	}

	c.notifyMentions(evt, entries)
	return nil
}

// welcomeBack greets a member whose AFK status was just removed. The notice
// disappears again after a few seconds where the platform supports it.
func (c *Cog) welcomeBack(evt warden.ReceiveMessageEvent) {
	text := fmt.Sprintf("👋 Welcome back, <@%s> — AFK removed.", evt.AuthorID)

	var err error
	if ts, ok := c.adapter.(warden.TemporarySender); ok {
		err = ts.SendTemporary(text, evt.Channel, welcomeTTL)
	} else {
		err = c.adapter.Send(text, evt.Channel)
	}

	if err != nil {
		c.logger.Error("Failed to send welcome back notice", zap.Error(err))
	}
}

// notifyMentions answers a message that mentions AFK members with one notice
// line per member. Repeats from the same author about the same member are
// throttled.
func (c *Cog) notifyMentions(evt warden.ReceiveMessageEvent, entries map[string]status) {
	var lines []string
	for _, user := range evt.Mentions {
		st, away := entries[user.ID]
		if !away {
			continue
		}

		if !c.notices.Allow(evt.AuthorID + ":" + user.ID) {
			continue
		}

		name := user.Name
		if name == "" {
			name = "<@" + user.ID + ">"
		}

		lines = append(lines, fmt.Sprintf("🛌 **%s** is AFK (since <t:%d:R>): **%s**", name, st.Since, st.Reason))
	}

	if len(lines) == 0 {
		return
	}

	if err := c.adapter.Send(strings.Join(lines, "\n"), evt.Channel); err != nil {
		c.logger.Error("Failed to send AFK notice", zap.Error(err))
	}
}

// afk marks the sender as away. The optional reason is shown to everyone who
// mentions them while they are gone.
func (c *Cog) afk(msg warden.Message) error {
	if msg.Guild == "" {
		msg.Respond("This command only works in a server.")
		return nil
	}

	args := strings.TrimSpace(msg.Matches[0])
	if args == "clear" || strings.HasPrefix(args, "clear ") {
		return c.clear(msg, strings.TrimSpace(strings.TrimPrefix(args, "clear")))
	}

	reason := args
	if reason == "" {
		reason = DefaultReason
	}

	entries, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	since := msg.Time
	if since.IsZero() {
		since = time.Now()
	}

	entries[msg.AuthorID] = status{Reason: reason, Since: since.Unix()}
	if err := c.save(msg.Guild, entries); err != nil {
		return err
	}

	msg.Respond("💤 <@%s> is now AFK: **%s**", msg.AuthorID, reason)
	return nil
}

// clear removes the AFK status of another member.
func (c *Cog) clear(msg warden.Message, target string) error {
	if err := c.auth.CheckPermission(Scope, msg.AuthorID); err != nil {
		if !errors.Is(err, warden.ErrNotAllowed) {
			c.logger.Error("Failed to check permission", zap.Error(err))
		}
		msg.Respond("You are not allowed to clear the AFK status of others.")
		return nil
	}

	var id string
	if len(msg.Mentions) > 0 {
		id = msg.Mentions[0].ID
	} else {
		id = parseMention(target)
	}
	if id == "" {
		msg.Respond("Usage: `%safk clear @member`", c.prefix)
		return nil
	}

	entries, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	if _, away := entries[id]; !away {
		msg.Respond("<@%s> is not AFK.", id)
		return nil
	}

	delete(entries, id)
	if err := c.save(msg.Guild, entries); err != nil {
		return err
	}

	msg.Respond("🧹 Cleared the AFK status of <@%s>.", id)
	return nil
}

// load returns the AFK statuses of a guild keyed by member ID.
func (c *Cog) load(guild string) (map[string]status, error) {
	entries := map[string]status{}
	if _, err := c.store.Get(storageKey(guild), &entries); err != nil {
		return nil, errors.Wrap(err, "failed to load AFK statuses")
	}

	return entries, nil
}

// save persists the AFK statuses of a guild. Guilds without any AFK member
// do not keep an empty record around.
func (c *Cog) save(guild string, entries map[string]status) error {
	if len(entries) == 0 {
		_, err := c.store.Delete(storageKey(guild))
		return errors.Wrap(err, "failed to save AFK statuses")
	}

	return errors.Wrap(c.store.Set(storageKey(guild), entries), "failed to save AFK statuses")
}

func storageKey(guild string) string {
	return "afk." + guild
}

// parseMention extracts the member ID from a raw mention like <@123> or
// <@!123>. Bare numeric IDs pass through unchanged.
func parseMention(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(s, "<@"), "!"), ">")
	if s == "" {
		return ""
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return ""
		}
	}

	return s
}
