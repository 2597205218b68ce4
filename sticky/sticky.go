// Package sticky keeps a message pinned to the bottom of a channel. Whenever
// somebody writes into the channel the previous sticky copy is deleted and a
// fresh one is posted, so the sticky text always stays the newest message.
// Reposts are spaced out so busy channels do not turn into a delete and
// repost loop.
package sticky

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
)

// Scope is the permission scope required to manage sticky messages.
const Scope = "sticky"

// DefaultRepostGap is the minimum time between two reposts of the same
// sticky message.
const DefaultRepostGap = 7 * time.Second

// state is the persisted sticky record of a single channel.
type state struct {
	Text     string `json:"text"`
	LastID   string `json:"last_id,omitempty"`
	PostedAt int64  `json:"posted_at,omitempty"`
}

// A Cog reposts sticky messages so they stay visible.
type Cog struct {
	logger  *zap.Logger
	store   *warden.Storage
	auth    *warden.Auth
	adapter warden.Adapter
	prefix  string
	gap     time.Duration
}

// An Option configures the Cog during New.
type Option func(*Cog)

// WithRepostGap changes the minimum time between two reposts.
func WithRepostGap(d time.Duration) Option {
	return func(c *Cog) {
		if d > 0 {
			c.gap = d
		}
	}
}

// New creates the sticky message cog and registers its event handlers and
// commands at the given bot.
func New(b *warden.Bot, opts ...Option) *Cog {
	c := &Cog{
		logger:  b.Logger.Named("sticky"),
		store:   b.Store,
		auth:    b.Auth,
		adapter: b.Adapter,
		prefix:  b.Prefix(),
		gap:     DefaultRepostGap,
	}

	for _, opt := range opts {
		opt(c)
	}

	b.Brain.RegisterHandler(c.handleMessage)

	b.Command("sticky set", "!sticky set <text> — pin a sticky message to this channel", c.set)
	b.Command("sticky off", "!sticky off — remove the sticky message of this channel", c.off)

	return c
}

// handleMessage reposts the sticky message of a channel after somebody else
// wrote into it. Bot messages are ignored so the repost itself does not
// trigger the next repost.
func (c *Cog) handleMessage(evt warden.ReceiveMessageEvent) error {
	if evt.Bot || evt.Guild == "" || strings.HasPrefix(evt.Text, c.prefix) {
		return nil
	}

	stickies, err := c.load(evt.Guild)
	if err != nil {
		return err
	}

	st, ok := stickies[evt.Channel]
	if !ok {
		return nil
	}

	now := evt.Time
	if now.IsZero() {
		now = time.Now()
	}

	if st.PostedAt > 0 && now.Sub(time.Unix(st.PostedAt, 0)) < c.gap {
		return nil
	}

	return c.repost(evt.Guild, evt.Channel, stickies, now)
}

// repost deletes the previous sticky copy and posts a fresh one at the
// bottom of the channel. The new message ID and time are persisted so the
// cog picks up where it left off after a restart.
func (c *Cog) repost(guild, channel string, stickies map[string]state, now time.Time) error {
	st := stickies[channel]

	if st.LastID != "" {
		if deleter, ok := c.adapter.(warden.MessageDeleter); ok {
			if err := deleter.DeleteMessage(channel, st.LastID); err != nil {
				// The copy may have been removed by hand already.
				c.logger.Debug("Failed to delete previous sticky message", zap.Error(err))
			}
		}
	}

	if poster, ok := c.adapter.(warden.MessagePoster); ok {
		id, err := poster.PostMessage(st.Text, channel)
		if err != nil {
			return errors.Wrap(err, "failed to post sticky message")
		}
		st.LastID = id
	} else {
		if err := c.adapter.Send(st.Text, channel); err != nil {
			return errors.Wrap(err, "failed to post sticky message")
		}
		st.LastID = ""
	}

	st.PostedAt = now.Unix()
	stickies[channel] = st

	return c.save(guild, stickies)
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
		msg.Respond("You are not allowed to manage sticky messages.")
		return false
	}

	return true
}

// set pins a sticky message to the channel the command was sent in and posts
// the first copy right away.
func (c *Cog) set(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	text := strings.TrimSpace(msg.Matches[0])
	if text == "" {
		msg.Respond("Please provide a message for the sticky text.")
		return nil
	}

	stickies, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	old := stickies[msg.Channel]
	stickies[msg.Channel] = state{Text: text, LastID: old.LastID}

	now := msg.Time
	if now.IsZero() {
		now = time.Now()
	}

	if err := c.repost(msg.Guild, msg.Channel, stickies, now); err != nil {
		return err
	}

	msg.Respond("Sticky message set to: %s", text)
	return nil
}

// off removes the sticky message of the channel, including the posted copy.
func (c *Cog) off(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	stickies, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	st, ok := stickies[msg.Channel]
	if !ok {
		msg.Respond("This channel has no sticky message.")
		return nil
	}

	if st.LastID != "" {
		if deleter, ok := c.adapter.(warden.MessageDeleter); ok {
			if err := deleter.DeleteMessage(msg.Channel, st.LastID); err != nil {
				c.logger.Debug("Failed to delete sticky message", zap.Error(err))
			}
		}
	}

	delete(stickies, msg.Channel)
	if err := c.save(msg.Guild, stickies); err != nil {
		return err
	}

	msg.Respond("Sticky message removed.")
	return nil
}

// load returns the sticky messages of a guild keyed by channel.
func (c *Cog) load(guild string) (map[string]state, error) {
	stickies := map[string]state{}
	if _, err := c.store.Get(storageKey(guild), &stickies); err != nil {
		return nil, errors.Wrap(err, "failed to load sticky messages")
	}

	return stickies, nil
}

func (c *Cog) save(guild string, stickies map[string]state) error {
	if len(stickies) == 0 {
		_, err := c.store.Delete(storageKey(guild))
		return errors.Wrap(err, "failed to save sticky messages")
	}

	return errors.Wrap(c.store.Set(storageKey(guild), stickies), "failed to save sticky messages")
}

func storageKey(guild string) string {
	return "sticky." + guild
}
