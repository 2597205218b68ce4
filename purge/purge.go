// Package purge implements bulk message deletion for moderators. The last n
// messages of a channel can be removed wholesale or filtered down to a
// single author, a text snippet or bot messages. Filters run over the
// channel history on the bot side, the platform only sees the final ID list.
package purge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
)

// Scope is the permission scope required to purge messages.
const Scope = "purge"

// MaxAmount caps how many messages a single purge may scan.
const MaxAmount = 1000

const ackTTL = 5 * time.Second

// A Cog deletes recent messages in bulk.
type Cog struct {
	logger  *zap.Logger
	auth    *warden.Auth
	adapter warden.Adapter
}

// New creates the purge cog and registers its command at the given bot.
func New(b *warden.Bot) *Cog {
	c := &Cog{
		logger:  b.Logger.Named("purge"),
		auth:    b.Auth,
		adapter: b.Adapter,
	}

	b.Command("purge", "!purge <n> — delete the last n messages, also: user <@member> <n>, contains <text> <n>, bots <n>", c.purge)

	return c
}

// purge routes the subcommands. They share a single registered command so
// "!purge user …" is never also interpreted as a plain "!purge".
func (c *Cog) purge(msg warden.Message) error {
	if msg.Guild == "" {
		msg.Respond("This command only works in a server.")
		return nil
	}

	if err := c.auth.CheckPermission(Scope, msg.AuthorID); err != nil {
		if !errors.Is(err, warden.ErrNotAllowed) {
			c.logger.Error("Failed to check permission", zap.Error(err))
		}
		msg.Respond("You are not allowed to purge messages.")
		return nil
	}

	source, hasHistory := c.adapter.(warden.HistorySource)
	deleter, hasDeleter := c.adapter.(warden.BulkDeleter)
	if !hasHistory || !hasDeleter {
		msg.Respond("The chat adapter cannot delete messages in bulk.")
		return nil
	}

	fields := strings.Fields(msg.Matches[0])
	if len(fields) == 0 {
		c.usage(&msg)
		return nil
	}

	var (
		rawAmount string
		filter    func(warden.HistoryMessage) bool
		ack       func(n int) string
	)

	switch fields[0] {
	case "user":
		if len(fields) != 3 {
			c.usage(&msg)
			return nil
		}

		id, display := c.targetUser(&msg, fields[1])
		if id == "" {
			msg.Respond("Please mention the member, e.g. `!purge user @spammer 50`.")
			return nil
		}

		rawAmount = fields[2]
		filter = func(m warden.HistoryMessage) bool { return m.AuthorID == id }
		ack = func(n int) string {
			return fmt.Sprintf("🧹 Deleted **%d** message(s) from **%s**.", n, display)
		}

	case "contains":
		if len(fields) < 3 {
			c.usage(&msg)
			return nil
		}

		rawAmount = fields[len(fields)-1]
		text := strings.Join(fields[1:len(fields)-1], " ")
		lower := strings.ToLower(text)
		filter = func(m warden.HistoryMessage) bool {
			return m.Text != "" && strings.Contains(strings.ToLower(m.Text), lower)
		}
		ack = func(n int) string {
			return fmt.Sprintf("🧹 Deleted **%d** message(s) containing “%s”.", n, text)
		}

	case "bots":
		if len(fields) != 2 {
			c.usage(&msg)
			return nil
		}

		rawAmount = fields[1]
		filter = func(m warden.HistoryMessage) bool { return m.Bot }
		ack = func(n int) string {
			return fmt.Sprintf("🤖 Deleted **%d** bot message(s).", n)
		}

	default:
		if len(fields) != 1 {
			c.usage(&msg)
			return nil
		}

		rawAmount = fields[0]
		filter = func(warden.HistoryMessage) bool { return true }
		ack = func(n int) string {
			return fmt.Sprintf("🧹 Deleted **%d** message(s).", n)
		}
	}

	amount, err := strconv.Atoi(rawAmount)
	if err != nil {
		msg.Respond("I do not understand %q. Give me the number of messages to scan.", rawAmount)
		return nil
	}
	if amount < 1 {
		amount = 1
	}
	if amount > MaxAmount {
		amount = MaxAmount
	}

	return c.run(&msg, source, deleter, amount, filter, ack)
}

// run scans the channel history, deletes everything the filter selects and
// acknowledges with a notice that cleans itself up again.
func (c *Cog) run(
	msg *warden.Message,
	source warden.HistorySource,
	deleter warden.BulkDeleter,
	amount int,
	filter func(warden.HistoryMessage) bool,
	ack func(n int) string,
) error {
	history, err := source.RecentMessages(msg.Channel, amount)
	if err != nil {
		return errors.Wrap(err, "failed to read channel history")
	}

	var ids []string
	for _, m := range history {
		if filter(m) {
			ids = append(ids, m.ID)
		}
	}

	if len(ids) > 0 {
		requester := msg.AuthorName
		if requester == "" {
			requester = msg.AuthorID
		}

		if err := deleter.DeleteMessages(msg.Channel, ids, "Requested by "+requester); err != nil {
			return errors.Wrap(err, "failed to delete messages")
		}

		c.logger.Info("Purged messages",
			zap.String("guild", msg.Guild),
			zap.String("channel", msg.Channel),
			zap.Int("count", len(ids)),
			zap.String("requested_by", msg.AuthorID),
		)
	}

	if err := msg.RespondTemporary(ackTTL, ack(len(ids))); err != nil {
		c.logger.Error("Failed to acknowledge purge", zap.Error(err))
	}

	return nil
}

// targetUser resolves the purge target from the mention list or a raw
// mention token. The display name is used in the acknowledgement.
func (c *Cog) targetUser(msg *warden.Message, raw string) (id, display string) {
	if len(msg.Mentions) > 0 {
		u := msg.Mentions[0]
		if u.Name != "" {
			return u.ID, u.Name
		}
		return u.ID, u.ID
	}

	raw = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(raw, "<@"), "!"), ">")
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", ""
		}
	}
	if raw == "" {
		return "", ""
	}

	return raw, raw
}

func (c *Cog) usage(msg *warden.Message) {
	msg.Respond("Usage: `!purge <n>`, `!purge user <@member> <n>`, `!purge contains <text> <n>` or `!purge bots <n>`.")
}
