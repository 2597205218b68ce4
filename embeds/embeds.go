// Package embeds posts rich embeds from chat commands so announcements do
// not need a second bot. The parts of the embed are separated by pipes,
// e.g. `!embed post #news Game night! | Friday at 8pm | #5865F2`.
package embeds

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
)

// Scope is the permission scope required to post embeds.
const Scope = "embeds"

const (
	maxTitleLen = 256
	maxTextLen  = 4000
)

// A Cog builds embeds from pipe-separated command input.
type Cog struct {
	logger  *zap.Logger
	auth    *warden.Auth
	adapter warden.Adapter
}

// New creates the embeds cog and registers its commands at the given bot.
func New(b *warden.Bot) *Cog {
	c := &Cog{
		logger:  b.Logger.Named("embeds"),
		auth:    b.Auth,
		adapter: b.Adapter,
	}

	b.Command("embed post", "!embed post <#channel> <title> | <text> | <#color> — post an embed", c.post)
	b.Command("embed preview", "!embed preview <title> | <text> | <#color> — preview an embed here", c.preview)

	return c
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
		msg.Respond("You are not allowed to post embeds.")
		return false
	}

	return true
}

// post sends the embed to the mentioned channel.
func (c *Cog) post(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	args := strings.TrimSpace(msg.Matches[0])
	channel, rest := splitChannel(args)
	if channel == "" {
		msg.Respond("Usage: `!embed post <#channel> <title> | <text> | <#color>`.")
		return nil
	}

	embed, ok := c.build(&msg, rest)
	if !ok {
		return nil
	}

	sender, isSender := c.adapter.(warden.EmbedSender)
	if !isSender {
		msg.Respond("The chat adapter cannot send embeds.")
		return nil
	}

	if err := sender.SendEmbed(channel, "", embed); err != nil {
		return errors.Wrap(err, "failed to post embed")
	}

	msg.Respond("✅ Embed sent.")
	return nil
}

// preview renders the embed in the channel the command was sent in.
func (c *Cog) preview(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	embed, ok := c.build(&msg, strings.TrimSpace(msg.Matches[0]))
	if !ok {
		return nil
	}

	err := msg.RespondEmbed(embed)
	if errors.Is(err, warden.ErrNotImplemented) {
		msg.Respond("%s\n%s", embed.Title, embed.Description)
		return nil
	}

	return err
}

// build parses "title | text | #color" into an embed. The title is
// required, text and color are optional.
func (c *Cog) build(msg *warden.Message, raw string) (warden.Embed, bool) {
	parts := strings.SplitN(raw, "|", 3)

	title := strings.TrimSpace(parts[0])
	if title == "" {
		msg.Respond("Usage: `<title> | <text> | <#color>`, only the title is required.")
		return warden.Embed{}, false
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		msg.Respond("The title must be at most %d characters.", maxTitleLen)
		return warden.Embed{}, false
	}

	embed := warden.Embed{Title: title}

	if len(parts) > 1 {
		text := strings.TrimSpace(parts[1])
		if utf8.RuneCountInString(text) > maxTextLen {
			msg.Respond("The text must be at most %d characters.", maxTextLen)
			return warden.Embed{}, false
		}
		embed.Description = text
	}

	if len(parts) > 2 {
		color, err := parseColor(parts[2])
		if err != nil {
			msg.Respond("❌ Invalid color. Use hex like `#5865F2`.")
			return warden.Embed{}, false
		}
		embed.Color = color
	}

	return embed, true
}

// splitChannel peels a leading <#channel> mention off the arguments.
func splitChannel(args string) (channel, rest string) {
	if !strings.HasPrefix(args, "<#") {
		return "", args
	}

	end := strings.IndexByte(args, '>')
	if end < 0 {
		return "", args
	}

	id := args[2:end]
	if id == "" {
		return "", args
	}

	return id, strings.TrimSpace(args[end+1:])
}

func parseColor(s string) (int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimPrefix(s, "0x")

	n, err := strconv.ParseInt(s, 16, 32)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 0xFFFFFF {
		return 0, errors.New("color out of range")
	}

	return int(n), nil
}
