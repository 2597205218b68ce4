package remind

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-warden/warden"
)

const (
	maxNameLen  = 100
	maxTitleLen = 256
	maxTextLen  = 4000
)

// guildConfig holds the per guild settings of the bump reminder. The zero
// value is fully functional and watches for DISBOARD bumps, every field
// falls back to its default when unset.
type guildConfig struct {
	Channel     string `json:"channel,omitempty"`      // where reminders go and which channel is renamed
	LastChannel string `json:"last_channel,omitempty"` // where the last bump happened
	Role        string `json:"role,omitempty"`         // role ID that is pinged with every reminder
	Bumper      string `json:"bumper,omitempty"`       // user ID of the bump bot
	Phrase      string `json:"phrase,omitempty"`       // confirmation phrase of the bump bot
	Reply       string `json:"reply,omitempty"`        // thanks template
	ReplyOff    bool   `json:"reply_off,omitempty"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text,omitempty"`
	Color       int    `json:"color,omitempty"`
	ReadyName   string `json:"ready_name,omitempty"`
	WaitName    string `json:"wait_name,omitempty"`
}

func (c *guildConfig) bumperID() string {
	if c.Bumper != "" {
		return c.Bumper
	}
	return DefaultBumper
}

func (c *guildConfig) bumpPhrase() string {
	if c.Phrase != "" {
		return c.Phrase
	}
	return DefaultPhrase
}

func (c *guildConfig) replyTemplate() string {
	if c.Reply != "" {
		return c.Reply
	}
	return DefaultReply
}

// target returns the channel reminders are delivered to. Without an
// explicitly configured channel the reminder goes to the channel the last
// bump happened in.
func (c *guildConfig) target() string {
	if c.Channel != "" {
		return c.Channel
	}
	return c.LastChannel
}

func (c *guildConfig) embed() warden.Embed {
	e := warden.Embed{
		Title:       c.Title,
		Description: c.Text,
		Color:       c.Color,
	}

	if e.Title == "" {
		e.Title = DefaultTitle
	}
	if e.Description == "" {
		e.Description = DefaultText
	}
	if e.Color == 0 {
		e.Color = DefaultColor
	}

	return e
}

func (c *guildConfig) readyLabel() string {
	name := c.ReadyName
	if name == "" {
		name = DefaultReadyName
	}
	return clampName(name)
}

func (c *guildConfig) waitTemplate() string {
	if c.WaitName != "" {
		return c.WaitName
	}
	return DefaultWaitName
}

// waitLabel renders the cooldown channel name. The remaining time is shown
// in whole minutes, rounded up and never below one.
func (c *guildConfig) waitLabel(remaining time.Duration) string {
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	name := strings.ReplaceAll(c.waitTemplate(), "{minutes}", strconv.Itoa(minutes))
	return clampName(name)
}

func (c *Cog) loadConfig(guild string) (*guildConfig, error) {
	conf := new(guildConfig)
	_, err := c.store.Get(c.configKey(guild), conf)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load bump reminder settings")
	}

	return conf, nil
}

func (c *Cog) saveConfig(guild string, conf *guildConfig) error {
	err := c.store.Set(c.configKey(guild), conf)
	return errors.Wrap(err, "failed to save bump reminder settings")
}

func (c *Cog) configKey(guild string) string {
	return "remind." + guild
}

// clampName cuts a channel name down to the 100 characters Discord allows.
func clampName(name string) string {
	r := []rune(name)
	if len(r) <= maxNameLen {
		return name
	}
	return string(r[:maxNameLen])
}

// parseRef extracts the numeric ID from a channel or role mention such as
// <#123> or <@&456>. A bare ID is accepted as well.
func parseRef(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, ">") {
		s = s[len(prefix) : len(s)-1]
	}

	if s == "" {
		return "", false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}

	return s, true
}

// parseColor reads a 24 bit RGB value like "#5865F2", "0x5865F2" or
// "5865F2".
func parseColor(s string) (int, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimPrefix(s, "0x")

	v, err := strconv.ParseInt(s, 16, 32)
	if err != nil || v < 0 || v > 0xFFFFFF {
		return 0, false
	}

	return int(v), true
}
