package presence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
	"github.com/go-warden/warden/pulse"
)

var activityKinds = map[string]bool{
	"playing":   true,
	"listening": true,
	"watching":  true,
	"competing": true,
	"streaming": true,
}

// authorized checks that the user holds the presence scope and replies when
// the check fails. The presence is global, so the commands work from any
// channel including direct messages.
func (c *Cog) authorized(msg *warden.Message) bool {
	err := c.auth.CheckPermission(Scope, msg.AuthorID)
	if err != nil {
		if !errors.Is(err, warden.ErrNotAllowed) {
			c.logger.Error("Permission check failed", zap.Error(err))
		}
		msg.Respond("You are not allowed to manage the bot presence.")
		return false
	}

	return true
}

func (c *Cog) rotationAdd(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	args := strings.TrimSpace(msg.Matches[0])
	fields := strings.SplitN(args, " ", 2)
	if len(fields) < 2 {
		msg.Respond("Usage: `!rotation add <type> <text>`, e.g. `!rotation add playing Minecraft`.")
		return nil
	}

	kind := strings.ToLower(fields[0])
	if !activityKinds[kind] {
		msg.Respond("❌ Unknown activity type %q. Use playing, listening, watching, competing or streaming.", kind)
		return nil
	}

	text := strings.TrimSpace(fields[1])
	var url string
	if kind == "streaming" {
		// Streaming items may carry a URL after a pipe, e.g.
		// "!rotation add streaming dev work | https://twitch.tv/me".
		if i := strings.Index(text, "|"); i >= 0 {
			url = strings.TrimSpace(text[i+1:])
			text = strings.TrimSpace(text[:i])
		}
		if url == "" {
			url = DefaultStreamURL
		}
	}

	if text == "" {
		msg.Respond("Usage: `!rotation add <type> <text>`, e.g. `!rotation add playing Minecraft`.")
		return nil
	}

	if err := c.engine.AddItem(rotationScope, pulse.Item{Kind: kind, Text: text, URL: url}); err != nil {
		return err
	}

	n := len(c.engine.Status(rotationScope).Items)
	msg.Respond("➕ Added to rotation: **%s** %q (now %d item(s)).", kind, text, n)
	return nil
}

func (c *Cog) rotationDel(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	args := strings.TrimSpace(msg.Matches[0])
	n, err := strconv.Atoi(args)
	if err != nil {
		msg.Respond("Usage: `!rotation del <n>` with the number from `!rotation list`.")
		return nil
	}

	item, err := c.engine.RemoveItem(rotationScope, n-1)
	if err != nil {
		msg.Respond("❌ Invalid index. Use `!rotation list` to see the numbers.")
		return nil
	}

	msg.Respond("🗑️ Removed item %d: **%s** %q", n, item.Kind, item.Text)
	return nil
}

func (c *Cog) rotationList(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	st := c.engine.Status(rotationScope)
	if len(st.Items) == 0 {
		msg.Respond("(empty rotation)")
		return nil
	}

	var b strings.Builder
	for i, item := range st.Items {
		extra := ""
		if item.Kind == "streaming" && item.URL != "" {
			extra = " [" + item.URL + "]"
		}
		fmt.Fprintf(&b, "%d. **%s** — %s%s\n", i+1, item.Kind, item.Text, extra)
	}

	msg.Respond(strings.TrimRight(b.String(), "\n"))
	return nil
}

func (c *Cog) rotationStart(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	st := c.engine.Status(rotationScope)
	if len(st.Items) == 0 {
		msg.Respond("ℹ️ Rotation list is empty. Add items with `!rotation add` first.")
		return nil
	}

	args := strings.TrimSpace(msg.Matches[0])
	interval, ok := parseInterval(args)
	if !ok {
		msg.Respond("I do not understand %q. Use a duration like `90s` or a number of seconds.", args)
		return nil
	}

	c.engine.StartRotation(rotationScope, interval)
	st = c.engine.Status(rotationScope)
	msg.Respond("▶️ Rotating every %ds with %d item(s).", st.Interval, len(st.Items))

	// Apply the first item right away instead of waiting a full interval.
	c.engine.Refresh(msg.Context, rotationScope)
	return nil
}

func (c *Cog) rotationStop(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	c.engine.StopRotation(rotationScope)
	msg.Respond("⏹️ Rotation stopped. Current activity left as-is.")
	return nil
}

func (c *Cog) rotationAutostart(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	args := strings.ToLower(strings.TrimSpace(msg.Matches[0]))
	if args != "on" && args != "off" {
		msg.Respond("Usage: `!rotation autostart <on|off>`.")
		return nil
	}

	c.engine.SetAutostart(rotationScope, args == "on")
	msg.Respond("🔁 Auto-start on boot is now **%s**.", strings.ToUpper(args))
	return nil
}

func (c *Cog) status(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	conf, err := c.loadSettings()
	if err != nil {
		return err
	}

	args := strings.ToLower(strings.TrimSpace(msg.Matches[0]))
	if args == "" {
		display := "None"
		if a := conf.activity(); a != nil {
			display = title(a.Kind) + ": " + a.Text
			if a.Kind == "streaming" && a.URL != "" {
				display += " (" + a.URL + ")"
			}
		}

		msg.Respond("📟 Status: **%s** · 🎮 Activity: **%s**", conf.status(), display)
		return nil
	}

	switch args {
	case "online", "idle", "dnd", "invisible":
	case "offline":
		args = "invisible"
	default:
		msg.Respond("❌ Unknown status %q. Use online, idle, dnd or invisible.", args)
		return nil
	}

	conf.Status = args
	if err := c.saveSettings(conf); err != nil {
		return err
	}

	err = c.applyPresence(conf)
	if errors.Is(err, warden.ErrNotImplemented) {
		msg.Respond("The chat adapter cannot change the presence.")
		return nil
	}
	if err != nil {
		return err
	}

	msg.Respond("✅ Status set to **%s**.", args)
	return nil
}

func (c *Cog) activity(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	conf, err := c.loadSettings()
	if err != nil {
		return err
	}

	args := strings.TrimSpace(msg.Matches[0])
	if args == "" {
		msg.Respond("Usage: `!activity <type> <text>` or `!activity off`.")
		return nil
	}

	if strings.EqualFold(args, "off") {
		c.engine.StopRotation(rotationScope)
		conf.Kind, conf.Text, conf.URL = "", "", ""
		if err := c.saveSettings(conf); err != nil {
			return err
		}

		err = c.applyPresence(conf)
		if errors.Is(err, warden.ErrNotImplemented) {
			msg.Respond("The chat adapter cannot change the presence.")
			return nil
		}
		if err != nil {
			return err
		}

		msg.Respond("🧹 Activity cleared (rotation stopped).")
		return nil
	}

	fields := strings.SplitN(args, " ", 2)
	kind := strings.ToLower(fields[0])
	if !activityKinds[kind] || len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
		msg.Respond("Usage: `!activity <type> <text>`, e.g. `!activity watching the door`.")
		return nil
	}

	c.engine.StopRotation(rotationScope)

	conf.Kind = kind
	conf.Text = strings.TrimSpace(fields[1])
	conf.URL = ""
	if kind == "streaming" {
		conf.URL = DefaultStreamURL
	}

	if err := c.saveSettings(conf); err != nil {
		return err
	}

	err = c.applyPresence(conf)
	if errors.Is(err, warden.ErrNotImplemented) {
		msg.Respond("The chat adapter cannot change the presence.")
		return nil
	}
	if err != nil {
		return err
	}

	msg.Respond("✅ Activity set: **%s** %q (rotation stopped)", kind, conf.Text)
	return nil
}

// parseInterval reads a rotation interval that may be given as a duration
// ("90s", "2m") or as a plain number of seconds. An empty string keeps the
// configured interval.
func parseInterval(s string) (time.Duration, bool) {
	if s == "" {
		return 0, true
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}

	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, true
	}

	return 0, false
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
