package remind

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
)

// authorized checks that the command was sent in a guild by a user holding
// the remind scope. It replies to the user when the check fails.
func (c *Cog) authorized(msg *warden.Message) bool {
	if msg.Guild == "" {
		msg.Respond("This command only works in a server.")
		return false
	}

	err := c.auth.CheckPermission(Scope, msg.AuthorID)
	if err != nil {
		if !errors.Is(err, warden.ErrNotAllowed) {
			c.logger.Error("Permission check failed", zap.Error(err))
		}
		msg.Respond("You are not allowed to manage bump reminders.")
		return false
	}

	return true
}

func (c *Cog) status(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	conf, err := c.loadConfig(msg.Guild)
	if err != nil {
		return err
	}

	st := c.engine.Status(msg.Guild)
	remaining, ready := st.Remaining(time.Now())

	state := "⏳ ready in " + remaining.String()
	if st.LastEvent == 0 {
		state = "waiting for the first bump"
	} else if ready {
		state = "✅ ready, do /bump"
	}

	channel := "the channel of the last bump"
	if conf.Channel != "" {
		channel = "<#" + conf.Channel + ">"
	}

	role := "off"
	if conf.Role != "" {
		role = "<@&" + conf.Role + ">"
	}

	reply := conf.replyTemplate()
	if conf.ReplyOff {
		reply = "off"
	}

	lastBump := "never"
	if st.LastEvent != 0 {
		lastBump = time.Unix(st.LastEvent, 0).UTC().Format(time.RFC1123)
	}

	cooldown := time.Duration(st.Cooldown) * time.Second

	err = msg.RespondEmbed(warden.Embed{
		Title: "Bump reminder",
		Color: statusColor,
		Fields: []warden.EmbedField{
			{Name: "State", Value: state},
			{Name: "Cooldown", Value: cooldown.String(), Inline: true},
			{Name: "Last bump", Value: lastBump, Inline: true},
			{Name: "Channel", Value: channel, Inline: true},
			{Name: "Role ping", Value: role, Inline: true},
			{Name: "Reply", Value: reply},
			{Name: "Names", Value: conf.readyLabel() + " / " + conf.waitTemplate()},
		},
	})
	if errors.Is(err, warden.ErrNotImplemented) {
		msg.Respond("Bump reminder: %s · cooldown %s · last bump %s", state, cooldown, lastBump)
		return nil
	}

	return err
}

func (c *Cog) setChannel(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	conf, err := c.loadConfig(msg.Guild)
	if err != nil {
		return err
	}

	args := strings.TrimSpace(msg.Matches[0])
	switch {
	case args == "":
		conf.Channel = msg.Channel
	case strings.EqualFold(args, "off"):
		conf.Channel = ""
	default:
		id, ok := parseRef(args, "<#")
		if !ok {
			msg.Respond("Please mention the channel, e.g. `!bump channel #bumps`, or use `off`.")
			return nil
		}
		conf.Channel = id
	}

	if err := c.saveConfig(msg.Guild, conf); err != nil {
		return err
	}

	if conf.Channel == "" {
		msg.Respond("Reminder channel cleared. Reminders go to the channel of the last bump.")
	} else {
		msg.Respond("Bump reminders now go to <#%s>.", conf.Channel)
	}

	c.engine.Refresh(msg.Context, msg.Guild)
	return nil
}

func (c *Cog) setRole(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	conf, err := c.loadConfig(msg.Guild)
	if err != nil {
		return err
	}

	args := strings.TrimSpace(msg.Matches[0])
	switch {
	case strings.EqualFold(args, "off"):
		conf.Role = ""
	default:
		id, ok := parseRef(args, "<@&")
		if !ok {
			msg.Respond("Please mention the role, e.g. `!bump role @bumpers`, or use `off`.")
			return nil
		}
		conf.Role = id
	}

	if err := c.saveConfig(msg.Guild, conf); err != nil {
		return err
	}

	if conf.Role == "" {
		msg.Respond("Reminders will no longer ping a role.")
	} else {
		msg.Respond("Reminders will ping <@&%s>.", conf.Role)
	}

	return nil
}

func (c *Cog) setCooldown(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	args := strings.TrimSpace(msg.Matches[0])
	if args == "" {
		msg.Respond("Usage: `!bump cooldown <duration>`, e.g. `2h` or `120m`.")
		return nil
	}

	d, err := time.ParseDuration(args)
	if err != nil {
		minutes, merr := strconv.Atoi(args)
		if merr != nil {
			msg.Respond("I do not understand %q. Use a duration like `2h` or a number of minutes.", args)
			return nil
		}
		d = time.Duration(minutes) * time.Minute
	}

	if d <= 0 {
		msg.Respond("The cooldown must be positive.")
		return nil
	}

	effective := c.engine.SetCooldown(msg.Guild, d)
	if effective != d {
		msg.Respond("Bump cooldown set to %s (the minimum).", effective)
	} else {
		msg.Respond("Bump cooldown set to %s.", effective)
	}

	c.engine.Refresh(msg.Context, msg.Guild)
	return nil
}

func (c *Cog) setReply(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	conf, err := c.loadConfig(msg.Guild)
	if err != nil {
		return err
	}

	args := strings.TrimSpace(msg.Matches[0])
	switch {
	case args == "":
		msg.Respond("Usage: `!bump reply <template>` with {user}, {user_name} and {minutes} placeholders, or `off` / `default`.")
		return nil
	case strings.EqualFold(args, "off"):
		conf.ReplyOff = true
	case strings.EqualFold(args, "default"):
		conf.ReplyOff = false
		conf.Reply = ""
	default:
		conf.ReplyOff = false
		conf.Reply = args
	}

	if err := c.saveConfig(msg.Guild, conf); err != nil {
		return err
	}

	switch {
	case conf.ReplyOff:
		msg.Respond("I will stop thanking bumpers.")
	case conf.Reply == "":
		msg.Respond("Bump reply restored to the default.")
	default:
		msg.Respond("Bump reply updated.")
	}

	return nil
}

func (c *Cog) setNames(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	conf, err := c.loadConfig(msg.Guild)
	if err != nil {
		return err
	}

	args := strings.TrimSpace(msg.Matches[0])
	if strings.EqualFold(args, "default") {
		conf.ReadyName, conf.WaitName = "", ""
		if err := c.saveConfig(msg.Guild, conf); err != nil {
			return err
		}

		msg.Respond("Channel names restored to %q and %q.", DefaultReadyName, DefaultWaitName)
		c.renames.Reset(msg.Guild)
		c.engine.Refresh(msg.Context, msg.Guild)
		return nil
	}

	parts := strings.SplitN(args, "|", 2)
	if len(parts) != 2 {
		msg.Respond("Usage: `!bump names <ready> | <wait>`, e.g. `!bump names bump-ready | bump-wait-{minutes}m`.")
		return nil
	}

	ready := strings.TrimSpace(parts[0])
	wait := strings.TrimSpace(parts[1])
	if ready == "" || wait == "" {
		msg.Respond("Both names are required, e.g. `!bump names bump-ready | bump-wait-{minutes}m`.")
		return nil
	}

	conf.ReadyName, conf.WaitName = ready, wait
	if err := c.saveConfig(msg.Guild, conf); err != nil {
		return err
	}

	msg.Respond("Channel will be named %q while ready and %q during the cooldown.", ready, wait)

	// Apply the new names right away instead of waiting for the throttle.
	c.renames.Reset(msg.Guild)
	c.engine.Refresh(msg.Context, msg.Guild)
	return nil
}

func (c *Cog) setEmbed(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	conf, err := c.loadConfig(msg.Guild)
	if err != nil {
		return err
	}

	args := strings.TrimSpace(msg.Matches[0])
	if args == "" {
		msg.Respond("Usage: `!bump embed <title> | <text> | <#color>`, e.g. `!bump embed Bump us! | Run /bump | #5865F2`.")
		return nil
	}

	if strings.EqualFold(args, "default") {
		conf.Title, conf.Text, conf.Color = "", "", 0
		if err := c.saveConfig(msg.Guild, conf); err != nil {
			return err
		}

		msg.Respond("Reminder embed restored to the default.")
		return nil
	}

	parts := strings.SplitN(args, "|", 3)
	title := strings.TrimSpace(parts[0])
	if title == "" {
		msg.Respond("The embed needs at least a title, e.g. `!bump embed Bump us! | Run /bump`.")
		return nil
	}
	if len([]rune(title)) > maxTitleLen {
		msg.Respond("❌ The title can be at most %d characters.", maxTitleLen)
		return nil
	}

	var text string
	if len(parts) > 1 {
		text = strings.TrimSpace(parts[1])
		if len([]rune(text)) > maxTextLen {
			msg.Respond("❌ The text can be at most %d characters.", maxTextLen)
			return nil
		}
	}

	var color int
	if len(parts) > 2 {
		var ok bool
		color, ok = parseColor(parts[2])
		if !ok {
			msg.Respond("❌ Invalid color. Use hex like `#5865F2`.")
			return nil
		}
	}

	conf.Title, conf.Text, conf.Color = title, text, color
	if err := c.saveConfig(msg.Guild, conf); err != nil {
		return err
	}

	err = msg.RespondEmbed(conf.embed())
	if errors.Is(err, warden.ErrNotImplemented) {
		msg.Respond("Reminder embed updated.")
		return nil
	}

	return err
}

func (c *Cog) now(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	conf, err := c.loadConfig(msg.Guild)
	if err != nil {
		return err
	}

	channel := conf.target()
	if channel == "" {
		msg.Respond("❌ No reminder channel configured.")
		return nil
	}

	return c.announce(channel, conf)
}

func (c *Cog) reset(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	c.engine.Reset(msg.Guild)
	if _, err := c.store.Delete(c.configKey(msg.Guild)); err != nil {
		return errors.Wrap(err, "failed to delete bump reminder settings")
	}

	c.mu.Lock()
	delete(c.labels, msg.Guild)
	c.mu.Unlock()
	c.renames.Reset(msg.Guild)

	msg.Respond("Bump reminder settings were reset to their defaults.")
	return nil
}
