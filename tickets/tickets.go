// Package tickets lets members open private support channels with the staff
// team. `!ticket open` creates a channel only the opener and the staff role
// can see, `!ticket close` saves a transcript of the conversation and removes
// the channel again. The per guild setup lives in `!tickets setup`.
package tickets

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
	"github.com/go-warden/warden/throttle"
)

// Scope is the permission scope required to manage the ticket system and to
// close tickets. Opening a ticket requires no scope at all.
const Scope = "tickets"

// DefaultOpenThrottle is how long a member has to wait between opening two
// tickets.
const DefaultOpenThrottle = time.Minute

const (
	// defaultColor is blurple, used when no embed color is configured.
	defaultColor = 0x5865F2

	// transcriptLimit bounds how much channel history goes into a
	// transcript.
	transcriptLimit = 1000

	// transcriptChunk is the maximum size of a single transcript message,
	// leaving headroom for the code fence under common platform limits.
	transcriptChunk = 1800

	maxNameLen = 85
)

// The Platform interface must be implemented by adapters that want to
// support ticket channels. Adapters without it degrade gracefully, the cog
// then tells users that tickets are unavailable.
type Platform interface {
	// CreatePrivateChannel creates a text channel under the parent category
	// that only the listed users and roles can see and returns its ID.
	CreatePrivateChannel(guild, parent, name, topic string, allowUsers, allowRoles []string) (string, error)

	// DeleteChannel removes a channel. The reason ends up in the audit log
	// where the platform keeps one.
	DeleteChannel(channel, reason string) error
}

type config struct {
	Category   string `json:"category"`
	StaffRole  string `json:"staff_role"`
	Transcript string `json:"transcript,omitempty"`
	Color      int    `json:"color,omitempty"`
}

type ticket struct {
	Name     string `json:"name"`
	Opener   string `json:"opener"`
	Topic    string `json:"topic,omitempty"`
	Number   int    `json:"number"`
	OpenedAt int64  `json:"opened_at"`
}

// guildState is the single storage record of a guild: the configuration,
// the ticket counter and the registry of open tickets keyed by channel ID.
type guildState struct {
	Config  *config           `json:"config,omitempty"`
	Counter int               `json:"counter,omitempty"`
	Open    map[string]ticket `json:"open,omitempty"`
}

// A Cog manages support ticket channels.
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

// WithOpenThrottle changes how long a member has to wait between opening two
// tickets.
func WithOpenThrottle(d time.Duration) Option {
	return func(c *Cog) {
		if d > 0 {
			c.gate = throttle.New(d)
		}
	}
}

// New creates the tickets cog and registers its commands at the given bot.
func New(b *warden.Bot, opts ...Option) *Cog {
	c := &Cog{
		logger:  b.Logger.Named("tickets"),
		store:   b.Store,
		auth:    b.Auth,
		adapter: b.Adapter,
		prefix:  b.Prefix(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.gate == nil {
		c.gate = throttle.New(DefaultOpenThrottle)
	}

	b.Command("ticket open", "!ticket open [topic] — open a private ticket with the staff team", c.open)
	b.Command("ticket close", "!ticket close — save a transcript and remove this ticket", c.close)
	b.Command("tickets setup", "!tickets setup <#category> <@staff-role> <#transcript> [#color] — configure tickets", c.setup)
	b.Command("tickets panel", "!tickets panel — post the ticket panel in this channel", c.panel)
	b.Command("tickets config", "!tickets config — show the ticket configuration", c.showConfig)

	return c
}

// open creates a new ticket channel for the author. Any member may open
// tickets, limited by the open throttle.
func (c *Cog) open(msg warden.Message) error {
	if msg.Guild == "" {
		msg.Respond("This command only works in a server.")
		return nil
	}

	state, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	if state.Config == nil {
		msg.Respond("Ticket system not configured. Ask an admin to run `%stickets setup`.", c.prefix)
		return nil
	}

	platform, ok := c.adapter.(Platform)
	if !ok {
		msg.Respond("The chat adapter cannot manage ticket channels.")
		return nil
	}

	key := msg.Guild + ":" + msg.AuthorID
	if !c.gate.Allow(key) {
		msg.Respond("⏳ Please wait a moment before opening another ticket.")
		return nil
	}

	topic := strings.TrimSpace(msg.Matches[0])
	number := state.Counter + 1
	name := channelName(msg.AuthorName, msg.AuthorID, number)

	channel, err := platform.CreatePrivateChannel(
		msg.Guild, state.Config.Category, name, topic,
		[]string{msg.AuthorID}, []string{state.Config.StaffRole},
	)
	if err != nil {
		c.gate.Reset(key)
		return errors.Wrap(err, "failed to create ticket channel")
	}

	now := msg.Time
	if now.IsZero() {
		now = time.Now()
	}

	state.Counter = number
	if state.Open == nil {
		state.Open = map[string]ticket{}
	}
	state.Open[channel] = ticket{
		Name:     name,
		Opener:   msg.AuthorID,
		Topic:    topic,
		Number:   number,
		OpenedAt: now.Unix(),
	}

	if err := c.save(msg.Guild, state); err != nil {
		return err
	}

	c.logger.Info("Opened ticket",
		zap.String("guild", msg.Guild),
		zap.String("channel", channel),
		zap.String("opener", msg.AuthorID),
	)

	c.greet(channel, msg.AuthorID, state.Config)
	msg.Respond("✅ Ticket created: <#%s>", channel)
	return nil
}

// greet welcomes the opener in the fresh ticket channel and explains how to
// close it. Failures only produce log entries, the ticket itself exists.
func (c *Cog) greet(channel, opener string, cfg *config) {
	welcome := fmt.Sprintf("<@%s> thanks for opening a ticket! A staff member will be with you shortly.", opener)
	if err := c.adapter.Send(welcome, channel); err != nil {
		c.logger.Warn("Failed to send ticket welcome", zap.Error(err))
	}

	hint := warden.Embed{
		Title:       "Support team ticket controls",
		Description: fmt.Sprintf("Run `%sticket close` when you are finished with this ticket.", c.prefix),
		Color:       embedColor(cfg),
	}

	var err error
	if sender, ok := c.adapter.(warden.EmbedSender); ok {
		err = sender.SendEmbed(channel, "", hint)
	} else {
		err = c.adapter.Send(hint.Description, channel)
	}
	if err != nil {
		c.logger.Warn("Failed to send ticket controls", zap.Error(err))
	}
}

// close saves a transcript of the ticket channel and deletes it. Must be
// used inside an open ticket.
func (c *Cog) close(msg warden.Message) error {
	if msg.Guild == "" {
		msg.Respond("This command only works in a server.")
		return nil
	}

	state, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	tk, isTicket := state.Open[msg.Channel]
	if !isTicket {
		msg.Respond("This is not an open ticket channel.")
		return nil
	}

	if err := c.auth.CheckPermission(Scope, msg.AuthorID); err != nil {
		if !errors.Is(err, warden.ErrNotAllowed) {
			c.logger.Error("Failed to check permission", zap.Error(err))
		}
		msg.Respond("Only staff can close tickets.")
		return nil
	}

	platform, ok := c.adapter.(Platform)
	if !ok {
		msg.Respond("The chat adapter cannot manage ticket channels.")
		return nil
	}

	closer := msg.AuthorName
	if closer == "" {
		closer = msg.AuthorID
	}

	if state.Config != nil && state.Config.Transcript != "" {
		if err := c.sendTranscript(state.Config.Transcript, msg.Channel, tk, closer); err != nil {
			// The ticket stays open so staff can retry after fixing the
			// transcript channel.
			return err
		}
	}

	if err := platform.DeleteChannel(msg.Channel, "Ticket closed by "+closer); err != nil {
		return errors.Wrap(err, "failed to delete ticket channel")
	}

	delete(state.Open, msg.Channel)
	if err := c.save(msg.Guild, state); err != nil {
		return err
	}

	c.logger.Info("Closed ticket",
		zap.String("guild", msg.Guild),
		zap.String("channel", msg.Channel),
		zap.String("closed_by", msg.AuthorID),
	)
	return nil
}

// sendTranscript writes the readable history of the ticket channel to the
// transcript channel, oldest message first, chunked into multiple messages
// when the conversation was long.
func (c *Cog) sendTranscript(target, channel string, tk ticket, closer string) error {
	source, ok := c.adapter.(warden.HistorySource)
	if !ok {
		c.logger.Warn("Adapter cannot read history, skipping transcript",
			zap.String("channel", channel))
		return nil
	}

	history, err := source.RecentMessages(channel, transcriptLimit)
	if err != nil {
		return errors.Wrap(err, "failed to read ticket history")
	}

	lines := make([]string, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		author := m.AuthorName
		if author == "" {
			author = m.AuthorID
		}
		lines = append(lines, fmt.Sprintf("[%s] %s (%s): %s",
			m.Time.UTC().Format("2006-01-02 15:04:05"), author, m.AuthorID, m.Text))
	}

	header := fmt.Sprintf("📄 Transcript for **#%s**, closed by %s", tk.Name, closer)
	if err := c.adapter.Send(header, target); err != nil {
		return errors.Wrap(err, "failed to send transcript")
	}

	for _, chunk := range chunkLines(lines, transcriptChunk) {
		if err := c.adapter.Send("```text\n"+chunk+"\n```", target); err != nil {
			return errors.Wrap(err, "failed to send transcript")
		}
	}

	return nil
}

// chunkLines joins lines into chunks of at most max bytes. A single line
// longer than max is truncated rather than splitting mid line.
func chunkLines(lines []string, max int) []string {
	var chunks []string
	var current strings.Builder

	for _, line := range lines {
		if len(line) > max {
			line = line[:max]
		}
		if current.Len() > 0 && current.Len()+1+len(line) > max {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
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
		msg.Respond("You are not allowed to manage the ticket system.")
		return false
	}

	return true
}

// setup stores the ticket configuration of the guild.
func (c *Cog) setup(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	fields := strings.Fields(msg.Matches[0])
	if len(fields) < 3 {
		msg.Respond("Usage: `%stickets setup <#category> <@staff-role> <#transcript-channel> [#hex-color]`", c.prefix)
		return nil
	}

	category := parseChannelRef(fields[0])
	staff := parseRoleRef(fields[1])
	transcript := parseChannelRef(fields[2])
	if category == "" || staff == "" || transcript == "" {
		msg.Respond("Usage: `%stickets setup <#category> <@staff-role> <#transcript-channel> [#hex-color]`", c.prefix)
		return nil
	}

	color := 0
	if len(fields) > 3 {
		parsed, err := parseColor(fields[3])
		if err != nil {
			msg.Respond("⚠️ Invalid hex; using default color.")
		} else {
			color = parsed
		}
	}

	state, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	state.Config = &config{
		Category:   category,
		StaffRole:  staff,
		Transcript: transcript,
		Color:      color,
	}

	if err := c.save(msg.Guild, state); err != nil {
		return err
	}

	msg.Respond("✅ Ticket system configured.\n%s", describe(state.Config))
	return nil
}

// panel posts the ticket panel into the current channel so members know how
// to open tickets.
func (c *Cog) panel(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	state, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	if state.Config == nil {
		msg.Respond("Ticket system not configured. Run `%stickets setup` first.", c.prefix)
		return nil
	}

	embed := warden.Embed{
		Title:       "🎟️ Support Tickets",
		Description: fmt.Sprintf("Run `%sticket open [topic]` to open a ticket with the staff team.", c.prefix),
		Color:       embedColor(state.Config),
	}

	err = msg.RespondEmbed(embed)
	if errors.Is(err, warden.ErrNotImplemented) {
		msg.Respond("%s\n%s", embed.Title, embed.Description)
		return nil
	}

	return errors.Wrap(err, "failed to post ticket panel")
}

func (c *Cog) showConfig(msg warden.Message) error {
	if !c.authorized(&msg) {
		return nil
	}

	state, err := c.load(msg.Guild)
	if err != nil {
		return err
	}

	msg.Respond(describe(state.Config))
	return nil
}

func describe(cfg *config) string {
	if cfg == nil {
		cfg = &config{}
	}

	category := "`not set`"
	if cfg.Category != "" {
		category = "<#" + cfg.Category + ">"
	}
	staff := "`not set`"
	if cfg.StaffRole != "" {
		staff = "<@&" + cfg.StaffRole + ">"
	}
	transcript := "`not set`"
	if cfg.Transcript != "" {
		transcript = "<#" + cfg.Transcript + ">"
	}
	color := "`default (blurple)`"
	if cfg.Color != 0 {
		color = fmt.Sprintf("#%06X", cfg.Color)
	}

	return strings.Join([]string{
		"Category: " + category,
		"Staff role: " + staff,
		"Transcript channel: " + transcript,
		"Embed color: " + color,
	}, "\n")
}

func embedColor(cfg *config) int {
	if cfg != nil && cfg.Color != 0 {
		return cfg.Color
	}

	return defaultColor
}

// channelName builds the ticket channel name, e.g. "ticket-jane-42".
func channelName(username, id string, number int) string {
	base := username
	if base == "" {
		base = id
	}

	base = strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	base = collapseDashes(base)
	if base == "" {
		base = "user"
	}

	name := fmt.Sprintf("ticket-%s-%d", base, number)
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}

	return name
}

func collapseDashes(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}

	return s
}

// parseChannelRef extracts the ID from a <#channel> mention.
func parseChannelRef(s string) string {
	if !strings.HasPrefix(s, "<#") || !strings.HasSuffix(s, ">") {
		return ""
	}

	return s[2 : len(s)-1]
}

// parseRoleRef extracts the ID from a <@&role> mention.
func parseRoleRef(s string) string {
	if !strings.HasPrefix(s, "<@&") || !strings.HasSuffix(s, ">") {
		return ""
	}

	return s[3 : len(s)-1]
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

func (c *Cog) load(guild string) (guildState, error) {
	var state guildState
	if _, err := c.store.Get(storageKey(guild), &state); err != nil {
		return guildState{}, errors.Wrap(err, "failed to load ticket state")
	}

	return state, nil
}

func (c *Cog) save(guild string, state guildState) error {
	return errors.Wrap(c.store.Set(storageKey(guild), state), "failed to save ticket state")
}

func storageKey(guild string) string {
	return "tickets." + guild
}
