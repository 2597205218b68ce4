// Package help answers `!help` with an index of all commands the bot knows.
// The index builds itself: every Bot.Command call emits a
// RegisterCommandEvent which this cog collects, so new cogs show up in the
// help output without touching this package.
package help

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/go-warden/warden"
)

// A Cog lists the registered commands of the bot.
type Cog struct {
	logger *zap.Logger
	prefix string

	mu       sync.RWMutex
	commands map[string]string // command name to usage line
}

// New creates the help cog and registers its event handler and command at
// the given bot.
func New(b *warden.Bot) *Cog {
	c := &Cog{
		logger:   b.Logger.Named("help"),
		prefix:   b.Prefix(),
		commands: map[string]string{},
	}

	b.Brain.RegisterHandler(c.handleRegister)
	b.Command("help", "!help [filter] — list all commands", c.help)

	return c
}

func (c *Cog) handleRegister(evt warden.RegisterCommandEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands[evt.Command] = evt.Usage
}

// help lists all commands, optionally narrowed down to the ones whose name
// contains the filter. Works in direct messages too.
func (c *Cog) help(msg warden.Message) error {
	filter := strings.ToLower(strings.TrimSpace(msg.Matches[0]))

	c.mu.RLock()
	var names []string
	for name := range c.commands {
		if filter == "" || strings.Contains(name, filter) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names)+1)
	lines = append(lines, fmt.Sprintf("🤖 I know %d command(s):", len(names)))
	for _, name := range names {
		usage := c.commands[name]
		if usage == "" {
			usage = c.prefix + name
		}
		lines = append(lines, usage)
	}
	c.mu.RUnlock()

	if len(names) == 0 {
		msg.Respond("No commands match **%s**.", filter)
		return nil
	}

	msg.Respond(strings.Join(lines, "\n"))
	return nil
}
