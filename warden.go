// Package warden is a library for writing chat bots whose features are
// organized into small self contained units called cogs. The warden package
// contains the core functionality (event loop, message matching, storage,
// permissions) and is platform agnostic. Concrete chat integrations such as
// the Discord adapter as well as the individual cogs live in their own
// packages and are wired up in the main function of the bot.
package warden

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/fraugster/cli"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// A Bot represents a single chat bot instance. It is created via New(…) where
// its behavior can be customized with Modules (e.g. to connect it to Discord
// instead of the local shell). After all message and event handlers have been
// registered, the Bot is started via Bot.Run().
type Bot struct {
	Context context.Context
	Name    string
	Adapter Adapter
	Brain   *Brain
	Store   *Storage
	Auth    *Auth
	Logger  *zap.Logger

	prefix  string
	initErr error // any error when we created a new bot
}

// New creates a new Bot and initializes it with the given Modules and
// Options. By default the Bot connects to the local shell via the CLIAdapter,
// keeps its state in memory and uses a context that is canceled on SIGINT or
// SIGTERM.
func New(name string, modules ...Module) *Bot {
	logger := NewLogger()
	brain := NewBrain(logger.Named("brain"))
	store := NewStorage(logger.Named("store"))

	conf := &Config{
		Context: cli.Context(),
		Name:    name,
		Prefix:  "!",
		logger:  logger,
		brain:   brain,
		store:   store,
		adapter: NewCLIAdapter(name, logger.Named("adapter")),
	}

	conf.logger.Info("Initializing bot", zap.String("name", name))
	for _, mod := range modules {
		err := mod.Apply(conf)
		if err != nil {
			conf.errs = append(conf.errs, err)
		}
	}

	brain.handlerTimeout = conf.HandlerTimeout

	return &Bot{
		Name:    conf.Name,
		Context: conf.Context,
		Logger:  conf.logger,
		Adapter: conf.adapter,
		Brain:   conf.brain,
		Store:   conf.store,
		Auth:    NewAuth(conf.logger.Named("auth"), conf.store),
		prefix:  conf.Prefix,
		initErr: multierr.Combine(conf.errs...),
	}
}

// Run starts the bot and runs its event handler loop until the context of the
// Bot is canceled (by default via SIGINT or SIGTERM). If the Bot setup or any
// event handler registration failed, the error is returned immediately.
func (b *Bot) Run() error {
	if b.initErr != nil {
		return errors.Wrap(b.initErr, "failed to initialize bot")
	}

	if len(b.Brain.registrationErrs) > 0 {
		errs := multierr.Combine(b.Brain.registrationErrs...)
		return errors.Wrap(errs, "invalid event handlers")
	}

	b.Adapter.RegisterAt(b.Brain)

	go func() {
		// Keep running until the context is canceled (e.g. via SIGINT).
		<-b.Context.Done()

		// Start a graceful shutdown in which all pending events are drained.
		// The shutdown context is canceled if the user sends the signal a
		// second time, which aborts the drain.
		shutdownCtx := cli.Context()
		b.Brain.Shutdown(shutdownCtx)
	}()

	b.Logger.Info("Bot initialized and ready to operate", zap.String("name", b.Name))
	b.Brain.HandleEvents()

	b.Logger.Info("Bot is shutting down", zap.String("name", b.Name))
	err := b.Adapter.Close()
	if err != nil {
		b.Logger.Info("Error while closing adapter", zap.Error(err))
	}

	err = b.Store.Close()
	if err != nil {
		b.Logger.Info("Error while closing memory", zap.Error(err))
	}

	return nil
}

// Respond registers an event handler that listens for the ReceiveMessageEvent
// and executes the given function only if the message text matches the given
// msg. The message is matched case insensitively against the entire text so
// "ping" does not trigger on "did you ping the server". The msg may contain
// capturing groups which are passed to the handler via Message.Matches.
func (b *Bot) Respond(msg string, fun func(Message) error) {
	expr := "^" + msg + "$"
	b.RespondRegex(expr, fun)
}

// RespondRegex is like Bot.Respond(…) but gives the caller more control over
// the regular expression. Messages are still matched case insensitively
// unless the expression says otherwise.
func (b *Bot) RespondRegex(expr string, fun func(Message) error) {
	if expr == "" {
		return
	}

	if expr[0] == '^' {
		// String already starts with the "^" anchor but does it also have the
		// case insensitivity option? If not, add it.
		if !strings.HasPrefix(expr, "^(?i)") {
			expr = "^(?i)" + expr[1:]
		}
	} else if !strings.HasPrefix(expr, "(?i)") {
		expr = "(?i)" + expr
	}

	regex, err := regexp.Compile(expr)
	if err != nil {
		b.Brain.registrationErrs = append(b.Brain.registrationErrs,
			errors.Wrap(err, "failed to add Response handler"),
		)
		return
	}

	b.Brain.RegisterHandler(func(ctx context.Context, evt ReceiveMessageEvent) error {
		matches := regex.FindStringSubmatch(evt.Text)
		if len(matches) == 0 {
			return nil
		}

		return fun(Message{
			Context:    ctx,
			ID:         evt.ID,
			Text:       evt.Text,
			AuthorID:   evt.AuthorID,
			AuthorName: evt.AuthorName,
			Channel:    evt.Channel,
			Guild:      evt.Guild,
			Mentions:   evt.Mentions,
			Time:       evt.Time,
			Matches:    matches[1:],
			Data:       evt.Data,
			adapter:    b.Adapter,
		})
	})
}

// Command registers an event handler that executes fun when a message starts
// with the command prefix of the bot (default "!") followed by the given
// command name. Everything after the name ends up in Message.Matches[0],
// which is the empty string if the command was invoked without arguments.
// The usage string is shared with other components via the
// RegisterCommandEvent so a help cog can build an index of all commands.
//
// Always register complete commands (e.g. both "rotation add" and
// "rotation del") instead of a catch-all "rotation" handler, otherwise the
// catch-all also fires for every subcommand invocation.
func (b *Bot) Command(name, usage string, fun func(Message) error) {
	expr := "^" + regexp.QuoteMeta(b.prefix+name) + `(?:\s+(.+))?$`
	b.RespondRegex(expr, fun)
	b.Brain.Emit(RegisterCommandEvent{Command: name, Usage: usage})
}

// Prefix returns the command prefix of the bot (default "!"). Cogs can use it
// to ignore messages that look like commands for other handlers.
func (b *Bot) Prefix() string {
	return b.prefix
}

// Say is a helper function to send a message to a specific channel, ignoring
// any error. Any args are formatted into msg via fmt.Sprintf.
func (b *Bot) Say(channel, msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	err := b.Adapter.Send(msg, channel)
	if err != nil {
		b.Logger.Error("Failed to send message", zap.Error(err))
	}
}
