package warden

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CLIAdapter is the default Adapter implementation that the bot uses if no
// other adapter was configured. It emits a ReceiveMessageEvent for each line
// it reads from its Input (stdin by default) and prints all sent messages to
// its Output (stdout by default).
//
// All messages appear to come from the "cli" channel and from the user the
// shell runs as, which is enough to try out cogs locally without a chat
// platform account.
type CLIAdapter struct {
	Prefix string
	Input  io.ReadCloser
	Output io.Writer
	Logger *zap.Logger
	Author string

	mu      sync.Mutex // protects the Output
	closing chan chan error
}

// NewCLIAdapter creates a new CLIAdapter. The caller must call Close() to
// make the CLIAdapter stop reading messages and emitting events.
func NewCLIAdapter(name string, logger *zap.Logger) *CLIAdapter {
	return &CLIAdapter{
		Prefix:  fmt.Sprintf("%s > ", name),
		Input:   os.Stdin,
		Output:  os.Stdout,
		Logger:  logger,
		Author:  os.Getenv("USER"),
		closing: make(chan chan error),
	}
}

// RegisterAt starts the CLIAdapter by reading messages from its Input and
// emitting a ReceiveMessageEvent for each of them. Additionally the adapter
// hooks into the InitEvent to print a prompt to show the user it is ready to
// accept input.
func (a *CLIAdapter) RegisterAt(brain *Brain) {
	brain.RegisterHandler(func(evt InitEvent) {
		_ = a.print(a.Prefix)
	})

	go a.loop(brain)
}

func (a *CLIAdapter) loop(brain *Brain) {
	input := a.readLines()

	// Print the prompt again after each handled message so the shell feels
	// interactive even though handlers run asynchronously.
	callback := func(Event) {
		_ = a.print(a.Prefix)
	}

	for {
		select {
		case message, ok := <-input:
			if !ok {
				// No more input but we keep serving Close().
				input = nil
				continue
			}

			brain.Emit(ReceiveMessageEvent{
				Text:       message,
				Channel:    "cli",
				AuthorID:   a.Author,
				AuthorName: a.Author,
				Time:       time.Now(),
			}, callback)

		case result := <-a.closing:
			// Move the shell cursor away from the prompt before exiting.
			_ = a.print("\n")
			result <- a.Input.Close()
			return
		}
	}
}

// readLines reads lines from the Input of the CLIAdapter in a new goroutine
// until the Input is closed or exhausted.
func (a *CLIAdapter) readLines() <-chan string {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(a.Input)
		for scanner.Scan() {
			lines <- scanner.Text()
		}

		close(lines)
	}()

	return lines
}

// Send prints the given message to the Output of the CLIAdapter. The channel
// argument is ignored since the shell only has a single conversation.
func (a *CLIAdapter) Send(text, channel string) error {
	return a.print(text + "\n")
}

// Close makes the CLIAdapter stop emitting events and closes its Input. It
// must only be called after the adapter was started via RegisterAt and must
// not be called more than once.
func (a *CLIAdapter) Close() error {
	if a.closing == nil {
		return errors.New("already closed")
	}

	callback := make(chan error)
	a.closing <- callback
	err := <-callback

	// Mark the adapter as closed by setting its closing channel to nil.
	a.closing = nil

	return err
}

func (a *CLIAdapter) print(msg string) error {
	a.mu.Lock()
	_, err := fmt.Fprint(a.Output, msg)
	a.mu.Unlock()

	return err
}
