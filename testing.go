package warden

import (
	"bytes"
	"context"
	"io"
	"time"

	"go.uber.org/zap/zaptest"
)

// TestingT is the minimal required subset of the API provided by all
// *testing.T and *testing.B objects.
type TestingT interface {
	Logf(string, ...interface{})
	Errorf(string, ...interface{})
	Fatal(...interface{})
	Helper()
	Fail()
	Failed() bool
	Name() string
	FailNow()
}

// TestBot wraps a *Bot for unit tests.
type TestBot struct {
	*Bot
	T       TestingT
	Input   io.Writer
	Output  io.Reader
	Timeout time.Duration // defaults to 1s

	runErr chan error
}

// NewTest creates a new *Bot instance that can be used in unit tests. The Bot
// uses a CLIAdapter which accepts messages from TestBot.Input and writes all
// output to TestBot.Output. The logger is a zaptest.Logger which sends all
// logs through the passed TestingT (usually a *testing.T instance).
//
// For ease of testing the Bot can be started and stopped without a cancel via
// TestBot.Start() and TestBot.Stop().
func NewTest(t TestingT, modules ...Module) *TestBot {
	logger := zaptest.NewLogger(t)
	input := new(bytes.Buffer)
	output := new(bytes.Buffer)

	b := &TestBot{
		T:       t,
		Input:   input,
		Output:  output,
		Timeout: time.Second,
		runErr:  make(chan error, 1), // buffered so we can return from TestBot.Run without blocking
	}

	testAdapter := ModuleFunc(func(conf *Config) error {
		a := NewCLIAdapter("test", conf.Logger("adapter"))
		a.Input = io.NopCloser(input)
		a.Output = output
		conf.SetAdapter(a)
		return nil
	})

	// The testAdapter and logger modules must be passed first so the caller
	// can actually inject a different Adapter or logger if required.
	testModules := []Module{
		WithLogger(logger),
		WithContext(context.Background()),
		testAdapter,
	}

	b.Bot = New("test", append(testModules, modules...)...)
	return b
}

// EmitSync emits the given event on the Brain and blocks until all registered
// handlers have completely processed it.
func (b *TestBot) EmitSync(event interface{}) {
	b.T.Helper()

	done := make(chan bool)
	callback := func(Event) { done <- true }
	b.Brain.Emit(event, callback)

	select {
	case <-done:
		// ok, cool
	case <-time.After(b.Timeout):
		b.T.Errorf("EmitSync timed out")
		b.T.FailNow()
	}
}

// Start executes the Bot.Run() function and stores its error result in a
// channel so the caller can eventually execute TestBot.Stop() and receive the
// result. This function blocks until the event handler loop is actually
// running and has processed all events that were emitted during setup.
func (b *TestBot) Start() {
	started := make(chan bool)

	type initTestEvent struct{}
	b.Brain.RegisterHandler(func(evt initTestEvent) {
		started <- true
	})

	// When this event is handled we know the bot has completed its startup
	// and is ready to process events. The InitEvent is not an option here
	// because it only marks that the bot is starting and we would not know
	// when all other init handlers are done (e.g. for the CLI adapter).
	b.Brain.Emit(initTestEvent{})

	go func() {
		// The error will be available by calling TestBot.Stop()
		err := b.Run()
		if err != nil {
			close(started)
		}
	}()

	<-started
}

// Run wraps Bot.Run() in order to allow stopping the Bot without having to
// inject another context.
func (b *TestBot) Run() error {
	b.T.Helper()
	err := b.Bot.Run()
	b.runErr <- err // b.runErr is buffered so we can return immediately
	return err
}

// Stop stops a running Bot and blocks until it has completed. If Bot.Run()
// returned an error it is passed to the Errorf function of the TestingT that
// was used to create the TestBot.
func (b *TestBot) Stop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.Brain.Shutdown(ctx)

	select {
	case err := <-b.runErr:
		if err != nil {
			b.T.Errorf("Bot.Run() returned an error: %v", err)
		}
	case <-time.After(b.Timeout):
		b.T.Errorf("Stop timed out")
		b.T.FailNow()
	}
}

// ReadOutput consumes all data from the Output of the TestBot and returns it
// as a string so you can easily make assertions on it.
func (b *TestBot) ReadOutput() string {
	out, err := io.ReadAll(b.Output)
	if err != nil {
		b.T.Errorf("failed to read all output of bot: %v", err)
		return ""
	}

	return string(out)
}
