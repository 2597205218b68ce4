package warden

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// The Brain contains the core logic of a Bot by implementing an event loop
// that dispatches events to all registered event handlers.
type Brain struct {
	logger *zap.Logger

	eventsInput chan Event // input for any new events, the Brain ensures that callers never block when writing to it
	eventsLoop  chan Event // used in Brain.HandleEvents() to actually process the events
	loopDone    chan struct{}

	mu       sync.RWMutex // mu protects concurrent access to the handlers map and the closed flag
	handlers map[reflect.Type][]eventHandler
	running  bool
	closed   bool

	handlerTimeout time.Duration // zero means no timeout

	registrationErrs []error // any errors that occurred during setup (e.g. in Bot.RegisterHandler)
}

// An Event represents a concrete event type and optional callbacks that are
// triggered when the event was processed by all registered handlers.
type Event struct {
	Data      interface{}
	Callbacks []func(Event)
}

// An eventHandler is a function that takes a context and the reflected value
// of a concrete event type.
type eventHandler func(context.Context, reflect.Value) error

// NewBrain creates a new Brain. If the passed logger is nil it will fall back
// to the zap.NewNop() logger. By default no timeout is enforced on the event
// handlers.
func NewBrain(logger *zap.Logger) *Brain {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Brain{
		logger:      logger,
		eventsInput: make(chan Event),
		loopDone:    make(chan struct{}),
		handlers:    make(map[reflect.Type][]eventHandler),
	}

	b.consumeEvents()

	return b
}

// RegisterHandler registers a function to be executed when a specific event
// is fired. The function signature must comply with the following rules or
// the Bot that uses this Brain will return an error on its next Bot.Run()
// call:
//
// Allowed function signatures:
//
//	// MyCustomEventStruct must be a struct but not a pointer to a struct.
//	func(MyCustomEventStruct)
//
//	// You can optionally accept a context as the first argument. It will
//	// receive the correct context of the Bot.
//	func(context.Context, MyCustomEventStruct)
//
//	// You can optionally return a single error value. If the handler
//	// returns an error it will be logged.
//	func(MyCustomEventStruct) error
//
//	// Event handlers can also accept an interface, in which case they will
//	// be called for all events that implement the interface. Consequently,
//	// you can register a handler for the empty interface to receive every
//	// emitted event.
//	func(context.Context, interface{}) error
//
// The event that is dispatched to the handler corresponds directly to the
// accepted function argument.
func (b *Brain) RegisterHandler(fun interface{}) {
	err := b.registerHandler(fun)
	if err != nil {
		caller := firstExternalCaller()
		err = errors.Wrap(err, caller)
		b.registrationErrs = append(b.registrationErrs, err)
	}
}

func (b *Brain) registerHandler(fun interface{}) error {
	handler := reflect.ValueOf(fun)
	handlerType := handler.Type()
	if handlerType.Kind() != reflect.Func {
		return errors.New("event handler is no function")
	}

	evtType, withContext, err := checkHandlerParams(handlerType)
	if err != nil {
		return err
	}

	returnsErr, err := checkHandlerReturnValues(handlerType)
	if err != nil {
		return err
	}

	b.logger.Debug("Registering new event handler",
		zap.Stringer("event_type", evtType),
	)

	handlerFun := newHandlerFunc(handler, withContext, returnsErr)

	b.mu.Lock()
	b.handlers[evtType] = append(b.handlers[evtType], handlerFun)
	b.mu.Unlock()

	return nil
}

// Emit sends the first argument as event to the brain from where it is
// dispatched to all registered handlers. The events are buffered in an
// unbounded queue so this function never blocks, even before the event loop
// was started via Brain.HandleEvents(). Events emitted after the Brain was
// shut down are silently dropped (with a debug log).
func (b *Brain) Emit(event interface{}, callbacks ...func(Event)) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Debug("Ignoring new event because brain is currently shutting down or is already closed",
			zap.String("type", fmt.Sprintf("%T", event)),
		)
		return
	}

	b.eventsInput <- Event{Data: event, Callbacks: callbacks}
}

// HandleEvents starts the event loop of the Brain. It immediately processes
// the InitEvent and then blocks until Brain.Shutdown() is called. During
// shutdown all pending events are drained and the ShutdownEvent is handled
// last.
func (b *Brain) HandleEvents() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Error("Cannot start event loop because brain is already closed")
		return
	}

	b.running = true
	b.mu.Unlock()

	defer close(b.loopDone)
	ctx := context.Background()

	b.handleEvent(ctx, Event{Data: InitEvent{}})

	for evt := range b.eventsLoop {
		b.handleEvent(ctx, evt)
	}

	// Brain.consumeEvents() closed the loop channel after it has drained all
	// pending events so it is now safe to run the shutdown handlers.
	b.handleEvent(ctx, Event{Data: ShutdownEvent{}})
}

// consumeEvents continuously reads events from b.eventsInput in a new
// goroutine so emitting an event never blocks the caller. All events are
// returned on b.eventsLoop in the same order in which they have been emitted.
// In this sense this function provides an events channel with "infinite"
// capacity. The spawned goroutine stops when the b.eventsInput channel is
// closed during shutdown, after flushing any queued events.
func (b *Brain) consumeEvents() {
	var queue []Event
	b.eventsLoop = make(chan Event)

	outChan := func() chan Event {
		if len(queue) == 0 {
			// In case the queue is empty we return a nil channel to disable
			// the corresponding select case in the goroutine below.
			return nil
		}

		return b.eventsLoop
	}

	nextEvt := func() Event {
		if len(queue) == 0 {
			// Prevent an index out of bounds if there is no next event. Note
			// that this event is never actually received because outChan()
			// returns nil in this case which disables the select case.
			return Event{}
		}

		return queue[0]
	}

	go func() {
		for {
			select {
			case evt, ok := <-b.eventsInput:
				if !ok {
					// The input channel was closed because the Brain is
					// shutting down. Flush all pending events and then close
					// the loop channel so Brain.HandleEvents() can exit.
					for _, evt := range queue {
						b.eventsLoop <- evt
					}
					close(b.eventsLoop)
					return
				}

				queue = append(queue, evt)
			case outChan() <- nextEvt(): // disabled if len(queue) == 0
				queue = queue[1:]
			}
		}
	}()
}

// handleEvent dispatches an event to all registered handlers using the
// reflect API. When all applicable handlers have run (maybe none) the
// functions runs all event callbacks.
func (b *Brain) handleEvent(ctx context.Context, evt Event) {
	event := reflect.ValueOf(evt.Data)
	typ := event.Type()
	handlers := b.determineHandlers(typ)

	b.logger.Debug("Handling new event",
		zap.Stringer("event_type", typ),
		zap.Int("handlers", len(handlers)),
	)

	for _, handler := range handlers {
		err := b.executeEventHandler(ctx, handler, event)
		if err != nil {
			b.logger.Error("Event handler failed",
				zap.Error(err),
			)
		}
	}

	for _, callback := range evt.Callbacks {
		callback(evt)
	}
}

// determineHandlers returns all handlers that were registered directly for
// the given event type as well as all handlers registered on an interface
// that the event type implements.
func (b *Brain) determineHandlers(evtType reflect.Type) []eventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var handlers []eventHandler
	for handlerType, hh := range b.handlers {
		if handlerType == evtType {
			handlers = append(handlers, hh...)
			continue
		}

		if handlerType.Kind() == reflect.Interface && evtType.Implements(handlerType) {
			handlers = append(handlers, hh...)
		}
	}

	return handlers
}

// executeEventHandler runs a single handler and enforces the configured
// handler timeout if there is one. Note that the handler goroutine keeps
// running even if the timeout fired; we merely stop waiting for it.
func (b *Brain) executeEventHandler(ctx context.Context, handler eventHandler, event reflect.Value) error {
	if b.handlerTimeout <= 0 {
		return handler(ctx, event)
	}

	ctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- handler(ctx, event)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown closes the event input, waits until the event loop has drained
// all pending events and has finished handling the ShutdownEvent, and then
// returns. If the given context is canceled before that, Shutdown returns
// early and the remaining events are processed in the background. Shutdown
// may be called any number of times, from multiple goroutines, and works
// even if the event loop was never started.
func (b *Brain) Shutdown(ctx context.Context) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	b.closed = true
	running := b.running
	b.mu.Unlock()

	close(b.eventsInput)

	if !running {
		// The event loop was never started so there is nothing to drain or
		// wait for.
		return
	}

	select {
	case <-b.loopDone:
	case <-ctx.Done():
	}
}

func checkHandlerParams(handlerFunc reflect.Type) (evtType reflect.Type, withContext bool, err error) {
	numParams := handlerFunc.NumIn()
	if numParams == 0 || numParams > 2 {
		err = errors.New("event handler needs one or two arguments")
		return
	}

	evtType = handlerFunc.In(numParams - 1) // the last argument must be the event
	withContext = numParams == 2

	if withContext {
		contextInterface := reflect.TypeOf((*context.Context)(nil)).Elem()
		if handlerFunc.In(1).Implements(contextInterface) {
			err = errors.New("event handler context must be the first argument")
			return
		}
		if !handlerFunc.In(0).Implements(contextInterface) {
			err = errors.New("event handler has two arguments but the first is not a context.Context")
			return
		}
	}

	switch evtType.Kind() {
	case reflect.Struct, reflect.Interface:
		// ok cool, move on
	case reflect.Ptr:
		err = errors.New("event handler argument must be a struct and not a pointer")
		return
	default:
		err = errors.New("event handler argument must be a struct")
		return
	}

	return evtType, withContext, nil
}

func checkHandlerReturnValues(handlerFunc reflect.Type) (returnsError bool, err error) {
	switch handlerFunc.NumOut() {
	case 0:
		return false, nil
	case 1:
		errorInterface := reflect.TypeOf((*error)(nil)).Elem()
		if !handlerFunc.Out(0).Implements(errorInterface) {
			err = errors.New("if the event handler has a return value it must implement the error interface")
			return
		}
		return true, nil
	default:
		return false, errors.Errorf("event handler has more than one return value")
	}
}

func newHandlerFunc(handler reflect.Value, withContext, returnsErr bool) eventHandler {
	return func(ctx context.Context, evt reflect.Value) (handlerErr error) {
		defer func() {
			if err := recover(); err != nil {
				handlerErr = errors.Errorf("handler panic: %v", err)
			}
		}()

		var args []reflect.Value
		if withContext {
			args = []reflect.Value{
				reflect.ValueOf(ctx),
				evt,
			}
		} else {
			args = []reflect.Value{evt}
		}

		results := handler.Call(args)
		if returnsErr && !results[0].IsNil() {
			return results[0].Interface().(error)
		}

		return nil
	}
}

func firstExternalCaller() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	callers := pcs[0:n]

	frames := runtime.CallersFrames(callers)
	for frame, more := frames.Next(); more; frame, more = frames.Next() {
		if !strings.HasPrefix(frame.Function, "github.com/go-warden/warden.") {
			return fmt.Sprintf("%s:%d", frame.File, frame.Line)
		}
	}

	return "unknown caller"
}
