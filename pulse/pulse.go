// Package pulse implements a durable periodic reminder and rotation engine.
//
// The engine tracks independent scopes (e.g. one per guild or one global
// scope per feature). Each scope knows when its last interesting event
// happened, how long the cooldown after such an event lasts and an optional
// list of rotation items that are applied one after another while the
// rotation is running. A periodic tick evaluates every scope and drives all
// external side effects through the Effects interface so the state machine
// itself stays free of any platform code.
//
// All state changes are persisted immediately which lets the engine pick up
// where it left off after a restart. In particular a notification that was
// already delivered is never delivered again for the same event.
package pulse

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/go-warden/warden/metrics"
)

// DefaultEffectTimeout bounds a single Effects call. Implementations should
// honor the context they receive; the engine additionally abandons calls
// that ignore it.
const DefaultEffectTimeout = 15 * time.Second

// DefaultTickInterval is how often the engine evaluates all scopes when it
// is driven by its own scheduler via Start.
const DefaultTickInterval = 10 * time.Second

// Effects receives all external side effects of the engine. Implementations
// talk to the chat platform, the engine never does.
type Effects interface {
	// Notify announces that the cooldown of the scope has elapsed. It runs
	// at most once per recorded event. A non-nil error leaves the scope
	// armed so the next evaluation retries the notification.
	Notify(ctx context.Context, scope string) error

	// Countdown reports the remaining cooldown on every evaluation,
	// whether or not anything changed. Implementations must therefore be
	// idempotent, e.g. skip a channel rename when the name already
	// matches.
	Countdown(ctx context.Context, scope string, remaining time.Duration, ready bool) error

	// Show applies a rotation item as the new external display state,
	// e.g. the bot presence or a channel topic.
	Show(ctx context.Context, scope string, item Item) error
}

// Store persists scope states. It is satisfied by *warden.Storage.
type Store interface {
	Set(key string, value interface{}) error
	Get(key string, value interface{}) (bool, error)
	Keys() ([]string, error)
}

// Engine evaluates all known scopes on every tick. It is safe for
// concurrent use; events may be recorded while a tick is in flight.
type Engine struct {
	logger  *zap.Logger
	store   Store
	effects Effects
	metrics metrics.Metrics

	prefix    string
	timeout   time.Duration
	tickEvery time.Duration
	clock     func() time.Time

	mu       sync.Mutex
	scopes   map[string]*State
	inflight map[string]struct{}

	cron    *cron.Cron
	runCtx  context.Context
	started bool
}

// An Option configures an Engine during New.
type Option func(*Engine)

// WithClock lets tests control the time the engine observes.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithKeyPrefix changes the storage key prefix under which scope states are
// persisted. The default is "pulse". Two engines sharing one store must use
// distinct prefixes.
func WithKeyPrefix(prefix string) Option {
	return func(e *Engine) {
		e.prefix = prefix
	}
}

// WithEffectTimeout changes how long the engine waits for a single Effects
// call before it abandons it.
func WithEffectTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithTickInterval changes how often the engine schedules its own ticks
// after Start.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tickEvery = d
		}
	}
}

// WithMetrics lets the engine report tick, notification and failure counts.
func WithMetrics(m metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine that persists into store and performs all external
// side effects through effects. The engine does not evaluate anything until
// Start is called or ticks are driven manually via Tick.
func New(logger *zap.Logger, store Store, effects Effects, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		logger:    logger,
		store:     store,
		effects:   effects,
		prefix:    "pulse",
		timeout:   DefaultEffectTimeout,
		tickEvery: DefaultTickInterval,
		clock:     time.Now,
		scopes:    map[string]*State{},
		inflight:  map[string]struct{}{},
	}

	for _, opt := range opts {
		opt(e)
	}

	e.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{e.logger.Named("cron").Sugar()}),
	))

	return e
}

// Start loads all persisted scopes, resumes rotations that were running or
// are marked for autostart and then begins ticking in the background until
// Stop is called. The context is passed to all effect calls of scheduled
// ticks.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		return errors.New("engine was already started")
	}

	keys, err := e.store.Keys()
	if err != nil {
		return errors.Wrap(err, "failed to list persisted scopes")
	}

	prefix := e.prefix + "."
	e.mu.Lock()
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		st := e.ensureLocked(strings.TrimPrefix(key, prefix))
		if st.Autostart && !st.Running {
			st.Running = true
			e.saveLocked(st)
		}
	}
	n := len(e.scopes)
	e.mu.Unlock()

	e.runCtx = ctx
	_, err = e.cron.AddFunc("@every " + e.tickEvery.String(), e.scheduledTick)
	if err != nil {
		return errors.Wrap(err, "failed to schedule engine tick")
	}

	e.started = true
	e.cron.Start()
	e.logger.Info("Engine started",
		zap.Int("scopes", n),
		zap.Duration("tick_interval", e.tickEvery),
	)

	return nil
}

// Stop halts the scheduler, waits for an in-flight tick to finish and
// flushes all scopes to storage.
func (e *Engine) Stop() {
	<-e.cron.Stop().Done()

	e.mu.Lock()
	for _, st := range e.scopes {
		e.saveLocked(st)
	}
	e.mu.Unlock()

	e.logger.Info("Engine stopped")
}

func (e *Engine) scheduledTick() {
	e.Tick(e.runCtx, e.clock())
}

// Tick evaluates every known scope once. Failures of individual scopes are
// logged and never interrupt the sweep.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	e.mu.Lock()
	scopes := make([]string, 0, len(e.scopes))
	for scope := range e.scopes {
		scopes = append(scopes, scope)
	}
	e.mu.Unlock()

	sort.Strings(scopes)
	for _, scope := range scopes {
		e.evaluate(ctx, scope, now)
	}
}

// Refresh evaluates a single scope immediately instead of waiting for the
// next tick, e.g. right after an admin changed its configuration.
func (e *Engine) Refresh(ctx context.Context, scope string) {
	e.evaluate(ctx, scope, e.clock())
}

// RecordEvent stores the timestamp of the latest triggering event of a
// scope. It never contacts the external system; the next evaluation decides
// what needs to be sent. Recording the same timestamp twice does not re-arm
// a notification that was already delivered.
func (e *Engine) RecordEvent(scope string, ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.ensureLocked(scope)
	unix := ts.Unix()
	if st.LastEvent == unix {
		return
	}

	st.LastEvent = unix
	if st.NotifiedFor != unix {
		st.NotifiedFor = 0
	}
	e.saveLocked(st)
}

// Status returns a copy of the current state of the scope. Unknown scopes
// report their defaults.
func (e *Engine) Status(scope string) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ensureLocked(scope).clone()
}

// Scopes lists all scopes the engine currently knows, sorted by name.
func (e *Engine) Scopes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	scopes := make([]string, 0, len(e.scopes))
	for scope := range e.scopes {
		scopes = append(scopes, scope)
	}

	sort.Strings(scopes)
	return scopes
}

// SetCooldown updates the waiting period of the scope. Values below
// MinDuration are clamped up to it and the effective cooldown is returned.
func (e *Engine) SetCooldown(scope string, d time.Duration) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.ensureLocked(scope)
	st.Cooldown = clampSeconds(d)
	e.saveLocked(st)

	return time.Duration(st.Cooldown) * time.Second
}

// SetInterval updates the rotation spacing of the scope. Values below
// MinDuration are clamped up to it and the effective interval is returned.
func (e *Engine) SetInterval(scope string, d time.Duration) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.ensureLocked(scope)
	st.Interval = clampSeconds(d)
	e.saveLocked(st)

	return time.Duration(st.Interval) * time.Second
}

// SetAutostart controls whether the rotation of the scope resumes on its
// own when the engine starts.
func (e *Engine) SetAutostart(scope string, autostart bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.ensureLocked(scope)
	st.Autostart = autostart
	e.saveLocked(st)
}

// StartRotation begins applying the rotation items of the scope. A positive
// interval replaces the configured rotation spacing, zero keeps it. The
// first item is applied on the next due tick.
func (e *Engine) StartRotation(scope string, interval time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.ensureLocked(scope)
	if interval > 0 {
		st.Interval = clampSeconds(interval)
	}
	st.Running = true
	e.saveLocked(st)
}

// StopRotation halts the rotation of the scope. The rotation cursor keeps
// its position so StartRotation continues where it stopped.
func (e *Engine) StopRotation(scope string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.ensureLocked(scope)
	st.Running = false
	e.saveLocked(st)
}

// AddItem appends an item to the rotation list of the scope.
func (e *Engine) AddItem(scope string, item Item) error {
	if item.Text == "" {
		return errors.New("item text cannot be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.ensureLocked(scope)
	st.Items = append(st.Items, item)
	e.saveLocked(st)

	return nil
}

// RemoveItem deletes the rotation item at the given position and returns
// it. The rotation cursor is reset to the start of the list when it would
// point past the end afterwards.
func (e *Engine) RemoveItem(scope string, i int) (Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.ensureLocked(scope)
	if i < 0 || i >= len(st.Items) {
		return Item{}, errors.Errorf("no rotation item at position %d", i)
	}

	item := st.Items[i]
	st.Items = append(st.Items[:i], st.Items[i+1:]...)
	e.saveLocked(st)

	return item, nil
}

// SetItems replaces the whole rotation list of the scope and resets the
// rotation cursor.
func (e *Engine) SetItems(scope string, items []Item) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.ensureLocked(scope)
	st.Items = append([]Item(nil), items...)
	st.Index = 0
	e.saveLocked(st)
}

// Reset discards the state of the scope and persists its defaults.
func (e *Engine) Reset(scope string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := newState(scope)
	e.scopes[scope] = st
	e.saveLocked(st)
}

// evaluate runs the three effect phases for one scope: the idempotent
// countdown display, the at-most-once notification and the rotation step.
// At most one evaluation per scope runs at any time; overlapping calls are
// skipped so a slow effect cannot cause a duplicate notification.
func (e *Engine) evaluate(ctx context.Context, scope string, now time.Time) {
	e.mu.Lock()
	if _, busy := e.inflight[scope]; busy {
		e.mu.Unlock()
		e.logger.Debug("Skipping evaluation because the previous one still runs", zap.String("scope", scope))
		return
	}
	e.inflight[scope] = struct{}{}
	snap := e.ensureLocked(scope).clone()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inflight, scope)
		e.mu.Unlock()

		if v := recover(); v != nil {
			e.logger.Error("Scope evaluation panicked",
				zap.String("scope", scope),
				zap.Any("panic_value", v),
			)
		}
	}()

	e.observe(e.metrics.TicksCount, 1)
	remaining, ready := snap.Remaining(now)

	err := e.callEffect(ctx, func(ctx context.Context) error {
		return e.effects.Countdown(ctx, scope, remaining, ready)
	})
	if err != nil {
		e.logger.Warn("Countdown effect failed", zap.String("scope", scope), zap.Error(err))
		e.observe(e.metrics.EffectFailures, 1, "countdown")
	}

	if ready && snap.LastEvent != 0 && snap.NotifiedFor != snap.LastEvent {
		err := e.callEffect(ctx, func(ctx context.Context) error {
			return e.effects.Notify(ctx, scope)
		})
		if err != nil {
			// The scope stays armed so the next tick retries.
			e.logger.Error("Notify effect failed", zap.String("scope", scope), zap.Error(err))
			e.observe(e.metrics.EffectFailures, 1, "notify")
		} else {
			e.mu.Lock()
			st := e.ensureLocked(scope)
			st.NotifiedFor = snap.LastEvent
			e.saveLocked(st)
			e.mu.Unlock()
			e.observe(e.metrics.NotificationsCount, 1)
		}
	}

	e.mu.Lock()
	st := e.ensureLocked(scope)
	due := st.Running && len(st.Items) > 0 && now.Unix()-st.RotatedAt >= st.Interval
	var item Item
	if due {
		// The cursor advances before the item is applied so a failing
		// display call cannot stall the rotation on one item.
		item = st.Items[st.Index]
		st.Index = (st.Index + 1) % len(st.Items)
		st.RotatedAt = now.Unix()
		e.saveLocked(st)
	}
	e.mu.Unlock()

	if !due {
		return
	}

	err = e.callEffect(ctx, func(ctx context.Context) error {
		return e.effects.Show(ctx, scope, item)
	})
	if err != nil {
		e.logger.Warn("Show effect failed", zap.String("scope", scope), zap.Error(err))
		e.observe(e.metrics.EffectFailures, 1, "show")
		return
	}

	e.observe(e.metrics.RotationsCount, 1)
}

// callEffect invokes fun with a deadline. The call runs in its own
// goroutine so an implementation that ignores its context cannot block the
// engine for longer than the configured timeout; such a call is abandoned,
// not interrupted. Panics are returned as errors.
func (e *Engine) callEffect(ctx context.Context, fun func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- errors.Errorf("effect panic: %v", v)
			}
		}()

		done <- fun(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) observe(o metrics.Observer, val float64, labels ...string) {
	if o != nil {
		o.Observe(val, labels...)
	}
}

// ensureLocked returns the state of the scope, loading it from storage on
// first use. Unknown scopes start with their defaults, as does a scope
// whose persisted form cannot be decoded anymore.
func (e *Engine) ensureLocked(scope string) *State {
	if st, ok := e.scopes[scope]; ok {
		return st
	}

	st := newState(scope)
	ok, err := e.store.Get(e.key(scope), st)
	switch {
	case err != nil:
		e.logger.Warn("Failed to load scope state, starting from defaults",
			zap.String("scope", scope), zap.Error(err))
		st = newState(scope)
	case ok:
		st.Scope = scope
		st.normalize()
	}

	e.scopes[scope] = st
	return st
}

// saveLocked persists the state. A failing save is logged and otherwise
// ignored; the in-memory state remains authoritative until the next
// successful save.
func (e *Engine) saveLocked(st *State) {
	st.normalize()
	if err := e.store.Set(e.key(st.Scope), st); err != nil {
		e.logger.Error("Failed to persist scope state",
			zap.String("scope", st.Scope), zap.Error(err))
	}
}

func (e *Engine) key(scope string) string {
	return e.prefix + "." + scope
}

// cronLogger makes a zap logger usable by the cron scheduler, e.g. when it
// reports a skipped tick.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Infow(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
