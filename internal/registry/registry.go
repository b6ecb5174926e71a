package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"chronos/internal/clock"
	"chronos/internal/eventbus"
	"chronos/internal/exec"
	logx "chronos/pkg/logx"
)

var (
	ErrInvalidEvent = errors.New("registry: invalid event")
	ErrClosed       = errors.New("registry: closed")
)

// Payload is passed through to the callback unmodified.
type Payload = map[string]any

type Callback func(payload Payload)

// Config controls the registry tick source.
type Config struct {
	Enabled bool
	// Tick is the base tick spec, see ParseTick.
	Tick string
	// QueueSize bounds each per-identifier worker queue.
	QueueSize int
}

// Update carries the mutable fields of an event. Zero values keep the
// previous setting.
type Update struct {
	Interval int
	// Once makes the event fire at its next due tick and then drops it.
	Once     bool
	Callback Callback
	Payload  Payload
}

type Option func(*Registry)

func WithLogger(l logx.Logger) Option { return func(r *Registry) { r.log = l } }
func WithBus(b eventbus.Bus) Option   { return func(r *Registry) { r.bus = b } }

// WithClock drives interval ticks from c instead of cron.
func WithClock(c clock.Clock) Option { return func(r *Registry) { r.clk = c; r.clockTicks = true } }

// WithDispatcher replaces the per-identifier serial workers.
func WithDispatcher(d exec.Dispatcher) Option { return func(r *Registry) { r.disp = d } }

type entry struct {
	id      string
	every   int
	offset  int
	once    bool
	active  bool
	cb      Callback
	payload Payload

	gone atomic.Bool
}

type Registry struct {
	mu sync.Mutex

	cfg  Config
	tick TickSpec
	log  logx.Logger
	bus  eventbus.Bus
	clk  clock.Clock

	disp    exec.Dispatcher
	ownDisp *exec.Keyed

	entries []*entry
	counter int
	window  int

	// tick source
	clockTicks bool
	running    bool
	parser     cron.Parser
	c          *cron.Cron
	wake       clock.Timer
	srcGen     uint64
	stopCtx    func() bool

	ticks  atomic.Uint64
	closed bool
}

// New builds an idle registry. Start drives it from the configured tick;
// Tick may also be called directly.
func New(cfg Config, opts ...Option) (*Registry, error) {
	tick, err := ParseTick(cfg.Tick)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		cfg:  cfg,
		tick: tick,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	if r.clk == nil {
		r.clk = clock.Real()
	}
	if tick.Kind == TickCron {
		if _, err := r.parser.Parse(tick.Cron); err != nil {
			return nil, fmt.Errorf("invalid cron tick %q: %w", tick.Cron, err)
		}
	}
	if r.disp == nil {
		k := exec.NewKeyed("event", cfg.QueueSize, r.log)
		r.disp = k
		r.ownDisp = k
	}
	return r, nil
}

func (r *Registry) findLocked(id string) (int, *entry) {
	for i, e := range r.entries {
		if e.id == id {
			return i, e
		}
	}
	return -1, nil
}

// Schedule registers a recurring event and fires its callback once right
// away. A duplicate id is ignored: the first registration wins and the
// immediate fire does not happen again. With repeat false only the
// immediate fire happens.
func (r *Registry) Schedule(id string, every int, repeat bool, cb Callback, payload Payload) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEvent)
	}
	if cb == nil {
		return fmt.Errorf("%w: %q has no callback", ErrInvalidEvent, id)
	}
	if repeat && every <= 0 {
		return fmt.Errorf("%w: %q interval %d", ErrInvalidEvent, id, every)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if _, dup := r.findLocked(id); dup != nil {
		r.mu.Unlock()
		r.log.Debug("duplicate schedule ignored", logx.String("event", id))
		return nil
	}
	e := &entry{id: id, every: every, once: !repeat, active: true, cb: cb, payload: payload}
	if repeat {
		e.offset = r.counter % every
		r.entries = append(r.entries, e)
	}
	counter := r.counter
	r.mu.Unlock()

	r.log.Debug("event scheduled", logx.String("event", id), logx.Int("every", every), logx.Bool("repeat", repeat), logx.Int("offset", e.offset))
	r.publish(eventbus.EventScheduled, Scheduled{ID: id, Every: every, Repeat: repeat, Offset: e.offset, At: r.clk.Now()})
	r.dispatch(e, cb, payload, counter, true)
	return nil
}

// Update mutates every entry matching id and reports whether one matched.
// Interval 0 keeps the previous interval; a negative interval is rejected.
func (r *Registry) Update(id string, u Update) bool {
	if u.Interval < 0 {
		r.log.Warn("update rejected: negative interval", logx.String("event", id), logx.Int("every", u.Interval))
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for _, e := range r.entries {
		if e.id != id {
			continue
		}
		found = true
		if u.Interval != 0 {
			e.every = u.Interval
		}
		e.once = u.Once
		if u.Callback != nil {
			e.cb = u.Callback
		}
		if u.Payload != nil {
			e.payload = u.Payload
		}
	}
	return found
}

// Activate resumes a paused event. Its phase is unchanged.
func (r *Registry) Activate(id string) bool { return r.setActive(id, true) }

// Pause suspends an event without removing it.
func (r *Registry) Pause(id string) bool { return r.setActive(id, false) }

func (r *Registry) setActive(id string, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for _, e := range r.entries {
		if e.id == id {
			e.active = active
			found = true
		}
	}
	return found
}

// Remove deletes the first entry with id. Callbacks already queued for it
// but not yet started are skipped.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	i, e := r.findLocked(id)
	if e == nil {
		r.mu.Unlock()
		return false
	}
	e.gone.Store(true)
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	_, still := r.findLocked(id)
	r.mu.Unlock()

	if still == nil && r.ownDisp != nil {
		r.ownDisp.Drop(id)
	}
	r.log.Debug("event removed", logx.String("event", id))
	r.publish(eventbus.EventRemoved, Removed{ID: id, At: r.clk.Now()})
	return true
}

func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, e := r.findLocked(id)
	return e != nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) dispatch(e *entry, cb Callback, payload Payload, tick int, immediate bool) {
	err := r.disp.Dispatch(e.id, func() {
		if e.gone.Load() {
			return
		}
		if err := exec.Run(func() { cb(payload) }); err != nil {
			fields := []logx.Field{logx.String("event", e.id), logx.Err(err)}
			var pe *exec.PanicError
			if errors.As(err, &pe) {
				fields = append(fields, logx.Stack(pe.Stack))
			}
			r.log.Error("event callback panicked", fields...)
			r.publish(eventbus.EventCallbackFailed, CallbackFailure{ID: e.id, Err: err.Error(), At: r.clk.Now()})
			return
		}
		r.publish(eventbus.EventFired, Fired{ID: e.id, Tick: tick, Immediate: immediate, Payload: payload, At: r.clk.Now()})
	})
	if err != nil {
		r.log.Warn("event dispatch failed", logx.String("event", e.id), logx.Err(err))
	}
}

func (r *Registry) publish(typ string, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Time: r.clk.Now(), Data: data})
}

// Close stops the tick source and the per-identifier workers. Registered
// events are dropped.
func (r *Registry) Close(ctx context.Context) error {
	r.Stop(ctx)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, e := range r.entries {
		e.gone.Store(true)
	}
	r.entries = nil
	own := r.ownDisp
	r.mu.Unlock()

	if own != nil {
		return own.Close(ctx)
	}
	return nil
}
