package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	rtsup "chronos/internal/runtime/supervisor"
	logx "chronos/pkg/logx"
)

// Config controls a worker pool.
type Config struct {
	Name      string
	Workers   int
	QueueSize int

	// OnPanic is a diagnostic hook for recovered task panics.
	OnPanic func(err *PanicError)
}

type Pool struct {
	cfg Config
	log logx.Logger

	mu     sync.RWMutex
	closed bool
	q      chan func()
	stopCh chan struct{}
	sup    *rtsup.Supervisor

	// Warn logs are throttled so a hot failing callback can't flood the sinks.
	warn *rate.Limiter

	submitted atomic.Uint64
	completed atomic.Uint64
	panics    atomic.Uint64
	dropped   atomic.Uint64
}

// New starts a pool. Workers and QueueSize default to 1 and 256.
func New(cfg Config, log logx.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Name == "" {
		cfg.Name = "exec"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Pool{
		cfg:    cfg,
		log:    log,
		q:      make(chan func(), cfg.QueueSize),
		stopCh: make(chan struct{}),
		warn:   rate.NewLimiter(rate.Limit(1), 3),
	}
	p.sup = rtsup.New(context.Background(),
		rtsup.WithLogger(log.With(logx.String("comp", cfg.Name))),
		rtsup.WithCancelOnError(false),
	)
	for i := 0; i < cfg.Workers; i++ {
		name := fmt.Sprintf("%s.worker.%d", cfg.Name, i)
		p.sup.GoRestart(name, func(ctx context.Context) error {
			p.worker(ctx)
			select {
			case <-p.stopCh:
				return context.Canceled
			default:
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.New("worker exited unexpectedly")
		})
	}
	return p
}

// NewSerial returns a single-worker pool: tasks run one at a time in FIFO order.
func NewSerial(name string, log logx.Logger) *Pool {
	return New(Config{Name: name, Workers: 1}, log)
}

func (p *Pool) Name() string { return p.cfg.Name }

// Submit enqueues fn without blocking.
func (p *Pool) Submit(fn func()) error {
	if fn == nil {
		return ErrNilTask
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStopped
	}
	select {
	case p.q <- fn:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		if p.warn.Allow() {
			p.log.Warn("task dropped: queue full", logx.String("pool", p.cfg.Name), logx.Int("queue_cap", cap(p.q)), logx.Uint64("dropped", p.dropped.Load()))
		}
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for workers to exit. Queued tasks
// that have not started are discarded; a running task finishes.
func (p *Pool) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	err := p.sup.Stop(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		p.log.Warn("pool stop timed out", logx.String("pool", p.cfg.Name))
	}
	return err
}

func (p *Pool) Stats() Stats {
	return Stats{
		Name:      p.cfg.Name,
		Workers:   p.cfg.Workers,
		QueueLen:  len(p.q),
		QueueCap:  cap(p.q),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
		Dropped:   p.dropped.Load(),
	}
}

func (p *Pool) worker(ctx context.Context) {
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case fn := <-p.q:
			p.runOne(fn)
		}
	}
}

func (p *Pool) runOne(fn func()) {
	err := Run(fn)
	p.completed.Add(1)
	if err == nil {
		return
	}
	var pe *PanicError
	if !errors.As(err, &pe) {
		return
	}
	p.panics.Add(1)
	if p.warn.Allow() {
		p.log.Error("task panicked", logx.String("pool", p.cfg.Name), logx.Any("panic", pe.Value), logx.Stack(pe.Stack))
	}
	if p.cfg.OnPanic != nil {
		_ = Run(func() { p.cfg.OnPanic(pe) })
	}
}
