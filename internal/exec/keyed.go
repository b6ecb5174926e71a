package exec

import (
	"context"
	"errors"
	"sort"
	"sync"

	logx "chronos/pkg/logx"
)

// Keyed lazily creates one serial pool per key.
type Keyed struct {
	name      string
	queueSize int
	log       logx.Logger

	mu     sync.Mutex
	closed bool
	pools  map[string]*Pool
}

func NewKeyed(name string, queueSize int, log logx.Logger) *Keyed {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Keyed{name: name, queueSize: queueSize, log: log, pools: map[string]*Pool{}}
}

func (k *Keyed) Dispatch(key string, fn func()) error {
	if fn == nil {
		return ErrNilTask
	}
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return ErrStopped
	}
	p := k.pools[key]
	if p == nil {
		p = New(Config{Name: k.name + "." + key, Workers: 1, QueueSize: k.queueSize}, k.log)
		k.pools[key] = p
	}
	k.mu.Unlock()
	return p.Submit(fn)
}

// Drop closes the pool for key in the background.
func (k *Keyed) Drop(key string) {
	k.mu.Lock()
	p := k.pools[key]
	delete(k.pools, key)
	k.mu.Unlock()
	if p != nil {
		go func() { _ = p.Close(context.Background()) }()
	}
}

func (k *Keyed) Keys() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]string, 0, len(k.pools))
	for key := range k.pools {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (k *Keyed) Close(ctx context.Context) error {
	k.mu.Lock()
	k.closed = true
	pools := k.pools
	k.pools = map[string]*Pool{}
	k.mu.Unlock()

	var errs []error
	for _, p := range pools {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
