package registry

import "sort"

// EventInfo is a point-in-time view of one event.
type EventInfo struct {
	ID     string
	Every  int
	Offset int
	Active bool
	Once   bool
	// DueIn is the number of ticks until the next due tick.
	DueIn   int
	Payload Payload
}

type Snapshot struct {
	Running bool
	Tick    string
	Counter int
	Window  int
	Ticks   uint64
	Events  []EventInfo
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Snapshot{
		Running: r.running,
		Tick:    r.tick.String(),
		Counter: r.counter,
		Window:  r.window,
		Ticks:   r.ticks.Load(),
		Events:  make([]EventInfo, 0, len(r.entries)),
	}
	for _, e := range r.entries {
		out.Events = append(out.Events, EventInfo{
			ID:      e.id,
			Every:   e.every,
			Offset:  e.offset,
			Active:  e.active,
			Once:    e.once,
			DueIn:   dueIn(r.counter, e.offset, e.every),
			Payload: e.payload,
		})
	}
	sort.SliceStable(out.Events, func(i, j int) bool { return out.Events[i].DueIn < out.Events[j].DueIn })
	return out
}

func dueIn(counter, offset, every int) int {
	if every <= 0 {
		return 0
	}
	k := ((offset-counter)%every + every) % every
	if k == 0 {
		k = every
	}
	return k
}
