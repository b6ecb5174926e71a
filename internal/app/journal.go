package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"chronos/internal/eventbus"
	"chronos/internal/registry"
	"chronos/internal/storage"
	"chronos/internal/timer"
	logx "chronos/pkg/logx"
)

// startJournal copies scheduler events from the bus into the store.
func (a *App) startJournal() {
	events, unsub := a.bus.Subscribe(256, "timer.", "event.")
	warn := rate.NewLimiter(rate.Every(10*time.Second), 1)
	a.sup.Go0("journal", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				r, keep := recordFor(e)
				if !keep {
					continue
				}
				actx, cancel := context.WithTimeout(c, 2*time.Second)
				err := a.store.Append(actx, r)
				cancel()
				if err != nil && warn.Allow() {
					a.log.Warn("journal append failed", logx.String("kind", r.Kind), logx.Err(err))
				}
			}
		}
	})
}

// recordFor maps a bus event to a journal record. Transitions through
// Executing are skipped: every firing already has its own record.
func recordFor(e eventbus.Event) (storage.Record, bool) {
	r := storage.Record{At: e.Time, Kind: e.Type}
	switch d := e.Data.(type) {
	case timer.StateChange:
		if d.From == timer.Executing || d.To == timer.Executing {
			return r, false
		}
		r.Source, r.ID, r.Name = "timer", d.TimerID, d.Name
		r.Detail = d.From.String() + "->" + d.To.String()
	case timer.Fired:
		r.Source, r.ID, r.Name = "timer", d.TimerID, d.Name
		r.Iteration = d.Iteration
		r.Detail = fmt.Sprintf("state=%s observers=%d failed=%d", d.State, d.Observers, d.Failed)
		if d.Forced {
			r.Detail += " forced"
		}
	case timer.CallbackFailure:
		r.Source, r.ID, r.Name = "timer", d.TimerID, d.Name
		r.Detail = fmt.Sprintf("token=%d", d.Token)
		r.Error = d.Err
	case registry.Scheduled:
		r.Source, r.ID = "event", d.ID
		r.Detail = fmt.Sprintf("every=%d repeat=%t offset=%d", d.Every, d.Repeat, d.Offset)
	case registry.Fired:
		r.Source, r.ID = "event", d.ID
		r.Detail = fmt.Sprintf("tick=%d", d.Tick)
		if d.Immediate {
			r.Detail = "immediate"
		}
		if len(d.Payload) > 0 {
			if b, err := json.Marshal(d.Payload); err == nil {
				r.MetaJSON = string(b)
			}
		}
	case registry.Removed:
		r.Source, r.ID = "event", d.ID
	case registry.CallbackFailure:
		r.Source, r.ID = "event", d.ID
		r.Error = d.Err
	default:
		return r, false
	}
	return r, true
}
