package app

import (
	"sort"

	"chronos/internal/config"
	"chronos/internal/interval"
	"chronos/internal/registry"
	"chronos/internal/timer"
	logx "chronos/pkg/logx"
)

// applyTimers reconciles the running timers with cfg by name. Changed
// timers are closed and rebuilt; unchanged ones keep their state.
func (a *App) applyTimers(cfgs []config.TimerConfig) {
	want := make(map[string]config.TimerConfig, len(cfgs))
	for _, tc := range cfgs {
		want[tc.Name] = tc
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for name, mt := range a.timers {
		if tc, ok := want[name]; ok && tc == mt.cfg {
			continue
		}
		mt.t.Close()
		delete(a.timers, name)
		a.log.Debug("timer dropped", logx.String("timer", name))
	}
	for _, tc := range cfgs {
		if _, ok := a.timers[tc.Name]; ok {
			continue
		}
		t, err := a.newTimer(tc)
		if err != nil {
			a.log.Error("timer rejected", logx.String("timer", tc.Name), logx.Err(err))
			continue
		}
		a.timers[tc.Name] = &managedTimer{cfg: tc, t: t}
	}
}

func (a *App) newTimer(tc config.TimerConfig) (*timer.Timer, error) {
	every, err := config.ParseDurationField("interval", tc.Interval)
	if err != nil {
		return nil, err
	}
	tol, err := config.ParseDurationField("tolerance", tc.Tolerance)
	if err != nil {
		return nil, err
	}
	opts := []timer.Option{
		timer.WithName(tc.Name),
		timer.WithExecutor(a.pool),
		timer.WithTolerance(interval.FromStd(tol)),
		timer.WithLogger(a.log.With(logx.String("comp", "timer"))),
		timer.WithBus(a.bus),
	}
	switch {
	case tc.Mode == config.ModeOnce:
		opts = append(opts, timer.WithMode(timer.ModeOnce))
	case tc.Repeat > 0:
		opts = append(opts, timer.WithRepeatCount(tc.Repeat))
	}
	t, err := timer.Create(interval.FromStd(every), a.onTimerFired, opts...)
	if err != nil {
		return nil, err
	}
	if !tc.Paused {
		t.Start()
	}
	return t, nil
}

func (a *App) onTimerFired(t *timer.Timer) {
	fields := []logx.Field{
		logx.String("timer", t.Name()),
		logx.Uint64("fires", t.Fires()),
		logx.String("state", t.State().String()),
	}
	if left, ok := t.Remaining(); ok {
		fields = append(fields, logx.Int("remaining", left))
	}
	a.log.Info("timer fired", fields...)
}

// TimerInfo is a point-in-time view of a configured timer.
type TimerInfo struct {
	Name     string
	Mode     string
	State    string
	Fires    uint64
	Interval string
}

func (a *App) Timers() []TimerInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TimerInfo, 0, len(a.timers))
	for name, mt := range a.timers {
		out = append(out, TimerInfo{
			Name:     name,
			Mode:     mt.t.Mode().String(),
			State:    mt.t.State().String(),
			Fires:    mt.t.Fires(),
			Interval: mt.t.Interval().String(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// applyEvents reconciles the registry with cfg by id.
func (a *App) applyEvents(cfgs []config.EventConfig) {
	want := make(map[string]config.EventConfig, len(cfgs))
	for _, ec := range cfgs {
		want[ec.ID] = ec
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for id, old := range a.events {
		ec, ok := want[id]
		switch {
		case !ok || ec.Once != old.Once:
			a.reg.Remove(id)
			delete(a.events, id)
		case !ec.Once:
			a.reg.Update(id, registry.Update{Interval: ec.Every, Payload: ec.Payload})
			if ec.Paused != old.Paused {
				if ec.Paused {
					a.reg.Pause(id)
				} else {
					a.reg.Activate(id)
				}
			}
			a.events[id] = ec
		}
	}
	for _, ec := range cfgs {
		if _, ok := a.events[ec.ID]; ok {
			continue
		}
		if err := a.reg.Schedule(ec.ID, ec.Every, !ec.Once, a.eventCallback(ec.ID), ec.Payload); err != nil {
			a.log.Error("event rejected", logx.String("event", ec.ID), logx.Err(err))
			continue
		}
		if ec.Paused && !ec.Once {
			a.reg.Pause(ec.ID)
		}
		a.events[ec.ID] = ec
	}
}

func (a *App) eventCallback(id string) registry.Callback {
	return func(p registry.Payload) {
		a.log.Info("event fired", logx.String("event", id), logx.Any("payload", p))
	}
}
