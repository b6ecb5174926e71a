package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chronos/internal/config"
	"chronos/internal/eventbus"
	"chronos/internal/exec"
	"chronos/internal/registry"
	"chronos/internal/runtime/supervisor"
	"chronos/internal/storage"
	"chronos/internal/timer"
	logx "chronos/pkg/logx"
)

// App wires config, logging, the journal, the named-event registry and the
// configured timers, and keeps them in sync with config reloads.
type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	pool *exec.Pool
	reg  *registry.Registry

	mu       sync.Mutex
	timers   map[string]*managedTimer
	events   map[string]config.EventConfig
	regOn    bool
	watchdog *timer.Timer

	notify func(state string) (bool, error)
}

type managedTimer struct {
	cfg config.TimerConfig
	t   *timer.Timer
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		store = st
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	reg, err := registry.New(registry.Config{
		Enabled:   cfg.Registry.Enabled,
		Tick:      cfg.Registry.Tick,
		QueueSize: cfg.Registry.QueueSize,
	}, registry.WithLogger(log.With(logx.String("comp", "registry"))), registry.WithBus(bus))
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		_ = logSvc.Close()
		return nil, fmt.Errorf("registry: %w", err)
	}

	pool := exec.New(exec.Config{
		Name:      "observers",
		Workers:   cfg.Executor.Workers,
		QueueSize: cfg.Executor.QueueSize,
	}, log.With(logx.String("comp", "exec")))

	return &App{
		cfgm:   cfgm,
		log:    appLog,
		logs:   logSvc,
		bus:    bus,
		store:  store,
		pool:   pool,
		reg:    reg,
		timers: map[string]*managedTimer{},
		events: map[string]config.EventConfig{},
		notify: sdNotify,
	}, nil
}

func (a *App) Registry() *registry.Registry { return a.reg }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	// Reject reloads the registry would refuse.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := registry.ParseTick(cfg.Registry.Tick); err != nil {
			return fmt.Errorf("registry.tick: %w", err)
		}
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	if a.store != nil {
		a.startJournal()
	}

	cfg := a.cfgm.Get()
	a.applyTimers(cfg.Timers)
	a.applyEvents(cfg.Events)
	if err := a.applyRegistry(cfg.Registry); err != nil {
		return err
	}

	a.sup.Go("config.watch", a.cfgm.Watch)
	a.startReloadLoop()

	if cfg.Systemd.Notify {
		a.startSystemd()
	}
	a.log.Info("chronos started",
		logx.Int("timers", len(cfg.Timers)),
		logx.Int("events", len(cfg.Events)),
		logx.Bool("registry", cfg.Registry.Enabled),
	)
	return nil
}

// Stop tears everything down in reverse order. It is safe to call once
// after Start returned.
func (a *App) Stop(ctx context.Context) error {
	start := time.Now()
	a.log.Info("stop requested")
	if cfg := a.cfgm.Get(); cfg != nil && cfg.Systemd.Notify {
		a.sdNotify("STOPPING=1")
	}

	a.mu.Lock()
	if a.watchdog != nil {
		a.watchdog.Close()
		a.watchdog = nil
	}
	for name, mt := range a.timers {
		mt.t.Close()
		delete(a.timers, name)
	}
	a.mu.Unlock()

	var errs []error
	if err := a.reg.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("registry: %w", err))
	}
	if err := a.pool.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("executor: %w", err))
	}
	if a.sup != nil {
		a.sup.Cancel()
		if err := a.sup.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	a.log.Info("chronos stopped", logx.Duration("took", time.Since(start)))
	_ = a.logs.Close()
	return errors.Join(errs...)
}

func (a *App) applyRegistry(rc config.RegistryConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case rc.Enabled && !a.regOn:
		if err := a.reg.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("registry start: %w", err)
		}
		a.regOn = true
	case !rc.Enabled && a.regOn:
		stopCtx, cancel := context.WithTimeout(a.sup.Context(), 3*time.Second)
		a.reg.Stop(stopCtx)
		cancel()
		a.regOn = false
		a.log.Info("registry disabled via config")
	}
	return nil
}

func (a *App) startReloadLoop() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			var newCfg *config.Config
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				newCfg = cfg
			}
			// Coalesce bursts: keep only the latest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyReload(lastApplied, newCfg)
			lastApplied = newCfg
		}
	})
}

func (a *App) applyReload(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLogConfig(newCfg))
		case "storage", "executor", "systemd":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		case "timers":
			a.applyTimers(newCfg.Timers)
		case "events":
			a.applyEvents(newCfg.Events)
		case "registry":
			if oldCfg != nil && (oldCfg.Registry.Tick != newCfg.Registry.Tick || oldCfg.Registry.QueueSize != newCfg.Registry.QueueSize) {
				a.log.Warn("registry tick changed; restart required for changes to take effect")
			}
			if err := a.applyRegistry(newCfg.Registry); err != nil {
				a.log.Error("registry reload failed", logx.Err(err))
			}
		}
	}
	if newCfg.Systemd.Notify {
		a.sdNotify(fmt.Sprintf("STATUS=%d timers, %d events", len(newCfg.Timers), len(newCfg.Events)))
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

const defaultBusyTimeout = 5 * time.Second

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	s := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", s.BusyTimeout, defaultBusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	if strings.TrimSpace(s.Path) == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path: required for driver %q", driver)
	}
	return storage.Config{Driver: driver, Path: s.Path, BusyTimeout: busy, Retain: s.Retain}, true, nil
}
