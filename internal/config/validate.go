package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 256
)

// ApplyDefaults fills zero values in place.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Executor.Workers <= 0 {
		cfg.Executor.Workers = DefaultWorkers
	}
	if cfg.Executor.QueueSize <= 0 {
		cfg.Executor.QueueSize = DefaultQueueSize
	}
	if strings.TrimSpace(cfg.Registry.Tick) == "" {
		cfg.Registry.Tick = "1s"
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	for i := range cfg.Timers {
		if cfg.Timers[i].Mode == "" {
			cfg.Timers[i].Mode = ModeEvery
		}
	}
}

// Validate checks the fields the daemon cannot recover from. Tick specs are
// checked by the registry itself.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
		if s.Retain < 0 {
			errs = append(errs, fmt.Errorf("storage.retain: must be >= 0"))
		}
	}

	names := map[string]bool{}
	for i, t := range cfg.Timers {
		path := fmt.Sprintf("timers[%d]", i)
		name := strings.TrimSpace(t.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name: required", path))
		} else if names[name] {
			errs = append(errs, fmt.Errorf("%s.name: duplicate %q", path, name))
		}
		names[name] = true

		switch t.Mode {
		case "", ModeOnce, ModeEvery:
		default:
			errs = append(errs, fmt.Errorf("%s.mode: want %q or %q, got %q", path, ModeOnce, ModeEvery, t.Mode))
		}
		d, err := ParseDurationField(path+".interval", t.Interval)
		if err != nil {
			errs = append(errs, err)
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("%s.interval: must be > 0", path))
		}
		if _, err := ParseDurationField(path+".tolerance", t.Tolerance); err != nil {
			errs = append(errs, err)
		}
		if t.Repeat < 0 {
			errs = append(errs, fmt.Errorf("%s.repeat: must be >= 0", path))
		}
		if t.Mode == ModeOnce && t.Repeat > 0 {
			errs = append(errs, fmt.Errorf("%s.repeat: not allowed with mode %q", path, ModeOnce))
		}
	}

	ids := map[string]bool{}
	for i, e := range cfg.Events {
		path := fmt.Sprintf("events[%d]", i)
		if strings.TrimSpace(e.ID) == "" {
			errs = append(errs, fmt.Errorf("%s.id: required", path))
		} else if ids[e.ID] {
			errs = append(errs, fmt.Errorf("%s.id: duplicate %q", path, e.ID))
		}
		ids[e.ID] = true
		if !e.Once && e.Every <= 0 {
			errs = append(errs, fmt.Errorf("%s.every: must be > 0", path))
		}
	}

	return errors.Join(errs...)
}
