package config

// Config is the daemon configuration. JSON and YAML are both accepted; YAML
// is coerced to JSON so unknown fields are rejected the same way.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Executor ExecutorConfig `json:"executor"`
	Registry RegistryConfig `json:"registry"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Systemd  SystemdConfig  `json:"systemd"`

	Timers []TimerConfig `json:"timers,omitempty"`
	Events []EventConfig `json:"events,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ExecutorConfig sizes the shared worker pool timer observers run on.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
type ExecutorConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
}

// RegistryConfig controls the named-event registry.
//
// Tick is the base tick: a Go duration ("1s", "250ms"), HH:MM, or a cron
// spec ("@every 2s", "cron:*/5 * * * * *"). Empty means "1s".
type RegistryConfig struct {
	Enabled bool   `json:"enabled"`
	Tick    string `json:"tick,omitempty"`
	// QueueSize bounds each per-event worker queue.
	QueueSize int `json:"queue_size,omitempty"`
}

// StorageConfig controls the fire journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/journal.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Retain caps the number of journal records kept (0 = unlimited).
	Retain int `json:"retain,omitempty"`
}

// SystemdConfig enables sd_notify readiness and watchdog pings.
type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// TimerConfig describes one single-timer instance.
//
// Mode is "once" or "every". With mode "every", Repeat > 0 limits the
// number of firings; 0 repeats forever.
type TimerConfig struct {
	Name      string `json:"name"`
	Mode      string `json:"mode"`
	Interval  string `json:"interval"`
	Tolerance string `json:"tolerance,omitempty"`
	Repeat    int    `json:"repeat,omitempty"`
	// Paused creates the timer without starting it.
	Paused bool `json:"paused,omitempty"`
}

// EventConfig describes one named event. Every is counted in base ticks.
type EventConfig struct {
	ID    string `json:"id"`
	Every int    `json:"every"`
	// Once fires the event at registration only.
	Once    bool           `json:"once,omitempty"`
	Paused  bool           `json:"paused,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

const (
	ModeOnce  = "once"
	ModeEvery = "every"
)
