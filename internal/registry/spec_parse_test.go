package registry

import (
	"testing"
	"time"
)

func TestParseTickVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		raw    string
		kind   TickKind
		source string
		every  time.Duration
	}{
		{name: "empty defaults to one second", raw: "", kind: TickInterval, source: "duration", every: time.Second},
		{name: "duration", raw: "1s", kind: TickInterval, source: "duration", every: time.Second},
		{name: "sub-second", raw: "250ms", kind: TickInterval, source: "duration", every: 250 * time.Millisecond},
		{name: "prefixed interval", raw: "every:2s", kind: TickInterval, source: "duration", every: 2 * time.Second},
		{name: "hhmm", raw: "00:05", kind: TickInterval, source: "hhmm", every: 5 * time.Minute},
		{name: "descriptor", raw: "@every 2s", kind: TickCron, source: "cron"},
		{name: "six-field cron", raw: "*/2 * * * * *", kind: TickCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:@hourly", kind: TickCron, source: "cron"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTick(tt.raw)
			if err != nil {
				t.Fatalf("ParseTick(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == TickInterval && got.Every != tt.every {
				t.Fatalf("Every = %v, want %v", got.Every, tt.every)
			}
		})
	}
}

func TestParseTickInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"soon", "-1s", "0s", "cron:", "interval:", "01:75"} {
		if _, err := ParseTick(raw); err == nil {
			t.Fatalf("ParseTick(%q): expected error", raw)
		}
	}
}
