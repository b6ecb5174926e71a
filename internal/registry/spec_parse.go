package registry

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TickKind describes how the base tick is driven.
type TickKind int

const (
	TickInterval TickKind = iota
	TickCron
)

// TickSpec is a parsed base tick.
//
// Supported forms:
//   - Interval duration: "1s", "250ms", "2m30s"
//   - Interval HH:MM: "00:05" (5 minutes)
//   - Cron: "@every 2s", "@hourly", "*/5 * * * * *" (seconds field optional)
//
// Optional prefixes "cron:" and "interval:"/"every:" force the kind.
type TickSpec struct {
	Kind   TickKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

func (t TickSpec) String() string {
	if t.Kind == TickCron {
		return t.Cron
	}
	return t.Every.String()
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseTick parses a base tick spec. An empty string means one second.
func ParseTick(raw string) (TickSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return TickSpec{Kind: TickInterval, Every: time.Second, Source: "duration"}, nil
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return TickSpec{}, fmt.Errorf("cron tick required after 'cron:'")
		}
		return TickSpec{Kind: TickCron, Cron: expr, Source: "cron"}, nil
	}
	for _, p := range []string{"interval:", "every:"} {
		if strings.HasPrefix(low, p) {
			d, src, err := parseInterval(s[len(p):])
			if err != nil {
				return TickSpec{}, err
			}
			return TickSpec{Kind: TickInterval, Every: d, Source: src}, nil
		}
	}

	// Whitespace or a descriptor means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return TickSpec{Kind: TickCron, Cron: s, Source: "cron"}, nil
	}

	d, src, err := parseInterval(s)
	if err != nil {
		return TickSpec{}, fmt.Errorf(
			"invalid tick %q (use a duration like '1s', HH:MM like '00:05', or cron like '@every 2s')",
			raw,
		)
	}
	return TickSpec{Kind: TickInterval, Every: d, Source: src}, nil
}

func parseInterval(v string) (time.Duration, string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, "", fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		d, err := parseHHMMDuration(v)
		return d, "hhmm", err
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, "", fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '1s')", v)
	}
	if d <= 0 {
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, "duration", nil
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	var hh int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}
