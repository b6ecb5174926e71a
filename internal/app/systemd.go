package app

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"chronos/internal/interval"
	"chronos/internal/timer"
	logx "chronos/pkg/logx"
)

func sdNotify(state string) (bool, error) { return daemon.SdNotify(false, state) }

func (a *App) sdNotify(state string) {
	sent, err := a.notify(state)
	if err != nil {
		a.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if !sent {
		a.log.Debug("sd_notify skipped: NOTIFY_SOCKET not set", logx.String("state", state))
	}
}

// startSystemd reports readiness and, when the unit sets WatchdogSec,
// pings the watchdog from a repeating timer at half the deadline.
func (a *App) startSystemd() {
	a.sdNotify(daemon.SdNotifyReady)

	wd, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("watchdog config invalid", logx.Err(err))
		return
	}
	if wd <= 0 {
		return
	}
	a.startWatchdog(wd / 2)
}

func (a *App) startWatchdog(every time.Duration) {
	t, err := timer.Every(interval.FromStd(every), func(*timer.Timer) {
		a.sdNotify(daemon.SdNotifyWatchdog)
	}, timer.WithName("systemd.watchdog"), timer.WithLogger(a.log.With(logx.String("comp", "watchdog"))))
	if err != nil {
		a.log.Warn("watchdog timer failed", logx.Err(err))
		return
	}
	a.mu.Lock()
	a.watchdog = t
	a.mu.Unlock()
	a.log.Info("systemd watchdog enabled", logx.Duration("every", every))
}
