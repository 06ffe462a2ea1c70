// Package systemd sends sd_notify state updates to the service manager.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier wraps daemon.SdNotify so callers can be tested without a socket.
type Notifier struct {
	notify func(unsetEnv bool, state string) (bool, error)
}

func New() *Notifier { return &Notifier{notify: daemon.SdNotify} }

func (n *Notifier) send(state string) (bool, error) {
	if n == nil || n.notify == nil {
		return false, nil
	}
	return n.notify(false, state)
}

// Ready reports startup complete (Type=notify units).
func (n *Notifier) Ready() (bool, error) { return n.send(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() (bool, error) { return n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by `systemctl status`.
func (n *Notifier) Status(format string, args ...any) (bool, error) {
	return n.send("STATUS=" + fmt.Sprintf(format, args...))
}

// WatchdogInterval returns the configured watchdog interval, or 0.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}

// Watchdog pings the watchdog.
func (n *Notifier) Watchdog() (bool, error) { return n.send(daemon.SdNotifyWatchdog) }
