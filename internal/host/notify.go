package host

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify state strings (daemon.SdNotifyReady, ...).
type Notifier interface {
	Notify(state string) error
}

// Systemd notifies the service manager over $NOTIFY_SOCKET. Without the
// socket every call is a silent no-op.
type Systemd struct{}

func (Systemd) Notify(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}

// WatchdogInterval returns the unit's WatchdogSec for this process, or 0
// when the watchdog is not enabled.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}
