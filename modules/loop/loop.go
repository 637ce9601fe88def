//go:build unix

// Package loop is the daemon's reactor. It waits for change events and
// signals, hands events to the dispatcher and reaps finished hook processes.
// All of its state is touched from the goroutine running Run only.
package loop

import (
	"errors"
	"os"
	"time"

	"github.com/Leantar/incrond/models"
	"github.com/Leantar/incrond/modules/watcher"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// Signals are the notifications the loop subscribes to.
var Signals = []os.Signal{
	unix.SIGINT,
	unix.SIGTERM,
	unix.SIGQUIT,
	unix.SIGHUP,
	unix.SIGPIPE,
	unix.SIGCHLD,
}

type Dispatcher interface {
	Dispatch(path *models.WatchedPath, event watcher.Event) error
}

// Reaper collects pid if it has exited, without blocking.
type Reaper func(pid int) (exited bool, status unix.WaitStatus, err error)

type Loop struct {
	Registry   *models.Registry
	Tracker    *models.Tracker
	Dispatcher Dispatcher
	Watcher    *watcher.Watcher

	reap     Reaper
	shutdown bool
	reload   bool

	// an overflowing queue repeats the notification on every read
	overflowLog rate.Sometimes
	overflows   int
}

func New(reg *models.Registry, tracker *models.Tracker, d Dispatcher, w *watcher.Watcher) *Loop {
	return &Loop{
		Registry:   reg,
		Tracker:    tracker,
		Dispatcher: d,
		Watcher:    w,
		reap:       waitPid,

		overflowLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// ReloadRequested reports whether SIGHUP was received. Tables are not
// reloaded while running; the flag is only recorded.
func (l *Loop) ReloadRequested() bool {
	return l.reload
}

func (l *Loop) ShuttingDown() bool {
	return l.shutdown
}

func (l *Loop) handleEvent(event watcher.Event) {
	if event.Overflow() {
		l.overflows++
		l.overflowLog.Do(func() {
			log.Warn().Int("count", l.overflows).Msg("event queue overflowed, events were lost")
		})
	}

	path, ok := l.Registry.Resolve(event.WatchID)
	if !ok {
		log.Debug().Int("wd", event.WatchID).Msg("watch descriptor not found")
		return
	}

	log.Debug().Str("path", path.Path).Stringer("event", event).Msg("firing hooks")

	if err := l.Dispatcher.Dispatch(path, event); err != nil {
		log.Error().Err(err).Str("path", path.Path).Msg("failed to dispatch hooks")
	}

	if event.Has(models.InIgnored) {
		log.Info().Str("path", path.Path).Msg("watch removed by the kernel")
		l.Registry.Forget(event.WatchID)
	}
}

func (l *Loop) handleSignal(sig os.Signal) {
	switch sig {
	case unix.SIGINT, unix.SIGTERM:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		l.shutdown = true
	case unix.SIGHUP:
		log.Info().Msg("reload requested, tables are only read at startup")
		l.reload = true
	case unix.SIGCHLD:
		l.reapChildren()
	default:
		log.Debug().Str("signal", sig.String()).Msg("ignoring signal")
	}
}

// reapChildren polls every tracked child. Child-exit notifications coalesce,
// so one of them may stand for several exits.
func (l *Loop) reapChildren() {
	for _, pid := range l.Tracker.Pids() {
		exited, status, err := l.reap(pid)
		if errors.Is(err, unix.ECHILD) {
			l.Tracker.Reap(pid)
			log.Warn().Int("pid", pid).Msg("child vanished before it was reaped")
			continue
		}
		if err != nil {
			log.Error().Err(err).Int("pid", pid).Msg("failed to wait for child")
			continue
		}
		if !exited {
			continue
		}

		h, ok := l.Tracker.Reap(pid)
		if !ok {
			continue
		}

		ev := log.Info()
		if status.Exited() && status.ExitStatus() != 0 || status.Signaled() {
			ev = log.Warn()
		}

		ev.Int("pid", pid).
			Int("status", status.ExitStatus()).
			Str("path", h.Path.Path).
			Str("table", h.Source).
			Int("line", h.Line).
			Msgf("child [%d] finished", pid)
	}
}

func waitPid(pid int) (bool, unix.WaitStatus, error) {
	var status unix.WaitStatus

	for {
		wpid, err := unix.Wait4(pid, &status, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, status, err
		}

		return wpid == pid, status, nil
	}
}
