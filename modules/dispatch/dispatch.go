// Package dispatch fires the hooks of a watched path for one change event.
//
// Every interested hook gets its own child process; dispatch never waits
// for children. The pid of each child is recorded in a models.Tracker
// before the next hook is looked at, so the event loop can reap it later.
package dispatch

import (
	"errors"
	"fmt"
	"os"

	"github.com/Leantar/incrond/models"
	"github.com/Leantar/incrond/modules/watcher"
	"github.com/rs/zerolog/log"
)

const DefaultShell = "/bin/sh"

// Command is everything needed to start one hook process.
type Command struct {
	Shell string
	Line  string
	Owner models.Owner
	// SwitchUser is set when the hook owner is not the daemon's effective
	// user. The child then runs in the owner's home with the owner's ids.
	SwitchUser bool
}

// Argv is the argument vector for running Line through Shell.
func (c Command) Argv() []string {
	return []string{c.Shell, "-c", c.Line}
}

// ErrFork is wrapped by spawn errors where no child process was created.
var ErrFork = errors.New("failed to fork")

// ChildError is a child that was created but died setting up its identity,
// working directory or program image.
type ChildError struct {
	Command Command
	Err     error
}

func (e *ChildError) Error() string {
	if e.Command.SwitchUser {
		return fmt.Sprintf("child for %s (uid %d, dir %s) failed before running %s: %v",
			e.Command.Owner.Name, e.Command.Owner.Uid, e.Command.Owner.Home, e.Command.Shell, e.Err)
	}
	return fmt.Sprintf("child failed before running %s: %v", e.Command.Shell, e.Err)
}

func (e *ChildError) Unwrap() error {
	return e.Err
}

// Spawner starts a child process and returns its pid without waiting. A
// failure to create the process wraps ErrFork.
type Spawner interface {
	Spawn(cmd Command) (int, error)
}

type Dispatcher struct {
	Tracker *models.Tracker
	Spawner Spawner
	Shell   string
	euid    uint32
}

func New(tracker *models.Tracker, spawner Spawner, shell string) *Dispatcher {
	if shell == "" {
		shell = DefaultShell
	}

	return &Dispatcher{
		Tracker: tracker,
		Spawner: spawner,
		Shell:   shell,
		euid:    uint32(os.Geteuid()),
	}
}

// Dispatch runs every hook of path whose mask intersects the event mask, in
// table order. A fork failure stops the remaining hooks for this event and
// is returned. A child that dies before exec only costs its own hook.
func (d *Dispatcher) Dispatch(path *models.WatchedPath, event watcher.Event) error {
	for _, h := range path.Hooks {
		cross := event.Mask & h.Mask
		if cross == 0 {
			continue
		}

		cmd := d.Command(path, h, event, cross)

		pid, err := d.Spawner.Spawn(cmd)
		if errors.Is(err, ErrFork) {
			return fmt.Errorf("failed to spawn hook %s:%d for %s: %w", h.Source, h.Line, path.Path, err)
		}
		if err != nil {
			// the child existed, so the hook counts as fired
			h.Fired = true
			log.Error().
				Err(err).
				Str("path", path.Path).
				Str("table", h.Source).
				Int("line", h.Line).
				Str("user", h.Owner.Name).
				Msg("hook child failed")
			continue
		}

		d.Tracker.Record(pid, h)
		h.Fired = true

		log.Info().
			Int("pid", pid).
			Str("path", path.Path).
			Str("events", models.MaskText(cross)).
			Str("user", h.Owner.Name).
			Msgf("spawned child %s", cmd.Line)
	}

	return nil
}

// Command builds the process description for firing h. cross is the part
// of the event mask h is interested in.
func (d *Dispatcher) Command(path *models.WatchedPath, h *models.Hook, event watcher.Event, cross uint32) Command {
	return Command{
		Shell:      d.Shell,
		Line:       h.Expand(path.Path, event.Name, cross),
		Owner:      h.Owner,
		SwitchUser: h.Owner.Uid != d.euid,
	}
}
