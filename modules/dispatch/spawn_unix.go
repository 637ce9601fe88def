//go:build unix

package dispatch

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ExecSpawner starts hooks with fork and exec. Children get /dev/null as
// stdio, a PATH-only environment and their own session.
type ExecSpawner struct {
	env     []string
	devnull *os.File
}

func NewExecSpawner() (*ExecSpawner, error) {
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}

	return &ExecSpawner{
		env:     []string{"PATH=" + os.Getenv("PATH")},
		devnull: devnull,
	}, nil
}

func (s *ExecSpawner) Spawn(cmd Command) (int, error) {
	fd := s.devnull.Fd()

	attr := &syscall.ProcAttr{
		Env:   s.env,
		Files: []uintptr{fd, fd, fd},
		Sys: &syscall.SysProcAttr{
			Setsid: true,
		},
	}

	if cmd.SwitchUser {
		// Go drops the group before the user, so the setgid still has root
		attr.Sys.Credential = &syscall.Credential{
			Uid: cmd.Owner.Uid,
			Gid: cmd.Owner.Gid,
		}
		// applied after the credential drop, so the owner must be able to enter it
		attr.Dir = cmd.Owner.Home
	}

	pid, err := syscall.ForkExec(cmd.Shell, cmd.Argv(), attr)
	if isForkErrno(err) {
		return -1, fmt.Errorf("%w: %w", ErrFork, err)
	}
	if err != nil {
		return -1, &ChildError{Command: cmd, Err: err}
	}

	return pid, nil
}

func (s *ExecSpawner) Close() error {
	return s.devnull.Close()
}

// isForkErrno reports errors that fork(2) itself returns. Anything else out
// of ForkExec happened in the child while it set itself up or ran exec.
func isForkErrno(err error) bool {
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.ENOMEM) ||
		errors.Is(err, syscall.ENOSYS)
}
