//go:build unix

// Package pidfile records the daemon pid and signals a running instance.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

var ErrNotRunning = errors.New("no running instance")

// Read returns the pid stored at path.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return -1, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil || pid <= 0 {
		return -1, fmt.Errorf("failed to parse pid file %s: invalid content", path)
	}

	return pid, nil
}

// Write stores the current pid at path.
func Write(path string) error {
	content := strconv.Itoa(os.Getpid()) + "\n"

	err := os.WriteFile(path, []byte(content), 0o644)
	if err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}

	return nil
}

func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

// Alive reports whether a process with pid exists.
func Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Running returns the pid of the live instance recorded at path. A pid file
// naming a dead process is removed and ErrNotRunning returned.
func Running(path string) (int, error) {
	pid, err := Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return -1, ErrNotRunning
	}
	if err != nil {
		return -1, err
	}

	if !Alive(pid) {
		_ = Remove(path)
		return -1, fmt.Errorf("pid file %s names dead process %d: %w", path, pid, ErrNotRunning)
	}

	return pid, nil
}

// Signal delivers sig to the instance recorded at path.
func Signal(path string, sig unix.Signal) (int, error) {
	pid, err := Running(path)
	if err != nil {
		return -1, err
	}

	if err := unix.Kill(pid, sig); err != nil {
		return pid, fmt.Errorf("failed to signal %d: %w", pid, err)
	}

	return pid, nil
}
