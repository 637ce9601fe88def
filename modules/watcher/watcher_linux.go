//go:build linux

package watcher

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

const (
	InitFlags = unix.IN_NONBLOCK |
		unix.IN_CLOEXEC
	readBufferSize = 64 * (unix.SizeofInotifyEvent + unix.NAME_MAX + 1)
)

// inotifyEventHeader mirrors struct inotify_event without the trailing name.
type inotifyEventHeader struct {
	Wd     int32
	Mask   uint32
	Cookie uint32
	Len    uint32
}

// Watcher wraps a non-blocking inotify descriptor. It is meant to be driven
// by a readiness loop: wait for Fd to become readable, then call ReadEvents.
type Watcher struct {
	fd  int
	buf []byte
}

func New() (*Watcher, error) {
	fd, err := unix.InotifyInit1(InitFlags)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inotify: %w", err)
	}

	return &Watcher{
		fd:  fd,
		buf: make([]byte, readBufferSize),
	}, nil
}

func (w *Watcher) Fd() int {
	return w.fd
}

// Add installs a watch on path and returns its watch descriptor.
func (w *Watcher) Add(path string, mask uint32) (int, error) {
	wd, err := unix.InotifyAddWatch(w.fd, path, mask)
	if err != nil {
		return -1, fmt.Errorf("failed to add inotify watch for %s: %w", path, err)
	}

	return wd, nil
}

func (w *Watcher) Remove(wd int) error {
	_, err := unix.InotifyRmWatch(w.fd, uint32(wd))
	return err
}

// ReadEvents reads until the descriptor has nothing more to offer and calls
// fn for every event, in kernel order.
func (w *Watcher) ReadEvents(fn func(Event)) error {
	for {
		n, err := unix.Read(w.fd, w.buf)
		if errors.Is(err, unix.EAGAIN) {
			return nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read inotify events: %w", err)
		}
		if n <= 0 {
			return nil
		}

		if err := parseEvents(w.buf[:n], fn); err != nil {
			return err
		}
	}
}

func parseEvents(buf []byte, fn func(Event)) error {
	rd := bytes.NewReader(buf)
	var offset int64

	for offset < int64(len(buf)) {
		var hdr inotifyEventHeader

		err := binary.Read(rd, binary.NativeEndian, &hdr)
		if err != nil {
			return fmt.Errorf("failed to read event header: %w", err)
		}

		start := offset + unix.SizeofInotifyEvent
		end := start + int64(hdr.Len)
		if end > int64(len(buf)) {
			return fmt.Errorf("truncated event name at offset %d", offset)
		}

		// The name is NUL padded to an alignment boundary
		name := unix.ByteSliceToString(buf[start:end])

		offset, err = rd.Seek(end, io.SeekStart)
		if err != nil {
			return fmt.Errorf("failed to set new offset: %w", err)
		}

		fn(Event{
			WatchID: int(hdr.Wd),
			Mask:    hdr.Mask,
			Cookie:  hdr.Cookie,
			Name:    name,
		})
	}

	return nil
}

func (w *Watcher) Close() error {
	return unix.Close(w.fd)
}
