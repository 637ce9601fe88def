package loop

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// Run waits on the inotify descriptor and the signal pipe until SIGINT or
// SIGTERM arrives.
func (l *Loop) Run() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("failed to create epoll instance: %w", err)
	}
	defer unix.Close(epfd)

	sigs, err := newSignalPipe(Signals...)
	if err != nil {
		return err
	}
	defer sigs.Close()

	if err := epollAdd(epfd, sigs.r); err != nil {
		return err
	}
	if err := epollAdd(epfd, l.Watcher.Fd()); err != nil {
		return err
	}

	ready := make([]unix.EpollEvent, 2)

	for !l.shutdown {
		n, err := unix.EpollWait(epfd, ready, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to wait for events: %w", err)
		}

		for i := 0; i < n; i++ {
			switch int(ready[i].Fd) {
			case l.Watcher.Fd():
				if err := l.Watcher.ReadEvents(l.handleEvent); err != nil {
					log.Error().Caller().Err(err).Msg("failed to read events")
				}
			case sigs.r:
				sigs.drain(l.handleSignal)
			}
		}
	}

	return nil
}

// Edge triggered: every readiness must be drained until EAGAIN.
func epollAdd(epfd, fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET,
		Fd:     int32(fd),
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("failed to add fd %d to epoll: %w", fd, err)
	}

	return nil
}

// signalPipe turns asynchronous signal delivery into a readable descriptor.
// A forwarding goroutine writes one byte per signal number.
type signalPipe struct {
	r, w int
	ch   chan os.Signal
	done chan struct{}
}

func newSignalPipe(sigs ...os.Signal) (*signalPipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("failed to create signal pipe: %w", err)
	}

	p := &signalPipe{
		r:    fds[0],
		w:    fds[1],
		ch:   make(chan os.Signal, 32),
		done: make(chan struct{}),
	}

	signal.Notify(p.ch, sigs...)
	go p.forward()

	return p, nil
}

func (p *signalPipe) forward() {
	for {
		select {
		case <-p.done:
			return
		case sig := <-p.ch:
			num, ok := sig.(syscall.Signal)
			if !ok {
				continue
			}
			if _, err := unix.Write(p.w, []byte{byte(num)}); err != nil {
				log.Warn().Err(err).Str("signal", sig.String()).Msg("dropped signal")
			}
		}
	}
}

func (p *signalPipe) drain(fn func(os.Signal)) {
	buf := make([]byte, 64)

	for {
		n, err := unix.Read(p.r, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || n <= 0 {
			// EAGAIN once empty
			return
		}

		for _, b := range buf[:n] {
			fn(syscall.Signal(b))
		}
	}
}

func (p *signalPipe) Close() {
	signal.Stop(p.ch)
	close(p.done)
	unix.Close(p.r)
	unix.Close(p.w)
}
