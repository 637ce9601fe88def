//go:build unix && !linux

package loop

import (
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
)

// Run consumes watcher and signal channels until SIGINT or SIGTERM arrives.
func (l *Loop) Run() error {
	sigs := make(chan os.Signal, 32)
	signal.Notify(sigs, Signals...)
	defer signal.Stop(sigs)

	for !l.shutdown {
		select {
		case event, ok := <-l.Watcher.Events:
			if !ok {
				return nil
			}
			l.handleEvent(event)
		case err, ok := <-l.Watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Caller().Err(err).Msg("failed to read events")
		case sig := <-sigs:
			l.handleSignal(sig)
		}
	}

	return nil
}
