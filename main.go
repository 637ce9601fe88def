//go:build unix

package main

import (
	"errors"
	"fmt"
	"log/syslog"
	"os"
	"path/filepath"

	"github.com/Leantar/incrond/daemon"
	"github.com/Leantar/incrond/modules/config"
	"github.com/Leantar/incrond/modules/pidfile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

const defaultConfigPath = "/etc/incrond/incrond.yaml"

var version = "0.5.12"

var (
	configPath  string
	logLevel    string
	pidName     string
	verbose     bool
	showVersion bool
	foreground  bool
	kill        bool
	hup         bool
)

func main() {
	cmd := &cobra.Command{
		Use:           "incrond",
		Short:         "Run commands when watched files and directories change",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "f", defaultConfigPath, "Specify a path to load the config from")
	flags.StringVarP(&logLevel, "log-level", "l", "", "Log level (trace, debug, info, warn, error)")
	flags.StringVarP(&pidName, "pid", "p", "", "Pid file name inside the lockfile directory")
	flags.BoolVarP(&verbose, "verbose", "V", false, "Log at debug level")
	flags.BoolVarP(&showVersion, "version", "v", false, "Print the version and exit")
	flags.BoolVarP(&foreground, "foreground", "n", false, "Log to the console instead of syslog")
	flags.BoolVarP(&kill, "kill", "k", false, "Terminate the running instance")
	flags.BoolVarP(&hup, "hup", "H", false, "Send SIGHUP to the running instance")

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("incrond failed")
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if showVersion {
		fmt.Printf("incrond %s\n", version)
		return nil
	}

	setupLogging(foreground)

	conf := daemon.DefaultConfig()
	err := config.FromYamlFile(configPath, &conf)
	if errors.Is(err, config.ErrNotFound) && !cmd.Flags().Changed("config") {
		log.Debug().Str("path", configPath).Msg("no config file, using defaults")
	} else if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := setLevel(conf.LogLevel); err != nil {
		return err
	}

	// --pid names the file inside lockfile_dir as is, without the .pid suffix
	pidPath := conf.PidFile()
	if pidName != "" {
		pidPath = filepath.Join(conf.LockfileDir, pidName)
	}

	if kill || hup {
		return signalRunning(pidPath)
	}

	if pid, err := pidfile.Running(pidPath); err == nil {
		log.Warn().Int("pid", pid).Msg("another instance seems to be running")
	}

	if err := pidfile.Write(pidPath); err != nil {
		log.Error().Caller().Err(err).Str("path", pidPath).Msg("failed to write pid file")
	}
	defer pidfile.Remove(pidPath)

	log.Info().Str("version", version).Msg("starting service")

	d := daemon.New(conf)
	defer func() {
		if err := d.Stop(); err != nil {
			log.Error().Caller().Err(err).Msg("failed to stop daemon")
		}
	}()

	if err := d.Load(); err != nil {
		return err
	}

	if err := d.Run(); err != nil {
		return err
	}

	log.Info().Msg("stopped")
	return nil
}

func setupLogging(console bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if console {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		return
	}

	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, "incrond")
	if err != nil {
		log.Warn().Err(err).Msg("syslog unavailable, logging to stderr")
		return
	}

	log.Logger = zerolog.New(zerolog.SyslogLevelWriter(w))
}

func setLevel(name string) error {
	if logLevel != "" {
		name = logLevel
	}
	if verbose {
		name = "debug"
	}

	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	zerolog.SetGlobalLevel(level)
	return nil
}

func signalRunning(path string) error {
	sig := unix.SIGTERM
	if hup {
		sig = unix.SIGHUP
	}

	pid, err := pidfile.Signal(path, sig)
	if errors.Is(err, pidfile.ErrNotRunning) {
		log.Info().Str("path", path).Msg("no running instance")
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().Int("pid", pid).Str("signal", sig.String()).Msg("signalled running instance")
	return nil
}
