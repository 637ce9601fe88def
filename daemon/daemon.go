//go:build unix

package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Leantar/incrond/models"
	"github.com/Leantar/incrond/modules/dispatch"
	"github.com/Leantar/incrond/modules/loop"
	"github.com/Leantar/incrond/modules/parser"
	"github.com/Leantar/incrond/modules/users"
	"github.com/Leantar/incrond/modules/watcher"
	"github.com/rs/zerolog/log"
)

type Config struct {
	SystemTableDir string `yaml:"system_table_dir"`
	UserTableDir   string `yaml:"user_table_dir"`
	AllowedUsers   string `yaml:"allowed_users"`
	DeniedUsers    string `yaml:"denied_users"`
	LockfileDir    string `yaml:"lockfile_dir"`
	LockfileName   string `yaml:"lockfile_name"`
	// Editor is read by the table editor only.
	Editor   string `yaml:"editor"`
	Shell    string `yaml:"shell"`
	LogLevel string `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		SystemTableDir: "/etc/incron.d",
		UserTableDir:   "/var/spool/incron",
		AllowedUsers:   "/etc/incron.allow",
		DeniedUsers:    "/etc/incron.deny",
		LockfileDir:    "/var/run",
		LockfileName:   "incrond",
		Shell:          dispatch.DefaultShell,
		LogLevel:       "info",
	}
}

func (c Config) PidFile() string {
	return filepath.Join(c.LockfileDir, c.LockfileName+".pid")
}

// Daemon owns everything the event loop works on. Nothing here is global.
type Daemon struct {
	conf     Config
	users    *users.List
	registry *models.Registry
	tracker  *models.Tracker
	spawner  *dispatch.ExecSpawner
	watcher  *watcher.Watcher
	loop     *loop.Loop
}

func New(config Config) *Daemon {
	return &Daemon{
		conf:     config,
		registry: models.NewRegistry(),
		tracker:  models.NewTracker(),
	}
}

// Load opens the kernel watcher, reads every table and registers the
// resulting paths. Only a missing watcher or an unreadable system table
// directory is fatal.
func (d *Daemon) Load() error {
	var err error

	d.watcher, err = watcher.New()
	if err != nil {
		return err
	}

	d.spawner, err = dispatch.NewExecSpawner()
	if err != nil {
		return err
	}

	d.users = users.Load(d.conf.AllowedUsers, d.conf.DeniedUsers)

	hooks, err := parser.LoadSystemTabs(d.registry, d.conf.SystemTableDir)
	if err != nil {
		return fmt.Errorf("failed to load system tables: %w", err)
	}

	userHooks, err := d.loadUserTabs()
	if err != nil {
		log.Warn().Err(err).Str("dir", d.conf.UserTableDir).Msg("failed to load user tables")
	}

	registered := d.registry.RegisterAll(d.watcher)
	log.Info().
		Int("hooks", hooks+userHooks).
		Int("paths", d.registry.Len()).
		Int("watches", registered).
		Msg("tables loaded")

	disp := dispatch.New(d.tracker, d.spawner, d.conf.Shell)
	d.loop = loop.New(d.registry, d.tracker, disp, d.watcher)

	return nil
}

func (d *Daemon) loadUserTabs() (int, error) {
	_, err := os.Stat(d.conf.UserTableDir)
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("dir", d.conf.UserTableDir).Msg("creating user table directory")
		if err := os.MkdirAll(d.conf.UserTableDir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create user table directory: %w", err)
		}
	}

	return parser.LoadUserTabs(d.registry, d.conf.UserTableDir, d.users)
}

// Run blocks in the event loop until a termination signal arrives.
func (d *Daemon) Run() error {
	if d.loop == nil {
		return errors.New("daemon not loaded")
	}

	log.Info().Msg("ready to process filesystem events")

	err := d.loop.Run()
	if err != nil {
		return fmt.Errorf("event loop failed: %w", err)
	}

	if d.loop.ReloadRequested() {
		log.Info().Msg("tables were not reloaded, restart to pick up changes")
	}

	return nil
}

func (d *Daemon) Stop() error {
	log.Info().Int("children", d.tracker.Len()).Msg("stopping daemon")

	var errs []error
	if d.watcher != nil {
		errs = append(errs, d.watcher.Close())
	}
	if d.spawner != nil {
		errs = append(errs, d.spawner.Close())
	}

	return errors.Join(errs...)
}

func (d *Daemon) Registry() *models.Registry {
	return d.registry
}
