package parser

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Leantar/incrond/models"
	"github.com/rs/zerolog/log"
)

const maxLineSize = 1 << 20

// UserPolicy decides whether a user may have a table.
type UserPolicy interface {
	Permitted(name string) bool
}

// LoadTab parses every line of the table at path into reg. Lines that fail
// to parse are logged and skipped. It returns the number of hooks added.
func LoadTab(reg *models.Registry, path string, owner models.Owner) (int, error) {
	tab, err := models.NewTabFile(path)
	if err != nil {
		return 0, err
	}

	if !tab.Regular {
		return 0, fmt.Errorf("failed to load %s: not a regular file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open table: %w", err)
	}
	defer file.Close()

	p := New(reg, owner, path)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 4096), maxLineSize)

	hooks := 0
	num := 0
	for scanner.Scan() {
		num++

		h, err := p.ParseLine(num, scanner.Text())
		if err != nil {
			log.Error().Err(err).Str("file", path).Int("line", num).Msg("failed loading line")
			continue
		}

		if h != nil {
			hooks++
		}
	}

	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Str("file", path).Int("line", num+1).Msg("failed reading table")
	}

	log.Info().
		Str("file", path).
		Str("blake3", tab.ShortHash()).
		Uint32("file_uid", tab.Uid).
		Uint32("file_gid", tab.Gid).
		Str("file_mode", fmt.Sprintf("%#o", tab.Mode&0o7777)).
		Time("modified", time.Unix(tab.Modified, 0)).
		Str("user", owner.Name).
		Int("hooks", hooks).
		Msg("loaded table")

	return hooks, nil
}

// LoadSystemTabs loads every regular file in dir as a table owned by the
// daemon itself. Only a failure to read dir is returned.
func LoadSystemTabs(reg *models.Registry, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read system table dir: %w", err)
	}

	owner := CurrentOwner()

	hooks := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		n, err := LoadTab(reg, filepath.Join(dir, entry.Name()), owner)
		if err != nil {
			log.Error().Err(err).Str("file", entry.Name()).Msg("couldn't load system table")
			continue
		}
		hooks += n
	}

	return hooks, nil
}

// LoadUserTabs loads dir/<username> for every permitted, existing user.
func LoadUserTabs(reg *models.Registry, dir string, policy UserPolicy) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read user table dir: %w", err)
	}

	hooks := 0
	for _, entry := range entries {
		name := entry.Name()

		if !entry.Type().IsRegular() {
			continue
		}

		if !policy.Permitted(name) {
			log.Info().Str("user", name).Msgf("not loading %s user doesn't exist or isn't allowed", name)
			continue
		}

		owner, err := LookupOwner(name)
		if err != nil {
			log.Info().Err(err).Str("user", name).Msgf("not loading %s user doesn't exist", name)
			continue
		}

		n, err := LoadTab(reg, filepath.Join(dir, name), owner)
		if err != nil {
			log.Error().Err(err).Str("user", name).Msg("couldn't load user table")
			continue
		}
		hooks += n
	}

	return hooks, nil
}

// LookupOwner resolves a username in the passwd database.
func LookupOwner(name string) (models.Owner, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return models.Owner{}, err
	}

	return ownerFromUser(u)
}

// CurrentOwner describes the identity the daemon runs as.
func CurrentOwner() models.Owner {
	owner := models.Owner{
		Uid: uint32(os.Geteuid()),
		Gid: uint32(os.Getegid()),
	}

	if u, err := user.LookupId(strconv.Itoa(os.Geteuid())); err == nil {
		owner.Name = u.Username
		owner.Home = u.HomeDir
	}

	return owner
}

func ownerFromUser(u *user.User) (models.Owner, error) {
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return models.Owner{}, fmt.Errorf("failed to parse uid %q: %w", u.Uid, err)
	}

	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return models.Owner{}, fmt.Errorf("failed to parse gid %q: %w", u.Gid, err)
	}

	return models.Owner{
		Name: u.Username,
		Uid:  uint32(uid),
		Gid:  uint32(gid),
		Home: u.HomeDir,
	}, nil
}
