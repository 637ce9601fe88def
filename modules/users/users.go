// Package users decides which users may have incron tables.
//
// If the allow file exists only the users listed in it are permitted. If it
// does not but the deny file does, everyone except the listed users is
// permitted. If neither exists, nobody is.
package users

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// MaxNameLength bounds a username, terminator included, like LOGIN_NAME_MAX.
const MaxNameLength = 256

type Policy int

const (
	PolicyNone Policy = iota
	PolicyAllow
	PolicyDeny
)

func (p Policy) String() string {
	switch p {
	case PolicyAllow:
		return "allow"
	case PolicyDeny:
		return "deny"
	}
	return "none"
}

type List struct {
	Policy Policy
	names  map[string]struct{}
}

// Load reads allowFile, or denyFile when allowFile cannot be read.
func Load(allowFile, denyFile string) *List {
	if names, err := readFile(allowFile); err == nil {
		log.Info().Str("file", allowFile).Int("users", len(names)).Msg("loaded allowed users")
		return &List{Policy: PolicyAllow, names: names}
	} else if !os.IsNotExist(err) {
		log.Error().Err(err).Str("file", allowFile).Msg("couldn't read user file")
	}

	if names, err := readFile(denyFile); err == nil {
		log.Info().Str("file", denyFile).Int("users", len(names)).Msg("loaded denied users")
		return &List{Policy: PolicyDeny, names: names}
	} else if !os.IsNotExist(err) {
		log.Error().Err(err).Str("file", denyFile).Msg("couldn't read user file")
	}

	log.Warn().Msg("no allow or deny file loaded, user tables are disabled")

	return &List{Policy: PolicyNone, names: map[string]struct{}{}}
}

// Permitted reports whether name may have a table.
func (l *List) Permitted(name string) bool {
	_, listed := l.names[name]

	switch l.Policy {
	case PolicyAllow:
		return listed
	case PolicyDeny:
		return !listed
	}

	return false
}

func (l *List) Len() int {
	return len(l.names)
}

func readFile(path string) (map[string]struct{}, error) {
	if path == "" {
		return nil, os.ErrNotExist
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	names := make(map[string]struct{})

	scanner := bufio.NewScanner(file)
	num := 0
	for scanner.Scan() {
		num++

		name, err := ParseLine(scanner.Text())
		if err != nil {
			log.Warn().Err(err).Str("file", path).Int("line", num).Msg("skipping user")
			continue
		}

		if name != "" {
			names[name] = struct{}{}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return names, nil
}

// ParseLine extracts the username from one line of a user file. Blank lines
// yield an empty name.
func ParseLine(line string) (string, error) {
	name := strings.TrimSpace(line)

	if len(name) >= MaxNameLength {
		return "", fmt.Errorf("username of %d bytes is too long", len(name))
	}

	return name, nil
}
