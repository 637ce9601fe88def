package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Leantar/incrond/models"
	"github.com/Leantar/incrond/modules/tokenizer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func newParser() *Parser {
	return New(models.NewRegistry(), models.Owner{Name: "root"}, "test")
}

func TestParseAllEvents(t *testing.T) {
	p := newParser()

	h, err := p.ParseLine(1, "/tmp\tIN_ALL_EVENTS\tabcd $@/$# $%")
	if err != nil {
		t.Fatal(err)
	}

	if p.Registry.Len() != 1 {
		t.Fatalf("expected 1 watched path, got %d", p.Registry.Len())
	}

	path, ok := p.Registry.Lookup("/tmp")
	if !ok || h.Path != path {
		t.Fatalf("hook is not attached to /tmp")
	}

	if h.Mask != models.InAllEvents|models.MetaMask {
		t.Errorf("expected mask %#x, got %#x", models.InAllEvents|models.MetaMask, h.Mask)
	}

	if len(h.Command) != 3 {
		t.Errorf("expected 3 command tokens, got %q", h.Command)
	}

	exp := []models.Placeholder{
		{Token: 1, Offset: 0, Kind: models.PlaceholderPath},
		{Token: 1, Offset: 3, Kind: models.PlaceholderFilename},
		{Token: 2, Offset: 0, Kind: models.PlaceholderEventText},
	}
	if !reflect.DeepEqual(h.Placeholders, exp) {
		t.Errorf("expected placeholders %+v, got %+v", exp, h.Placeholders)
	}
}

func TestParseNoLoop(t *testing.T) {
	p := newParser()

	h, err := p.ParseLine(2, "/usr/bin\tIN_ACCESS,IN_NO_LOOP\tabcd $#")
	if err != nil {
		t.Fatal(err)
	}

	if h.Mask&models.InAccess == 0 {
		t.Errorf("expected IN_ACCESS in mask %#x", h.Mask)
	}

	if !h.NoLoop() {
		t.Errorf("expected IN_NO_LOOP flag, got flags %#x", h.Flags)
	}

	if h.Mask != models.InAccess|models.MetaMask {
		t.Errorf("scheduler flags leaked into the kernel mask: %#x", h.Mask)
	}

	exp := []models.Placeholder{{Token: 1, Offset: 0, Kind: models.PlaceholderFilename}}
	if !reflect.DeepEqual(h.Placeholders, exp) {
		t.Errorf("expected placeholders %+v, got %+v", exp, h.Placeholders)
	}
}

func TestParseModifiers(t *testing.T) {
	tt := []struct {
		name  string
		field string
		mask  uint32
	}{
		{"unknown number", "12", models.MetaMask},
		{"short names", "CREATE,DELETE", models.InCreate | models.InDelete | models.MetaMask},
		{"unknown skipped", "IN_CREATE,IN_BOGUS,IN_MODIFY", models.InCreate | models.InModify | models.MetaMask},
		{"case sensitive", "in_create", models.MetaMask},
		{"aliases", "IN_CLOSE,IN_MOVE", models.InClose | models.InMove | models.MetaMask},
		{"trailing comma", "IN_CREATE,", models.InCreate | models.MetaMask},
		{"prefix is not enough", "IN_CLOSE_", models.MetaMask},
		{"isdir", "IN_CREATE,IN_ISDIR", models.InCreate | models.InIsDir | models.MetaMask},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			p := newParser()

			h, err := p.ParseLine(1, "/var/log "+tc.field+" abcd $@/$#")
			if err != nil {
				t.Fatal(err)
			}

			if h == nil {
				t.Fatal("expected a hook")
			}

			if h.Mask != tc.mask {
				t.Errorf("expected mask %#x, got %#x", tc.mask, h.Mask)
			}
		})
	}
}

func TestParseSkipsCommentsAndBlankLines(t *testing.T) {
	p := newParser()

	for _, line := range []string{"# /tmp IN_CREATE echo", "#", "", "  \t"} {
		h, err := p.ParseLine(1, line)
		if err != nil || h != nil {
			t.Errorf("%q: expected nothing, got hook %v err %v", line, h, err)
		}
	}

	if p.Registry.Len() != 0 {
		t.Errorf("expected empty registry, got %d paths", p.Registry.Len())
	}
}

func TestParseIndentedHashIsNotAComment(t *testing.T) {
	p := newParser()

	h, err := p.ParseLine(1, "\t#notes IN_CREATE echo $#")
	if err != nil {
		t.Fatal(err)
	}

	if h == nil || h.Path.Path != "#notes" {
		t.Fatalf("expected an entry watching #notes, got %v", h)
	}

	if h.Mask != models.InCreate|models.MetaMask {
		t.Errorf("unexpected mask %#x", h.Mask)
	}
}

func TestParseErrors(t *testing.T) {
	tt := []struct {
		name string
		line string
		err  error
	}{
		{"unterminated double quote", `/tmp IN_CREATE "echo`, tokenizer.ErrUnterminatedDoubleQuote},
		{"unterminated single quote", `/tmp IN_CREATE 'echo`, tokenizer.ErrUnterminatedSingleQuote},
		{"path only", "/tmp", ErrMissingField},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			p := newParser()

			h, err := p.ParseLine(1, tc.line)
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}

			if h != nil {
				t.Errorf("expected no hook")
			}

			if p.Registry.Len() != 0 {
				t.Errorf("failed line must not create a watched path")
			}
		})
	}
}

func TestParseAggregatesPath(t *testing.T) {
	p := newParser()

	lines := []string{
		"/home IN_CREATE echo one",
		"/home IN_MODIFY echo two",
		"/etc IN_DELETE echo three",
	}
	for i, line := range lines {
		if _, err := p.ParseLine(i+1, line); err != nil {
			t.Fatal(err)
		}
	}

	home, _ := p.Registry.Lookup("/home")
	if len(home.Hooks) != 2 {
		t.Fatalf("expected 2 hooks on /home, got %d", len(home.Hooks))
	}

	if home.Hooks[0].Command[1] != "one" || home.Hooks[1].Command[1] != "two" {
		t.Errorf("hooks are not in table order")
	}

	exp := models.InCreate | models.InModify | models.MetaMask
	if home.Mask != exp {
		t.Errorf("expected aggregated mask %#x, got %#x", exp, home.Mask)
	}

	if p.Registry.Len() != 2 {
		t.Errorf("expected 2 paths, got %d", p.Registry.Len())
	}
}

func TestParseQuotedCommand(t *testing.T) {
	p := newParser()

	h, err := p.ParseLine(1, `/srv IN_CLOSE_WRITE sh -c "cp $@/$# /backup"`)
	if err != nil {
		t.Fatal(err)
	}

	exp := []string{"sh", "-c", "cp $@/$# /backup"}
	if !reflect.DeepEqual(h.Command, exp) {
		t.Fatalf("expected %q, got %q", exp, h.Command)
	}

	if len(h.Placeholders) != 2 || h.Placeholders[0].Token != 2 || h.Placeholders[1].Offset != 6 {
		t.Errorf("unexpected placeholders %+v", h.Placeholders)
	}
}

func TestLoadTab(t *testing.T) {
	dir := t.TempDir()
	tab := filepath.Join(dir, "tab")

	content := "# comment\n" +
		"/tmp IN_CREATE echo $#\n" +
		"/tmp IN_DELETE \"broken\n" +
		"\n" +
		"/var IN_MODIFY echo $@\n"
	if err := os.WriteFile(tab, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := models.NewRegistry()
	owner := models.Owner{Name: "alice", Uid: 1000, Gid: 1000}

	n, err := LoadTab(reg, tab, owner)
	if err != nil {
		t.Fatal(err)
	}

	if n != 2 {
		t.Fatalf("expected 2 hooks, got %d", n)
	}

	p, _ := reg.Lookup("/var")
	h := p.Hooks[0]
	if h.Owner != owner || h.Line != 5 || h.Source != tab {
		t.Errorf("unexpected hook origin %+v line %d source %s", h.Owner, h.Line, h.Source)
	}
}

func TestLoadTabLogsFingerprint(t *testing.T) {
	tab := filepath.Join(t.TempDir(), "tab")
	if err := os.WriteFile(tab, []byte("/tmp IN_CREATE echo $#\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	if _, err := LoadTab(models.NewRegistry(), tab, models.Owner{Name: "alice"}); err != nil {
		t.Fatal(err)
	}

	var entry map[string]interface{}
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var line map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatal(err)
		}
		if line["message"] == "loaded table" {
			entry = line
		}
	}

	if entry == nil {
		t.Fatalf("no load message in %s", buf.String())
	}

	if hash, _ := entry["blake3"].(string); len(hash) != 12 {
		t.Errorf("expected a short digest, got %v", entry["blake3"])
	}

	if uid, _ := entry["file_uid"].(float64); int(uid) != os.Getuid() {
		t.Errorf("expected file uid %d, got %v", os.Getuid(), entry["file_uid"])
	}

	if entry["file_mode"] != "0600" {
		t.Errorf("expected mode 0600, got %v", entry["file_mode"])
	}

	if _, ok := entry["modified"]; !ok {
		t.Errorf("expected the modification time to be logged")
	}
}

func TestLoadSystemTabs(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "a"), []byte("/tmp IN_CREATE echo a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b"), []byte("/tmp IN_DELETE echo b\n/etc IN_ATTRIB echo c\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	reg := models.NewRegistry()

	n, err := LoadSystemTabs(reg, dir)
	if err != nil {
		t.Fatal(err)
	}

	if n != 3 || reg.Len() != 2 {
		t.Errorf("expected 3 hooks on 2 paths, got %d hooks on %d paths", n, reg.Len())
	}

	if _, err := LoadSystemTabs(reg, filepath.Join(dir, "missing")); err == nil {
		t.Errorf("expected an error for a missing directory")
	}
}

type denyAll struct{}

func (denyAll) Permitted(string) bool { return false }

func TestLoadUserTabsSkipsDeniedUsers(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "root"), []byte("/tmp IN_CREATE echo a\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	reg := models.NewRegistry()

	n, err := LoadUserTabs(reg, dir, denyAll{})
	if err != nil {
		t.Fatal(err)
	}

	if n != 0 || reg.Len() != 0 {
		t.Errorf("expected nothing loaded, got %d hooks", n)
	}
}
