//go:build unix

package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	root := t.TempDir()

	conf := DefaultConfig()
	conf.SystemTableDir = filepath.Join(root, "incron.d")
	conf.UserTableDir = filepath.Join(root, "spool")
	conf.AllowedUsers = filepath.Join(root, "incron.allow")
	conf.DeniedUsers = filepath.Join(root, "incron.deny")
	conf.LockfileDir = root

	if err := os.Mkdir(conf.SystemTableDir, 0o755); err != nil {
		t.Fatal(err)
	}

	return conf
}

func TestDefaultConfig(t *testing.T) {
	conf := DefaultConfig()

	if conf.PidFile() != "/var/run/incrond.pid" {
		t.Errorf("unexpected pid file %s", conf.PidFile())
	}

	if conf.Shell != "/bin/sh" {
		t.Errorf("unexpected shell %s", conf.Shell)
	}
}

func TestLoadRegistersSystemTables(t *testing.T) {
	conf := testConfig(t)
	watched := t.TempDir()
	missing := filepath.Join(t.TempDir(), "gone")

	table := watched + " IN_CREATE,IN_DELETE echo $@/$#\n" +
		"# comment\n" +
		watched + " IN_MODIFY echo modified\n" +
		missing + " IN_CREATE echo never\n" +
		"broken\n"

	if err := os.WriteFile(filepath.Join(conf.SystemTableDir, "sys"), []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}

	d := New(conf)
	if err := d.Load(); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	p, ok := d.Registry().Lookup(watched)
	if !ok {
		t.Fatalf("expected %s to be watched", watched)
	}

	if len(p.Hooks) != 2 || !p.Registered() {
		t.Errorf("expected two hooks on a registered path, got %d registered=%v", len(p.Hooks), p.Registered())
	}

	gone, ok := d.Registry().Lookup(missing)
	if !ok || gone.Registered() {
		t.Errorf("a path that cannot be watched stays known but unregistered")
	}

	if _, err := os.Stat(conf.UserTableDir); err != nil {
		t.Errorf("user table directory should be created: %v", err)
	}
}

func TestLoadFailsWithoutSystemDir(t *testing.T) {
	conf := testConfig(t)
	conf.SystemTableDir = filepath.Join(t.TempDir(), "missing")

	d := New(conf)
	defer d.Stop()

	if err := d.Load(); err == nil {
		t.Error("expected an error for a missing system table directory")
	}
}

func TestRunRequiresLoad(t *testing.T) {
	d := New(testConfig(t))

	if err := d.Run(); err == nil {
		t.Error("expected Run to fail before Load")
	}
}
