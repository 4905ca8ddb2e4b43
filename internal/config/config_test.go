package config

import "testing"

func TestDefaultConfig_HasSaneDefaults(t *testing.T) {
	c := DefaultConfig()
	if c.DataFile != "latticedb.db" {
		t.Fatalf("expected default data file latticedb.db, got %q", c.DataFile)
	}
	if c.Port != 7070 {
		t.Fatalf("expected default port 7070, got %d", c.Port)
	}
	if c.DeadlockInterval <= 0 {
		t.Fatalf("expected a positive default deadlock detector interval, got %v", c.DeadlockInterval)
	}
}

func TestFromEnv_OverridesDefaults(t *testing.T) {
	t.Setenv("LATTICEDB_DATA_FILE", "custom.db")
	t.Setenv("LATTICEDB_PORT", "9090")
	t.Setenv("LATTICEDB_BUFFER_FRAMES", "64")

	c := FromEnv()
	if c.DataFile != "custom.db" {
		t.Fatalf("expected env override of data file, got %q", c.DataFile)
	}
	if c.Port != 9090 {
		t.Fatalf("expected env override of port, got %d", c.Port)
	}
	if c.BufferPoolFrames != 64 {
		t.Fatalf("expected env override of buffer frames, got %d", c.BufferPoolFrames)
	}
}

func TestFromEnv_IgnoresUnsetVars(t *testing.T) {
	c := FromEnv()
	want := DefaultConfig()
	if c.LogFile != want.LogFile || c.ReplacerK != want.ReplacerK {
		t.Fatalf("expected unset vars to fall back to defaults, got %+v", c)
	}
}
