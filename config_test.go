// Config defaulting and file-loading tests.
package zds

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWithDefaultsFillsZeroFields(t *testing.T) {
	c := Config{}.withDefaults()
	if c.MaxPendingOps != DefaultMaxPendingOps {
		t.Errorf("MaxPendingOps = %d, want %d", c.MaxPendingOps, DefaultMaxPendingOps)
	}
	if c.FlushInterval != DefaultFlushInterval {
		t.Errorf("FlushInterval = %v, want %v", c.FlushInterval, DefaultFlushInterval)
	}
}

func TestWithDefaultsPreservesSetFields(t *testing.T) {
	c := Config{MaxPendingOps: 7}.withDefaults()
	if c.MaxPendingOps != 7 {
		t.Errorf("MaxPendingOps = %d, want 7 (explicitly set)", c.MaxPendingOps)
	}
}

// TestLoadConfigFileAllowsComments checks that LoadConfigFile tolerates
// JSON-with-comments via hujson, so operators can annotate tuned values.
func TestLoadConfigFileAllowsComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	contents := `{
		// raised for a bulk ingestion job
		"max_pending_ops": 2000,
		"flush_interval": "30s",
		"strict": true,
	}`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if c.MaxPendingOps != 2000 {
		t.Errorf("MaxPendingOps = %d, want 2000", c.MaxPendingOps)
	}
	if c.FlushInterval != 30*time.Second {
		t.Errorf("FlushInterval = %v, want 30s", c.FlushInterval)
	}
	if !c.Strict {
		t.Error("expected Strict to be true")
	}
}

func TestLoadConfigFileMissingFileErrors(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.jsonc"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
