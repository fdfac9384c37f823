package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type nullLogger struct{}

func (nullLogger) Debug(string, ...interface{})   {}
func (nullLogger) Info(string, ...interface{})    {}
func (nullLogger) Warning(string, ...interface{}) {}
func (nullLogger) Error(string, ...interface{})   {}

func TestDefaultValidates(t *testing.T) {
	c := Default()
	c.Logger = nullLogger{}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() on Default(): %v", err)
	}
}

func TestValidateDefaultsZeroRingCapacity(t *testing.T) {
	c := Default()
	c.Logger = nullLogger{}
	c.RingCapacityBytes = 0
	c.Priority = -5
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if c.RingCapacityBytes != defaultRingCapacityBytes {
		t.Fatalf("RingCapacityBytes = %d, want default", c.RingCapacityBytes)
	}
	if c.Priority != defaultPriority {
		t.Fatalf("Priority = %d, want default", c.Priority)
	}
}

func TestUpdateAppliesKnownKeys(t *testing.T) {
	c := Default()
	c.Logger = nullLogger{}
	c.Update(map[string]string{
		KeyDecoderPath: "/usr/bin/decoder",
		KeyMTUFallback: "1400",
		KeyTargetName:  "dac1",
	})
	if c.DecoderPath != "/usr/bin/decoder" {
		t.Fatalf("DecoderPath = %q", c.DecoderPath)
	}
	if c.Sink.MTUFallback != 1400 {
		t.Fatalf("Sink.MTUFallback = %d, want 1400", c.Sink.MTUFallback)
	}
	if c.Sink.TargetName != "dac1" {
		t.Fatalf("Sink.TargetName = %q", c.Sink.TargetName)
	}
}

func TestParseFileSkipsCommentsAndBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.conf")
	content := "# comment\n\nMTUFallback=1450\nTargetName = dac0\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	vars, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if vars["MTUFallback"] != "1450" {
		t.Fatalf("MTUFallback = %q, want 1450", vars["MTUFallback"])
	}
	if vars["TargetName"] != "dac0" {
		t.Fatalf("TargetName = %q, want dac0", vars["TargetName"])
	}
}

func TestWatchFileAppliesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.conf")
	if err := os.WriteFile(path, []byte("MTUFallback=1400\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := Default()
	c.Logger = nullLogger{}
	c.ConfigPath = path

	w, err := WatchFile(&c)
	if err != nil {
		t.Fatalf("WatchFile: %v", err)
	}
	defer w.Close()

	if c.Sink.MTUFallback != 1400 {
		t.Fatalf("initial load: Sink.MTUFallback = %d, want 1400", c.Sink.MTUFallback)
	}

	if err := os.WriteFile(path, []byte("MTUFallback=1300\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Sink.MTUFallback == 1300 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Sink.MTUFallback = %d, want 1300 after reload", c.Sink.MTUFallback)
}

func TestWatchFileNoopWhenConfigPathEmpty(t *testing.T) {
	c := Default()
	c.Logger = nullLogger{}
	w, err := WatchFile(&c)
	if err != nil {
		t.Fatalf("WatchFile: %v", err)
	}
	if w != nil {
		t.Fatal("expected nil watcher when ConfigPath is empty")
	}
}
