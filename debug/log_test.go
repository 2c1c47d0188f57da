package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogDisabledWritesNothing(t *testing.T) {
	Disable()
	var buf bytes.Buffer
	EnableWriter(&buf)
	Disable()
	Log("params", "set %s", "gain")
	if buf.Len() != 0 {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestLogFormatsCategory(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()

	Log("winsync", "rendered %d points", 512)
	line := buf.String()
	if !strings.Contains(line, "winsync") || !strings.Contains(line, "rendered 512 points") {
		t.Fatalf("line = %q", line)
	}
}

func TestLogEvery(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()

	for i := 0; i < 9; i++ {
		LogEvery(3, "sched", "tick")
	}
	if n := strings.Count(buf.String(), "tick"); n != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", n, buf.String())
	}
}

func TestEnableFile(t *testing.T) {
	Disable()
	path := filepath.Join(t.TempDir(), "logs", "debug.log")
	if err := Enable(path); err != nil {
		t.Fatal(err)
	}
	Log("config", "loaded")
	Disable()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Debug logging started") || !strings.Contains(string(data), "loaded") {
		t.Fatalf("log file = %q", data)
	}
}
