package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	log, err := NewLogger(path, false)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Infow("player joined", "player", 3)
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "player joined") || !strings.Contains(string(data), "INFO") {
		t.Fatalf("unexpected log content %q", data)
	}
}
