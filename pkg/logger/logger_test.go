package logger

import (
	"path/filepath"
	"testing"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{name: "debug level", level: "debug"},
		{name: "info level", level: "info"},
		{name: "warn level", level: "warn"},
		{name: "error level", level: "error"},
		{name: "unknown level falls back to info", level: "trace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Init(tt.level, ""); err != nil {
				t.Fatalf("Init(%q) error = %v", tt.level, err)
			}
			if Log == nil {
				t.Fatal("Init() left Log nil")
			}
		})
	}
}

func TestInitWithFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "preheat.log")

	if err := Init("info", logFile); err != nil {
		t.Fatalf("Init() with file error = %v", err)
	}

	Log.Info("test entry")
	_ = Sync()
}
