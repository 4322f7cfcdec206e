package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{in: "", want: zapcore.InfoLevel},
		{in: "debug", want: zapcore.DebugLevel},
		{in: " WARN ", want: zapcore.WarnLevel},
		{in: "nonsense", want: zapcore.InfoLevel},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q) got=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "app.log")
	log := New(Options{Level: "info", File: path, Console: &console})
	log.Debug("hidden")
	log.Info("attempt started", zap.Int64("answer_paper_id", 7))
	_ = log.Sync()

	if strings.Contains(console.String(), "hidden") || !strings.Contains(console.String(), "attempt started") {
		t.Fatalf("unexpected console output: %q", console.String())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), `"answer_paper_id":7`) {
		t.Fatalf("expected JSON line in file, got %q", string(b))
	}
}
