package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dgnsrekt/ais-bridge/internal/config"
)

func TestNew_Defaults(t *testing.T) {
	logger, err := New(false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("production logger should log at info")
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("production logger should not log debug")
	}

	dev, err := New(true, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dev.Core().Enabled(zapcore.DebugLevel) {
		t.Error("verbose logger should log debug")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(false, &config.LoggingConfig{Level: "chatty"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bridge.log")

	logger, err := New(false, &config.LoggingConfig{
		Level:      "warn",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Info("dropped below level")
	logger.Warn("link lost", zap.String("addr", "127.0.0.1:5760"))
	_ = logger.Sync()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(content), "dropped below level") {
		t.Error("info entry should have been filtered")
	}
	if !strings.Contains(string(content), `"addr":"127.0.0.1:5760"`) {
		t.Errorf("expected warn entry in file, got %s", content)
	}
}
