// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelWarn {
		t.Errorf("expected LevelWarn, got %v", cfg.Level)
	}
	if cfg.Output == nil {
		t.Error("expected non-nil default output")
	}
}

func TestLoggerWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: LevelInfo}).WithComponent("test")
	logger.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("expected output to contain message, got %q", out)
	}
	if !strings.Contains(out, "component=test") {
		t.Errorf("expected output to contain component tag, got %q", out)
	}
}

func TestSilentSuppressesOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: LevelInfo, Silent: true})
	logger.Info("should not appear")

	if buf.Len() != 0 {
		t.Errorf("expected no output when silent, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: LevelWarn})
	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("expected info to be suppressed at warn level, got %q", buf.String())
	}

	logger.Warn("visible")
	if buf.Len() == 0 {
		t.Error("expected warn-level message to be written")
	}
}

func TestSetDefault(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(New(Config{Output: &buf, Level: LevelInfo}))
	defer SetDefault(New(DefaultConfig()))

	Info("via package function")
	if !strings.Contains(buf.String(), "via package function") {
		t.Errorf("expected package-level Info to use the default logger, got %q", buf.String())
	}
}
