package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Errorf("boom: %s", "x")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug line to be filtered; got %q", out)
	}
	if !strings.Contains(out, "[INFO] shown 2") {
		t.Fatalf("expected info line; got %q", out)
	}
	if !strings.Contains(out, "[ERROR] boom: x") {
		t.Fatalf("expected error line; got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel("DEBUG"); err != nil || lvl != LevelDebug {
		t.Fatalf("expected debug; got %v err=%v", lvl, err)
	}
	if lvl, err := ParseLevel(""); err != nil || lvl != LevelInfo {
		t.Fatalf("expected info default; got %v err=%v", lvl, err)
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Infof("no panic")
	l.SetLevel(LevelDebug)
}
