package logger

import "testing"

func TestSetLevelGetLevel(t *testing.T) {
	defer SetLevel(INFO)

	SetLevel(DEBUG)
	if GetLevel() != DEBUG {
		t.Fatalf("expected DEBUG, got %s", GetLevel())
	}

	SetLevel(ERROR)
	if GetLevel() != ERROR {
		t.Fatalf("expected ERROR, got %s", GetLevel())
	}
}

func TestLevelString(t *testing.T) {
	cases := map[Level]string{
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
		Level(99): "UNKNOWN",
	}
	for l, want := range cases {
		if got := l.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", l, got, want)
		}
	}
}

func TestCFHelpers_DoNotPanic(t *testing.T) {
	SetLevel(DEBUG)
	defer SetLevel(INFO)

	DebugCF("test", "debug message", map[string]any{"k": "v"})
	InfoCF("test", "info message", nil)
	WarnCF("test", "warn message", map[string]any{"n": 1})
	ErrorCF("test", "error message", nil)
}
