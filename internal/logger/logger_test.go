package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSanitizeKVsRedactsCredentials(t *testing.T) {
	in := []interface{}{"username", "alice", "password", "hunter2", "Access_Token", "abc"}
	out := sanitizeKVs(in)

	if out[1] != "alice" {
		t.Errorf("expected username to pass through, got %v", out[1])
	}
	if out[3] != "[REDACTED]" {
		t.Errorf("expected password to be redacted, got %v", out[3])
	}
	if out[5] != "[REDACTED]" {
		t.Errorf("expected access token to be redacted, got %v", out[5])
	}
}

func TestSanitizeKVsKeepsDanglingKey(t *testing.T) {
	out := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zap.DebugLevel,
		"WARNING": zap.WarnLevel,
		"error":   zap.ErrorLevel,
		"":        zap.InfoLevel,
		"bogus":   zap.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
