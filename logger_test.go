package kueri

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologLoggerEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf))

	logger.Info("operation settled", "queryKey", "GET /users", "status", 200)

	out := buf.String()
	for _, want := range []string{`"message":"operation settled"`, `"queryKey":"GET /users"`, `"status":200`, `"level":"info"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestZerologLoggerSkipsNonStringKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf))

	logger.Warn("odd kv", 42, "dropped", "kept", "v")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("non-string key pair should be skipped: %s", out)
	}
	if !strings.Contains(out, `"kept":"v"`) {
		t.Errorf("string key pair should survive: %s", out)
	}
}

func TestSimpleLoggerLevels(t *testing.T) {
	// smoke test: the stderr logger must not panic on any level
	l := NewSimpleLogger()
	l.Debug("d", "k", "v")
	l.Info("i")
	l.Warn("w", "k", 1)
	l.Error("e", "err", nil)
}
