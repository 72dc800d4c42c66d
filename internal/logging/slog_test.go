package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, level slog.Level) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := newTestLogger(t, slog.LevelDebug)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "item", "x1")
	log.Info(ctx, "inf", "folder", "f1")
	log.Warn(ctx, "wrn", "bytes", 12)
	log.Error(ctx, "err", "user", "U")

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", "msg=dbg", "item=x1",
		"level=INFO", "msg=inf", "folder=f1",
		"level=WARN", "msg=wrn", "bytes=12",
		"level=ERROR", "msg=err", "user=U",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLogger_BelowLevelIsDropped(t *testing.T) {
	log, buf := newTestLogger(t, slog.LevelWarn)

	log.Info(context.Background(), "sync done", "items", 3)
	assert.Empty(t, buf.String())
}

func TestSlogLogger_WithAddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t, slog.LevelInfo)

	log.With("user", "alice").Info(context.Background(), "materialized", "item", "x1")

	out := buf.String()
	assert.Contains(t, out, "user=alice")
	assert.Contains(t, out, "item=x1")
}

func TestSlogLogger_RedactsSecrets(t *testing.T) {
	log, buf := newTestLogger(t, slog.LevelInfo)
	ctx := context.Background()

	log.With("authToken", "abc.def").Info(ctx, "login", "password", "hunter2", "user", "alice")
	log.Warn(ctx, "unlock", "passphrase", "open sesame", "folder_key", []byte{1, 2})

	out := buf.String()
	assert.NotContains(t, out, "abc.def")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "open sesame")
	assert.Contains(t, out, "authToken=***")
	assert.Contains(t, out, "user=alice")
}

func TestRedact(t *testing.T) {
	args := []any{"item", "x1", "Token", "t", "odd"}
	got := redact(args)

	require.Len(t, got, 5)
	assert.Equal(t, []any{"item", "x1", "Token", redacted, "odd"}, got)
	assert.Equal(t, "t", args[3], "input is not modified")

	clean := []any{"item", "x1"}
	assert.Equal(t, clean, redact(clean))
	assert.Nil(t, redact(nil))
}
