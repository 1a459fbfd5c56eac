package cmd

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/gdelthelper/internal/session"
)

func captureRoot(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevHandler, prevLogger := rootHandler, rootLogger
	rootLevel.Set(slog.LevelInfo)
	rootHandler = slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: rootLevel})
	rootLogger = slog.New(rootHandler)
	t.Cleanup(func() { rootHandler, rootLogger = prevHandler, prevLogger })
	return &buf
}

func TestRunSession_CancelledRunLogsOneTerminalLine(t *testing.T) {
	logs := captureRoot(t)

	err := runSession(context.Background(), "process", func(ctx context.Context, s *session.Session) error {
		s.Logger.Warn("Processing cancelled.", slog.Int("rows_out", 100))
		return context.Canceled
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(logs.String(), "level=WARN"))
	assert.Equal(t, 1, strings.Count(strings.ToLower(logs.String()), "cancelled"))
}

func TestRunSession_ReturnsSessionError(t *testing.T) {
	captureRoot(t)
	boom := errors.New("boom")

	var events []session.Kind
	err := runSession(context.Background(), "download", func(ctx context.Context, s *session.Session) error {
		s.Progress(1, 2)
		return boom
	}, func(ev session.Event) { events = append(events, ev.Kind) })

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, events, session.KindProgress)
}
