package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AstroAir/mcp-hub-next/internal/history"
)

func TestNewRejectsEmptyDSN(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestSendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + path)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	events := []history.Event{
		{Type: history.EventServerStart, OccurredAt: time.Now(), ServerID: "files", PID: 4242},
		{Type: history.EventInstall, OccurredAt: time.Now(), InstallID: "abc", Source: "npm", Status: "completed"},
		{Type: history.EventUninstall, OccurredAt: time.Now(), InstallID: "abc", ServerID: "files"},
	}
	for _, e := range events {
		require.NoError(t, sink.Send(ctx, e))
	}

	var count int
	require.NoError(t, sink.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hub_history`).Scan(&count))
	assert.Equal(t, len(events), count)

	var serverID string
	var pid int
	require.NoError(t, sink.db.QueryRowContext(ctx,
		`SELECT server_id, pid FROM hub_history WHERE type = ?`, string(history.EventServerStart)).
		Scan(&serverID, &pid))
	assert.Equal(t, "files", serverID)
	assert.Equal(t, 4242, pid)
}

func TestSchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	first, err := New(path)
	require.NoError(t, err)
	require.NoError(t, first.Send(context.Background(), history.Event{Type: history.EventServerStop, OccurredAt: time.Now(), ServerID: "files"}))
	require.NoError(t, first.Close())

	// Reopening the same file must keep the existing rows.
	second, err := New(path)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	var count int
	require.NoError(t, second.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM hub_history`).Scan(&count))
	assert.Equal(t, 1, count)
}
