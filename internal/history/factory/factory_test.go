package factory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AstroAir/mcp-hub-next/internal/history/sqlite"
)

func TestNewSinkFromDSNEmpty(t *testing.T) {
	_, err := NewSinkFromDSN("")
	assert.Error(t, err)
	_, err = NewSinkFromDSN("   ")
	assert.Error(t, err)
}

func TestNewSinkFromDSNUnsupportedScheme(t *testing.T) {
	_, err := NewSinkFromDSN("mysql://root@localhost/history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported DSN format")
}

func TestNewSinkFromDSNSQLitePrefix(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "history.db")
	sink, err := NewSinkFromDSN(dsn)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	assert.IsType(t, &sqlite.Sink{}, sink)
}

func TestNewSinkFromDSNBarePathDefaultsToSQLite(t *testing.T) {
	sink, err := NewSinkFromDSN(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	assert.IsType(t, &sqlite.Sink{}, sink)
}
