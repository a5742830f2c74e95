//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sprawl-cli/internal/config"
	"github.com/sells-group/sprawl-cli/internal/model"
)

func TestInitStore_SQLite(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	// Migrated and usable.
	run, err := st.CreateRun(context.Background(), model.RunRequest{District: "Lahore"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitStore_NoDriver(t *testing.T) {
	cfg = &config.Config{}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no run store configured")
}

func TestOptionalStore(t *testing.T) {
	cfg = &config.Config{}
	st, err := optionalStore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st)

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "opt.db")}}
	st, err = optionalStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.NoError(t, st.Close())
}
