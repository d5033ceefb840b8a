package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost:8086", cfg.API.Address)
	assert.Equal(t, 100, cfg.API.MaxSQLConnections)
	assert.Equal(t, 2*time.Second, cfg.API.SQLConnectionTimeout.Duration)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, []string{"stdout"}, cfg.Log.Outputs)
	assert.Equal(t, uint32(1000000), cfg.Pool.MaxCommands)
	assert.Equal(t, 24*time.Hour, cfg.Pool.TTL.Duration)
	assert.False(t, cfg.Prover.ProofsEnabled)

	// read settings fall back to the write server
	assert.Equal(t, cfg.PostgreSQL.HostWrite, cfg.PostgreSQL.HostRead)
	assert.Equal(t, cfg.PostgreSQL.PortWrite, cfg.PostgreSQL.PortRead)
	assert.Equal(t, cfg.PostgreSQL.NameWrite, cfg.PostgreSQL.NameRead)
}

func TestLoadFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	content := `
[API]
Address = "0.0.0.0:9000"

[Pool]
TTL = "1h"

[PostgreSQL]
HostRead = "replica"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.API.Address)
	assert.Equal(t, time.Hour, cfg.Pool.TTL.Duration)
	// defaults survive for everything the file omits
	assert.Equal(t, "info", cfg.Log.Level)
	// an explicit read host disables the write fallback
	assert.Equal(t, "replica", cfg.PostgreSQL.HostRead)
	assert.Equal(t, 0, cfg.PostgreSQL.PortRead)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ZKAPPNODE_LOG_LEVEL", "debug")
	t.Setenv("ZKAPPNODE_PROVER_URL", "http://prover:4000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://prover:4000", cfg.Prover.URL)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte("not toml ["), 0o600))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte("[API]\nAddress = \"\"\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
