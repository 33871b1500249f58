package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.ValidateBasic())
}

func TestValidateBasic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RPC.ListenAddr = ""
	assert.Error(t, cfg.ValidateBasic())

	cfg = DefaultConfig()
	cfg.Provider.Remote = "tcp://nope"
	assert.Error(t, cfg.ValidateBasic())

	cfg = DefaultConfig()
	cfg.Proof.MaxHops = 0
	assert.Error(t, cfg.ValidateBasic())

	cfg = DefaultConfig()
	cfg.Cache.TTL = 0
	assert.Error(t, cfg.ValidateBasic())
}

func TestWriteAndReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	want := DefaultConfig()
	want.LogLevel = "debug"
	want.RPC.Whitelist = []string{"10.0.0.1", "10.0.0.2"}
	want.Proof.NetworkID = 42
	want.Cache.TTL = 3 * time.Minute
	require.NoError(t, WriteConfigFile(path, want))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	got := DefaultConfig()
	require.NoError(t, v.Unmarshal(got))

	assert.Equal(t, "debug", got.LogLevel)
	assert.Equal(t, want.RPC.Whitelist, got.RPC.Whitelist)
	assert.EqualValues(t, 42, got.Proof.NetworkID)
	assert.Equal(t, 3*time.Minute, got.Cache.TTL)
	require.NoError(t, got.ValidateBasic())
}
