package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

const testPrivateKeyHex = "0011223300112233001122330011223300112233001122330011223300112233"

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen = "0.0.0.0:7777"
private_key = "`+testPrivateKeyHex+`"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:7777", cfg.Listen)
	require.Empty(t, cfg.PrivateKeyHex) // cleared after decode
	require.Equal(t, int(defaultDisconnectTimeout/time.Millisecond), cfg.DisconnectTimeoutMs)
	require.Equal(t, "127.0.0.1:9090", cfg.MetricsAddr)
	require.Equal(t, "info", cfg.LogLevel)

	key := cfg.PrivateKey()
	require.Len(t, key, 32)
}

func TestLoadConfigMissingListen(t *testing.T) {
	path := writeConfig(t, `private_key = "`+testPrivateKeyHex+`"`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsShortPrivateKey(t *testing.T) {
	path := writeConfig(t, `
listen = "0.0.0.0:7777"
private_key = "abcd"
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRequiresSnapshotKeyWhenSnapshotPathSet(t *testing.T) {
	path := writeConfig(t, `
listen = "0.0.0.0:7777"
private_key = "`+testPrivateKeyHex+`"
snapshot_path = "/tmp/relay-snapshots.db"
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigAcceptsSnapshotPathWithKey(t *testing.T) {
	path := writeConfig(t, `
listen = "0.0.0.0:7777"
private_key = "`+testPrivateKeyHex+`"
snapshot_path = "/tmp/relay-snapshots.db"
snapshot_key = "`+testSnapshotKeyHex+`"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Empty(t, cfg.SnapshotKeyHex) // cleared after decode
	require.Len(t, cfg.SnapshotKey(), 32)
}

func TestProtocolConfigDerivation(t *testing.T) {
	cfg := &Config{DisconnectTimeoutMs: 1000, AckWaitDurationMs: 50, KeepAliveIntervalMs: 200}
	pc := cfg.ProtocolConfig()
	require.Equal(t, time.Second, pc.DisconnectTimeout)
	require.Equal(t, 50*time.Millisecond, pc.AckWaitDuration)
	require.Equal(t, 200*time.Millisecond, pc.KeepAliveInterval)
}
