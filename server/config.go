package server

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/awnumar/memguard"

	"github.com/cheetah-relay/relay-go/protocol"
)

// Config is the server's TOML-loaded configuration (spec.md §6).
type Config struct {
	// Listen is the "HOST:PORT" the UDP socket binds to.
	Listen string

	// PrivateKeyHex is the 32-byte symmetric AEAD key, hex-encoded, as
	// it appears in the TOML file. FixupAndValidate moves it into a
	// guarded buffer and clears this field.
	PrivateKeyHex string `toml:"private_key"`

	DisconnectTimeoutMs int `toml:"disconnect_timeout_ms"`
	AckWaitDurationMs   int `toml:"ack_wait_duration_ms"`
	KeepAliveIntervalMs int `toml:"keep_alive_interval_ms"`
	RTTSampleCount      int `toml:"rtt_sample_count"`

	MetricsAddr string `toml:"metrics_addr"`
	LogLevel    string `toml:"log_level"`

	// SnapshotPath is the bbolt database path backing Dump(room_id) and
	// room/member directory persistence across restarts. Snapshot
	// persistence is disabled when empty.
	SnapshotPath string `toml:"snapshot_path"`

	// SnapshotKeyHex is the 32-byte secretbox key, hex-encoded, sealing
	// snapshots at rest. Required when SnapshotPath is set.
	SnapshotKeyHex string `toml:"snapshot_key"`

	// privateKey holds PrivateKeyHex's decoded bytes in guarded,
	// non-swappable memory for the process lifetime (SPEC_FULL.md
	// domain stack: awnumar/memguard).
	privateKey *memguard.LockedBuffer

	// snapshotKey holds SnapshotKeyHex's decoded bytes the same way.
	snapshotKey *memguard.LockedBuffer
}

const (
	defaultDisconnectTimeout = 60 * time.Second
	defaultAckWaitDuration   = 300 * time.Millisecond
	defaultKeepAliveInterval = 200 * time.Millisecond
	defaultRTTSampleCount    = 10
)

// LoadConfig reads and validates a TOML config file at path.
func LoadConfig(path string) (*Config, error) {
	cfg := new(Config)
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("server: decode config: %w", err)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FixupAndValidate applies defaults and moves the hex-decoded private
// key into guarded memory, matching katzenpost's config-package
// convention of a single post-decode validation pass.
func (c *Config) FixupAndValidate() error {
	if c.Listen == "" {
		return fmt.Errorf("server: config: listen address is required")
	}
	if len(c.PrivateKeyHex) != 64 {
		return fmt.Errorf("server: config: private_key must be 64 hex characters (32 bytes), got %d", len(c.PrivateKeyHex))
	}
	decoded, err := hex.DecodeString(c.PrivateKeyHex)
	if err != nil {
		return fmt.Errorf("server: config: private_key: %w", err)
	}
	// NewBufferFromBytes takes ownership of decoded and wipes it once
	// its contents are copied into guarded memory.
	c.privateKey = memguard.NewBufferFromBytes(decoded)
	c.PrivateKeyHex = ""

	if c.SnapshotPath != "" {
		if len(c.SnapshotKeyHex) != 64 {
			return fmt.Errorf("server: config: snapshot_key must be 64 hex characters (32 bytes), got %d", len(c.SnapshotKeyHex))
		}
		decodedSnapshotKey, err := hex.DecodeString(c.SnapshotKeyHex)
		if err != nil {
			return fmt.Errorf("server: config: snapshot_key: %w", err)
		}
		c.snapshotKey = memguard.NewBufferFromBytes(decodedSnapshotKey)
		c.SnapshotKeyHex = ""
	}

	if c.DisconnectTimeoutMs == 0 {
		c.DisconnectTimeoutMs = int(defaultDisconnectTimeout / time.Millisecond)
	}
	if c.AckWaitDurationMs == 0 {
		c.AckWaitDurationMs = int(defaultAckWaitDuration / time.Millisecond)
	}
	if c.KeepAliveIntervalMs == 0 {
		c.KeepAliveIntervalMs = int(defaultKeepAliveInterval / time.Millisecond)
	}
	if c.RTTSampleCount == 0 {
		c.RTTSampleCount = defaultRTTSampleCount
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = "127.0.0.1:9090"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

// PrivateKey returns the 32-byte AEAD key held in guarded memory.
func (c *Config) PrivateKey() *[32]byte {
	var k [32]byte
	copy(k[:], c.privateKey.Bytes())
	return &k
}

// SnapshotKey returns the 32-byte secretbox key held in guarded memory.
// Only valid when SnapshotPath is set.
func (c *Config) SnapshotKey() *[32]byte {
	var k [32]byte
	copy(k[:], c.snapshotKey.Bytes())
	return &k
}

// ProtocolConfig derives the per-session protocol.Config from this
// server config.
func (c *Config) ProtocolConfig() protocol.Config {
	return protocol.Config{
		DisconnectTimeout: time.Duration(c.DisconnectTimeoutMs) * time.Millisecond,
		AckWaitDuration:   time.Duration(c.AckWaitDurationMs) * time.Millisecond,
		KeepAliveInterval: time.Duration(c.KeepAliveIntervalMs) * time.Millisecond,
	}
}
