// Package config loads a transdb node's tunables: the topology file
// naming the primary/replica addresses, and the store's size/timeout
// constants, overridable via environment variables for operators who
// need to tune them without a recompile.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/transdb/transdb/internal/server"
	"github.com/transdb/transdb/internal/store"
)

// Topology names the bind address for the primary and, optionally, the
// replica. Consumed from a JSON file given via --topology; the
// replica_addr field is optional.
type Topology struct {
	PrimaryAddr string  `json:"primary_addr"`
	ReplicaAddr *string `json:"replica_addr"`
}

// LoadTopology reads and parses a topology file.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology file: %w", err)
	}
	var t Topology
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse topology file: %w", err)
	}
	if t.PrimaryAddr == "" {
		return nil, fmt.Errorf("topology file must set primary_addr")
	}
	return &t, nil
}

// NodeConfig holds the store's tunable constants, sourced from
// environment variables with spec-fixed defaults. These are the same
// constants store.New applies by default; NodeConfig exists so an
// operator can override them via the environment without recompiling.
type NodeConfig struct {
	LockTimeout  time.Duration `mapstructure:"LOCK_TIMEOUT_MS"`
	TombstoneTTL time.Duration `mapstructure:"TOMBSTONE_TTL_S"`
	MaxKeySize   int           `mapstructure:"MAX_KEY_SIZE"`
	MaxValueSize int           `mapstructure:"MAX_VALUE_SIZE"`
}

// Load reads NodeConfig from the environment (and an optional .env
// file), falling back to the spec's fixed defaults for anything unset.
func Load() (*NodeConfig, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("LOCK_TIMEOUT_MS", int64(store.LockTimeout/time.Millisecond))
	v.SetDefault("TOMBSTONE_TTL_S", int64(store.TombstoneTTL/time.Second))
	v.SetDefault("MAX_KEY_SIZE", store.MaxKeySize)
	v.SetDefault("MAX_VALUE_SIZE", store.MaxValueSize)

	v.BindEnv("LOCK_TIMEOUT_MS")
	v.BindEnv("TOMBSTONE_TTL_S")
	v.BindEnv("MAX_KEY_SIZE")
	v.BindEnv("MAX_VALUE_SIZE")

	// Try reading .env, but don't fail if missing.
	_ = v.ReadInConfig()

	lockTimeoutMS := v.GetInt64("LOCK_TIMEOUT_MS")
	tombstoneTTLSecs := v.GetInt64("TOMBSTONE_TTL_S")

	cfg := &NodeConfig{
		LockTimeout:  time.Duration(lockTimeoutMS) * time.Millisecond,
		TombstoneTTL: time.Duration(tombstoneTTLSecs) * time.Second,
		MaxKeySize:   v.GetInt("MAX_KEY_SIZE"),
		MaxValueSize: v.GetInt("MAX_VALUE_SIZE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *NodeConfig) Validate() error {
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT_MS must be positive, got %s", c.LockTimeout)
	}
	if c.TombstoneTTL <= 0 {
		return fmt.Errorf("TOMBSTONE_TTL_S must be positive, got %s", c.TombstoneTTL)
	}
	if c.MaxKeySize <= 0 {
		return fmt.Errorf("MAX_KEY_SIZE must be positive, got %d", c.MaxKeySize)
	}
	if c.MaxValueSize <= 0 {
		return fmt.Errorf("MAX_VALUE_SIZE must be positive, got %d", c.MaxValueSize)
	}
	return nil
}

// BindAddr resolves the address this process should listen on, given
// its configured role and an optional --addr override.
func BindAddr(topology *Topology, role server.Role, addrOverride string) (string, error) {
	if addrOverride != "" {
		return addrOverride, nil
	}
	switch role {
	case server.RolePrimary:
		return topology.PrimaryAddr, nil
	case server.RoleReplica:
		if topology.ReplicaAddr == nil || *topology.ReplicaAddr == "" {
			return "", fmt.Errorf("topology has no replica_addr but role is replica")
		}
		return *topology.ReplicaAddr, nil
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}

// StoreOptions translates NodeConfig into store.Option values for
// store.New.
func (c *NodeConfig) StoreOptions() []store.Option {
	return []store.Option{
		store.WithLockTimeout(c.LockTimeout),
		store.WithTombstoneTTL(c.TombstoneTTL),
	}
}
