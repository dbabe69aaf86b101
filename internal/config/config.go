// Package config holds the daemon's tunable settings: engine timing
// parameters and per-interface cost/enable overrides, loaded from a
// JSON file and hot-reloadable.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// InterfaceOverride pins the cost and administrative state of one named
// host interface, overriding whatever the kernel reports.
type InterfaceOverride struct {
	Cost    uint32 `json:"cost"`
	Enabled bool   `json:"enabled"`
}

// Config is the daemon's mutable, JSON-file-backed settings. All fields
// are read/written under mu; callers use the accessor methods rather
// than touching fields directly.
type Config struct {
	AdvertIntervalSeconds   int                          `json:"advert_interval_seconds"`
	TimeoutSeconds          int                          `json:"timeout_seconds"`
	GarbageSeconds          int                          `json:"garbage_seconds"`
	TickIntervalSeconds     int                          `json:"tick_interval_seconds"`
	EnableGarbageCollection bool                         `json:"enable_garbage_collection"`
	MulticastAddress        string                       `json:"multicast_address"`
	Interfaces              map[string]InterfaceOverride `json:"interfaces"`

	path      string
	mu        sync.RWMutex
	changedCh chan struct{}
}

// Defaults returns the constants named in spec §3, in the config file's
// shape.
func Defaults() Config {
	return Config{
		AdvertIntervalSeconds: 10,
		TimeoutSeconds:        20,
		GarbageSeconds:        20,
		TickIntervalSeconds:   1,
		MulticastAddress:      "224.0.0.9",
		Interfaces:            map[string]InterfaceOverride{},
	}
}

// New returns a Config holding the given defaults, bound to path for
// future saves.
func New(path string, defaults Config) *Config {
	defaults.path = path
	defaults.changedCh = make(chan struct{}, 1)
	if defaults.Interfaces == nil {
		defaults.Interfaces = map[string]InterfaceOverride{}
	}
	return &defaults
}

// Load reads path and decodes it into a Config. Missing fields keep
// Defaults()'s values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := New(path, Defaults())
	if err := cfg.UpdateFromJSON(data); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// UpdateFromJSON merges data over the current settings, persists the
// result, and notifies watchers.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	if c.Interfaces == nil {
		c.Interfaces = map[string]InterfaceOverride{}
	}
	if err := c.saveLocked(); err != nil {
		return err
	}
	c.notifyChanged()
	return nil
}

// SetInterfaceOverride pins name's cost/enabled state and persists the
// change.
func (c *Config) SetInterfaceOverride(name string, override InterfaceOverride) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.Interfaces[name]; ok && existing == override {
		return nil
	}
	c.Interfaces[name] = override
	if err := c.saveLocked(); err != nil {
		return err
	}
	c.notifyChanged()
	return nil
}

// CostFor implements iface.CostOverrides. ok reports whether name has
// an explicit override configured; callers must not infer "no
// override" from a zero cost, since 0 is a legal configured cost (spec
// invariant 2: cost ranges over [0, 16]).
func (c *Config) CostFor(name string) (cost uint32, enabled bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if o, found := c.Interfaces[name]; found {
		return o.Cost, o.Enabled, true
	}
	return 0, false, false
}

// AdvertInterval returns the configured periodic-advertisement
// interval.
func (c *Config) AdvertInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.AdvertIntervalSeconds) * time.Second
}

// Timeout returns the configured route staleness timeout.
func (c *Config) Timeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Garbage returns the configured garbage-collection grace period.
func (c *Config) Garbage() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.GarbageSeconds) * time.Second
}

// TickInterval returns the configured periodic-tick interval.
func (c *Config) TickInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// GarbageCollectionEnabled reports whether the optional GC pass (Open
// Question 1) is enabled.
func (c *Config) GarbageCollectionEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.EnableGarbageCollection
}

func (c *Config) notifyChanged() {
	select {
	case c.changedCh <- struct{}{}:
	default:
	}
}

// Changed signals whenever the config is updated and saved.
func (c *Config) Changed() <-chan struct{} {
	return c.changedCh
}

// saveLocked assumes c.mu is held for writing. It writes the config
// atomically: write to a temp file in the same directory, then rename
// over the target path, so readers never observe a partial write.
func (c *Config) saveLocked() error {
	if c.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".ripd-cfg-*.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("config: close: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("config: rename: %w", err)
	}
	return nil
}
