// Package config loads the adapter's YAML configuration: listen addresses,
// timer tick, connection-ID incarnation seed, reply buffer size, and the
// static identity attributes served to originators. Grounded on
// yatesdr-warlogix's config/config.go (Load-from-file-with-defaults shape,
// gopkg.in/yaml.v3 tags) and its sync/atomic counter idiom, used here as a
// generation count so a hot-reloaded config can be observed without a lock
// on the read path.
package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// LoggingConfig selects the logger's shape (see internal/logging).
type LoggingConfig struct {
	Encoding string `yaml:"encoding,omitempty"` // "console" or "json"
	Level    string `yaml:"level,omitempty"`
}

// IdentityConfig seeds the Identity object's static attributes (spec 6).
type IdentityConfig struct {
	VendorID      uint16 `yaml:"vendor_id"`
	DeviceType    uint16 `yaml:"device_type"`
	ProductCode   uint16 `yaml:"product_code"`
	MajorRevision uint8  `yaml:"major_revision"`
	MinorRevision uint8  `yaml:"minor_revision"`
	SerialNumber  uint32 `yaml:"serial_number"`
	ProductName   string `yaml:"product_name"`
}

// NetworkConfig seeds the TCP/IP Interface and Ethernet Link objects
// (spec 6, out of core scope beyond serving the Message Router).
type NetworkConfig struct {
	IPAddress   string `yaml:"ip_address,omitempty"`
	NetworkMask string `yaml:"network_mask,omitempty"`
	Gateway     string `yaml:"gateway,omitempty"`
	MACAddress  string `yaml:"mac_address,omitempty"`
}

// Config is the complete adapter configuration.
type Config struct {
	// TCPListenAddr serves explicit messaging (RegisterSession/SendRRData/
	// SendUnitData), default ":44818".
	TCPListenAddr string `yaml:"tcp_listen_addr"`
	// UDPListenAddr serves Class 0/1 I/O connected data, default ":2222".
	UDPListenAddr string `yaml:"udp_listen_addr"`

	// TimerTickMs is the ManageConnections tick period (spec 4.12), default 10.
	TimerTickMs int64 `yaml:"timer_tick_ms"`

	// IncarnationIDSeed is "random" (draw one at startup) or a decimal
	// fixed 16-bit value, persisted across restarts by the deployer
	// (spec 4.9, 6).
	IncarnationIDSeed string `yaml:"incarnation_id_seed"`

	// ReplyBufferSize bounds MESSAGE_DATA_REPLY_BUFFER (spec 4.5), default 512.
	ReplyBufferSize int `yaml:"reply_buffer_size"`

	Identity IdentityConfig `yaml:"identity"`
	Network  NetworkConfig  `yaml:"network"`
	Logging  LoggingConfig  `yaml:"logging"`

	generation uint64
}

// Default returns the configuration used when no file is present, matching
// the values already exercised by the Manager/Engine tests in this repo
// (TimerTickMs=10, reply buffer 512).
func Default() *Config {
	return &Config{
		TCPListenAddr:     ":44818",
		UDPListenAddr:     ":2222",
		TimerTickMs:       10,
		IncarnationIDSeed: "random",
		ReplyBufferSize:   512,
		Identity: IdentityConfig{
			VendorID:      1,
			DeviceType:    0x0C, // Communications Adapter
			ProductCode:   1,
			MajorRevision: 1,
			MinorRevision: 1,
			ProductName:   "enip-adapter",
		},
	}
}

// Load reads path as YAML over the defaults; a missing file is not an
// error (Default() is returned as-is), matching warlogix's
// load-with-fallback shape.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Generation returns the number of times this config has been reloaded in
// place via Reload, for callers that poll rather than subscribe.
func (c *Config) Generation() uint64 {
	return atomic.LoadUint64(&c.generation)
}

// Reload re-reads path into c's fields and bumps Generation(). Callers
// that only ever read individual fields (not the struct as a whole) can
// treat this as a safe hot-reload; the adapter's core objects are
// constructed once at startup from a snapshot, matching the single-
// threaded, explicit-state model (spec 5) — Reload is for observability,
// not for swapping a running core's config.
func (c *Config) Reload(path string) error {
	fresh, err := Load(path)
	if err != nil {
		return err
	}
	gen := c.generation
	*c = *fresh
	c.generation = gen
	atomic.AddUint64(&c.generation, 1)
	return nil
}
