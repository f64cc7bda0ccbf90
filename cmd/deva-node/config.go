package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/deva-protocol/deva-go/pkg/identity"
	"github.com/deva-protocol/deva-go/pkg/radio"
	"github.com/deva-protocol/deva-go/pkg/radio/udp"
	"github.com/deva-protocol/deva-go/pkg/wire"
)

// Config is the node configuration as read from a YAML or TOML file.
type Config struct {
	Node       NodeConfig        `yaml:"node" toml:"node"`
	Features   []string          `yaml:"features" toml:"features"`
	Interfaces []InterfaceConfig `yaml:"interfaces" toml:"interfaces"`

	PollPeriod     time.Duration `yaml:"poll_period" toml:"poll_period"`
	QueueSize      int           `yaml:"queue_size" toml:"queue_size"`
	StateFile      string        `yaml:"state_file" toml:"state_file"`
	MetricsAddr    string        `yaml:"metrics_addr" toml:"metrics_addr"`
	ProtocolLog    string        `yaml:"protocol_log" toml:"protocol_log"`
	ProtocolLogMax int64         `yaml:"protocol_log_max" toml:"protocol_log_max"` // bytes, 0 never rotates
	LogLevel       string        `yaml:"log_level" toml:"log_level"`
}

// NodeConfig describes the node identity.
type NodeConfig struct {
	EUI64           string          `yaml:"eui64" toml:"eui64"`
	Platform        string          `yaml:"platform" toml:"platform"`
	PlatformVersion string          `yaml:"platform_version" toml:"platform_version"`
	Manufacturer    string          `yaml:"manufacturer" toml:"manufacturer"`
	Production      int64           `yaml:"production" toml:"production"`
	Firmware        string          `yaml:"firmware" toml:"firmware"`
	Build           int64           `yaml:"build" toml:"build"`
	Application     string          `yaml:"application" toml:"application"`
	RadioTech       uint8           `yaml:"radio_tech" toml:"radio_tech"`
	RadioChannel    uint8           `yaml:"radio_channel" toml:"radio_channel"`
	Position        *PositionConfig `yaml:"position" toml:"position"`
}

// PositionConfig is a position in degrees and meters.
type PositionConfig struct {
	Type      string  `yaml:"type" toml:"type"`
	Latitude  float64 `yaml:"latitude" toml:"latitude"`
	Longitude float64 `yaml:"longitude" toml:"longitude"`
	Elevation float64 `yaml:"elevation" toml:"elevation"`
}

// InterfaceConfig describes one emulated radio and its announcer.
type InterfaceConfig struct {
	Name      string   `yaml:"name" toml:"name"`
	Address   string   `yaml:"address" toml:"address"`
	Listen    string   `yaml:"listen" toml:"listen"`
	Peers     []string `yaml:"peers" toml:"peers"`
	Discovery bool     `yaml:"discovery" toml:"discovery"`
	Period    uint32   `yaml:"period" toml:"period"` // seconds, 0 answers requests only
	Sleep     bool     `yaml:"sleep" toml:"sleep"`
}

// DefaultConfig returns a single-interface configuration.
func DefaultConfig() Config {
	return Config{
		Interfaces: []InterfaceConfig{{
			Name:      "udp0",
			Address:   "0001",
			Listen:    fmt.Sprintf(":%d", udp.DefaultPort),
			Discovery: true,
			Period:    300,
		}},
		PollPeriod: 60 * time.Second,
		QueueSize:  1,
		StateFile:  "deva-node.state.json",
		LogLevel:   "info",
	}
}

// LoadConfig reads path into cfg. The format is chosen by extension:
// .toml for TOML, anything else is parsed as YAML.
func LoadConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("TOML parse error: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("YAML parse error: %w", err)
		}
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := c.Identity(); err != nil {
		return err
	}
	if len(c.Interfaces) == 0 {
		return errors.New("at least one interface is required")
	}
	seen := make(map[string]bool)
	for i, ic := range c.Interfaces {
		if ic.Name == "" {
			return fmt.Errorf("interface %d: name is required", i)
		}
		if seen[ic.Name] {
			return fmt.Errorf("interface %s: duplicate name", ic.Name)
		}
		seen[ic.Name] = true
		if _, err := ic.RadioConfig(); err != nil {
			return fmt.Errorf("interface %s: %w", ic.Name, err)
		}
	}
	if _, err := c.FeatureUUIDs(); err != nil {
		return err
	}
	if c.ProtocolLogMax < 0 {
		return errors.New("protocol_log_max must not be negative")
	}
	return nil
}

func parseUUID(name, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", name, err)
	}
	return id, nil
}

func parseSemVer(name, s string) (wire.SemVer, error) {
	if s == "" {
		return wire.SemVer{}, nil
	}
	v, err := wire.ParseSemVer(s)
	if err != nil {
		return v, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// Identity converts the node section to identity.Info.
func (c *Config) Identity() (identity.Info, error) {
	var info identity.Info
	n := c.Node

	if n.EUI64 == "" {
		return info, errors.New("node.eui64 is required")
	}
	eui, err := wire.ParseEUI64(n.EUI64)
	if err != nil {
		return info, fmt.Errorf("node.eui64: %w", err)
	}
	info.EUI64 = eui

	if info.Platform, err = parseUUID("node.platform", n.Platform); err != nil {
		return info, err
	}
	if info.Manufacturer, err = parseUUID("node.manufacturer", n.Manufacturer); err != nil {
		return info, err
	}
	if info.Application, err = parseUUID("node.application", n.Application); err != nil {
		return info, err
	}
	if info.PlatformVersion, err = parseSemVer("node.platform_version", n.PlatformVersion); err != nil {
		return info, err
	}
	if info.Firmware, err = parseSemVer("node.firmware", n.Firmware); err != nil {
		return info, err
	}

	info.Production = n.Production
	info.Build = n.Build
	info.RadioTech = wire.RadioTech(n.RadioTech)
	info.RadioChannel = n.RadioChannel

	if p := n.Position; p != nil {
		pt, err := wire.ParsePositionType(p.Type)
		if err != nil {
			return info, fmt.Errorf("node.position.type: %w", err)
		}
		info.Position = &identity.Position{
			Type:      pt,
			Latitude:  int32(math.Round(p.Latitude * 1e6)),
			Longitude: int32(math.Round(p.Longitude * 1e6)),
			Elevation: int32(math.Round(p.Elevation * 100)),
		}
	}
	return info, nil
}

// FeatureUUIDs parses the configured features.
func (c *Config) FeatureUUIDs() ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(c.Features))
	for _, s := range c.Features {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// RadioConfig converts the interface section to a UDP radio configuration.
func (ic InterfaceConfig) RadioConfig() (udp.Config, error) {
	cfg := udp.DefaultConfig()
	cfg.Name = ic.Name
	cfg.Peers = ic.Peers
	cfg.Discovery = ic.Discovery
	if ic.Listen != "" {
		cfg.ListenAddr = ic.Listen
	}

	addr, err := radio.ParseAddr(ic.Address)
	if err != nil {
		return cfg, err
	}
	cfg.Address = addr

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
