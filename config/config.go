// Package config loads the node's YAML configuration and bootnode lists.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/geanlabs/xchain/types"
)

const (
	DefaultNetwork         = "devnet"
	DefaultListenAddr      = "/ip4/0.0.0.0/udp/9000/quic-v1"
	DefaultMetricsAddr     = ":9100"
	DefaultSyncInterval    = 4 * time.Second
	DefaultNodeKeyFileName = "node.key"
)

// NodeConfig is the on-disk node configuration.
type NodeConfig struct {
	Network     string   `yaml:"network"`
	DataDir     string   `yaml:"data_dir"`
	ListenAddrs []string `yaml:"listen_addrs"`
	NodeKey     string   `yaml:"node_key"`
	// Bootnodes is a nodes.yaml path; see LoadBootnodes.
	Bootnodes   string `yaml:"bootnodes"`
	MetricsAddr string `yaml:"metrics_addr"`
	// Validators are the base58 addresses this node approves and proposes
	// as. None runs the node as an observer.
	Validators   []string      `yaml:"validators"`
	SyncInterval time.Duration `yaml:"sync_interval"`
	InMemory     bool          `yaml:"in_memory"`
}

// Load reads a node config from path and applies defaults.
func Load(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML node config and applies defaults.
func Parse(data []byte) (*NodeConfig, error) {
	var cfg NodeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *NodeConfig {
	cfg := &NodeConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *NodeConfig) applyDefaults() {
	if c.Network == "" {
		c.Network = DefaultNetwork
	}
	if len(c.ListenAddrs) == 0 {
		c.ListenAddrs = []string{DefaultListenAddr}
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
}

// Validate checks fields that cannot be defaulted.
func (c *NodeConfig) Validate() error {
	if _, err := c.ValidatorAddresses(); err != nil {
		return err
	}
	if !c.InMemory && c.DataDir == "" {
		return fmt.Errorf("data_dir is required unless in_memory is set")
	}
	return nil
}

// ValidatorAddresses parses the configured validator addresses.
func (c *NodeConfig) ValidatorAddresses() ([]types.Address, error) {
	out := make([]types.Address, 0, len(c.Validators))
	for i, s := range c.Validators {
		a, err := types.AddressFromString(s)
		if err != nil {
			return nil, fmt.Errorf("validator %d address: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}
