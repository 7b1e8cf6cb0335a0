package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// bootnode is one nodes.yaml entry. Either field may carry the address.
type bootnode struct {
	Multiaddr string `yaml:"multiaddr"`
	ENR       string `yaml:"enr"`
}

func (b bootnode) addr() string {
	if b.ENR != "" {
		return b.ENR
	}
	return b.Multiaddr
}

// LoadBootnodes reads a nodes.yaml file and returns the bootnode addresses
// in file order. Each value may be a multiaddr or an ENR record, given as
// entries or as plain strings:
//
//	- multiaddr: /ip4/.../p2p/<id>
//	- enr: enr:...
//
// or
//
//	- /ip4/.../p2p/<id>
//	- enr:...
func LoadBootnodes(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bootnodes %s: %w", path, err)
	}

	var nodes []yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parse bootnodes %s: %w", path, err)
	}

	var out []string
	for i := range nodes {
		var addr string
		switch nodes[i].Kind {
		case yaml.ScalarNode:
			addr = nodes[i].Value
		case yaml.MappingNode:
			var b bootnode
			if err := nodes[i].Decode(&b); err != nil {
				return nil, fmt.Errorf("bootnode %d: %w", i, err)
			}
			addr = b.addr()
		default:
			return nil, fmt.Errorf("bootnode %d: unexpected yaml kind %d", i, nodes[i].Kind)
		}
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out, nil
}
