package genesis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/geanlabs/xchain/types"
)

var (
	validatorA = types.AddressFromHash(types.HashFromString("validator-a"))
	validatorB = types.AddressFromHash(types.HashFromString("validator-b"))
	creator    = types.AddressFromHash(types.HashFromString("creator"))
)

func genesisJSON(extra string) []byte {
	return []byte(fmt.Sprintf(`{
		"GENESIS_TIME": 1704085200,
		"CHAIN_ID": %q,
		"PARENT_CHAIN_ID": %q,
		"PARENT_CHAIN_HEIGHT": 10,
		"RELEASE_THRESHOLD": 6667,
		"VALIDATORS": [%q, %q],
		"SIDE_CHAINS": [
			{"CHAIN_ID": %q, "PROPOSER": %q, "INDEXING_PRICE": 2, "LOCKED_TOKEN_AMOUNT": 100},
			{"CHAIN_ID": %q, "PROPOSER": %q, "INDEXING_PRICE": 5, "LOCKED_TOKEN_AMOUNT": 3, "HEIGHT": 7}
		]%s
	}`, types.ChainID(500).String(), types.ChainID(400).String(),
		validatorA.String(), validatorB.String(),
		types.ChainID(600).String(), creator.String(),
		types.ChainID(601).String(), creator.String(), extra))
}

func chainKey(id types.ChainID) string {
	return fmt.Sprintf(`"CHAIN_ID": %q`, id.String())
}

func TestLoadFromJSON(t *testing.T) {
	config, err := LoadFromJSON(genesisJSON(""))
	if err != nil {
		t.Fatalf("LoadFromJSON failed: %v", err)
	}

	if config.GenesisTime != 1704085200 {
		t.Errorf("GenesisTime = %d, want 1704085200", config.GenesisTime)
	}
	if config.BlockInterval != DefaultBlockInterval {
		t.Errorf("BlockInterval = %d, want default %d", config.BlockInterval, DefaultBlockInterval)
	}
	if config.ChainID != 500 || config.ParentChainID != 400 || config.ParentChainHeight != 10 {
		t.Errorf("chain ids = %d/%d@%d", config.ChainID, config.ParentChainID, config.ParentChainHeight)
	}
	if len(config.Validators) != 2 || !config.Validators.IsCurrentValidator(validatorB) {
		t.Errorf("Validators = %v", config.Validators)
	}
	if config.Policy.BanOnExpiry || !config.Policy.BanOnInvalidRecord {
		t.Errorf("Policy = %+v, want default", config.Policy)
	}
	if len(config.SideChains) != 2 || config.SideChains[1].Height != 7 {
		t.Errorf("SideChains = %+v", config.SideChains)
	}
}

func TestLoadFromJSON_PolicyOverride(t *testing.T) {
	config, err := LoadFromJSON(genesisJSON(`, "BAN_ON_EXPIRY": true, "BAN_ON_INVALID_RECORD": false`))
	if err != nil {
		t.Fatalf("LoadFromJSON failed: %v", err)
	}
	if !config.Policy.BanOnExpiry || config.Policy.BanOnInvalidRecord {
		t.Errorf("Policy = %+v", config.Policy)
	}
}

func TestLoadFromJSON_Errors(t *testing.T) {
	valid := string(genesisJSON(""))
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"bad chain id", strings.Replace(valid, chainKey(500), `"CHAIN_ID": "0OIl"`, 1)},
		{"bad validator", strings.Replace(valid, validatorA.String(), "0OIl", 1)},
		{"duplicate validator", strings.Replace(valid, validatorB.String(), validatorA.String(), 1)},
		{"zero threshold", strings.Replace(valid, `"RELEASE_THRESHOLD": 6667`, `"RELEASE_THRESHOLD": 0`, 1)},
		{"threshold above denominator", strings.Replace(valid, `"RELEASE_THRESHOLD": 6667`, `"RELEASE_THRESHOLD": 10001`, 1)},
		{"side chain reuses parent id", strings.Replace(valid, chainKey(600), chainKey(400), 1)},
		{"free indexing", strings.Replace(valid, `"INDEXING_PRICE": 2`, `"INDEXING_PRICE": 0`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFromJSON([]byte(tt.data)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestInitialState(t *testing.T) {
	config, err := LoadFromJSON(genesisJSON(""))
	if err != nil {
		t.Fatalf("LoadFromJSON failed: %v", err)
	}
	init := config.InitialState()

	if init.ParentChainID != 400 || init.ParentChainHeight != 10 {
		t.Errorf("parent = %d@%d", init.ParentChainID, init.ParentChainHeight)
	}
	if len(init.SideChains) != 2 {
		t.Fatalf("len(SideChains) = %d, want 2", len(init.SideChains))
	}
	if sc := init.SideChains[0]; sc.Info.Status != types.SideChainActive || sc.Balance != 100 || sc.Info.Proposer != creator {
		t.Errorf("side chain 0 = %+v", sc)
	}
	// Locked 3 does not cover one block at price 5.
	if sc := init.SideChains[1]; sc.Info.Status != types.SideChainInsufficientBalance || sc.Height != 7 {
		t.Errorf("side chain 1 = %+v", sc)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, genesisJSON(""), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
