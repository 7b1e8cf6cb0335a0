// Package genesis loads the cross-chain genesis configuration.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/geanlabs/xchain/crosschain"
	"github.com/geanlabs/xchain/crosschain/contract"
	"github.com/geanlabs/xchain/governance"
	"github.com/geanlabs/xchain/governance/parliament"
	"github.com/geanlabs/xchain/types"
)

// DefaultBlockInterval is the local block time in seconds.
const DefaultBlockInterval = 4

// GenesisConfig holds the parameters a node starts from.
type GenesisConfig struct {
	GenesisTime       uint64
	BlockInterval     uint64
	ChainID           types.ChainID
	ParentChainID     types.ChainID
	ParentChainHeight int64
	ReleaseThreshold  int64
	Validators        governance.StaticValidators
	SideChains        []SideChain
	Policy            crosschain.Policy
}

// SideChain is a side chain registered at genesis.
type SideChain struct {
	ChainID           types.ChainID
	Proposer          types.Address
	IndexingPrice     int64
	LockedTokenAmount int64
	Height            int64
}

// configJSON is the intermediate struct for JSON unmarshaling.
type configJSON struct {
	GenesisTime        uint64          `json:"GENESIS_TIME"`
	BlockInterval      uint64          `json:"BLOCK_INTERVAL"`
	ChainID            string          `json:"CHAIN_ID"`
	ParentChainID      string          `json:"PARENT_CHAIN_ID"`
	ParentChainHeight  int64           `json:"PARENT_CHAIN_HEIGHT"`
	ReleaseThreshold   int64           `json:"RELEASE_THRESHOLD"`
	Validators         []string        `json:"VALIDATORS"`
	SideChains         []sideChainJSON `json:"SIDE_CHAINS"`
	BanOnExpiry        *bool           `json:"BAN_ON_EXPIRY"`
	BanOnInvalidRecord *bool           `json:"BAN_ON_INVALID_RECORD"`
}

type sideChainJSON struct {
	ChainID           string `json:"CHAIN_ID"`
	Proposer          string `json:"PROPOSER"`
	IndexingPrice     int64  `json:"INDEXING_PRICE"`
	LockedTokenAmount int64  `json:"LOCKED_TOKEN_AMOUNT"`
	Height            int64  `json:"HEIGHT"`
}

// LoadFromFile loads a GenesisConfig from a JSON file.
func LoadFromFile(path string) (*GenesisConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}
	return LoadFromJSON(data)
}

// LoadFromJSON loads a GenesisConfig from JSON bytes.
func LoadFromJSON(data []byte) (*GenesisConfig, error) {
	var raw configJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing genesis JSON: %w", err)
	}

	config := &GenesisConfig{
		GenesisTime:       raw.GenesisTime,
		BlockInterval:     raw.BlockInterval,
		ParentChainHeight: raw.ParentChainHeight,
		ReleaseThreshold:  raw.ReleaseThreshold,
		Policy:            crosschain.DefaultPolicy(),
	}
	if config.BlockInterval == 0 {
		config.BlockInterval = DefaultBlockInterval
	}
	if raw.BanOnExpiry != nil {
		config.Policy.BanOnExpiry = *raw.BanOnExpiry
	}
	if raw.BanOnInvalidRecord != nil {
		config.Policy.BanOnInvalidRecord = *raw.BanOnInvalidRecord
	}

	var err error
	if config.ChainID, err = types.ChainIDFromString(raw.ChainID); err != nil {
		return nil, fmt.Errorf("parsing chain id: %w", err)
	}
	if raw.ParentChainID != "" {
		if config.ParentChainID, err = types.ChainIDFromString(raw.ParentChainID); err != nil {
			return nil, fmt.Errorf("parsing parent chain id: %w", err)
		}
	}
	if config.ReleaseThreshold <= 0 || config.ReleaseThreshold > parliament.ThresholdDenominator {
		return nil, fmt.Errorf("release threshold %d out of (0, %d]", config.ReleaseThreshold, parliament.ThresholdDenominator)
	}
	if len(raw.Validators) == 0 {
		return nil, fmt.Errorf("no validators")
	}

	seen := make(map[types.Address]struct{}, len(raw.Validators))
	for i, s := range raw.Validators {
		addr, err := types.AddressFromString(s)
		if err != nil {
			return nil, fmt.Errorf("parsing validator %d: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("validator %d: duplicate address %s", i, addr)
		}
		seen[addr] = struct{}{}
		config.Validators = append(config.Validators, addr)
	}

	for i, sc := range raw.SideChains {
		parsed, err := parseSideChain(sc)
		if err != nil {
			return nil, fmt.Errorf("parsing side chain %d: %w", i, err)
		}
		if parsed.ChainID == config.ChainID || parsed.ChainID == config.ParentChainID {
			return nil, fmt.Errorf("side chain %d reuses chain id %s", i, parsed.ChainID)
		}
		config.SideChains = append(config.SideChains, parsed)
	}
	return config, nil
}

func parseSideChain(raw sideChainJSON) (SideChain, error) {
	id, err := types.ChainIDFromString(raw.ChainID)
	if err != nil {
		return SideChain{}, fmt.Errorf("chain id: %w", err)
	}
	proposer, err := types.AddressFromString(raw.Proposer)
	if err != nil {
		return SideChain{}, fmt.Errorf("proposer: %w", err)
	}
	if raw.IndexingPrice <= 0 || raw.LockedTokenAmount < 0 || raw.Height < 0 {
		return SideChain{}, fmt.Errorf("invalid price %d, balance %d or height %d",
			raw.IndexingPrice, raw.LockedTokenAmount, raw.Height)
	}
	return SideChain{
		ChainID:           id,
		Proposer:          proposer,
		IndexingPrice:     raw.IndexingPrice,
		LockedTokenAmount: raw.LockedTokenAmount,
		Height:            raw.Height,
	}, nil
}

// InitialState converts the genesis into the contract's initial state.
func (c *GenesisConfig) InitialState() contract.InitialState {
	init := contract.InitialState{
		ParentChainID:     c.ParentChainID,
		ParentChainHeight: c.ParentChainHeight,
	}
	for _, sc := range c.SideChains {
		status := types.SideChainActive
		if sc.LockedTokenAmount < sc.IndexingPrice {
			status = types.SideChainInsufficientBalance
		}
		init.SideChains = append(init.SideChains, contract.InitialSideChain{
			Info: types.SideChainInfo{
				ChainID:       sc.ChainID,
				Proposer:      sc.Proposer,
				Status:        status,
				IndexingPrice: sc.IndexingPrice,
			},
			Balance: sc.LockedTokenAmount,
			Height:  sc.Height,
		})
	}
	return init
}
