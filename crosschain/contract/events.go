package contract

import (
	"log/slog"

	"github.com/geanlabs/xchain/types"
)

// Event is emitted by the coordinator after a successful commit.
type Event interface {
	EventName() string
}

type ProposalCreated struct {
	ProposalID types.Hash
}

type IndexingDataProposed struct {
	Proposer types.Address
	Batch    *types.CrossChainBlockData
}

type ChainCreated struct {
	ChainID types.ChainID
	Creator types.Address
}

type CrossChainIndexed struct {
	Height           int64
	SideChainCount   int
	ParentChainCount int
}

type ProposalCleared struct {
	ProposalID types.Hash
	Proposer   types.Address
	Banned     bool
}

func (ProposalCreated) EventName() string { return "ProposalCreated" }
func (IndexingDataProposed) EventName() string { return "IndexingDataProposed" }
func (ChainCreated) EventName() string { return "ChainCreated" }
func (CrossChainIndexed) EventName() string { return "CrossChainIndexed" }
func (ProposalCleared) EventName() string { return "ProposalCleared" }

// EventSink receives coordinator events.
type EventSink interface {
	Emit(Event)
}

// LogSink writes events to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch ev := e.(type) {
	case ProposalCreated:
		logger.Info("event", "name", ev.EventName(), "proposal_id", ev.ProposalID.Short())
	case IndexingDataProposed:
		logger.Info("event", "name", ev.EventName(), "proposer", ev.Proposer,
			"side_chain", len(ev.Batch.SideChain), "parent_chain", len(ev.Batch.ParentChain))
	case ChainCreated:
		logger.Info("event", "name", ev.EventName(), "chain_id", ev.ChainID, "creator", ev.Creator)
	case CrossChainIndexed:
		logger.Info("event", "name", ev.EventName(), "height", ev.Height,
			"side_chain", ev.SideChainCount, "parent_chain", ev.ParentChainCount)
	case ProposalCleared:
		logger.Info("event", "name", ev.EventName(), "proposal_id", ev.ProposalID.Short(), "banned", ev.Banned)
	default:
		logger.Info("event", "name", e.EventName())
	}
}

type discardSink struct{}

func (discardSink) Emit(Event) {}
