// Package parliament is an in-process governance implementation: proposals
// are released once enough current validators approve them.
package parliament

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/geanlabs/xchain/governance"
	"github.com/geanlabs/xchain/types"
)

// ThresholdDenominator is the base release thresholds are expressed in.
const ThresholdDenominator = 10000

type organization struct {
	address   types.Address
	threshold int64
}

type proposal struct {
	info      governance.ProposalInfo
	notify    bool
	notified  bool
	approvers map[types.Address]struct{}
}

// Parliament implements governance.Governance.
type Parliament struct {
	mu         sync.Mutex
	validators governance.ValidatorSet
	target     governance.Target
	orgs       map[types.Address]organization
	proposals  map[types.Hash]*proposal
	nonce      uint64
	logger     *slog.Logger
}

type Config struct {
	Validators governance.ValidatorSet
	Logger     *slog.Logger
}

func New(cfg Config) *Parliament {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Parliament{
		validators: cfg.Validators,
		orgs:       make(map[types.Address]organization),
		proposals:  make(map[types.Hash]*proposal),
		logger:     logger,
	}
}

// SetTarget sets the contract released proposals execute against.
func (p *Parliament) SetTarget(t governance.Target) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = t
}

// CreateOrganization registers an organization releasing at threshold out
// of ThresholdDenominator and returns its address.
func (p *Parliament) CreateOrganization(threshold int64) (types.Address, error) {
	if threshold <= 0 || threshold > ThresholdDenominator {
		return types.Address{}, fmt.Errorf("invalid release threshold %d", threshold)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nonce++
	var buf [24]byte
	copy(buf[:8], "parlorg:")
	binary.BigEndian.PutUint64(buf[8:16], uint64(threshold))
	binary.BigEndian.PutUint64(buf[16:], p.nonce)
	addr := types.AddressFromHash(types.HashOf(buf[:]))
	p.orgs[addr] = organization{address: addr, threshold: threshold}
	return addr, nil
}

func (p *Parliament) CreateProposal(ctx context.Context, req governance.ProposalRequest) (types.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.orgs[req.Organization]; !ok {
		return types.Hash{}, governance.ErrUnknownOrganization
	}
	if req.Expiry.IsZero() {
		return types.Hash{}, governance.ErrInvalidExpiry
	}

	p.nonce++
	id := proposalID(req, p.nonce)
	p.proposals[id] = &proposal{
		info: governance.ProposalInfo{
			ID:           id,
			Organization: req.Organization,
			Proposer:     req.Proposer,
			Method:       req.Method,
			Payload:      append([]byte(nil), req.Payload...),
			Expiry:       req.Expiry,
		},
		notify:    req.NotifyOnThreshold,
		approvers: make(map[types.Address]struct{}),
	}
	p.logger.Debug("proposal created", "proposal_id", id.Short(), "method", req.Method)
	return id, nil
}

func proposalID(req governance.ProposalRequest, nonce uint64) types.Hash {
	data := make([]byte, 0, 20+20+len(req.Method)+len(req.Payload)+16)
	data = append(data, req.Organization[:]...)
	data = append(data, req.Proposer[:]...)
	data = append(data, req.Method...)
	data = append(data, req.Payload...)
	data = binary.BigEndian.AppendUint64(data, uint64(req.Expiry.UnixNano()))
	data = binary.BigEndian.AppendUint64(data, nonce)
	return types.HashOf(data)
}

func (p *Parliament) GetProposal(id types.Hash) (governance.ProposalInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.proposals[id]
	if !ok {
		return governance.ProposalInfo{}, false
	}
	info := pr.info
	info.Payload = append([]byte(nil), pr.info.Payload...)
	return info, true
}

// Approve records the sender's approval. When a proposal that asked for
// notification reaches the threshold, the target's ReleaseApproved is called
// with the organization as sender.
func (p *Parliament) Approve(ctx context.Context, call types.CallContext, id types.Hash) error {
	p.mu.Lock()
	if !p.validators.IsCurrentValidator(call.Sender) {
		p.mu.Unlock()
		return governance.ErrNotValidator
	}
	pr, ok := p.proposals[id]
	if !ok {
		p.mu.Unlock()
		return governance.ErrProposalNotFound
	}
	if pr.info.Expired(call.Time) {
		p.mu.Unlock()
		return governance.ErrProposalExpired
	}
	if _, dup := pr.approvers[call.Sender]; dup {
		p.mu.Unlock()
		return governance.ErrAlreadyApproved
	}
	pr.approvers[call.Sender] = struct{}{}
	pr.info.Approvals = len(pr.approvers)
	pr.info.Approved = p.thresholdReachedLocked(pr)

	notify := pr.info.Approved && pr.notify && !pr.notified
	if notify {
		pr.notified = true
	}
	target := p.target
	payload := append([]byte(nil), pr.info.Payload...)
	orgCall := asOrganization(call, pr.info.Organization)
	approvals := pr.info.Approvals
	p.mu.Unlock()

	p.logger.Debug("proposal approved", "proposal_id", id.Short(), "approvals", approvals)
	if notify && target != nil {
		return target.ReleaseApproved(ctx, orgCall, id, payload)
	}
	return nil
}

func (p *Parliament) thresholdReachedLocked(pr *proposal) bool {
	org := p.orgs[pr.info.Organization]
	current := 0
	for addr := range pr.approvers {
		if p.validators.IsCurrentValidator(addr) {
			current++
		}
	}
	total := len(p.validators.Validators())
	if total == 0 {
		return false
	}
	return int64(current)*ThresholdDenominator >= org.threshold*int64(total)
}

// Release removes an approved proposal and executes it on the target.
func (p *Parliament) Release(ctx context.Context, call types.CallContext, id types.Hash) error {
	p.mu.Lock()
	pr, ok := p.proposals[id]
	if !ok {
		p.mu.Unlock()
		return governance.ErrProposalNotFound
	}
	if pr.info.Expired(call.Time) {
		p.mu.Unlock()
		return governance.ErrProposalExpired
	}
	if !p.thresholdReachedLocked(pr) {
		p.mu.Unlock()
		return governance.ErrNotApproved
	}
	delete(p.proposals, id)
	target := p.target
	p.mu.Unlock()

	if target == nil {
		return fmt.Errorf("release %s: no target", id.Short())
	}
	p.logger.Info("releasing proposal", "proposal_id", id.Short(), "method", pr.info.Method)
	return target.Execute(ctx, asOrganization(call, pr.info.Organization), pr.info.Method, pr.info.Payload)
}

func asOrganization(call types.CallContext, org types.Address) types.CallContext {
	call.Sender = org
	return call
}
