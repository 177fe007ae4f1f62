package liquidation

import (
	"errors"
	"math/big"
	"time"

	"bridgemint/core/events"
	"bridgemint/core/types"
	"bridgemint/native/collateral"
	"bridgemint/native/oracle"
	"bridgemint/native/redemption"
	"bridgemint/native/reference"
)

var (
	errNilState = errors.New("liquidation engine: state not configured")

	ErrUnknownAgent           = errors.New("liquidation engine: unknown agent")
	ErrChallengeMismatch      = errors.New("liquidation engine: proof does not implicate agent")
	ErrPaymentLegal           = errors.New("liquidation engine: payment matches an open obligation")
	ErrNotDoublePayment       = errors.New("liquidation engine: proofs do not show a double payment")
	ErrBalanceNotNegative     = errors.New("liquidation engine: free balance not negative")
	ErrAlreadyFullLiquidation = errors.New("liquidation engine: agent already in full liquidation")
	ErrNotUndercollateralized = errors.New("liquidation engine: collateral ratio above minimum")
	ErrNotInLiquidation       = errors.New("liquidation engine: agent not in liquidation")
	ErrNotRecovered           = errors.New("liquidation engine: collateral ratio below safety minimum")
	ErrInvalidAmount          = errors.New("liquidation engine: amount must be positive")
	ErrNothingToLiquidate     = errors.New("liquidation engine: agent has no minted backing")
)

// Params carries the protocol settings the liquidation engine depends on.
// Factor slices escalate per elapsed liquidation step; the last entry caps.
type Params struct {
	AssetSymbol                string
	PoolTokenSymbol            string
	AMGUnitUBA                 uint64
	PaymentChallengeRewardUSD5 uint64
	PaymentChallengeRewardBIPS uint64
	LiquidationStepSeconds     int64
	LiquidationFactorVaultBIPS []uint64
	LiquidationFactorPoolBIPS  []uint64
}

type engineState interface {
	GetAgent(id [20]byte) (*types.Agent, error)
	PutAgent(agent *types.Agent) error
	RedemptionBelongsToAgent(requestID uint64, agentID [20]byte) (bool, error)
	AgentTicketsOldestFirst(agentID [20]byte) ([]*redemption.RedemptionTicket, error)
	PutTicket(ticket *redemption.RedemptionTicket) error
	DeleteTicket(id uint64) error
}

// TokenLedger moves collateral between native accounts.
type TokenLedger interface {
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
}

// AssetBurner burns the liquidator's synthetic assets.
type AssetBurner interface {
	Burn(from [20]byte, amountUBA *big.Int) error
}

// Engine confirms payment challenges and drives collateral liquidation.
type Engine struct {
	state    engineState
	ledger   TokenLedger
	asset    AssetBurner
	registry *collateral.Registry
	prices   oracle.PriceReader
	params   Params
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine constructs a liquidation engine with a no-op emitter.
func NewEngine(registry *collateral.Registry, prices oracle.PriceReader, params Params) *Engine {
	return &Engine{
		registry: registry,
		prices:   prices,
		params:   params,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the collateral token ledger.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetAssetBurner wires the synthetic asset token.
func (e *Engine) SetAssetBurner(burner AssetBurner) { e.asset = burner }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) loadAgent(id [20]byte) (*types.Agent, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	agent, err := e.state.GetAgent(id)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, ErrUnknownAgent
	}
	return agent.Normalize(), nil
}

func backedAMG(agent *types.Agent) *big.Int {
	backed := new(big.Int).Add(agent.MintedAMG, agent.ReservedAMG)
	return backed.Add(backed, agent.RedeemingAMG)
}

func mulBIPSDown(value *big.Int, bips uint64) *big.Int {
	out := new(big.Int).Mul(value, new(big.Int).SetUint64(bips))
	return out.Quo(out, big.NewInt(collateral.MaxBIPS))
}

// collateralRatios computes the agent's vault and pool collateral ratios in
// BIPS, plus the type records they were measured against.
func (e *Engine) collateralRatios(agent *types.Agent) (vaultCR, poolCR *big.Int, vaultType, poolType collateral.Type, err error) {
	vaultType, err = e.registry.Get(agent.VaultToken)
	if err != nil {
		return nil, nil, collateral.Type{}, collateral.Type{}, err
	}
	poolType, err = e.registry.PoolType()
	if err != nil {
		return nil, nil, collateral.Type{}, collateral.Type{}, err
	}
	assetPrice, err := e.prices.GetPrice(e.params.AssetSymbol)
	if err != nil {
		return nil, nil, collateral.Type{}, collateral.Type{}, err
	}
	vaultPrice, err := e.prices.GetPrice(agent.VaultToken)
	if err != nil {
		return nil, nil, collateral.Type{}, collateral.Type{}, err
	}
	poolPrice, err := e.prices.GetPrice(poolType.Symbol)
	if err != nil {
		return nil, nil, collateral.Type{}, collateral.Type{}, err
	}
	backed := backedAMG(agent)
	vaultCR = collateral.CollateralRatioBIPS(agent.VaultCollateralWei, backed, e.params.AMGUnitUBA, assetPrice, vaultPrice)
	poolCR = collateral.CollateralRatioBIPS(agent.PoolCollateralWei, backed, e.params.AMGUnitUBA, assetPrice, poolPrice)
	return vaultCR, poolCR, vaultType, poolType, nil
}

// legalOutgoingPayment reports whether a balance-decreasing transaction from
// the agent's address matches an open obligation: a redemption request owned
// by the agent, the currently announced withdrawal, or the agent's own topup
// and self-mint references.
func (e *Engine) legalOutgoingPayment(agent *types.Agent, ref reference.Reference) (bool, error) {
	kind, err := reference.DecodeKind(ref)
	if err != nil {
		return false, nil
	}
	switch kind {
	case reference.KindRedemption:
		id, err := reference.OperationID(ref)
		if err != nil {
			return false, nil
		}
		return e.state.RedemptionBelongsToAgent(id, agent.ID)
	case reference.KindAnnouncedWithdrawal:
		id, err := reference.OperationID(ref)
		if err != nil {
			return false, nil
		}
		return agent.WithdrawalAnnouncement != 0 && id == agent.WithdrawalAnnouncement, nil
	case reference.KindTopup:
		return ref == reference.Topup(agent.ID), nil
	case reference.KindSelfMint:
		return ref == reference.SelfMint(agent.ID), nil
	}
	return false, nil
}

// challengeReward pays the challenger from vault collateral: a flat USD
// component plus a share of the backed value.
func (e *Engine) challengeReward(agent *types.Agent, challenger [20]byte) (*big.Int, error) {
	assetPrice, err := e.prices.GetPrice(e.params.AssetSymbol)
	if err != nil {
		return nil, err
	}
	vaultPrice, err := e.prices.GetPrice(agent.VaultToken)
	if err != nil {
		return nil, err
	}
	reward := collateral.USDToTokenWei(new(big.Int).SetUint64(e.params.PaymentChallengeRewardUSD5), vaultPrice)
	backedWei := collateral.AMGToTokenWei(backedAMG(agent), e.params.AMGUnitUBA, assetPrice, vaultPrice, false)
	reward.Add(reward, mulBIPSDown(backedWei, e.params.PaymentChallengeRewardBIPS))
	if reward.Cmp(agent.VaultCollateralWei) > 0 {
		reward = new(big.Int).Set(agent.VaultCollateralWei)
	}
	if reward.Sign() > 0 {
		if err := e.ledger.Transfer(agent.VaultToken, agent.ID, challenger, reward); err != nil {
			return nil, err
		}
		agent.VaultCollateralWei = new(big.Int).Sub(agent.VaultCollateralWei, reward)
	}
	return reward, nil
}

func (e *Engine) confirmChallenge(agent *types.Agent, challenger [20]byte, kind string) error {
	reward, err := e.challengeReward(agent, challenger)
	if err != nil {
		return err
	}
	agent.Status = types.AgentFullLiquidation
	agent.PubliclyAvailable = false
	if agent.LiquidationStartedAt == 0 {
		agent.LiquidationStartedAt = e.nowFn()
	}
	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	e.emit(events.ChallengeConfirmed{AgentID: agent.ID, Challenger: challenger, Kind: kind, RewardWei: reward})
	e.emit(events.LiquidationStarted{AgentID: agent.ID, Full: true})
	return nil
}

// ChallengeIllegalPayment confirms a balance-decreasing transaction from the
// agent's underlying address that matches no open obligation. The agent enters
// full liquidation and the challenger is rewarded from vault collateral.
func (e *Engine) ChallengeIllegalPayment(challenger, agentID [20]byte, proof oracle.BalanceDecreasingProof) error {
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if agent.Status == types.AgentFullLiquidation {
		return ErrAlreadyFullLiquidation
	}
	if proof.SourceAddress != agent.UnderlyingAddress {
		return ErrChallengeMismatch
	}
	legal, err := e.legalOutgoingPayment(agent, proof.Reference)
	if err != nil {
		return err
	}
	if legal {
		return ErrPaymentLegal
	}
	return e.confirmChallenge(agent, challenger, "illegal-payment")
}

// ChallengeDoublePayment confirms two distinct transactions carrying the same
// payment reference from the agent's address.
func (e *Engine) ChallengeDoublePayment(challenger, agentID [20]byte, first, second oracle.BalanceDecreasingProof) error {
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if agent.Status == types.AgentFullLiquidation {
		return ErrAlreadyFullLiquidation
	}
	if first.SourceAddress != agent.UnderlyingAddress || second.SourceAddress != agent.UnderlyingAddress {
		return ErrChallengeMismatch
	}
	if first.TransactionHash == second.TransactionHash {
		return ErrNotDoublePayment
	}
	if first.Reference != second.Reference || first.Reference.IsZero() {
		return ErrNotDoublePayment
	}
	return e.confirmChallenge(agent, challenger, "double-payment")
}

// ChallengeFreeBalanceNegative confirms a set of distinct outgoing
// transactions whose total exceeds the agent's tracked free underlying.
func (e *Engine) ChallengeFreeBalanceNegative(challenger, agentID [20]byte, proofs []oracle.BalanceDecreasingProof) error {
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if agent.Status == types.AgentFullLiquidation {
		return ErrAlreadyFullLiquidation
	}
	if len(proofs) == 0 {
		return ErrChallengeMismatch
	}
	total := big.NewInt(0)
	seen := make(map[string]bool, len(proofs))
	for _, proof := range proofs {
		if proof.SourceAddress != agent.UnderlyingAddress {
			return ErrChallengeMismatch
		}
		if seen[proof.TransactionHash] {
			return ErrChallengeMismatch
		}
		seen[proof.TransactionHash] = true
		if proof.SpentUBA != nil {
			total.Add(total, proof.SpentUBA)
		}
	}
	if total.Cmp(agent.FreeUnderlyingUBA) <= 0 {
		return ErrBalanceNotNegative
	}
	return e.confirmChallenge(agent, challenger, "free-balance-negative")
}

// StartLiquidation moves an under-collateralized agent into liquidation.
// Expired deprecated vault collateral is an independent trigger.
func (e *Engine) StartLiquidation(agentID [20]byte) error {
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if agent.Status != types.AgentNormal {
		return ErrNotUndercollateralized
	}
	vaultCR, poolCR, vaultType, poolType, err := e.collateralRatios(agent)
	if err != nil {
		return err
	}
	under := vaultCR.Cmp(new(big.Int).SetUint64(vaultType.MinCollateralRatioBIPS)) < 0 ||
		poolCR.Cmp(new(big.Int).SetUint64(poolType.MinCollateralRatioBIPS)) < 0
	if !under && !vaultType.Expired(e.nowFn()) {
		return ErrNotUndercollateralized
	}
	agent.Status = types.AgentLiquidation
	agent.PubliclyAvailable = false
	agent.LiquidationStartedAt = e.nowFn()
	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	e.emit(events.LiquidationStarted{AgentID: agentID, Full: false})
	return nil
}

// EndLiquidation returns a recovered agent to normal. Full liquidation never
// ends.
func (e *Engine) EndLiquidation(agentID [20]byte) error {
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if agent.Status != types.AgentLiquidation {
		return ErrNotInLiquidation
	}
	vaultCR, poolCR, vaultType, poolType, err := e.collateralRatios(agent)
	if err != nil {
		return err
	}
	if vaultCR.Cmp(new(big.Int).SetUint64(vaultType.SafetyMinCollateralRatioBIPS)) < 0 ||
		poolCR.Cmp(new(big.Int).SetUint64(poolType.SafetyMinCollateralRatioBIPS)) < 0 {
		return ErrNotRecovered
	}
	agent.Status = types.AgentNormal
	agent.LiquidationStartedAt = 0
	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	e.emit(events.LiquidationEnded{AgentID: agentID})
	return nil
}

// liquidationFactors picks the payout factors for the elapsed liquidation
// time, escalating one step per LiquidationStepSeconds.
func (e *Engine) liquidationFactors(agent *types.Agent) (vaultBIPS, poolBIPS uint64) {
	step := 0
	if e.params.LiquidationStepSeconds > 0 && agent.LiquidationStartedAt > 0 {
		step = int((e.nowFn() - agent.LiquidationStartedAt) / e.params.LiquidationStepSeconds)
	}
	pick := func(factors []uint64) uint64 {
		if len(factors) == 0 {
			return collateral.MaxBIPS
		}
		if step >= len(factors) {
			return factors[len(factors)-1]
		}
		return factors[step]
	}
	return pick(e.params.LiquidationFactorVaultBIPS), pick(e.params.LiquidationFactorPoolBIPS)
}

// consumeTickets reduces the agent's queued tickets oldest-first by the
// liquidated amount, keeping the ticket conservation intact.
func (e *Engine) consumeTickets(agentID [20]byte, amountAMG *big.Int) error {
	tickets, err := e.state.AgentTicketsOldestFirst(agentID)
	if err != nil {
		return err
	}
	remaining := new(big.Int).Set(amountAMG)
	for _, ticket := range tickets {
		if remaining.Sign() == 0 {
			break
		}
		take := ticket.ValueAMG
		if take.Cmp(remaining) > 0 {
			take = remaining
		}
		left := new(big.Int).Sub(ticket.ValueAMG, take)
		if left.Sign() == 0 {
			if err := e.state.DeleteTicket(ticket.ID); err != nil {
				return err
			}
		} else {
			updated := ticket.Clone()
			updated.ValueAMG = left
			if err := e.state.PutTicket(updated); err != nil {
				return err
			}
		}
		remaining.Sub(remaining, new(big.Int).Set(take))
	}
	return nil
}

// Liquidate burns the liquidator's synthetic assets against a liquidating
// agent and pays out vault and pool collateral at the current step's premium
// factors. Collateral-triggered liquidation ends automatically once the ratio
// recovers. Returns the amount actually burned.
func (e *Engine) Liquidate(liquidator, agentID [20]byte, amountUBA *big.Int) (*big.Int, error) {
	if amountUBA == nil || amountUBA.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != types.AgentLiquidation && agent.Status != types.AgentFullLiquidation {
		return nil, ErrNotInLiquidation
	}
	amountAMG := collateral.UBAToAMG(amountUBA, e.params.AMGUnitUBA)
	if amountAMG.Cmp(agent.MintedAMG) > 0 {
		amountAMG = new(big.Int).Set(agent.MintedAMG)
	}
	if amountAMG.Sign() == 0 {
		return nil, ErrNothingToLiquidate
	}
	burnedUBA := collateral.AMGToUBA(amountAMG, e.params.AMGUnitUBA)
	if err := e.asset.Burn(liquidator, burnedUBA); err != nil {
		return nil, err
	}

	assetPrice, err := e.prices.GetPrice(e.params.AssetSymbol)
	if err != nil {
		return nil, err
	}
	vaultPrice, err := e.prices.GetPrice(agent.VaultToken)
	if err != nil {
		return nil, err
	}
	poolPrice, err := e.prices.GetPrice(e.params.PoolTokenSymbol)
	if err != nil {
		return nil, err
	}
	vaultFactor, poolFactor := e.liquidationFactors(agent)
	vaultPaid := mulBIPSDown(collateral.AMGToTokenWei(amountAMG, e.params.AMGUnitUBA, assetPrice, vaultPrice, false), vaultFactor)
	if vaultPaid.Cmp(agent.VaultCollateralWei) > 0 {
		vaultPaid = new(big.Int).Set(agent.VaultCollateralWei)
	}
	poolPaid := mulBIPSDown(collateral.AMGToTokenWei(amountAMG, e.params.AMGUnitUBA, assetPrice, poolPrice, false), poolFactor)
	if poolPaid.Cmp(agent.PoolCollateralWei) > 0 {
		poolPaid = new(big.Int).Set(agent.PoolCollateralWei)
	}
	if vaultPaid.Sign() > 0 {
		if err := e.ledger.Transfer(agent.VaultToken, agentID, liquidator, vaultPaid); err != nil {
			return nil, err
		}
		agent.VaultCollateralWei = new(big.Int).Sub(agent.VaultCollateralWei, vaultPaid)
	}
	if poolPaid.Sign() > 0 {
		if err := e.ledger.Transfer(e.params.PoolTokenSymbol, agentID, liquidator, poolPaid); err != nil {
			return nil, err
		}
		agent.PoolCollateralWei = new(big.Int).Sub(agent.PoolCollateralWei, poolPaid)
	}

	agent.MintedAMG = new(big.Int).Sub(agent.MintedAMG, amountAMG)
	agent.FreeUnderlyingUBA = new(big.Int).Add(agent.FreeUnderlyingUBA, burnedUBA)
	if err := e.consumeTickets(agentID, amountAMG); err != nil {
		return nil, err
	}

	ended := false
	if agent.Status == types.AgentLiquidation {
		vaultCR, poolCR, vaultType, poolType, err := e.collateralRatios(agent)
		if err != nil {
			return nil, err
		}
		if vaultCR.Cmp(new(big.Int).SetUint64(vaultType.SafetyMinCollateralRatioBIPS)) >= 0 &&
			poolCR.Cmp(new(big.Int).SetUint64(poolType.SafetyMinCollateralRatioBIPS)) >= 0 {
			agent.Status = types.AgentNormal
			agent.LiquidationStartedAt = 0
			ended = true
		}
	}
	if err := e.state.PutAgent(agent); err != nil {
		return nil, err
	}
	e.emit(events.LiquidationPerformed{
		AgentID:      agentID,
		Liquidator:   liquidator,
		BurnedUBA:    new(big.Int).Set(burnedUBA),
		VaultPaidWei: vaultPaid,
		PoolPaidWei:  poolPaid,
	})
	if ended {
		e.emit(events.LiquidationEnded{AgentID: agentID})
	}
	return burnedUBA, nil
}
