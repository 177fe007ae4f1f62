package minting

import (
	"errors"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"bridgemint/core/events"
	"bridgemint/core/types"
	"bridgemint/native/collateral"
	nativecommon "bridgemint/native/common"
	"bridgemint/native/oracle"
	"bridgemint/native/reference"
)

var (
	errNilState = errors.New("minting engine: state not configured")

	ErrUnknownReservation     = errors.New("minting engine: unknown reservation")
	ErrWrongAgentStatus       = errors.New("minting engine: wrong agent status")
	ErrAgentNotAvailable      = errors.New("minting engine: agent not publicly available")
	ErrInvalidLots            = errors.New("minting engine: lots must be positive")
	ErrAgentFeeTooHigh        = errors.New("minting engine: agent fee exceeds accepted maximum")
	ErrInsufficientFreeLots   = errors.New("minting engine: not enough free collateral lots")
	ErrExecutorFeeNoExecutor  = errors.New("minting engine: executor fee without executor")
	ErrReservationFeeMismatch = errors.New("minting engine: reservation fee mismatch")
	ErrNotAuthorized          = errors.New("minting engine: caller not authorized")
	ErrPaymentMismatch        = errors.New("minting engine: payment proof does not match reservation")
	ErrDefaultTooEarly        = errors.New("minting engine: payment window still open")
	ErrNonPaymentMismatch     = errors.New("minting engine: non-payment proof does not match reservation")
	ErrProofWindowTooShort    = errors.New("minting engine: proof window does not cover reservation")
	ErrUnstickTooEarly        = errors.New("minting engine: reservation still provable")
	ErrInsufficientUnstick    = errors.New("minting engine: unstick payment below required premium")
	ErrSelfMintMismatch       = errors.New("minting engine: self-mint proof does not match agent")
)

const moduleName = "minting"

// feeEscrow holds reservation and executor fees while a reservation is open.
var feeEscrow = func() [20]byte {
	var addr [20]byte
	hash := ethcrypto.Keccak256([]byte("bridgemint/minting/escrow"))
	copy(addr[:], hash[12:])
	return addr
}()

// burnAddress receives irrecoverable payments (unstick premiums, abandoned
// executor fees).
var burnAddress [20]byte

// Params carries the protocol settings the minting engine depends on.
type Params struct {
	AssetSymbol                          string
	PoolTokenSymbol                      string
	LotSizeAMG                           uint64
	AMGUnitUBA                           uint64
	CollateralReservationFeeBIPS         uint64
	UnderlyingBlocksForPayment           uint64
	UnderlyingSecondsForPayment          uint64
	VaultCollateralBuyForFlareFactorBIPS uint64
}

type engineState interface {
	GetAgent(id [20]byte) (*types.Agent, error)
	PutAgent(agent *types.Agent) error
	GetReservation(id uint64) (*CollateralReservation, error)
	PutReservation(cr *CollateralReservation) error
	DeleteReservation(id uint64) error
	NextReservationID() (uint64, error)
	UnderlyingCursor() (block uint64, timestamp uint64, err error)
	PaymentWatermark() (block uint64, timestamp uint64, err error)
	SetPaymentWatermark(block, timestamp uint64) error
	AddRedemptionTicket(agentID [20]byte, valueAMG *big.Int) (uint64, error)
}

// TokenLedger moves collateral and fee balances between native accounts.
type TokenLedger interface {
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
}

// AssetMinter mints the synthetic asset against proven underlying payments.
type AssetMinter interface {
	Mint(to [20]byte, amountUBA *big.Int) error
}

// LotSource reports an agent's remaining free minting capacity in lots.
type LotSource interface {
	FreeLotsForAgent(agent *types.Agent) (*big.Int, error)
}

// Engine drives the collateral reservation and minting state machine.
type Engine struct {
	state   engineState
	ledger  TokenLedger
	asset   AssetMinter
	lots    LotSource
	prices  oracle.PriceReader
	params  Params
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewEngine constructs a minting engine with a no-op emitter.
func NewEngine(prices oracle.PriceReader, lots LotSource, params Params) *Engine {
	return &Engine{
		prices:  prices,
		lots:    lots,
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the collateral token ledger.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetAssetMinter wires the synthetic asset token.
func (e *Engine) SetAssetMinter(minter AssetMinter) { e.asset = minter }

// SetPauses wires the emergency pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

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
	agent, err := e.state.GetAgent(id)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, errors.New("minting engine: unknown agent")
	}
	return agent.Normalize(), nil
}

func (e *Engine) loadReservation(id uint64) (*CollateralReservation, error) {
	cr, err := e.state.GetReservation(id)
	if err != nil {
		return nil, err
	}
	if cr == nil {
		return nil, ErrUnknownReservation
	}
	return cr.Normalize(), nil
}

func (e *Engine) lotValueAMG(lots uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(lots), new(big.Int).SetUint64(e.params.LotSizeAMG))
}

func mulBIPSDown(value *big.Int, bips uint64) *big.Int {
	out := new(big.Int).Mul(value, new(big.Int).SetUint64(bips))
	return out.Quo(out, big.NewInt(collateral.MaxBIPS))
}

func mulBIPSUp(value *big.Int, bips uint64) *big.Int {
	out := new(big.Int).Mul(value, new(big.Int).SetUint64(bips))
	out.Add(out, big.NewInt(collateral.MaxBIPS-1))
	return out.Quo(out, big.NewInt(collateral.MaxBIPS))
}

// reservationFeeWei is the pool-token fee escrowed for a reservation of the
// given underlying value, at current prices.
func (e *Engine) reservationFeeWei(valueUBA *big.Int) (*big.Int, error) {
	assetPrice, err := e.prices.GetPrice(e.params.AssetSymbol)
	if err != nil {
		return nil, err
	}
	poolPrice, err := e.prices.GetPrice(e.params.PoolTokenSymbol)
	if err != nil {
		return nil, err
	}
	valueWei := collateral.UBAToTokenWei(valueUBA, assetPrice, poolPrice, true)
	return mulBIPSUp(valueWei, e.params.CollateralReservationFeeBIPS), nil
}

// ReserveCollateral opens a reservation against a publicly available agent,
// locking collateral capacity and escrowing the reservation fee plus any
// executor fee. Returns the stored reservation carrying the payment reference
// and underlying payment window.
func (e *Engine) ReserveCollateral(minter, agentID [20]byte, lots, maxAgentFeeBIPS uint64, executor [20]byte, executorFeeWei, feePaidWei *big.Int) (*CollateralReservation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if lots == 0 {
		return nil, ErrInvalidLots
	}
	if executorFeeWei != nil && executorFeeWei.Sign() > 0 && executor == ([20]byte{}) {
		return nil, ErrExecutorFeeNoExecutor
	}
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != types.AgentNormal {
		return nil, ErrWrongAgentStatus
	}
	if !agent.PubliclyAvailable {
		return nil, ErrAgentNotAvailable
	}
	if agent.FeeBIPS > maxAgentFeeBIPS {
		return nil, ErrAgentFeeTooHigh
	}
	free, err := e.lots.FreeLotsForAgent(agent)
	if err != nil {
		return nil, err
	}
	if free.Cmp(new(big.Int).SetUint64(lots)) < 0 {
		return nil, ErrInsufficientFreeLots
	}

	valueAMG := e.lotValueAMG(lots)
	valueUBA := collateral.AMGToUBA(valueAMG, e.params.AMGUnitUBA)
	feeUBA := mulBIPSDown(valueUBA, agent.FeeBIPS)

	requiredFeeWei, err := e.reservationFeeWei(valueUBA)
	if err != nil {
		return nil, err
	}
	if feePaidWei == nil || feePaidWei.Cmp(requiredFeeWei) != 0 {
		return nil, ErrReservationFeeMismatch
	}

	escrowed := new(big.Int).Set(feePaidWei)
	if executorFeeWei != nil && executorFeeWei.Sign() > 0 {
		escrowed.Add(escrowed, executorFeeWei)
	}
	if err := e.ledger.Transfer(e.params.PoolTokenSymbol, minter, feeEscrow, escrowed); err != nil {
		return nil, err
	}

	id, err := e.state.NextReservationID()
	if err != nil {
		return nil, err
	}
	block, timestamp, err := e.state.UnderlyingCursor()
	if err != nil {
		return nil, err
	}
	lastBlock := block + e.params.UnderlyingBlocksForPayment
	lastTimestamp := timestamp + e.params.UnderlyingSecondsForPayment
	// Payment windows never regress behind outstanding reservations.
	wmBlock, wmTimestamp, err := e.state.PaymentWatermark()
	if err != nil {
		return nil, err
	}
	if lastBlock < wmBlock {
		lastBlock = wmBlock
	}
	if lastTimestamp < wmTimestamp {
		lastTimestamp = wmTimestamp
	}
	if err := e.state.SetPaymentWatermark(lastBlock, lastTimestamp); err != nil {
		return nil, err
	}

	executorFee := big.NewInt(0)
	if executorFeeWei != nil {
		executorFee = new(big.Int).Set(executorFeeWei)
	}
	cr := (&CollateralReservation{
		ID:                      id,
		AgentID:                 agentID,
		Minter:                  minter,
		Executor:                executor,
		ExecutorFeeWei:          executorFee,
		Lots:                    lots,
		ValueUBA:                valueUBA,
		FeeUBA:                  feeUBA,
		ReservationFeeWei:       new(big.Int).Set(feePaidWei),
		PaymentReference:        reference.Minting(id),
		FirstUnderlyingBlock:    block,
		LastUnderlyingBlock:     lastBlock,
		LastUnderlyingTimestamp: lastTimestamp,
		CreatedAt:               e.nowFn(),
	}).Normalize()

	agent.ReservedAMG = new(big.Int).Add(agent.ReservedAMG, valueAMG)
	if err := e.state.PutAgent(agent); err != nil {
		return nil, err
	}
	if err := e.state.PutReservation(cr); err != nil {
		return nil, err
	}
	e.emit(events.CollateralReserved{
		ReservationID: id,
		AgentID:       agentID,
		Minter:        minter,
		Lots:          lots,
		ValueUBA:      new(big.Int).Set(valueUBA),
		FeeUBA:        new(big.Int).Set(feeUBA),
		LastBlock:     lastBlock,
		LastTimestamp: lastTimestamp,
	})
	return cr, nil
}

// ExecuteMinting completes a reservation against a proven underlying payment.
// The underlying fee splits between the collateral pool (minted and added to
// the agent's backing) and the agent's tracked free balance; the escrowed
// reservation fee joins the pool collateral.
func (e *Engine) ExecuteMinting(caller [20]byte, proof oracle.PaymentProof, crID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	cr, err := e.loadReservation(crID)
	if err != nil {
		return err
	}
	agent, err := e.loadAgent(cr.AgentID)
	if err != nil {
		return err
	}
	if caller != cr.Minter && caller != cr.Executor && caller != agent.Owner {
		return ErrNotAuthorized
	}
	if proof.Status != oracle.PaymentSuccess {
		return ErrPaymentMismatch
	}
	if proof.Reference != cr.PaymentReference {
		return ErrPaymentMismatch
	}
	if proof.ReceivingAddress != agent.UnderlyingAddress {
		return ErrPaymentMismatch
	}
	owed := new(big.Int).Add(cr.ValueUBA, cr.FeeUBA)
	if proof.ReceivedUBA == nil || proof.ReceivedUBA.Cmp(owed) < 0 {
		return ErrPaymentMismatch
	}

	poolFeeUBA := mulBIPSDown(cr.FeeUBA, agent.PoolFeeShareBIPS)
	poolFeeAMG := collateral.UBAToAMG(poolFeeUBA, e.params.AMGUnitUBA)
	poolFeeMintUBA := collateral.AMGToUBA(poolFeeAMG, e.params.AMGUnitUBA)

	if err := e.asset.Mint(cr.Minter, cr.ValueUBA); err != nil {
		return err
	}
	if poolFeeMintUBA.Sign() > 0 {
		if err := e.asset.Mint(cr.AgentID, poolFeeMintUBA); err != nil {
			return err
		}
	}

	valueAMG := e.lotValueAMG(cr.Lots)
	mintedAMG := new(big.Int).Add(valueAMG, poolFeeAMG)
	agent.ReservedAMG = new(big.Int).Sub(agent.ReservedAMG, valueAMG)
	agent.MintedAMG = new(big.Int).Add(agent.MintedAMG, mintedAMG)
	// Whatever arrived beyond the backed amount is the agent's to keep.
	freeDelta := new(big.Int).Sub(proof.ReceivedUBA, cr.ValueUBA)
	freeDelta.Sub(freeDelta, poolFeeMintUBA)
	agent.FreeUnderlyingUBA = new(big.Int).Add(agent.FreeUnderlyingUBA, freeDelta)

	ticketID, err := e.state.AddRedemptionTicket(cr.AgentID, mintedAMG)
	if err != nil {
		return err
	}

	if cr.ReservationFeeWei.Sign() > 0 {
		if err := e.ledger.Transfer(e.params.PoolTokenSymbol, feeEscrow, cr.AgentID, cr.ReservationFeeWei); err != nil {
			return err
		}
		agent.PoolCollateralWei = new(big.Int).Add(agent.PoolCollateralWei, cr.ReservationFeeWei)
	}
	if cr.ExecutorFeeWei.Sign() > 0 {
		dest := burnAddress
		if caller == cr.Executor {
			dest = cr.Executor
		}
		if err := e.ledger.Transfer(e.params.PoolTokenSymbol, feeEscrow, dest, cr.ExecutorFeeWei); err != nil {
			return err
		}
	}

	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	if err := e.state.DeleteReservation(crID); err != nil {
		return err
	}
	e.emit(events.MintingExecuted{
		ReservationID: crID,
		AgentID:       cr.AgentID,
		Minter:        cr.Minter,
		MintedUBA:     new(big.Int).Add(cr.ValueUBA, poolFeeMintUBA),
		AgentFeeUBA:   new(big.Int).Set(freeDelta),
		PoolFeeUBA:    poolFeeMintUBA,
		TicketID:      ticketID,
	})
	return nil
}

// releaseReservation undoes the capacity lock and distributes the forfeited
// reservation fee between pool and agent owner, refunding any executor fee to
// the minter. Shared by default and unstick.
func (e *Engine) releaseReservation(agent *types.Agent, cr *CollateralReservation) error {
	valueAMG := e.lotValueAMG(cr.Lots)
	agent.ReservedAMG = new(big.Int).Sub(agent.ReservedAMG, valueAMG)

	if cr.ReservationFeeWei.Sign() > 0 {
		poolShare := mulBIPSDown(cr.ReservationFeeWei, agent.PoolFeeShareBIPS)
		ownerShare := new(big.Int).Sub(cr.ReservationFeeWei, poolShare)
		if poolShare.Sign() > 0 {
			if err := e.ledger.Transfer(e.params.PoolTokenSymbol, feeEscrow, cr.AgentID, poolShare); err != nil {
				return err
			}
			agent.PoolCollateralWei = new(big.Int).Add(agent.PoolCollateralWei, poolShare)
		}
		if ownerShare.Sign() > 0 {
			if err := e.ledger.Transfer(e.params.PoolTokenSymbol, feeEscrow, agent.Owner, ownerShare); err != nil {
				return err
			}
		}
	}
	if cr.ExecutorFeeWei.Sign() > 0 {
		if err := e.ledger.Transfer(e.params.PoolTokenSymbol, feeEscrow, cr.Minter, cr.ExecutorFeeWei); err != nil {
			return err
		}
	}
	return e.state.PutAgent(agent)
}

// MintingPaymentDefault closes an overdue reservation against a proven
// non-payment. The reservation fee forfeits to the agent side.
func (e *Engine) MintingPaymentDefault(caller [20]byte, proof oracle.NonPaymentProof, crID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	cr, err := e.loadReservation(crID)
	if err != nil {
		return err
	}
	agent, err := e.loadAgent(cr.AgentID)
	if err != nil {
		return err
	}
	if caller != agent.Owner {
		return ErrNotAuthorized
	}
	if proof.LastCheckedBlock <= cr.LastUnderlyingBlock || proof.LastCheckedTimestamp <= cr.LastUnderlyingTimestamp {
		return ErrDefaultTooEarly
	}
	if proof.Reference != cr.PaymentReference {
		return ErrNonPaymentMismatch
	}
	if proof.DestinationAddress != agent.UnderlyingAddress {
		return ErrNonPaymentMismatch
	}
	owed := new(big.Int).Add(cr.ValueUBA, cr.FeeUBA)
	if proof.AmountUBA == nil || proof.AmountUBA.Cmp(owed) != 0 {
		return ErrNonPaymentMismatch
	}
	if proof.LowestQueryWindowBlock > cr.FirstUnderlyingBlock {
		return ErrProofWindowTooShort
	}

	if err := e.releaseReservation(agent, cr); err != nil {
		return err
	}
	if err := e.state.DeleteReservation(crID); err != nil {
		return err
	}
	e.emit(events.MintingDefaulted{
		ReservationID: crID,
		AgentID:       cr.AgentID,
		ForfeitWei:    new(big.Int).Set(cr.ReservationFeeWei),
	})
	return nil
}

// UnstickMinting force-closes a reservation whose payment window can no longer
// be attested either way. The agent owner pays a premium over the reserved
// value, burned, to recover the locked capacity.
func (e *Engine) UnstickMinting(caller [20]byte, proof oracle.BlockHeightProof, crID uint64, paidWei *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	cr, err := e.loadReservation(crID)
	if err != nil {
		return err
	}
	agent, err := e.loadAgent(cr.AgentID)
	if err != nil {
		return err
	}
	if caller != agent.Owner {
		return ErrNotAuthorized
	}
	// Only once the attestation window has moved past the reservation's
	// payment window is a non-payment proof impossible to obtain.
	if proof.LowestQueryWindowBlock <= cr.LastUnderlyingBlock {
		return ErrUnstickTooEarly
	}
	assetPrice, err := e.prices.GetPrice(e.params.AssetSymbol)
	if err != nil {
		return err
	}
	vaultPrice, err := e.prices.GetPrice(agent.VaultToken)
	if err != nil {
		return err
	}
	valueWei := collateral.UBAToTokenWei(cr.ValueUBA, assetPrice, vaultPrice, true)
	requiredWei := mulBIPSUp(valueWei, e.params.VaultCollateralBuyForFlareFactorBIPS)
	if paidWei == nil || paidWei.Cmp(requiredWei) < 0 {
		return ErrInsufficientUnstick
	}
	if err := e.ledger.Transfer(agent.VaultToken, caller, burnAddress, paidWei); err != nil {
		return err
	}

	if err := e.releaseReservation(agent, cr); err != nil {
		return err
	}
	if err := e.state.DeleteReservation(crID); err != nil {
		return err
	}
	e.emit(events.MintingUnstuck{
		ReservationID: crID,
		AgentID:       cr.AgentID,
		PaidWei:       new(big.Int).Set(paidWei),
	})
	return nil
}

// SelfMint mints against the agent's own proven payment, without a prior
// reservation. Zero lots degenerates to a pure free-underlying topup.
func (e *Engine) SelfMint(caller [20]byte, proof oracle.PaymentProof, agentID [20]byte, lots uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if caller != agent.Owner {
		return ErrNotAuthorized
	}
	if agent.Status != types.AgentNormal {
		return ErrWrongAgentStatus
	}
	if proof.Status != oracle.PaymentSuccess {
		return ErrSelfMintMismatch
	}
	if proof.Reference != reference.SelfMint(agentID) {
		return ErrSelfMintMismatch
	}
	if proof.ReceivingAddress != agent.UnderlyingAddress {
		return ErrSelfMintMismatch
	}
	received := proof.ReceivedUBA
	if received == nil || received.Sign() <= 0 {
		return ErrSelfMintMismatch
	}

	valueAMG := e.lotValueAMG(lots)
	valueUBA := collateral.AMGToUBA(valueAMG, e.params.AMGUnitUBA)
	if received.Cmp(valueUBA) < 0 {
		return ErrSelfMintMismatch
	}

	var ticketID uint64
	if lots > 0 {
		free, err := e.lots.FreeLotsForAgent(agent)
		if err != nil {
			return err
		}
		if free.Cmp(new(big.Int).SetUint64(lots)) < 0 {
			return ErrInsufficientFreeLots
		}
		if err := e.asset.Mint(agent.Owner, valueUBA); err != nil {
			return err
		}
		agent.MintedAMG = new(big.Int).Add(agent.MintedAMG, valueAMG)
		ticketID, err = e.state.AddRedemptionTicket(agentID, valueAMG)
		if err != nil {
			return err
		}
	}
	topupUBA := new(big.Int).Sub(received, valueUBA)
	agent.FreeUnderlyingUBA = new(big.Int).Add(agent.FreeUnderlyingUBA, topupUBA)

	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	e.emit(events.SelfMinted{
		AgentID:   agentID,
		MintedUBA: new(big.Int).Set(valueUBA),
		TopupUBA:  topupUBA,
		TicketID:  ticketID,
	})
	return nil
}
