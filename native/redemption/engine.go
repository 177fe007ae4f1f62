package redemption

import (
	"errors"
	"math/big"
	"strings"
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
	errNilState = errors.New("redemption engine: state not configured")

	ErrUnknownAgent          = errors.New("redemption engine: unknown agent")
	ErrUnknownRequest        = errors.New("redemption engine: unknown request")
	ErrInvalidLots           = errors.New("redemption engine: lots must be positive")
	ErrInvalidAddress        = errors.New("redemption engine: empty underlying address")
	ErrInvalidAmount         = errors.New("redemption engine: amount must be positive")
	ErrExecutorFeeNoExecutor = errors.New("redemption engine: executor fee without executor")
	ErrNoBackingTickets      = errors.New("redemption engine: no redeemable tickets")
	ErrNotAuthorized         = errors.New("redemption engine: caller not authorized")
	ErrWrongRequestStatus    = errors.New("redemption engine: wrong request status")
	ErrPaymentMismatch       = errors.New("redemption engine: payment proof does not match request")
	ErrDefaultTooEarly       = errors.New("redemption engine: payment window still open")
	ErrNonPaymentMismatch    = errors.New("redemption engine: non-payment proof does not match request")
	ErrProofWindowTooShort   = errors.New("redemption engine: proof window does not cover request")
	ErrStillProvable         = errors.New("redemption engine: request window still attestable")
	ErrRejectNotAllowed      = errors.New("redemption engine: address validity proof does not justify rejection")
)

const moduleName = "redemption"

// feeEscrow holds executor fees while a request is open.
var feeEscrow = func() [20]byte {
	var addr [20]byte
	hash := ethcrypto.Keccak256([]byte("bridgemint/redemption/escrow"))
	copy(addr[:], hash[12:])
	return addr
}()

var burnAddress [20]byte

// Params carries the protocol settings the redemption engine depends on.
type Params struct {
	AssetSymbol                       string
	PoolTokenSymbol                   string
	LotSizeAMG                        uint64
	AMGUnitUBA                        uint64
	RedemptionFeeBIPS                 uint64
	UnderlyingBlocksForPayment        uint64
	UnderlyingSecondsForPayment       uint64
	RedemptionPaymentExtensionSeconds uint64
	RedemptionDefaultFactorVaultBIPS  uint64
	RedemptionDefaultFactorPoolBIPS   uint64
	ConfirmationByOthersAfterSeconds  int64
}

type engineState interface {
	GetAgent(id [20]byte) (*types.Agent, error)
	PutAgent(agent *types.Agent) error
	GetRequest(id uint64) (*RedemptionRequest, error)
	PutRequest(req *RedemptionRequest) error
	NextRequestID() (uint64, error)
	TicketsOldestFirst() ([]*RedemptionTicket, error)
	AgentTicketsOldestFirst(agentID [20]byte) ([]*RedemptionTicket, error)
	PutTicket(ticket *RedemptionTicket) error
	DeleteTicket(id uint64) error
	UnderlyingCursor() (block uint64, timestamp uint64, err error)
	RedemptionWatermark(agentID [20]byte) (block uint64, timestamp uint64, err error)
	SetRedemptionWatermark(agentID [20]byte, block, timestamp uint64) error
}

// TokenLedger moves collateral and fee balances between native accounts.
type TokenLedger interface {
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
}

// AssetBurner burns the synthetic asset when backing is released.
type AssetBurner interface {
	Burn(from [20]byte, amountUBA *big.Int) error
}

// Engine drives the redemption ticket queue and request state machine.
type Engine struct {
	state   engineState
	ledger  TokenLedger
	asset   AssetBurner
	prices  oracle.PriceReader
	params  Params
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewEngine constructs a redemption engine with a no-op emitter.
func NewEngine(prices oracle.PriceReader, params Params) *Engine {
	return &Engine{
		prices:  prices,
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the collateral token ledger.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetAssetBurner wires the synthetic asset token.
func (e *Engine) SetAssetBurner(burner AssetBurner) { e.asset = burner }

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
		return nil, ErrUnknownAgent
	}
	return agent.Normalize(), nil
}

func (e *Engine) loadRequest(id uint64) (*RedemptionRequest, error) {
	req, err := e.state.GetRequest(id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrUnknownRequest
	}
	return req.Normalize(), nil
}

func mulBIPSDown(value *big.Int, bips uint64) *big.Int {
	out := new(big.Int).Mul(value, new(big.Int).SetUint64(bips))
	return out.Quo(out, big.NewInt(collateral.MaxBIPS))
}

func (e *Engine) amgToUBA(valueAMG *big.Int) *big.Int {
	return collateral.AMGToUBA(valueAMG, e.params.AMGUnitUBA)
}

func (e *Engine) ubaToAMG(valueUBA *big.Int) *big.Int {
	return collateral.UBAToAMG(valueUBA, e.params.AMGUnitUBA)
}

// paymentWindow computes the underlying payment deadline for a new request
// against the agent. Deadlines per agent never regress and each outstanding
// request pushes the next deadline out by the payment extension (floored at
// one second).
func (e *Engine) paymentWindow(agentID [20]byte) (first, last, lastTimestamp uint64, err error) {
	block, timestamp, err := e.state.UnderlyingCursor()
	if err != nil {
		return 0, 0, 0, err
	}
	last = block + e.params.UnderlyingBlocksForPayment
	lastTimestamp = timestamp + e.params.UnderlyingSecondsForPayment
	wmBlock, wmTimestamp, err := e.state.RedemptionWatermark(agentID)
	if err != nil {
		return 0, 0, 0, err
	}
	extension := e.params.RedemptionPaymentExtensionSeconds
	if extension == 0 {
		extension = 1
	}
	if last < wmBlock {
		last = wmBlock
	}
	if wmTimestamp > 0 && lastTimestamp < wmTimestamp+extension {
		lastTimestamp = wmTimestamp + extension
	}
	if err := e.state.SetRedemptionWatermark(agentID, last, lastTimestamp); err != nil {
		return 0, 0, 0, err
	}
	return block, last, lastTimestamp, nil
}

type agentSlice struct {
	agentID  [20]byte
	valueAMG *big.Int
}

// ticketPlan stages queue mutations so the tickets stay untouched until the
// caller's burn succeeds.
type ticketPlan struct {
	deletes []uint64
	updates []*RedemptionTicket
}

func (e *Engine) applyTicketPlan(plan *ticketPlan) error {
	for _, id := range plan.deletes {
		if err := e.state.DeleteTicket(id); err != nil {
			return err
		}
	}
	for _, ticket := range plan.updates {
		if err := e.state.PutTicket(ticket); err != nil {
			return err
		}
	}
	return nil
}

// consumeTickets walks tickets oldest-first, taking whole-lot amounts up to
// remainingAMG. Sub-lot ticket remainders stay queued as dust. Returns the
// per-agent slices in first-touch order plus the staged queue mutations; no
// state is written here.
func (e *Engine) consumeTickets(tickets []*RedemptionTicket, remainingAMG *big.Int, lotAligned bool) ([]agentSlice, *big.Int, *ticketPlan) {
	lotAMG := new(big.Int).SetUint64(e.params.LotSizeAMG)
	remaining := new(big.Int).Set(remainingAMG)
	total := big.NewInt(0)
	plan := &ticketPlan{}
	var order []agentSlice
	index := make(map[[20]byte]int)

	for _, ticket := range tickets {
		if remaining.Sign() == 0 {
			break
		}
		available := new(big.Int).Set(ticket.ValueAMG)
		if lotAligned {
			available.Quo(available, lotAMG)
			available.Mul(available, lotAMG)
		}
		if available.Sign() == 0 {
			continue
		}
		take := available
		if take.Cmp(remaining) > 0 {
			take = new(big.Int).Set(remaining)
		}
		left := new(big.Int).Sub(ticket.ValueAMG, take)
		if left.Sign() == 0 {
			plan.deletes = append(plan.deletes, ticket.ID)
		} else {
			updated := ticket.Clone()
			updated.ValueAMG = left
			plan.updates = append(plan.updates, updated)
		}
		if i, ok := index[ticket.AgentID]; ok {
			order[i].valueAMG.Add(order[i].valueAMG, take)
		} else {
			index[ticket.AgentID] = len(order)
			order = append(order, agentSlice{agentID: ticket.AgentID, valueAMG: new(big.Int).Set(take)})
		}
		remaining.Sub(remaining, take)
		total.Add(total, take)
	}
	return order, total, plan
}

// Redeem burns the redeemer's synthetic assets and opens one redemption
// request per agent whose tickets were consumed, oldest tickets first. A
// partial fill is returned when the queue holds fewer lots than requested.
func (e *Engine) Redeem(redeemer [20]byte, lots uint64, underlyingAddress string, executor [20]byte, executorFeeWei *big.Int) ([]*RedemptionRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if lots == 0 {
		return nil, ErrInvalidLots
	}
	if strings.TrimSpace(underlyingAddress) == "" {
		return nil, ErrInvalidAddress
	}
	if executorFeeWei != nil && executorFeeWei.Sign() > 0 && executor == ([20]byte{}) {
		return nil, ErrExecutorFeeNoExecutor
	}

	tickets, err := e.state.TicketsOldestFirst()
	if err != nil {
		return nil, err
	}
	requestedAMG := new(big.Int).Mul(new(big.Int).SetUint64(lots), new(big.Int).SetUint64(e.params.LotSizeAMG))
	slices, totalAMG, plan := e.consumeTickets(tickets, requestedAMG, true)
	if totalAMG.Sign() == 0 {
		return nil, ErrNoBackingTickets
	}

	// Burn and escrow before touching the queue: a redeemer who cannot pay
	// must leave the tickets exactly as they were.
	if err := e.asset.Burn(redeemer, e.amgToUBA(totalAMG)); err != nil {
		return nil, err
	}

	executorFee := big.NewInt(0)
	if executorFeeWei != nil && executorFeeWei.Sign() > 0 {
		executorFee = new(big.Int).Set(executorFeeWei)
		if err := e.ledger.Transfer(e.params.PoolTokenSymbol, redeemer, feeEscrow, executorFee); err != nil {
			return nil, err
		}
	}

	if err := e.applyTicketPlan(plan); err != nil {
		return nil, err
	}

	// The executor fee splits evenly across requests, remainder on the first.
	count := int64(len(slices))
	feeShare := new(big.Int).Quo(executorFee, big.NewInt(count))
	firstShare := new(big.Int).Sub(executorFee, new(big.Int).Mul(feeShare, big.NewInt(count-1)))

	now := e.nowFn()
	requests := make([]*RedemptionRequest, 0, len(slices))
	for i, slice := range slices {
		agent, err := e.loadAgent(slice.agentID)
		if err != nil {
			return nil, err
		}
		valueUBA := e.amgToUBA(slice.valueAMG)
		feeUBA := mulBIPSDown(valueUBA, e.params.RedemptionFeeBIPS)
		id, err := e.state.NextRequestID()
		if err != nil {
			return nil, err
		}
		first, last, lastTimestamp, err := e.paymentWindow(slice.agentID)
		if err != nil {
			return nil, err
		}
		share := feeShare
		if i == 0 {
			share = firstShare
		}
		req := (&RedemptionRequest{
			ID:                      id,
			AgentID:                 slice.agentID,
			Redeemer:                redeemer,
			UnderlyingAddress:       strings.TrimSpace(underlyingAddress),
			ValueUBA:                valueUBA,
			FeeUBA:                  feeUBA,
			PaymentReference:        reference.Redemption(id),
			FirstUnderlyingBlock:    first,
			LastUnderlyingBlock:     last,
			LastUnderlyingTimestamp: lastTimestamp,
			Executor:                executor,
			ExecutorFeeWei:          new(big.Int).Set(share),
			Status:                  RequestActive,
			CreatedAt:               now,
		}).Normalize()

		agent.MintedAMG = new(big.Int).Sub(agent.MintedAMG, slice.valueAMG)
		agent.RedeemingAMG = new(big.Int).Add(agent.RedeemingAMG, slice.valueAMG)
		if err := e.state.PutAgent(agent); err != nil {
			return nil, err
		}
		if err := e.state.PutRequest(req); err != nil {
			return nil, err
		}
		e.emit(events.RedemptionRequested{
			RequestID:         id,
			AgentID:           slice.agentID,
			Redeemer:          redeemer,
			UnderlyingAddress: req.UnderlyingAddress,
			ValueUBA:          new(big.Int).Set(valueUBA),
			FeeUBA:            new(big.Int).Set(feeUBA),
			LastBlock:         last,
			LastTimestamp:     lastTimestamp,
		})
		requests = append(requests, req)
	}
	return requests, nil
}

// releaseRedeeming moves the request's backing out of the redeeming bucket.
func (e *Engine) releaseRedeeming(agent *types.Agent, req *RedemptionRequest) {
	valueAMG := e.ubaToAMG(req.ValueUBA)
	agent.RedeemingAMG = new(big.Int).Sub(agent.RedeemingAMG, valueAMG)
}

// payDefault compensates the redeemer from vault and pool collateral at the
// configured default premium factors, clipped to the available balances.
func (e *Engine) payDefault(agent *types.Agent, req *RedemptionRequest) (vaultPaid, poolPaid *big.Int, err error) {
	assetPrice, err := e.prices.GetPrice(e.params.AssetSymbol)
	if err != nil {
		return nil, nil, err
	}
	vaultPrice, err := e.prices.GetPrice(agent.VaultToken)
	if err != nil {
		return nil, nil, err
	}
	poolPrice, err := e.prices.GetPrice(e.params.PoolTokenSymbol)
	if err != nil {
		return nil, nil, err
	}
	paymentUBA := req.PaymentValueUBA()

	vaultPaid = mulBIPSDown(collateral.UBAToTokenWei(paymentUBA, assetPrice, vaultPrice, false), e.params.RedemptionDefaultFactorVaultBIPS)
	if vaultPaid.Cmp(agent.VaultCollateralWei) > 0 {
		vaultPaid = new(big.Int).Set(agent.VaultCollateralWei)
	}
	poolPaid = mulBIPSDown(collateral.UBAToTokenWei(paymentUBA, assetPrice, poolPrice, false), e.params.RedemptionDefaultFactorPoolBIPS)
	if poolPaid.Cmp(agent.PoolCollateralWei) > 0 {
		poolPaid = new(big.Int).Set(agent.PoolCollateralWei)
	}

	if vaultPaid.Sign() > 0 {
		if err := e.ledger.Transfer(agent.VaultToken, agent.ID, req.Redeemer, vaultPaid); err != nil {
			return nil, nil, err
		}
		agent.VaultCollateralWei = new(big.Int).Sub(agent.VaultCollateralWei, vaultPaid)
	}
	if poolPaid.Sign() > 0 {
		if err := e.ledger.Transfer(e.params.PoolTokenSymbol, agent.ID, req.Redeemer, poolPaid); err != nil {
			return nil, nil, err
		}
		agent.PoolCollateralWei = new(big.Int).Sub(agent.PoolCollateralWei, poolPaid)
	}
	return vaultPaid, poolPaid, nil
}

func (e *Engine) refundExecutorFee(req *RedemptionRequest, to [20]byte) error {
	if req.ExecutorFeeWei.Sign() == 0 {
		return nil
	}
	return e.ledger.Transfer(e.params.PoolTokenSymbol, feeEscrow, to, req.ExecutorFeeWei)
}

// ConfirmRedemptionPayment settles a request against the proven underlying
// payment. The agent owner may confirm immediately; anyone else only after the
// confirmation grace period, which keeps the agent's balance tracking honest
// even when the agent disappears.
func (e *Engine) ConfirmRedemptionPayment(caller [20]byte, proof oracle.PaymentProof, requestID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	req, err := e.loadRequest(requestID)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		return ErrWrongRequestStatus
	}
	agent, err := e.loadAgent(req.AgentID)
	if err != nil {
		return err
	}
	if caller != agent.Owner && e.nowFn()-req.CreatedAt < e.params.ConfirmationByOthersAfterSeconds {
		return ErrNotAuthorized
	}
	if proof.Reference != req.PaymentReference {
		return ErrPaymentMismatch
	}
	spent := proof.SpentUBA
	if spent == nil {
		spent = big.NewInt(0)
	}

	// A late payment after a default only adjusts the balance tracking; the
	// redeemer was already compensated in collateral.
	if req.Status == RequestDefaultedUnconfirmed {
		agent.FreeUnderlyingUBA = new(big.Int).Sub(agent.FreeUnderlyingUBA, spent)
		req.Status = RequestDefaultedFailed
		if err := e.state.PutAgent(agent); err != nil {
			return err
		}
		return e.state.PutRequest(req)
	}

	paymentValue := req.PaymentValueUBA()
	paidInFull := proof.Status == oracle.PaymentSuccess &&
		proof.ReceivingAddress == req.UnderlyingAddress &&
		proof.ReceivedUBA != nil && proof.ReceivedUBA.Cmp(paymentValue) >= 0

	e.releaseRedeeming(agent, req)
	agent.FreeUnderlyingUBA = new(big.Int).Add(agent.FreeUnderlyingUBA, new(big.Int).Sub(req.ValueUBA, spent))

	switch {
	case paidInFull:
		req.Status = RequestSuccessful
		if req.ExecutorFeeWei.Sign() > 0 {
			dest := burnAddress
			if caller == req.Executor {
				dest = req.Executor
			}
			if err := e.ledger.Transfer(e.params.PoolTokenSymbol, feeEscrow, dest, req.ExecutorFeeWei); err != nil {
				return err
			}
		}
		e.emit(events.RedemptionPerformed{RequestID: requestID, AgentID: req.AgentID, PaidUBA: new(big.Int).Set(proof.ReceivedUBA)})
	case proof.Status == oracle.PaymentBlocked:
		// Blocked on the receiving side: the agent keeps the value.
		req.Status = RequestBlocked
		if err := e.refundExecutorFee(req, req.Redeemer); err != nil {
			return err
		}
		e.emit(events.RedemptionFailed{RequestID: requestID, AgentID: req.AgentID, Blocked: true})
	default:
		// Failed, short, or misdirected payment: compensate in collateral.
		if _, _, err := e.payDefault(agent, req); err != nil {
			return err
		}
		req.Status = RequestDefaultedFailed
		if err := e.refundExecutorFee(req, req.Redeemer); err != nil {
			return err
		}
		e.emit(events.RedemptionFailed{RequestID: requestID, AgentID: req.AgentID, Blocked: false})
	}

	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	return e.state.PutRequest(req)
}

// RedemptionPaymentDefault compensates the redeemer in collateral against a
// proven non-payment. The request stays confirmable so a late payment can
// still be accounted against the agent's underlying balance.
func (e *Engine) RedemptionPaymentDefault(caller [20]byte, proof oracle.NonPaymentProof, requestID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	req, err := e.loadRequest(requestID)
	if err != nil {
		return err
	}
	if req.Status != RequestActive {
		return ErrWrongRequestStatus
	}
	agent, err := e.loadAgent(req.AgentID)
	if err != nil {
		return err
	}
	if caller != req.Redeemer && caller != req.Executor && caller != agent.Owner {
		return ErrNotAuthorized
	}
	if proof.LastCheckedBlock <= req.LastUnderlyingBlock || proof.LastCheckedTimestamp <= req.LastUnderlyingTimestamp {
		return ErrDefaultTooEarly
	}
	if proof.Reference != req.PaymentReference {
		return ErrNonPaymentMismatch
	}
	if proof.DestinationAddress != req.UnderlyingAddress {
		return ErrNonPaymentMismatch
	}
	if proof.AmountUBA == nil || proof.AmountUBA.Cmp(req.PaymentValueUBA()) != 0 {
		return ErrNonPaymentMismatch
	}
	if proof.LowestQueryWindowBlock > req.FirstUnderlyingBlock {
		return ErrProofWindowTooShort
	}

	vaultPaid, poolPaid, err := e.payDefault(agent, req)
	if err != nil {
		return err
	}
	e.releaseRedeeming(agent, req)
	// The agent never paid, so the backed underlying becomes its free balance.
	agent.FreeUnderlyingUBA = new(big.Int).Add(agent.FreeUnderlyingUBA, req.ValueUBA)
	if err := e.refundExecutorFee(req, req.Redeemer); err != nil {
		return err
	}
	req.Status = RequestDefaultedUnconfirmed

	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	if err := e.state.PutRequest(req); err != nil {
		return err
	}
	e.emit(events.RedemptionDefaulted{
		RequestID:    requestID,
		AgentID:      req.AgentID,
		VaultPaidWei: vaultPaid,
		PoolPaidWei:  poolPaid,
	})
	return nil
}

// FinishRedemptionWithoutPayment closes a request whose payment window can no
// longer be attested either way, defaulting it first if still active.
func (e *Engine) FinishRedemptionWithoutPayment(caller [20]byte, proof oracle.BlockHeightProof, requestID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	req, err := e.loadRequest(requestID)
	if err != nil {
		return err
	}
	agent, err := e.loadAgent(req.AgentID)
	if err != nil {
		return err
	}
	if caller != agent.Owner {
		return ErrNotAuthorized
	}
	if proof.LowestQueryWindowBlock <= req.LastUnderlyingBlock {
		return ErrStillProvable
	}
	switch req.Status {
	case RequestActive:
		vaultPaid, poolPaid, err := e.payDefault(agent, req)
		if err != nil {
			return err
		}
		e.releaseRedeeming(agent, req)
		agent.FreeUnderlyingUBA = new(big.Int).Add(agent.FreeUnderlyingUBA, req.ValueUBA)
		if err := e.refundExecutorFee(req, req.Redeemer); err != nil {
			return err
		}
		req.Status = RequestDefaultedFailed
		if err := e.state.PutAgent(agent); err != nil {
			return err
		}
		if err := e.state.PutRequest(req); err != nil {
			return err
		}
		e.emit(events.RedemptionDefaulted{RequestID: requestID, AgentID: req.AgentID, VaultPaidWei: vaultPaid, PoolPaidWei: poolPaid})
		return nil
	case RequestDefaultedUnconfirmed:
		req.Status = RequestDefaultedFailed
		return e.state.PutRequest(req)
	default:
		return ErrWrongRequestStatus
	}
}

// RejectRedemptionRequest lets the agent prove the redeemer supplied an
// invalid underlying address. The redeemer is compensated as in a default.
func (e *Engine) RejectRedemptionRequest(caller [20]byte, proof oracle.AddressValidityProof, requestID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	req, err := e.loadRequest(requestID)
	if err != nil {
		return err
	}
	if req.Status != RequestActive {
		return ErrWrongRequestStatus
	}
	agent, err := e.loadAgent(req.AgentID)
	if err != nil {
		return err
	}
	if caller != agent.Owner {
		return ErrNotAuthorized
	}
	if proof.Address != req.UnderlyingAddress || proof.IsValid {
		return ErrRejectNotAllowed
	}

	if _, _, err := e.payDefault(agent, req); err != nil {
		return err
	}
	e.releaseRedeeming(agent, req)
	agent.FreeUnderlyingUBA = new(big.Int).Add(agent.FreeUnderlyingUBA, req.ValueUBA)
	if err := e.refundExecutorFee(req, req.Redeemer); err != nil {
		return err
	}
	req.Status = RequestRejected

	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	if err := e.state.PutRequest(req); err != nil {
		return err
	}
	e.emit(events.RedemptionRejected{RequestID: requestID, AgentID: req.AgentID})
	return nil
}

// SelfClose burns the agent owner's own synthetic assets against the agent's
// queued tickets, releasing backing and freeing the matching underlying.
func (e *Engine) SelfClose(caller, agentID [20]byte, amountUBA *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if amountUBA == nil || amountUBA.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return nil, err
	}
	if caller != agent.Owner {
		return nil, ErrNotAuthorized
	}
	tickets, err := e.state.AgentTicketsOldestFirst(agentID)
	if err != nil {
		return nil, err
	}
	// Self-close works at full granularity so agents can clear ticket dust.
	_, closedAMG, plan := e.consumeTickets(tickets, e.ubaToAMG(amountUBA), false)
	if closedAMG.Sign() == 0 {
		return nil, ErrNoBackingTickets
	}
	closedUBA := e.amgToUBA(closedAMG)
	// Burn first so a short balance leaves the queue untouched.
	if err := e.asset.Burn(caller, closedUBA); err != nil {
		return nil, err
	}
	if err := e.applyTicketPlan(plan); err != nil {
		return nil, err
	}
	agent.MintedAMG = new(big.Int).Sub(agent.MintedAMG, closedAMG)
	agent.FreeUnderlyingUBA = new(big.Int).Add(agent.FreeUnderlyingUBA, closedUBA)
	if err := e.state.PutAgent(agent); err != nil {
		return nil, err
	}
	e.emit(events.SelfClosed{AgentID: agentID, ClosedUBA: new(big.Int).Set(closedUBA)})
	return closedUBA, nil
}
