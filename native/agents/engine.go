package agents

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
	errNilState = errors.New("agents engine: state not configured")

	ErrUnknownAgent          = errors.New("agents engine: unknown agent")
	ErrAgentExists           = errors.New("agents engine: agent already exists")
	ErrNotOwner              = errors.New("agents engine: caller is not the agent owner")
	ErrWrongStatus           = errors.New("agents engine: wrong agent status for operation")
	ErrInvalidAmount         = errors.New("agents engine: amount must be positive")
	ErrInvalidAddressProof   = errors.New("agents engine: underlying address proof invalid")
	ErrWithdrawalPending     = errors.New("agents engine: withdrawal already announced")
	ErrNoWithdrawalAnnounced = errors.New("agents engine: no withdrawal announced")
	ErrWithdrawalTooEarly    = errors.New("agents engine: withdrawal wait not elapsed")
	ErrUnderCollateralized   = errors.New("agents engine: operation would under-collateralize agent")
	ErrExposureOutstanding   = errors.New("agents engine: agent still backs outstanding exposure")
	ErrDestroyNotAnnounced   = errors.New("agents engine: destruction not announced")
	ErrDestroyTooEarly       = errors.New("agents engine: destruction timelock not elapsed")
	ErrFeeOutOfRange         = errors.New("agents engine: fee out of range")
	ErrTopupMismatch         = errors.New("agents engine: topup proof does not match agent")
	ErrSwitchNotAllowed      = errors.New("agents engine: vault collateral switch not allowed")
)

const moduleName = "agents"

// Params carries the protocol settings the lifecycle engine depends on.
type Params struct {
	AssetSymbol                     string
	PoolTokenSymbol                 string
	LotSizeAMG                      uint64
	AMGUnitUBA                      uint64
	WithdrawalWaitMinSeconds        int64
	AgentTimelockedOpsWindowSeconds int64
}

type engineState interface {
	GetAgent(id [20]byte) (*types.Agent, error)
	PutAgent(agent *types.Agent) error
	DeleteAgent(id [20]byte) error
	NextAnnouncementID() (uint64, error)
}

// TokenLedger is the collateral token ledger surface the engine consumes.
// Balances move between native accounts; agent vaults hold their collateral
// under their own agent identifier.
type TokenLedger interface {
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
}

// Engine orchestrates agent vault lifecycle transitions.
type Engine struct {
	state    engineState
	ledger   TokenLedger
	registry *collateral.Registry
	prices   oracle.PriceReader
	params   Params
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	nowFn    func() int64
}

// NewEngine constructs an agents engine with a no-op emitter.
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

func (e *Engine) now() int64 { return e.nowFn() }

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
	agent.Normalize()
	e.applyPendingSettings(agent)
	return agent, nil
}

func (e *Engine) applyPendingSettings(agent *types.Agent) {
	now := e.now()
	if pending := agent.PendingFeeBIPS; pending != nil && now >= pending.EffectiveAt {
		agent.FeeBIPS = pending.Value
		agent.PendingFeeBIPS = nil
	}
	if pending := agent.PendingPoolFeeShareBIPS; pending != nil && now >= pending.EffectiveAt {
		agent.PoolFeeShareBIPS = pending.Value
		agent.PendingPoolFeeShareBIPS = nil
	}
}

func requireOwner(agent *types.Agent, caller [20]byte) error {
	if agent.Owner != caller {
		return ErrNotOwner
	}
	return nil
}

// CreateAgent registers a new agent vault. The underlying address must come
// with a validity attestation and the vault collateral type must not be
// deprecated.
func (e *Engine) CreateAgent(owner [20]byte, addressProof oracle.AddressValidityProof, vaultToken string, feeBIPS, poolFeeShareBIPS uint64) (*types.Agent, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !addressProof.IsValid || strings.TrimSpace(addressProof.Address) == "" {
		return nil, ErrInvalidAddressProof
	}
	underlying := addressProof.StandardAddress
	if strings.TrimSpace(underlying) == "" {
		underlying = strings.TrimSpace(addressProof.Address)
	}
	if feeBIPS > collateral.MaxBIPS || poolFeeShareBIPS > collateral.MaxBIPS {
		return nil, ErrFeeOutOfRange
	}
	ctype, err := e.registry.Get(vaultToken)
	if err != nil {
		return nil, err
	}
	if ctype.Class != collateral.ClassVault {
		return nil, collateral.ErrTypeInvalid
	}
	if ctype.Deprecated() {
		return nil, collateral.ErrTypeDeprecated
	}

	var id [20]byte
	hash := ethcrypto.Keccak256(owner[:], []byte(underlying))
	copy(id[:], hash[12:])

	existing, err := e.state.GetAgent(id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAgentExists
	}

	agent := (&types.Agent{
		ID:                id,
		Owner:             owner,
		UnderlyingAddress: underlying,
		Status:            types.AgentNormal,
		VaultToken:        ctype.Symbol,
		FeeBIPS:           feeBIPS,
		PoolFeeShareBIPS:  poolFeeShareBIPS,
		CreatedAt:         e.now(),
	}).Normalize()

	if err := e.state.PutAgent(agent); err != nil {
		return nil, err
	}
	e.emit(events.AgentCreated{AgentID: id, Owner: owner, UnderlyingAddress: underlying, VaultToken: ctype.Symbol})
	return agent, nil
}

// DepositVaultCollateral moves vault collateral from the owner into the vault.
func (e *Engine) DepositVaultCollateral(caller, agentID [20]byte, amountWei *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return ErrInvalidAmount
	}
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if err := requireOwner(agent, caller); err != nil {
		return err
	}
	if err := e.ledger.Transfer(agent.VaultToken, caller, agentID, amountWei); err != nil {
		return err
	}
	agent.VaultCollateralWei = new(big.Int).Add(agent.VaultCollateralWei, amountWei)
	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	e.emit(events.CollateralDeposited{AgentID: agentID, AmountWei: new(big.Int).Set(amountWei)})
	return nil
}

// DepositPoolCollateral moves pool collateral tokens into the agent's pool.
// Deposits from the owner additionally count as the agent's own pool-token
// holdings, which form the third collateral conjunct.
func (e *Engine) DepositPoolCollateral(from, agentID [20]byte, amountWei *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return ErrInvalidAmount
	}
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(e.params.PoolTokenSymbol, from, agentID, amountWei); err != nil {
		return err
	}
	agent.PoolCollateralWei = new(big.Int).Add(agent.PoolCollateralWei, amountWei)
	if from == agent.Owner {
		agent.AgentPoolTokensWei = new(big.Int).Add(agent.AgentPoolTokensWei, amountWei)
	}
	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	e.emit(events.CollateralDeposited{AgentID: agentID, AmountWei: new(big.Int).Set(amountWei)})
	return nil
}

// ExitPool returns part of the owner's pool-token contribution. Only the
// owner's tracked holdings can exit, and both pool conjuncts must still
// cover the backed amount at current prices.
func (e *Engine) ExitPool(caller, agentID [20]byte, amountWei *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return ErrInvalidAmount
	}
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if err := requireOwner(agent, caller); err != nil {
		return err
	}
	if amountWei.Cmp(agent.AgentPoolTokensWei) > 0 || amountWei.Cmp(agent.PoolCollateralWei) > 0 {
		return ErrInvalidAmount
	}
	poolType, err := e.registry.PoolType()
	if err != nil {
		return err
	}
	assetPrice, err := e.prices.GetPrice(e.params.AssetSymbol)
	if err != nil {
		return err
	}
	poolPrice, err := e.prices.GetPrice(poolType.Symbol)
	if err != nil {
		return err
	}
	backed := backedAMG(agent)
	remainingPool := new(big.Int).Sub(agent.PoolCollateralWei, amountWei)
	remainingOwn := new(big.Int).Sub(agent.AgentPoolTokensWei, amountWei)
	for _, total := range []*big.Int{remainingPool, remainingOwn} {
		view := collateral.PoolView{TotalWei: total, MCRBips: poolType.MinCollateralRatioBIPS, TokenPrice: poolPrice}
		locked := collateral.LockedCollateralWei(view, backed, nil, e.params.AMGUnitUBA, assetPrice)
		if total.Cmp(locked) < 0 {
			return ErrUnderCollateralized
		}
	}
	if err := e.ledger.Transfer(e.params.PoolTokenSymbol, agentID, caller, amountWei); err != nil {
		return err
	}
	agent.PoolCollateralWei = remainingPool
	agent.AgentPoolTokensWei = remainingOwn
	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	e.emit(events.CollateralWithdrawn{AgentID: agentID, AmountWei: new(big.Int).Set(amountWei)})
	return nil
}

// AnnounceVaultWithdrawal starts the withdrawal wait for part of the vault
// collateral. The announced amount is locked immediately so minting capacity
// shrinks right away. Returns the announcement id used to build the payment
// reference for the matching underlying transfer, if any.
func (e *Engine) AnnounceVaultWithdrawal(caller, agentID [20]byte, amountWei *big.Int) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if amountWei == nil || amountWei.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return 0, err
	}
	if err := requireOwner(agent, caller); err != nil {
		return 0, err
	}
	if agent.Status != types.AgentNormal {
		return 0, ErrWrongStatus
	}
	if agent.AnnouncedWithdrawalWei.Sign() > 0 {
		return 0, ErrWithdrawalPending
	}
	free, err := e.freeVaultCollateralWei(agent, amountWei)
	if err != nil {
		return 0, err
	}
	if free.Sign() < 0 {
		return 0, ErrUnderCollateralized
	}
	announcementID, err := e.state.NextAnnouncementID()
	if err != nil {
		return 0, err
	}
	now := e.now()
	agent.AnnouncedWithdrawalWei = new(big.Int).Set(amountWei)
	agent.WithdrawalAnnouncedAt = now
	agent.WithdrawalAnnouncement = announcementID
	if err := e.state.PutAgent(agent); err != nil {
		return 0, err
	}
	e.emit(events.WithdrawalAnnounced{
		AgentID:        agentID,
		AnnouncementID: announcementID,
		AmountWei:      new(big.Int).Set(amountWei),
		WithdrawableAt: now + e.params.WithdrawalWaitMinSeconds,
	})
	return announcementID, nil
}

// WithdrawVaultCollateral completes an announced withdrawal once the wait has
// elapsed, re-checking collateral sufficiency at current prices.
func (e *Engine) WithdrawVaultCollateral(caller, agentID [20]byte) error {
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
	if err := requireOwner(agent, caller); err != nil {
		return err
	}
	amount := agent.AnnouncedWithdrawalWei
	if amount.Sign() == 0 {
		return ErrNoWithdrawalAnnounced
	}
	if e.now()-agent.WithdrawalAnnouncedAt < e.params.WithdrawalWaitMinSeconds {
		return ErrWithdrawalTooEarly
	}
	// The announced amount is already part of the locked collateral.
	free, err := e.freeVaultCollateralWei(agent, nil)
	if err != nil {
		return err
	}
	if free.Sign() < 0 {
		return ErrUnderCollateralized
	}
	if err := e.ledger.Transfer(agent.VaultToken, agentID, caller, amount); err != nil {
		return err
	}
	agent.VaultCollateralWei = new(big.Int).Sub(agent.VaultCollateralWei, amount)
	agent.AnnouncedWithdrawalWei = big.NewInt(0)
	agent.WithdrawalAnnouncedAt = 0
	agent.WithdrawalAnnouncement = 0
	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	e.emit(events.CollateralWithdrawn{AgentID: agentID, AmountWei: new(big.Int).Set(amount)})
	return nil
}

// ConfirmTopupPayment credits the agent's tracked free underlying balance from
// a proven payment carrying the agent's topup reference.
func (e *Engine) ConfirmTopupPayment(caller, agentID [20]byte, proof oracle.PaymentProof) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if err := requireOwner(agent, caller); err != nil {
		return err
	}
	if proof.Status != oracle.PaymentSuccess {
		return ErrTopupMismatch
	}
	if proof.ReceivingAddress != agent.UnderlyingAddress {
		return ErrTopupMismatch
	}
	if proof.Reference != reference.Topup(agentID) {
		return ErrTopupMismatch
	}
	if proof.ReceivedUBA == nil || proof.ReceivedUBA.Sign() <= 0 {
		return ErrTopupMismatch
	}
	agent.FreeUnderlyingUBA = new(big.Int).Add(agent.FreeUnderlyingUBA, proof.ReceivedUBA)
	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	e.emit(events.UnderlyingToppedUp{AgentID: agentID, AmountUBA: new(big.Int).Set(proof.ReceivedUBA)})
	return nil
}

// SwitchVaultCollateral changes the agent's vault collateral token. The new
// type must be live, no withdrawal may be pending, and the converted balance
// must still cover the locked collateral at current prices.
func (e *Engine) SwitchVaultCollateral(caller, agentID [20]byte, newToken string) error {
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
	if err := requireOwner(agent, caller); err != nil {
		return err
	}
	if agent.AnnouncedWithdrawalWei.Sign() > 0 {
		return ErrSwitchNotAllowed
	}
	newType, err := e.registry.Get(newToken)
	if err != nil {
		return err
	}
	if newType.Class != collateral.ClassVault || newType.Deprecated() {
		return ErrSwitchNotAllowed
	}
	if newType.Symbol == agent.VaultToken {
		return ErrSwitchNotAllowed
	}
	oldPrice, err := e.prices.GetPrice(agent.VaultToken)
	if err != nil {
		return err
	}
	newPrice, err := e.prices.GetPrice(newType.Symbol)
	if err != nil {
		return err
	}
	// Convert the tracked balance by USD value, rounding down: the vault must
	// never gain value from a switch.
	converted := new(big.Int).Mul(agent.VaultCollateralWei, oldPrice.Num)
	converted.Mul(converted, newPrice.Den)
	den := new(big.Int).Mul(oldPrice.Den, newPrice.Num)
	converted.Quo(converted, den)

	oldToken := agent.VaultToken
	agent.VaultToken = newType.Symbol
	agent.VaultCollateralWei = converted

	free, err := e.freeVaultCollateralWei(agent, nil)
	if err != nil {
		return err
	}
	if free.Sign() < 0 {
		return ErrUnderCollateralized
	}
	if err := e.state.PutAgent(agent); err != nil {
		return err
	}
	e.emit(events.VaultTokenSwitched{AgentID: agentID, OldToken: oldToken, NewToken: newType.Symbol})
	return nil
}

// MakeAvailable publishes the agent for public minting.
func (e *Engine) MakeAvailable(caller, agentID [20]byte) error {
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if err := requireOwner(agent, caller); err != nil {
		return err
	}
	if agent.Status != types.AgentNormal {
		return ErrWrongStatus
	}
	agent.PubliclyAvailable = true
	return e.state.PutAgent(agent)
}

// ExitAvailable withdraws the agent from public minting.
func (e *Engine) ExitAvailable(caller, agentID [20]byte) error {
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if err := requireOwner(agent, caller); err != nil {
		return err
	}
	agent.PubliclyAvailable = false
	return e.state.PutAgent(agent)
}

// SetFeeBIPS schedules a timelocked change of the agent's minting fee.
func (e *Engine) SetFeeBIPS(caller, agentID [20]byte, value uint64) error {
	return e.scheduleSetting(caller, agentID, value, func(agent *types.Agent, pending *types.PendingSetting) {
		agent.PendingFeeBIPS = pending
	})
}

// SetPoolFeeShareBIPS schedules a timelocked change of the pool fee share.
func (e *Engine) SetPoolFeeShareBIPS(caller, agentID [20]byte, value uint64) error {
	return e.scheduleSetting(caller, agentID, value, func(agent *types.Agent, pending *types.PendingSetting) {
		agent.PendingPoolFeeShareBIPS = pending
	})
}

func (e *Engine) scheduleSetting(caller, agentID [20]byte, value uint64, assign func(*types.Agent, *types.PendingSetting)) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if value > collateral.MaxBIPS {
		return ErrFeeOutOfRange
	}
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if err := requireOwner(agent, caller); err != nil {
		return err
	}
	assign(agent, &types.PendingSetting{
		Value:       value,
		EffectiveAt: e.now() + e.params.AgentTimelockedOpsWindowSeconds,
	})
	return e.state.PutAgent(agent)
}

// AnnounceDestroy starts the destruction timelock.
func (e *Engine) AnnounceDestroy(caller, agentID [20]byte) error {
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if err := requireOwner(agent, caller); err != nil {
		return err
	}
	agent.DestroyAnnouncedAt = e.now()
	if agent.Status == types.AgentNormal {
		agent.Status = types.AgentDestroying
		agent.PubliclyAvailable = false
	}
	return e.state.PutAgent(agent)
}

// DestroyAgent deletes an announced agent with zero outstanding exposure and
// returns the remaining collateral to the owner.
func (e *Engine) DestroyAgent(caller, agentID [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return err
	}
	if err := requireOwner(agent, caller); err != nil {
		return err
	}
	if agent.DestroyAnnouncedAt == 0 {
		return ErrDestroyNotAnnounced
	}
	if e.now()-agent.DestroyAnnouncedAt < e.params.AgentTimelockedOpsWindowSeconds {
		return ErrDestroyTooEarly
	}
	if agent.MintedAMG.Sign() != 0 || agent.ReservedAMG.Sign() != 0 || agent.RedeemingAMG.Sign() != 0 {
		return ErrExposureOutstanding
	}
	if agent.VaultCollateralWei.Sign() > 0 {
		if err := e.ledger.Transfer(agent.VaultToken, agentID, agent.Owner, agent.VaultCollateralWei); err != nil {
			return err
		}
	}
	if agent.PoolCollateralWei.Sign() > 0 {
		if err := e.ledger.Transfer(e.params.PoolTokenSymbol, agentID, agent.Owner, agent.PoolCollateralWei); err != nil {
			return err
		}
	}
	if err := e.state.DeleteAgent(agentID); err != nil {
		return err
	}
	e.emit(events.AgentDestroyed{AgentID: agentID})
	return nil
}

// freeVaultCollateralWei computes the vault pool's free collateral after
// subtracting locked backing and the supplied extra withdrawal. Negative
// results signal under-collateralization.
func (e *Engine) freeVaultCollateralWei(agent *types.Agent, extraWithdrawalWei *big.Int) (*big.Int, error) {
	ctype, err := e.registry.Get(agent.VaultToken)
	if err != nil {
		return nil, err
	}
	assetPrice, err := e.prices.GetPrice(e.params.AssetSymbol)
	if err != nil {
		return nil, err
	}
	tokenPrice, err := e.prices.GetPrice(agent.VaultToken)
	if err != nil {
		return nil, err
	}
	backed := backedAMG(agent)
	withdrawal := new(big.Int).Set(agent.AnnouncedWithdrawalWei)
	if extraWithdrawalWei != nil {
		withdrawal.Add(withdrawal, extraWithdrawalWei)
	}
	pool := collateral.PoolView{TotalWei: agent.VaultCollateralWei, MCRBips: ctype.MinCollateralRatioBIPS, TokenPrice: tokenPrice}
	locked := collateral.LockedCollateralWei(pool, backed, withdrawal, e.params.AMGUnitUBA, assetPrice)
	return new(big.Int).Sub(agent.VaultCollateralWei, locked), nil
}

// FreeLots returns the agent's true free minting capacity: the minimum free
// lot count over the vault pool, the collateral pool, and the agent's own
// pool-token holdings.
func (e *Engine) FreeLots(agentID [20]byte) (*big.Int, error) {
	agent, err := e.loadAgent(agentID)
	if err != nil {
		return nil, err
	}
	return e.FreeLotsForAgent(agent)
}

// FreeLotsForAgent computes free lots for an already-loaded agent.
func (e *Engine) FreeLotsForAgent(agent *types.Agent) (*big.Int, error) {
	vaultType, err := e.registry.Get(agent.VaultToken)
	if err != nil {
		return nil, err
	}
	poolType, err := e.registry.PoolType()
	if err != nil {
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
	poolPrice, err := e.prices.GetPrice(poolType.Symbol)
	if err != nil {
		return nil, err
	}
	pools := []collateral.PoolView{
		{TotalWei: agent.VaultCollateralWei, MCRBips: vaultType.MinCollateralRatioBIPS, TokenPrice: vaultPrice},
		{TotalWei: agent.PoolCollateralWei, MCRBips: poolType.MinCollateralRatioBIPS, TokenPrice: poolPrice},
		{TotalWei: agent.AgentPoolTokensWei, MCRBips: poolType.MinCollateralRatioBIPS, TokenPrice: poolPrice},
	}
	backed := backedAMG(agent)
	lots := collateral.MinFreeLots(pools, backed, agent.AnnouncedWithdrawalWei, e.params.LotSizeAMG, e.params.AMGUnitUBA, assetPrice)
	return lots, nil
}

func backedAMG(agent *types.Agent) *big.Int {
	backed := new(big.Int).Add(agent.MintedAMG, agent.ReservedAMG)
	return backed.Add(backed, agent.RedeemingAMG)
}
