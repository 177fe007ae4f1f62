package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"

	"bridgemint/core/types"
	nativecommon "bridgemint/native/common"
	"bridgemint/native/minting"
	"bridgemint/native/redemption"
	"bridgemint/storage"
)

var (
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	ErrNegativeAmount      = errors.New("state: amount must not be negative")
)

// Manager is the single writer over the persistent ledger state. All engines
// share one manager; the mutex serializes state transitions so an operation
// observes a consistent view.
type Manager struct {
	mu sync.Mutex
	db storage.Database

	assetSymbol string
	pauseLimits nativecommon.PauseLimits
	now         func() int64
}

// NewManager wraps the database. assetSymbol names the synthetic token whose
// supply the manager tracks through Mint and Burn.
func NewManager(db storage.Database, assetSymbol string) *Manager {
	return &Manager{
		db:          db,
		assetSymbol: assetSymbol,
		now:         func() int64 { return time.Now().Unix() },
	}
}

// SetPauseLimits configures the emergency pause budget.
func (m *Manager) SetPauseLimits(limits nativecommon.PauseLimits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseLimits = limits
}

// SetNowFunc overrides the clock, primarily for tests.
func (m *Manager) SetNowFunc(now func() int64) {
	if now == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Manager) getJSON(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) putJSON(key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

func (m *Manager) nextSequence(key string) (uint64, error) {
	raw, err := m.db.Get([]byte(key))
	var next uint64 = 1
	switch {
	case err == nil:
		next = binary.BigEndian.Uint64(raw) + 1
	case !errors.Is(err, storage.ErrNotFound):
		return 0, err
	}
	if err := m.db.Put([]byte(key), be64(next)); err != nil {
		return 0, err
	}
	return next, nil
}

// --- Agents ---

// GetAgent loads an agent record. A missing agent returns (nil, nil); the
// engines map that to their unknown-agent sentinel.
func (m *Manager) GetAgent(id [20]byte) (*types.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent := &types.Agent{}
	ok, err := m.getJSON(agentKey(id), agent)
	if err != nil || !ok {
		return nil, err
	}
	return agent, nil
}

func (m *Manager) PutAgent(agent *types.Agent) error {
	if agent == nil {
		return errors.New("state: nil agent")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(agentKey(agent.ID), agent)
}

func (m *Manager) DeleteAgent(id [20]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Delete(agentKey(id))
}

// ListAgents returns all agent records in key order.
func (m *Manager) ListAgents() ([]*types.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Agent
	var decodeErr error
	err := m.db.Iterate([]byte(prefixAgent), func(_, value []byte) bool {
		agent := &types.Agent{}
		if decodeErr = json.Unmarshal(value, agent); decodeErr != nil {
			return false
		}
		out = append(out, agent)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decodeErr
}

func (m *Manager) NextAnnouncementID() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextSequence(keySeqAnnouncement)
}

// --- Collateral reservations ---

func (m *Manager) GetReservation(id uint64) (*minting.CollateralReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cr := &minting.CollateralReservation{}
	ok, err := m.getJSON(reservationKey(id), cr)
	if err != nil || !ok {
		return nil, err
	}
	return cr, nil
}

func (m *Manager) PutReservation(cr *minting.CollateralReservation) error {
	if cr == nil {
		return errors.New("state: nil reservation")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(reservationKey(cr.ID), cr)
}

func (m *Manager) DeleteReservation(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Delete(reservationKey(id))
}

func (m *Manager) NextReservationID() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextSequence(keySeqReservation)
}

// --- Redemption requests ---

func (m *Manager) GetRequest(id uint64) (*redemption.RedemptionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := &redemption.RedemptionRequest{}
	ok, err := m.getJSON(requestKey(id), req)
	if err != nil || !ok {
		return nil, err
	}
	return req, nil
}

func (m *Manager) PutRequest(req *redemption.RedemptionRequest) error {
	if req == nil {
		return errors.New("state: nil request")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(requestKey(req.ID), req)
}

func (m *Manager) NextRequestID() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextSequence(keySeqRequest)
}

// RedemptionBelongsToAgent reports whether the request exists and names the
// agent. Unknown requests are simply not the agent's.
func (m *Manager) RedemptionBelongsToAgent(requestID uint64, agentID [20]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := &redemption.RedemptionRequest{}
	ok, err := m.getJSON(requestKey(requestID), req)
	if err != nil || !ok {
		return false, err
	}
	return req.AgentID == agentID, nil
}

// --- Redemption tickets ---

// ticketRecord is the persisted form. Identifiers live in the key so the
// value only carries the agent and remaining size.
type ticketRecord struct {
	AgentID  [20]byte
	ValueAMG *big.Int
}

func (m *Manager) putTicketLocked(ticket *redemption.RedemptionTicket) error {
	value := ticket.ValueAMG
	if value == nil {
		value = big.NewInt(0)
	}
	raw, err := rlp.EncodeToBytes(&ticketRecord{AgentID: ticket.AgentID, ValueAMG: value})
	if err != nil {
		return fmt.Errorf("state: encode ticket %d: %w", ticket.ID, err)
	}
	return m.db.Put(ticketKey(ticket.ID), raw)
}

func (m *Manager) PutTicket(ticket *redemption.RedemptionTicket) error {
	if ticket == nil {
		return errors.New("state: nil ticket")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putTicketLocked(ticket)
}

func (m *Manager) DeleteTicket(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Delete(ticketKey(id))
}

// AddRedemptionTicket appends a ticket to the back of the queue.
func (m *Manager) AddRedemptionTicket(agentID [20]byte, valueAMG *big.Int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := m.nextSequence(keySeqTicket)
	if err != nil {
		return 0, err
	}
	ticket := &redemption.RedemptionTicket{ID: id, AgentID: agentID, ValueAMG: new(big.Int).Set(valueAMG)}
	if err := m.putTicketLocked(ticket); err != nil {
		return 0, err
	}
	return id, nil
}

func (m *Manager) ticketsLocked(filter func(*redemption.RedemptionTicket) bool) ([]*redemption.RedemptionTicket, error) {
	var out []*redemption.RedemptionTicket
	var decodeErr error
	err := m.db.Iterate([]byte(prefixTicket), func(key, value []byte) bool {
		record := &ticketRecord{}
		if decodeErr = rlp.DecodeBytes(value, record); decodeErr != nil {
			return false
		}
		ticket := &redemption.RedemptionTicket{
			ID:       binary.BigEndian.Uint64(key[len(prefixTicket):]),
			AgentID:  record.AgentID,
			ValueAMG: record.ValueAMG,
		}
		if filter == nil || filter(ticket) {
			out = append(out, ticket)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decodeErr
}

// TicketsOldestFirst returns the whole redemption queue in FIFO order.
func (m *Manager) TicketsOldestFirst() ([]*redemption.RedemptionTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticketsLocked(nil)
}

// AgentTicketsOldestFirst returns one agent's slice of the queue in FIFO
// order.
func (m *Manager) AgentTicketsOldestFirst(agentID [20]byte) ([]*redemption.RedemptionTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticketsLocked(func(t *redemption.RedemptionTicket) bool {
		return t.AgentID == agentID
	})
}

// --- Underlying cursor and watermarks ---

func (m *Manager) cursorLocked(key string) (uint64, uint64, error) {
	raw, err := m.db.Get([]byte(key))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	block, timestamp := decodeCursor(raw)
	return block, timestamp, nil
}

// UnderlyingCursor returns the latest observed underlying chain position.
func (m *Manager) UnderlyingCursor() (uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursorLocked(keyUnderlyingCursor)
}

// SetUnderlyingCursor advances the observed underlying chain position. Each
// component only moves forward.
func (m *Manager) SetUnderlyingCursor(block, timestamp uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prevBlock, prevTimestamp, err := m.cursorLocked(keyUnderlyingCursor)
	if err != nil {
		return err
	}
	if block < prevBlock {
		block = prevBlock
	}
	if timestamp < prevTimestamp {
		timestamp = prevTimestamp
	}
	return m.db.Put([]byte(keyUnderlyingCursor), encodeCursor(block, timestamp))
}

// PaymentWatermark returns the floor for new minting payment windows.
func (m *Manager) PaymentWatermark() (uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursorLocked(keyPaymentWatermark)
}

// SetPaymentWatermark ratchets the minting payment window floor.
func (m *Manager) SetPaymentWatermark(block, timestamp uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prevBlock, prevTimestamp, err := m.cursorLocked(keyPaymentWatermark)
	if err != nil {
		return err
	}
	if block < prevBlock {
		block = prevBlock
	}
	if timestamp < prevTimestamp {
		timestamp = prevTimestamp
	}
	return m.db.Put([]byte(keyPaymentWatermark), encodeCursor(block, timestamp))
}

// RedemptionWatermark returns the per-agent floor for redemption deadlines.
func (m *Manager) RedemptionWatermark(agentID [20]byte) (uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.db.Get(redemptionWatermarkKey(agentID))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	block, timestamp := decodeCursor(raw)
	return block, timestamp, nil
}

// SetRedemptionWatermark ratchets the per-agent redemption deadline floor.
func (m *Manager) SetRedemptionWatermark(agentID [20]byte, block, timestamp uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := redemptionWatermarkKey(agentID)
	raw, err := m.db.Get(key)
	if err == nil {
		prevBlock, prevTimestamp := decodeCursor(raw)
		if block < prevBlock {
			block = prevBlock
		}
		if timestamp < prevTimestamp {
			timestamp = prevTimestamp
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return m.db.Put(key, encodeCursor(block, timestamp))
}

// --- Token ledger ---

func (m *Manager) balanceLocked(symbol string, addr [20]byte) (*big.Int, error) {
	raw, err := m.db.Get(balanceKey(symbol, addr))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func (m *Manager) setBalanceLocked(symbol string, addr [20]byte, amount *big.Int) error {
	key := balanceKey(symbol, addr)
	if amount.Sign() == 0 {
		return m.db.Delete(key)
	}
	return m.db.Put(key, amount.Bytes())
}

// Balance returns the token balance of an account.
func (m *Manager) Balance(symbol string, addr [20]byte) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(symbol, addr)
}

// Credit adds tokens to an account, used for genesis allocations and deposits
// arriving from outside the module.
func (m *Manager) Credit(symbol string, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, err := m.balanceLocked(symbol, addr)
	if err != nil {
		return err
	}
	return m.setBalanceLocked(symbol, addr, balance.Add(balance, amount))
}

// Transfer moves tokens between accounts.
func (m *Manager) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fromBalance, err := m.balanceLocked(symbol, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := m.balanceLocked(symbol, to)
	if err != nil {
		return err
	}
	if err := m.setBalanceLocked(symbol, from, fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.setBalanceLocked(symbol, to, toBalance.Add(toBalance, amount))
}

func (m *Manager) supplyLocked(symbol string) (*big.Int, error) {
	raw, err := m.db.Get(supplyKey(symbol))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// Mint issues synthetic asset tokens to an account.
func (m *Manager) Mint(to [20]byte, amountUBA *big.Int) error {
	if amountUBA == nil || amountUBA.Sign() < 0 {
		return ErrNegativeAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, err := m.balanceLocked(m.assetSymbol, to)
	if err != nil {
		return err
	}
	if err := m.setBalanceLocked(m.assetSymbol, to, balance.Add(balance, amountUBA)); err != nil {
		return err
	}
	supply, err := m.supplyLocked(m.assetSymbol)
	if err != nil {
		return err
	}
	return m.db.Put(supplyKey(m.assetSymbol), supply.Add(supply, amountUBA).Bytes())
}

// Burn removes synthetic asset tokens from an account.
func (m *Manager) Burn(from [20]byte, amountUBA *big.Int) error {
	if amountUBA == nil || amountUBA.Sign() < 0 {
		return ErrNegativeAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, err := m.balanceLocked(m.assetSymbol, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amountUBA) < 0 {
		return ErrInsufficientBalance
	}
	if err := m.setBalanceLocked(m.assetSymbol, from, balance.Sub(balance, amountUBA)); err != nil {
		return err
	}
	supply, err := m.supplyLocked(m.assetSymbol)
	if err != nil {
		return err
	}
	supply.Sub(supply, amountUBA)
	if supply.Sign() < 0 {
		supply.SetInt64(0)
	}
	return m.db.Put(supplyKey(m.assetSymbol), supply.Bytes())
}

// TotalSupply returns the tracked synthetic asset supply.
func (m *Manager) TotalSupply() (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supplyLocked(m.assetSymbol)
}

// --- Emergency pause ---

func (m *Manager) pauseStateLocked(module string) (nativecommon.PauseState, error) {
	var pause nativecommon.PauseState
	_, err := m.getJSON(pauseKey(module), &pause)
	return pause, err
}

// IsPaused implements the engines' pause view.
func (m *Manager) IsPaused(module string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	pause, err := m.pauseStateLocked(module)
	if err != nil {
		// Fail closed: a state read failure pauses the module.
		return true
	}
	return pause.Active(m.now())
}

// EmergencyPause extends the pause window for the module. The returned state
// carries the new window end; changed is false when the budget clipped the
// extension to nothing.
func (m *Manager) EmergencyPause(module string, byGovernance bool, durationSeconds int64) (nativecommon.PauseState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, err := m.pauseStateLocked(module)
	if err != nil {
		return nativecommon.PauseState{}, false, err
	}
	next, changed, err := nativecommon.ApplyPause(m.pauseLimits, prev, m.now(), byGovernance, durationSeconds)
	if err != nil {
		return prev, false, err
	}
	if changed {
		if err := m.putJSON(pauseKey(module), next); err != nil {
			return prev, false, err
		}
	}
	return next, changed, nil
}

// Unpause ends the module pause.
func (m *Manager) Unpause(module string, byGovernance bool) (nativecommon.PauseState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, err := m.pauseStateLocked(module)
	if err != nil {
		return nativecommon.PauseState{}, err
	}
	next, err := nativecommon.Unpause(prev, m.now(), byGovernance)
	if err != nil {
		return prev, err
	}
	if err := m.putJSON(pauseKey(module), next); err != nil {
		return prev, err
	}
	return next, nil
}

// --- Parameter store ---

// ParamStoreSet persists a governed parameter blob.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(paramKey(name), value)
}

// ParamStoreGet loads a governed parameter blob.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.db.Get(paramKey(name))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}
