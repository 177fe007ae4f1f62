package redemption

import (
	"errors"
	"math/big"
	"sort"
	"testing"

	"bridgemint/core/types"
	"bridgemint/native/oracle"
	"bridgemint/native/reference"
)

type mockState struct {
	agents     map[[20]byte]*types.Agent
	requests   map[uint64]*RedemptionRequest
	nextReq    uint64
	tickets    map[uint64]*RedemptionTicket
	block      uint64
	timestamp  uint64
	watermarks map[[20]byte][2]uint64
}

func newMockState() *mockState {
	return &mockState{
		agents:     make(map[[20]byte]*types.Agent),
		requests:   make(map[uint64]*RedemptionRequest),
		tickets:    make(map[uint64]*RedemptionTicket),
		watermarks: make(map[[20]byte][2]uint64),
	}
}

func (m *mockState) GetAgent(id [20]byte) (*types.Agent, error) {
	agent, ok := m.agents[id]
	if !ok {
		return nil, nil
	}
	return agent.Clone(), nil
}

func (m *mockState) PutAgent(agent *types.Agent) error {
	m.agents[agent.ID] = agent.Clone()
	return nil
}

func (m *mockState) GetRequest(id uint64) (*RedemptionRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, nil
	}
	return req.Clone(), nil
}

func (m *mockState) PutRequest(req *RedemptionRequest) error {
	m.requests[req.ID] = req.Clone()
	return nil
}

func (m *mockState) NextRequestID() (uint64, error) {
	m.nextReq++
	return m.nextReq, nil
}

func (m *mockState) sortedTickets(filter func(*RedemptionTicket) bool) []*RedemptionTicket {
	out := make([]*RedemptionTicket, 0, len(m.tickets))
	for _, ticket := range m.tickets {
		if filter == nil || filter(ticket) {
			out = append(out, ticket.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockState) TicketsOldestFirst() ([]*RedemptionTicket, error) {
	return m.sortedTickets(nil), nil
}

func (m *mockState) AgentTicketsOldestFirst(agentID [20]byte) ([]*RedemptionTicket, error) {
	return m.sortedTickets(func(t *RedemptionTicket) bool { return t.AgentID == agentID }), nil
}

func (m *mockState) PutTicket(ticket *RedemptionTicket) error {
	m.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (m *mockState) DeleteTicket(id uint64) error {
	delete(m.tickets, id)
	return nil
}

func (m *mockState) UnderlyingCursor() (uint64, uint64, error) {
	return m.block, m.timestamp, nil
}

func (m *mockState) RedemptionWatermark(agentID [20]byte) (uint64, uint64, error) {
	wm := m.watermarks[agentID]
	return wm[0], wm[1], nil
}

func (m *mockState) SetRedemptionWatermark(agentID [20]byte, block, timestamp uint64) error {
	m.watermarks[agentID] = [2]uint64{block, timestamp}
	return nil
}

type mockLedger struct {
	balances map[string]map[[20]byte]*big.Int
}

func newMockLedger() *mockLedger {
	return &mockLedger{balances: make(map[string]map[[20]byte]*big.Int)}
}

func (m *mockLedger) credit(symbol string, addr [20]byte, amount int64) {
	if m.balances[symbol] == nil {
		m.balances[symbol] = make(map[[20]byte]*big.Int)
	}
	m.balances[symbol][addr] = big.NewInt(amount)
}

func (m *mockLedger) balance(symbol string, addr [20]byte) *big.Int {
	if m.balances[symbol] == nil || m.balances[symbol][addr] == nil {
		return big.NewInt(0)
	}
	return m.balances[symbol][addr]
}

func (m *mockLedger) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	if m.balances[symbol] == nil {
		m.balances[symbol] = make(map[[20]byte]*big.Int)
	}
	m.balances[symbol][from] = new(big.Int).Sub(m.balance(symbol, from), amount)
	m.balances[symbol][to] = new(big.Int).Add(m.balance(symbol, to), amount)
	return nil
}

type mockBurner struct {
	burned map[[20]byte]*big.Int
}

func newMockBurner() *mockBurner {
	return &mockBurner{burned: make(map[[20]byte]*big.Int)}
}

func (m *mockBurner) Burn(from [20]byte, amountUBA *big.Int) error {
	prev := m.burned[from]
	if prev == nil {
		prev = big.NewInt(0)
	}
	m.burned[from] = new(big.Int).Add(prev, amountUBA)
	return nil
}

var errShortBalance = errors.New("insufficient balance")

// failingBurner rejects every burn, standing in for a caller whose synthetic
// asset balance cannot cover the amount.
type failingBurner struct{}

func (failingBurner) Burn([20]byte, *big.Int) error { return errShortBalance }

type staticPrices map[string]oracle.Price

func (p staticPrices) GetPrice(symbol string) (oracle.Price, error) {
	price, ok := p[symbol]
	if !ok {
		return oracle.Price{}, oracle.ErrPriceUnknown
	}
	return price, nil
}

func unitPrices() staticPrices {
	one := oracle.Price{Num: big.NewInt(1), Den: big.NewInt(1)}
	return staticPrices{"FXRP": one, "USDC": one, "WNAT": one}
}

func testParams() Params {
	return Params{
		AssetSymbol:                       "FXRP",
		PoolTokenSymbol:                   "WNAT",
		LotSizeAMG:                        1000,
		AMGUnitUBA:                        1,
		RedemptionFeeBIPS:                 200,
		UnderlyingBlocksForPayment:        10,
		UnderlyingSecondsForPayment:       600,
		RedemptionPaymentExtensionSeconds: 60,
		RedemptionDefaultFactorVaultBIPS:  11_000,
		RedemptionDefaultFactorPoolBIPS:   1_000,
		ConfirmationByOthersAfterSeconds:  3_600,
	}
}

func makeAddr(b byte) [20]byte {
	var addr [20]byte
	addr[0] = b
	return addr
}

var (
	ownerA   = makeAddr(0x01)
	ownerB   = makeAddr(0x02)
	redeemer = makeAddr(0x03)
	agentA   = makeAddr(0xaa)
	agentB   = makeAddr(0xbb)
)

func seedAgents(state *mockState, ledger *mockLedger) {
	state.agents[agentA] = (&types.Agent{
		ID: agentA, Owner: ownerA, UnderlyingAddress: "rAGENT-A",
		Status: types.AgentNormal, VaultToken: "USDC",
		MintedAMG:          big.NewInt(1_500),
		VaultCollateralWei: big.NewInt(10_000),
		PoolCollateralWei:  big.NewInt(5_000),
	}).Normalize()
	state.agents[agentB] = (&types.Agent{
		ID: agentB, Owner: ownerB, UnderlyingAddress: "rAGENT-B",
		Status: types.AgentNormal, VaultToken: "USDC",
		MintedAMG:          big.NewInt(2_000),
		VaultCollateralWei: big.NewInt(10_000),
		PoolCollateralWei:  big.NewInt(5_000),
	}).Normalize()
	ledger.credit("USDC", agentA, 10_000)
	ledger.credit("WNAT", agentA, 5_000)
	ledger.credit("USDC", agentB, 10_000)
	ledger.credit("WNAT", agentB, 5_000)
	ledger.credit("WNAT", redeemer, 1_000)
}

func seedTickets(state *mockState) {
	state.tickets[1] = &RedemptionTicket{ID: 1, AgentID: agentA, ValueAMG: big.NewInt(1_000)}
	state.tickets[2] = &RedemptionTicket{ID: 2, AgentID: agentB, ValueAMG: big.NewInt(2_000)}
	state.tickets[3] = &RedemptionTicket{ID: 3, AgentID: agentA, ValueAMG: big.NewInt(500)}
}

func newTestEngine(t *testing.T) (*Engine, *mockState, *mockLedger, *mockBurner, *int64) {
	t.Helper()
	engine := NewEngine(unitPrices(), testParams())
	state := newMockState()
	state.block, state.timestamp = 100, 5_000
	ledger := newMockLedger()
	burner := newMockBurner()
	seedAgents(state, ledger)
	seedTickets(state)
	engine.SetState(state)
	engine.SetLedger(ledger)
	engine.SetAssetBurner(burner)
	now := int64(10_000)
	engine.SetNowFunc(func() int64 { return now })
	return engine, state, ledger, burner, &now
}

func ticketSumAMG(state *mockState) *big.Int {
	sum := big.NewInt(0)
	for _, ticket := range state.tickets {
		sum.Add(sum, ticket.ValueAMG)
	}
	return sum
}

func TestRedeemFailedBurnLeavesQueueUntouched(t *testing.T) {
	engine, state, _, _, _ := newTestEngine(t)
	engine.SetAssetBurner(failingBurner{})
	before := ticketSumAMG(state)

	if _, err := engine.Redeem(redeemer, 3, "rDEST", [20]byte{}, nil); !errors.Is(err, errShortBalance) {
		t.Fatalf("expected burn failure, got %v", err)
	}
	if after := ticketSumAMG(state); after.Cmp(before) != 0 {
		t.Fatalf("tickets mutated on failed call: before=%s after=%s", before, after)
	}
	if len(state.tickets) != 3 {
		t.Fatalf("ticket count changed: %d", len(state.tickets))
	}
	if len(state.requests) != 0 {
		t.Fatalf("requests created on failed call: %d", len(state.requests))
	}
	for _, id := range [][20]byte{agentA, agentB} {
		agent := state.agents[id]
		if agent.RedeemingAMG.Sign() != 0 {
			t.Fatalf("agent %x redeeming moved: %s", id[:1], agent.RedeemingAMG)
		}
	}
}

func TestSelfCloseFailedBurnLeavesQueueUntouched(t *testing.T) {
	engine, state, _, _, _ := newTestEngine(t)
	engine.SetAssetBurner(failingBurner{})
	before := ticketSumAMG(state)
	minted := new(big.Int).Set(state.agents[agentA].MintedAMG)

	if _, err := engine.SelfClose(ownerA, agentA, big.NewInt(700)); !errors.Is(err, errShortBalance) {
		t.Fatalf("expected burn failure, got %v", err)
	}
	if after := ticketSumAMG(state); after.Cmp(before) != 0 {
		t.Fatalf("tickets mutated on failed call: before=%s after=%s", before, after)
	}
	if state.agents[agentA].MintedAMG.Cmp(minted) != 0 {
		t.Fatalf("minted exposure moved: %s", state.agents[agentA].MintedAMG)
	}
	if state.agents[agentA].FreeUnderlyingUBA.Sign() != 0 {
		t.Fatalf("free underlying credited: %s", state.agents[agentA].FreeUnderlyingUBA)
	}
}

func TestRedeemValidation(t *testing.T) {
	engine, state, _, _, _ := newTestEngine(t)
	if _, err := engine.Redeem(redeemer, 0, "rDEST", [20]byte{}, nil); err != ErrInvalidLots {
		t.Fatalf("expected lots rejection, got %v", err)
	}
	if _, err := engine.Redeem(redeemer, 1, "  ", [20]byte{}, nil); err != ErrInvalidAddress {
		t.Fatalf("expected address rejection, got %v", err)
	}
	if _, err := engine.Redeem(redeemer, 1, "rDEST", [20]byte{}, big.NewInt(5)); err != ErrExecutorFeeNoExecutor {
		t.Fatalf("expected executor-fee rejection, got %v", err)
	}
	state.tickets = map[uint64]*RedemptionTicket{}
	if _, err := engine.Redeem(redeemer, 1, "rDEST", [20]byte{}, nil); err != ErrNoBackingTickets {
		t.Fatalf("expected empty-queue rejection, got %v", err)
	}
}

func TestRedeemConsumesTicketsOldestFirst(t *testing.T) {
	engine, state, _, burner, _ := newTestEngine(t)

	requests, err := engine.Redeem(redeemer, 2, "rDEST", [20]byte{}, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("expected one request per agent, got %d", len(requests))
	}
	// Ticket 1 (agent A, 1000) drains first, then 1000 of ticket 2 (agent B).
	if requests[0].AgentID != agentA || requests[0].ValueUBA.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("first request: %+v", requests[0])
	}
	if requests[1].AgentID != agentB || requests[1].ValueUBA.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("second request: %+v", requests[1])
	}
	if requests[0].FeeUBA.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("fee: %s", requests[0].FeeUBA)
	}
	if requests[0].PaymentReference != reference.Redemption(requests[0].ID) {
		t.Fatal("payment reference mismatch")
	}
	if burner.burned[redeemer].Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("burned: %s", burner.burned[redeemer])
	}
	if _, ok := state.tickets[1]; ok {
		t.Fatal("drained ticket not deleted")
	}
	if state.tickets[2].ValueAMG.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("partial ticket: %s", state.tickets[2].ValueAMG)
	}
	// The 500 AMG dust ticket is below one lot and stays untouched.
	if state.tickets[3].ValueAMG.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("dust ticket: %s", state.tickets[3].ValueAMG)
	}
	agent := state.agents[agentA]
	if agent.MintedAMG.Cmp(big.NewInt(500)) != 0 || agent.RedeemingAMG.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("agent A exposure: minted=%s redeeming=%s", agent.MintedAMG, agent.RedeemingAMG)
	}
}

func TestRedeemDeadlinesNeverRegress(t *testing.T) {
	engine, state, _, _, _ := newTestEngine(t)

	first, err := engine.Redeem(redeemer, 2, "rDEST", [20]byte{}, nil)
	if err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	reqB := first[1]
	if reqB.LastUnderlyingBlock != 110 || reqB.LastUnderlyingTimestamp != 5_600 {
		t.Fatalf("first window: %+v", reqB)
	}

	// The cursor regresses, but agent B's next deadline still extends past the
	// outstanding one.
	state.block, state.timestamp = 90, 4_000
	second, err := engine.Redeem(redeemer, 1, "rDEST", [20]byte{}, nil)
	if err != nil {
		t.Fatalf("second redeem: %v", err)
	}
	if second[0].AgentID != agentB {
		t.Fatalf("expected agent B ticket, got %+v", second[0])
	}
	if second[0].LastUnderlyingBlock < reqB.LastUnderlyingBlock {
		t.Fatalf("block deadline regressed: %d < %d", second[0].LastUnderlyingBlock, reqB.LastUnderlyingBlock)
	}
	if second[0].LastUnderlyingTimestamp != 5_660 {
		t.Fatalf("expected extension past outstanding deadline, got %d", second[0].LastUnderlyingTimestamp)
	}
}

func redeemOne(t *testing.T, engine *Engine) *RedemptionRequest {
	t.Helper()
	requests, err := engine.Redeem(redeemer, 1, "rDEST", [20]byte{}, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if len(requests) != 1 || requests[0].AgentID != agentA {
		t.Fatalf("unexpected requests: %+v", requests)
	}
	return requests[0]
}

func TestConfirmRedemptionPaymentSuccess(t *testing.T) {
	engine, state, _, _, now := newTestEngine(t)
	req := redeemOne(t, engine)

	proof := oracle.PaymentProof{
		SourceAddress:    "rAGENT-A",
		ReceivingAddress: "rDEST",
		Reference:        req.PaymentReference,
		ReceivedUBA:      big.NewInt(980),
		SpentUBA:         big.NewInt(985),
		Status:           oracle.PaymentSuccess,
	}
	if err := engine.ConfirmRedemptionPayment(redeemer, proof, req.ID); err != ErrNotAuthorized {
		t.Fatalf("expected grace-period rejection, got %v", err)
	}
	if err := engine.ConfirmRedemptionPayment(ownerA, proof, req.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	stored := state.requests[req.ID]
	if stored.Status != RequestSuccessful {
		t.Fatalf("status: %v", stored.Status)
	}
	agent := state.agents[agentA]
	if agent.RedeemingAMG.Sign() != 0 {
		t.Fatalf("redeeming not released: %s", agent.RedeemingAMG)
	}
	// Value 1000, spent 985: the 15 UBA difference (fee minus tx cost) stays free.
	if agent.FreeUnderlyingUBA.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("free underlying: %s", agent.FreeUnderlyingUBA)
	}
	if err := engine.ConfirmRedemptionPayment(ownerA, proof, req.ID); err != ErrWrongRequestStatus {
		t.Fatalf("expected terminal idempotence, got %v", err)
	}

	// After the grace period anyone may confirm. Agent A's queue is drained,
	// so this request draws on agent B.
	requests, err := engine.Redeem(redeemer, 1, "rDEST", [20]byte{}, nil)
	if err != nil {
		t.Fatalf("second redeem: %v", err)
	}
	second := requests[0]
	if second.AgentID != agentB {
		t.Fatalf("expected agent B request, got %+v", second)
	}
	*now += 3_601
	proof2 := proof
	proof2.SourceAddress = "rAGENT-B"
	proof2.Reference = second.PaymentReference
	if err := engine.ConfirmRedemptionPayment(redeemer, proof2, second.ID); err != nil {
		t.Fatalf("third-party confirm: %v", err)
	}
}

func TestConfirmRedemptionPaymentFailedCompensates(t *testing.T) {
	engine, state, ledger, _, _ := newTestEngine(t)
	req := redeemOne(t, engine)

	proof := oracle.PaymentProof{
		SourceAddress: "rAGENT-A",
		Reference:     req.PaymentReference,
		SpentUBA:      big.NewInt(5),
		Status:        oracle.PaymentFailed,
	}
	if err := engine.ConfirmRedemptionPayment(ownerA, proof, req.ID); err != nil {
		t.Fatalf("confirm failed payment: %v", err)
	}
	stored := state.requests[req.ID]
	if stored.Status != RequestDefaultedFailed {
		t.Fatalf("status: %v", stored.Status)
	}
	// Payment value 980: vault pays 1.1x = 1078, pool pays 0.1x = 98.
	if ledger.balance("USDC", redeemer).Cmp(big.NewInt(1_078)) != 0 {
		t.Fatalf("vault compensation: %s", ledger.balance("USDC", redeemer))
	}
	agent := state.agents[agentA]
	if agent.VaultCollateralWei.Cmp(big.NewInt(8_922)) != 0 {
		t.Fatalf("vault collateral: %s", agent.VaultCollateralWei)
	}
	if agent.PoolCollateralWei.Cmp(big.NewInt(4_902)) != 0 {
		t.Fatalf("pool collateral: %s", agent.PoolCollateralWei)
	}
}

func TestConfirmRedemptionPaymentBlocked(t *testing.T) {
	engine, state, ledger, _, _ := newTestEngine(t)
	req := redeemOne(t, engine)

	proof := oracle.PaymentProof{
		SourceAddress: "rAGENT-A",
		Reference:     req.PaymentReference,
		SpentUBA:      big.NewInt(0),
		Status:        oracle.PaymentBlocked,
	}
	if err := engine.ConfirmRedemptionPayment(ownerA, proof, req.ID); err != nil {
		t.Fatalf("confirm blocked payment: %v", err)
	}
	if state.requests[req.ID].Status != RequestBlocked {
		t.Fatalf("status: %v", state.requests[req.ID].Status)
	}
	// Blocked on the receiving side: no collateral moves, the agent keeps the value.
	if ledger.balance("USDC", redeemer).Sign() != 0 {
		t.Fatalf("unexpected compensation: %s", ledger.balance("USDC", redeemer))
	}
	if state.agents[agentA].FreeUnderlyingUBA.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("free underlying: %s", state.agents[agentA].FreeUnderlyingUBA)
	}
}

func TestRedemptionPaymentDefaultAndLateConfirm(t *testing.T) {
	engine, state, ledger, _, _ := newTestEngine(t)
	req := redeemOne(t, engine)

	good := oracle.NonPaymentProof{
		DestinationAddress:     "rDEST",
		Reference:              req.PaymentReference,
		AmountUBA:              big.NewInt(980),
		LastCheckedBlock:       req.LastUnderlyingBlock + 1,
		LastCheckedTimestamp:   req.LastUnderlyingTimestamp + 1,
		LowestQueryWindowBlock: req.FirstUnderlyingBlock,
	}
	if err := engine.RedemptionPaymentDefault(makeAddr(0x99), good, req.ID); err != ErrNotAuthorized {
		t.Fatalf("expected auth rejection, got %v", err)
	}
	early := good
	early.LastCheckedBlock = req.LastUnderlyingBlock
	if err := engine.RedemptionPaymentDefault(redeemer, early, req.ID); err != ErrDefaultTooEarly {
		t.Fatalf("expected too-early rejection, got %v", err)
	}
	wrongAmount := good
	wrongAmount.AmountUBA = big.NewInt(1_000)
	if err := engine.RedemptionPaymentDefault(redeemer, wrongAmount, req.ID); err != ErrNonPaymentMismatch {
		t.Fatalf("expected amount mismatch, got %v", err)
	}
	narrow := good
	narrow.LowestQueryWindowBlock = req.FirstUnderlyingBlock + 1
	if err := engine.RedemptionPaymentDefault(redeemer, narrow, req.ID); err != ErrProofWindowTooShort {
		t.Fatalf("expected window rejection, got %v", err)
	}

	if err := engine.RedemptionPaymentDefault(redeemer, good, req.ID); err != nil {
		t.Fatalf("default: %v", err)
	}
	stored := state.requests[req.ID]
	if stored.Status != RequestDefaultedUnconfirmed {
		t.Fatalf("status: %v", stored.Status)
	}
	if ledger.balance("USDC", redeemer).Cmp(big.NewInt(1_078)) != 0 {
		t.Fatalf("vault compensation: %s", ledger.balance("USDC", redeemer))
	}
	if ledger.balance("WNAT", redeemer).Cmp(big.NewInt(1_098)) != 0 {
		t.Fatalf("pool compensation: %s", ledger.balance("WNAT", redeemer))
	}
	agent := state.agents[agentA]
	if agent.RedeemingAMG.Sign() != 0 || agent.FreeUnderlyingUBA.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("agent after default: redeeming=%s free=%s", agent.RedeemingAMG, agent.FreeUnderlyingUBA)
	}
	if err := engine.RedemptionPaymentDefault(redeemer, good, req.ID); err != ErrWrongRequestStatus {
		t.Fatalf("expected idempotence, got %v", err)
	}

	// A late payment still gets accounted against the agent's balance.
	late := oracle.PaymentProof{
		SourceAddress: "rAGENT-A",
		Reference:     req.PaymentReference,
		SpentUBA:      big.NewInt(980),
		Status:        oracle.PaymentSuccess,
	}
	if err := engine.ConfirmRedemptionPayment(ownerA, late, req.ID); err != nil {
		t.Fatalf("late confirm: %v", err)
	}
	if state.requests[req.ID].Status != RequestDefaultedFailed {
		t.Fatalf("final status: %v", state.requests[req.ID].Status)
	}
	if state.agents[agentA].FreeUnderlyingUBA.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("free underlying after late confirm: %s", state.agents[agentA].FreeUnderlyingUBA)
	}
}

func TestFinishRedemptionWithoutPayment(t *testing.T) {
	engine, state, ledger, _, _ := newTestEngine(t)
	req := redeemOne(t, engine)

	early := oracle.BlockHeightProof{LowestQueryWindowBlock: req.LastUnderlyingBlock}
	if err := engine.FinishRedemptionWithoutPayment(ownerA, early, req.ID); err != ErrStillProvable {
		t.Fatalf("expected still-provable rejection, got %v", err)
	}
	proof := oracle.BlockHeightProof{LowestQueryWindowBlock: req.LastUnderlyingBlock + 1}
	if err := engine.FinishRedemptionWithoutPayment(redeemer, proof, req.ID); err != ErrNotAuthorized {
		t.Fatalf("expected auth rejection, got %v", err)
	}
	if err := engine.FinishRedemptionWithoutPayment(ownerA, proof, req.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if state.requests[req.ID].Status != RequestDefaultedFailed {
		t.Fatalf("status: %v", state.requests[req.ID].Status)
	}
	if ledger.balance("USDC", redeemer).Cmp(big.NewInt(1_078)) != 0 {
		t.Fatalf("compensation: %s", ledger.balance("USDC", redeemer))
	}
	if state.agents[agentA].FreeUnderlyingUBA.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("free underlying: %s", state.agents[agentA].FreeUnderlyingUBA)
	}
}

func TestRejectRedemptionRequest(t *testing.T) {
	engine, state, ledger, _, _ := newTestEngine(t)
	req := redeemOne(t, engine)

	valid := oracle.AddressValidityProof{Address: "rDEST", IsValid: true}
	if err := engine.RejectRedemptionRequest(ownerA, valid, req.ID); err != ErrRejectNotAllowed {
		t.Fatalf("expected valid-address rejection, got %v", err)
	}
	invalid := oracle.AddressValidityProof{Address: "rDEST", IsValid: false}
	if err := engine.RejectRedemptionRequest(redeemer, invalid, req.ID); err != ErrNotAuthorized {
		t.Fatalf("expected auth rejection, got %v", err)
	}
	if err := engine.RejectRedemptionRequest(ownerA, invalid, req.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if state.requests[req.ID].Status != RequestRejected {
		t.Fatalf("status: %v", state.requests[req.ID].Status)
	}
	if ledger.balance("USDC", redeemer).Cmp(big.NewInt(1_078)) != 0 {
		t.Fatalf("compensation: %s", ledger.balance("USDC", redeemer))
	}
}

func TestSelfClose(t *testing.T) {
	engine, state, _, burner, _ := newTestEngine(t)

	if _, err := engine.SelfClose(redeemer, agentA, big.NewInt(500)); err != ErrNotAuthorized {
		t.Fatalf("expected auth rejection, got %v", err)
	}
	if _, err := engine.SelfClose(ownerA, agentA, big.NewInt(0)); err != ErrInvalidAmount {
		t.Fatalf("expected amount rejection, got %v", err)
	}

	// Self-close works at full granularity: 1200 UBA consumes ticket 1 fully
	// and 200 of the dust ticket.
	closed, err := engine.SelfClose(ownerA, agentA, big.NewInt(1_200))
	if err != nil {
		t.Fatalf("self-close: %v", err)
	}
	if closed.Cmp(big.NewInt(1_200)) != 0 {
		t.Fatalf("closed: %s", closed)
	}
	if burner.burned[ownerA].Cmp(big.NewInt(1_200)) != 0 {
		t.Fatalf("burned: %s", burner.burned[ownerA])
	}
	if _, ok := state.tickets[1]; ok {
		t.Fatal("ticket 1 not deleted")
	}
	if state.tickets[3].ValueAMG.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("dust ticket: %s", state.tickets[3].ValueAMG)
	}
	agent := state.agents[agentA]
	if agent.MintedAMG.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("minted AMG: %s", agent.MintedAMG)
	}
	if agent.FreeUnderlyingUBA.Cmp(big.NewInt(1_200)) != 0 {
		t.Fatalf("free underlying: %s", agent.FreeUnderlyingUBA)
	}
}
