package agents

import (
	"math/big"
	"testing"

	"bridgemint/core/types"
	"bridgemint/native/collateral"
	"bridgemint/native/oracle"
	"bridgemint/native/reference"
)

type mockState struct {
	agents         map[[20]byte]*types.Agent
	announcementID uint64
}

func newMockState() *mockState {
	return &mockState{agents: make(map[[20]byte]*types.Agent)}
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

func (m *mockState) DeleteAgent(id [20]byte) error {
	delete(m.agents, id)
	return nil
}

func (m *mockState) NextAnnouncementID() (uint64, error) {
	m.announcementID++
	return m.announcementID, nil
}

type mockLedger struct {
	transfers []string
	balances  map[string]map[[20]byte]*big.Int
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
	fromBal := m.balance(symbol, from)
	m.balances[symbol][from] = new(big.Int).Sub(fromBal, amount)
	m.balances[symbol][to] = new(big.Int).Add(m.balance(symbol, to), amount)
	m.transfers = append(m.transfers, symbol)
	return nil
}

func testRegistry(t *testing.T) *collateral.Registry {
	t.Helper()
	reg := collateral.NewRegistry()
	if err := reg.Add(collateral.Type{Symbol: "USDC", Class: collateral.ClassVault, Decimals: 6, MinCollateralRatioBIPS: 15_000, SafetyMinCollateralRatioBIPS: 16_000}); err != nil {
		t.Fatalf("add vault type: %v", err)
	}
	if err := reg.Add(collateral.Type{Symbol: "USDT", Class: collateral.ClassVault, Decimals: 6, MinCollateralRatioBIPS: 15_000, SafetyMinCollateralRatioBIPS: 16_000}); err != nil {
		t.Fatalf("add second vault type: %v", err)
	}
	if err := reg.Add(collateral.Type{Symbol: "WNAT", Class: collateral.ClassPool, Decimals: 18, MinCollateralRatioBIPS: 20_000, SafetyMinCollateralRatioBIPS: 21_000}); err != nil {
		t.Fatalf("add pool type: %v", err)
	}
	return reg
}

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
	return staticPrices{"FXRP": one, "USDC": one, "USDT": one, "WNAT": one}
}

func testParams() Params {
	return Params{
		AssetSymbol:                     "FXRP",
		PoolTokenSymbol:                 "WNAT",
		LotSizeAMG:                      10,
		AMGUnitUBA:                      1,
		WithdrawalWaitMinSeconds:        300,
		AgentTimelockedOpsWindowSeconds: 3600,
	}
}

func makeAddr(b byte) [20]byte {
	var addr [20]byte
	addr[0] = b
	return addr
}

func newTestEngine(t *testing.T) (*Engine, *mockState, *mockLedger, *int64) {
	t.Helper()
	engine := NewEngine(testRegistry(t), unitPrices(), testParams())
	state := newMockState()
	ledger := newMockLedger()
	engine.SetState(state)
	engine.SetLedger(ledger)
	now := int64(1_000)
	engine.SetNowFunc(func() int64 { return now })
	return engine, state, ledger, &now
}

func createTestAgent(t *testing.T, engine *Engine, owner [20]byte) *types.Agent {
	t.Helper()
	agent, err := engine.CreateAgent(owner, oracle.AddressValidityProof{Address: "rAGENT", IsValid: true}, "USDC", 500, 3000)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return agent
}

func TestCreateAgentValidation(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	owner := makeAddr(0x01)

	if _, err := engine.CreateAgent(owner, oracle.AddressValidityProof{Address: "rAGENT", IsValid: false}, "USDC", 500, 3000); err != ErrInvalidAddressProof {
		t.Fatalf("expected address proof rejection, got %v", err)
	}
	if _, err := engine.CreateAgent(owner, oracle.AddressValidityProof{Address: "rAGENT", IsValid: true}, "WNAT", 500, 3000); err != collateral.ErrTypeInvalid {
		t.Fatalf("expected pool class rejection, got %v", err)
	}
	agent := createTestAgent(t, engine, owner)
	if agent.Status != types.AgentNormal || agent.VaultToken != "USDC" {
		t.Fatalf("unexpected agent: %+v", agent)
	}
	if _, err := engine.CreateAgent(owner, oracle.AddressValidityProof{Address: "rAGENT", IsValid: true}, "USDC", 500, 3000); err != ErrAgentExists {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestCreateAgentRejectsDeprecatedVaultToken(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	if err := engine.registry.Deprecate("USDC", 10_000); err != nil {
		t.Fatalf("deprecate: %v", err)
	}
	if _, err := engine.CreateAgent(makeAddr(1), oracle.AddressValidityProof{Address: "rAGENT", IsValid: true}, "USDC", 500, 3000); err != collateral.ErrTypeDeprecated {
		t.Fatalf("expected deprecated rejection, got %v", err)
	}
}

func TestDepositAndFreeLots(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	owner := makeAddr(0x01)
	agent := createTestAgent(t, engine, owner)
	ledger.credit("USDC", owner, 300_000_000)
	ledger.credit("WNAT", owner, 600_000_000)

	if err := engine.DepositVaultCollateral(owner, agent.ID, big.NewInt(300_000_000)); err != nil {
		t.Fatalf("deposit vault: %v", err)
	}
	if err := engine.DepositPoolCollateral(owner, agent.ID, big.NewInt(300_000_000)); err != nil {
		t.Fatalf("deposit pool: %v", err)
	}

	stored := state.agents[agent.ID]
	if stored.VaultCollateralWei.Cmp(big.NewInt(300_000_000)) != 0 {
		t.Fatalf("vault collateral: %s", stored.VaultCollateralWei)
	}
	if stored.AgentPoolTokensWei.Cmp(big.NewInt(300_000_000)) != 0 {
		t.Fatalf("agent pool tokens: %s", stored.AgentPoolTokensWei)
	}
	if ledger.balance("USDC", agent.ID).Cmp(big.NewInt(300_000_000)) != 0 {
		t.Fatalf("ledger vault balance: %s", ledger.balance("USDC", agent.ID))
	}

	// Vault lot costs 15 wei (MCR 150%), pool lot 20 wei (MCR 200%).
	lots, err := engine.FreeLots(agent.ID)
	if err != nil {
		t.Fatalf("free lots: %v", err)
	}
	if lots.Cmp(big.NewInt(15_000_000)) != 0 {
		t.Fatalf("expected pool-constrained lots, got %s", lots)
	}

	if err := engine.DepositVaultCollateral(makeAddr(0x02), agent.ID, big.NewInt(1)); err != ErrNotOwner {
		t.Fatalf("expected owner rejection, got %v", err)
	}
}

func TestExitPool(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	owner := makeAddr(0x01)
	agent := createTestAgent(t, engine, owner)
	ledger.credit("WNAT", owner, 300)
	if err := engine.DepositPoolCollateral(owner, agent.ID, big.NewInt(300)); err != nil {
		t.Fatalf("deposit pool: %v", err)
	}

	if err := engine.ExitPool(makeAddr(0x02), agent.ID, big.NewInt(10)); err != ErrNotOwner {
		t.Fatalf("expected owner rejection, got %v", err)
	}
	if err := engine.ExitPool(owner, agent.ID, big.NewInt(400)); err != ErrInvalidAmount {
		t.Fatalf("expected amount rejection, got %v", err)
	}

	// 100 AMG minted at pool MCR 200% locks 200 wei of pool collateral.
	backed := state.agents[agent.ID].Clone()
	backed.MintedAMG = big.NewInt(100)
	state.agents[agent.ID] = backed
	if err := engine.ExitPool(owner, agent.ID, big.NewInt(150)); err != ErrUnderCollateralized {
		t.Fatalf("expected under-collateralized rejection, got %v", err)
	}
	if err := engine.ExitPool(owner, agent.ID, big.NewInt(100)); err != nil {
		t.Fatalf("exit pool: %v", err)
	}
	stored := state.agents[agent.ID]
	if stored.PoolCollateralWei.Cmp(big.NewInt(200)) != 0 || stored.AgentPoolTokensWei.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("pool balances: %s / %s", stored.PoolCollateralWei, stored.AgentPoolTokensWei)
	}
	if ledger.balance("WNAT", owner).Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("owner pool tokens: %s", ledger.balance("WNAT", owner))
	}
}

func TestWithdrawalAnnounceAndComplete(t *testing.T) {
	engine, state, ledger, now := newTestEngine(t)
	owner := makeAddr(0x01)
	agent := createTestAgent(t, engine, owner)
	ledger.credit("USDC", owner, 1_000)
	if err := engine.DepositVaultCollateral(owner, agent.ID, big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := engine.AnnounceVaultWithdrawal(owner, agent.ID, big.NewInt(2_000)); err != ErrUnderCollateralized {
		t.Fatalf("expected under-collateralized rejection, got %v", err)
	}
	announcementID, err := engine.AnnounceVaultWithdrawal(owner, agent.ID, big.NewInt(400))
	if err != nil {
		t.Fatalf("announce: %v", err)
	}
	if announcementID == 0 {
		t.Fatal("expected nonzero announcement id")
	}
	if _, err := engine.AnnounceVaultWithdrawal(owner, agent.ID, big.NewInt(100)); err != ErrWithdrawalPending {
		t.Fatalf("expected pending rejection, got %v", err)
	}
	if err := engine.WithdrawVaultCollateral(owner, agent.ID); err != ErrWithdrawalTooEarly {
		t.Fatalf("expected too-early rejection, got %v", err)
	}
	*now += 301
	if err := engine.WithdrawVaultCollateral(owner, agent.ID); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	stored := state.agents[agent.ID]
	if stored.VaultCollateralWei.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("remaining collateral: %s", stored.VaultCollateralWei)
	}
	if ledger.balance("USDC", owner).Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("owner balance: %s", ledger.balance("USDC", owner))
	}
}

func TestConfirmTopupPayment(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	owner := makeAddr(0x01)
	agent := createTestAgent(t, engine, owner)

	good := oracle.PaymentProof{
		ReceivingAddress: "rAGENT",
		Reference:        reference.Topup(agent.ID),
		ReceivedUBA:      big.NewInt(5_000),
		Status:           oracle.PaymentSuccess,
	}
	if err := engine.ConfirmTopupPayment(owner, agent.ID, good); err != nil {
		t.Fatalf("confirm topup: %v", err)
	}
	if state.agents[agent.ID].FreeUnderlyingUBA.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("free underlying: %s", state.agents[agent.ID].FreeUnderlyingUBA)
	}

	wrongRef := good
	wrongRef.Reference = reference.SelfMint(agent.ID)
	if err := engine.ConfirmTopupPayment(owner, agent.ID, wrongRef); err != ErrTopupMismatch {
		t.Fatalf("expected reference mismatch, got %v", err)
	}
	wrongAddr := good
	wrongAddr.ReceivingAddress = "rOTHER"
	if err := engine.ConfirmTopupPayment(owner, agent.ID, wrongAddr); err != ErrTopupMismatch {
		t.Fatalf("expected address mismatch, got %v", err)
	}
}

func TestSwitchVaultCollateral(t *testing.T) {
	engine, state, ledger, _ := newTestEngine(t)
	owner := makeAddr(0x01)
	agent := createTestAgent(t, engine, owner)
	ledger.credit("USDC", owner, 1_000)
	if err := engine.DepositVaultCollateral(owner, agent.ID, big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.SwitchVaultCollateral(owner, agent.ID, "USDC"); err != ErrSwitchNotAllowed {
		t.Fatalf("expected same-token rejection, got %v", err)
	}
	if err := engine.SwitchVaultCollateral(owner, agent.ID, "USDT"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if state.agents[agent.ID].VaultToken != "USDT" {
		t.Fatalf("vault token not switched: %s", state.agents[agent.ID].VaultToken)
	}
	if state.agents[agent.ID].VaultCollateralWei.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("converted balance: %s", state.agents[agent.ID].VaultCollateralWei)
	}
}

func TestTimelockedFeeSettings(t *testing.T) {
	engine, _, _, now := newTestEngine(t)
	owner := makeAddr(0x01)
	agent := createTestAgent(t, engine, owner)

	if err := engine.SetFeeBIPS(owner, agent.ID, 20_000); err != ErrFeeOutOfRange {
		t.Fatalf("expected range rejection, got %v", err)
	}
	if err := engine.SetFeeBIPS(owner, agent.ID, 700); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	loaded, err := engine.loadAgent(agent.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.FeeBIPS != 500 {
		t.Fatalf("fee applied before timelock: %d", loaded.FeeBIPS)
	}
	*now += 3601
	loaded, err = engine.loadAgent(agent.ID)
	if err != nil {
		t.Fatalf("load after timelock: %v", err)
	}
	if loaded.FeeBIPS != 700 || loaded.PendingFeeBIPS != nil {
		t.Fatalf("fee not applied after timelock: %+v", loaded)
	}
}

func TestDestroyAgentLifecycle(t *testing.T) {
	engine, state, ledger, now := newTestEngine(t)
	owner := makeAddr(0x01)
	agent := createTestAgent(t, engine, owner)
	ledger.credit("USDC", owner, 500)
	if err := engine.DepositVaultCollateral(owner, agent.ID, big.NewInt(500)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := engine.DestroyAgent(owner, agent.ID); err != ErrDestroyNotAnnounced {
		t.Fatalf("expected not-announced rejection, got %v", err)
	}
	if err := engine.AnnounceDestroy(owner, agent.ID); err != nil {
		t.Fatalf("announce destroy: %v", err)
	}
	if err := engine.DestroyAgent(owner, agent.ID); err != ErrDestroyTooEarly {
		t.Fatalf("expected too-early rejection, got %v", err)
	}
	*now += 3601

	// Outstanding exposure blocks destruction.
	withExposure := state.agents[agent.ID].Clone()
	withExposure.MintedAMG = big.NewInt(10)
	state.agents[agent.ID] = withExposure
	if err := engine.DestroyAgent(owner, agent.ID); err != ErrExposureOutstanding {
		t.Fatalf("expected exposure rejection, got %v", err)
	}
	withExposure = state.agents[agent.ID].Clone()
	withExposure.MintedAMG = big.NewInt(0)
	state.agents[agent.ID] = withExposure

	if err := engine.DestroyAgent(owner, agent.ID); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, ok := state.agents[agent.ID]; ok {
		t.Fatal("agent not deleted")
	}
	if ledger.balance("USDC", owner).Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("collateral not returned: %s", ledger.balance("USDC", owner))
	}
}
