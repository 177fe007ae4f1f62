package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"bridgemint/core/types"
	nativecommon "bridgemint/native/common"
	"bridgemint/native/minting"
	"bridgemint/native/redemption"
	"bridgemint/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	return NewManager(db, "FXRP")
}

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func TestAgentRoundTrip(t *testing.T) {
	m := newTestManager(t)

	missing, err := m.GetAgent(addr(1))
	require.NoError(t, err)
	require.Nil(t, missing)

	agent := &types.Agent{
		ID:                 addr(1),
		Owner:              addr(2),
		UnderlyingAddress:  "rAGENT",
		VaultToken:         "USDC",
		VaultCollateralWei: big.NewInt(5000),
		PoolCollateralWei:  big.NewInt(2000),
		AgentPoolTokensWei: big.NewInt(1000),
		MintedAMG:          big.NewInt(100),
		ReservedAMG:        big.NewInt(0),
		RedeemingAMG:       big.NewInt(0),
		FreeUnderlyingUBA:  big.NewInt(50),
	}
	require.NoError(t, m.PutAgent(agent))

	loaded, err := m.GetAgent(addr(1))
	require.NoError(t, err)
	require.Equal(t, agent.UnderlyingAddress, loaded.UnderlyingAddress)
	require.Zero(t, loaded.VaultCollateralWei.Cmp(big.NewInt(5000)))

	list, err := m.ListAgents()
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, m.DeleteAgent(addr(1)))
	missing, err = m.GetAgent(addr(1))
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestSequencesAreIndependent(t *testing.T) {
	m := newTestManager(t)

	first, err := m.NextReservationID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), first)
	second, err := m.NextReservationID()
	require.NoError(t, err)
	require.Equal(t, uint64(2), second)

	reqID, err := m.NextRequestID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), reqID)

	annID, err := m.NextAnnouncementID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), annID)
}

func TestReservationRoundTrip(t *testing.T) {
	m := newTestManager(t)

	cr := &minting.CollateralReservation{
		ID:                   7,
		AgentID:              addr(1),
		Minter:               addr(3),
		Lots:                 2,
		ValueUBA:             big.NewInt(2000),
		FeeUBA:               big.NewInt(40),
		ReservationFeeWei:    big.NewInt(20),
		ExecutorFeeWei:       big.NewInt(0),
		FirstUnderlyingBlock: 10,
	}
	require.NoError(t, m.PutReservation(cr))

	loaded, err := m.GetReservation(7)
	require.NoError(t, err)
	require.Zero(t, loaded.ValueUBA.Cmp(big.NewInt(2000)))

	require.NoError(t, m.DeleteReservation(7))
	gone, err := m.GetReservation(7)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestTicketQueueOrder(t *testing.T) {
	m := newTestManager(t)

	id1, err := m.AddRedemptionTicket(addr(1), big.NewInt(100))
	require.NoError(t, err)
	id2, err := m.AddRedemptionTicket(addr(2), big.NewInt(200))
	require.NoError(t, err)
	id3, err := m.AddRedemptionTicket(addr(1), big.NewInt(300))
	require.NoError(t, err)
	require.True(t, id1 < id2 && id2 < id3)

	queue, err := m.TicketsOldestFirst()
	require.NoError(t, err)
	require.Len(t, queue, 3)
	require.Equal(t, id1, queue[0].ID)
	require.Equal(t, id3, queue[2].ID)
	require.Zero(t, queue[1].ValueAMG.Cmp(big.NewInt(200)))

	agentQueue, err := m.AgentTicketsOldestFirst(addr(1))
	require.NoError(t, err)
	require.Len(t, agentQueue, 2)
	require.Equal(t, id1, agentQueue[0].ID)
	require.Equal(t, id3, agentQueue[1].ID)

	// Shrink then delete, as the engines do while consuming the queue.
	require.NoError(t, m.PutTicket(&redemption.RedemptionTicket{ID: id1, AgentID: addr(1), ValueAMG: big.NewInt(40)}))
	queue, err = m.TicketsOldestFirst()
	require.NoError(t, err)
	require.Zero(t, queue[0].ValueAMG.Cmp(big.NewInt(40)))

	require.NoError(t, m.DeleteTicket(id1))
	queue, err = m.TicketsOldestFirst()
	require.NoError(t, err)
	require.Len(t, queue, 2)
}

func TestRedemptionBelongsToAgent(t *testing.T) {
	m := newTestManager(t)

	ok, err := m.RedemptionBelongsToAgent(99, addr(1))
	require.NoError(t, err)
	require.False(t, ok)

	req := &redemption.RedemptionRequest{
		ID:                1,
		AgentID:           addr(1),
		Redeemer:          addr(4),
		UnderlyingAddress: "rREDEEMER",
		ValueUBA:          big.NewInt(1000),
		FeeUBA:            big.NewInt(20),
		Status:            redemption.RequestActive,
	}
	require.NoError(t, m.PutRequest(req))

	ok, err = m.RedemptionBelongsToAgent(1, addr(1))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.RedemptionBelongsToAgent(1, addr(2))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCursorsAndWatermarksNeverRegress(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.SetUnderlyingCursor(100, 5000))
	require.NoError(t, m.SetUnderlyingCursor(90, 6000))
	block, ts, err := m.UnderlyingCursor()
	require.NoError(t, err)
	require.Equal(t, uint64(100), block)
	require.Equal(t, uint64(6000), ts)

	require.NoError(t, m.SetPaymentWatermark(50, 1000))
	require.NoError(t, m.SetPaymentWatermark(40, 900))
	block, ts, err = m.PaymentWatermark()
	require.NoError(t, err)
	require.Equal(t, uint64(50), block)
	require.Equal(t, uint64(1000), ts)

	require.NoError(t, m.SetRedemptionWatermark(addr(1), 60, 2000))
	require.NoError(t, m.SetRedemptionWatermark(addr(1), 55, 2500))
	block, ts, err = m.RedemptionWatermark(addr(1))
	require.NoError(t, err)
	require.Equal(t, uint64(60), block)
	require.Equal(t, uint64(2500), ts)

	// Other agents keep their own watermark.
	block, ts, err = m.RedemptionWatermark(addr(2))
	require.NoError(t, err)
	require.Zero(t, block)
	require.Zero(t, ts)
}

func TestLedgerTransfer(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Credit("USDC", addr(1), big.NewInt(1000)))
	require.NoError(t, m.Transfer("USDC", addr(1), addr(2), big.NewInt(400)))

	balance, err := m.Balance("USDC", addr(1))
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(600)))
	balance, err = m.Balance("USDC", addr(2))
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(400)))

	err = m.Transfer("USDC", addr(1), addr(2), big.NewInt(601))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestMintAndBurnTrackSupply(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Mint(addr(1), big.NewInt(1000)))
	supply, err := m.TotalSupply()
	require.NoError(t, err)
	require.Zero(t, supply.Cmp(big.NewInt(1000)))

	require.NoError(t, m.Burn(addr(1), big.NewInt(300)))
	supply, err = m.TotalSupply()
	require.NoError(t, err)
	require.Zero(t, supply.Cmp(big.NewInt(700)))

	err = m.Burn(addr(1), big.NewInt(701))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestEmergencyPauseBudget(t *testing.T) {
	m := newTestManager(t)
	m.SetPauseLimits(nativecommon.PauseLimits{MaxDurationSeconds: 100, ResetAfterSeconds: 1000})
	now := int64(10_000)
	m.SetNowFunc(func() int64 { return now })

	require.False(t, m.IsPaused("minting"))

	pause, changed, err := m.EmergencyPause("minting", false, 60)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, now+60, pause.PausedUntil)
	require.True(t, m.IsPaused("minting"))
	require.False(t, m.IsPaused("redemption"))

	// The second pause only gets the remaining 40 seconds of budget.
	pause, changed, err = m.EmergencyPause("minting", false, 100)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, now+100, pause.PausedUntil)

	_, changed, err = m.EmergencyPause("minting", false, 50)
	require.NoError(t, err)
	require.False(t, changed)

	// Governance bypasses the budget and blocks a non-governance unpause.
	pause, changed, err = m.EmergencyPause("minting", true, 500)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, now+500, pause.PausedUntil)

	_, err = m.Unpause("minting", false)
	require.ErrorIs(t, err, nativecommon.ErrPausedByGovernance)
	pause, err = m.Unpause("minting", true)
	require.NoError(t, err)
	require.False(t, pause.Active(now))
	require.False(t, m.IsPaused("minting"))

	// The budget refills after the reset window.
	now += 2000
	pause, changed, err = m.EmergencyPause("minting", false, 100)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, now+100, pause.PausedUntil)
}

func TestParamStoreRoundTrip(t *testing.T) {
	m := newTestManager(t)

	_, ok, err := m.ParamStoreGet("system/settings")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.ParamStoreSet("system/settings", []byte(`{"LotSizeAMG":1000}`)))
	raw, ok, err := m.ParamStoreGet("system/settings")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"LotSizeAMG":1000}`, string(raw))
}
