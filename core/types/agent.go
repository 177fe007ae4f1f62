package types

import "math/big"

// AgentStatus tracks which collateral regime an agent currently operates in.
type AgentStatus uint8

const (
	// AgentNormal is the only status in which new reservations are accepted.
	AgentNormal AgentStatus = iota
	// AgentLiquidation is entered when the collateral ratio drops below the
	// minimum and is exited once the ratio recovers above the safety level.
	AgentLiquidation
	// AgentFullLiquidation is entered through a successful challenge and can
	// only be exited by destroying the agent.
	AgentFullLiquidation
	// AgentDestroying marks an agent that has announced destruction.
	AgentDestroying
)

// Valid reports whether the status value is within the supported range.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentNormal, AgentLiquidation, AgentFullLiquidation, AgentDestroying:
		return true
	default:
		return false
	}
}

func (s AgentStatus) String() string {
	switch s {
	case AgentNormal:
		return "normal"
	case AgentLiquidation:
		return "liquidation"
	case AgentFullLiquidation:
		return "full-liquidation"
	case AgentDestroying:
		return "destroying"
	default:
		return "unknown"
	}
}

// PendingSetting records a timelocked change to an agent-controlled value.
// The new value becomes effective once the ledger clock passes EffectiveAt.
type PendingSetting struct {
	Value       uint64 `json:"value"`
	EffectiveAt int64  `json:"effectiveAt"`
}

// Agent is one collateral-backed issuer. All monetary fields are unsigned
// fixed-point integers: collateral in token wei, exposure in AMG, underlying
// balances in UBA.
type Agent struct {
	ID                [20]byte `json:"id"`
	Owner             [20]byte `json:"owner"`
	UnderlyingAddress string   `json:"underlyingAddress"`
	Status            AgentStatus
	PubliclyAvailable bool `json:"publiclyAvailable"`

	// VaultToken names the collateral type backing this agent's vault.
	VaultToken string `json:"vaultToken"`

	VaultCollateralWei *big.Int `json:"vaultCollateralWei"`
	PoolCollateralWei  *big.Int `json:"poolCollateralWei"`
	AgentPoolTokensWei *big.Int `json:"agentPoolTokensWei"`

	MintedAMG    *big.Int `json:"mintedAMG"`
	ReservedAMG  *big.Int `json:"reservedAMG"`
	RedeemingAMG *big.Int `json:"redeemingAMG"`

	FeeBIPS                 uint64          `json:"feeBIPS"`
	PoolFeeShareBIPS        uint64          `json:"poolFeeShareBIPS"`
	PendingFeeBIPS          *PendingSetting `json:"pendingFeeBIPS,omitempty"`
	PendingPoolFeeShareBIPS *PendingSetting `json:"pendingPoolFeeShareBIPS,omitempty"`

	// FreeUnderlyingUBA is the engine's view of the agent's spendable balance
	// on the external chain, maintained from confirmed payments.
	FreeUnderlyingUBA *big.Int `json:"freeUnderlyingUBA"`

	AnnouncedWithdrawalWei *big.Int `json:"announcedWithdrawalWei"`
	WithdrawalAnnouncedAt  int64    `json:"withdrawalAnnouncedAt"`
	WithdrawalAnnouncement uint64   `json:"withdrawalAnnouncement"`

	DestroyAnnouncedAt int64 `json:"destroyAnnouncedAt"`

	// LiquidationStartedAt anchors the escalating payout factor schedule.
	LiquidationStartedAt int64 `json:"liquidationStartedAt"`

	CreatedAt int64 `json:"createdAt"`
}

// Clone returns a deep copy so callers can mutate the copy without affecting
// the stored instance.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	clone := *a
	clone.VaultCollateralWei = cloneBig(a.VaultCollateralWei)
	clone.PoolCollateralWei = cloneBig(a.PoolCollateralWei)
	clone.AgentPoolTokensWei = cloneBig(a.AgentPoolTokensWei)
	clone.MintedAMG = cloneBig(a.MintedAMG)
	clone.ReservedAMG = cloneBig(a.ReservedAMG)
	clone.RedeemingAMG = cloneBig(a.RedeemingAMG)
	clone.FreeUnderlyingUBA = cloneBig(a.FreeUnderlyingUBA)
	clone.AnnouncedWithdrawalWei = cloneBig(a.AnnouncedWithdrawalWei)
	if a.PendingFeeBIPS != nil {
		pending := *a.PendingFeeBIPS
		clone.PendingFeeBIPS = &pending
	}
	if a.PendingPoolFeeShareBIPS != nil {
		pending := *a.PendingPoolFeeShareBIPS
		clone.PendingPoolFeeShareBIPS = &pending
	}
	return &clone
}

// Normalize replaces nil monetary fields with zero values. State backends call
// this after decoding so the engines never see nil big.Ints.
func (a *Agent) Normalize() *Agent {
	if a == nil {
		return nil
	}
	if a.VaultCollateralWei == nil {
		a.VaultCollateralWei = big.NewInt(0)
	}
	if a.PoolCollateralWei == nil {
		a.PoolCollateralWei = big.NewInt(0)
	}
	if a.AgentPoolTokensWei == nil {
		a.AgentPoolTokensWei = big.NewInt(0)
	}
	if a.MintedAMG == nil {
		a.MintedAMG = big.NewInt(0)
	}
	if a.ReservedAMG == nil {
		a.ReservedAMG = big.NewInt(0)
	}
	if a.RedeemingAMG == nil {
		a.RedeemingAMG = big.NewInt(0)
	}
	if a.FreeUnderlyingUBA == nil {
		a.FreeUnderlyingUBA = big.NewInt(0)
	}
	if a.AnnouncedWithdrawalWei == nil {
		a.AnnouncedWithdrawalWei = big.NewInt(0)
	}
	return a
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
