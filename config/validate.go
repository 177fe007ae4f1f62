package config

import (
	"fmt"
	"strings"

	"bridgemint/native/collateral"
)

var validBackends = map[string]bool{
	"memory":  true,
	"leveldb": true,
	"bolt":    true,
}

// Validate checks the node configuration for obvious misconfiguration before
// any state is opened.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if !validBackends[strings.ToLower(strings.TrimSpace(cfg.Backend))] {
		return fmt.Errorf("config: unknown storage backend %q", cfg.Backend)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	return cfg.Protocol.Validate()
}

// Validate checks the protocol parameter bounds.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.AssetSymbol) == "" {
		return fmt.Errorf("config: AssetSymbol must not be empty")
	}
	if strings.TrimSpace(s.PoolTokenSymbol) == "" {
		return fmt.Errorf("config: PoolTokenSymbol must not be empty")
	}
	if s.LotSizeAMG == 0 {
		return fmt.Errorf("config: LotSizeAMG must be positive")
	}
	if s.AMGUnitUBA == 0 {
		return fmt.Errorf("config: AMGUnitUBA must be positive")
	}
	if s.CollateralReservationFeeBIPS > collateral.MaxBIPS {
		return fmt.Errorf("config: CollateralReservationFeeBIPS above %d", collateral.MaxBIPS)
	}
	if s.RedemptionFeeBIPS > collateral.MaxBIPS {
		return fmt.Errorf("config: RedemptionFeeBIPS above %d", collateral.MaxBIPS)
	}
	if s.UnderlyingBlocksForPayment == 0 || s.UnderlyingSecondsForPayment == 0 {
		return fmt.Errorf("config: underlying payment window must be positive")
	}
	if s.RedemptionDefaultFactorVaultBIPS+s.RedemptionDefaultFactorPoolBIPS <= collateral.MaxBIPS {
		return fmt.Errorf("config: redemption default factors must exceed %d combined", collateral.MaxBIPS)
	}
	if s.VaultCollateralBuyForFlareFactorBIPS < collateral.MaxBIPS {
		return fmt.Errorf("config: VaultCollateralBuyForFlareFactorBIPS below %d", collateral.MaxBIPS)
	}
	if s.ConfirmationByOthersAfterSeconds <= 0 {
		return fmt.Errorf("config: ConfirmationByOthersAfterSeconds must be positive")
	}
	if len(s.LiquidationFactorVaultBIPS) == 0 {
		return fmt.Errorf("config: LiquidationFactorVaultBIPS must not be empty")
	}
	if len(s.LiquidationFactorVaultBIPS) != len(s.LiquidationFactorPoolBIPS) {
		return fmt.Errorf("config: liquidation factor lists must be the same length")
	}
	for i, factor := range s.LiquidationFactorVaultBIPS {
		if factor < collateral.MaxBIPS {
			return fmt.Errorf("config: LiquidationFactorVaultBIPS[%d] below %d", i, collateral.MaxBIPS)
		}
		if i > 0 && factor < s.LiquidationFactorVaultBIPS[i-1] {
			return fmt.Errorf("config: LiquidationFactorVaultBIPS must be non-decreasing")
		}
	}
	if s.LiquidationStepSeconds <= 0 {
		return fmt.Errorf("config: LiquidationStepSeconds must be positive")
	}
	if s.WithdrawalWaitMinSeconds <= 0 {
		return fmt.Errorf("config: WithdrawalWaitMinSeconds must be positive")
	}
	if s.AgentTimelockedOpsWindowSeconds <= 0 {
		return fmt.Errorf("config: AgentTimelockedOpsWindowSeconds must be positive")
	}
	if s.MinUpdateRepeatTimeSeconds <= 0 {
		return fmt.Errorf("config: MinUpdateRepeatTimeSeconds must be positive")
	}
	if s.MaxEmergencyPauseDurationSeconds <= 0 {
		return fmt.Errorf("config: MaxEmergencyPauseDurationSeconds must be positive")
	}
	if s.EmergencyPauseDurationResetAfterSeconds < s.MaxEmergencyPauseDurationSeconds {
		return fmt.Errorf("config: EmergencyPauseDurationResetAfterSeconds must cover at least one full pause budget")
	}
	if s.AverageBlockTimeMS == 0 {
		return fmt.Errorf("config: AverageBlockTimeMS must be positive")
	}
	return nil
}
