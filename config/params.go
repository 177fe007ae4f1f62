package config

import (
	"bridgemint/native/agents"
	"bridgemint/native/liquidation"
	"bridgemint/native/minting"
	"bridgemint/native/redemption"
)

// AgentsParams maps the settings onto the agent engine parameter block.
func (s Settings) AgentsParams() agents.Params {
	return agents.Params{
		AssetSymbol:                     s.AssetSymbol,
		PoolTokenSymbol:                 s.PoolTokenSymbol,
		LotSizeAMG:                      s.LotSizeAMG,
		AMGUnitUBA:                      s.AMGUnitUBA,
		WithdrawalWaitMinSeconds:        s.WithdrawalWaitMinSeconds,
		AgentTimelockedOpsWindowSeconds: s.AgentTimelockedOpsWindowSeconds,
	}
}

// MintingParams maps the settings onto the minting engine parameter block.
func (s Settings) MintingParams() minting.Params {
	return minting.Params{
		AssetSymbol:                          s.AssetSymbol,
		PoolTokenSymbol:                      s.PoolTokenSymbol,
		LotSizeAMG:                           s.LotSizeAMG,
		AMGUnitUBA:                           s.AMGUnitUBA,
		CollateralReservationFeeBIPS:         s.CollateralReservationFeeBIPS,
		UnderlyingBlocksForPayment:           s.UnderlyingBlocksForPayment,
		UnderlyingSecondsForPayment:          s.UnderlyingSecondsForPayment,
		VaultCollateralBuyForFlareFactorBIPS: s.VaultCollateralBuyForFlareFactorBIPS,
	}
}

// RedemptionParams maps the settings onto the redemption engine parameter
// block.
func (s Settings) RedemptionParams() redemption.Params {
	return redemption.Params{
		AssetSymbol:                       s.AssetSymbol,
		PoolTokenSymbol:                   s.PoolTokenSymbol,
		LotSizeAMG:                        s.LotSizeAMG,
		AMGUnitUBA:                        s.AMGUnitUBA,
		RedemptionFeeBIPS:                 s.RedemptionFeeBIPS,
		UnderlyingBlocksForPayment:        s.UnderlyingBlocksForPayment,
		UnderlyingSecondsForPayment:       s.UnderlyingSecondsForPayment,
		RedemptionPaymentExtensionSeconds: s.RedemptionPaymentExtensionSeconds,
		RedemptionDefaultFactorVaultBIPS:  s.RedemptionDefaultFactorVaultBIPS,
		RedemptionDefaultFactorPoolBIPS:   s.RedemptionDefaultFactorPoolBIPS,
		ConfirmationByOthersAfterSeconds:  s.ConfirmationByOthersAfterSeconds,
	}
}

// LiquidationParams maps the settings onto the liquidation engine parameter
// block.
func (s Settings) LiquidationParams() liquidation.Params {
	return liquidation.Params{
		AssetSymbol:                s.AssetSymbol,
		PoolTokenSymbol:            s.PoolTokenSymbol,
		AMGUnitUBA:                 s.AMGUnitUBA,
		PaymentChallengeRewardUSD5: s.PaymentChallengeRewardUSD5,
		PaymentChallengeRewardBIPS: s.PaymentChallengeRewardBIPS,
		LiquidationStepSeconds:     s.LiquidationStepSeconds,
		LiquidationFactorVaultBIPS: append([]uint64(nil), s.LiquidationFactorVaultBIPS...),
		LiquidationFactorPoolBIPS:  append([]uint64(nil), s.LiquidationFactorPoolBIPS...),
	}
}
