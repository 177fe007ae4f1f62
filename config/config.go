package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the node configuration loaded from TOML.
type Config struct {
	RPCAddress             string `toml:"RPCAddress"`
	DataDir                string `toml:"DataDir"`
	Backend                string `toml:"Backend"`
	NetworkName            string `toml:"NetworkName"`
	LogLevel               string `toml:"LogLevel"`
	LogFile                string `toml:"LogFile"`
	CollateralRegistryFile string `toml:"CollateralRegistryFile"`

	Protocol Settings `toml:"Protocol"`
}

// Settings is the protocol parameter surface. Updates at runtime go through
// the state manager, which enforces the rate limits; this is the boot-time
// snapshot.
type Settings struct {
	AssetSymbol     string `toml:"AssetSymbol"`
	AssetDecimals   uint8  `toml:"AssetDecimals"`
	PoolTokenSymbol string `toml:"PoolTokenSymbol"`

	LotSizeAMG uint64 `toml:"LotSizeAMG"`
	AMGUnitUBA uint64 `toml:"AMGUnitUBA"`

	CollateralReservationFeeBIPS uint64 `toml:"CollateralReservationFeeBIPS"`
	RedemptionFeeBIPS            uint64 `toml:"RedemptionFeeBIPS"`

	UnderlyingBlocksForPayment  uint64 `toml:"UnderlyingBlocksForPayment"`
	UnderlyingSecondsForPayment uint64 `toml:"UnderlyingSecondsForPayment"`
	AttestationWindowSeconds    uint64 `toml:"AttestationWindowSeconds"`

	RedemptionDefaultFactorVaultBIPS  uint64 `toml:"RedemptionDefaultFactorVaultBIPS"`
	RedemptionDefaultFactorPoolBIPS   uint64 `toml:"RedemptionDefaultFactorPoolBIPS"`
	RedemptionPaymentExtensionSeconds uint64 `toml:"RedemptionPaymentExtensionSeconds"`

	VaultCollateralBuyForFlareFactorBIPS uint64 `toml:"VaultCollateralBuyForFlareFactorBIPS"`
	ConfirmationByOthersAfterSeconds     int64  `toml:"ConfirmationByOthersAfterSeconds"`
	MaxTrustedPriceAgeSeconds            int64  `toml:"MaxTrustedPriceAgeSeconds"`

	PaymentChallengeRewardUSD5 uint64 `toml:"PaymentChallengeRewardUSD5"`
	PaymentChallengeRewardBIPS uint64 `toml:"PaymentChallengeRewardBIPS"`

	LiquidationStepSeconds     int64    `toml:"LiquidationStepSeconds"`
	LiquidationFactorVaultBIPS []uint64 `toml:"LiquidationFactorVaultBIPS"`
	LiquidationFactorPoolBIPS  []uint64 `toml:"LiquidationFactorPoolBIPS"`

	WithdrawalWaitMinSeconds        int64 `toml:"WithdrawalWaitMinSeconds"`
	AgentTimelockedOpsWindowSeconds int64 `toml:"AgentTimelockedOpsWindowSeconds"`

	MinUpdateRepeatTimeSeconds              int64 `toml:"MinUpdateRepeatTimeSeconds"`
	MaxEmergencyPauseDurationSeconds        int64 `toml:"MaxEmergencyPauseDurationSeconds"`
	EmergencyPauseDurationResetAfterSeconds int64 `toml:"EmergencyPauseDurationResetAfterSeconds"`

	AverageBlockTimeMS uint64 `toml:"AverageBlockTimeMS"`
}

// Load loads the configuration from the given path, writing defaults on first
// run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults(path string) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = filepath.Join(filepath.Dir(path), "data")
	}
	if strings.TrimSpace(cfg.Backend) == "" {
		cfg.Backend = "leveldb"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "bridgemint-local"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.CollateralRegistryFile) == "" {
		cfg.CollateralRegistryFile = filepath.Join(filepath.Dir(path), "collateral.yaml")
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{Protocol: DefaultSettings()}
	cfg.applyDefaults(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultSettings returns a conservative parameter set suitable for local
// networks.
func DefaultSettings() Settings {
	return Settings{
		AssetSymbol:     "FXRP",
		AssetDecimals:   6,
		PoolTokenSymbol: "WNAT",

		LotSizeAMG: 10_000,
		AMGUnitUBA: 100,

		CollateralReservationFeeBIPS: 100,
		RedemptionFeeBIPS:            200,

		UnderlyingBlocksForPayment:  500,
		UnderlyingSecondsForPayment: 900,
		AttestationWindowSeconds:    86_400,

		RedemptionDefaultFactorVaultBIPS:  11_000,
		RedemptionDefaultFactorPoolBIPS:   1_000,
		RedemptionPaymentExtensionSeconds: 10,

		VaultCollateralBuyForFlareFactorBIPS: 12_000,
		ConfirmationByOthersAfterSeconds:     21_600,
		MaxTrustedPriceAgeSeconds:            300,

		PaymentChallengeRewardUSD5: 300 * 100_000,
		PaymentChallengeRewardBIPS: 100,

		LiquidationStepSeconds:     180,
		LiquidationFactorVaultBIPS: []uint64{10_000, 10_500, 11_000},
		LiquidationFactorPoolBIPS:  []uint64{1_000, 2_000, 3_000},

		WithdrawalWaitMinSeconds:        300,
		AgentTimelockedOpsWindowSeconds: 3_600,

		MinUpdateRepeatTimeSeconds:              86_400,
		MaxEmergencyPauseDurationSeconds:        86_400,
		EmergencyPauseDurationResetAfterSeconds: 604_800,

		AverageBlockTimeMS: 2_000,
	}
}
