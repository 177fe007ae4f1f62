package collateral

import (
	"math/big"

	"bridgemint/native/oracle"
)

// MaxBIPS is the basis point denominator used across all ratio math.
const MaxBIPS = 10_000

var (
	bigMaxBIPS = big.NewInt(MaxBIPS)
	// UnlimitedRatioBIPS is returned as the collateral ratio of an agent with
	// zero backed exposure.
	UnlimitedRatioBIPS = new(big.Int).Lsh(big.NewInt(1), 128)
)

// mulDivDown computes value * num / den rounding towards zero.
func mulDivDown(value, num, den *big.Int) *big.Int {
	out := new(big.Int).Mul(value, num)
	return out.Quo(out, den)
}

// mulDivUp computes value * num / den rounding away from zero. Required
// collateral must always round up so callers can never under-collateralize
// through truncation.
func mulDivUp(value, num, den *big.Int) *big.Int {
	out := new(big.Int).Mul(value, num)
	out.Add(out, new(big.Int).Sub(den, big.NewInt(1)))
	return out.Quo(out, den)
}

// AMGToUBA converts asset minting granularity units to underlying base amount.
func AMGToUBA(valueAMG *big.Int, amgUnitUBA uint64) *big.Int {
	if valueAMG == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(valueAMG, new(big.Int).SetUint64(amgUnitUBA))
}

// UBAToAMG converts underlying base amount to AMG, rounding down.
func UBAToAMG(valueUBA *big.Int, amgUnitUBA uint64) *big.Int {
	if valueUBA == nil || amgUnitUBA == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(valueUBA, new(big.Int).SetUint64(amgUnitUBA))
}

// AMGToTokenWei converts an AMG value to collateral token wei at the supplied
// prices. Asset prices are quoted in USD per UBA, token prices in USD per wei.
// roundUp selects the rounding direction: up when computing required
// collateral, down when computing entitlements.
func AMGToTokenWei(valueAMG *big.Int, amgUnitUBA uint64, assetPrice, tokenPrice oracle.Price, roundUp bool) *big.Int {
	if valueAMG == nil || valueAMG.Sign() == 0 {
		return big.NewInt(0)
	}
	valueUBA := AMGToUBA(valueAMG, amgUnitUBA)
	num := new(big.Int).Mul(assetPrice.Num, tokenPrice.Den)
	den := new(big.Int).Mul(assetPrice.Den, tokenPrice.Num)
	if roundUp {
		return mulDivUp(valueUBA, num, den)
	}
	return mulDivDown(valueUBA, num, den)
}

// UBAToTokenWei converts an UBA value directly, with the same price and
// rounding semantics as AMGToTokenWei.
func UBAToTokenWei(valueUBA *big.Int, assetPrice, tokenPrice oracle.Price, roundUp bool) *big.Int {
	if valueUBA == nil || valueUBA.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(assetPrice.Num, tokenPrice.Den)
	den := new(big.Int).Mul(assetPrice.Den, tokenPrice.Num)
	if roundUp {
		return mulDivUp(valueUBA, num, den)
	}
	return mulDivDown(valueUBA, num, den)
}

// RequiredCollateralWei is the collateral that must back valueAMG at the
// minimum collateral ratio. Rounds up.
func RequiredCollateralWei(valueAMG *big.Int, amgUnitUBA uint64, assetPrice, tokenPrice oracle.Price, mcrBIPS uint64) *big.Int {
	wei := AMGToTokenWei(valueAMG, amgUnitUBA, assetPrice, tokenPrice, true)
	return mulDivUp(wei, new(big.Int).SetUint64(mcrBIPS), bigMaxBIPS)
}

// USDToTokenWei converts a USD amount scaled by 1e5 (the challenge reward
// quoting convention) into token wei at the supplied token price. Rounds down.
func USDToTokenWei(valueUSD5 *big.Int, tokenPrice oracle.Price) *big.Int {
	if valueUSD5 == nil || valueUSD5.Sign() == 0 {
		return big.NewInt(0)
	}
	den := new(big.Int).Mul(tokenPrice.Num, big.NewInt(100_000))
	return mulDivDown(valueUSD5, tokenPrice.Den, den)
}

// CollateralRatioBIPS is collateralWei relative to the token value of the
// backed AMG exposure, in basis points, rounding down. Zero exposure yields
// UnlimitedRatioBIPS.
func CollateralRatioBIPS(collateralWei, backedAMG *big.Int, amgUnitUBA uint64, assetPrice, tokenPrice oracle.Price) *big.Int {
	if backedAMG == nil || backedAMG.Sign() == 0 {
		return new(big.Int).Set(UnlimitedRatioBIPS)
	}
	if collateralWei == nil || collateralWei.Sign() == 0 {
		return big.NewInt(0)
	}
	backedWei := AMGToTokenWei(backedAMG, amgUnitUBA, assetPrice, tokenPrice, true)
	if backedWei.Sign() == 0 {
		return new(big.Int).Set(UnlimitedRatioBIPS)
	}
	return mulDivDown(collateralWei, bigMaxBIPS, backedWei)
}
