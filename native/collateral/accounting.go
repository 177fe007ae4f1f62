package collateral

import (
	"math/big"

	"bridgemint/native/oracle"
)

// PoolView is the per-pool input to the free-collateral computation: the pool
// balance, the ratio locking it, and the price of the token it is held in.
type PoolView struct {
	TotalWei   *big.Int
	MCRBips    uint64
	TokenPrice oracle.Price
}

// LockedCollateralWei is the collateral earmarked against backed exposure
// (minted plus reserved plus redeeming, in AMG) at the pool's minimum ratio,
// plus any announced withdrawal. Rounds up.
func LockedCollateralWei(pool PoolView, backedAMG, withdrawalWei *big.Int, amgUnitUBA uint64, assetPrice oracle.Price) *big.Int {
	locked := RequiredCollateralWei(backedAMG, amgUnitUBA, assetPrice, pool.TokenPrice, pool.MCRBips)
	if withdrawalWei != nil && withdrawalWei.Sign() > 0 {
		locked.Add(locked, withdrawalWei)
	}
	return locked
}

// FreeCollateralWei is total minus locked, saturating at zero.
func FreeCollateralWei(pool PoolView, backedAMG, withdrawalWei *big.Int, amgUnitUBA uint64, assetPrice oracle.Price) *big.Int {
	total := pool.TotalWei
	if total == nil {
		total = big.NewInt(0)
	}
	locked := LockedCollateralWei(pool, backedAMG, withdrawalWei, amgUnitUBA, assetPrice)
	free := new(big.Int).Sub(total, locked)
	if free.Sign() < 0 {
		return big.NewInt(0)
	}
	return free
}

// LotWei is the collateral required to back one lot in this pool. Rounds up so
// the lot count below never overstates capacity.
func LotWei(pool PoolView, lotSizeAMG, amgUnitUBA uint64, assetPrice oracle.Price) *big.Int {
	lotAMG := new(big.Int).SetUint64(lotSizeAMG)
	return RequiredCollateralWei(lotAMG, amgUnitUBA, assetPrice, pool.TokenPrice, pool.MCRBips)
}

// FreeLots is the number of additional lots the pool can back.
func FreeLots(pool PoolView, backedAMG, withdrawalWei *big.Int, lotSizeAMG, amgUnitUBA uint64, assetPrice oracle.Price) *big.Int {
	lotWei := LotWei(pool, lotSizeAMG, amgUnitUBA, assetPrice)
	if lotWei.Sign() == 0 {
		return big.NewInt(0)
	}
	free := FreeCollateralWei(pool, backedAMG, withdrawalWei, amgUnitUBA, assetPrice)
	return free.Quo(free, lotWei)
}

// MinFreeLots is the conjunction over all pools: an agent may only accept new
// reservations up to the minimum of every pool's free lot count.
func MinFreeLots(pools []PoolView, backedAMG, withdrawalWei *big.Int, lotSizeAMG, amgUnitUBA uint64, assetPrice oracle.Price) *big.Int {
	var min *big.Int
	for i, pool := range pools {
		// The announced withdrawal only binds the vault pool, by convention the
		// first entry.
		withdrawal := withdrawalWei
		if i > 0 {
			withdrawal = nil
		}
		lots := FreeLots(pool, backedAMG, withdrawal, lotSizeAMG, amgUnitUBA, assetPrice)
		if min == nil || lots.Cmp(min) < 0 {
			min = lots
		}
	}
	if min == nil {
		return big.NewInt(0)
	}
	return min
}
