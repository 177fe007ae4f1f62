package collateral

import (
	"math/big"
	"testing"

	"bridgemint/native/oracle"
)

func price(num, den int64) oracle.Price {
	return oracle.Price{Num: big.NewInt(num), Den: big.NewInt(den)}
}

func TestAMGUBAConversions(t *testing.T) {
	if got := AMGToUBA(big.NewInt(7), 100); got.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("amg->uba: %s", got)
	}
	if got := UBAToAMG(big.NewInt(799), 100); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("uba->amg should round down: %s", got)
	}
	if got := UBAToAMG(nil, 100); got.Sign() != 0 {
		t.Fatalf("nil uba: %s", got)
	}
}

func TestAMGToTokenWeiRoundingDirections(t *testing.T) {
	// 1 AMG = 10 UBA; asset 1/3 USD per UBA; token 1 USD per wei.
	asset := price(1, 3)
	token := price(1, 1)
	up := AMGToTokenWei(big.NewInt(1), 10, asset, token, true)
	down := AMGToTokenWei(big.NewInt(1), 10, asset, token, false)
	// 10/3 = 3.33..
	if up.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("expected round up to 4, got %s", up)
	}
	if down.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("expected round down to 3, got %s", down)
	}
}

func TestRequiredCollateralRoundsUp(t *testing.T) {
	asset := price(1, 1)
	token := price(1, 1)
	// 1 AMG = 1 UBA = 1 wei; MCR 15001 BIPS -> 1.5001 wei -> 2.
	required := RequiredCollateralWei(big.NewInt(1), 1, asset, token, 15_001)
	if required.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected 2, got %s", required)
	}
}

func TestCollateralRatioBIPS(t *testing.T) {
	asset := price(1, 1)
	token := price(1, 1)
	ratio := CollateralRatioBIPS(big.NewInt(300), big.NewInt(200), 1, asset, token)
	if ratio.Cmp(big.NewInt(15_000)) != 0 {
		t.Fatalf("expected 15000, got %s", ratio)
	}
	unlimited := CollateralRatioBIPS(big.NewInt(300), big.NewInt(0), 1, asset, token)
	if unlimited.Cmp(UnlimitedRatioBIPS) != 0 {
		t.Fatalf("expected unlimited ratio for zero exposure, got %s", unlimited)
	}
	zero := CollateralRatioBIPS(big.NewInt(0), big.NewInt(5), 1, asset, token)
	if zero.Sign() != 0 {
		t.Fatalf("expected zero ratio, got %s", zero)
	}
}

func TestUSDToTokenWei(t *testing.T) {
	// Token worth 2 USD per wei; 300 USD (scaled 1e5) buys 150 wei.
	token := price(2, 1)
	wei := USDToTokenWei(big.NewInt(300*100_000), token)
	if wei.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected 150 wei, got %s", wei)
	}
}

func TestFreeLotsAndMinConjunction(t *testing.T) {
	asset := price(1, 1)
	// 1 AMG = 1 UBA = 1 wei at price 1; lot = 10 AMG; MCR 15000 -> lotWei 15.
	vault := PoolView{TotalWei: big.NewInt(300_000_000), MCRBips: 15_000, TokenPrice: price(1, 1)}
	pool := PoolView{TotalWei: big.NewInt(300_000_000), MCRBips: 20_000, TokenPrice: price(1, 1)}

	lots := FreeLots(vault, big.NewInt(0), nil, 10, 1, asset)
	if lots.Cmp(big.NewInt(20_000_000)) != 0 {
		t.Fatalf("vault free lots: %s", lots)
	}
	// Pool lot costs 20 wei, so the pool constrains the minimum.
	min := MinFreeLots([]PoolView{vault, pool}, big.NewInt(0), nil, 10, 1, asset)
	if min.Cmp(big.NewInt(15_000_000)) != 0 {
		t.Fatalf("min free lots: %s", min)
	}
}

func TestFreeLotsShrinkWithExposureAndWithdrawal(t *testing.T) {
	asset := price(1, 1)
	vault := PoolView{TotalWei: big.NewInt(1_000), MCRBips: 10_000, TokenPrice: price(1, 1)}
	// Lot = 10 AMG -> lotWei 10. No exposure: 100 lots.
	if got := FreeLots(vault, big.NewInt(0), nil, 10, 1, asset); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("baseline lots: %s", got)
	}
	// 50 AMG backed locks 50 wei -> 95 lots.
	if got := FreeLots(vault, big.NewInt(50), nil, 10, 1, asset); got.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("exposure lots: %s", got)
	}
	// Announced withdrawal of 500 wei halves capacity.
	if got := FreeLots(vault, big.NewInt(0), big.NewInt(500), 10, 1, asset); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("withdrawal lots: %s", got)
	}
	// Over-locked pool saturates at zero.
	if got := FreeLots(vault, big.NewInt(2_000), nil, 10, 1, asset); got.Sign() != 0 {
		t.Fatalf("saturated lots: %s", got)
	}
}

func TestTypeValidateAndDeprecation(t *testing.T) {
	valid := Type{Symbol: "USDC", Class: ClassVault, Decimals: 6, MinCollateralRatioBIPS: 14_000, SafetyMinCollateralRatioBIPS: 15_000}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid type rejected: %v", err)
	}
	if valid.Deprecated() {
		t.Fatal("fresh type reported deprecated")
	}
	bad := valid
	bad.MinCollateralRatioBIPS = 9_000
	if err := bad.Validate(); err == nil {
		t.Fatal("expected sub-100% ratio rejection")
	}

	reg := NewRegistry()
	if err := reg.Add(valid); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.Add(valid); err != ErrTypeExists {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if err := reg.Deprecate("usdc", 5_000); err != nil {
		t.Fatalf("deprecate: %v", err)
	}
	got, err := reg.Get("USDC")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Deprecated() || !got.Expired(5_000) || got.Expired(4_999) {
		t.Fatalf("unexpected deprecation state: %+v", got)
	}
}
