package vault_test

import (
	"math/big"
	"testing"

	"forgechain/native/assets"
	"forgechain/native/common"
	"forgechain/native/vault"
	"forgechain/state"
	"forgechain/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

const (
	unlockTime   = int64(1_700_000_000)
	deadlineTime = unlockTime + 1_000
)

type fixture struct {
	manager    *state.Manager
	vault      *vault.Vault
	keys       *assets.Collection
	admin      [20]byte
	masterType uint64
	now        int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	admin, vaultAddr := addr(1), addr(2)
	roles := common.NewRoles()
	roles.Grant(common.RoleAdmin, admin)
	manager := state.NewManager(storage.NewMemDB())

	keys := assets.NewCollection("key")
	keys.SetState(manager)
	keys.SetRoles(roles)
	masterType, err := keys.AddType(admin, "master key", "")
	if err != nil {
		t.Fatalf("add master type: %v", err)
	}

	f := &fixture{manager: manager, keys: keys, admin: admin, masterType: masterType, now: unlockTime}
	vlt := vault.New()
	vlt.SetState(manager)
	vlt.SetRoles(roles)
	vlt.SetCollection(keys)
	vlt.SetAddress(vaultAddr)
	vlt.SetNowFunc(func() int64 { return f.now })
	if err := vlt.SetMasterType(admin, masterType); err != nil {
		t.Fatalf("set master type: %v", err)
	}
	if err := vlt.SetSchedule(admin, unlockTime, deadlineTime); err != nil {
		t.Fatalf("set schedule: %v", err)
	}
	for _, asset := range []string{common.NativeAsset, "USDT"} {
		if err := vlt.AllowAsset(admin, asset); err != nil {
			t.Fatalf("allow asset %s: %v", asset, err)
		}
	}
	f.vault = vlt
	return f
}

func (f *fixture) fundVault(t *testing.T, asset string, amount int64) {
	t.Helper()
	if err := f.manager.Credit(f.vault.Address(), asset, big.NewInt(amount)); err != nil {
		t.Fatalf("fund vault: %v", err)
	}
}

func TestRedeemProRata(t *testing.T) {
	f := newFixture(t)
	alice, bob := addr(10), addr(11)
	// alice holds two of the three master keys, bob one
	first, err := f.keys.Mint(alice, f.masterType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.keys.Mint(alice, f.masterType); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.keys.Mint(bob, f.masterType); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.fundVault(t, common.NativeAsset, 3)
	f.fundVault(t, "USDT", 300)

	payouts, err := f.vault.Redeem(alice, first)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if payouts[common.NativeAsset].Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("native payout: %s", payouts[common.NativeAsset])
	}
	if payouts["USDT"].Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("usdt payout: %s", payouts["USDT"])
	}
	supply, err := f.keys.TypeSupply(f.masterType)
	if err != nil || supply != 2 {
		t.Fatalf("supply after redeem: %d err %v", supply, err)
	}
	if got, _ := f.manager.BalanceOf(alice, "USDT"); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("alice usdt balance: %s", got)
	}
	if got, _ := f.manager.BalanceOf(f.vault.Address(), "USDT"); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("vault usdt balance: %s", got)
	}
	// redeeming the same instance twice fails: it no longer exists
	if _, err := f.vault.Redeem(alice, first); err == nil {
		t.Fatalf("expected burned-instance rejection")
	}
}

func TestRedeemSlicesGrowAsSupplyShrinks(t *testing.T) {
	f := newFixture(t)
	alice, bob := addr(10), addr(11)
	aliceKey, err := f.keys.Mint(alice, f.masterType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	bobKey, err := f.keys.Mint(bob, f.masterType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.fundVault(t, "USDT", 100)

	payouts, err := f.vault.Redeem(alice, aliceKey)
	if err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if payouts["USDT"].Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("first payout: %s", payouts["USDT"])
	}
	// the later redeemer divides the remainder by the shrunken supply
	payouts, err = f.vault.Redeem(bob, bobKey)
	if err != nil {
		t.Fatalf("second redeem: %v", err)
	}
	if payouts["USDT"].Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("second payout: %s", payouts["USDT"])
	}
	if got, _ := f.manager.BalanceOf(f.vault.Address(), "USDT"); got.Sign() != 0 {
		t.Fatalf("vault not drained: %s", got)
	}
}

func TestRedeemTruncationDustStaysInVault(t *testing.T) {
	f := newFixture(t)
	alice := addr(10)
	keyID, err := f.keys.Mint(alice, f.masterType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.keys.Mint(addr(11), f.masterType); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.keys.Mint(addr(12), f.masterType); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.fundVault(t, "USDT", 100)
	payouts, err := f.vault.Redeem(alice, keyID)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	// 100/3 truncates to 33; the remainder stays behind
	if payouts["USDT"].Cmp(big.NewInt(33)) != 0 {
		t.Fatalf("payout: %s", payouts["USDT"])
	}
	if got, _ := f.manager.BalanceOf(f.vault.Address(), "USDT"); got.Cmp(big.NewInt(67)) != 0 {
		t.Fatalf("vault remainder: %s", got)
	}
}

func TestRedeemWindow(t *testing.T) {
	f := newFixture(t)
	alice := addr(10)
	keyID, err := f.keys.Mint(alice, f.masterType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.fundVault(t, "USDT", 100)

	f.now = unlockTime - 1
	if _, err := f.vault.Redeem(alice, keyID); err == nil {
		t.Fatalf("expected rejection before unlock")
	}
	f.now = deadlineTime + 1
	if _, err := f.vault.Redeem(alice, keyID); err == nil {
		t.Fatalf("expected rejection after deadline")
	}
	// both boundaries are inclusive
	f.now = deadlineTime
	if _, err := f.vault.Redeem(alice, keyID); err != nil {
		t.Fatalf("redeem at deadline: %v", err)
	}
}

func TestRedeemGuards(t *testing.T) {
	f := newFixture(t)
	alice, stranger := addr(10), addr(11)
	keyID, err := f.keys.Mint(alice, f.masterType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.vault.Redeem(stranger, keyID); err == nil {
		t.Fatalf("expected owner check")
	}

	otherType, err := f.keys.AddType(f.admin, "bronze key", "")
	if err != nil {
		t.Fatalf("add type: %v", err)
	}
	otherID, err := f.keys.Mint(alice, otherType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.vault.Redeem(alice, otherID); err == nil {
		t.Fatalf("expected master-type check")
	}
}

func TestHolderShare(t *testing.T) {
	f := newFixture(t)
	alice, bob := addr(10), addr(11)
	share, err := f.vault.HolderShare(alice)
	if err != nil {
		t.Fatalf("share with zero supply: %v", err)
	}
	if share != 0 {
		t.Fatalf("expected zero share, got %d", share)
	}
	if _, err := f.keys.Mint(alice, f.masterType); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.keys.Mint(alice, f.masterType); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.keys.Mint(bob, f.masterType); err != nil {
		t.Fatalf("mint: %v", err)
	}
	share, err = f.vault.HolderShare(alice)
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if share != 666_666 {
		t.Fatalf("alice share: %d", share)
	}
	share, err = f.vault.HolderShare(bob)
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if share != 333_333 {
		t.Fatalf("bob share: %d", share)
	}
}

func TestWithdrawLocksAllowedAssetsUntilAfterDeadline(t *testing.T) {
	f := newFixture(t)
	dest := addr(10)
	f.fundVault(t, "USDT", 100)
	f.fundVault(t, "STRAY", 50)

	if err := f.vault.Withdraw(addr(99), "USDT", dest, big.NewInt(10)); err == nil {
		t.Fatalf("expected admin check")
	}
	// allowed assets are locked through the deadline inclusive
	f.now = deadlineTime
	if err := f.vault.Withdraw(f.admin, "USDT", dest, big.NewInt(10)); err == nil {
		t.Fatalf("expected lock at the deadline")
	}
	// unlisted assets can leave at any time
	if err := f.vault.Withdraw(f.admin, "STRAY", dest, big.NewInt(50)); err != nil {
		t.Fatalf("withdraw stray: %v", err)
	}
	f.now = deadlineTime + 1
	if err := f.vault.Withdraw(f.admin, "USDT", dest, big.NewInt(10)); err != nil {
		t.Fatalf("withdraw after deadline: %v", err)
	}
	if got, _ := f.manager.BalanceOf(dest, "USDT"); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("dest balance: %s", got)
	}
}

func TestAllowedAssetManagement(t *testing.T) {
	f := newFixture(t)
	allowed, err := f.vault.AllowedAssets()
	if err != nil {
		t.Fatalf("allowed assets: %v", err)
	}
	if len(allowed) != 2 {
		t.Fatalf("expected 2 allowed assets, got %v", allowed)
	}
	if err := f.vault.DisallowAsset(f.admin, "USDT"); err != nil {
		t.Fatalf("disallow: %v", err)
	}
	ok, err := f.vault.AssetAllowed("USDT")
	if err != nil || ok {
		t.Fatalf("asset still allowed: ok=%v err=%v", ok, err)
	}
	if err := f.vault.AllowAsset(addr(99), "EVIL"); err == nil {
		t.Fatalf("expected admin check")
	}
}
