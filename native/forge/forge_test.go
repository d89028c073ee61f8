package forge_test

import (
	"errors"
	"math/big"
	"testing"

	"forgechain/native/assets"
	"forgechain/native/common"
	"forgechain/native/droptable"
	"forgechain/native/forge"
	"forgechain/native/oracle"
	"forgechain/native/referral"
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
	baseTime     = int64(1_700_000_000)
	unlockTime   = baseTime + 1_000
	deadlineTime = baseTime + 2_000
)

// upgradeTable mirrors a production tier-1 table: 2% success bands for
// increasingly rare keys above a 20% burn bucket topped by 78% type-2.
var upgradeTable = droptable.Table{
	{ResultTypeID: 0, Weight: 200_000},
	{ResultTypeID: 2, Weight: 780_000},
	{ResultTypeID: 3, Weight: 17_500},
	{ResultTypeID: 4, Weight: 2_400},
	{ResultTypeID: 5, Weight: 100},
}

type fixture struct {
	manager *state.Manager
	forge   *forge.Forge
	keys    *assets.Collection
	admin   [20]byte
	module  [20]byte
	team    [20]byte
	burn    [20]byte
	keyType uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	admin, module, team, burn, vaultAddr := addr(1), addr(2), addr(3), addr(4), addr(5)
	roles := common.NewRoles()
	roles.Grant(common.RoleAdmin, admin)
	roles.Grant(common.RoleConnector, module)
	manager := state.NewManager(storage.NewMemDB())

	tree := referral.NewTree()
	tree.SetState(manager)
	tree.SetRoles(roles)
	if err := tree.SetLevels(admin, []uint64{80_000, 40_000}); err != nil {
		t.Fatalf("set levels: %v", err)
	}

	keys := assets.NewCollection("key")
	keys.SetState(manager)
	keys.SetRoles(roles)
	names := []string{"bronze key", "silver key", "gold key", "platinum key", "master key"}
	for _, name := range names {
		if _, err := keys.AddType(admin, name, ""); err != nil {
			t.Fatalf("add key type %s: %v", name, err)
		}
	}
	if err := keys.SetDropTable(admin, 1, upgradeTable); err != nil {
		t.Fatalf("set drop table: %v", err)
	}

	vlt := vault.New()
	vlt.SetState(manager)
	vlt.SetRoles(roles)
	vlt.SetCollection(keys)
	vlt.SetAddress(vaultAddr)
	if err := vlt.SetSchedule(admin, unlockTime, deadlineTime); err != nil {
		t.Fatalf("set schedule: %v", err)
	}

	router := oracle.NewStaticRouter()
	router.SetRate("USDT", "PAY", big.NewRat(1, 1))
	router.SetRate("USDT", common.NativeAsset, big.NewRat(1, 1))
	adapter := oracle.NewAdapter(router, "USDT", common.NativeAsset, big.NewInt(10))

	fg := forge.New()
	fg.SetState(manager)
	fg.SetRoles(roles)
	fg.SetOracle(adapter)
	fg.SetTree(tree)
	fg.SetCollection(keys)
	fg.SetVault(vlt)
	fg.SetModuleAddress(module)
	fg.SetNowFunc(func() int64 { return baseTime })
	if err := fg.SetAccounts(admin, team, burn); err != nil {
		t.Fatalf("set accounts: %v", err)
	}
	if err := fg.SetBurnShare(admin, 500_000); err != nil {
		t.Fatalf("set burn share: %v", err)
	}
	for _, asset := range []string{common.NativeAsset, "PAY"} {
		if err := fg.AllowAsset(admin, asset); err != nil {
			t.Fatalf("allow asset %s: %v", asset, err)
		}
	}
	if err := fg.SetPrice(admin, 1, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	return &fixture{
		manager: manager,
		forge:   fg,
		keys:    keys,
		admin:   admin,
		module:  module,
		team:    team,
		burn:    burn,
		keyType: 1,
	}
}

func (f *fixture) fundToken(t *testing.T, who [20]byte, amount int64) {
	t.Helper()
	if err := f.manager.Credit(who, "PAY", big.NewInt(amount)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := f.manager.Approve(who, f.module, "PAY", big.NewInt(amount)); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func TestUpgradeMintsPerDrawBand(t *testing.T) {
	cases := []struct {
		name     string
		draw     uint64
		wantType uint64
	}{
		{"top band", 100, 5},
		{"second band", 2_500, 4},
		{"third band", 20_000, 3},
		{"common band", 800_000, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			owner := addr(10)
			f.fundToken(t, owner, 1_000_000)
			keyID, err := f.keys.Mint(owner, f.keyType)
			if err != nil {
				t.Fatalf("mint: %v", err)
			}
			f.forge.SetEntropy(droptable.NewFixedEntropy(tc.draw))
			minted, err := f.forge.Upgrade(owner, keyID, "PAY", nil)
			if err != nil {
				t.Fatalf("upgrade: %v", err)
			}
			if minted == 0 {
				t.Fatalf("expected a minted key")
			}
			inst, err := f.keys.Instance(minted)
			if err != nil {
				t.Fatalf("instance: %v", err)
			}
			if inst.TypeID != tc.wantType {
				t.Fatalf("draw %d: expected type %d, got %d", tc.draw, tc.wantType, inst.TypeID)
			}
			if inst.Holder != owner {
				t.Fatalf("minted key holder wrong: %x", inst.Holder)
			}
			if _, err := f.keys.OwnerOf(keyID); err == nil {
				t.Fatalf("source key must be burned")
			}
		})
	}
}

func TestUpgradeResidualRollBurnsOnly(t *testing.T) {
	f := newFixture(t)
	owner := addr(10)
	f.fundToken(t, owner, 1_000_000)
	keyID, err := f.keys.Mint(owner, f.keyType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.forge.SetEntropy(droptable.NewFixedEntropy(800_001))
	minted, err := f.forge.Upgrade(owner, keyID, "PAY", nil)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if minted != 0 {
		t.Fatalf("expected burn-only roll, got instance %d", minted)
	}
	// the payment is kept even on a failed roll
	if got, _ := f.manager.BalanceOf(owner, "PAY"); got.Sign() != 0 {
		t.Fatalf("payment not taken: %s", got)
	}
	held, err := f.keys.HolderInstances(owner)
	if err != nil {
		t.Fatalf("holdings: %v", err)
	}
	if len(held) != 0 {
		t.Fatalf("expected empty holdings, got %v", held)
	}
}

func TestUpgradeRevenueSplit(t *testing.T) {
	f := newFixture(t)
	owner := addr(10)
	f.fundToken(t, owner, 1_000_000)
	keyID, err := f.keys.Mint(owner, f.keyType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.forge.SetEntropy(droptable.NewFixedEntropy(500_000))
	if _, err := f.forge.Upgrade(owner, keyID, "PAY", nil); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	// no referral chain: 50% team above the cap, 50% to the burn sink
	if got, _ := f.manager.BalanceOf(f.team, "PAY"); got.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("team balance: %s", got)
	}
	if got, _ := f.manager.BalanceOf(f.burn, "PAY"); got.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("burn balance: %s", got)
	}
}

func TestUpgradeAppliesDiscount(t *testing.T) {
	f := newFixture(t)
	owner := addr(10)
	// 25% off for PAY: the charge drops to 750k
	if err := f.forge.SetDiscount(f.admin, "PAY", 250_000); err != nil {
		t.Fatalf("set discount: %v", err)
	}
	f.fundToken(t, owner, 750_000)
	keyID, err := f.keys.Mint(owner, f.keyType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.forge.SetEntropy(droptable.NewFixedEntropy(500_000))
	if _, err := f.forge.Upgrade(owner, keyID, "PAY", nil); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if got, _ := f.manager.BalanceOf(owner, "PAY"); got.Sign() != 0 {
		t.Fatalf("owner balance after discounted upgrade: %s", got)
	}
	if got, _ := f.manager.BalanceOf(f.burn, "PAY"); got.Cmp(big.NewInt(375_000)) != 0 {
		t.Fatalf("burn balance: %s", got)
	}
}

func TestUpgradeNativeRefundsExcess(t *testing.T) {
	f := newFixture(t)
	owner := addr(10)
	if err := f.manager.Credit(owner, common.NativeAsset, big.NewInt(2_000_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	keyID, err := f.keys.Mint(owner, f.keyType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.forge.SetEntropy(droptable.NewFixedEntropy(500_000))
	if _, err := f.forge.UpgradeNative(owner, keyID, big.NewInt(1_300_000)); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if got, _ := f.manager.BalanceOf(owner, common.NativeAsset); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("owner balance after refund: %s", got)
	}
	if got, _ := f.manager.BalanceOf(f.module, common.NativeAsset); got.Sign() != 0 {
		t.Fatalf("escrow not drained: %s", got)
	}
}

func TestUpgradePaysReferralChain(t *testing.T) {
	f := newFixture(t)
	owner, parent := addr(10), addr(11)
	tree := referral.NewTree()
	tree.SetState(f.manager)
	adminRoles := common.NewRoles()
	adminRoles.Grant(common.RoleAdmin, f.admin)
	tree.SetRoles(adminRoles)
	if err := tree.AddRelation(f.admin, parent, owner); err != nil {
		t.Fatalf("link: %v", err)
	}
	f.fundToken(t, owner, 1_000_000)
	keyID, err := f.keys.Mint(owner, f.keyType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.forge.SetEntropy(droptable.NewFixedEntropy(500_000))
	if _, err := f.forge.Upgrade(owner, keyID, "PAY", nil); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if got, _ := f.manager.BalanceOf(parent, "PAY"); got.Cmp(big.NewInt(80_000)) != 0 {
		t.Fatalf("referrer reward: %s", got)
	}
}

func TestUpgradeGuards(t *testing.T) {
	f := newFixture(t)
	owner, stranger := addr(10), addr(11)
	f.fundToken(t, owner, 5_000_000)
	keyID, err := f.keys.Mint(owner, f.keyType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := f.forge.Upgrade(stranger, keyID, "PAY", nil); err == nil {
		t.Fatalf("expected owner check")
	}
	if _, err := f.forge.Upgrade(owner, keyID, "BARRED", nil); err == nil {
		t.Fatalf("expected disallowed asset rejection")
	}

	// a top-tier key cannot be upgraded further
	topID, err := f.keys.Mint(owner, 5)
	if err != nil {
		t.Fatalf("mint top key: %v", err)
	}
	if err := f.forge.SetPrice(f.admin, 5, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if _, err := f.forge.Upgrade(owner, topID, "PAY", nil); err == nil {
		t.Fatalf("expected top-tier rejection")
	}

	// an unpriced tier cannot be upgraded
	unpriced, err := f.keys.Mint(owner, 2)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.forge.Upgrade(owner, unpriced, "PAY", nil); err == nil {
		t.Fatalf("expected missing-price rejection")
	}

	var balErr *common.InsufficientBalanceError
	poor := addr(12)
	poorKey, err := f.keys.Mint(poor, f.keyType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.forge.Upgrade(poor, poorKey, "PAY", nil); !errors.As(err, &balErr) {
		t.Fatalf("expected balance error, got %v", err)
	}

	f.forge.SetNowFunc(func() int64 { return unlockTime })
	if _, err := f.forge.Upgrade(owner, keyID, "PAY", nil); err == nil {
		t.Fatalf("expected window-closed rejection at the unlock boundary")
	}
}

func TestReceiveFallbackForwardsToTeam(t *testing.T) {
	f := newFixture(t)
	sender := addr(10)
	if err := f.manager.Credit(sender, common.NativeAsset, big.NewInt(1_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	f.forge.ReceiveFallback(sender, big.NewInt(1_000))
	if got, _ := f.manager.BalanceOf(f.team, common.NativeAsset); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("team balance: %s", got)
	}
	if got, _ := f.manager.BalanceOf(sender, common.NativeAsset); got.Sign() != 0 {
		t.Fatalf("sender balance: %s", got)
	}
	// a short sender is a silent no-op
	f.forge.ReceiveFallback(addr(13), big.NewInt(1_000))
	if got, _ := f.manager.BalanceOf(f.team, common.NativeAsset); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("team balance changed by failed forward: %s", got)
	}
}

func TestUpgradeRollsBackWhenResultTypeUnknown(t *testing.T) {
	f := newFixture(t)
	owner := addr(10)
	f.fundToken(t, owner, 1_000_000)
	keyID, err := f.keys.Mint(owner, f.keyType)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	// the winning band points at a type the catalog never had
	badTable := droptable.Table{
		{ResultTypeID: 0, Weight: 200_000},
		{ResultTypeID: 9, Weight: 800_000},
	}
	if err := f.keys.SetDropTable(f.admin, f.keyType, badTable); err != nil {
		t.Fatalf("set drop table: %v", err)
	}
	f.forge.SetEntropy(droptable.NewFixedEntropy(500_000))

	if _, err := f.forge.Upgrade(owner, keyID, "PAY", nil); err == nil {
		t.Fatal("expected upgrade into an unknown type to fail")
	}

	// the failed upgrade left no trace: payment, allowance, and the
	// source key are all back
	balance, err := f.manager.BalanceOf(owner, "PAY")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("owner balance after failed upgrade: got %s, want 1000000", balance)
	}
	allowance, err := f.manager.Allowance(owner, f.module, "PAY")
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if allowance.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("allowance after failed upgrade: got %s", allowance)
	}
	for _, account := range [][20]byte{f.team, f.burn} {
		got, err := f.manager.BalanceOf(account, "PAY")
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if got.Sign() != 0 {
			t.Fatalf("account %x paid by failed upgrade: %s", account, got)
		}
	}
	holder, err := f.keys.OwnerOf(keyID)
	if err != nil {
		t.Fatalf("source key missing after rollback: %v", err)
	}
	if holder != owner {
		t.Fatalf("source key holder: %x", holder)
	}
}
