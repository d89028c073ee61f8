package main

import (
	"flag"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"forgechain/config"
	"forgechain/core/events"
	coretypes "forgechain/core/types"
	"forgechain/gateway"
	"forgechain/gateway/middleware"
	"forgechain/native/assets"
	"forgechain/native/common"
	"forgechain/native/droptable"
	"forgechain/native/forge"
	"forgechain/native/oracle"
	"forgechain/native/referral"
	"forgechain/native/store"
	"forgechain/native/vault"
	"forgechain/observability"
	"forgechain/observability/logging"
	"forgechain/state"
	"forgechain/storage"
)

const (
	collectionBoxes = "lootbox"
	collectionKeys  = "key"
)

// moduleAddress derives a deterministic account for a system module.
func moduleAddress(name string) [20]byte {
	var out [20]byte
	digest := ethcrypto.Keccak256([]byte("forgechain/module/" + name))
	copy(out[:], digest[12:])
	return out
}

// logEmitter renders emitted events into the structured log and bumps the
// matching prometheus counters.
type logEmitter struct {
	logger  *slog.Logger
	counter *observability.EventCounter
}

func (l logEmitter) Emit(evt events.Event) {
	type renderer interface {
		Event() *coretypes.Event
	}
	if r, ok := evt.(renderer); ok {
		rendered := r.Event()
		l.logger.Info("event", "type", rendered.Type, "attributes", rendered.Attributes)
		l.counter.Observe(rendered.Type, rendered.Attributes)
		return
	}
	l.logger.Info("event", "type", evt.EventType())
}

func main() {
	configPath := flag.String("config", "./config.toml", "path to the daemon configuration file")
	flag.Parse()

	logger := logging.Setup("forgechaind", os.Getenv("FORGE_ENV"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "economy"))
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	emitter := logEmitter{logger: logger, counter: observability.NewEventCounter()}

	roles := common.NewRoles()
	for _, encoded := range cfg.Economy.AdminAccounts {
		admin, err := config.Address(encoded)
		if err != nil {
			logger.Error("decode admin account", "account", encoded, "error", err)
			os.Exit(1)
		}
		roles.Grant(common.RoleAdmin, admin)
	}

	storeAddr := moduleAddress("store")
	forgeAddr := moduleAddress("forge")
	vaultAddr := moduleAddress("vault")
	roles.Grant(common.RoleConnector, storeAddr)
	roles.Grant(common.RoleConnector, forgeAddr)

	dust := big.NewInt(0)
	if cfg.Economy.DustThreshold != "" {
		if _, ok := dust.SetString(cfg.Economy.DustThreshold, 10); !ok {
			logger.Error("parse dust threshold", "value", cfg.Economy.DustThreshold)
			os.Exit(1)
		}
	}
	router := oracle.NewStaticRouter()
	adapter := oracle.NewAdapter(router, cfg.Economy.ReferenceAsset, cfg.Economy.BridgeAsset, dust)

	entropy := droptable.NewHashEntropy([]byte(cfg.NetworkName))

	tree := referral.NewTree()
	tree.SetState(manager)
	tree.SetRoles(roles)
	tree.SetEmitter(emitter)

	keys := assets.NewCollection(collectionKeys)
	keys.SetState(manager)
	keys.SetRoles(roles)
	keys.SetEmitter(emitter)

	boxes := assets.NewCollection(collectionBoxes)
	boxes.SetState(manager)
	boxes.SetRoles(roles)
	boxes.SetEmitter(emitter)
	boxes.SetEntropy(entropy)
	boxes.SetRewardCollection(keys)

	vlt := vault.New()
	vlt.SetState(manager)
	vlt.SetRoles(roles)
	vlt.SetCollection(keys)
	vlt.SetAddress(vaultAddr)
	vlt.SetEmitter(emitter)

	st := store.New()
	st.SetState(manager)
	st.SetRoles(roles)
	st.SetOracle(adapter)
	st.SetTree(tree)
	st.SetCollection(boxes)
	st.SetVault(vlt)
	st.SetModuleAddress(storeAddr)
	st.SetEmitter(emitter)

	fg := forge.New()
	fg.SetState(manager)
	fg.SetRoles(roles)
	fg.SetOracle(adapter)
	fg.SetTree(tree)
	fg.SetCollection(keys)
	fg.SetVault(vlt)
	fg.SetEntropy(entropy)
	fg.SetModuleAddress(forgeAddr)
	fg.SetEmitter(emitter)

	if err := seedEconomy(cfg, manager, roles, st, fg, vlt); err != nil {
		logger.Error("seed economy parameters", "error", err)
		os.Exit(1)
	}

	gw := gateway.New(logger, tree, vlt, st, manager.View(collectionBoxes), manager.View(collectionKeys), middleware.RateLimit{
		RequestsPerMinute: cfg.Gateway.RequestsPerMinute,
		Burst:             cfg.Gateway.Burst,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- gw.Serve(cfg.Gateway.ListenAddress) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Error("gateway stopped", "error", err)
		os.Exit(1)
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}
}

// seedEconomy applies configured parameters that have no stored value yet.
// Admin role checks are satisfied by the first configured admin; a config
// with no admins only seeds the level table.
func seedEconomy(cfg *config.Config, manager *state.Manager, roles *common.Roles, st *store.Store, fg *forge.Forge, vlt *vault.Vault) error {
	levels, err := manager.ReferralLevels()
	if err != nil {
		return err
	}
	if len(levels) == 0 {
		if err := manager.SetReferralLevels(cfg.Economy.ReferralLevels); err != nil {
			return err
		}
	}
	admins := roles.Members(common.RoleAdmin)
	if len(admins) == 0 {
		return nil
	}
	admin := admins[0]
	unlock, err := manager.VaultUnlockTime()
	if err != nil {
		return err
	}
	if unlock == 0 && cfg.Economy.UnlockTime != 0 {
		if err := vlt.SetSchedule(admin, cfg.Economy.UnlockTime, cfg.Economy.RedeemDeadline); err != nil {
			return err
		}
	}
	master, err := manager.VaultMasterType()
	if err != nil {
		return err
	}
	if master == 0 {
		if err := vlt.SetMasterType(admin, cfg.Economy.MasterType); err != nil {
			return err
		}
	}
	for _, asset := range cfg.Economy.AllowedAssets {
		if err := vlt.AllowAsset(admin, asset); err != nil {
			return err
		}
	}
	for _, asset := range cfg.Economy.ForgeAssets {
		if err := fg.AllowAsset(admin, asset); err != nil {
			return err
		}
	}
	storeTeam, err := config.Address(cfg.Economy.StoreTeamAccount)
	if err != nil {
		return err
	}
	if storeTeam != ([20]byte{}) {
		if err := st.SetTeamAccount(admin, storeTeam); err != nil {
			return err
		}
	}
	if err := st.SetVaultShare(admin, cfg.Economy.VaultShare); err != nil {
		return err
	}
	forgeTeam, err := config.Address(cfg.Economy.ForgeTeamAccount)
	if err != nil {
		return err
	}
	forgeBurn, err := config.Address(cfg.Economy.ForgeBurnAccount)
	if err != nil {
		return err
	}
	if forgeTeam != ([20]byte{}) || forgeBurn != ([20]byte{}) {
		if err := fg.SetAccounts(admin, forgeTeam, forgeBurn); err != nil {
			return err
		}
	}
	return fg.SetBurnShare(admin, cfg.Economy.BurnShare)
}
