package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/hunch/internal/config"
	"github.com/alanyoungcy/hunch/internal/crypto"
	"github.com/alanyoungcy/hunch/internal/service"
	"github.com/alanyoungcy/hunch/internal/wallet"
)

// newWalletService builds the wallet service and returns a closer for the
// bundler and paymaster connections.
func (a *App) newWalletService(ctx context.Context, deps *Dependencies) (*service.WalletService, func(), error) {
	build, closeRPC, err := lifecycleBuilder(ctx, a.cfg.Wallet, a.cfg.SessionStore.Key, deps, a.logger)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewWalletService(build, deps.LockManager, deps.AuditStore, deps.Notifier, deps.SignalBus, a.userLimits(), a.logger)
	return svc, closeRPC, nil
}

// lifecycleBuilder returns a factory creating one wallet lifecycle per user.
// All users share the keystore, vault, RPC connections and policy.
func lifecycleBuilder(
	ctx context.Context,
	cfg config.WalletConfig,
	sessionKey string,
	deps *Dependencies,
	logger *slog.Logger,
) (service.LifecycleBuilder, func(), error) {
	keys, err := crypto.NewKeystore(cfg.KeystoreDir, cfg.KeystorePassword)
	if err != nil {
		return nil, nil, fmt.Errorf("app: keystore: %w", err)
	}

	policy, err := walletPolicy(cfg.Permissions)
	if err != nil {
		return nil, nil, err
	}

	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	var bundler, paymaster wallet.Provider
	if cfg.BundlerURL != "" {
		p, err := wallet.DialRPC(ctx, cfg.BundlerURL)
		if err != nil {
			return nil, nil, fmt.Errorf("app: bundler: %w", err)
		}
		closers = append(closers, p.Close)
		bundler = p
	}
	if cfg.PaymasterURL != "" {
		p, err := wallet.DialRPC(ctx, cfg.PaymasterURL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("app: paymaster: %w", err)
		}
		closers = append(closers, p.Close)
		paymaster = p
	}

	factory := wallet.KernelFactoryV31
	if common.IsHexAddress(cfg.KernelFactory) {
		factory = common.HexToAddress(cfg.KernelFactory)
	}
	entryPoint := wallet.EntryPointV07
	if common.IsHexAddress(cfg.EntryPoint) {
		entryPoint = common.HexToAddress(cfg.EntryPoint)
	}
	factories := []wallet.AccountFactory{
		wallet.NewKernelV31(factory, cfg.KernelInitHash, bundler),
		wallet.NewKernelV24(bundler),
		&wallet.ManualApproval{
			Factory:      factory,
			EntryPoint:   entryPoint,
			InitCodeHash: wallet.InitCodeHash(factory, cfg.KernelInitHash),
		},
	}

	var approver wallet.Approver = wallet.NewTerminalApprover(os.Stdin, os.Stdout)
	if cfg.AutoApprove {
		approver = wallet.AutoApprover{}
	}

	chain := wallet.Chain{
		ID:          cfg.ChainID,
		Name:        cfg.ChainName,
		RPCURL:      cfg.RPCURL,
		ExplorerURL: cfg.ExplorerURL,
	}

	build := func(userID string) *wallet.Lifecycle {
		return wallet.NewLifecycle(wallet.Options{
			UserID:       userID,
			Chain:        chain,
			ProjectID:    cfg.ProjectID,
			AccountIndex: cfg.AccountIndex,
			Validity:     cfg.SessionValidity.Duration,
			Policy:       policy,
			Keys:         keys,
			Store:        wallet.NewScopedStore(deps.SessionVault, wallet.SessionKeyFor(sessionKey, userID)),
			Factories:    factories,
			Approver:     approver,
			Dial:         wallet.DefaultDialer,
			Bundler:      bundler,
			Paymaster:    paymaster,
			Logger:       logger,
		})
	}
	return build, closeAll, nil
}

func walletPolicy(cfg config.PermissionConfig) (wallet.Policy, error) {
	policy := wallet.Policy{Unrestricted: cfg.AllowUnrestricted}
	for i, c := range cfg.Calls {
		p, err := wallet.ParseCallPermission(c.Target, c.Selector, c.MaxValue)
		if err != nil {
			return wallet.Policy{}, fmt.Errorf("app: permissions.calls[%d]: %w", i, err)
		}
		policy.Calls = append(policy.Calls, p)
	}
	return policy, nil
}
