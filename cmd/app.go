package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/strangelove-ventures/xion-cctp-bridge/bridge"
	"github.com/strangelove-ventures/xion-cctp-bridge/circle"
	"github.com/strangelove-ventures/xion-cctp-bridge/config"
	"github.com/strangelove-ventures/xion-cctp-bridge/cosmos"
	"github.com/strangelove-ventures/xion-cctp-bridge/ethereum"
	"github.com/strangelove-ventures/xion-cctp-bridge/offramp"
	"github.com/strangelove-ventures/xion-cctp-bridge/relayer"
	"github.com/strangelove-ventures/xion-cctp-bridge/store"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

// App holds the wired components shared by every command.
type App struct {
	Store        *store.DB
	Metrics      *relayer.PromMetrics
	Orchestrator *bridge.Orchestrator
	Reverser     *bridge.Reverser
	Balances     *relayer.BalanceWatcher
	// Withdrawer is nil when no off-ramp is configured.
	Withdrawer *offramp.Withdrawer

	SourceWallet *cosmos.Wallet
	BridgeWallet *cosmos.Wallet
	Destination  ethereum.Signer
}

// NewApp connects to every configured chain and service.
func (a *AppState) NewApp(ctx context.Context) (*App, error) {
	if err := a.loadPrivateKeys(); err != nil {
		return nil, err
	}
	app := &App{Metrics: relayer.NewPromMetrics()}

	db, err := openStore(a.Config.Store)
	if err != nil {
		return nil, err
	}
	app.Store = db
	if err := app.connect(ctx, a, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) connect(ctx context.Context, a *AppState, db *store.DB) error {
	cfg := a.Config
	logger := a.Logger
	sequenceMap := types.NewSequenceMap()

	var watched []relayer.WatchedWallet

	var sourceBalances bridge.BalanceQuerier
	if xion := cfg.Chains.Xion; xion != nil {
		provider, wallet, err := connectCosmos(xion, sequenceMap, a)
		if err != nil {
			return err
		}
		app.SourceWallet = wallet
		sourceBalances = provider
		watched = append(watched, relayer.WatchedWallet{Chain: xion.Name, Address: wallet.Address(), Denom: xion.Denom, Exponent: 6, Querier: provider})
	}

	nobleCfg := cfg.Chains.Noble
	nobleProvider, nobleWallet, err := connectCosmos(nobleCfg, sequenceMap, a)
	if err != nil {
		return err
	}
	app.BridgeWallet = nobleWallet
	watched = append(watched, relayer.WatchedWallet{Chain: nobleCfg.Name, Address: nobleWallet.Address(), Denom: nobleCfg.Denom, Exponent: 6, Querier: nobleProvider})

	baseCfg := cfg.Chains.Base
	baseClient, err := baseCfg.Dial(ctx)
	if err != nil {
		return err
	}
	signer, err := baseCfg.Signer(ctx, baseClient, sequenceMap, logger)
	if err != nil {
		return err
	}
	app.Destination = signer
	watched = append(watched, relayer.WatchedWallet{Chain: baseCfg.Name, Address: signer.Address().Hex(), Denom: baseCfg.USDC, Exponent: 6, Querier: baseClient})
	minter := ethereum.NewMinter(signer, baseClient, common.HexToAddress(baseCfg.MessageTransmitter), logger)

	attestations := circle.NewClient(cfg.Circle.AttestationBaseURL, cfg.Circle.RequestsPerSecond, logger)
	poller := circle.NewPoller(attestations, cfg.Circle.FetchRetries, time.Duration(cfg.Circle.FetchRetryInterval)*time.Second, logger, app.Metrics)

	deps := bridge.Dependencies{
		BridgeSigner:   nobleWallet,
		BridgeBalances: nobleProvider,
		Poller:         poller,
		Minter:         minter,
		Store:          db,
		Metrics:        app.Metrics,
	}
	if app.SourceWallet != nil {
		deps.SourceSigner = app.SourceWallet
		deps.SourceBalances = sourceBalances
	}

	bridgeCfg := cfg.BridgeConfig()
	app.Orchestrator, err = bridge.NewOrchestrator(bridgeCfg, deps, logger)
	if err != nil {
		return err
	}
	if bridgeCfg.ReverseChannel != "" && bridgeCfg.SourcePrefix != "" {
		app.Reverser = bridge.NewReverser(bridgeCfg, nobleWallet, nobleProvider, logger)
	}

	if cfg.OffRamp.BaseURL != "" {
		client := offramp.NewClient(cfg.OffRamp.BaseURL, cfg.OffRamp.Blockchain, time.Duration(cfg.OffRamp.Timeout)*time.Second, logger)
		sessions := offramp.NewSessionKeyStore(client, db, logger)
		app.Withdrawer = offramp.NewWithdrawer(client, sessions, signer, baseClient.Token(), cfg.OffRamp.Token, logger)
	}

	app.Balances = relayer.NewBalanceWatcher(watched, time.Duration(cfg.BalanceInterval)*time.Second, app.Metrics, logger)

	return nil
}

// Close releases the durable store.
func (app *App) Close() error {
	if app.Store == nil {
		return nil
	}
	return app.Store.Close()
}

func openStore(cfg config.StoreSettings) (*store.DB, error) {
	if cfg.Path == "" {
		return store.NewInMemory()
	}
	return store.Open(cfg.Path)
}

func connectCosmos(cc *cosmos.ChainConfig, sequenceMap *types.SequenceMap, a *AppState) (*cosmos.CosmosProvider, *cosmos.Wallet, error) {
	provider, err := cosmos.NewProvider(cc.RPC, time.Duration(cc.RPCTimeout)*time.Second)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to connect to %s: %w", cc.Name, err)
	}
	wallet, err := cosmos.NewWallet(provider, cc, sequenceMap, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	return provider, wallet, nil
}
