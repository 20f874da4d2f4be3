package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/AltCoinExchange/0x-coordinator-server/params"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/api"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/coordinator"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/oracle"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/storage"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/util"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex/decoder"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	// ---- Logging ----
	var logger *zap.Logger
	var err error
	if cfg.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Storage ----
	repo, err := storage.NewPebbleRepository(cfg.Storage.PebblePath)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "path", cfg.Storage.PebblePath, "err", err)
	}
	defer repo.Close()
	sugar.Infow("storage_opened", "path", cfg.Storage.PebblePath)

	// ---- Chains ----
	// The hub doubles as the engine's event broadcaster.
	hub := api.NewHub()

	var chains []*coordinator.ChainContext
	for chainID, settings := range cfg.Chains {
		chain, closeOracle, err := buildChain(chainID, settings, sugar)
		if err != nil {
			sugar.Fatalw("chain_init_failed", "chain_id", chainID, "err", err)
		}
		defer closeOracle()
		chains = append(chains, chain)
		sugar.Infow("chain_configured",
			"chain_id", chainID,
			"exchange", settings.ExchangeAddress,
			"coordinator", settings.CoordinatorAddress,
			"fee_recipients", chain.FeeRecipients(),
		)
	}
	if len(chains) == 0 {
		sugar.Fatalw("no_chains_configured")
	}

	engine := coordinator.NewEngine(coordinator.EngineConfig{
		SelectiveDelay:   cfg.Coordinator.SelectiveDelay,
		ApprovalDuration: cfg.Coordinator.ExpirationDuration,
	}, chains, repo, hub, util.RealClock{}, sugar)

	// ---- API Server ----
	server := api.NewServer(engine, hub)
	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("coordinator_started",
		"addr", addr,
		"chains", engine.ChainIDs(),
		"selective_delay_ms", cfg.Coordinator.SelectiveDelay.Milliseconds(),
		"expiration_s", int64(cfg.Coordinator.ExpirationDuration.Seconds()),
	)

	<-ctx.Done()
	sugar.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("shutdown_incomplete", "err", err)
	}
	sugar.Info("coordinator stopped")
}

// buildChain turns one chain's settings into an engine context: parsed
// addresses, calldata decoder, state oracle and fee recipient signers.
func buildChain(chainID int64, settings params.ChainSettings, sugar *zap.SugaredLogger) (*coordinator.ChainContext, func(), error) {
	exchange, err := parseAddress("EXCHANGE_CONTRACT_ADDRESS", settings.ExchangeAddress)
	if err != nil {
		return nil, nil, err
	}
	coordinatorAddr, err := parseAddress("COORDINATOR_CONTRACT_ADDRESS", settings.CoordinatorAddress)
	if err != nil {
		return nil, nil, err
	}
	erc20Proxy, err := parseAddress("ERC20_PROXY_ADDRESS", settings.ERC20ProxyAddress)
	if err != nil {
		return nil, nil, err
	}

	dec, err := decoder.New(chainID, exchange)
	if err != nil {
		return nil, nil, fmt.Errorf("decoder: %w", err)
	}

	var signers []*zeroex.Signer
	for _, recipient := range settings.FeeRecipients {
		signer, err := zeroex.NewSignerFromHex(recipient.PrivateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("fee recipient %s: %w", recipient.Address, err)
		}
		declared, err := parseAddress("FEE_RECIPIENTS.ADDRESS", recipient.Address)
		if err != nil {
			return nil, nil, err
		}
		if signer.Address() != declared {
			return nil, nil, fmt.Errorf("fee recipient key mismatch: key controls %s, config declares %s",
				signer.Address().Hex(), declared.Hex())
		}
		signers = append(signers, signer)
	}
	if len(signers) == 0 {
		return nil, nil, fmt.Errorf("chain %d has no fee recipients", chainID)
	}

	oracleClient, err := oracle.Dial(settings.RPCURL, exchange, erc20Proxy, sugar)
	if err != nil {
		return nil, nil, fmt.Errorf("oracle: %w", err)
	}

	chain := coordinator.NewChainContext(chainID, exchange, coordinatorAddr, dec, oracleClient, signers)
	return chain, oracleClient.Close, nil
}

func parseAddress(name, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: %q is not a hex address", name, value)
	}
	return common.HexToAddress(value), nil
}
