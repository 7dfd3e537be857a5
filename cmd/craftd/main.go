package main

import (
	"flag"
	"math/big"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"craftledger/config"
	"craftledger/core"
	"craftledger/observability/logging"
	"craftledger/rpc"
	"craftledger/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the node configuration file")
	flag.Parse()

	logger := logging.Setup("craftd", strings.TrimSpace(os.Getenv("CRAFT_ENV")))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	node := core.NewNode(db)

	admin, err := config.AddressField(cfg.RegistryAdmin)
	if err != nil {
		logger.Error("invalid registry admin address", "error", err)
		os.Exit(1)
	}
	node.SetRegistryAdmin(admin)

	if cfg.SettlementFeeBps > 0 {
		treasury, err := config.AddressField(cfg.FeeTreasury)
		if err != nil {
			logger.Error("invalid fee treasury address", "error", err)
			os.Exit(1)
		}
		if err := node.SetSettlementFee(cfg.SettlementFeeBps, treasury); err != nil {
			logger.Error("invalid settlement fee", "error", err)
			os.Exit(1)
		}
	}

	allocations := make([]core.GenesisAllocation, 0, len(cfg.Genesis))
	for _, alloc := range cfg.Genesis {
		addr, err := config.AddressField(alloc.Address)
		if err != nil {
			logger.Error("invalid genesis address", "error", err)
			os.Exit(1)
		}
		amount, _ := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10)
		allocations = append(allocations, core.GenesisAllocation{Address: addr, Token: alloc.Token, Amount: amount})
	}
	if err := node.SeedGenesis(allocations); err != nil {
		logger.Error("failed to seed genesis allocations", "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("starting metrics server", "addr", cfg.MetricsAddress)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	server := rpc.NewServer(node, logger)
	logger.Info("node ready", "network", cfg.NetworkName)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}
