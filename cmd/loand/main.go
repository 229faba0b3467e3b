package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"loanchain/config"
	"loanchain/core/events"
	"loanchain/crypto"
	nativecommon "loanchain/native/common"
	"loanchain/native/syndication"
	"loanchain/native/token"
	"loanchain/observability/logging"
	"loanchain/rpc"
	"loanchain/state/loans"
	"loanchain/storage"
)

const eventBufferSize = 4096

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LOANCHAIN_ENV"))
	logger := logging.Setup("loand", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	admin, err := cfg.Admin()
	if err != nil {
		logger.Error("Failed to decode admin address", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	store := loans.NewStore(db)
	recorder := events.NewRecorder(eventBufferSize)
	pauses := nativecommon.StaticPauses(cfg.Pauses())

	tokens := token.NewFungible()
	tokens.SetState(store)
	tokens.SetEmitter(recorder)

	uniques := token.NewUnique()
	uniques.SetState(store)
	uniques.SetEmitter(recorder)

	vault := crypto.ModuleAddress("syndication.vault")
	var vaultAddr [20]byte
	copy(vaultAddr[:], vault.Bytes())

	engine := syndication.NewEngine(vaultAddr, tokens, uniques)
	engine.SetState(store)
	engine.SetAdmin(admin)
	engine.SetEmitter(recorder)
	engine.SetPauses(pauses)
	engine.SetCaps(cfg.MaxParticipants, cfg.MaxCollateralPositions)

	logger.Info("loan ledger initialized",
		"network", cfg.NetworkName,
		"vault", vault.String(),
		"data_dir", cfg.DataDir,
	)

	server := rpc.NewServer(engine, tokens, uniques, recorder, admin, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server terminated", slog.Any("error", err))
		os.Exit(1)
	}
}
