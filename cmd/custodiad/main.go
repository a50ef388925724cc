package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"custodia/config"
	"custodia/core"
	"custodia/gateway/auth"
	"custodia/gateway/middleware"
	"custodia/observability/logging"
	"custodia/rpc"
	"custodia/storage"
)

func main() {
	configFile := flag.String("config", "./custodia.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("custodiad", cfg.Environment, cfg.LogFile)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data directory", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	dsn, err := storage.FileDSN(filepath.Join(cfg.DataDir, "audit.db"))
	if err != nil {
		logger.Error("resolve audit storage", "error", err)
		os.Exit(1)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		logger.Error("open audit storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	node := core.NewNode()
	node.SetEventSink(storage.NewSink(store, logger))
	if err := seedGenesis(node, cfg.Genesis); err != nil {
		logger.Error("seed genesis accounts", "error", err)
		os.Exit(1)
	}

	credentials := make(map[string]auth.Credential, len(cfg.Clients))
	for _, client := range cfg.Clients {
		addr, err := config.DecodeAddress(client.Address)
		if err != nil {
			logger.Error("decode client address", "key", client.Key, "error", err)
			os.Exit(1)
		}
		credentials[client.Key] = auth.Credential{Secret: client.Secret, Address: addr}
	}
	authenticator := auth.NewAuthenticator(
		credentials,
		time.Duration(cfg.AuthTimestampToleranceSeconds)*time.Second,
		0, 0, nil,
	)

	server := rpc.New(rpc.Config{
		Node:          node,
		Store:         store,
		Authenticator: authenticator,
		RateLimit: middleware.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.ListenAddress, "env", cfg.Environment)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			os.Exit(1)
		}
	}
}

func seedGenesis(node *core.Node, accounts []config.GenesisAccount) error {
	for _, acct := range accounts {
		addr, err := config.DecodeAddress(acct.Address)
		if err != nil {
			return err
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(acct.Balance), 10)
		if !ok {
			return fmt.Errorf("invalid genesis balance %q", acct.Balance)
		}
		if err := node.SetBalance(addr, balance); err != nil {
			return err
		}
	}
	return nil
}
