package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/handlepay/internal/api"
	"github.com/punchamoorthee/handlepay/internal/balance"
	"github.com/punchamoorthee/handlepay/internal/chain"
	"github.com/punchamoorthee/handlepay/internal/checkout"
	"github.com/punchamoorthee/handlepay/internal/config"
	"github.com/punchamoorthee/handlepay/internal/identity"
	"github.com/punchamoorthee/handlepay/internal/provider"
	"github.com/punchamoorthee/handlepay/internal/service"
	"github.com/punchamoorthee/handlepay/internal/settlement"
	"github.com/punchamoorthee/handlepay/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(ctx, cfg.DBSource)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, st.Db); err != nil {
			slog.Error("database migration failed", "error", err)
			os.Exit(1)
		}
		slog.Info("database migrations applied")
	}

	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderSecretKey, cfg.ProviderNetwork, cfg.HTTPClientTimeout)

	var relay settlement.Relay
	if cfg.ProviderSecretKey != "" {
		relay = provider.NewSponsoredRelay(providerClient)
	} else {
		slog.Warn("PROVIDER_SECRET_KEY not set, sponsored transfers disabled")
	}

	var bridge *chain.Bridge
	if cfg.WalletBridgeURL != "" {
		bridge = chain.NewBridge(cfg.WalletBridgeURL, cfg.HTTPClientTimeout)
	}

	var onChain balance.Chain
	if cfg.StarknetRPCURL != "" {
		onChain = chain.NewClient(cfg.StarknetRPCURL, cfg.HTTPClientTimeout)
	}

	if cfg.AllowSimulatedFallback {
		slog.Warn("ALLOW_SIMULATED_FALLBACK is on, relay endpoints will fabricate addresses and tx hashes when the provider fails")
	}

	co := checkout.New(cfg.CheckoutProcessor, cfg.CheckoutBaseURL, cfg.CheckoutPublicKey, cfg.CheckoutWebhookSecret)
	resolver := identity.NewResolver(st)

	handler := api.NewHandler(api.Deps{
		Transfers: service.NewTransferService(resolver, settlement.NewRouter(relay, cfg.TokenAddress), st, co, cfg.TokenDecimals),
		Wallets:   service.NewWalletService(st, providerClient, cfg.AllowSimulatedFallback),
		Completer: service.NewCompleter(st),
		Balances:  balance.NewReader(st, onChain, cfg.TokenAddress, cfg.TokenDecimals),
		Resolver:  resolver,
		Accounts:  service.NewAccountService(st),
		Checkout:  co,
		Bridge:    bridge,
		Auth:      api.NewAuthenticator(cfg.AuthJWTSecret),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server starting", "env", cfg.Env, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	slog.Info("server exited")
}
