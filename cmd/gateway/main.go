package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/porus-labs/porus/internal/config"
	"github.com/porus-labs/porus/internal/credential"
	"github.com/porus-labs/porus/internal/gateway"
	"github.com/porus-labs/porus/internal/registry"
	"github.com/porus-labs/porus/internal/settlement"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "gateway",
		Short:         "Porus authorization gateway - pay-or-credential access to protected resources",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGateway,
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.LoadGateway()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "your-secret-jwt-key-change-in-production" {
		log.Warn("JWT_SECRET not set, using the insecure default")
	}

	reg, closeReg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer closeReg()

	var auth settlement.AuthProvider
	if cfg.CDPAPIKey != "" && cfg.CDPAPIKeySecret != "" {
		auth = settlement.NewCDPAuthProvider(cfg.CDPAPIKey, cfg.CDPAPIKeySecret, cfg.FacilitatorURL)
	}
	settler := settlement.New(settlement.Config{
		BaseURL: cfg.FacilitatorURL,
		Timeout: cfg.SettleTimeout,
		Auth:    auth,
	})

	srv := gateway.New(
		gateway.Config{SecureCookies: cfg.Production()},
		reg,
		credential.New(cfg.JWTSecret),
		settler,
		log,
	)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening",
			"addr", httpSrv.Addr,
			"facilitator", cfg.FacilitatorURL,
			"registry", cfg.RegistryBackend)
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func openRegistry(cfg config.Gateway) (registry.Registry, func(), error) {
	switch cfg.RegistryBackend {
	case config.BackendSQLite:
		store, err := registry.OpenSQLite(cfg.RegistryDB)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return registry.NewFileStore(cfg.RegistryFile), func() {}, nil
	}
}
