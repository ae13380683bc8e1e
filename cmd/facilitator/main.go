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
	"github.com/porus-labs/porus/internal/facilitator"
	"github.com/porus-labs/porus/internal/x402"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "facilitator",
		Short:         "Porus payment facilitator - verifies and settles x402 payment assertions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runFacilitator,
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runFacilitator(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.LoadFacilitator()
	if err != nil {
		return err
	}

	// signers are built once from key material and reused across requests
	signers := map[x402.Family]facilitator.Signer{}
	if cfg.EVMPrivateKey != "" {
		signer, err := facilitator.NewEVMSigner(cfg.EVMPrivateKey)
		if err != nil {
			return err
		}
		signers[x402.FamilyEVM] = signer
		log.Info("EVM family enabled", "address", signer.Address())
	}
	if cfg.SVMPrivateKey != "" {
		signer, err := facilitator.NewSVMSigner(cfg.SVMPrivateKey)
		if err != nil {
			return err
		}
		signers[x402.FamilySVM] = signer
		log.Info("SVM family enabled", "feePayer", signer.Address())
	}

	svc, err := facilitator.New(signers, log)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: svc.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("facilitator listening", "addr", httpSrv.Addr)
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
