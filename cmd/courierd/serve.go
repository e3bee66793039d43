package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/courier"
	"github.com/opd-ai/courier/config"
	"github.com/opd-ai/courier/factory"
	"github.com/opd-ai/courier/httpapi"
	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/lifecycle"
	"github.com/opd-ai/courier/qr"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect the messaging client and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().Bool("qr-terminal", false, "draw QR challenges on stderr as they arrive")
	cmd.Flags().String("listen", "", "override the listen address")
	cmd.Flags().Bool("simulate", false, "use the simulated transport instead of the bridge worker")
	return cmd
}

// newTransportFactory builds the factory for cfg. simulate forces the
// simulated transport regardless of the configured mode.
func newTransportFactory(cfg *config.Config, simulate bool) (*factory.TransportFactory, error) {
	f, err := factory.NewTransportFactoryWithConfig(cfg.TransportConfig())
	if err != nil {
		return nil, err
	}
	if simulate {
		f.SwitchToSimulation()
	}
	logrus.WithFields(logrus.Fields{
		"function":   "newTransportFactory",
		"simulation": f.IsUsingSimulation(),
	}).Info("Transport factory ready")
	return f, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}
	if err := setupLogging(cfg.Log, os.Stderr); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer closeStore()

	simulate, _ := cmd.Flags().GetBool("simulate")
	f, err := newTransportFactory(cfg, simulate)
	if err != nil {
		return err
	}
	options := cfg.ChannelOptions()
	options.Factory = f.Constructor(store)
	options.Store = store

	ch, err := courier.New(options)
	if err != nil {
		return err
	}
	if drawQR, _ := cmd.Flags().GetBool("qr-terminal"); drawQR {
		ch.OnStateChange(func(prev, next courier.State) {
			if next.Phase == lifecycle.PhaseQRPending && next.QRChallenge != prev.QRChallenge {
				fmt.Fprintln(os.Stderr, "Scan this QR code with the messaging app:")
				_ = qr.WriteTerminal(next.QRChallenge, os.Stderr)
			}
		})
	}
	ch.OnMessage(func(msg *interfaces.InboundMessage) {
		logrus.WithFields(logrus.Fields{
			"function": "runServe",
			"from":     msg.From,
			"id":       msg.ID,
		}).Info("Inbound message")
	})

	if err := ch.Start(ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "runServe",
			"error":    err.Error(),
		}).Warn("Initial connect failed, automatic restart scheduled")
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(ch)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"function": "runServe",
			"listen":   cfg.Listen,
		}).Info("HTTP API listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		logrus.WithFields(logrus.Fields{
			"function": "runServe",
		}).Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "runServe",
			"error":    serr.Error(),
		}).Warn("HTTP shutdown incomplete")
	}
	if cerr := ch.Close(shutdownCtx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
