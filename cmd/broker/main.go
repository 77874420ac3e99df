// Command broker runs the central process that routes remote calls and
// events between independent processes on the same host.
//
// Called by: operators / process supervisors.
// Calls: internal/config, internal/logging, internal/registry, internal/broker.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LorenzoLeonardo/remote-call/internal/broker"
	"github.com/LorenzoLeonardo/remote-call/internal/config"
	"github.com/LorenzoLeonardo/remote-call/internal/logging"
	"github.com/LorenzoLeonardo/remote-call/internal/registry"
)

func main() {
	logger := logging.Default()

	configFile := ""
	if len(os.Args) >= 2 {
		configFile = os.Args[1]
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("broker: failed to load config: %v", err)
	}

	addr := cfg.ResolveAddress()
	reg := registry.New(logger.Std())
	srv := broker.NewServer(addr, reg, logger.Std())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("broker exited: %v", err)
		}
		return
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		logger.Warn("shutdown timed out")
	}
}
