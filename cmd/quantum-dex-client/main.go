package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/quantumauth-io/quantum-go-utils/log"

	clientconfig "github.com/quantumauth-io/quantum-dex-client/cmd/quantum-dex-client/config"
	"github.com/quantumauth-io/quantum-dex-client/internal/assets"
	"github.com/quantumauth-io/quantum-dex-client/internal/balances"
	"github.com/quantumauth-io/quantum-dex-client/internal/constants"
	"github.com/quantumauth-io/quantum-dex-client/internal/history"
	clienthttp "github.com/quantumauth-io/quantum-dex-client/internal/http"
	"github.com/quantumauth-io/quantum-dex-client/internal/ledger"
	"github.com/quantumauth-io/quantum-dex-client/internal/netstatus"
	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
	"github.com/quantumauth-io/quantum-dex-client/internal/portfolio"
	"github.com/quantumauth-io/quantum-dex-client/internal/session"
	"github.com/quantumauth-io/quantum-dex-client/internal/swap"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	log.Info(constants.AppName,
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := clientconfig.Load()
	if err != nil {
		log.Fatal("failed to parse config", "error", err)
	}

	overridesPath, err := networks.OverridesPath()
	if err != nil {
		log.Fatal("failed to resolve networks.json path", "error", err)
	}
	nets, err := networks.NewRegistry(cfg.Networks, overridesPath)
	if err != nil {
		log.Fatal("failed to build network registry", "error", err)
	}
	reg, err := assets.NewRegistry(cfg.Assets, cfg.Routers)
	if err != nil {
		log.Fatal("failed to build asset registry", "error", err)
	}

	pool := ledger.NewPool(nets, nil)
	defer pool.Close()

	gw, err := openGateway(ctx, cfg, nets, pool)
	if err != nil {
		log.Error("wallet gateway init failed", "gateway", cfg.ClientSettings.Gateway, "error", err)
		return
	}
	defer gw.Close()

	sessions := session.New(gw, nets)
	sessions.EventTimeout = cfg.ClientSettings.RequestTimeout

	store := portfolio.NewStore(
		sessions,
		balances.NewSynchronizer(gw, pool, reg, nets),
		history.NewReconstructor(pool, reg, history.Options{
			MaxBlocks:   cfg.History.MaxBlocks,
			MaxRecords:  cfg.History.MaxRecords,
			Concurrency: cfg.History.ScanConcurrency,
		}),
	)
	monitor := netstatus.NewMonitor(sessions, pool, nets, cfg.Status.PollInterval)

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){gw.Run, sessions.Run, store.Run, monitor.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}

	handler := clienthttp.NewRouter(clienthttp.NewHandler(clienthttp.Deps{
		Session:   sessions,
		Portfolio: store,
		Swaps:     swap.NewRouter(sessions, gw, pool, reg, cfg.Swap),
		Sends:     swap.NewSender(sessions, gw),
		Status:    monitor,
		Networks:  nets,
		Assets:    reg,
		Version:   Version,
	}), cfg.ClientSettings.UIOrigins)

	addr := net.JoinHostPort(cfg.ClientSettings.LocalHost, cfg.ClientSettings.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("UI API listening", "addr", addr, "gateway", cfg.ClientSettings.Gateway)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ClientSettings.ShutdownTimeout)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	} else {
		log.Info("HTTP server gracefully stopped")
	}
	wg.Wait()
}
