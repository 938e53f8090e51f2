package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PosFiscal/app/api"
	"PosFiscal/app/config"
	"PosFiscal/app/database"
	"PosFiscal/app/fiscal"
	"PosFiscal/app/logging"
	"PosFiscal/app/security"
	"PosFiscal/app/services"
	"PosFiscal/app/websocket"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	cipher, err := security.NewCipher(cfg.DataPath)
	if err != nil {
		return err
	}

	profiles := services.NewProfileService(db, cipher, log)
	gateway := fiscal.NewGateway(cfg.Agent, log)
	engine := fiscal.NewEngine(db, gateway, profiles, log)

	hub := websocket.NewHub(log)
	go hub.Run()
	engine.SetNotifier(hub)

	inventory := services.NewInventoryService(db, log)
	ledger := services.NewLedgerService(db, inventory, engine, log)
	products := services.NewProductService(db, log)
	reports := services.NewReportService(db, log)

	handlers := api.NewHandlers(ledger, inventory, products, profiles, reports, engine, hub, log)
	router := api.NewRouter(handlers, cfg.Environment)

	if cfg.Discovery.Enabled {
		if err := hub.Announce(cfg.Discovery.InstanceName, cfg.Discovery.Port); err != nil {
			log.Warn("mdns announcement failed", zap.Error(err))
		}
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("agent_endpoint", cfg.Agent.Endpoint))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Shutdown()
	return server.Shutdown(ctx)
}
