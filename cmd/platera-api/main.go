// README: Entry point; loads config, wires modules, rebuilds presence, serves HTTP.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"platera/internal/auth"
	"platera/internal/config"
	httptransport "platera/internal/http"
	"platera/internal/http/handlers"
	"platera/internal/infra"
	"platera/internal/logger"
	"platera/internal/modules/assignment"
	"platera/internal/modules/ledger"
	"platera/internal/modules/menu"
	"platera/internal/modules/order"
	"platera/internal/modules/presence"
	"platera/internal/payment"
	"platera/internal/quote"
	"platera/internal/sms"
	"platera/internal/transport/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	zlog, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		zlog.Fatal("postgres init", zap.Error(err))
	}
	defer dbPool.Close()
	redisClient := infra.NewRedis(cfg.Redis.Addr)

	verifier := auth.NewVerifier(cfg.Auth.TokenKey)
	gateway := payment.NewGateway(cfg.Gateway)
	smsClient := sms.NewClient(cfg.SMS)
	// Without a Maps key the API still boots; delivery fees fall back to
	// zero until a key is configured.
	var quoter order.Quoter
	if cfg.Quote.MapsAPIKey != "" {
		quoteSvc, err := quote.NewService(cfg.Quote)
		if err != nil {
			zlog.Fatal("maps init", zap.Error(err))
		}
		quoter = quoteSvc
	} else {
		zlog.Warn("maps api key not set, delivery quoting disabled")
	}

	registry := presence.NewRegistry()
	active := presence.NewActiveDeliveries()
	geo := presence.NewGeoStore(redisClient)
	relay := presence.NewLocationRelay(active, registry, geo, zlog)

	menuStore := menu.NewStore(dbPool)
	orderStore := order.NewStore(dbPool)
	ledgerStore := ledger.NewStore(dbPool)
	ledgerSvc := ledger.NewService(ledgerStore, cfg.Rates)

	bridge := payment.NewBridge(orderStore, ledgerSvc, gateway, registry, smsClient, active, redisClient, zlog)
	orderSvc := order.NewService(orderStore, menuStore, cfg.Rates, quoter, bridge, zlog)

	assignStore := assignment.NewStore(dbPool)
	assignSvc := assignment.NewService(assignStore, registry, active, geo, zlog)

	// Courier bindings survive restarts through the orders table.
	if err := active.Rebuild(ctx, orderStore); err != nil {
		zlog.Fatal("active deliveries rebuild", zap.Error(err))
	}

	wsHandler := ws.NewHandler(verifier, registry, relay, geo, zlog)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Verifier: verifier,
		Order:    handlers.NewOrderHandler(orderSvc, gateway, cfg.Gateway.Currency, zlog),
		Manager:  handlers.NewManagerHandler(orderSvc, assignSvc, zlog),
		Courier:  handlers.NewCourierHandler(orderSvc, assignSvc),
		Ledger:   handlers.NewLedgerHandler(ledgerSvc, bridge),
		Webhook:  handlers.NewWebhookHandler(bridge, cfg.Gateway.WebhookSecret, zlog),
		WS:       wsHandler,
		Log:      zlog,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zlog.Info("listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zlog.Fatal("server", zap.Error(err))
	}
}
