package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regdesk/internal/client"
	"regdesk/internal/clock"
	"regdesk/internal/conditions"
	"regdesk/internal/config"
	"regdesk/internal/notify"
	"regdesk/internal/repository"
	"regdesk/internal/server"
	"regdesk/internal/service"
	"syscall"
	"time"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db := client.InitDBClient(cfg.Database)

	var notifier notify.Notifier = notify.LogNotifier{}
	rdb, err := client.InitRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		log.Printf("[redis] %v, notifications will only be logged", err)
	}
	if rdb != nil {
		defer rdb.Close()
		notifier = notify.Multi{notify.LogNotifier{}, notify.NewRedisNotifier(rdb, cfg.Redis.Queue)}
	}

	gateway := client.NewBraintreeClient(&cfg.BrainTree)
	clk := clock.Real{}

	tx := repository.NewTransactor(db)
	catalogRepo := repository.NewCatalogRepository(db)
	conditionRepo := repository.NewConditionRepository(db)
	cartRepo := repository.NewCartRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	reportRepo := repository.NewReportRepository(db)

	engine, err := conditions.NewEngine(conditionRepo, cartRepo, catalogRepo, clk)
	if err != nil {
		log.Fatalf("Failed to build condition engine: %v", err)
	}

	cartService := service.NewCartService(tx, cartRepo, catalogRepo, engine, clk)
	invoiceService := service.NewInvoiceService(tx, invoiceRepo, paymentRepo, cartRepo, cartService, notifier, clk)
	creditNoteService := service.NewCreditNoteService(
		tx, invoiceRepo, paymentRepo, cartRepo, cartService, notifier, clk,
		cfg.Registration.InvoiceDueGrace,
	)

	srv := server.NewServer(cfg.Auth, cfg.Registration, server.Services{
		Cart:       cartService,
		Invoice:    invoiceService,
		CreditNote: creditNoteService,
		Checkout:   service.NewCheckoutService(invoiceService, gateway),
		Product:    service.NewProductService(catalogRepo, engine),
		User:       service.NewUserService(cartRepo, catalogRepo),
		Report:     service.NewReportService(reportRepo, clk),
	})

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	log.Println("Starting HTTP server on", serverAddr)
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Println("Signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP server shutdown error: %v", err)
	}
}
