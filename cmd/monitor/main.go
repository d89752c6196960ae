package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	blockchain "acctforge/blockchain/client"
	"acctforge/blockchain/client/condenser"
	"acctforge/config"
	"acctforge/delivery"
	"acctforge/internal/messaging/producer"
	"acctforge/monitor"
	"acctforge/provision"
	httphandler "acctforge/service/http"
	"acctforge/storage/cursor"
	"acctforge/storage/pending"
	"acctforge/storage/quota"
)

const monitorConfigPath = "./config/monitor.defaults.yml"

func main() {
	logger := log.New(os.Stdout, "[MONITOR] ", log.LstdFlags|log.Lshortfile)
	logger.Println("Starting account monitor service...")

	// 1. Load configuration
	cfg, err := config.LoadMonitorConfig(monitorConfigPath)
	if err != nil {
		logger.Fatalf("FATAL: Failed to load monitor configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize durable stores. Unwritable ledgers abort startup rather
	// than running in a degraded, silently-failing mode.
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		logger.Fatalf("FATAL: Failed to create data directory %s: %v", cfg.Storage.DataDir, err)
	}

	cursorStore, err := cursor.New(cfg.Storage.CursorPath(), cfg.Pump.StartHeight, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize cursor store: %v", err)
	}

	pendingLedger, err := pending.New(cfg.Storage.PendingPath(), logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize pending-credentials ledger: %v", err)
	}

	quotaStore, err := newQuotaStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize quota ledger: %v", err)
	}
	defer quotaStore.Close()

	// 3. Initialize the chain client using configuration files
	logger.Println("Initializing chain client using configuration files...")
	chainClient, err := blockchain.NewChainClientFromFile(cfg.ChainClientConfigPath, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize chain client: %v", err)
	}
	defer chainClient.Close()

	addressPrefix := "STM"
	if ccfg, ok := chainClient.Config().(*condenser.CondenserConfig); ok {
		addressPrefix = ccfg.AddressPrefix
	}

	// 4. Initialize the lifecycle-event producer
	var events producer.Producer
	if cfg.KafkaProducer.Enabled() {
		logger.Println("Initializing Kafka producer...")
		events, err = producer.NewKafkaProducer(cfg.KafkaProducer, logger)
		if err != nil {
			logger.Fatalf("FATAL: Failed to initialize Kafka producer: %v", err)
		}
	} else {
		events = producer.NewNoopProducer(logger)
	}
	defer events.Close()

	// 5. Assemble the pipeline
	provisioner := provision.New(chainClient, cfg.Delivery.CreatorAccount, addressPrefix, logger)

	var mailer delivery.Mailer
	if cfg.Delivery.Email.Configured() {
		mailer = delivery.NewSMTPMailer(cfg.Delivery.Email)
	} else {
		logger.Println("Email transport not configured, email channel will report failures")
	}

	router, err := delivery.NewRouter(chainClient, mailer, cfg.Delivery, addressPrefix, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize delivery router: %v", err)
	}

	mon := monitor.New(cfg.Pump, chainClient, cursorStore, quotaStore, pendingLedger, provisioner, router, events, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.Run(ctx)
	}()

	// 6. [Conditional startup] operational HTTP server
	var httpServer *http.Server
	if cfg.HttpListenAddr != "" {
		mux := http.NewServeMux()
		httphandler.NewMonitorHandler(mon, logger).Register(mux)

		readTimeout := cfg.HttpServer.ReadTimeout
		if readTimeout == 0 {
			readTimeout = 5 * time.Second
		}
		writeTimeout := cfg.HttpServer.WriteTimeout
		if writeTimeout == 0 {
			writeTimeout = 10 * time.Second
		}
		idleTimeout := cfg.HttpServer.IdleTimeout
		if idleTimeout == 0 {
			idleTimeout = 60 * time.Second
		}
		maxHeaderBytes := cfg.HttpServer.MaxHeaderBytes
		if maxHeaderBytes == 0 {
			maxHeaderBytes = 1 << 20 // 1 MB
		}

		httpServer = &http.Server{
			Addr:           cfg.HttpListenAddr,
			Handler:        mux,
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			IdleTimeout:    idleTimeout,
			MaxHeaderBytes: maxHeaderBytes,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Printf("HTTP server listening on %s", cfg.HttpListenAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("HTTP server startup failed: %v", err)
			}
			logger.Println("HTTP server stopped listening.")
		}()
	} else {
		logger.Println("http_listen_addr not configured, skipping HTTP server startup.")
	}

	logger.Println("Account monitor service started. Press Ctrl+C to stop.")

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Printf("Received shutdown signal: %s, initiating graceful shutdown...", sig)
	cancel()

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP server shutdown failed: %v", err)
		}
	}

	// Wait for the pump (which flushes the cursor) and the HTTP server
	wg.Wait()
	logger.Println("Account monitor service shut down gracefully.")
}

// newQuotaStore selects the quota backend per configuration.
func newQuotaStore(ctx context.Context, cfg *config.MonitorConfig, logger *log.Logger) (quota.Store, error) {
	switch cfg.Quota.Backend {
	case "postgres":
		logger.Println("Initializing Postgres quota store...")
		return quota.NewPostgresStore(ctx, cfg.Quota.Database.DSN,
			cfg.Quota.Database.MinConnections, cfg.Quota.Database.MaxConnections, logger)
	default:
		return quota.NewFileStore(cfg.Storage.QuotaPath(), logger)
	}
}
