package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kashflow-sync/internal/api"
	"kashflow-sync/internal/config"
	"kashflow-sync/internal/localstore"
	"kashflow-sync/internal/logger"
	"kashflow-sync/internal/offline"
	"kashflow-sync/internal/pos"
	"kashflow-sync/internal/remote"
	"kashflow-sync/internal/store"
	"kashflow-sync/internal/sync"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	issueToken := flag.String("issue-token", "", "print an API token for the named terminal and exit")
	flag.Parse()

	// Load Config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		token, err := api.IssueToken(cfg.Server.JWTSecret, *issueToken, 365*24*time.Hour)
		if err != nil {
			fmt.Printf("Failed to issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting kashflow sync service")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Device-local storage for the offline queues
	local, err := localstore.Open(ctx, cfg.LocalStorage)
	if err != nil {
		logger.Log.Fatal("Failed to open local storage", zap.Error(err))
	}
	defer local.Close()
	repo := offline.NewRepository(local, cfg.Sync.TempIDPrefix)

	// Init State Store
	stateStore, err := store.Open(ctx, cfg.StateStorage)
	if err != nil {
		logger.Log.Fatal("Failed to init state store", zap.Error(err))
	}
	defer stateStore.Close()

	client := remote.NewClient(cfg.Remote)
	sales := remote.NewSales(client)
	apis := sync.APIs{
		Products: remote.NewProducts(client),
		Sales:    sales,
	}

	// With probing the first probe decides; otherwise the UI reports it.
	online := sync.NewSignal(!cfg.Connectivity.ProbeEnabled)

	engine := sync.NewEngine(repo, sync.EngineOptions{
		Workers:     cfg.Sync.Workers,
		MaxAttempts: cfg.Sync.MaxAttempts,
		DeadLetter:  sync.NewDeadLetter(stateStore),
	})
	syncManager := sync.NewManager(cfg.Sync, engine, repo, apis, stateStore, online)
	syncManager.Watch()
	defer syncManager.Stop()

	scheduler := sync.NewScheduler(cfg.Scheduler, syncManager)
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.Connectivity.ProbeEnabled {
		monitor := sync.NewMonitor(client, cfg.Connectivity.ProbePath, cfg.Connectivity.GetProbeInterval(), online)
		monitor.Start()
		defer monitor.Stop()
	}

	// Init API
	service := pos.NewService(repo, apis, online, pos.Options{
		History:  sales,
		Alerts:   remote.NewAlerts(client),
		Workers:  cfg.Sync.Workers,
		PageSize: cfg.Sync.RefreshPageSize,
	})
	handler := api.NewHandler(cfg.Server, service, syncManager, online)
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
}
