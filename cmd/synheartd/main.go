// Command synheartd runs the synheart on-device Human-State Inference
// runtime as a standalone process: it wires the facade to the configured
// sources, starts data collection, and optionally exposes the debug/ops
// HTTP surface and the WebSocket inspector bridge.
package main

//	@title			Synheart Runtime Debug API
//	@version		0.1.0
//	@description	Liveness, readiness, and health introspection for the synheart on-device HSI runtime.
//	@BasePath		/api/v1

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/synheart/synheart-runtime/api/swagger"
	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/channel"
	"github.com/synheart/synheart-runtime/internal/config"
	"github.com/synheart/synheart-runtime/internal/facade"
	"github.com/synheart/synheart-runtime/internal/securestore"
	"github.com/synheart/synheart-runtime/internal/server"
	"github.com/synheart/synheart-runtime/internal/store"
	"github.com/synheart/synheart-runtime/internal/version"
	"github.com/synheart/synheart-runtime/internal/wsapi"
	"github.com/synheart/synheart-runtime/pkg/module"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version.Info())
		return
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	userID := flag.String("user", "default", "local user id to initialize the facade under")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("synheartd starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults")
	}

	dataDir := viperCfg.GetString("data_dir")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		logger.Fatal("failed to create data directory", zap.Error(err), zap.String("path", dataDir))
	}

	db, err := store.New(dataDir + "/synheart.db")
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer db.Close()
	logger.Info("store opened", zap.String("component", "store"))

	rootKeys := securestore.StaticRootKeyProvider{Secret: []byte(rootSecret(viperCfg))}
	secure := securestore.New(db, rootKeys)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := secure.Open(ctx); err != nil {
		logger.Fatal("failed to open secure store", zap.Error(err))
	}
	defer secure.Close()
	logger.Info("secure store opened", zap.String("component", "securestore"))

	sources := facade.Sources{
		Wear:     channel.NoopWearSource{},
		Phone:    channel.NoopPhoneSource{},
		Behavior: channel.NoopBehaviorSource{},
	}

	eng := facade.New(sources, db, secure, logger.Named("facade"))

	if err := eng.Initialize(ctx, *userID, cfg, true); err != nil {
		logger.Fatal("failed to initialize facade", zap.Error(err))
	}
	logger.Info("facade initialized and data collection started", zap.String("component", "facade"))

	devMode := viperCfg.GetBool("server.dev_mode")
	addr := fmt.Sprintf("%s:%d", viperCfg.GetString("server.host"), viperCfg.GetInt("server.port"))

	readyCheck := func(ctx context.Context) error {
		if eng.Status() != module.StatusRunning {
			return fmt.Errorf("facade is not running (status=%v)", eng.Status())
		}
		return nil
	}

	wsHandler := wsapi.NewHandler(eng, logger.Named("wsapi"))
	defer wsHandler.Close()

	srv := server.New(addr, logger.Named("server"), readyCheck, devMode, wsHandler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("debug server error", zap.Error(err))
		}
	}()
	logger.Info("synheartd ready", zap.String("addr", addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("debug server shutdown error", zap.Error(err))
	}
	if err := eng.Dispose(shutdownCtx); err != nil {
		logger.Error("facade dispose error", zap.Error(err))
	}

	logger.Info("synheartd stopped")
}

// rootSecret resolves the secure store's root key material. A configured
// secret is used verbatim; otherwise a fixed built-in fallback value is
// returned, the same for every process started without one set.
func rootSecret(v interface{ GetString(string) string }) string {
	if s := v.GetString("secure.root_secret"); s != "" {
		return s
	}
	return "synheartd-ephemeral-root-secret"
}
