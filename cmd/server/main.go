package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/thraizz/yomi-server-go/internal/config"
	"github.com/thraizz/yomi-server-go/internal/game"
	"github.com/thraizz/yomi-server-go/internal/game/replay"
	"github.com/thraizz/yomi-server-go/internal/repository"
	"github.com/thraizz/yomi-server-go/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting yomi combat server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Create context that listens for termination signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize encounter
	encounterID := cfg.Server.EncounterID
	if encounterID == "" {
		encounterID = uuid.NewString()
	}
	gameMgr := game.NewManager(logger)
	encounter, err := gameMgr.StartEncounter(encounterID, cfg.Combat, game.EncounterOptions{})
	if err != nil {
		logger.Fatal("failed to start encounter", zap.Error(err))
	}

	// Initialize outcome log
	var sink *repository.Sink
	if cfg.Database.Enabled {
		db, err := repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		logPoolStats(logger, db)

		outcomes := repository.NewOutcomeLog(db, encounterID)
		if err := outcomes.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to prepare outcome log", zap.Error(err))
		}
		sink = repository.NewSink(outcomes, cfg.Database.SinkBuffer, logger)
		go sink.Run(context.Background())
		encounter.Bus().Subscribe(sink.Listen)
		logger.Info("outcome log initialized", zap.Int("buffer", cfg.Database.SinkBuffer))
	}

	// Initialize replay journal
	var recorder *replay.Recorder
	if cfg.Replay.Enabled {
		recorder = replay.NewRecorder(logger, cfg.Replay.Directory)
		recorder.StartRecording(encounterID)
		recorder.Attach(encounterID, encounter.Bus())
		logger.Info("replay recording enabled", zap.String("directory", cfg.Replay.Directory))
	}

	grpcServer := server.NewGRPCServer(cfg.Server.GRPC, logger)
	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}

	// Start gRPC server
	grpcDone := make(chan struct{})
	go func() {
		defer close(grpcDone)
		if serveErr := grpcServer.Serve(ctx, lis); serveErr != nil {
			logger.Error("gRPC server error", zap.Error(serveErr))
		}
	}()

	// Start WebSocket server
	hub := server.NewHub(encounter, cfg.Server.WebSocket, logger)
	wsDone := make(chan struct{})
	go func() {
		defer close(wsDone)
		if wsErr := server.StartWebSocketServer(ctx, cfg.Server.WebSocket, hub, logger); wsErr != nil {
			logger.Error("WebSocket server error", zap.Error(wsErr))
		}
	}()

	logger.Info("yomi combat server initialized",
		zap.String("version", version),
		zap.String("encounter_id", encounterID),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
	)

	// Wait for termination signal
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	logger.Info("shutting down gracefully...")
	cancel()
	<-wsDone
	<-grpcDone

	// Stop the engine before flushing what it produced
	gameMgr.CloseAll()

	if sink != nil {
		sink.Close()
		logger.Info("outcome log flushed",
			zap.Int64("dropped", sink.Dropped()),
			zap.Int64("failed", sink.Failed()),
		)
	}
	if recorder != nil {
		recorder.StopRecording(encounterID)
		if err := recorder.Save(encounterID); err != nil {
			logger.Error("failed to save replay", zap.Error(err))
		} else {
			logger.Info("replay saved", zap.String("file", replay.Filename(cfg.Replay.Directory, encounterID)))
		}
	}

	logger.Info("yomi combat server stopped")
}

// logPoolStats reports the pool's connection counts.
func logPoolStats(logger *zap.Logger, db *repository.DB) {
	stats := db.Stat()
	logger.Info("database connection pool initialized",
		zap.Int32("total_conns", stats.TotalConns()),
		zap.Int32("idle_conns", stats.IdleConns()),
		zap.Int32("max_conns", stats.MaxConns()),
	)
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
