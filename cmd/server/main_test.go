package main

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thraizz/yomi-server-go/internal/config"
	"github.com/thraizz/yomi-server-go/internal/repository"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogPoolStats(t *testing.T) {
	// pgxpool connects lazily, so no server is needed to read the counters.
	pool, err := pgxpool.New(context.Background(), "postgres://yomi@127.0.0.1:1/yomi?pool_max_conns=4")
	require.NoError(t, err)
	defer pool.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	logPoolStats(zap.New(core), &repository.DB{Pool: pool})

	entries := logs.FilterMessage("database connection pool initialized").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int32(0), fields["total_conns"])
	assert.Equal(t, int32(0), fields["idle_conns"])
	assert.Equal(t, int32(4), fields["max_conns"])
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		cfg        config.LoggingConfig
		enabled    zapcore.Level
		suppressed zapcore.Level
	}{
		{config.LoggingConfig{Level: "debug", Format: "json"}, zapcore.DebugLevel, zapcore.InvalidLevel},
		{config.LoggingConfig{Level: "warn", Format: "console"}, zapcore.WarnLevel, zapcore.InfoLevel},
		{config.LoggingConfig{Level: "bogus"}, zapcore.InfoLevel, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.cfg.Level, func(t *testing.T) {
			logger, err := initLogger(tt.cfg)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			if tt.suppressed != zapcore.InvalidLevel {
				assert.False(t, logger.Core().Enabled(tt.suppressed))
			}
		})
	}
}
