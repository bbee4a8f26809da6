package main

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/scriptbox/config"
	"github.com/isdmx/scriptbox/executor"
	"github.com/isdmx/scriptbox/health"
	"github.com/isdmx/scriptbox/logger"
	"github.com/isdmx/scriptbox/mcpserver"
)

func main() {
	fx.New(options()).Run()
}

func options() fx.Option {
	return fx.Options(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Script executor with the configured backend and host functions
			executor.NewFromConfig,
			func(e *executor.Executor) mcpserver.Runner { return e },

			// MCP Server
			mcpserver.New,

			// Liveness and readiness probes
			newHealthServer,
		),

		// Start the health listener and the configured transport
		fx.Invoke(register),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
}

func newHealthServer(cfg *config.Config, logger *zap.Logger, exec *executor.Executor) *health.Server {
	return health.NewServer(logger.Named("health"), cfg.Server.HealthPort, exec)
}

func register(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	logger *zap.Logger,
	server *mcpserver.MCPServer,
	healthServer *health.Server,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			serve, err := transport(cfg.Server.Transport, server)
			if err != nil {
				return err
			}
			if err := healthServer.Start(ctx); err != nil {
				return err
			}
			go func() {
				if err := serve(); err != nil {
					logger.Error("transport stopped", zap.String("transport", cfg.Server.Transport), zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
					return
				}
				// stdio returns once the client closes the stream
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := server.Shutdown(ctx); err != nil {
				logger.Warn("failed to stop transport", zap.Error(err))
			}
			return healthServer.Stop(ctx)
		},
	})
}

func transport(name string, server *mcpserver.MCPServer) (func() error, error) {
	switch name {
	case "stdio":
		return server.ServeStdio, nil
	case "http":
		return server.ServeHTTP, nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", name)
	}
}
