package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/codejudge/api"
	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/judge"
	"github.com/isdmx/codejudge/limiter"
	"github.com/isdmx/codejudge/logger"
	"github.com/isdmx/codejudge/mcpserver"
	"github.com/isdmx/codejudge/sandbox"
	"github.com/isdmx/codejudge/store"
	"github.com/isdmx/codejudge/store/sqlstore"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the judge API server",
		Long: `Start the REST API. When mcp.enabled is set the MCP tool server is
started alongside it on the configured transport.

Examples:
  codejudge serve
  codejudge serve --config /etc/codejudge/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(appOptions(*configPath))
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func appOptions(configPath string) fx.Option {
	return fx.Options(
		appGraph(configPath),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
}

// appGraph is the dependency graph of the serve command
func appGraph(configPath string) fx.Option {
	return fx.Options(
		fx.Provide(
			func() (*config.Config, error) { return config.Load(configPath) },
			logger.NewFromConfig,
			provideStore,
			provideLimiter,
			provideExecutor,
			sandbox.NewRegistry,
			sandbox.NewRunner,
			provideJudge,
		),
		fx.Invoke(registerHTTP, registerMCP),
	)
}

func provideStore(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*sqlstore.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	log.Info("store opened", zap.String("driver", cfg.Store.Driver))

	lc.Append(fx.Hook{OnStop: func(context.Context) error { return st.Close() }})
	return st, nil
}

func provideLimiter(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) limiter.Limiter {
	lim, closeFn := limiter.New(cfg, log)
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return closeFn() }})
	return lim
}

func provideExecutor(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (sandbox.Executor, error) {
	executor, closeFn, err := sandbox.NewExecutor(log, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s executor: %w", cfg.Sandbox.Backend, err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return closeFn() }})
	return executor, nil
}

func provideJudge(cfg *config.Config, log *zap.Logger, runner *sandbox.Runner, st *sqlstore.Store) *judge.Judge {
	return judge.New(log, runner, st, st, st, judge.WithConfig(cfg.Judge))
}

func registerHTTP(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, log *zap.Logger, j *judge.Judge, st *sqlstore.Store) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (or JWT_SECRET) is required to serve the API")
	}

	handler := api.NewRouter(log, j, api.NewTokenAuth(cfg.Auth.JWTSecret),
		api.WithProgress(st),
		api.WithHealthCheck(st),
		api.WithRequestTimeout(cfg.GetRequestTimeout()),
	)
	srv := api.NewServer(fmt.Sprintf(":%d", cfg.Server.HTTPPort), handler)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", srv.Addr, err)
			}
			log.Info("starting HTTP server", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("HTTP server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.GetShutdownTimeout())
			defer cancel()
			log.Info("shutting down HTTP server")
			return srv.Shutdown(ctx)
		},
	})
	return nil
}

func registerMCP(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, log *zap.Logger, j *judge.Judge, runner *sandbox.Runner) {
	if !cfg.MCP.Enabled {
		return
	}
	server := mcpserver.New(cfg, log, j, runner.Languages())

	serve := func(run func() error) {
		go func() {
			if err := run(); err != nil {
				log.Error("MCP server failed", zap.Error(err))
				_ = shutdowner.Shutdown(fx.ExitCode(1))
			}
		}()
	}

	switch cfg.MCP.Transport {
	case "stdio":
		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				serve(func() error {
					err := server.ServeStdio(ctx, os.Stdin, os.Stdout)
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				})
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	case "http":
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				serve(server.ServeHTTP)
				return nil
			},
			OnStop: server.Shutdown,
		})
	}
}
