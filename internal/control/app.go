// Package control wires the service components together and manages their
// lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/demandcast/internal/api"
	"github.com/vietddude/demandcast/internal/core/config"
	"github.com/vietddude/demandcast/internal/core/errs"
	"github.com/vietddude/demandcast/internal/core/retry"
	"github.com/vietddude/demandcast/internal/fallback"
	"github.com/vietddude/demandcast/internal/forecast"
	"github.com/vietddude/demandcast/internal/health"
	redisclient "github.com/vietddude/demandcast/internal/infra/redis"
	"github.com/vietddude/demandcast/internal/infra/storage"
	"github.com/vietddude/demandcast/internal/infra/storage/postgres"
	"github.com/vietddude/demandcast/internal/llm"
	"github.com/vietddude/demandcast/internal/model"
)

const cpuSampleWindow = 500 * time.Millisecond

// App owns every long-lived component.
type App struct {
	cfg        *config.AppConfig
	db         *postgres.DB
	redis      *redisclient.Client
	models     *model.Store
	svc        *forecast.Service
	checker    *health.Checker
	grpcHealth *health.GRPCReporter
	httpServer *api.Server
	grpcServer *grpc.Server
	log        *slog.Logger
}

// New builds the application. Unreachable dependencies are logged and the
// service starts degraded instead of failing.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{cfg: cfg, log: slog.Default()}
	errHandler := errs.NewHandler(errs.WithDebug(cfg.Server.Debug))

	// 1. Storage
	var (
		sales  storage.SalesRepository
		prober health.DatabaseProber
	)
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			errHandler.Handle(errs.Database("database unavailable at startup", errs.WithCause(err)), nil)
			prober = unreachableDB{err: err}
		} else {
			a.db = db
			if cfg.Database.AutoMigrate {
				if err := postgres.MigrateUp(ctx, db.DB.DB); err != nil {
					_ = db.Close()
					return nil, fmt.Errorf("failed to migrate db: %w", err)
				}
			}
			sales = postgres.NewSalesRepo(db.DB)
			prober = postgres.NewProber(db.DB)
			a.log.Info("Using PostgreSQL sales data", "driver", cfg.Database.Driver)
		}
	} else {
		a.log.Warn("No database configured, serving fallback sales data")
	}

	// 2. Cache
	a.redis = redisclient.NewClient(cfg.Redis)
	cache := redisclient.NewModelCache(a.redis)

	// 3. Models and fallbacks
	a.models = model.NewStore(cfg.Models.Dir)

	// 4. LLM providers
	orch, probes := buildLLM(cfg)

	// 5. Forecast service
	fcfg := forecast.DefaultConfig()
	fcfg.DatabasePolicy = cfg.Retry.Database
	a.svc = forecast.NewService(forecast.Deps{
		Sales:      sales,
		Models:     a.models,
		Cache:      cache,
		Database:   fallback.NewDatabaseFallback(cfg.Fallback.Dir),
		Prediction: fallback.NewPredictionFallback(cfg.Fallback.Dir),
		Insights:   fallback.NewInsightFallback(cfg.Fallback.Dir),
		LLM:        orch,
		Errors:     errHandler,
	}, fcfg)

	// 6. Health
	a.grpcHealth = health.NewGRPCReporter()
	a.checker = health.NewChecker(
		health.WithTimeout(cfg.Health.Timeout),
		health.WithCooldown(cfg.Health.AlertCooldown),
		health.WithOverview(health.HostOverview),
		health.OnReport(a.grpcHealth.Update),
	)
	a.checker.Register(health.ComponentDatabase, health.TypeDatabase, health.DatabaseCheck(prober))
	a.checker.Register(health.ComponentCache, health.TypeCache, health.CacheCheck(cache))
	a.checker.Register(health.ComponentModels, health.TypeMLModel, health.ModelsCheck(a.models))
	a.checker.Register(health.ComponentAPIs, health.TypeAPIExternal,
		health.APIsCheck(withRetry(probes, cfg.Retry.Network), orch.Monitor()))
	a.checker.Register(health.ComponentSystem, health.TypeSystem,
		health.SystemCheck(health.HostResources(cfg.Health.DiskPath, cpuSampleWindow)))

	// 7. Transport
	a.httpServer = api.New(api.Config{
		Port:            cfg.Server.Port,
		CORSOrigins:     cfg.Server.CORSOrigins,
		InsightsPerHour: cfg.RateLimit.InsightsPerHour,
	}, a.svc, a.checker)

	if cfg.Server.GRPCPort != 0 {
		a.grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(a.grpcServer, a.grpcHealth.Server())
	}
	return a, nil
}

// buildLLM registers every provider that has an API key.
func buildLLM(cfg *config.AppConfig) (*llm.Orchestrator, []health.APIProbe) {
	var (
		providers []*llm.Provider
		probes    []health.APIProbe
	)
	ai := cfg.Retry.AIAPI

	if oc := cfg.LLM.OpenAI; oc.APIKey != "" {
		if oc.Retries == 0 {
			oc.Retries, oc.Backoff = ai.MaxAttempts, ai.BaseDelay
		}
		providers = append(providers, llm.NewProvider("openai", llm.NewOpenAIHandler(oc), oc.Weight))
		probes = append(probes, health.APIProbe{Name: "OpenAI API", Probe: llm.NewOpenAIProbe(oc)})
	}
	if gc := cfg.LLM.Gemini; gc.APIKey != "" {
		if gc.Retries == 0 {
			gc.Retries, gc.Backoff = ai.MaxAttempts, ai.BaseDelay
		}
		providers = append(providers, llm.NewProvider("gemini", llm.NewGeminiHandler(gc), gc.Weight))
		probes = append(probes, health.APIProbe{Name: "Gemini API", Probe: llm.NewGeminiProbe(gc)})
	}
	if len(providers) == 0 {
		slog.Warn("No LLM provider configured, insights will be generated offline")
	}
	return llm.NewOrchestrator(providers...).WithDebug(cfg.Server.Debug), probes
}

// withRetry retries each reachability probe on transient failures. Auth and
// configuration errors fail on the first attempt.
func withRetry(probes []health.APIProbe, policy retry.Policy) []health.APIProbe {
	out := make([]health.APIProbe, len(probes))
	for i, p := range probes {
		probe := p.Probe
		out[i] = health.APIProbe{
			Name: p.Name,
			Probe: func(ctx context.Context) error {
				_, err := retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
					return struct{}{}, probe(ctx)
				}, retry.WithName("probe "+p.Name), retry.RetryIf(retry.IsRetryable))
				return err
			},
		}
	}
	return out
}

// Service returns the forecast service.
func (a *App) Service() *forecast.Service { return a.svc }

// Checker returns the health checker.
func (a *App) Checker() *health.Checker { return a.checker }

// Start launches the servers and background loops. It returns once they are
// running; errors from the listeners are logged.
func (a *App) Start(ctx context.Context) error {
	var lis net.Listener
	if a.grpcServer != nil {
		var err error
		lis, err = net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen for grpc: %w", err)
		}
	}

	go func() {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	if lis != nil {
		go func() {
			a.log.Info("gRPC health server listening", "addr", lis.Addr().String())
			if err := a.grpcServer.Serve(lis); err != nil {
				a.log.Error("gRPC server failed", "error", err)
			}
		}()
	}

	go a.checker.Run(ctx, a.cfg.Health.Interval)

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	go a.svc.WarmUp(ctx)
	return nil
}

// Stop shuts everything down.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping demandcast...")

	a.grpcHealth.Shutdown()
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}

	err := a.httpServer.Shutdown(ctx)

	if err := a.redis.Close(); err != nil {
		a.log.Warn("Failed to close Redis", "error", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
	return err
}

// unreachableDB reports the startup connection failure on every probe.
type unreachableDB struct{ err error }

func (u unreachableDB) Ping(context.Context) error {
	return fmt.Errorf("database unavailable: %w", u.err)
}
func (u unreachableDB) ActiveConnections(context.Context) (int, error) { return 0, u.err }
func (u unreachableDB) Version(context.Context) (string, error)        { return "", u.err }
