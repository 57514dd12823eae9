package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/adapters/cache"
	"github.com/lcalzada-xor/nethealth/internal/adapters/reporting"
	"github.com/lcalzada-xor/nethealth/internal/adapters/source/simulated"
	"github.com/lcalzada-xor/nethealth/internal/adapters/source/system"
	"github.com/lcalzada-xor/nethealth/internal/adapters/storage"
	"github.com/lcalzada-xor/nethealth/internal/adapters/web/middleware"
	webserver "github.com/lcalzada-xor/nethealth/internal/adapters/web/server"
	"github.com/lcalzada-xor/nethealth/internal/config"
	"github.com/lcalzada-xor/nethealth/internal/core/ports"
	grpcserver "github.com/lcalzada-xor/nethealth/internal/core/services/grpc"
	"github.com/lcalzada-xor/nethealth/internal/core/services/monitor"
	"github.com/lcalzada-xor/nethealth/internal/core/services/persistence"
	reportsvc "github.com/lcalzada-xor/nethealth/internal/core/services/reporting"
	"github.com/lcalzada-xor/nethealth/internal/telemetry"
	"google.golang.org/grpc"
)

const (
	// APIClientName labels requests authenticated with the API token.
	APIClientName = "api"

	persistenceBuffer = 256
)

// Application holds the wired components of one nethealth process.
type Application struct {
	Config *config.Config
	Logger *slog.Logger

	Source  ports.MeasurementSource
	Monitor *monitor.Monitor

	Storage            *storage.SQLiteAdapter
	PersistenceManager *persistence.PersistenceManager
	Cache              *cache.RedisCache

	WebServer      *webserver.Server
	HealthReporter *grpcserver.HealthReporter
	GrpcServer     *grpc.Server

	persistCancel context.CancelFunc
}

// New creates and wires all components. Nothing runs until Run.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg, Logger: slog.Default()}
	if err := app.bootstrap(); err != nil {
		if app.Monitor != nil {
			_ = app.Monitor.Stop()
		}
		_ = app.closeResources()
		return nil, err
	}
	return app, nil
}

func (app *Application) bootstrap() error {
	// 1. Telemetry
	telemetry.InitMetrics()

	// 2. Measurement pipeline
	app.Source = app.initSource()
	mon, err := monitor.New(app.Config.MonitorConfig(), app.Source, monitor.WithLogger(app.Logger))
	if err != nil {
		if cerr := app.Source.Close(); cerr != nil {
			log.Printf("Warning: closing source: %v", cerr)
		}
		app.Source = nil
		return err
	}
	app.Monitor = mon

	// 3. Storage & cache
	if err := app.initStorage(); err != nil {
		return err
	}
	if err := app.initCache(); err != nil {
		return err
	}

	// 4. Servers & integration
	return app.initServers()
}

func (app *Application) initSource() ports.MeasurementSource {
	cfg := app.Config
	if cfg.Source == config.SourceSimulated {
		simCfg := simulated.DefaultConfig()
		if cfg.Seed != 0 {
			simCfg.Seed = cfg.Seed
		}
		log.Println("Simulated source active: virtualizing network environment")
		return simulated.New(simCfg)
	}
	return system.New(system.Config{
		ProcRoot:     cfg.ProcRoot,
		SysRoot:      cfg.SysRoot,
		Target:       cfg.Target,
		ProbeCount:   cfg.ProbeCount,
		ProbeTimeout: cfg.ProbeTimeout,
		TCPPort:      cfg.TCPPort,
	})
}

func (app *Application) initStorage() error {
	if app.Config.DBPath == "" {
		log.Println("History persistence disabled (no database path)")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(app.Config.DBPath), 0o755); err != nil {
		return fmt.Errorf("failed to create DB directory: %w", err)
	}

	store, err := storage.NewSQLiteAdapter(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	app.Storage = store
	app.PersistenceManager = persistence.NewPersistenceManager(store, persistenceBuffer)
	app.Monitor.Bus().Attach("persistence", app.PersistenceManager)
	return nil
}

func (app *Application) initCache() error {
	if app.Config.RedisAddr == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := cache.NewRedisClient(ctx, app.Config.RedisAddr, app.Config.RedisPassword, app.Config.RedisDB, app.Config.RedisTTL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.Cache = c
	app.Monitor.Bus().Attach("redis", c)
	return nil
}

func (app *Application) initAuth() (middleware.TokenValidator, error) {
	switch {
	case app.Config.APITokenHash != "":
		return middleware.NewTokenAuthFromHash(APIClientName, app.Config.APITokenHash)
	case app.Config.APIToken != "":
		return middleware.NewTokenAuth(APIClientName, app.Config.APIToken)
	default:
		log.Println("Warning: API authentication disabled (no token configured)")
		return nil, nil
	}
}

func (app *Application) initServers() error {
	auth, err := app.initAuth()
	if err != nil {
		return err
	}

	opts := webserver.Options{
		Auth:           auth,
		Reports:        reportsvc.NewReportGenerator(app.Monitor, app.storagePort()),
		Exporter:       reporting.NewPDFExporter(),
		AllowedOrigins: app.Config.AllowedOrigins,
		StaleAfter:     3 * app.Monitor.Config().SamplingPeriod,
	}
	if app.Storage != nil {
		opts.Storage = app.Storage
		opts.Persistence = app.PersistenceManager
	}
	if app.Cache != nil {
		opts.Cache = app.Cache
	}

	app.WebServer = webserver.NewServer(app.Config.Addr, app.Monitor, opts)
	app.Monitor.Bus().Attach("websocket", app.WebServer.WSManager)

	if app.Config.GRPCAddr != "" {
		app.HealthReporter = grpcserver.NewHealthReporter()
		app.Monitor.Bus().Attach("grpc-health", app.HealthReporter)
		app.GrpcServer = grpcserver.NewGrpcServer(app.HealthReporter)
	}
	return nil
}

// storagePort avoids handing a typed nil to consumers that test for nil.
func (app *Application) storagePort() ports.Storage {
	if app.Storage == nil {
		return nil
	}
	return app.Storage
}

// Run starts the pipeline and the servers, and blocks until ctx is cancelled
// or a server fails. Resources are released before it returns.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("Starting nethealth components...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. Background writers
	if app.PersistenceManager != nil {
		persistCtx, cancel := context.WithCancel(context.Background())
		app.persistCancel = cancel
		app.PersistenceManager.Start(persistCtx)
	}

	// 2. Servers
	errChan := make(chan error, 2)

	go func() {
		if err := app.WebServer.Run(ctx); err != nil {
			errChan <- fmt.Errorf("web server error: %w", err)
		}
	}()

	if app.GrpcServer != nil {
		go func() {
			log.Printf("gRPC Server listening on %s", app.Config.GRPCAddr)
			lis, err := net.Listen("tcp", app.Config.GRPCAddr)
			if err != nil {
				errChan <- fmt.Errorf("grpc listen error: %w", err)
				return
			}

			go func() {
				<-ctx.Done()
				app.HealthReporter.Shutdown()
				app.GrpcServer.GracefulStop()
			}()

			if err := app.GrpcServer.Serve(lis); err != nil {
				errChan <- fmt.Errorf("grpc server error: %w", err)
			}
		}()
	}

	// 3. Pipeline
	if err := app.Monitor.Start(ctx); err != nil {
		return errors.Join(err, app.cleanup())
	}

	slog.Info("nethealth ready", "source", app.Config.Source, "addr", app.Config.Addr, "period", app.Monitor.Config().SamplingPeriod)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Termination signal received")
	case runErr = <-errChan:
		cancel()
	}

	return errors.Join(runErr, app.cleanup())
}

// cleanup stops the pipeline first so nothing is published while the
// persistence queue drains.
func (app *Application) cleanup() error {
	slog.Info("Cleaning up resources...")

	var errs []error
	if app.Monitor != nil {
		if err := app.Monitor.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if app.persistCancel != nil {
		app.persistCancel()
		<-app.PersistenceManager.Done()
		if dropped := app.PersistenceManager.Dropped(); dropped > 0 {
			slog.Warn("persistence queue overflowed", "dropped", dropped)
		}
	}

	errs = append(errs, app.closeResources())
	return errors.Join(errs...)
}

func (app *Application) closeResources() error {
	var errs []error
	if app.Monitor == nil && app.Source != nil {
		if err := app.Source.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if app.Storage != nil {
		if err := app.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}
	if app.Cache != nil {
		if err := app.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing cache: %w", err))
		}
	}
	return errors.Join(errs...)
}
