// Package main is the entry point of ReelGuard service.
// It initializes the Kratos application with the HTTP server and the
// background reliability jobs.
package main

import (
	"flag"
	"os"

	"ReelGuard/internal/conf"
	zapLogger "ReelGuard/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "ReelGuard"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

// application bundles the Kratos app with the background job dependencies
// so a single injector can hand both to main.
type application struct {
	app  *kratos.App
	jobs *reliabilityJobs
}

func newApplication(logger log.Logger, hs *http.Server, jobs *reliabilityJobs) *application {
	return &application{
		app: kratos.New(
			kratos.ID(id),
			kratos.Name(Name),
			kratos.Version(Version),
			kratos.Metadata(map[string]string{}),
			kratos.Logger(logger),
			kratos.Server(
				hs,
			),
		),
		jobs: jobs,
	}
}

func main() {
	flag.Parse()

	// Load configuration using Viper with environment variable and CLI flag support
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize Zap logger from configuration
	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	// Create Kratos adapter for Zap logger
	logger := zapLogger.NewKratosAdapter(zapLog)

	// Add context fields to logger
	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)

	// Log startup configuration
	log.NewHelper(logger).Infow(
		"msg", "ReelGuard service starting",
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
		"log.env", bc.Log.Env,
		"http.addr", bc.Server.Http.Addr,
	)

	app, cleanup, err := wireApp(bc, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// Start the periodic health check and metrics reset jobs
	cronJobs := StartReliabilityCron(app.jobs, bc.Reliability.Health, logger)
	if cronJobs != nil {
		defer cronJobs.Stop()
	}

	// start and wait for stop signal
	if err := app.app.Run(); err != nil {
		panic(err)
	}
}
