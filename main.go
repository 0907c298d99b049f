// Radix Release Api Server.
// Drives a containerized service from a source change to a running revision, and keeps its replica count elastic.
// Schemes: http, https
// BasePath: /api/v1
// Version: 1.0.0
//
// Consumes:
// - application/json
//
// Produces:
// - application/json
//
// SecurityDefinitions:
//
//	bearer:
//	  type: apiKey
//	  name: Authorization
//	  in: header
//
// swagger:meta
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/equinor/radix-release-api/api/artifacts"
	"github.com/equinor/radix-release-api/api/builder"
	"github.com/equinor/radix-release-api/api/deployer"
	"github.com/equinor/radix-release-api/api/metrics/prometheus"
	"github.com/equinor/radix-release-api/api/pipelines"
	"github.com/equinor/radix-release-api/api/pipelines/repository"
	"github.com/equinor/radix-release-api/api/router"
	"github.com/equinor/radix-release-api/api/scaling"
	"github.com/equinor/radix-release-api/api/utils"
	"github.com/equinor/radix-release-api/api/utils/token"
	"github.com/equinor/radix-release-api/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	// Force loading of needed authentication library
	_ "k8s.io/client-go/plugin/pkg/client/auth"
)

const shutdownTimeout = 30 * time.Second

func main() {
	c := config.MustParse()
	initLogger(c)

	if err := run(c); err != nil {
		log.Fatal().Err(err).Msg("Radix release api stopped")
	}
	log.Info().Msg("Radix release api stopped")
}

func run(c config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	services, err := config.LoadServices(c.ServicesFile)
	if err != nil {
		return err
	}
	kubeClient, err := utils.GetKubernetesClient(c.KubeConfig)
	if err != nil {
		return err
	}
	validator, err := getValidator(c.Oidc)
	if err != nil {
		return err
	}
	store, err := getArtifactStore(ctx, c)
	if err != nil {
		return err
	}
	runRepository, err := getRunRepository(ctx, c.DatabaseUrl)
	if err != nil {
		return err
	}
	prometheusClient, err := prometheus.NewPrometheusClient(c.PrometheusUrl)
	if err != nil {
		return err
	}

	controlPlane := deployer.NewKubeControlPlane(kubeClient)
	imageBuilder := builder.NewRegistryBuilder(services, builder.NewHTTPSourceFetcher(nil), builder.WithInsecureRegistry(c.RegistryInsecure))
	serviceDeployer := deployer.New(services, controlPlane,
		deployer.WithRolloutTimeout(c.RolloutTimeout),
		deployer.WithRolloutPollInterval(c.RolloutPollInterval))

	dispatcher := pipelines.NewGoroutineDispatcher()
	executors := pipelines.NewExecutors(services, store, imageBuilder, serviceDeployer, clock.RealClock{})
	engine := pipelines.NewEngine(services, runRepository, executors,
		pipelines.WithDispatcher(dispatcher),
		pipelines.WithApprovalTimeout(c.ApprovalTimeout))
	capacityController := scaling.NewController(services.Services, prometheusClient, controlPlane, clock.RealClock{})

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.Port),
		Handler:           router.NewAPIHandler(validator, c.RequireAuth, pipelines.NewPipelineController(engine, store), scaling.NewScalingController(capacityController)),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.MetricsPort),
		Handler:           router.NewMetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(gctx, apiServer, "api") })
	g.Go(func() error { return serve(gctx, metricsServer, "metrics") })
	g.Go(func() error { return capacityController.Run(gctx) })
	if c.ApprovalTimeout > 0 {
		g.Go(func() error {
			expireApprovals(gctx, engine, c.GateExpiryInterval)
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("Waiting for running stages to complete")
	dispatcher.Wait()
	return err
}

func serve(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("%s server is serving on %s", name, server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown %s server: %w", name, err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server: %w", name, err)
	}
}

func expireApprovals(ctx context.Context, engine *pipelines.Engine, interval time.Duration) {
	logger := log.Ctx(ctx).With().Str("pkg", "gate-expiry").Logger()
	wait.UntilWithContext(ctx, func(ctx context.Context) {
		expired, err := engine.ExpireApprovals(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to expire approvals")
		}
		if expired > 0 {
			logger.Info().Msgf("Expired %d approvals", expired)
		}
	}, interval)
}

func getValidator(oidc config.Oidc) (token.ValidatorInterface, error) {
	if oidc.Issuer == "" {
		log.Warn().Msg("OIDC issuer not configured, all requests are anonymous")
		return nil, nil
	}
	issuer, err := url.Parse(oidc.Issuer)
	if err != nil {
		return nil, fmt.Errorf("parse OIDC issuer: %w", err)
	}
	validator, err := token.NewValidator(*issuer, oidc.Audience)
	if err != nil {
		return nil, fmt.Errorf("create token validator: %w", err)
	}
	return token.NewChainedValidator(validator), nil
}

func getArtifactStore(ctx context.Context, c config.Config) (artifacts.Store, error) {
	switch c.ArtifactStore {
	case "memory":
		log.Warn().Msg("Artifacts are kept in memory and lost on restart")
		return artifacts.NewMemoryStore(), nil
	case "minio":
		store, err := artifacts.NewMinioStore(artifacts.MinioConfig{
			Endpoint:  c.Minio.Endpoint,
			AccessKey: c.Minio.AccessKey,
			SecretKey: c.Minio.SecretKey,
			UseSSL:    c.Minio.UseSSL,
			Region:    c.Minio.Region,
			Bucket:    c.Minio.Bucket,
		})
		if err != nil {
			return nil, err
		}
		if err = store.EnsureBucket(ctx, c.Minio.Region); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported artifact store %q", c.ArtifactStore)
	}
}

func getRunRepository(ctx context.Context, databaseUrl string) (repository.RunRepository, error) {
	if databaseUrl == "" {
		log.Warn().Msg("DATABASE_URL not set, pipeline runs are kept in memory")
		return repository.NewMemoryRepository(), nil
	}
	db, err := repository.OpenPostgres(ctx, databaseUrl)
	if err != nil {
		return nil, err
	}
	return repository.NewPostgresRepository(db), nil
}

func initLogger(c config.Config) {
	logLevel, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)
	zerolog.DurationFieldUnit = time.Millisecond
	if c.LogPrettyPrint {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	zerolog.DefaultContextLogger = &log.Logger
	log.Info().Msgf("Log level: %s", logLevel)
}
