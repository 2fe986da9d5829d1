package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appfiscal "github.com/emissor/backend/internal/application/fiscal"
	"github.com/emissor/backend/internal/domain/fiscal"
	"github.com/emissor/backend/internal/domain/fiscal/assembly"
	"github.com/emissor/backend/internal/domain/shared"
	"github.com/emissor/backend/internal/infrastructure/auth"
	"github.com/emissor/backend/internal/infrastructure/authority"
	"github.com/emissor/backend/internal/infrastructure/cache"
	"github.com/emissor/backend/internal/infrastructure/config"
	"github.com/emissor/backend/internal/infrastructure/event"
	"github.com/emissor/backend/internal/infrastructure/logger"
	"github.com/emissor/backend/internal/infrastructure/persistence"
	"github.com/emissor/backend/internal/infrastructure/telemetry"
	"github.com/emissor/backend/internal/interfaces/http/dto"
	"github.com/emissor/backend/internal/interfaces/http/handler"
	"github.com/emissor/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("loading configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("creating logger: " + err.Error())
	}
	defer func() { _ = logger.Sync(log) }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Setup(ctx, &cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		return err
	}

	// The decision store falls back to memory when Redis is absent, e.g.
	// in local development
	var decisions shared.IdempotencyStore
	if client, err := cache.NewRedisClient(&cfg.Redis); err != nil {
		log.Warn("redis unavailable, using in-memory decision store", zap.Error(err))
		decisions = cache.NewInMemoryIdempotencyStore()
	} else {
		decisions = cache.NewRedisIdempotencyStore(client)
	}
	defer func() { _ = decisions.Close() }()

	bus := event.NewInProcessBus(log)
	if err := bus.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = bus.Stop(context.Background()) }()

	if cfg.Telemetry.Enabled {
		metricsHandler, err := telemetry.NewEmissionMetricsHandler()
		if err != nil {
			return err
		}
		bus.Subscribe(metricsHandler)
	}

	signer := assembly.NullSigner{}
	assemblers := assembly.NewRegistry()
	assemblers.Register(assembly.NewNFeAssembler(signer))
	assemblers.Register(assembly.NewNFCeAssembler(signer))
	assemblers.Register(assembly.NewCTeAssembler(signer))
	assemblers.Register(assembly.NewNFSeAssembler(signer))

	gateways, err := buildGateways(cfg, decisions, log)
	if err != nil {
		return err
	}

	docRepo := persistence.NewGormFiscalDocumentRepository(db)
	eventRepo := persistence.NewGormLifecycleEventRepository(db)

	service := appfiscal.NewDocumentService(
		docRepo, eventRepo, assemblers, gateways, bus, log,
		cfg.Authority.Timeout, cfg.Authority.StuckAge,
	)

	if cfg.Authority.RecoveryOnStart {
		// Documents stranded in a transient status by a previous crash are
		// reconciled before traffic is served
		if _, err := service.RecoverStuck(ctx); err != nil {
			log.Error("startup recovery sweep failed", zap.Error(err))
		}
	}

	if err := dto.RegisterValidators(); err != nil {
		return err
	}

	jwtService := auth.NewJWTService(&cfg.JWT)
	engine := router.New(router.Dependencies{
		Config:     cfg,
		Logger:     log,
		JWTService: jwtService,
		Documents:  handler.NewFiscalDocumentHandler(service, log),
		Health:     handler.NewHealthHandler(db),
	})

	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("env", cfg.App.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildGateways(cfg *config.Config, decisions shared.IdempotencyStore, log *zap.Logger) (fiscal.GatewayRegistry, error) {
	opts := authority.SimulatorOptions{
		DecisionTTL:     cfg.Authority.DecisionTTL,
		RejectionRate:   cfg.Authority.RejectionRate,
		UnavailableRate: cfg.Authority.UnavailableRate,
	}

	registry := authority.NewRegistry()
	for _, docType := range []fiscal.DocumentType{fiscal.DocumentTypeNFE, fiscal.DocumentTypeNFCE, fiscal.DocumentTypeCTE} {
		gateway, err := authority.NewInstrumentedGateway(authority.NewSimulator(docType, decisions, opts, log))
		if err != nil {
			return nil, err
		}
		registry.Register(gateway)
	}
	for _, cityCode := range cfg.Authority.MunicipalCities {
		gateway, err := authority.NewInstrumentedGateway(authority.NewMunicipalGateway(cityCode, decisions, opts, log))
		if err != nil {
			return nil, err
		}
		registry.RegisterMunicipal(cityCode, gateway)
	}
	return registry, nil
}
