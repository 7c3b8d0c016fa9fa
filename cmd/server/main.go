package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"billscope/internal/config"
	"billscope/internal/handler"
	"billscope/internal/llm"
	"billscope/internal/llm/claude"
	"billscope/internal/llm/gemini"
	"billscope/internal/llm/openai"
	"billscope/internal/logger"
	"billscope/internal/narrative"
	"billscope/internal/ocr/vision"
	"billscope/internal/parser"
	"billscope/internal/port"
	"billscope/internal/pricing"
	"billscope/internal/repository/postgres"
	"billscope/internal/router"
	"billscope/internal/service"
	s3storage "billscope/internal/storage/s3"
)

// @title                      BillScope API
// @version                    1.0
// @description                Medical bill analysis: itemization, benchmark pricing and negotiation guidance.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize repositories
	billRepo := postgres.NewBillRepo(db)
	imageRepo := postgres.NewImageRepo(db)
	refRepo := postgres.NewReferenceRepo(db)
	intelRepo := postgres.NewIntelligenceRepo(db)

	engine, benchmarks, err := loadPricing(ctx, refRepo)
	if err != nil {
		return err
	}

	// Initialize storage
	s3Client, err := s3storage.NewS3Client(ctx, &cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	// Initialize OCR
	extractor, err := vision.NewExtractor(ctx, vision.Config{
		APIKey:   cfg.OCR.APIKey,
		Endpoint: cfg.OCR.Endpoint,
		Timeout:  cfg.Pipeline.ExtractionTimeout,
	}, zl.Named("ocr"))
	if err != nil {
		return fmt.Errorf("failed to initialize text extractor: %w", err)
	}

	// Initialize LLM providers
	registerProviders()
	completer, err := llm.NewChain(&cfg.LLM, llm.WithLogger(zl.Named("llm")))
	if err != nil {
		return fmt.Errorf("failed to initialize LLM: %w", err)
	}
	billParser := parser.New(completer,
		parser.WithRetries(cfg.Pipeline.ParseRetries),
		parser.WithBackoff(cfg.Pipeline.ParseBackoffBase),
		parser.WithBenchmarks(benchmarks),
		parser.WithLogger(zl.Named("parser")),
	)
	narrator := narrative.NewFallbackNarrator(
		narrative.NewModelNarrator(completer, cfg.Pipeline.NarrativeTimeout),
		narrative.NewTemplateNarrator(),
		zl.Named("narrative"),
	)

	var intel *service.IntelligenceRecorder
	if cfg.Privacy.IntelligenceEnabled {
		intel = service.NewIntelligenceRecorder(intelRepo, cfg.Privacy.HashKey, zl.Named("intelligence"))
	}

	// Initialize services
	authSvc := service.NewAuthService(cfg.JWT)
	analysisSvc := service.NewAnalysisService(service.AnalysisDeps{
		Bills:        billRepo,
		Images:       imageRepo,
		Storage:      s3Client,
		Extractor:    extractor,
		Parser:       billParser,
		Engine:       engine,
		Narrator:     narrator,
		Intelligence: intel,
		Bucket:       cfg.S3.Bucket,
		Pipeline:     cfg.Pipeline,
		Logger:       zl.Named("analysis"),
	})

	var sweeperDone <-chan struct{}
	if cfg.Lifecycle.Enabled {
		sweeper := service.NewLifecycleSweeper(imageRepo, billRepo, s3Client, cfg.Lifecycle, zl.Named("lifecycle"))
		sweeperDone = sweeper.Run(ctx)
	}

	// Initialize handlers
	analysisH := handler.NewAnalysisHandler(analysisSvc, cfg.Pipeline.MaxFileSizeMB<<20, zl)
	healthH := handler.NewHealthHandler(map[string]handler.Pinger{
		"database": func(ctx context.Context) error { return postgres.Ping(ctx, db) },
		"storage":  func(ctx context.Context) error { return s3Client.Ping(ctx, cfg.S3.Bucket) },
	})

	r := router.Setup(router.Deps{
		AuthSvc:   authSvc,
		AnalysisH: analysisH,
		HealthH:   healthH,
		CORS:      cfg.CORS,
		Metrics:   cfg.Metrics,
		Logger:    zl,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}
	stop()

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	// The database stays open until the sweeper has finished its last sweep.
	if sweeperDone != nil {
		<-sweeperDone
		zl.Info("lifecycle sweeper stopped")
	}

	if serveErr != nil {
		return fmt.Errorf("server failed: %w", serveErr)
	}
	if shutdownErr != nil {
		return fmt.Errorf("server shutdown: %w", shutdownErr)
	}
	return nil
}

func registerProviders() {
	llm.RegisterProvider("claude", func(c *config.LLMProviderConfig) (port.Completer, error) {
		return claude.NewCompleter(c), nil
	})
	llm.RegisterProvider("gemini", func(c *config.LLMProviderConfig) (port.Completer, error) {
		return gemini.NewCompleter(c), nil
	})
	llm.RegisterProvider("openai", func(c *config.LLMProviderConfig) (port.Completer, error) {
		return openai.NewCompleter(c), nil
	})
}

// loadPricing builds the pricing engine from the reference tables.
func loadPricing(ctx context.Context, refs port.ReferenceDataRepository) (*pricing.Engine, *pricing.BenchmarkTable, error) {
	rates, err := refs.LoadBenchmarkRates(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load benchmark rates: %w", err)
	}
	ranges, err := refs.LoadCategoryRanges(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load category ranges: %w", err)
	}
	regions, err := refs.LoadRegionalFactors(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load regional factors: %w", err)
	}
	benchmarks := pricing.NewBenchmarkTable(rates, ranges)
	return pricing.NewEngine(benchmarks, pricing.NewRegionTable(regions)), benchmarks, nil
}
