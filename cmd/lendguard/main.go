package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lendguard/internal/cfg"
	"lendguard/internal/decision"
	"lendguard/internal/explain"
	"lendguard/internal/fairness"
	"lendguard/internal/features"
	"lendguard/internal/metrics"
	"lendguard/internal/ml"
	"lendguard/internal/notify"
	"lendguard/internal/scoring"
	"lendguard/internal/server"
	"lendguard/internal/storage"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Local .env overrides are optional.
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	model, err := ml.LoadLogisticModel(c.ModelPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", c.ModelPath).Msg("model load failed")
	}
	metadata, err := ml.LoadModelMetadata(c.ModelPath)
	if err != nil {
		log.Warn().Err(err).Msg("model metadata unavailable, continuing without it")
	}

	adapter, err := ml.NewAdapter(model, c.FeatureOrder, metadata, metrics.NewAdapterMetrics(m))
	if err != nil {
		log.Fatal().Err(err).Msg("classifier adapter setup failed")
	}

	builder, err := features.NewBuilder(c.FeatureOrder, c.Encodings)
	if err != nil {
		log.Fatal().Err(err).Msg("feature builder setup failed")
	}

	engine, err := decision.NewEngine(decision.Config{
		HighThreshold: c.HighThreshold,
		LowThreshold:  c.LowThreshold,
		ThreeTier:     c.UseThreeTier,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid decision thresholds")
	}

	explainer := initializeExplainer(c, builder)

	svc, err := scoring.New(builder, adapter, engine, explainer)
	if err != nil {
		log.Fatal().Err(err).Msg("scoring service setup failed")
	}

	auditor := fairness.NewEngine(fairness.Config{
		ExpectedGroups:     c.ProtectedGroups,
		CalibrationBuckets: c.CalibrationBuckets,
	})

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	notifier := notify.New(c.WebhookURL, c.WebhookTimeout)
	if notifier != nil {
		if err := notifier.Ping(); err != nil {
			log.Warn().Err(err).Msg("webhook endpoint check failed")
		}
	}

	startMetricsServer(ctx, c)

	srv, err := server.New(server.Config{
		Port:     c.ListenPort,
		Scoring:  svc,
		Auditor:  auditor,
		Store:    store,
		Notifier: notifier,
		Metrics:  m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("server setup failed")
	}
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("server start failed")
	}

	log.Info().
		Int("port", c.ListenPort).
		Float64("highThreshold", c.HighThreshold).
		Float64("lowThreshold", c.LowThreshold).
		Bool("threeTier", c.UseThreeTier).
		Msg("loan scoring service started")

	waitForShutdown(cancel)

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func setupLogging(levelStr string) {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// initializeExplainer loads the background dataset when configured.
// Without one, explanations are simply not served.
func initializeExplainer(c cfg.Settings, builder *features.Builder) *explain.Engine {
	if c.BackgroundPath == "" {
		log.Warn().Msg("no background dataset configured, explanations disabled")
		return nil
	}

	background, err := explain.LoadBackground(c.BackgroundPath, len(builder.Order()))
	if err != nil {
		log.Warn().Err(err).Str("path", c.BackgroundPath).Msg("background load failed, explanations disabled")
		return nil
	}

	explainer, err := explain.NewEngine(explain.Config{
		FeatureNames: builder.Order(),
		Background:   background,
	})
	if err != nil {
		log.Warn().Err(err).Msg("explanation engine setup failed, explanations disabled")
		return nil
	}
	return explainer
}

// initializeStorage opens the decision ledger if DATA_PATH is configured.
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// startMetricsServer starts the Prometheus metrics HTTP server.
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		metricsServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := metricsServer.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func waitForShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	cancel()
}
