package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetwatch/internal/config"
	"fleetwatch/internal/engine"
	"fleetwatch/internal/handlers"
	"fleetwatch/internal/kafka"
	"fleetwatch/internal/logger"
	"fleetwatch/internal/middleware"
	"fleetwatch/internal/storage"
	"fleetwatch/internal/workers"
)

// Processor is the high-level coordinator: store, producer, lifecycle
// engine, retention workers, and the HTTP surface.
type Processor struct {
	cfg        *config.Config
	store      storage.Store
	producer   *kafka.Producer
	engine     *engine.Engine
	retention  *workers.Retention
	httpServer *http.Server
	started    time.Time
	wg         sync.WaitGroup
}

// New constructs a Processor with given config.
func New(cfg *config.Config) *Processor {
	return &Processor{cfg: cfg}
}

// Run starts background goroutines and blocks until context cancelled.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Msg("processor starting")
	p.started = time.Now().UTC()

	if err := p.initStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer p.store.Close()

	if err := p.initProducer(); err != nil {
		return fmt.Errorf("failed to initialize producer: %w", err)
	}
	defer p.producer.Close()

	p.engine = engine.New(p.store, p.producer, p.cfg)

	p.retention = workers.NewRetention(p.store, p.cfg)
	p.retention.Start()
	defer p.retention.Stop()

	p.initHTTPServer()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Info().Str("addr", p.cfg.HTTP.Addr).Msg("starting HTTP server")
		if err := p.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return p.shutdown()
}

func (p *Processor) initStore(ctx context.Context) error {
	log := logger.WithComponent("processor")
	store, err := storage.New(p.cfg.Storage)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return err
	}
	p.store = store
	log.Info().Str("driver", p.cfg.Storage.Driver).Msg("store initialized")
	return nil
}

func (p *Processor) initProducer() error {
	log := logger.WithComponent("processor")
	producer, err := kafka.NewProducer(
		p.cfg.Kafka.Brokers,
		p.cfg.Kafka.Topic,
		p.cfg.Kafka.Producer,
	)
	if err != nil {
		return err
	}
	p.producer = producer
	log.Info().
		Strs("brokers", p.cfg.Kafka.Brokers).
		Str("topic", p.cfg.Kafka.Topic).
		Msg("kafka producer initialized")
	return nil
}

func (p *Processor) initHTTPServer() {
	mux := http.NewServeMux()

	alertHandler := handlers.NewAlertHandler(p.engine, p.cfg.HTTP.MaxBodySize)
	alertHandler.Register(mux)

	mux.HandleFunc("GET /health", p.healthHandler)
	mux.HandleFunc("GET /stats", p.statsHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	p.httpServer = &http.Server{
		Addr: p.cfg.HTTP.Addr,
		Handler: middleware.Chain(
			mux,
			middleware.Recovery,
			middleware.Logging,
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// shutdown performs graceful shutdown: drain HTTP, stop workers, close
// producer and store.
func (p *Processor) shutdown() error {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	p.retention.Stop()

	log.Info().Msg("closing kafka producer")
	if err := p.producer.Close(); err != nil {
		log.Error().Err(err).Msg("producer close error")
	}

	p.wg.Wait()

	log.Info().Msg("processor stopped gracefully")
	return nil
}

// healthHandler handles health check requests
func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := p.producer.HealthCheck(ctx); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"alert-processor","timestamp":"%s"}`,
		time.Now().UTC().Format(time.RFC3339))
}

// statsHandler returns current statistics
func (p *Processor) statsHandler(w http.ResponseWriter, r *http.Request) {
	producerStats := p.producer.Stats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"producer": {
			"sent": %d,
			"failed": %d
		},
		"uptime_secs": %d
	}`,
		producerStats.Sent,
		producerStats.Failed,
		int(time.Since(p.started).Seconds()),
	)
}
