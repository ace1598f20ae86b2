// Package app wires the controller together from configuration and runs it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kurnia-dev/smartenergy/api/devices"
	"github.com/kurnia-dev/smartenergy/api/live"
	"github.com/kurnia-dev/smartenergy/config"
	"github.com/kurnia-dev/smartenergy/core/budget"
	"github.com/kurnia-dev/smartenergy/core/control"
	"github.com/kurnia-dev/smartenergy/core/discovery"
	"github.com/kurnia-dev/smartenergy/core/ingest"
	coremetrics "github.com/kurnia-dev/smartenergy/core/metrics"
	"github.com/kurnia-dev/smartenergy/core/schedule"
	"github.com/kurnia-dev/smartenergy/infra/logger"
	"github.com/kurnia-dev/smartenergy/infra/metrics"
	"github.com/kurnia-dev/smartenergy/infra/mqtt"
	"github.com/kurnia-dev/smartenergy/infra/store"
	"github.com/kurnia-dev/smartenergy/internal/eventbus"
)

// Service owns every long-running component of the controller.
type Service struct {
	store      *store.GormStore
	conn       *mqtt.PahoConn
	bus        *eventbus.Bus
	ingestor   *ingest.Ingestor
	reconciler *schedule.Reconciler
	refresher  *discovery.Refresher
	hub        *live.Hub
	apiAddr    string
	apiMux     *http.ServeMux
	log        logger.Logger

	promEnabled bool
	promPort    string
}

// New builds the full controller from the configuration. Nothing starts
// running until Run is called.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")

	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	conn, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			conn.Close()
			_ = st.Close()
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.Sink
	switch len(sinks) {
	case 0:
		sink = coremetrics.NopSink{}
	case 1:
		sink = sinks[0]
	default:
		sink = coremetrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New()
	disp := control.NewDispatcher(st, conn, sink, logger.New("dispatcher"))
	enforcer := budget.NewEnforcer(st, disp, sink, logger.New("budget"))
	ingestor := ingest.NewIngestor(st, enforcer, bus, sink, logger.New("ingest"))

	reconcileEvery := time.Duration(cfg.Control.ReconcileIntervalSeconds) * time.Second
	refreshEvery := time.Duration(cfg.Control.RefreshIntervalSeconds) * time.Second

	reconciler := schedule.NewReconciler(st, disp, reconcileEvery, logger.New("schedule"))

	handler := func(topic string, payload []byte) {
		ingestor.Handle(context.Background(), topic, payload)
	}
	refresher := discovery.NewRefresher(st, conn, handler, refreshEvery, logger.New("discovery"))

	hub := live.NewHub(bus, logger.New("live"))

	mux := http.NewServeMux()
	devices.NewHandler(st, disp, logger.New("api")).Register(mux)
	mux.Handle("GET /api/live", hub)

	return &Service{
		store:       st,
		conn:        conn,
		bus:         bus,
		ingestor:    ingestor,
		reconciler:  reconciler,
		refresher:   refresher,
		hub:         hub,
		apiAddr:     cfg.API.Addr,
		apiMux:      mux,
		log:         log,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}, nil
}

// Run starts every loop and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.refresher.Run(ctx)
	go s.reconciler.Run(ctx)
	go s.hub.Run(ctx)
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              s.apiAddr,
		Handler:           s.apiMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Infof("api listening on %s", s.apiAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	}
}

// Close releases the broker connection, the event bus and the database pool.
func (s *Service) Close() error {
	s.conn.Close()
	s.bus.Close()
	return s.store.Close()
}
