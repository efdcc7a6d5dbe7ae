package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/restaurant-platform/courierbroker/api/events"
	apiselection "github.com/restaurant-platform/courierbroker/api/selection"
	apiwebhooks "github.com/restaurant-platform/courierbroker/api/webhooks"
	"github.com/restaurant-platform/courierbroker/config"
	"github.com/restaurant-platform/courierbroker/core/availability"
	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/core/performance"
	"github.com/restaurant-platform/courierbroker/core/selection"
	"github.com/restaurant-platform/courierbroker/core/selection/audit"
	"github.com/restaurant-platform/courierbroker/core/webhook"
	"github.com/restaurant-platform/courierbroker/infra/geo"
	"github.com/restaurant-platform/courierbroker/infra/logger"
	"github.com/restaurant-platform/courierbroker/infra/metrics"
	"github.com/restaurant-platform/courierbroker/infra/mqtt"
	"github.com/restaurant-platform/courierbroker/infra/quote"
	"github.com/restaurant-platform/courierbroker/infra/store"
	"github.com/restaurant-platform/courierbroker/infra/webhookhttp"
	"github.com/restaurant-platform/courierbroker/internal/eventbus"
)

// Service wires the selection engine and the webhook subsystem together.
type Service struct {
	Selector   *selection.Selector
	Registry   *webhook.Registry
	Dispatcher *webhook.Dispatcher

	scheduler *webhook.RetryScheduler
	tracker   *availability.MemoryTracker
	perf      *performance.Tracker
	bus       *eventbus.Bus
	auditDB   audit.Store
	sqlite    *store.SQLiteStore
	bridge    *mqtt.Bridge
	publisher mqtt.Publisher
	cfg       *config.Config
	log       logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	sink, err := metrics.NewSinks(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	bus := eventbus.New()
	tracker := availability.NewMemoryTracker(cfg.Availability.ReservationTTL())
	perf := performance.NewTracker(0)

	directory := store.NewMemoryDirectory()
	for _, b := range cfg.Directory.Branches {
		directory.PutBranch(b)
	}
	for _, p := range cfg.Directory.Providers {
		directory.PutProvider(p)
		if drivers := cfg.Availability.Capacities[string(p.Type)]; drivers > 0 {
			tracker.SetCapacity(p.CompanyID, p.Type, p.BranchID, drivers, 30*time.Second)
		}
	}

	quoter, err := quote.NewScheduleQuoter(cfg.Quotes.ProviderSchedules(), cfg.Quotes.Currency)
	if err != nil {
		return nil, fmt.Errorf("quoter: %w", err)
	}

	auditStore, err := newAuditStore(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}

	engine, err := selection.NewScoringEngine(geo.NewHaversineEstimator(), quoter, tracker, perf, logger.New("scoring"))
	if err != nil {
		return nil, err
	}
	selector, err := selection.NewSelector(directory, engine, tracker, auditStore, bus, sink, logger.New("selector"))
	if err != nil {
		return nil, err
	}

	var (
		webhookStore  webhook.WebhookStore
		deliveryStore webhook.DeliveryStore
		sqliteStore   *store.SQLiteStore
	)
	if cfg.Webhook.Store == "sqlite" {
		sqliteStore, err = store.NewSQLiteStore(cfg.Webhook.Path)
		if err != nil {
			return nil, fmt.Errorf("webhook store: %w", err)
		}
		webhookStore = sqliteStore.Webhooks()
		deliveryStore = sqliteStore.Deliveries()
	} else {
		webhookStore = webhook.NewMemoryWebhookStore()
		deliveryStore = webhook.NewMemoryDeliveryStore()
	}

	registry, err := webhook.NewRegistry(webhookStore, logger.New("webhook-registry"))
	if err != nil {
		return nil, err
	}
	sender := webhookhttp.NewSender(cfg.Webhook.SenderTimeout())
	dispatcher, err := webhook.NewDispatcher(webhookStore, deliveryStore, sender, cfg.Webhook.FailureThreshold, logger.New("webhook-dispatcher"), sink)
	if err != nil {
		return nil, err
	}
	scheduler, err := webhook.NewRetryScheduler(dispatcher.Redeliver, cfg.Webhook.SchedulerTick(), logger.New("retry-scheduler"), sink)
	if err != nil {
		return nil, err
	}
	dispatcher.SetScheduler(scheduler)

	svc := &Service{
		Selector:   selector,
		Registry:   registry,
		Dispatcher: dispatcher,
		scheduler:  scheduler,
		tracker:    tracker,
		perf:       perf,
		bus:        bus,
		auditDB:    auditStore,
		sqlite:     sqliteStore,
		cfg:        cfg,
		log:        logg,
	}

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPahoPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		bridge, err := mqtt.NewBridge(pub, cfg.MQTT.TopicPrefix)
		if err != nil {
			return nil, err
		}
		svc.publisher = pub
		svc.bridge = bridge
	}
	return svc, nil
}

func newAuditStore(cfg config.AuditConfig) (audit.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return audit.NewSQLiteStore(cfg.Path)
	default:
		if cfg.MaxSizeMB > 0 {
			return audit.NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		}
		return audit.NewJSONLStore(cfg.Path)
	}
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.scheduler.Run(ctx)
	go s.Dispatcher.Run(ctx, s.bus.Subscribe())
	if s.bridge != nil {
		go s.bridge.Run(ctx, s.bus.Subscribe())
	}
	go s.releaseOnCompletion(ctx, s.bus.Subscribe())
	if ttl := s.cfg.Availability.ReservationTTL(); ttl > 0 {
		go s.sweepReservations(ctx, ttl)
	}

	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, ":"+s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{Addr: s.cfg.API.Addr, Handler: s.routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()
	s.log.Infof("api listening on %s", s.cfg.API.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Service) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/selection/select", apiselection.NewSelectHandler(s.Selector))
	mux.Handle("/api/selection/capacity/reserve", apiselection.NewCapacityHandler(s.Selector, false))
	mux.Handle("/api/selection/capacity/release", apiselection.NewCapacityHandler(s.Selector, true))
	mux.Handle("/api/selection/audit", apiselection.NewAuditHandler(s.auditDB, s.cfg.API.AuditToken))
	mux.Handle("/api/webhooks", apiwebhooks.NewHandler(s.Registry, s.Dispatcher))
	mux.Handle("/api/webhooks/", apiwebhooks.NewHandler(s.Registry, s.Dispatcher))
	mux.Handle("/api/events", events.NewIngestHandler(s.bus))
	return mux
}

// completionPayload is the slice of the order event payload the broker
// needs to free reserved capacity.
type completionPayload struct {
	CompanyID    string             `json:"company_id"`
	BranchID     string             `json:"branch_id"`
	OrderID      string             `json:"order_id"`
	ProviderType model.ProviderType `json:"provider_type"`
}

// releaseOnCompletion frees the capacity reserved at selection time when the
// order reaches a terminal state.
func (s *Service) releaseOnCompletion(ctx context.Context, sub <-chan model.DomainEvent) {
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if ev.Type != model.EventOrderCompleted && ev.Type != model.EventOrderCancelled {
				continue
			}
			raw, err := ev.MarshalPayload()
			if err != nil {
				continue
			}
			var p completionPayload
			if err := json.Unmarshal(raw, &p); err != nil || p.OrderID == "" || p.ProviderType == "" {
				continue
			}
			if err := s.Selector.ReleaseProviderCapacity(ctx, p.CompanyID, p.ProviderType, p.OrderID, p.BranchID); err != nil {
				s.log.Warnf("release capacity for order %s: %v", p.OrderID, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// sweepReservations periodically releases reservations past their TTL so
// capacity is not pinned by orders that never complete.
func (s *Service) sweepReservations(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.tracker.Sweep(); n > 0 {
				s.log.Infof("released %d expired reservations", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	var firstErr error
	if s.auditDB != nil {
		if err := s.auditDB.Close(); err != nil {
			firstErr = err
		}
	}
	if s.sqlite != nil {
		if err := s.sqlite.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
