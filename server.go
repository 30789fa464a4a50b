package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	appinv "github.com/Zhima-Mochi/cafeshop/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/cafeshop/internal/application/order"
	apppay "github.com/Zhima-Mochi/cafeshop/internal/application/payment"
	dominv "github.com/Zhima-Mochi/cafeshop/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/cafeshop/internal/domain/order"
	dompay "github.com/Zhima-Mochi/cafeshop/internal/domain/payment"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/id"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/portone"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/relay"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"
	httppresentation "github.com/Zhima-Mochi/cafeshop/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/cafeshop/internal/presentation/worker"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// gateway is the union of the ports the order and payment use cases need.
type gateway interface {
	apporder.PaymentGateway
	apppay.Gateway
}

type server struct {
	deps      *deps
	http      *http.Server
	bus       *outbox.Bus
	relay     *relay.Relay
	scheduler *workerpresentation.SweepScheduler
	closers   []func() error
}

func newServer(ctx context.Context, rt *deps) (_ *server, err error) {
	cfg := rt.cfg
	s := &server{deps: rt}
	defer func() {
		if err != nil {
			_ = s.closeAll()
		}
	}()

	locks, closeLocks, err := newLockCoordinator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, closeLocks)
	strategy, err := appinv.NewStrategy(cfg.ReservationStrategy, locks, cfg.LockWait, cfg.LockHold, rt.tel)
	if err != nil {
		return nil, err
	}

	var (
		gw        gateway
		simulator httppresentation.PaymentSimulator
	)
	if cfg.UseSimulator() {
		sim := memory.NewPaymentGateway()
		gw, simulator = sim, sim
		rt.log.Warn("payment_simulator_enabled")
	} else {
		client, err := portone.New(portone.Config{
			BaseURL: cfg.GatewayURL,
			Key:     cfg.GatewayKey,
			Secret:  cfg.GatewaySecret,
			Timeout: cfg.GatewayTimeout,
		}, nil)
		if err != nil {
			return nil, err
		}
		gw = client
	}

	s.bus = outbox.NewBus(rt.log, rt.tel,
		outbox.WithQueueSize(cfg.EventQueue),
		outbox.WithConcurrency(cfg.EventWorkers),
		outbox.WithMiddleware(workerpresentation.EventMiddleware(rt.log, rt.tel)),
	)
	apppay.NewRefundWorker(s.bus, gw, rt.tel, cfg.GatewayTimeout).Start()

	var sinks []relay.Sink
	if brokers := relay.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		sinks = append(sinks, relay.NewKafkaSink(relay.NewKafkaWriter(brokers, cfg.KafkaTopic)))
	}
	if cfg.AMQPURL != "" {
		sink, err := relay.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	s.relay = relay.New(rt.log, sinks...)
	s.relay.Attach(s.bus,
		domorder.OrderPlacedEvent{}.EventName(),
		domorder.OrderStatusChangedEvent{}.EventName(),
		dominv.ItemSoldOutEvent{}.EventName(),
		dompay.RejectedEvent{}.EventName(),
	)

	opts := apporder.Options{GatewayTimeout: cfg.GatewayTimeout}
	sweep := apporder.NewSweepDeliveryUseCase(rt.db, s.bus, rt.tel, opts)
	uc := httppresentation.UseCases{
		Place: apporder.NewPlaceOrderUseCase(rt.db, strategy, gw, id.UUIDGenerator{},
			id.ReferenceGenerator{Location: cfg.Location()}, s.bus, rt.tel, opts),
		Cancel:    apporder.NewCancelOrderUseCase(rt.db, gw, s.bus, rt.tel, opts),
		Advance:   apporder.NewAdvanceDeliveryUseCase(rt.db, s.bus, cfg.DeliveryCutoffHour, cfg.Location(), rt.tel, opts),
		Sweep:     sweep,
		Webhook:   apppay.NewHandleWebhookUseCase(rt.db, gw, s.bus, rt.tel, cfg.GatewayTimeout),
		Orders:    apporder.NewService(rt.db),
		Simulator: simulator,
	}
	s.scheduler = workerpresentation.NewSweepScheduler(sweep, cfg.SweepInterval, rt.tel)

	handler := httppresentation.NewHandler(uc, rt.log, rt.tel, rt.db.Ping)
	root := mux.NewRouter()
	root.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
	root.PathPrefix("/").Handler(handler.Router())

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
	}
	rt.log.Info("server_configured",
		observability.F("reservation_strategy", strategy.Name()),
		observability.F("lock_backend", cfg.LockBackend),
		observability.F("relay_sinks", len(sinks)),
	)
	return s, nil
}

// run serves until ctx ends, then shuts the HTTP server down before draining the bus.
func (s *server) run(ctx context.Context) error {
	log := s.deps.log
	s.bus.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http_server_start", observability.F("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return s.scheduler.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), s.deps.cfg.ShutdownTimeout)
		defer cancel()

		err := s.http.Shutdown(shutdownCtx)
		s.bus.Stop(shutdownCtx)
		err = multierr.Append(err, s.closeAll())
		if err != nil {
			log.Error("shutdown_error", observability.Err(err))
			return err
		}
		log.Info("http_server_stopped")
		return nil
	})
	return g.Wait()
}

func (s *server) closeAll() error {
	var errs error
	if s.relay != nil {
		errs = multierr.Append(errs, s.relay.Close())
	}
	for _, c := range s.closers {
		errs = multierr.Append(errs, c())
	}
	s.relay, s.closers = nil, nil
	return errs
}
