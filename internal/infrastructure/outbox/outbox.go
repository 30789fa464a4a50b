package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/cafeshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"
	"github.com/Zhima-Mochi/cafeshop/internal/observability/logctx"
)

// ErrStopped is returned by Publish once Stop has been called.
var ErrStopped = errors.New("outbox: bus stopped")

const (
	componentOutbox       = "outbox"
	defaultQueueSize      = 1024
	defaultConcurrency    = 8
	defaultHandlerTimeout = 30 * time.Second
)

// Middleware wraps every handler at subscription time.
type Middleware func(eventName string, h domoutbox.Handler) domoutbox.Handler

type Option func(*Bus)

func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithConcurrency caps the handlers run in parallel for one event.
func WithConcurrency(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.handlerTimeout = d
		}
	}
}

func WithMiddleware(mw ...Middleware) Option {
	return func(b *Bus) { b.middleware = append(b.middleware, mw...) }
}

// Bus is an in-memory event bus fanning committed domain events out to
// in-process subscribers. It is not durable: events still queued when the
// process dies are lost.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string][]domoutbox.Handler
	queue     chan domoutbox.Event
	stopped   bool
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	cancel    context.CancelFunc

	queueSize      int
	concurrency    int
	handlerTimeout time.Duration
	middleware     []Middleware

	log      observability.Logger
	handled  observability.Counter
	duration observability.Histogram
}

func NewBus(logger observability.Logger, tel observability.Observability, opts ...Option) *Bus {
	if tel == nil {
		tel = observability.Nop()
	}
	if logger == nil {
		logger = tel.Logger()
	}
	b := &Bus{
		subs:           make(map[string][]domoutbox.Handler),
		done:           make(chan struct{}),
		queueSize:      defaultQueueSize,
		concurrency:    defaultConcurrency,
		handlerTimeout: defaultHandlerTimeout,
		log:            logger.With(observability.F("component", componentOutbox)),
		handled:        tel.Metrics().Counter(observability.MEventsHandled),
		duration:       tel.Metrics().Histogram(observability.MEventHandlerDuration),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.queue = make(chan domoutbox.Event, b.queueSize)
	return b
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	for i := len(b.middleware) - 1; i >= 0; i-- {
		h = b.middleware[i](eventName, h)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		go b.dispatchLoop(bg)
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

// Stop refuses new events and waits until queued events are handled or ctx ends.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		close(b.queue)
		b.mu.Unlock()

		logger := logctx.FromOr(ctx, b.log)
		if b.cancel != nil {
			select {
			case <-b.done:
			case <-ctx.Done():
				logger.Warn("event_bus_drain_aborted", observability.F("pending", len(b.queue)))
			}
			b.cancel()
		}
		logger.Info("event_bus_stopped")
	})
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return ErrStopped
	}

	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))
	select {
	case b.queue <- e:
		logger.Debug("event_enqueued")
		return nil
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted",
			observability.Err(ctx.Err()),
		)
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-b.queue:
			if !ok {
				return
			}
			b.fanout(ctx, e)
		}
	}
}

func (b *Bus) fanout(ctx context.Context, e domoutbox.Event) {
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("event_dropped_no_subscriber", observability.F("event", name))
		return
	}

	ctx = context.WithoutCancel(ctx)
	logger := b.log.With(observability.F("event", name))

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			start := time.Now()
			outcome := "success"
			defer func() {
				if r := recover(); r != nil {
					outcome = "panic"
					logger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				b.handled.Add(1, observability.L("event", name), observability.L("outcome", outcome))
				b.duration.Observe(time.Since(start).Seconds(), observability.L("event", name))
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(logctx.With(ctx, logger), b.handlerTimeout)
			defer cancel()
			if err := h(hctx, e); err != nil {
				outcome = "error"
				logger.Warn("event_handler_error",
					observability.Err(err),
				)
			}
		}()
	}

	wg.Wait()

	logger.Debug("event_fanned_out",
		observability.F("handlers", len(handlers)),
	)
}
