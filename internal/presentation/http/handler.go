package httppresentation

import (
	"context"
	"net/http"

	"github.com/Zhima-Mochi/cafeshop/internal/application"
	apporder "github.com/Zhima-Mochi/cafeshop/internal/application/order"
	apppay "github.com/Zhima-Mochi/cafeshop/internal/application/payment"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"
	"github.com/Zhima-Mochi/cafeshop/internal/observability/logctx"

	"github.com/gorilla/mux"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	tracerName           = "cafeshop.http"
)

// PaymentSimulator completes a prepared payment. Only the in-memory gateway implements it.
type PaymentSimulator interface {
	Complete(orderRef string, amount int64) (string, error)
}

// UseCases are the application entry points served over HTTP.
type UseCases struct {
	Place   application.UseCase[apporder.PlaceOrderInput, *apporder.PlaceOrderResult]
	Cancel  application.UseCase[apporder.CancelOrderInput, *apporder.CancelOrderResult]
	Advance application.UseCase[apporder.AdvanceDeliveryInput, *apporder.AdvanceDeliveryResult]
	Sweep   application.UseCase[apporder.SweepInput, *apporder.SweepResult]
	Webhook application.UseCase[apppay.WebhookInput, *apppay.WebhookResult]
	Orders  *apporder.Service

	// Simulator enables POST /dev/payments/{ref}/complete when set.
	Simulator PaymentSimulator
}

type Handler struct {
	uc      UseCases
	log     observability.Logger
	ready   func(ctx context.Context) error
	metrics struct {
		requests observability.Counter
		duration observability.Histogram
	}
}

// NewHandler wires the routes. ready backs /health and may be nil.
func NewHandler(uc UseCases, logger observability.Logger, tel observability.Observability, ready func(ctx context.Context) error) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = tel.Logger()
	}
	h := &Handler{
		uc:    uc,
		log:   baseLogger.With(observability.F("component", componentHTTPHandler)),
		ready: ready,
	}
	h.metrics.requests = tel.Metrics().Counter(observability.MHTTPRequests)
	h.metrics.duration = tel.Metrics().Histogram(observability.MHTTPRequestDuration)
	return h
}

// Router returns the API router.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(withRoute, h.observe)

	r.HandleFunc("/orders", h.handlePlaceOrder).Methods(http.MethodPost)
	r.HandleFunc("/orders/checkout", h.handleCheckout).Methods(http.MethodPost)
	r.HandleFunc("/orders/{ref}/cancel", h.handleCancelOrder).Methods(http.MethodPost)
	r.HandleFunc("/members/{memberID}/orders", h.handleMemberOrders).Methods(http.MethodGet)
	r.HandleFunc("/members/{memberID}/orders/{ref}", h.handleMemberOrder).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/orders", h.handleAllOrders).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{ref}", h.handleAdminOrder).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{ref}/advance", h.handleAdvance).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{ref}/cancel", h.handleAdminCancel).Methods(http.MethodPost)
	admin.HandleFunc("/deliveries/sweep", h.handleSweep).Methods(http.MethodPost)

	r.HandleFunc("/payments/webhook", h.handleWebhook).Methods(http.MethodPost)
	if h.uc.Simulator != nil {
		r.HandleFunc("/dev/payments/{ref}/complete", h.handleSimulateComplete).Methods(http.MethodPost)
	}

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			logctx.FromOr(r.Context(), h.log).Warn("health_check_failed", observability.Err(err))
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "not ready")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
