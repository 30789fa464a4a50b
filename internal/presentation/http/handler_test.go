package httppresentation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	appinv "github.com/Zhima-Mochi/cafeshop/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/cafeshop/internal/application/order"
	apppay "github.com/Zhima-Mochi/cafeshop/internal/application/payment"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/cart"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/id"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/sqlite"
	httppresentation "github.com/Zhima-Mochi/cafeshop/internal/presentation/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type server struct {
	db     *sqlite.DB
	gw     *memory.PaymentGateway
	router http.Handler
	logs   *observer.ObservedLogs
	ready  error
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.OpenMigrated(ctx, sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.DemoSeed.Apply(ctx, db))

	gw := memory.NewPaymentGateway()
	opts := apporder.Options{}
	uc := httppresentation.UseCases{
		Place:     apporder.NewPlaceOrderUseCase(db, appinv.NewAtomicStrategy(nil), gw, id.UUIDGenerator{}, id.ReferenceGenerator{}, nil, nil, opts),
		Cancel:    apporder.NewCancelOrderUseCase(db, gw, nil, nil, opts),
		Advance:   apporder.NewAdvanceDeliveryUseCase(db, nil, 14, nil, nil, opts),
		Sweep:     apporder.NewSweepDeliveryUseCase(db, nil, nil, opts),
		Webhook:   apppay.NewHandleWebhookUseCase(db, gw, nil, nil, 0),
		Orders:    apporder.NewService(db),
		Simulator: gw,
	}

	core, logs := observer.New(zapcore.DebugLevel)
	s := &server{db: db, gw: gw, logs: logs}
	h := httppresentation.NewHandler(uc, zaplogger.Wrap(zap.New(core)), nil, func(context.Context) error { return s.ready })
	s.router = h.Router()
	return s
}

func (s *server) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type placed struct {
	OrderID    string `json:"order_id"`
	OrderRef   string `json:"order_ref"`
	Status     string `json:"status"`
	TotalPrice int64  `json:"total_price"`
}

func TestPlaceOrder(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/orders", map[string]any{"member_id": "member-1", "item_id": "coffee-1", "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decode[placed](t, rec)
	assert.Equal(t, "PLACED", got.Status)
	assert.Equal(t, int64(2000), got.TotalPrice)
	assert.NotEmpty(t, got.OrderRef)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	access := s.logs.FilterMessage("http_access").All()
	require.Len(t, access, 1)
	assert.Equal(t, "/orders", access[0].ContextMap()["route"])
	assert.EqualValues(t, http.StatusCreated, access[0].ContextMap()["status"])
}

func TestPlaceOrder_ErrorCodes(t *testing.T) {
	s := newServer(t)

	cases := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown field", "/orders", map[string]any{"member_id": "member-1", "item_id": "coffee-1", "quantity": 1, "price": 1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"zero quantity", "/orders", map[string]any{"member_id": "member-1", "item_id": "coffee-1", "quantity": 0}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown member", "/orders", map[string]any{"member_id": "ghost", "item_id": "coffee-1", "quantity": 1}, http.StatusNotFound, "NOT_FOUND"},
		{"sold out", "/orders", map[string]any{"member_id": "member-1", "item_id": "coffee-3", "quantity": 1}, http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"empty cart", "/orders/checkout", map[string]any{"member_id": "member-2"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decode[errorBody](t, rec).Code)
		})
	}
}

func TestCheckoutPayAndDeliver(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	require.NoError(t, s.db.PutCartLine(ctx, "member-1", cart.Line{ItemID: "coffee-1", Quantity: 1}))
	require.NoError(t, s.db.PutCartLine(ctx, "member-1", cart.Line{ItemID: "coffee-2", Quantity: 1}))

	rec := s.do(t, http.MethodPost, "/orders/checkout", map[string]any{"member_id": "member-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[placed](t, rec)
	assert.Equal(t, int64(2800), order.TotalPrice)

	rec = s.do(t, http.MethodPost, "/dev/payments/"+order.OrderRef+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tx := decode[map[string]string](t, rec)

	webhook := map[string]any{"imp_uid": tx["imp_uid"], "merchant_uid": order.OrderRef, "status": "paid", "extra": true}
	rec = s.do(t, http.MethodPost, "/payments/webhook", webhook)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "PAID", decode[map[string]any](t, rec)["status"])

	rec = s.do(t, http.MethodPost, "/payments/webhook", webhook)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["already_processed"])

	rec = s.do(t, http.MethodPost, "/admin/orders/"+order.OrderRef+"/advance", map[string]any{"target": "DELIVERY_PREPARING"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/admin/deliveries/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["promoted"])

	rec = s.do(t, http.MethodPost, "/orders/"+order.OrderRef+"/cancel", map[string]any{"member_id": "member-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode[errorBody](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/members/member-1/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	grouped := decode[struct {
		Orders map[string][]struct {
			OrderRef string `json:"order_ref"`
			Lines    []struct {
				ItemID    string `json:"item_id"`
				UnitPrice int64  `json:"unit_price"`
			} `json:"lines"`
		} `json:"orders"`
	}](t, rec)
	require.Len(t, grouped.Orders["AWAITING_DELIVERY"], 1)
	assert.Len(t, grouped.Orders["AWAITING_DELIVERY"][0].Lines, 2)
	assert.Empty(t, grouped.Orders["PLACED"])
	assert.Contains(t, grouped.Orders, "REFUNDED")
}

func TestWebhook_MismatchIsInconsistency(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/orders", map[string]any{"member_id": "member-1", "item_id": "coffee-1", "quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	order := decode[placed](t, rec)

	rec = s.do(t, http.MethodPost, "/dev/payments/"+order.OrderRef+"/complete", map[string]any{"amount": 900})
	require.Equal(t, http.StatusOK, rec.Code)
	tx := decode[map[string]string](t, rec)

	rec = s.do(t, http.MethodPost, "/payments/webhook", map[string]any{
		"transaction_id": tx["imp_uid"], "order_ref": order.OrderRef, "status": "paid",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INCONSISTENCY", decode[errorBody](t, rec).Code)

	it, err := s.db.Item(context.Background(), "coffee-1")
	require.NoError(t, err)
	assert.Equal(t, 5, it.Stock)
}

func TestCancelOrder(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/orders", map[string]any{"member_id": "member-1", "item_id": "coffee-2", "quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	order := decode[placed](t, rec)

	rec = s.do(t, http.MethodPost, "/orders/"+order.OrderRef+"/cancel", map[string]any{"member_id": "member-2"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/orders/"+order.OrderRef+"/cancel", map[string]any{"member_id": "member-1", "reason": "ordered twice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CANCELLED", decode[placed](t, rec).Status)

	rec = s.do(t, http.MethodGet, "/admin/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[map[string]map[string][]any](t, rec)
	assert.Len(t, all["orders"]["CANCELLED"], 1)
}

func TestGatewayFailureHidesPeerDetails(t *testing.T) {
	s := newServer(t)
	s.gw.FailWith(errors.New("dial tcp https://pay.internal.example:8443/prepare: connection refused"))

	rec := s.do(t, http.MethodPost, "/orders", map[string]any{"member_id": "member-1", "item_id": "coffee-1", "quantity": 1})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "PAYMENT_GATEWAY_FAILURE", body.Code)
	assert.Equal(t, "payment gateway unavailable", body.Error)
	assert.NotContains(t, rec.Body.String(), "pay.internal.example")

	logged := s.logs.FilterMessage("http_opaque_error").All()
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0].ContextMap()["error"], "pay.internal.example")
}

func TestGetOrder(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/orders", map[string]any{"member_id": "member-1", "item_id": "coffee-2", "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	order := decode[placed](t, rec)

	rec = s.do(t, http.MethodGet, "/members/member-1/orders/"+order.OrderRef, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[placed](t, rec)
	assert.Equal(t, order.OrderID, got.OrderID)
	assert.Equal(t, "PLACED", got.Status)
	assert.Equal(t, int64(3600), got.TotalPrice)

	rec = s.do(t, http.MethodGet, "/members/member-2/orders/"+order.OrderRef, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/admin/orders/"+order.OrderRef, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.OrderRef, decode[placed](t, rec).OrderRef)

	rec = s.do(t, http.MethodGet, "/admin/orders/missing-ref", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndRouting(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.ready = errors.New("database closed")
	rec = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = s.do(t, http.MethodGet, "/orders", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	out := httptest.NewRecorder()
	s.router.ServeHTTP(out, req)
	assert.Equal(t, "req-42", out.Header().Get("X-Request-ID"))
}
