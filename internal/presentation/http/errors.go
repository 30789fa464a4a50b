package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Zhima-Mochi/cafeshop/internal/application"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/cafeshop/internal/domain/inventory"
	"github.com/Zhima-Mochi/cafeshop/internal/domain/member"
	domorder "github.com/Zhima-Mochi/cafeshop/internal/domain/order"
	dompay "github.com/Zhima-Mochi/cafeshop/internal/domain/payment"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"
	"github.com/Zhima-Mochi/cafeshop/internal/observability/logctx"
)

// Stable error codes of the public API.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeLockTimeout       = "LOCK_TIMEOUT"
	CodeGatewayFailure    = "PAYMENT_GATEWAY_FAILURE"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInconsistency     = "INCONSISTENCY"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL"
)

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

var errorTable = []struct {
	errs   []error
	status int
	code   string
}{
	{[]error{application.ErrValidation, dominv.ErrInvalidQuantity, cart.ErrEmpty, domorder.ErrInvalidAmount}, http.StatusBadRequest, CodeValidation},
	{[]error{member.ErrNotFound, dominv.ErrNotFound, domorder.ErrNotFound, dompay.ErrNotFound}, http.StatusNotFound, CodeNotFound},
	{[]error{dominv.ErrInsufficientStock}, http.StatusConflict, CodeInsufficientStock},
	{[]error{dominv.ErrLockNotAcquired}, http.StatusServiceUnavailable, CodeLockTimeout},
	{[]error{dompay.ErrGatewayFailure}, http.StatusBadGateway, CodeGatewayFailure},
	{[]error{domorder.ErrPaymentMismatch}, http.StatusUnprocessableEntity, CodeInconsistency},
	{[]error{domorder.ErrInvalidTransition, domorder.ErrAlreadyProcessed}, http.StatusConflict, CodeInvalidTransition},
	{[]error{domorder.ErrConflict}, http.StatusConflict, CodeConflict},
}

// classify maps err to its HTTP status and stable code.
func classify(err error) (int, string) {
	for _, e := range errorTable {
		for _, target := range e.errs {
			if errors.Is(err, target) {
				return e.status, e.code
			}
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// Codes whose error text names internal peers are answered with a fixed message.
var opaqueMessages = map[string]string{
	CodeGatewayFailure: "payment gateway unavailable",
	CodeInternal:       "internal error",
}

// writeDomainError answers with the mapped code. Opaque codes are logged and
// their error text never reaches the client.
func writeDomainError(ctx context.Context, w http.ResponseWriter, fallback observability.Logger, err error) {
	status, code := classify(err)
	msg := err.Error()
	if fixed, ok := opaqueMessages[code]; ok {
		logctx.FromOr(ctx, fallback).Error("http_opaque_error",
			observability.F("code", code),
			observability.F("error", msg),
		)
		msg = fixed
	}
	writeError(w, status, code, msg)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Code: code, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return application.NewValidation("malformed body: " + err.Error())
	}
	return nil
}
