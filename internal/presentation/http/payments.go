package httppresentation

import (
	"encoding/json"
	"net/http"

	"github.com/Zhima-Mochi/cafeshop/internal/application"
	apppay "github.com/Zhima-Mochi/cafeshop/internal/application/payment"
	domorder "github.com/Zhima-Mochi/cafeshop/internal/domain/order"

	"github.com/gorilla/mux"
)

// webhookRequest is the gateway notification. Gateways add fields over time,
// so unknown ones are ignored here.
type webhookRequest struct {
	ImpUID         string `json:"imp_uid"`
	MerchantUID    string `json:"merchant_uid"`
	TransactionID  string `json:"transaction_id"`
	OrderRef       string `json:"order_ref"`
	Status         string `json:"status"`
	CancellationID string `json:"cancellation_id"`
}

func (req webhookRequest) input() apppay.WebhookInput {
	in := apppay.WebhookInput{
		TransactionID:  req.ImpUID,
		OrderRef:       req.MerchantUID,
		Status:         req.Status,
		CancellationID: req.CancellationID,
	}
	if in.TransactionID == "" {
		in.TransactionID = req.TransactionID
	}
	if in.OrderRef == "" {
		in.OrderRef = req.OrderRef
	}
	return in
}

type webhookResponse struct {
	OrderID          string          `json:"order_id"`
	OrderRef         string          `json:"order_ref"`
	Status           domorder.Status `json:"status"`
	TotalPrice       int64           `json:"total_price"`
	AlreadyProcessed bool            `json:"already_processed"`
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDomainError(r.Context(), w, h.log, application.NewValidation("malformed body: "+err.Error()))
		return
	}
	res, err := h.uc.Webhook.Execute(r.Context(), req.input())
	if err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{
		OrderID:          res.OrderID,
		OrderRef:         res.OrderRef,
		Status:           res.Status,
		TotalPrice:       res.TotalPrice,
		AlreadyProcessed: res.AlreadyProcessed,
	})
}

type simulateRequest struct {
	Amount int64 `json:"amount,omitempty"`
}

type simulateResponse struct {
	TransactionID string `json:"imp_uid"`
	OrderRef      string `json:"merchant_uid"`
}

// handleSimulateComplete plays the customer paying at the simulated gateway.
// The webhook still has to be posted separately.
func (h *Handler) handleSimulateComplete(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeDomainError(r.Context(), w, h.log, err)
			return
		}
	}
	ref := mux.Vars(r)["ref"]
	txID, err := h.uc.Simulator.Complete(ref, req.Amount)
	if err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, simulateResponse{TransactionID: txID, OrderRef: ref})
}
