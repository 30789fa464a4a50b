package httppresentation

import (
	"net/http"
	"time"

	apporder "github.com/Zhima-Mochi/cafeshop/internal/application/order"
	domorder "github.com/Zhima-Mochi/cafeshop/internal/domain/order"

	"github.com/gorilla/mux"
)

type placeOrderRequest struct {
	MemberID string `json:"member_id"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type checkoutRequest struct {
	MemberID string `json:"member_id"`
}

type placeOrderResponse struct {
	OrderID    string          `json:"order_id"`
	OrderRef   string          `json:"order_ref"`
	Status     domorder.Status `json:"status"`
	TotalPrice int64           `json:"total_price"`
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	h.place(w, r, apporder.PlaceOrderInput{MemberID: req.MemberID, ItemID: req.ItemID, Quantity: req.Quantity})
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	h.place(w, r, apporder.PlaceOrderInput{MemberID: req.MemberID, FromCart: true})
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request, in apporder.PlaceOrderInput) {
	res, err := h.uc.Place.Execute(r.Context(), in)
	if err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, placeOrderResponse{
		OrderID:    res.OrderID,
		OrderRef:   res.OrderRef,
		Status:     res.Status,
		TotalPrice: res.TotalPrice,
	})
}

type cancelOrderRequest struct {
	MemberID string `json:"member_id"`
	Amount   int64  `json:"amount,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	h.cancel(w, r, apporder.CancelOrderInput{
		OrderRef: mux.Vars(r)["ref"],
		MemberID: req.MemberID,
		Amount:   req.Amount,
		Reason:   req.Reason,
	})
}

type adminCancelRequest struct {
	Amount int64  `json:"amount,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) handleAdminCancel(w http.ResponseWriter, r *http.Request) {
	var req adminCancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	h.cancel(w, r, apporder.CancelOrderInput{
		OrderRef: mux.Vars(r)["ref"],
		Admin:    true,
		Amount:   req.Amount,
		Reason:   req.Reason,
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, in apporder.CancelOrderInput) {
	res, err := h.uc.Cancel.Execute(r.Context(), in)
	if err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, placeOrderResponse{
		OrderID:    res.OrderID,
		OrderRef:   res.OrderRef,
		Status:     res.Status,
		TotalPrice: res.TotalPrice,
	})
}

type advanceRequest struct {
	Target string `json:"target,omitempty"`
	Actor  string `json:"actor,omitempty"`
}

type advanceResponse struct {
	OrderID  string          `json:"order_id"`
	OrderRef string          `json:"order_ref"`
	From     domorder.Status `json:"from"`
	Status   domorder.Status `json:"status"`
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeDomainError(r.Context(), w, h.log, err)
			return
		}
	}
	res, err := h.uc.Advance.Execute(r.Context(), apporder.AdvanceDeliveryInput{
		OrderRef: mux.Vars(r)["ref"],
		Target:   domorder.Status(req.Target),
		Actor:    req.Actor,
	})
	if err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{OrderID: res.OrderID, OrderRef: res.OrderRef, From: res.From, Status: res.Status})
}

type sweepResponse struct {
	RunID     string `json:"run_id"`
	Promoted  int    `json:"promoted"`
	Conflicts int    `json:"conflicts"`
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	runID := "http-" + requestIDFromResponse(w)
	res, err := h.uc.Sweep.Execute(r.Context(), apporder.SweepInput{RunID: runID})
	if err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{RunID: runID, Promoted: res.Promoted, Conflicts: res.Conflicts})
}

func requestIDFromResponse(w http.ResponseWriter) string {
	return w.Header().Get(headerRequestID)
}

type lineDTO struct {
	ItemID    string `json:"item_id"`
	ItemName  string `json:"item_name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type orderDTO struct {
	OrderID    string          `json:"order_id"`
	OrderRef   string          `json:"order_ref"`
	MemberID   string          `json:"member_id"`
	Status     domorder.Status `json:"status"`
	TotalPrice int64           `json:"total_price"`
	Lines      []lineDTO       `json:"lines"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type groupedResponse struct {
	Orders map[domorder.Status][]orderDTO `json:"orders"`
}

func toOrderDTO(o *domorder.Order) orderDTO {
	lines := make([]lineDTO, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = lineDTO{ItemID: l.ItemID, ItemName: l.ItemName, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return orderDTO{
		OrderID:    o.ID,
		OrderRef:   o.Reference,
		MemberID:   o.MemberID,
		Status:     o.Status,
		TotalPrice: o.Total,
		Lines:      lines,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func toGrouped(g apporder.Grouped) groupedResponse {
	out := groupedResponse{Orders: make(map[domorder.Status][]orderDTO, len(g))}
	for status, orders := range g {
		dtos := make([]orderDTO, len(orders))
		for i, o := range orders {
			dtos[i] = toOrderDTO(o)
		}
		out.Orders[status] = dtos
	}
	return out
}

func (h *Handler) handleMemberOrders(w http.ResponseWriter, r *http.Request) {
	grouped, err := h.uc.Orders.ListByMember(r.Context(), mux.Vars(r)["memberID"])
	if err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrouped(grouped))
}

func (h *Handler) handleMemberOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	o, err := h.uc.Orders.GetForMember(r.Context(), vars["memberID"], vars["ref"])
	if err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (h *Handler) handleAdminOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.uc.Orders.GetByReference(r.Context(), mux.Vars(r)["ref"])
	if err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (h *Handler) handleAllOrders(w http.ResponseWriter, r *http.Request) {
	grouped, err := h.uc.Orders.ListAll(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrouped(grouped))
}
