package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
	"github.com/dacrab/clubos-legacy-sub000/internal/service"
)

// Handler handles HTTP requests for the register.
type Handler struct {
	registerSvc *service.RegisterService
}

func NewHandler(registerSvc *service.RegisterService) *Handler {
	return &Handler{
		registerSvc: registerSvc,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.handleGetProducts)

	mux.HandleFunc("POST /api/sessions", h.handleOpenSession)
	mux.HandleFunc("GET /api/sessions/current", h.handleCurrentSession)
	mux.HandleFunc("GET /api/sessions/{id}/totals", h.handleSessionTotals)
	mux.HandleFunc("GET /api/sessions/{id}/orders", h.handleSessionOrders)
	mux.HandleFunc("POST /api/sessions/{id}/sales", h.handleRecordSale)
	mux.HandleFunc("POST /api/sessions/{id}/close", h.handleCloseSession)

	mux.HandleFunc("GET /api/orders/{id}/totals", h.handleOrderTotals)

	mux.HandleFunc("PATCH /api/line-items/{id}", h.handleEditLineItem)
	mux.HandleFunc("DELETE /api/line-items/{id}", h.handleDeleteLineItem)
	mux.HandleFunc("GET /api/line-items/{id}/history", h.handleLineItemHistory)

	mux.HandleFunc("GET /api/closings", h.handleRecentClosings)
}

// response is the envelope of every mutation and of every failure.
type response struct {
	service.Result
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind entity.ErrorKind) int {
	switch kind {
	case entity.KindNotFound:
		return http.StatusNotFound
	case entity.KindConcurrentModification, entity.KindSessionAlreadyOpen, entity.KindSessionClosed,
		entity.KindEditWindowExpired, entity.KindAlreadyDeleted:
		return http.StatusConflict
	case entity.KindInvalidRequest:
		return http.StatusBadRequest
	case entity.KindInvalidQuantity, entity.KindOutOfStock, entity.KindInsufficientStock,
		entity.KindNegativeStock, entity.KindSaleFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	res := service.ResultOf(err)
	status := statusOf(res.Error)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("Failed to "+op, "err", err)
		msg = "internal server error"
	} else {
		slog.Warn("Rejected "+op, "kind", res.Error, "err", err)
	}
	writeJSON(w, status, response{Result: res, Message: msg})
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, response{Result: service.Result{Success: true}, Data: data})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid request body: %w", entity.ErrInvalidRequest, err)
	}
	return nil
}

func (h *Handler) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.registerSvc.GetProducts(r.Context())
	if err != nil {
		writeError(w, "get products", err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

type OpenSessionRequest struct {
	OpenedBy string `json:"opened_by"`
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "open session", err)
		return
	}
	session, err := h.registerSvc.OpenSession(r.Context(), req.OpenedBy)
	if err != nil {
		writeError(w, "open session", err)
		return
	}
	writeOK(w, http.StatusCreated, session)
}

func (h *Handler) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.registerSvc.CurrentSession(r.Context())
	if err != nil {
		writeError(w, "get current session", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleSessionTotals(w http.ResponseWriter, r *http.Request) {
	t, err := h.registerSvc.SessionTotals(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "get session totals", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleSessionOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.registerSvc.ListSessionOrders(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "list session orders", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

type RecordSaleRequest struct {
	Items             []entity.SaleItem    `json:"items"`
	CardDiscountCount int                  `json:"card_discount_count"`
	PaymentMethod     entity.PaymentMethod `json:"payment_method"`
}

func (h *Handler) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req RecordSaleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "record sale", err)
		return
	}

	order, err := h.registerSvc.RecordSale(r.Context(), entity.RecordSale{
		SessionID:         r.PathValue("id"),
		Items:             req.Items,
		CardDiscountCount: req.CardDiscountCount,
		PaymentMethod:     req.PaymentMethod,
	})
	if err != nil {
		writeError(w, "record sale", err)
		return
	}
	writeOK(w, http.StatusCreated, order)
}

type CloseSessionRequest struct {
	ClosedBy string `json:"closed_by"`
	Notes    string `json:"notes"`
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	var req CloseSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "close session", err)
		return
	}
	closing, err := h.registerSvc.CloseSession(r.Context(), r.PathValue("id"), req.ClosedBy, req.Notes)
	if err != nil {
		writeError(w, "close session", err)
		return
	}
	writeOK(w, http.StatusOK, closing)
}

func (h *Handler) handleOrderTotals(w http.ResponseWriter, r *http.Request) {
	view, err := h.registerSvc.OrderTotals(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "get order totals", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleEditLineItem(w http.ResponseWriter, r *http.Request) {
	var cmd entity.EditLineItem
	if err := decode(r, &cmd); err != nil {
		writeError(w, "edit line item", err)
		return
	}
	cmd.LineItemID = r.PathValue("id")

	item, err := h.registerSvc.EditLineItem(r.Context(), cmd)
	if err != nil {
		writeError(w, "edit line item", err)
		return
	}
	writeOK(w, http.StatusOK, item)
}

func (h *Handler) handleDeleteLineItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.registerSvc.DeleteLineItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "delete line item", err)
		return
	}
	writeOK(w, http.StatusOK, item)
}

func (h *Handler) handleLineItemHistory(w http.ResponseWriter, r *http.Request) {
	trail, err := h.registerSvc.LineItemHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "get line item history", err)
		return
	}
	writeJSON(w, http.StatusOK, trail)
}

func (h *Handler) handleRecentClosings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, "list closings", fmt.Errorf("%w: invalid limit %q", entity.ErrInvalidRequest, raw))
			return
		}
		limit = n
	}
	closings, err := h.registerSvc.RecentClosings(r.Context(), limit)
	if err != nil {
		writeError(w, "list closings", err)
		return
	}
	writeJSON(w, http.StatusOK, closings)
}

// EnableCORS is a middleware to allow the register frontend to connect.
func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
