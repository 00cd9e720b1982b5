package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dacrab/clubos-legacy-sub000/internal/entity"
	"github.com/dacrab/clubos-legacy-sub000/internal/lock"
	"github.com/dacrab/clubos-legacy-sub000/internal/messaging"
	"github.com/dacrab/clubos-legacy-sub000/internal/repository/memory"
	"github.com/dacrab/clubos-legacy-sub000/internal/service"
	"github.com/dacrab/clubos-legacy-sub000/internal/stock"
)

func newServer(t *testing.T) http.Handler {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.SeedProducts(context.Background(), []entity.Product{
		{ID: "coffee", Name: "Coffee", Price: 250, Stock: 3},
		{ID: "water", Name: "Water", Price: 100, Stock: entity.UnlimitedStock},
	}))
	svc := service.NewRegisterService(store, stock.NewLedger(), lock.NewLocal(), messaging.Nop{}, service.Options{})

	mux := http.NewServeMux()
	NewHandler(svc).RegisterRoutes(mux)
	return EnableCORS(mux)
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func openSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec, env := do(t, h, http.MethodPost, "/api/sessions", `{"opened_by":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, env.Success)

	var session entity.RegisterSession
	require.NoError(t, json.Unmarshal(env.Data, &session))
	return session.ID
}

func TestSaleEditDeleteFlow(t *testing.T) {
	h := newServer(t)
	sessionID := openSession(t, h)

	rec, env := do(t, h, http.MethodPost, "/api/sessions/"+sessionID+"/sales",
		`{"items":[{"product_id":"coffee","quantity":2},{"product_id":"water","quantity":1}],"payment_method":"card","card_discount_count":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order entity.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	require.Len(t, order.Items, 2)

	rec, _ = do(t, h, http.MethodGet, "/api/orders/"+order.ID+"/totals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"final_amount":4.00`)

	rec, env = do(t, h, http.MethodPatch, "/api/line-items/"+order.Items[0].ID, `{"quantity":5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(entity.KindInsufficientStock), env.Error)

	rec, env = do(t, h, http.MethodPatch, "/api/line-items/"+order.Items[0].ID, `{"quantity":3,"version":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	rec, env = do(t, h, http.MethodPatch, "/api/line-items/"+order.Items[0].ID, `{"quantity":1,"version":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(entity.KindConcurrentModification), env.Error)

	rec, _ = do(t, h, http.MethodDelete, "/api/line-items/"+order.Items[0].ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, h, http.MethodDelete, "/api/line-items/"+order.Items[0].ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(entity.KindAlreadyDeleted), env.Error)

	rec, _ = do(t, h, http.MethodGet, "/api/line-items/"+order.Items[0].ID+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"event_type":"LineItemDeleted"`)
}

func TestRecordSale_OutOfStock(t *testing.T) {
	h := newServer(t)
	sessionID := openSession(t, h)

	rec, env := do(t, h, http.MethodPost, "/api/sessions/"+sessionID+"/sales", `{"items":[{"product_id":"coffee","quantity":4}]}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, string(entity.KindOutOfStock), env.Error)
}

func TestCloseSession(t *testing.T) {
	h := newServer(t)
	sessionID := openSession(t, h)

	rec, _ := do(t, h, http.MethodPost, "/api/sessions/"+sessionID+"/sales", `{"items":[{"product_id":"water","quantity":3}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := do(t, h, http.MethodPost, "/api/sessions/"+sessionID+"/close", `{"closed_by":"alice","notes":"ok"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var closing entity.RegisterClosing
	require.NoError(t, json.Unmarshal(env.Data, &closing))
	assert.EqualValues(t, 300, closing.FinalAmount)
	assert.Equal(t, 1, closing.CashOrders)

	rec, env = do(t, h, http.MethodPost, "/api/sessions/"+sessionID+"/sales", `{"items":[{"product_id":"water","quantity":1}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(entity.KindSessionClosed), env.Error)

	rec, _ = do(t, h, http.MethodGet, "/api/closings?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var closings []entity.RegisterClosing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &closings))
	assert.Len(t, closings, 1)

	rec, env = do(t, h, http.MethodGet, "/api/sessions/current", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(entity.KindNotFound), env.Error)
}

func TestBadRequests(t *testing.T) {
	h := newServer(t)

	rec, env := do(t, h, http.MethodPost, "/api/sessions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(entity.KindInvalidRequest), env.Error)

	rec, _ = do(t, h, http.MethodGet, "/api/closings?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/sessions/unknown/totals", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnableCORS_Preflight(t *testing.T) {
	h := newServer(t)

	rec, _ := do(t, h, http.MethodOptions, "/api/line-items/x", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}
