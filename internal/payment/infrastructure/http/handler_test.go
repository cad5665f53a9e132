package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orchestrator "github.com/dmehra2102/storefront/internal/orchestrator/application"
	orderapp "github.com/dmehra2102/storefront/internal/order/application"
	orderdomain "github.com/dmehra2102/storefront/internal/order/domain"
	ordermemory "github.com/dmehra2102/storefront/internal/order/infrastructure/memory"
	"github.com/dmehra2102/storefront/internal/payment/application"
	"github.com/dmehra2102/storefront/internal/payment/infrastructure/memory"
	"github.com/dmehra2102/storefront/internal/payment/infrastructure/przelewy24"
	"github.com/dmehra2102/storefront/internal/platform/httpx"
)

type env struct {
	srv    *httptest.Server
	orders *orderapp.Service
	p24cfg przelewy24.Config
}

// fakeP24 accepts every register and verify call.
func fakeP24(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/transaction/register":
			_, _ = w.Write([]byte(`{"data":{"token":"TKN"},"responseCode":0}`))
		case "/api/v1/transaction/verify":
			_, _ = w.Write([]byte(`{"data":{"status":"success"},"responseCode":0}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := ordermemory.NewStore(orderdomain.Offer{
		ItemID:    1,
		ArticleID: "ABC1",
		Name:      "Drill",
		Warehouse: orderdomain.WarehouseRef{ID: "W1", Name: "Warsaw", CountryCode: "PL"},
		Price:     decimal.RequireFromString("80.50"),
		Quantity:  5,
	})
	orders := orderapp.NewService(log, store, nil)
	coordinator := orchestrator.NewCoordinator(log, orders)

	p24 := fakeP24(t)
	cfg := przelewy24.Config{BaseURL: p24.URL, MerchantID: 11111, PosID: 11111, APIKey: "k", CRC: "crc"}
	svc := application.NewService(log, memory.NewRepository(), przelewy24.NewClient(log, cfg),
		orders, coordinator, ordermemory.NewIdempotency(), "PLN")
	h := NewHandler(log, svc)

	r := chi.NewRouter()
	r.Route("/api/payments", func(r chi.Router) {
		h.ProviderRoutes(r)
		r.With(httpx.Authenticate).Group(h.CustomerRoutes)
	})
	r.With(httpx.Authenticate).Route("/api/orders", h.OrderRoutes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &env{srv: srv, orders: orders, p24cfg: cfg}
}

func (e *env) placeOrder(t *testing.T, user string) orderdomain.Order {
	t.Helper()
	o, err := e.orders.PlaceOrder(context.Background(), orderapp.PlaceOrderInput{
		UserID:     user,
		Lines:      []orderdomain.CartLine{{ArticleID: "ABC1", WarehouseID: "W1", Quantity: 2}},
		TotalPrice: "161,00 zł",
	})
	require.NoError(t, err)
	return o
}

func call(t *testing.T, srv *httptest.Server, method, path, user, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(httpx.HeaderUserID, user)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (e *env) signedNotification(t *testing.T, sessionID string, amount int64) string {
	t.Helper()
	sign, err := przelewy24.Sign(struct {
		MerchantID   int    `json:"merchantId"`
		PosID        int    `json:"posId"`
		SessionID    string `json:"sessionId"`
		Amount       int64  `json:"amount"`
		OriginAmount int64  `json:"originAmount"`
		Currency     string `json:"currency"`
		OrderID      int64  `json:"orderId"`
		MethodID     int    `json:"methodId"`
		Statement    string `json:"statement"`
		CRC          string `json:"crc"`
	}{e.p24cfg.MerchantID, e.p24cfg.PosID, sessionID, amount, amount, "PLN", 4242, 25, "p24", e.p24cfg.CRC})
	require.NoError(t, err)

	body, err := json.Marshal(application.Notification{
		MerchantID: e.p24cfg.MerchantID, PosID: e.p24cfg.PosID, SessionID: sessionID,
		Amount: amount, OriginAmount: amount, Currency: "PLN", OrderID: 4242, MethodID: 25,
		Statement: "p24", Sign: sign,
	})
	require.NoError(t, err)
	return string(body)
}

func TestPaymentFlow(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrder(t, "u1")

	resp, body := call(t, e.srv, http.MethodPost, "/api/payments/initiate", "u1", `{"orderId":"`+o.ID+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, strings.HasSuffix(body["redirectUrl"].(string), "/trnRequest/TKN"))
	payment := body["payment"].(map[string]any)
	assert.Equal(t, float64(16100), payment["amount"])
	sessionID := payment["sessionId"].(string)

	got, err := e.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusWaitingForPayment, got.Status)

	resp, _ = call(t, e.srv, http.MethodPost, "/api/payments/przelewy24/notify", "", e.signedNotification(t, sessionID, 16100))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err = e.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusProcessing, got.Status)

	resp, body = call(t, e.srv, http.MethodGet, "/api/orders/"+o.ID+"/payment", "u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "SUCCESS", body["status"])
	assert.Equal(t, float64(4242), body["providerOrderId"])
}

func TestNotificationMismatchLeavesOrder(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrder(t, "u1")

	_, body := call(t, e.srv, http.MethodPost, "/api/payments/initiate", "u1", `{"orderId":"`+o.ID+`"}`)
	sessionID := body["payment"].(map[string]any)["sessionId"].(string)

	resp, _ := call(t, e.srv, http.MethodPost, "/api/payments/przelewy24/notify", "", e.signedNotification(t, sessionID, 100))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	got, err := e.orders.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusWaitingForPayment, got.Status)

	_, body = call(t, e.srv, http.MethodGet, "/api/orders/"+o.ID+"/payment", "u1", "")
	assert.Equal(t, "FAILED", body["status"])
}

func TestNotificationBadSign(t *testing.T) {
	e := newEnv(t)
	body := strings.Replace(e.signedNotification(t, "sess", 100), `"sign":"`, `"sign":"00`, 1)

	resp, out := call(t, e.srv, http.MethodPost, "/api/payments/przelewy24/notify", "", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_signature", out["error"])
}

func TestInitiateErrors(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrder(t, "u1")

	resp, _ := call(t, e.srv, http.MethodPost, "/api/payments/initiate", "", `{"orderId":"`+o.ID+`"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = call(t, e.srv, http.MethodPost, "/api/payments/initiate", "u2", `{"orderId":"`+o.ID+`"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = call(t, e.srv, http.MethodPost, "/api/payments/initiate", "u1", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err := e.orders.Cancel(context.Background(), "u1", o.ID)
	require.NoError(t, err)
	resp, body := call(t, e.srv, http.MethodPost, "/api/payments/initiate", "u1", `{"orderId":"`+o.ID+`"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "not_payable", body["error"])

	resp, _ = call(t, e.srv, http.MethodGet, "/api/orders/"+o.ID+"/payment", "u1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
