package router

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easytransac/easytransac-bridge/easytransac"
	"github.com/easytransac/easytransac-bridge/gateway"
	"github.com/easytransac/easytransac-bridge/handler"
	"github.com/easytransac/easytransac-bridge/infra/config"
	"github.com/easytransac/easytransac-bridge/store"
)

func newTestRouter(t *testing.T) (chi.Router, *store.Store) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	require.NoError(t, s.Migrate(context.Background()))

	api, err := easytransac.NewClient("sk_test")
	require.NoError(t, err)

	g := gateway.New(api, s, nil, config.GatewaySettings{APIKey: "sk_test"})
	v := validator.New()

	r := chi.NewRouter()
	Routes(r, Handlers{
		Checkout: handler.NewCheckoutHandler(g, v),
		Orders:   handler.NewOrderHandler(s, g, v),
		Cards:    handler.NewCardsHandler(g),
	})
	return r, s
}

func TestRoutes(t *testing.T) {
	router, s := newTestRouter(t)
	require.NoError(t, s.CreateOrder(context.Background(), &store.Order{ID: 1, TotalCents: 100}))

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/v1/orders/1", http.StatusOK},
		{http.MethodGet, "/v1/orders/999", http.StatusNotFound},
		{http.MethodGet, "/v1/orders/1/notes", http.StatusOK},
		{http.MethodGet, "/v1/users/7/cards", http.StatusOK},
		{http.MethodPost, "/v1/checkout", http.StatusBadRequest},
		{http.MethodPost, "/v1/checkout/oneclick", http.StatusBadRequest},
		{http.MethodPost, "/v1/orders/1/refund", http.StatusBadRequest},
		{http.MethodGet, "/v1/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
