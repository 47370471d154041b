package handler

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/easytransac/easytransac-bridge/easytransac"
	"github.com/easytransac/easytransac-bridge/gateway"
	"github.com/easytransac/easytransac-bridge/infra/config"
	"github.com/easytransac/easytransac-bridge/store"
)

const testAPIKey = "secret"

type testEnv struct {
	gateway *gateway.Gateway
	store   *store.Store
	db      *sql.DB
}

func testGatewaySettings() config.GatewaySettings {
	return config.GatewaySettings{
		APIKey:    testAPIKey,
		ReturnURL: "https://shop.example.com/checkout/complete",
		HomeURL:   "https://shop.example.com/",
	}
}

func newTestEnv(t *testing.T, apiBaseURL string) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	require.NoError(t, s.Migrate(context.Background()))

	opts := []easytransac.Option{}
	if apiBaseURL != "" {
		opts = append(opts, easytransac.WithBaseURL(apiBaseURL))
	}
	api, err := easytransac.NewClient(testAPIKey, opts...)
	require.NoError(t, err)

	return &testEnv{
		gateway: gateway.New(api, s, nil, testGatewaySettings()),
		store:   s,
		db:      db,
	}
}

func newValidator() *validator.Validate {
	return validator.New()
}
