//go:build integration

package e2e

// e2e_test.go
// End-to-end integration tests using real Postgres + Redis via testcontainers.
// Run with: go test -tags integration ./tests/e2e/... -v
//
// These tests:
//   T-E2E-1: Full reservation cycle (adjust → reserve → query → release → movements)
//   T-E2E-2: Insufficient stock rejected with 409
//   T-E2E-3: Double release of one reservation rejected, counts intact
//   T-E2E-4: Adjust below reserved rejected
//   T-E2E-5: Bulk query keeps order and zero-fills unknown keys
//   T-E2E-6: Health endpoint reports both backing stores

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"context"

	"github.com/mironalin/BeamerParts-sub003/internal/config"
	"github.com/mironalin/BeamerParts-sub003/internal/infra"
	"github.com/mironalin/BeamerParts-sub003/internal/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// ── Helpers ──────────────────────────────────────────────────────────────────

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func do(t *testing.T, srv *httptest.Server, method, path string, body *bytes.Buffer) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, srv.URL+path, body)
	} else {
		req, err = http.NewRequest(method, srv.URL+path, nil)
	}
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

type snapshot struct {
	SKU        string `json:"sku"`
	VariantSKU string `json:"variant_sku"`
	Available  int    `json:"available"`
	Reserved   int    `json:"reserved"`
	Total      int    `json:"total"`
	InStock    bool   `json:"in_stock"`
	LowStock   bool   `json:"low_stock"`
}

// ── Test Suite Setup ─────────────────────────────────────────────────────────

func setupTestEnv(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	// Start Postgres container
	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("stock_test"),
		tcPostgres.WithUsername("stock"),
		tcPostgres.WithPassword("stock"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Start Redis container
	rdC, err := tcRedis.RunContainer(ctx,
		testcontainers.WithImage("redis:7-alpine"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Port:                         8000,
		Env:                          "test",
		WorkerPoolSize:               1,
		DatabaseURL:                  pgURL,
		RedisURL:                     rdURL,
		DefaultReservationTTLMinutes: 30,
		SweepIntervalSeconds:         60,
		SweepBatchSize:               100,
		SnapshotCacheTTLSeconds:      1,
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)

	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)

	srv := httptest.NewServer(router.New(cfg, db, rdb))
	t.Cleanup(srv.Close)
	return srv
}

func seedStock(t *testing.T, srv *httptest.Server, sku string, available int) {
	t.Helper()
	resp := do(t, srv, "POST", "/v1/stock/adjust", jsonBody(t, map[string]any{
		"sku":           sku,
		"new_available": available,
		"reason":        "test seed",
		"actor":         "e2e",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// ── Tests ────────────────────────────────────────────────────────────────────

// T-E2E-1: Full reservation cycle
func TestE2E_FullReservationCycle(t *testing.T) {
	srv := setupTestEnv(t)
	seedStock(t, srv, "BMW-F30-AC-001", 20)

	// 1. Reserve 5
	resResp := do(t, srv, "POST", "/v1/stock/reserve", jsonBody(t, map[string]any{
		"sku": "BMW-F30-AC-001", "quantity": 5, "holder_id": "user-1",
	}))
	require.Equal(t, http.StatusCreated, resResp.StatusCode)
	var res struct {
		ReservationID      string `json:"reservation_id"`
		RemainingAvailable int    `json:"remaining_available"`
	}
	decodeJSON(t, resResp, &res)
	require.NotEmpty(t, res.ReservationID)
	assert.Equal(t, 15, res.RemainingAvailable)

	// 2. Snapshot reflects the hold immediately
	qResp := do(t, srv, "GET", "/v1/stock/BMW-F30-AC-001", nil)
	require.Equal(t, http.StatusOK, qResp.StatusCode)
	var snap snapshot
	decodeJSON(t, qResp, &snap)
	assert.Equal(t, 15, snap.Available)
	assert.Equal(t, 5, snap.Reserved)
	assert.Equal(t, 20, snap.Total)

	// 3. Release the reservation
	relResp := do(t, srv, "POST", "/v1/stock/release", jsonBody(t, map[string]any{
		"reservation_id": res.ReservationID, "reason": "cart abandoned",
	}))
	require.Equal(t, http.StatusOK, relResp.StatusCode)
	relResp.Body.Close()

	// 4. Counts restored
	qResp = do(t, srv, "GET", "/v1/stock/BMW-F30-AC-001", nil)
	require.Equal(t, http.StatusOK, qResp.StatusCode)
	decodeJSON(t, qResp, &snap)
	assert.Equal(t, 20, snap.Available)
	assert.Equal(t, 0, snap.Reserved)

	// 5. Movement log holds seed, reserve and release
	movResp := do(t, srv, "GET", "/v1/stock/movements?sku=BMW-F30-AC-001", nil)
	require.Equal(t, http.StatusOK, movResp.StatusCode)
	var movements struct {
		Data []struct {
			Type     string `json:"type"`
			Quantity int    `json:"quantity"`
		} `json:"data"`
		Total int64 `json:"total"`
	}
	decodeJSON(t, movResp, &movements)
	require.Equal(t, int64(3), movements.Total)
	// newest first
	assert.Equal(t, "released", movements.Data[0].Type)
	assert.Equal(t, "reserved", movements.Data[1].Type)
	assert.Equal(t, "incoming", movements.Data[2].Type)
}

// T-E2E-2: Insufficient stock
func TestE2E_InsufficientStock(t *testing.T) {
	srv := setupTestEnv(t)
	seedStock(t, srv, "scarce-part", 2)

	resp := do(t, srv, "POST", "/v1/stock/reserve", jsonBody(t, map[string]any{
		"sku": "scarce-part", "quantity": 3, "holder_id": "user-1",
	}))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	qResp := do(t, srv, "GET", "/v1/stock/scarce-part", nil)
	var snap snapshot
	decodeJSON(t, qResp, &snap)
	assert.Equal(t, 2, snap.Available)
	assert.Equal(t, 0, snap.Reserved)
}

// T-E2E-3: Double release
func TestE2E_DoubleReleaseRejected(t *testing.T) {
	srv := setupTestEnv(t)
	seedStock(t, srv, "part-x", 10)

	resResp := do(t, srv, "POST", "/v1/stock/reserve", jsonBody(t, map[string]any{
		"sku": "part-x", "quantity": 4, "holder_id": "user-1",
	}))
	require.Equal(t, http.StatusCreated, resResp.StatusCode)
	var res struct {
		ReservationID string `json:"reservation_id"`
	}
	decodeJSON(t, resResp, &res)

	release := func() *http.Response {
		return do(t, srv, "POST", "/v1/stock/release", jsonBody(t, map[string]any{
			"reservation_id": res.ReservationID, "reason": "order cancelled",
		}))
	}

	first := release()
	require.Equal(t, http.StatusOK, first.StatusCode)
	first.Body.Close()

	second := release()
	assert.Equal(t, http.StatusConflict, second.StatusCode)
	second.Body.Close()

	qResp := do(t, srv, "GET", "/v1/stock/part-x", nil)
	var snap snapshot
	decodeJSON(t, qResp, &snap)
	assert.Equal(t, 10, snap.Available)
	assert.Equal(t, 0, snap.Reserved)
}

// T-E2E-4: Adjust below reserved
func TestE2E_AdjustBelowReservedRejected(t *testing.T) {
	srv := setupTestEnv(t)
	seedStock(t, srv, "part-y", 10)

	resResp := do(t, srv, "POST", "/v1/stock/reserve", jsonBody(t, map[string]any{
		"sku": "part-y", "quantity": 6, "holder_id": "user-1",
	}))
	require.Equal(t, http.StatusCreated, resResp.StatusCode)
	resResp.Body.Close()

	adjResp := do(t, srv, "POST", "/v1/stock/adjust", jsonBody(t, map[string]any{
		"sku": "part-y", "new_available": 3, "reason": "bad recount", "actor": "e2e",
	}))
	assert.Equal(t, http.StatusConflict, adjResp.StatusCode)
	adjResp.Body.Close()
}

// T-E2E-5: Bulk query
func TestE2E_BulkQuery(t *testing.T) {
	srv := setupTestEnv(t)
	seedStock(t, srv, "part-a", 5)
	seedStock(t, srv, "part-b", 0)

	resp := do(t, srv, "POST", "/v1/stock/query", jsonBody(t, map[string]any{
		"items": []map[string]any{
			{"sku": "part-b"},
			{"sku": "ghost-part"},
			{"sku": "part-a"},
		},
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Items []snapshot `json:"items"`
	}
	decodeJSON(t, resp, &body)
	require.Len(t, body.Items, 3)

	assert.Equal(t, "part-b", body.Items[0].SKU)
	assert.False(t, body.Items[0].InStock)
	assert.Equal(t, "ghost-part", body.Items[1].SKU)
	assert.Equal(t, 0, body.Items[1].Available)
	assert.Equal(t, "part-a", body.Items[2].SKU)
	assert.Equal(t, 5, body.Items[2].Available)

	// availability endpoint agrees
	avResp := do(t, srv, "GET", fmt.Sprintf("/v1/stock/%s/availability?quantity=5", "part-a"), nil)
	require.Equal(t, http.StatusOK, avResp.StatusCode)
	var av struct {
		Available bool `json:"available"`
	}
	decodeJSON(t, avResp, &av)
	assert.True(t, av.Available)
}

// T-E2E-6: Health endpoint
func TestE2E_Health(t *testing.T) {
	srv := setupTestEnv(t)

	resp := do(t, srv, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		OK      bool              `json:"ok"`
		Service string            `json:"service"`
		Checks  map[string]string `json:"checks"`
	}
	decodeJSON(t, resp, &body)
	assert.True(t, body.OK)
	assert.Equal(t, "stock-engine", body.Service)
	assert.Equal(t, "up", body.Checks["postgres"])
	assert.Equal(t, "up", body.Checks["redis"])
}
