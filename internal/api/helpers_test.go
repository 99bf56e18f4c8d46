package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"hotelbook/internal/config"
	"hotelbook/internal/database"
	"hotelbook/internal/export"
	"hotelbook/internal/models"
	"hotelbook/internal/repository"
	"hotelbook/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "gateway-key", Extra: "gateway-extra", Name: "gateway", Permissions: []string{permWebhookPayment}},
				{Key: "report-key", Extra: "report-extra", Name: "reports", Permissions: []string{"read:reports"}},
			},
		},
		JWT:       config.JWTConfig{Secret: testSecret, Issuer: "hotelbook", TTL: time.Hour},
		RateLimit: config.APIRateLimitConfig{RPS: 1000, Burst: 1000},
	}
}

func testInventory() models.Inventory {
	return models.Inventory{
		Properties: []models.Property{{ID: 1, Name: "Seaside", IsActive: true}},
		RoomTypes: []models.RoomType{
			{ID: 10, PropertyID: 1, Name: "Double", Price: 100, MaxOccupancy: 2, IsActive: true},
		},
		Rooms: []models.Room{
			{ID: 7, RoomTypeID: 10, Name: "107", IsActive: true},
			{ID: 8, RoomTypeID: 10, Name: "108", IsActive: true},
		},
	}
}

type testEnv struct {
	ts     *httptest.Server
	db     *database.DB
	tokens *TokenAuth
	server *HTTPServer
}

func newTestEnv(t *testing.T, cfg config.APIConfig, checks ...HealthCheck) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.UpsertInventory(context.Background(), testInventory()))

	locker := repository.NewMemoryRoomLocker(15 * time.Minute)
	bookings := service.NewBookingService(db, locker, nil, nil, config.BookingConfig{HoldDuration: 15 * time.Minute}, &logger)
	payments := service.NewPaymentService(db, db, locker, nil, nil, &logger)

	server := NewHTTPServer(&cfg, Services{
		Bookings:     bookings,
		Payments:     payments,
		Availability: service.NewAvailabilityService(db, &logger),
		Exporter:     export.NewBookingExporter(db, t.TempDir(), &logger),
		Checks:       checks,
	}, &logger)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, db: db, tokens: NewTokenAuth(cfg.JWT), server: server}
}

func (e *testEnv) token(t *testing.T, actor models.Actor) string {
	t.Helper()
	tok, err := e.tokens.Issue(actor, "")
	require.NoError(t, err)
	return tok
}

func customer(id int64) models.Actor {
	return models.Actor{UserID: id, Role: models.RoleCustomer}
}

// do sends a request with an optional bearer token and JSON body.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers ...string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func bookingBody(checkIn, checkOut string, guests int, rooms ...int64) map[string]any {
	return map[string]any{"room_ids": rooms, "checkin": checkIn, "checkout": checkOut, "num_guests": guests}
}
