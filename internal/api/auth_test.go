package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hotelbook/internal/config"
	"hotelbook/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func TestTokenAuth(t *testing.T) {
	auth := NewTokenAuth(config.JWTConfig{Secret: testSecret, Issuer: "hotelbook", TTL: time.Hour})
	staff := models.Actor{UserID: 9, Role: models.RoleStaff, PropertyIDs: []int64{1, 3}}

	t.Run("RoundTrip", func(t *testing.T) {
		tok, err := auth.Issue(staff, "ops@example.com")
		require.NoError(t, err)

		p, err := auth.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, staff, p.Actor)
		assert.Equal(t, "ops@example.com", p.Email)
	})

	t.Run("RoleDefaultsToCustomer", func(t *testing.T) {
		tok, err := auth.Issue(models.Actor{UserID: 4}, "")
		require.NoError(t, err)
		p, err := auth.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, models.RoleCustomer, p.Actor.Role)
	})

	t.Run("UnknownRole", func(t *testing.T) {
		tok, err := auth.Issue(models.Actor{UserID: 4, Role: "owner"}, "")
		require.NoError(t, err)
		_, err = auth.Verify(tok)
		assert.ErrorIs(t, err, errInvalidToken)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		tok, err := NewTokenAuth(config.JWTConfig{Secret: testSecret, Issuer: "elsewhere"}).Issue(staff, "")
		require.NoError(t, err)
		_, err = auth.Verify(tok)
		assert.ErrorIs(t, err, errInvalidToken)
	})

	t.Run("BadSubject", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", Issuer: "hotelbook"}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = auth.Verify(tok)
		assert.ErrorIs(t, err, errInvalidToken)
	})

	t.Run("NoneAlgorithm", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: "hotelbook"}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = auth.Verify(tok)
		assert.ErrorIs(t, err, errInvalidToken)
	})

	t.Run("Header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		_, err := auth.Authenticate(r)
		assert.ErrorIs(t, err, errMissingToken)

		r.Header.Set("Authorization", "Basic abc")
		_, err = auth.Authenticate(r)
		assert.ErrorIs(t, err, errMissingToken)
	})
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := testAPIConfig()
	cfg.Auth.APIKeys = append(cfg.Auth.APIKeys, config.APIClientKey{Key: "root-key", Extra: "root-extra", Name: "root"})
	auth := NewAPIKeyAuth(cfg.Auth)

	tests := []struct {
		name    string
		key     string
		extra   string
		wantErr error
	}{
		{"valid", "gateway-key", "gateway-extra", nil},
		{"missing extra", "gateway-key", "", errMissingAPIKey},
		{"unknown key", "nope", "gateway-extra", errInvalidAPIKey},
		{"wrong extra", "gateway-key", "report-extra", errInvalidAPIKey},
		{"lacks permission", "report-key", "report-extra", errPermissionDenied},
		{"empty permissions allow all", "root-key", "root-extra", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/webhook/payment/1/confirm", nil)
			if tt.key != "" {
				r.Header.Set("X-Api-Key", tt.key)
			}
			if tt.extra != "" {
				r.Header.Set("X-Api-Extra", tt.extra)
			}
			_, err := auth.Authenticate(r, permWebhookPayment)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 0.001, Burst: 1})
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	off := newRateLimiter(config.APIRateLimitConfig{})
	for i := 0; i < 10; i++ {
		assert.True(t, off.Allow("a"))
	}
}

func TestRateLimiter_PrunesIdleBuckets(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 1, Burst: 1})
	l.now = func() time.Time { return now }
	l.lastPrune.Store(now.UnixNano())

	for i := 0; i < 100; i++ {
		l.Allow(fmt.Sprintf("10.0.0.%d", i))
	}
	assert.Equal(t, 100, l.size())

	now = now.Add(limiterIdleTTL + time.Second)
	assert.True(t, l.Allow("10.0.1.1"))
	assert.Equal(t, 1, l.size())
}

func TestAPIKeyAuth_Identify(t *testing.T) {
	keys := NewAPIKeyAuth(testAPIConfig().Auth)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	_, ok := keys.identify(req)
	assert.False(t, ok)

	req.Header.Set("x-api-key", "forged")
	_, ok = keys.identify(req)
	assert.False(t, ok)

	req.Header.Set("x-api-key", "report-key")
	req.Header.Set("x-api-extra", "gateway-extra")
	_, ok = keys.identify(req)
	assert.False(t, ok, "extra secret of another client")

	req.Header.Set("x-api-extra", "report-extra")
	client, ok := keys.identify(req)
	require.True(t, ok)
	assert.Equal(t, "reports", client.Name)
}

func TestUnaryInterceptors(t *testing.T) {
	limited := RateLimitUnaryInterceptor(newRateLimiter(config.APIRateLimitConfig{RPS: 0.001, Burst: 1}))
	chain := ChainUnaryInterceptors(LoggingUnaryInterceptor(nil), limited)

	var calls []string
	handler := func(_ context.Context, req any) (any, error) {
		calls = append(calls, req.(string))
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 5000}})

	resp, err := chain(ctx, "first", info, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	// same host on another port shares the bucket
	other := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 5001}})
	_, err = chain(other, "second", info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Equal(t, []string{"first"}, calls)
}
