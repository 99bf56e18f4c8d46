package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hotelbook/internal/config"
	"hotelbook/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	permWebhookPayment    = "webhook:payment"
	clientKeyUnknown      = "unknown"
)

var (
	errMissingToken     = errors.New("missing bearer token")
	errInvalidToken     = errors.New("invalid token")
	errMissingAPIKey    = errors.New("missing api key headers")
	errInvalidAPIKey    = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
)

// Claims is the payload of a user bearer token. The subject is the numeric user id.
type Claims struct {
	Role        models.Role `json:"role"`
	PropertyIDs []int64     `json:"property_ids,omitempty"`
	Email       string      `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the verified caller of a user endpoint.
type Principal struct {
	Actor models.Actor
	Email string
}

// TokenAuth issues and verifies HS256 user tokens.
type TokenAuth struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenAuth(cfg config.JWTConfig) *TokenAuth {
	return &TokenAuth{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: cfg.TTL}
}

// Issue signs a token for actor. Used by operators and tests; user
// registration lives outside this service.
func (a *TokenAuth) Issue(actor models.Actor, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:        actor.Role,
		PropertyIDs: actor.PropertyIDs,
		Email:       email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(actor.UserID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if a.ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

func (a *TokenAuth) Verify(tokenString string) (*Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: bad subject", errInvalidToken)
	}

	role := claims.Role
	switch role {
	case "":
		role = models.RoleCustomer
	case models.RoleCustomer, models.RoleStaff, models.RoleSuperAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", errInvalidToken, role)
	}

	return &Principal{
		Actor: models.Actor{UserID: userID, Role: role, PropertyIDs: claims.PropertyIDs},
		Email: claims.Email,
	}, nil
}

// Authenticate reads the bearer token of r.
func (a *TokenAuth) Authenticate(r *http.Request) (*Principal, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, errMissingToken
	}
	return a.Verify(strings.TrimSpace(token))
}

// APIKeyAuth checks the api key and extra secret headers of machine clients.
type APIKeyAuth struct {
	cfg     config.APIAuthConfig
	clients map[string]config.APIClientKey
}

func NewAPIKeyAuth(cfg config.APIAuthConfig) *APIKeyAuth {
	m := make(map[string]config.APIClientKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		m[k.Key] = k
	}
	return &APIKeyAuth{cfg: cfg, clients: m}
}

func (a *APIKeyAuth) Authenticate(r *http.Request, permission string) (config.APIClientKey, error) {
	apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader()))
	extra := strings.TrimSpace(r.Header.Get(a.extraHeader()))
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingAPIKey
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidAPIKey
	}

	if !hasPermission(client, permission) {
		return client, errPermissionDenied
	}
	return client, nil
}

// identify returns the configured client whose key and extra secret match the
// request headers. Permissions are not checked.
func (a *APIKeyAuth) identify(r *http.Request) (config.APIClientKey, bool) {
	apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader()))
	if apiKey == "" {
		return config.APIClientKey{}, false
	}
	client, ok := a.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, false
	}
	extra := strings.TrimSpace(r.Header.Get(a.extraHeader()))
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, false
	}
	return client, true
}

// hasPermission treats an empty permission list as allow-all.
func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func (a *APIKeyAuth) apiKeyHeader() string {
	if h := strings.TrimSpace(a.cfg.HeaderAPIKey); h != "" {
		return h
	}
	return apiKeyHeaderDefault
}

func (a *APIKeyAuth) extraHeader() string {
	if h := strings.TrimSpace(a.cfg.HeaderExtra); h != "" {
		return h
	}
	return apiExtraHeaderDefault
}
