package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/feral-file/territory-arbiter/internal/api/shared/errors"
	"github.com/feral-file/territory-arbiter/internal/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testKeys struct {
	private *rsa.PrivateKey
	pem     string
}

func newTestKeys(t *testing.T) testKeys {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	return testKeys{private: key, pem: string(block)}
}

func (k testKeys) sign(t *testing.T, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(k.private)
	require.NoError(t, err)
	return token
}

func TestAuthenticate(t *testing.T) {
	keys := newTestKeys(t)
	other := newTestKeys(t)
	now := time.Now()

	authenticator := NewAuthenticator(AuthConfig{
		JWTPublicKey: keys.pem,
		APIKeys:      []string{"ops-key", ""},
	})

	valid := keys.sign(t, jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})

	tests := []struct {
		name        string
		header      string
		wantSuccess bool
		wantType    string
		wantSubject string
	}{
		{name: "valid bearer token", header: "Bearer " + valid, wantSuccess: true, wantType: AUTH_TYPE_JWT, wantSubject: "alice"},
		{name: "scheme is case insensitive", header: "bearer " + valid, wantSuccess: true, wantType: AUTH_TYPE_JWT, wantSubject: "alice"},
		{name: "valid api key", header: "ApiKey ops-key", wantSuccess: true, wantType: AUTH_TYPE_APIKEY},
		{name: "unknown api key", header: "ApiKey nope"},
		{name: "empty api key is never accepted", header: "ApiKey "},
		{name: "missing header", header: ""},
		{name: "malformed header", header: "Bearer"},
		{name: "unsupported scheme", header: "Basic dXNlcjpwYXNz"},
		{
			name: "expired token",
			header: "Bearer " + keys.sign(t, jwt.SigningMethodRS256, jwt.RegisteredClaims{
				Subject:   "alice",
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
			}),
		},
		{
			name: "token without subject",
			header: "Bearer " + keys.sign(t, jwt.SigningMethodRS256, jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			}),
		},
		{
			name: "token signed by another key",
			header: "Bearer " + other.sign(t, jwt.SigningMethodRS256, jwt.RegisteredClaims{
				Subject: "mallory",
			}),
		},
		{
			name: "token with HMAC signature",
			header: "Bearer " + func() string {
				token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "mallory"}).SignedString([]byte(keys.pem))
				require.NoError(t, err)
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := authenticator.Authenticate(tt.header)
			assert.Equal(t, tt.wantSuccess, result.Success)
			if !tt.wantSuccess {
				assert.Error(t, result.Error)
				return
			}
			assert.NoError(t, result.Error)
			assert.Equal(t, tt.wantType, result.AuthType)
			assert.Equal(t, tt.wantSubject, result.AuthSubject)
		})
	}
}

func TestAuthenticate_WithoutPublicKey(t *testing.T) {
	authenticator := NewAuthenticator(AuthConfig{APIKeys: []string{"ops-key"}})

	result := authenticator.Authenticate("Bearer anything")
	assert.False(t, result.Success)
	assert.EqualError(t, result.Error, "JWT public key not configured")

	result = authenticator.Authenticate("ApiKey ops-key")
	assert.True(t, result.Success)

	broken := NewAuthenticator(AuthConfig{JWTPublicKey: "not a pem"})
	result = broken.Authenticate("Bearer anything")
	assert.False(t, result.Success)
	assert.ErrorContains(t, result.Error, "failed to parse RSA public key")
}

func TestAuthMiddleware(t *testing.T) {
	keys := newTestKeys(t)
	authenticator := NewAuthenticator(AuthConfig{JWTPublicKey: keys.pem, APIKeys: []string{"ops-key"}})

	router := gin.New()
	router.Use(RequestID())
	router.GET("/whoami", Auth(authenticator), func(c *gin.Context) {
		c.JSON(http.StatusOK, PrincipalFromContext(c))
	})

	t.Run("jwt caller", func(t *testing.T) {
		token := keys.sign(t, jwt.SigningMethodRS256, jwt.RegisteredClaims{Subject: "alice"})
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var principal Principal
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &principal))
		assert.Equal(t, Principal{Subject: "alice"}, principal)
	})

	t.Run("api key caller is privileged", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "ApiKey ops-key")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var principal Principal
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &principal))
		assert.True(t, principal.Privileged)
		assert.Empty(t, principal.Subject)
	})

	t.Run("rejected caller", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		var apiErr apierrors.APIError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
		assert.Equal(t, apierrors.ErrCodeUnauthorized, apiErr.Code)
		assert.Equal(t, "missing Authorization header", apiErr.Details)
		assert.NotEmpty(t, w.Header().Get(REQUEST_ID_HEADER))
	})
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Logger())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(REQUEST_ID_KEY))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(REQUEST_ID_HEADER, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(REQUEST_ID_HEADER))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Len(t, w.Body.String(), 36)
	assert.Equal(t, w.Body.String(), w.Header().Get(REQUEST_ID_HEADER))
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Recovery())
	router.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var apiErr apierrors.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, apierrors.ErrCodeInternalError, apiErr.Code)
}

func TestSetupCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantHeader string
	}{
		{name: "wildcard", origins: []string{"*"}, origin: "https://any.example.com", wantHeader: "*"},
		{name: "allowed origin", origins: []string{"https://game.example.com"}, origin: "https://game.example.com", wantHeader: "https://game.example.com"},
		{name: "foreign origin", origins: []string{"https://game.example.com"}, origin: "https://evil.example.com", wantHeader: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(SetupCORS(tt.origins))
			router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantHeader, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
