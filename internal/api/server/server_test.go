package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/territory-arbiter/internal/api/middleware"
	"github.com/feral-file/territory-arbiter/internal/api/rest"
	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/logger"
	"github.com/feral-file/territory-arbiter/internal/mocks"
	"github.com/feral-file/territory-arbiter/internal/territory"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) (*Server, *mocks.MockClaimArbiter, *mocks.MockGeoIndex) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	arb := mocks.NewMockClaimArbiter(ctrl)
	index := mocks.NewMockGeoIndex(ctrl)
	clock := mocks.NewMockClock(ctrl)
	clock.EXPECT().Now().Return(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)).AnyTimes()

	handler := rest.NewHandler(rest.Config{DefaultRadius: 500, MaxRadius: 5000}, rest.Deps{
		Arbiter: arb,
		Store:   mocks.NewMockStore(ctrl),
		Index:   index,
		Machine: territory.NewMachine(territory.Config{GracePeriod: territory.DEFAULT_GRACE_PERIOD}),
		Clock:   clock,
	})

	srv := New(Config{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		IdleTimeout:  time.Second,
		Auth:         middleware.AuthConfig{APIKeys: []string{"operator-key"}},
	}, handler, nil)

	return srv, arb, index
}

func TestServer_Health(t *testing.T) {
	srv, _, index := newTestServer(t)
	index.EXPECT().Len().Return(7)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"territory-api","indexed_territories":7,"websocket_subscribers":0}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.REQUEST_ID_HEADER))
}

func TestServer_ClaimRequiresAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_OperatorClaim(t *testing.T) {
	srv, arb, _ := newTestServer(t)
	arb.EXPECT().Claim(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, attempt domain.ClaimAttempt) (*domain.ClaimResult, error) {
			assert.Equal(t, "carol", attempt.UserID)
			assert.False(t, attempt.Privileged)
			return &domain.ClaimResult{Success: true, OwnerID: "carol", TerritoryVersion: 1, TrustScore: 50, Reason: domain.ReasonClaimed}, nil
		})

	body := `{"territory_id":"plaza","user_id":"carol","device_id":"pixel","lat":45.46,"lon":9.19,"accuracy":4,"client_timestamp":"2026-09-01T09:59:59Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "ApiKey operator-key")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reason_code":"claimed"`)
}

func TestServer_WithoutHubHasNoFeed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/ownership", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}
