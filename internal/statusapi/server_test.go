package statusapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odcproject/odc/internal/controller"
)

type fakeSource struct {
	status map[string]string
	stats  *controller.Stats
}

func (f *fakeSource) Status(ctx context.Context) map[string]string { return f.status }
func (f *fakeSource) Stats() *controller.Stats                     { return f.stats }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthEndpointIsUnauthenticated(t *testing.T) {
	src := &fakeSource{status: map[string]string{"p1": "Active"}, stats: controller.NewStats()}
	s := NewServer(src, nil, nil, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusRequiresSessionToken(t *testing.T) {
	src := &fakeSource{status: map[string]string{"p1": "Active"}, stats: controller.NewStats()}
	issuer, err := NewTokenIssuer("op-token", []byte("key"), time.Minute)
	require.NoError(t, err)
	s := NewServer(src, issuer, nil, nil, testLogger())
	router := s.router()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	loginReq := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"token":"op-token"}`))
	loginReq.Header.Set("Content-Type", "application/json")
	loginRec := httptest.NewRecorder()
	router.ServeHTTP(loginRec, loginReq)
	require.Equal(t, http.StatusOK, loginRec.Code)

	var body struct {
		SessionToken string `json:"session_token"`
	}
	require.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &body))

	req2 := httptest.NewRequest(http.MethodGet, "/status", nil)
	req2.Header.Set("Authorization", "Bearer "+body.SessionToken)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "Active")
}
