//nolint:testpackage // exercising middleware wiring directly
package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsight/callsight/internal/config"
	"github.com/callsight/callsight/internal/logger"
)

func TestHealthEndpoint(t *testing.T) {
	engine := New(config.ServiceConfig{Name: "callsight"}, logger.NewNop())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.Contains(t, w.Body.String(), `"service":"callsight"`)
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	engine := New(config.ServiceConfig{Name: "callsight"}, logger.NewNop())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "rep-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func protectedEngine(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/protected", RequireAuth(secret, logger.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return engine
}

func TestRequireAuth(t *testing.T) {
	const secret = "test-secret"
	engine := protectedEngine(secret)

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{"valid header token", "Bearer " + signToken(t, secret), "", http.StatusOK},
		{"valid query token", "", signToken(t, secret), http.StatusOK},
		{"missing token", "", "", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other-secret"), "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/protected"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			engine.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequireAuth_EmptySecretDisablesAuth(t *testing.T) {
	engine := protectedEngine("")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
