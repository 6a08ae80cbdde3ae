package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"appointment-duration-api/config"
	"appointment-duration-api/metrics"
	"appointment-duration-api/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth() *services.AuthService {
	return services.NewAuthService(config.JWTConfig{Secret: "mw-secret", ExpiryHours: 1}, config.AdminConfig{})
}

func guardedRouter(auth *services.AuthService) *gin.Engine {
	r := gin.New()
	r.GET("/admin", RequireRole(auth, services.RoleAdmin), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextEmail))
	})
	return r
}

func TestRequireRole(t *testing.T) {
	auth := newAuth()
	r := guardedRouter(auth)

	adminToken, err := auth.GenerateToken("ops@clinic.test", services.RoleAdmin)
	require.NoError(t, err)
	viewerToken, err := auth.GenerateToken("viewer@clinic.test", services.RoleViewer)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + viewerToken, http.StatusForbidden},
		{"admin", "Bearer " + adminToken, http.StatusOK},
		{"lowercase scheme", "bearer " + adminToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "ops@clinic.test", w.Body.String())
			}
		})
	}
}

func TestSetupCORS(t *testing.T) {
	for _, tc := range []struct {
		origins string
		origin  string
		want    string
	}{
		{"*", "https://anywhere.example", "*"},
		{"https://clinic.example", "https://clinic.example", "https://clinic.example"},
		{"https://clinic.example", "https://evil.example", ""},
	} {
		r := gin.New()
		r.Use(SetupCORS(config.CORSConfig{AllowedOrigins: tc.origins}))
		r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", tc.origin)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Header().Get("Access-Control-Allow-Origin"), "origins=%s origin=%s", tc.origins, tc.origin)
	}
}

func TestRequestMetrics(t *testing.T) {
	r := gin.New()
	r.Use(RequestMetrics(zerolog.New(io.Discard)))
	r.GET("/model-info", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := metrics.HTTPRequests.WithLabelValues("/model-info", "200")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/model-info", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
