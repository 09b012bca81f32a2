package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/service"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type staticValidator map[string]*models.JWTClaims

func (v staticValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := v[token]
	if !ok {
		return nil, appErrors.Wrap(errors.New("bad signature"), appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	return claims, nil
}

func newProtectedRouter(roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tokens := staticValidator{
		"admin":   {UserID: "u-1", Role: models.RoleAdmin},
		"teacher": {UserID: "u-2", Role: models.RoleTeacher},
	}
	r := gin.New()
	r.GET("/protected", JWT(tokens), RequireRoles(roles...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestJWTAndRoles(t *testing.T) {
	cases := []struct {
		name   string
		header string
		roles  []models.UserRole
		want   int
	}{
		{"missing header", "", nil, http.StatusUnauthorized},
		{"wrong scheme", "Basic admin", nil, http.StatusUnauthorized},
		{"empty bearer", "Bearer   ", nil, http.StatusUnauthorized},
		{"lowercase scheme", "bearer teacher", nil, http.StatusOK},
		{"unknown token", "Bearer nope", nil, http.StatusUnauthorized},
		{"any authenticated role", "Bearer teacher", nil, http.StatusOK},
		{"admin allowed", "Bearer admin", []models.UserRole{models.RoleAdmin, models.RoleSuperAdmin}, http.StatusOK},
		{"teacher forbidden", "Bearer teacher", []models.UserRole{models.RoleAdmin}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			newProtectedRouter(tc.roles...).ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestAuditLogsActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	tokens := staticValidator{"admin": {UserID: "u-1", Role: models.RoleAdmin}}

	r := gin.New()
	r.DELETE("/entries/:id", JWT(tokens), Audit(zap.New(core), "timetable.entry.delete"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodDelete, "/entries/e-1", nil)
	req.Header.Set("Authorization", "Bearer admin")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "timetable.entry.delete", fields["action"])
	assert.Equal(t, "u-1", fields["user_id"])
	assert.Equal(t, "e-1", fields["resource_id"])
	assert.Equal(t, int64(http.StatusNoContent), fields["status"])
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/metrics"))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/entries/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/entries/e-1", "/entries/e-2", "/nowhere", "/metrics"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/entries/:id",status="200"} 2`)
	assert.Contains(t, body, `path="unmatched",status="404"`)
	assert.False(t, strings.Contains(body, `path="/metrics"`))
	assert.False(t, strings.Contains(body, `path="/entries/e-1"`))
}
