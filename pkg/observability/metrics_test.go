package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	m.ParamsDroppedTotal.WithLabelValues("Article", "unauthorized").Inc()
	m.CacheHitsTotal.WithLabelValues("dispatch").Inc()

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.ParamsDroppedTotal.WithLabelValues("Article", "unauthorized")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("dispatch")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	handler := HTTPMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search/articles", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/search/articles", "418")))
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	rec := httptest.NewRecorder()
	MetricsHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
