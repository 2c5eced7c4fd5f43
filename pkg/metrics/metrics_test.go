package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_CountsByRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/abc", nil))
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(m.Requests.WithLabelValues("/orders/{id}", "418")))
}

func TestNop_IsUsable(t *testing.T) {
	m := Nop()
	m.Finalizations.WithLabelValues("confirmed").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Finalizations.WithLabelValues("confirmed")))
}
