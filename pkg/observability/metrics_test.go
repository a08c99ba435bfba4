package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	m.WebhookEventsTotal.WithLabelValues("payment_succeeded", "applied").Inc()
	m.ObserveHTTPRequest("POST", "/webhooks/billing", 200, 25*time.Millisecond)
	m.ObserveStorageOperation("upsert", nil, 5*time.Millisecond)
	m.ObserveStorageOperation("upsert", errors.New("down"), 5*time.Millisecond)
	m.StorageRetriesTotal.Inc()

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	assert.True(t, names["accounts_webhook_events_total"])
	assert.True(t, names["accounts_http_requests_total"])
	assert.True(t, names["accounts_storage_operations_total"])
	assert.True(t, names["accounts_storage_retries_total"])
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.QuotaRolloversTotal.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "accounts_quota_rollovers_total 1")
}
