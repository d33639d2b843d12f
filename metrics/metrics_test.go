package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(creditsGranted.WithLabelValues("medium"))
	RecordCreditsGranted("medium", 25)
	assert.Equal(t, before+25, testutil.ToFloat64(creditsGranted.WithLabelValues("medium")))

	before = testutil.ToFloat64(songsSubmitted.WithLabelValues("7.5"))
	RecordSongSubmitted(7.5)
	assert.Equal(t, before+1, testutil.ToFloat64(songsSubmitted.WithLabelValues("7.5")))

	before = testutil.ToFloat64(sweepRedispatched)
	RecordSweepRedispatch(3)
	assert.Equal(t, before+3, testutil.ToFloat64(sweepRedispatched))
}

func TestHandlerExposesNamespace(t *testing.T) {
	RecordOrder("credited")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `songforge_orders_total{result="credited"}`)
}
