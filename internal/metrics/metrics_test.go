package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(UpsertResults.WithLabelValues("buyback", "inserted"))
	UpsertResults.WithLabelValues("buyback", "inserted").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(UpsertResults.WithLabelValues("buyback", "inserted")))
}

func TestServerExposesMetrics(t *testing.T) {
	PagesFetched.WithLabelValues("dividend").Inc()

	s := NewServer(":0")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "corpaction_pages_fetched_total"))
}

func TestPushWithoutURLIsNoop(t *testing.T) {
	assert.NoError(t, Push(context.Background(), "", "corpaction"))
}

func TestPushToGateway(t *testing.T) {
	var gotPath string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	require.NoError(t, Push(context.Background(), gw.URL, "corpaction"))
	assert.Equal(t, "/metrics/job/corpaction", gotPath)
}
