package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	require.NotNil(t, httpRequestsTotal)
	require.NotNil(t, httpRequestDurationSeconds)
	require.NotNil(t, buildInfo)
}

func TestSetBuildInfo(t *testing.T) {
	SetBuildInfo("v0.0.0-test")
	require.InDelta(t, 1.0, testutil.ToFloat64(buildInfo.WithLabelValues("v0.0.0-test")), 1e-9)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `statuswatch_build_info{version="v0.0.0-test"} 1`))
}
