package page

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const devicePage = `<!DOCTYPE html>
<html><body>
<form action="/" method="post"><input name="count" value="100"></form>
<p>Files: <span id="files"> 42 </span></p>
<p>Recordings: <span id="recordings">abc</span></p>
</body></html>`

type deviceServer struct {
	gets  atomic.Int64
	posts atomic.Int64
	agent atomic.Value
}

func newDeviceServer(t *testing.T) (*deviceServer, *httptest.Server) {
	t.Helper()
	d := &deviceServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			d.gets.Add(1)
		case http.MethodPost:
			d.posts.Add(1)
		}
		d.agent.Store(r.UserAgent())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(devicePage))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return d, srv
}

func TestReadTarget(t *testing.T) {
	t.Parallel()

	device, srv := newDeviceServer(t)
	client := New(Config{UserAgent: "statuswatch-test"}, zap.NewNop())

	target, err := client.ReadTarget(context.Background(), srv.URL+"/", "#files")
	require.NoError(t, err)
	require.Equal(t, int64(42), target)
	require.Equal(t, "statuswatch-test", device.agent.Load())

	// Revisiting the same URL is allowed.
	_, err = client.ReadTarget(context.Background(), srv.URL+"/", "#files")
	require.NoError(t, err)
	require.Equal(t, int64(2), device.gets.Load())
}

func TestReadTargetErrors(t *testing.T) {
	t.Parallel()

	_, srv := newDeviceServer(t)
	client := New(Config{}, nil)

	_, err := client.ReadTarget(context.Background(), srv.URL+"/", "#measurements")
	require.ErrorIs(t, err, ErrTargetNotFound)

	_, err = client.ReadTarget(context.Background(), srv.URL+"/", "#recordings")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrTargetNotFound)

	_, err = client.ReadTarget(context.Background(), srv.URL+"/missing", "#files")
	require.Error(t, err)
}

func TestReloaderIssuesPlainGet(t *testing.T) {
	t.Parallel()

	device, srv := newDeviceServer(t)
	reloader := New(Config{}, nil).Reloader(srv.URL + "/")

	require.NoError(t, reloader.Reload(context.Background()))
	require.NoError(t, reloader.Reload(context.Background()))
	require.Equal(t, int64(2), device.gets.Load())
	require.Zero(t, device.posts.Load())
}

func TestReloaderReportsFailures(t *testing.T) {
	t.Parallel()

	_, srv := newDeviceServer(t)
	reloader := New(Config{}, nil).Reloader(srv.URL + "/missing")
	require.Error(t, reloader.Reload(context.Background()))
}

func TestReloadHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	device, srv := newDeviceServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, New(Config{}, nil).Reloader(srv.URL+"/").Reload(ctx))
	require.Zero(t, device.gets.Load())
}
