package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"deadline-planner/internal/metrics"
)

func TestRouter(t *testing.T) {
	m := metrics.New()
	m.Dispatched(metrics.OutcomeSent)

	var pingErr error
	handler := NewRouter(func(context.Context) error { return pingErr }, m.Registry, "test")

	tests := []struct {
		name    string
		path    string
		pingErr error
		status  int
		body    string
	}{
		{name: "liveness", path: "/healthz", status: http.StatusOK, body: `"version":"test"`},
		{name: "ready", path: "/readyz", status: http.StatusOK, body: `"ready"`},
		{name: "not ready", path: "/readyz", pingErr: errors.New("database is closed"), status: http.StatusServiceUnavailable, body: "database is closed"},
		{name: "metrics", path: "/metrics", status: http.StatusOK, body: `deadline_planner_notifications_total{outcome="sent"} 1`},
		{name: "unknown", path: "/nope", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pingErr = tt.pingErr
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.True(t, strings.Contains(rec.Body.String(), tt.body), rec.Body.String())
			}
		})
	}
}

func TestServerRunStopsOnCancel(t *testing.T) {
	srv := New("127.0.0.1:0", http.NotFoundHandler(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
