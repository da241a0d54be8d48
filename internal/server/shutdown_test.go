package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdown_ClosesInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig(), nil)
	var order []string
	for _, name := range []string{"source", "http", "grpc"} {
		sm.RegisterCloser(name, CloserFunc(func() error {
			order = append(order, name)
			return nil
		}))
	}

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	assert.Equal(t, []string{"grpc", "http", "source"}, order)
	assert.True(t, sm.IsShuttingDown())

	select {
	case <-sm.ShutdownCh():
	default:
		t.Fatal("shutdown channel not closed")
	}
}

func TestShutdown_OnlyOnceAndReportsFirstError(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig(), nil)
	calls := 0
	sm.RegisterCloser("a", CloserFunc(func() error { calls++; return errors.New("a failed") }))
	sm.RegisterCloser("b", CloserFunc(func() error { calls++; return errors.New("b failed") }))

	err := sm.Shutdown(context.Background(), "first")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close b")
	assert.Equal(t, err, sm.Shutdown(context.Background(), "second"))
	assert.Equal(t, 2, calls)
}

func TestShutdown_WaitsForInFlight(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: time.Second}, nil)
	require.True(t, sm.TrackRequest())

	go func() {
		time.Sleep(100 * time.Millisecond)
		sm.UntrackRequest()
	}()

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	assert.Zero(t, sm.InFlightCount())
	assert.False(t, sm.TrackRequest(), "no new requests after shutdown")
}

func TestShutdown_DrainTimeout(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 60 * time.Millisecond}, nil)
	require.True(t, sm.TrackRequest())

	err := sm.Shutdown(context.Background(), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 in-flight")
}

func TestShutdownMiddleware(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig(), nil)
	h := ShutdownMiddleware(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.EqualValues(t, 1, sm.InFlightCount())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, sm.InFlightCount())

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
}
