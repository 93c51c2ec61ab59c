package genapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mirage/internal/core"
)

func TestStartStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/ai/stream/start", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "a glass city at dusk", req["prompt"])
		require.Equal(t, "medium", req["quality"])
		require.Equal(t, float64(30), req["duration"])

		json.NewEncoder(w).Encode(map[string]string{
			"stream_id": "st-42",
			"whep_url":  "http://media.test/whep/st-42",
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	started, err := c.StartStream(context.Background(), "a glass city at dusk", "medium", 30)
	require.NoError(t, err)
	require.Equal(t, "st-42", started.StreamID)
	require.Equal(t, "http://media.test/whep/st-42", started.WHEPURL)
}

func TestStartStreamNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.StartStream(context.Background(), "p", "medium", 30)
	require.ErrorIs(t, err, core.ErrGenerationAPI)
}

func TestStartStreamMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.StartStream(context.Background(), "p", "medium", 30)
	require.ErrorIs(t, err, core.ErrGenerationAPI)
}

func TestStartStreamMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"stream_id": "st-42"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.StartStream(context.Background(), "p", "medium", 30)
	require.ErrorIs(t, err, core.ErrGenerationAPI)
}

func TestStreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ai/stream/st-42/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"state": "running", "fps": 10})
	}))
	defer srv.Close()

	c := New(srv.URL)
	status, err := c.StreamStatus(context.Background(), "st-42")
	require.NoError(t, err)
	require.Equal(t, "running", status["state"])
}

func TestStreamStatusFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.StreamStatus(context.Background(), "st-42")
	require.ErrorIs(t, err, core.ErrGenerationAPI)
}
