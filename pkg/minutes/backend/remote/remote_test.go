package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/credentials"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/resilience"
)

type staticKey string

func (k staticKey) APIKey() (string, error) { return string(k), nil }
func (k staticKey) Description() string     { return "static" }

func fastConfig(url string) Config {
	return Config{
		BaseURL: url,
		Timeout: time.Second,
		Breaker: resilience.BreakerConfig{Threshold: 2, ResetTimeout: time.Hour, HalfOpenSuccesses: 1},
		Retry:   resilience.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}
}

func TestClient_LoadInferUnload(t *testing.T) {
	var auth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "minutes/"))
		switch r.URL.Path {
		case "/v1/models/load":
			var req loadRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "roberta-base", req.Model)
			assert.Equal(t, backend.TaskClassify, req.Task)
			_ = json.NewEncoder(w).Encode(loadResponse{ID: "m-1", Device: "cuda:0"})
		case "/v1/infer":
			var req inferRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "m-1", req.ModelID)
			outs := make([]backend.Output, len(req.Inputs))
			for i := range outs {
				outs[i] = backend.Output{Labels: []backend.LabelScore{{Label: backend.LabelAction, Score: 0.9}}}
			}
			_ = json.NewEncoder(w).Encode(inferResponse{Outputs: outs})
		case "/v1/models/unload":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := New(fastConfig(server.URL), WithCredentials(staticKey("secret")))
	ctx := context.Background()

	ref, err := c.Load(ctx, "roberta-base", backend.TaskClassify)
	require.NoError(t, err)
	assert.Equal(t, "m-1", ref.ID)
	assert.Equal(t, "cuda:0", c.Device())

	outs, err := c.Infer(ctx, ref, []string{"a", "b"}, backend.Params{})
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.InDelta(t, 0.9, outs[1].Score(backend.LabelAction), 1e-9)

	require.NoError(t, c.Unload(ctx, ref))
	assert.Equal(t, "Bearer secret", auth.Load())
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(loadResponse{ID: "m-2"})
	}))
	defer server.Close()

	cfg := fastConfig(server.URL)
	cfg.Breaker.Threshold = 5
	c := New(cfg)

	ref, err := c.Load(context.Background(), "bart", backend.TaskGenerate)
	require.NoError(t, err)
	assert.Equal(t, "m-2", ref.ID)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "remote", c.Device())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown model", http.StatusNotFound)
	}))
	defer server.Close()

	c := New(fastConfig(server.URL))
	_, err := c.Load(context.Background(), "missing", backend.TaskTopics)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, resilience.Closed, c.BreakerState())
}

func TestClient_BreakerOpensOnRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(fastConfig(server.URL))
	_, err := c.Load(context.Background(), "m", backend.TaskTopics)
	require.Error(t, err)
	assert.Equal(t, resilience.Open, c.BreakerState())
	assert.ErrorIs(t, err, resilience.ErrOpen)
}

func TestClient_FreeMemory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/device", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(deviceResponse{Device: "cuda:0", FreeMemory: 8 << 30, HasGPU: true})
	}))
	defer server.Close()

	free, ok := New(fastConfig(server.URL)).FreeMemory()
	assert.True(t, ok)
	assert.Equal(t, uint64(8<<30), free)
}

func TestClient_MissingKeyIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(loadResponse{ID: "m-3"})
	}))
	defer server.Close()

	t.Setenv(credentials.EnvAPIKey, "")
	c := New(fastConfig(server.URL), WithCredentials(credentials.Chain{credentials.EnvSource{Var: credentials.EnvAPIKey}}))
	_, err := c.Load(context.Background(), "m", backend.TaskTopics)
	require.NoError(t, err)
}
