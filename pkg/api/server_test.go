package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/ids"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend/lexical"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/engine"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/queue"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/store"
)

type fakeEngine struct {
	err    error
	health engine.Health
	resets int
	seen   []types.Transcript
}

func (e *fakeEngine) Process(_ context.Context, t types.Transcript) (*types.MinutesResult, error) {
	e.seen = append(e.seen, t)
	if e.err != nil {
		return nil, e.err
	}
	return &types.MinutesResult{ID: "res-1", MeetingID: t.MeetingID}, nil
}

func (e *fakeEngine) Health() engine.Health { return e.health }

func (e *fakeEngine) PerformanceMetrics() map[string]stage.StatsSnapshot {
	return map[string]stage.StatsSnapshot{types.StageTopicDetection: {TotalProcessed: 3}}
}

func (e *fakeEngine) ResetPerformanceMetrics() { e.resets++ }

type fakeUpdater struct {
	slots  stage.Set
	out    update.Outcome
	err    error
	stage  string
	config stage.Config
	opts   update.Options
}

func (u *fakeUpdater) UpdateModel(_ context.Context, name string, cfg stage.Config, opts update.Options) (update.Outcome, error) {
	u.stage, u.config, u.opts = name, cfg, opts
	return u.out, u.err
}

func (u *fakeUpdater) Status() []update.Status {
	return []update.Status{{Stage: types.StageTopicDetection, State: stage.Stable, Model: "bert-base-uncased", Version: 1}}
}

func (u *fakeUpdater) Slots() stage.Set { return u.slots }

func newUpdater(t *testing.T) *fakeUpdater {
	t.Helper()
	slots, err := stage.LoadSet(context.Background(), lexical.New(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(slots.Close)
	return &fakeUpdater{slots: slots}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestProcess(t *testing.T) {
	eng := &fakeEngine{}
	h := NewServer(eng).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/process", `{"meeting_id":"m-1","text":"We approved the budget."}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var res types.MinutesResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "m-1", res.MeetingID)
	require.Len(t, eng.seen, 1)
	assert.Equal(t, "We approved the budget.", eng.seen[0].Text)
}

func TestProcess_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		kind      string
		retryable bool
		message   string
	}{
		{
			name:    "invalid input",
			err:     merrors.InvalidInput("transcript text is empty"),
			status:  http.StatusBadRequest,
			kind:    "INVALID_INPUT",
			message: "transcript text is empty",
		},
		{
			name:    "quality gate",
			err:     merrors.QualityBelowThreshold([]string{"topic relevance 0.700 below target 0.950"}),
			status:  http.StatusUnprocessableEntity,
			kind:    "QUALITY_BELOW_THRESHOLD",
			message: "topic relevance",
		},
		{
			name:      "stage failure hides internals",
			err:       merrors.StageFailure(types.StageSummaryGeneration, errors.New("model bart-large oom at /opt/models")),
			status:    http.StatusInternalServerError,
			kind:      "STAGE_FAILURE",
			retryable: true,
		},
		{
			name:   "unclassified",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			kind:   "INTERNAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewServer(&fakeEngine{err: tt.err}).Handler()
			rec := do(t, h, http.MethodPost, "/api/v1/process", `{"meeting_id":"m","text":"x"}`)

			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.kind, body.Error.Kind)
			assert.Equal(t, tt.retryable, body.Error.Retryable)
			assert.NotContains(t, body.Error.Message, "/opt/models")
			if tt.message != "" {
				assert.Contains(t, body.Error.Message, tt.message)
			}
		})
	}
}

func TestProcess_MalformedBody(t *testing.T) {
	eng := &fakeEngine{}
	h := NewServer(eng).Handler()

	for _, body := range []string{"", "{", `{"text": 5}`} {
		rec := do(t, h, http.MethodPost, "/api/v1/process", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Error.Kind)
	}
	assert.Empty(t, eng.seen)

	big := fmt.Sprintf(`{"meeting_id":"m","text":"%s"}`, strings.Repeat("a", MaxBodyBytes))
	rec := do(t, h, http.MethodPost, "/api/v1/process", big)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error.Message, "exceeds")
}

func TestProcess_MethodNotAllowed(t *testing.T) {
	h := NewServer(&fakeEngine{}).Handler()
	rec := do(t, h, http.MethodGet, "/api/v1/process", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEnqueue(t *testing.T) {
	q := queue.NewMemoryQueue(queue.DefaultConfig("minutes:jobs"))
	h := NewServer(&fakeEngine{}, WithQueue(q)).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/jobs", `{"meeting_id":"m-1","text":"Notes.","priority":"high"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp EnqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "minutes:jobs", resp.Queue)
	assert.Equal(t, "m-1", resp.MeetingID)

	jobs, err := q.Dequeue(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, resp.JobID, jobs[0].ID)
	assert.Equal(t, queue.PriorityHigh, jobs[0].Priority)
	assert.Equal(t, "Notes.", jobs[0].Transcript.Text)
}

func TestEnqueue_Rejections(t *testing.T) {
	q := queue.NewMemoryQueue(queue.DefaultConfig("q"))
	h := NewServer(&fakeEngine{}, WithQueue(q)).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/jobs", `{"meeting_id":"m","text":"x","priority":"urgent"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/jobs", `{"meeting_id":"m","text":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, NewServer(&fakeEngine{}).Handler(), http.MethodPost, "/api/v1/jobs", `{"meeting_id":"m","text":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMinutesEndpoints(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	var saved []string
	for i, meeting := range []string{"m-1", "m-1", "m-2"} {
		id := ids.New(ids.KindMinutes)
		saved = append(saved, id)
		require.NoError(t, st.SaveMinutes(ctx, &types.MinutesResult{
			ID:        id,
			MeetingID: meeting,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}
	h := NewServer(&fakeEngine{}, WithMinutes(st)).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/minutes/"+saved[2], "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res types.MinutesResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "m-2", res.MeetingID)

	rec = do(t, h, http.MethodGet, "/api/v1/minutes/"+ids.New(ids.KindMinutes), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Kind)

	rec = do(t, h, http.MethodGet, "/api/v1/minutes/not-an-id", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/minutes?meeting_id=m-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Minutes []types.MinutesResult `json:"minutes"`
		Count   int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	rec = do(t, h, http.MethodGet, "/api/v1/minutes?meeting_id=m-1&limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/minutes", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModelEndpoints(t *testing.T) {
	u := newUpdater(t)
	u.out = update.Outcome{Stage: types.StageTopicDetection, Result: update.Committed, Model: "bert-large-uncased", Version: 2}
	h := NewServer(&fakeEngine{}, WithUpdater(u)).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bert-base-uncased")

	rec = do(t, h, http.MethodPost, "/api/v1/models/topic_detection", `{"model_name":"bert-large-uncased","reason":"drift"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The active configuration is kept apart from the model name.
	want := stage.DefaultConfig(types.StageTopicDetection)
	want.ModelName = "bert-large-uncased"
	assert.Equal(t, types.StageTopicDetection, u.stage)
	assert.Equal(t, want, u.config)
	assert.Equal(t, "drift", u.opts.Reason)

	var out update.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, update.Committed, out.Result)
	assert.Equal(t, int64(2), out.Version)
}

func TestModelEndpoints_RolledBack(t *testing.T) {
	u := newUpdater(t)
	u.out = update.Outcome{Stage: types.StageSummaryGeneration, Result: update.RolledBack, Reason: "model load failed"}
	u.err = merrors.ModelUpdateFailure(types.StageSummaryGeneration, "model load failed", errors.New("no such model"))
	h := NewServer(&fakeEngine{}, WithUpdater(u)).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/models/summary_generation",
		`{"config":{"model_name":"t5-small","confidence_threshold":0.8,"performance_target":0.85,"batch_size":8,"device":"cpu"},"force":true}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "t5-small", u.config.ModelName)
	assert.True(t, u.opts.Force)

	body := decodeError(t, rec)
	assert.Equal(t, "MODEL_UPDATE_FAILURE", body.Error.Kind)
	require.NotNil(t, body.Outcome)
	assert.Equal(t, update.RolledBack, body.Outcome.Result)

	rec = do(t, h, http.MethodPost, "/api/v1/models/translation", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPerformanceEndpoints(t *testing.T) {
	eng := &fakeEngine{}
	h := NewServer(eng).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/performance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_processed":3`)

	rec = do(t, h, http.MethodDelete, "/api/v1/performance", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, eng.resets)
}

func TestHealth(t *testing.T) {
	eng := &fakeEngine{health: engine.Health{Status: engine.HealthOK, Device: "cpu"}}
	h := NewServer(eng).Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	eng.health.Status = engine.HealthDegraded
	rec = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestMetricsAndVersion(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "minutes_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	h := NewServer(&fakeEngine{}, WithGatherer(reg)).Handler()

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "minutes_test_total 1")

	rec = do(t, h, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service_name":"minutes"`)
}

type panicEngine struct{ fakeEngine }

func (panicEngine) Process(context.Context, types.Transcript) (*types.MinutesResult, error) {
	panic("unexpected")
}

func TestRecoverMiddleware(t *testing.T) {
	h := NewServer(&panicEngine{}).Handler()
	rec := do(t, h, http.MethodPost, "/api/v1/process", `{"meeting_id":"m","text":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL", decodeError(t, rec).Error.Kind)
}

func TestListenAndServe_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(&fakeEngine{}).ListenAndServe(ctx, "127.0.0.1:0", time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
