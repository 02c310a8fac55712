package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/ids"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/engine"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/queue"
)

type errorDetail struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorBody struct {
	Error   errorDetail     `json:"error"`
	Outcome *update.Outcome `json:"outcome,omitempty"`
}

// EnqueueRequest is the body of POST /api/v1/jobs.
type EnqueueRequest struct {
	types.Transcript
	Priority string `json:"priority,omitempty"`
}

// EnqueueResponse acknowledges an accepted job.
type EnqueueResponse struct {
	JobID      string    `json:"job_id"`
	Queue      string    `json:"queue"`
	MeetingID  string    `json:"meeting_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// UpdateModelRequest is the body of POST /api/v1/models/{stage}. When
// Config is nil the active configuration is reused with ModelName applied.
type UpdateModelRequest struct {
	Config         *stage.Config `json:"config,omitempty"`
	ModelName      string        `json:"model_name,omitempty"`
	Force          bool          `json:"force,omitempty"`
	SkipValidation bool          `json:"skip_validation,omitempty"`
	Reason         string        `json:"reason,omitempty"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var t types.Transcript
	if err := decodeBody(w, r, &t); err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.engine.Process(r.Context(), t)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errorDetail{
			Kind:    "UNAVAILABLE",
			Message: "job queue is not configured",
		}})
		return
	}

	var req EnqueueRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	priority, err := queue.ParsePriority(req.Priority)
	if err != nil {
		s.writeError(w, merrors.InvalidInput("%v", err))
		return
	}

	job, err := s.jobs.Enqueue(r.Context(), req.Transcript, priority)
	if err != nil {
		if errors.Is(err, queue.ErrInvalidJob) {
			err = merrors.InvalidInput("%v", err)
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, EnqueueResponse{
		JobID:      job.ID,
		Queue:      s.jobs.Name(),
		MeetingID:  job.Transcript.MeetingID,
		EnqueuedAt: job.EnqueuedAt,
	})
}

func (s *Server) handleGetMinutes(w http.ResponseWriter, r *http.Request) {
	if s.minutes == nil {
		http.NotFound(w, r)
		return
	}
	id := r.PathValue("id")
	if !ids.Is(id, ids.KindMinutes) {
		s.writeError(w, merrors.InvalidInput("invalid minutes id %q", id))
		return
	}
	res, err := s.minutes.GetMinutes(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListMinutes(w http.ResponseWriter, r *http.Request) {
	if s.minutes == nil {
		http.NotFound(w, r)
		return
	}
	meetingID := r.URL.Query().Get("meeting_id")
	if meetingID == "" {
		s.writeError(w, merrors.InvalidInput("meeting_id is required"))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, merrors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	list, err := s.minutes.ListMinutes(r.Context(), meetingID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []*types.MinutesResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"minutes": list, "count": len(list)})
}

func (s *Server) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	if s.updater == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stages": s.updater.Status()})
}

func (s *Server) handleUpdateModel(w http.ResponseWriter, r *http.Request) {
	if s.updater == nil {
		http.NotFound(w, r)
		return
	}
	name := r.PathValue("stage")
	slot, ok := s.updater.Slots()[name]
	if !ok {
		s.writeError(w, merrors.InvalidInput("unknown stage %q", name))
		return
	}

	var req UpdateModelRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	var cfg stage.Config
	switch {
	case req.Config != nil:
		cfg = *req.Config
	case slot.Active() != nil:
		cfg = slot.Active().Config
	default:
		cfg = stage.DefaultConfig(name)
	}
	if req.ModelName != "" {
		cfg.ModelName = req.ModelName
	}

	out, err := s.updater.UpdateModel(r.Context(), name, cfg, update.Options{
		Force:          req.Force,
		SkipValidation: req.SkipValidation,
		Reason:         req.Reason,
	})
	if err != nil {
		s.logger.Warn("Model update failed", logging.Stage(name), logging.Err(err))
		body := errorFor(err)
		if out.Result != "" {
			body.Outcome = &out
		}
		writeJSON(w, statusFor(err), body)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePerformance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.PerformanceMetrics())
}

func (s *Server) handleResetPerformance(w http.ResponseWriter, _ *http.Request) {
	s.engine.ResetPerformanceMetrics()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := s.engine.Health()
	status := http.StatusOK
	if h.Status != engine.HealthOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// decodeBody decodes a bounded JSON body into v. Malformed bodies are
// invalid input.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return merrors.InvalidInput("request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return merrors.InvalidInput("request body is empty")
		}
		return merrors.InvalidInput("malformed request body: %v", err)
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", logging.F("error_code", string(merrors.CodeOf(err))), logging.Err(err))
	}
	writeJSON(w, status, errorFor(err))
}

func statusFor(err error) int {
	if merrors.IsNotFound(err) {
		return http.StatusNotFound
	}
	return merrors.HTTPStatus(merrors.CodeOf(err))
}

func errorFor(err error) errorBody {
	code := merrors.CodeOf(err)
	detail := errorDetail{
		Kind:      string(code),
		Message:   merrors.GetDescription(code),
		Retryable: merrors.IsErrorRetryable(err),
	}

	var me *merrors.MinutesError
	switch {
	case errors.As(err, &me):
		detail.Message = me.Public()
	case merrors.IsNotFound(err):
		detail.Kind = "NOT_FOUND"
		detail.Message = err.Error()
		detail.Retryable = false
	}
	return errorBody{Error: detail}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"error":{"kind":"INTERNAL","message":"failed to encode response","retryable":false}}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}
