package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	service "github.com/okian/runtest/internal/app"
	"github.com/okian/runtest/internal/domain/model"
	"github.com/okian/runtest/pkg/logger"
	"github.com/okian/runtest/pkg/metrics"
)

// runTestRequest mirrors the OpenAPI schema for POST /runtest.
// Pointers distinguish a missing field from its zero value.
type runTestRequest struct {
	Secret *string       `json:"secret"`
	Tests  []itemRequest `json:"tests"`
	Budget *float64      `json:"budget"`
}

type itemRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// Validate implements validation.Validatable.
func (i itemRequest) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.X, validation.NotNil),
		validation.Field(&i.Y, validation.NotNil),
	)
}

// Validate checks that every field is present. Values are not range checked.
func (r *runTestRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Secret, validation.NotNil),
		validation.Field(&r.Tests, validation.NotNil),
		validation.Field(&r.Budget, validation.NotNil),
	)
}

func (r *runTestRequest) secret() string {
	if r.Secret == nil {
		return ""
	}
	return *r.Secret
}

func (r *runTestRequest) items() model.Items {
	out := make(model.Items, len(r.Tests))
	for i, t := range r.Tests {
		out[i] = model.Item{X: *t.X, Y: *t.Y}
	}
	return out
}

// RunTestHandler handles selection requests.
type RunTestHandler struct {
	deps         Dependencies
	maxBodyBytes int64
	logger       logger.Logger
}

// NewRunTestHandler creates a new runtest handler.
func NewRunTestHandler(deps Dependencies, maxBodyBytes int64, log logger.Logger) *RunTestHandler {
	return &RunTestHandler{deps: deps, maxBodyBytes: maxBodyBytes, logger: log}
}

// HandleRunTest handles POST /runtest requests.
func (h *RunTestHandler) HandleRunTest(w http.ResponseWriter, r *http.Request) {
	const op = "api.run_test"
	ctx := r.Context()

	var req runTestRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		metrics.RecordMalformedRequest()
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	// Only the outcome is logged; secret values never are.
	if !h.deps.Authenticate(ctx, req.secret()) {
		h.logger.Warn(ctx, "authentication failed",
			logger.Bool("auth_failed", true),
			logger.String("request_id", RequestIDFromContext(ctx)),
		)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if err := req.Validate(); err != nil {
		metrics.RecordMalformedRequest()
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	resp, err := h.deps.Evaluate(ctx, req.items(), *req.Budget)
	if err != nil {
		h.writeEvaluateError(ctx, w, op, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *RunTestHandler) writeEvaluateError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "request_timeout", WrapKind(op, ErrTimeout, err))
	case errors.Is(err, context.Canceled):
		// The client is gone; the status only reaches the metrics.
		writeError(w, http.StatusRequestTimeout, "request_cancelled", WrapKind(op, ErrTimeout, err))
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	default:
		h.logger.Error(ctx, "selection failed",
			logger.String("request_id", RequestIDFromContext(ctx)),
			logger.Error(Wrap(op, err)),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", NewKind(op, ErrInternal))
	}
}
