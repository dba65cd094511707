package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lambda-feedback/procvisor/runtime/schema"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidMethod    = errors.New("invalid method")
	ErrInvalidBody      = errors.New("invalid body")
	ErrSchemaNotFound   = schema.ErrSchemaNotFound
	ErrValidationFailed = errors.New("validation failed")
)

var wellKnownErrors = map[error]int{
	ErrInvalidMethod:    http.StatusMethodNotAllowed,
	ErrInvalidBody:      http.StatusBadRequest,
	ErrSchemaNotFound:   http.StatusInternalServerError,
	ErrValidationFailed: http.StatusBadRequest,
	ErrNoRunSlot:        http.StatusServiceUnavailable,
	ErrShuttingDown:     http.StatusServiceUnavailable,
	ErrRunRejected:      http.StatusUnprocessableEntity,
}

// HandlerParams defines the dependencies for the runtime handler.
type HandlerParams struct {
	fx.In

	Runtime Runtime

	// Schema validates requests and responses. It is compiled
	// from the embedded schemas if not provided.
	Schema *schema.Schema `optional:"true"`

	Log *zap.Logger
}

// Handler is the interface for handling runtime requests.
type Handler interface {
	Handle(ctx context.Context, request Request) Response
}

// RuntimeHandler is a runtime handler that uses a runtime to handle requests.
type RuntimeHandler struct {
	runtime Runtime

	schema *schema.Schema

	log *zap.Logger
}

// NewRuntimeHandler creates a new runtime handler.
func NewRuntimeHandler(params HandlerParams) (Handler, error) {
	runSchema := params.Schema
	if runSchema == nil {
		var err error
		if runSchema, err = schema.NewRunSchema(); err != nil {
			return nil, err
		}
	}

	return &RuntimeHandler{
		runtime: params.Runtime,
		schema:  runSchema,
		log:     params.Log.Named("handler"),
	}, nil
}

// Handle handles a run request.
func (h *RuntimeHandler) Handle(ctx context.Context, req Request) Response {
	log := h.log.With(
		zap.String("path", req.Path),
		zap.String("method", req.Method),
	)

	if req.Method != http.MethodPost {
		log.Debug("invalid method")
		return newErrorResponse(ErrInvalidMethod)
	}

	body := bytes.TrimSpace(req.Body)
	if len(body) == 0 {
		body = []byte("{}")
	}

	// Validate the request data against the request schema
	if err := h.validate(validationTypeRequest, body); err != nil {
		return newErrorResponse(err)
	}

	var runReq RunRequest
	if err := json.Unmarshal(body, &runReq); err != nil {
		log.Debug("failed to decode body", zap.Error(err))
		return newErrorResponse(ErrInvalidBody)
	}

	// Let the runtime run the command
	runResp, err := h.runtime.Run(ctx, runReq)
	if err != nil && !errors.Is(err, ErrRunRejected) {
		log.Debug("failed to run command", zap.Error(err))
		return newErrorResponse(err)
	}

	data, marshalErr := json.Marshal(runResp)
	if marshalErr != nil {
		log.Error("failed to encode response", zap.Error(marshalErr))
		return newErrorResponse(marshalErr)
	}

	// Validate the response data against the response schema
	if err := h.validate(validationTypeResponse, data); err != nil {
		return newErrorResponse(err)
	}

	status := http.StatusOK
	if err != nil {
		status = getErrorStatusCode(err)
	}

	resp := newResponse(status, data)
	resp.Header.Set("X-Run-Id", runResp.RunID)

	return resp
}
