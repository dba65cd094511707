package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lambda-feedback/procvisor/config"
	"github.com/lambda-feedback/procvisor/runtime"
)

type CommandHandlerParams struct {
	fx.In

	Handler runtime.Handler
	Config  config.Config
	Log     *zap.Logger
}

func NewCommandHandler(params CommandHandlerParams) *CommandHandler {
	return &CommandHandler{
		handler: params.Handler,
		config:  params.Config,
		log:     params.Log,
	}
}

type CommandHandler struct {
	handler runtime.Handler
	config  config.Config
	log     *zap.Logger
}

func (h *CommandHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
	)

	// Check for authorization
	if !h.authorized(r) {
		log.Debug("unauthorized request")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	request, err := runtime.ReadRequest(r)
	if errors.Is(err, runtime.ErrBodyTooLarge) {
		log.Debug("request body too large")
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		log.Debug("failed to read request", zap.Error(err))
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	response := h.handler.Handle(r.Context(), request)

	if err := response.Write(w); err != nil {
		log.Debug("failed to write response", zap.Error(err))
	}
}

func (h *CommandHandler) authorized(r *http.Request) bool {
	if h.config.Auth.Key == "" {
		return true
	}

	key := r.Header.Get("api-key")

	return subtle.ConstantTimeCompare([]byte(key), []byte(h.config.Auth.Key)) == 1
}

// HealthHandler reports that the server is up.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
