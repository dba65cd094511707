package handler

import (
	"net/http"

	"github.com/lambda-feedback/procvisor/internal/server"
)

// NewRunRoute serves runs on /run. Methods other than POST are
// rejected by the runtime handler, with a json error body.
func NewRunRoute(handler *CommandHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("/run", handler)
}

func NewHealthRoute() server.HttpHandlerResult {
	return server.AsHttpHandler("GET /health", http.HandlerFunc(HealthHandler))
}
