package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/sheetload/internal/logging"
)

// requestContext tags the request context so pipeline logs show the run came over HTTP.
func requestContext(r *http.Request) context.Context {
	return logging.ContextWithOrigin(r.Context(), "http")
}
