// Package swagger serves the OpenAPI document and a ReDoc page for it.
package swagger

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/runtest/pkg/logger"
)

// Error constants.
var (
	ErrServe = errors.New("swagger serve failed")
)

// redocScriptURL is the pinned ReDoc bundle the docs page loads.
const redocScriptURL = "https://cdn.redoc.ly/redoc/v2.1.5/bundles/redoc.standalone.js"

// Register attaches the API docs routes to mux.
// Routes:
//
//	GET /api-docs      -> ReDoc HTML
//	GET /openapi.yaml  -> Embedded OpenAPI spec
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("GET /api-docs", func(w http.ResponseWriter, r *http.Request) {
		if err := serve(w, "text/html; charset=utf-8", []byte(indexHTML)); err != nil {
			logger.Get().Named("swagger").Debug(r.Context(), "docs page not delivered", logger.Error(err))
		}
	})

	mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		if err := serve(w, "application/yaml; charset=utf-8", OpenAPI); err != nil {
			logger.Get().Named("swagger").Debug(r.Context(), "openapi document not delivered", logger.Error(err))
		}
	})
}

// serve writes body with the given content type.
func serve(w http.ResponseWriter, contentType string, body []byte) error {
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("%w: %w", ErrServe, err)
	}
	return nil
}

// Minimal HTML that loads ReDoc and points it at /openapi.yaml.
const indexHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>runtest API Docs</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="` + redocScriptURL + `"></script>
    <script>Redoc.init('/openapi.yaml', { suppressWarnings: true }, document.getElementById('redoc-container'));</script>
  </body>
</html>`
