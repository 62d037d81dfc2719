// Package httpapi implements blobgate's HTTP surface: route wiring,
// request/response marshalling, and the ambient middleware stack, over the
// Service core.
package httpapi

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blobgate/blobgate/internal/service"
)

// Server is the blobgate HTTP server.
type Server struct {
	router     chi.Router
	api        huma.API
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Service string `json:"service" doc:"Configured backend kind"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// New builds a Server wired to svc, reporting backendKind on /health. Bucket
// JSON endpoints are registered through huma for request validation and
// OpenAPI generation; object data-plane routes stream bytes directly and are
// registered as raw chi handlers.
func New(svc *service.Service, backendKind string) *Server {
	h := NewHandlers(svc, backendKind)
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("blobgate API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{router: router, api: api}

	huma.Register(api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the blobgate server and its configured backend.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: HealthBody{Status: "ok", Service: h.backendKind}}, nil
	})

	router.Handle("/metrics", promhttp.Handler())

	registerBucketOperations(api, h)

	router.Route("/buckets", func(r chi.Router) {
		r.Put("/{bucket}/objects/*", h.handlePutObject)
		r.Get("/{bucket}/objects/*", h.handleGetObject)
		r.Head("/{bucket}/objects/*", h.handleHeadObject)
		r.Delete("/{bucket}/objects/*", h.handleDeleteObject)
		r.Get("/{bucket}/objects", h.handleListObjects)
		r.Get("/{bucket}/object-info/*", h.handleObjectInfo)
		r.Get("/{bucket}/public-url/*", h.handlePublicURL)
	})

	return s
}

// ListenAndServe starts the HTTP server on addr. Middleware chain, outermost
// first: request timeout, metrics, common headers, metadata header rewrite.
func (s *Server) ListenAndServe(addr string) error {
	var handler http.Handler = s.router
	handler = metadataHeaderMiddleware(handler)
	handler = commonHeaders(handler)
	handler = metricsMiddleware(handler)
	handler = http.TimeoutHandler(handler, requestTimeout, `{"error":{"kind":"timeout","message":"request timed out"}}`)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
