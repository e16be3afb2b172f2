// Package routes assembles the HTTP handler: middleware stack, huma API and
// the registered operations.
package routes

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/janisto/hello-server/internal/http/root"
	applog "github.com/janisto/hello-server/internal/platform/logging"
	appmiddleware "github.com/janisto/hello-server/internal/platform/middleware"
	"github.com/janisto/hello-server/internal/platform/respond"
)

// maxRequestBytes caps request bodies. The only route reads none.
const maxRequestBytes = 1 << 20

// Options configures the router.
type Options struct {
	Title       string
	Version     string
	ContentType string
}

// NewRouter builds the chi router serving every route of the API.
func NewRouter(opts Options) chi.Router {
	if opts.Title == "" {
		opts.Title = "Hello Server"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	router.Use(
		appmiddleware.Security(),
		appmiddleware.Vary(),
		appmiddleware.CORS(),
		appmiddleware.RequestID(),
		// RealIP trusts X-Forwarded-For / X-Real-IP; deploy behind a trusted proxy.
		chimiddleware.RealIP,
		chimiddleware.RequestSize(maxRequestBytes),
		applog.RequestLogger(),
		applog.AccessLogger(),
		respond.Recoverer(),
	)

	cfg := huma.DefaultConfig(opts.Title, opts.Version)
	// No documentation routes: GET / is the whole surface.
	cfg.OpenAPIPath = ""
	cfg.DocsPath = ""
	cfg.SchemasPath = ""
	api := humachi.New(router, cfg)

	Register(api, opts)
	return router
}

// Register wires all operations into the provided API.
func Register(api huma.API, opts Options) {
	root.Register(api, opts.ContentType)
}
