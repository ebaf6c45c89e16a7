package server

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/veridian-labs/grc-sdk/pkg/application"
	"github.com/veridian-labs/grc-sdk/pkg/configuration"
	"github.com/veridian-labs/grc-sdk/pkg/constants"
	"github.com/veridian-labs/grc-sdk/pkg/httpapi"
	"github.com/veridian-labs/grc-sdk/pkg/middleware"
	"github.com/veridian-labs/grc-sdk/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
}

// Default assembles the standard middleware chain. Order matters: the
// request logger runs first so later failures are attributed to a request
// id, and the tenant resolver runs last so everything behind it can assume
// a fully resolved context.
func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application

	app.RegisterMiddleware(
		middleware.WithLogger(options.Logger),
		middleware.Provide(constants.AppKey, app),
		middleware.Provide(constants.PoolKey, app.DB()),
		middleware.Cors("http://localhost:3000"),
		middleware.RequestParams(),
		middleware.RequireTenantContext(app.Tenants(), middleware.DefaultTenantContextOptions()),
	)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	return server.NewHTTPServer(app, notFound, methodNotAllowed), nil
}
