package application

import (
	"fmt"
	"reflect"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/veridian-labs/grc-sdk/pkg/eventbus"
	"github.com/veridian-labs/grc-sdk/pkg/repo"
	"github.com/veridian-labs/grc-sdk/pkg/tenantdb"
)

// Controller registers a set of routes on the router.
type Controller interface {
	Key() string
	Register(r *mux.Router)
}

// Module is a self-contained feature: it registers its own services,
// controllers and event handlers against the application.
type Module interface {
	Name() string
	Register(app Application) error
}

// Application is the process-wide wiring: the central pool, the tenant
// registry, the event bus and the service/controller/middleware
// registries. Constructed once in main and passed by reference.
type Application interface {
	DB() repo.Pool
	Tenants() *tenantdb.Registry
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger

	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)

	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}

	RegisterModules(modules ...Module) error
}

type ApplicationOptions struct {
	Pool     repo.Pool
	Registry *tenantdb.Registry
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	return &application{
		pool:     opts.Pool,
		registry: opts.Registry,
		eventBus: opts.EventBus,
		logger:   opts.Logger,
		services: make(map[reflect.Type]interface{}),
	}
}

type application struct {
	pool        repo.Pool
	registry    *tenantdb.Registry
	eventBus    eventbus.EventBus
	logger      *logrus.Logger
	controllers []Controller
	middleware  []mux.MiddlewareFunc
	services    map[reflect.Type]interface{}
}

func (a *application) DB() repo.Pool {
	return a.pool
}

func (a *application) Tenants() *tenantdb.Registry {
	return a.registry
}

func (a *application) EventPublisher() eventbus.EventBus {
	return a.eventBus
}

func (a *application) Logger() *logrus.Logger {
	return a.logger
}

func (a *application) Controllers() []Controller {
	return a.controllers
}

func (a *application) Middleware() []mux.MiddlewareFunc {
	return a.middleware
}

func (a *application) RegisterControllers(controllers ...Controller) {
	a.controllers = append(a.controllers, controllers...)
}

func (a *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	a.middleware = append(a.middleware, middleware...)
}

// RegisterServices stores each service keyed by its concrete type.
// Services are registered as pointers and looked up by value, e.g.
// app.Service(services.SessionService{}).(*services.SessionService).
func (a *application) RegisterServices(services ...interface{}) {
	for _, service := range services {
		t := reflect.TypeOf(service)
		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		a.services[t] = service
	}
}

func (a *application) RegisterModules(modules ...Module) error {
	for _, module := range modules {
		if err := module.Register(a); err != nil {
			return fmt.Errorf("failed to register module %q: %w", module.Name(), err)
		}
	}
	return nil
}

func (a *application) Service(service interface{}) interface{} {
	svc, ok := a.services[reflect.TypeOf(service)]
	if !ok {
		panic(fmt.Sprintf("service %T not registered", service))
	}
	return svc
}
