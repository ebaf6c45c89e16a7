package core

import (
	"github.com/veridian-labs/grc-sdk/modules/core/infrastructure/persistence"
	"github.com/veridian-labs/grc-sdk/modules/core/presentation/controllers"
	"github.com/veridian-labs/grc-sdk/modules/core/services"
	"github.com/veridian-labs/grc-sdk/pkg/application"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	app.RegisterServices(
		services.NewSessionService(
			persistence.NewSessionRepository(),
			app.Tenants(),
			app.EventPublisher(),
		),
	)
	app.RegisterControllers(
		controllers.NewAuthController(app),
	)
	return nil
}

func (m *Module) Name() string {
	return "core"
}
