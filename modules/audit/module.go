package audit

import (
	"github.com/veridian-labs/grc-sdk/modules/audit/handlers"
	"github.com/veridian-labs/grc-sdk/modules/audit/infrastructure/persistence"
	"github.com/veridian-labs/grc-sdk/modules/audit/presentation/controllers"
	"github.com/veridian-labs/grc-sdk/modules/audit/services"
	"github.com/veridian-labs/grc-sdk/pkg/application"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	app.RegisterServices(
		services.NewAuditService(
			persistence.NewAuditLogRepository(),
			persistence.NewLoginAttemptRepository(),
			persistence.NewActiveSessionRepository(),
			app.DB(),
			app.Logger(),
		),
	)
	app.RegisterControllers(
		controllers.NewAuditController(app),
	)
	handlers.RegisterSessionEventHandlers(app)
	return nil
}

func (m *Module) Name() string {
	return "audit"
}
