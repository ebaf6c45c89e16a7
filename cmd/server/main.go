package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/veridian-labs/grc-sdk/internal/server"
	"github.com/veridian-labs/grc-sdk/migrations"
	"github.com/veridian-labs/grc-sdk/modules/audit"
	"github.com/veridian-labs/grc-sdk/modules/core"
	corepersistence "github.com/veridian-labs/grc-sdk/modules/core/infrastructure/persistence"
	"github.com/veridian-labs/grc-sdk/pkg/application"
	"github.com/veridian-labs/grc-sdk/pkg/configuration"
	"github.com/veridian-labs/grc-sdk/pkg/eventbus"
	"github.com/veridian-labs/grc-sdk/pkg/metrics"
	"github.com/veridian-labs/grc-sdk/pkg/tenantdb"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	if err := migrate(ctx, conf); err != nil {
		log.Fatalf("failed to migrate central database: %v", err)
	}

	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	registry := tenantdb.New(pool, corepersistence.NewTenantDirectoryRepository())
	defer registry.Close()

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		Registry: registry,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	if err := app.RegisterModules(core.NewModule(), audit.NewModule()); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := serverInstance.Start(conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func migrate(ctx context.Context, conf *configuration.Configuration) error {
	db, err := sql.Open("pgx", conf.Database.Opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("failed to close migration connection: %v", err)
		}
	}()
	return migrations.Up(ctx, db)
}
