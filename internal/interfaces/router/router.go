package router

import (
	"context"
	"net/http"

	authsvc "corkboard-backend/internal/application/auth"
	clientsvc "corkboard-backend/internal/application/clients"
	notesvc "corkboard-backend/internal/application/notes"
	oversvc "corkboard-backend/internal/application/overrides"
	profilesvc "corkboard-backend/internal/application/profile"
	recsvc "corkboard-backend/internal/application/records"
	scriptsvc "corkboard-backend/internal/application/scripts"
	"corkboard-backend/internal/application/session"
	tplsvc "corkboard-backend/internal/application/templates"
	"corkboard-backend/internal/config"
	"corkboard-backend/internal/infrastructure/database"
	"corkboard-backend/internal/infrastructure/realtime"
	authhandler "corkboard-backend/internal/interfaces/handlers/auth"
	clienthandler "corkboard-backend/internal/interfaces/handlers/clients"
	healthhandler "corkboard-backend/internal/interfaces/handlers/health"
	scripthandler "corkboard-backend/internal/interfaces/handlers/scripts"
	sessionhandler "corkboard-backend/internal/interfaces/handlers/sessions"
	tplhandler "corkboard-backend/internal/interfaces/handlers/templates"
	"corkboard-backend/internal/middleware"
	"corkboard-backend/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the long-lived resources behind the app. Sessions is nil when no
// database is configured.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Sessions *session.Registry
}

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) PingContext(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateApp wires middleware, services and routes. Without a database only
// the health routes are mounted.
func CreateApp(cfg *config.Config) (*fiber.App, *Deps, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix:  cfg.FrontendURLEndsWith,
		DevPassword:    cfg.DevPassword,
		AllowLocalhost: cfg.Env != "production",
	}))

	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	if err != nil {
		return nil, nil, err
	}
	app.Use(sessionHandler)
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	deps := &Deps{Redis: rdb}
	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/", hh.Dashboard)
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)

	if cfg.DatabaseURL == "" && cfg.DatabaseDriver != "sqlite" {
		return app, deps, nil
	}
	db, err := database.OpenDriver(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, nil, err
	}
	deps.DB = db
	hh.DB = &gormDBPinger{db: db}

	broker := realtime.NewBroker(rdb, cfg.Session.MaxRealtimePayload)
	templates := &tplsvc.Service{DB: db}
	backend := &session.ServiceBackend{
		Clients:   &clientsvc.Service{DB: db},
		Templates: templates,
		Records:   &recsvc.Service{DB: db, Publisher: broker},
		Overrides: &oversvc.Service{DB: db},
		Notes:     &notesvc.Service{DB: db, Publisher: broker},
		Broker:    broker,
	}
	registry := session.NewRegistry(backend, backend, cfg.Session)
	deps.Sessions = registry
	hh.Sessions = registry

	api := app.Group("/api/v1")

	ah := &authhandler.Handlers{
		Auth:     &authsvc.Service{DB: db},
		Profiles: &profilesvc.Service{DB: db, Templates: templates},
		Sessions: registry,
		Rdb:      rdb,
		Config:   sessionCfg,
	}
	authGroup := api.Group("/auth")
	authGroup.Post("/signup", ah.Signup)
	authGroup.Post("/login", ah.Login)
	authGroup.Get("/me", ah.Me)
	authGroup.Delete("/logout", ah.Logout)

	withActor := []fiber.Handler{middleware.RequireAuth(), middleware.RequireActor()}

	th := &tplhandler.Handlers{Service: templates}
	tg := api.Group("/templates", withActor...)
	tg.Get("/", middleware.AuthorizePermission(constants.ViewData), th.List)
	tg.Get("/:id", middleware.AuthorizePermission(constants.ViewData), th.Get)
	tg.Post("/", middleware.AuthorizePermission(constants.ManageTemplates), th.Create)
	tg.Patch("/:id", middleware.AuthorizePermission(constants.ManageTemplates), th.Rename)
	tg.Put("/:id/fields", middleware.AuthorizePermission(constants.ManageTemplates), th.ReplaceFields)

	ch := &clienthandler.Handlers{
		Clients:   backend.Clients,
		Records:   backend.Records,
		Overrides: backend.Overrides,
		Notes:     backend.Notes,
	}
	cg := api.Group("/clients", withActor...)
	cg.Get("/", middleware.AuthorizePermission(constants.ViewData), ch.List)
	cg.Post("/", middleware.AuthorizePermission(constants.EditClients), ch.Create)
	cg.Get("/:id", middleware.AuthorizePermission(constants.ViewData), ch.Get)
	cg.Patch("/:id", middleware.AuthorizePermission(constants.EditClients), ch.Update)
	cg.Patch("/:id/confidence", middleware.AuthorizePermission(constants.EditClients), ch.UpdateConfidence)
	cg.Delete("/:id", middleware.AuthorizePermission(constants.DeleteClient), ch.Delete)
	cg.Get("/:id/records/latest", middleware.AuthorizePermission(constants.ViewData), ch.LatestRecord)
	cg.Get("/:id/records", middleware.AuthorizePermission(constants.ViewData), ch.History)
	cg.Get("/:id/overrides", middleware.AuthorizePermission(constants.ViewData), ch.ListOverrides)
	cg.Get("/:id/notes", middleware.AuthorizePermission(constants.ViewData), ch.ListNotes)
	cg.Post("/:id/notes", middleware.AuthorizePermission(constants.EditClients), ch.AddNote)

	sh := &scripthandler.Handlers{Service: &scriptsvc.Service{DB: db}}
	scg := api.Group("/scripts", withActor...)
	scg.Get("/", middleware.AuthorizePermission(constants.ViewData), sh.List)
	scg.Post("/", middleware.AuthorizePermission(constants.EditClients), sh.Create)
	scg.Put("/:id", middleware.AuthorizePermission(constants.EditClients), sh.Update)

	ssh := &sessionhandler.Handlers{Registry: registry}
	sg := api.Group("/sessions", append(withActor, middleware.AuthorizePermission(constants.EditClients))...)
	sg.Post("/:clientId", ssh.Open)
	sg.Get("/:clientId", ssh.View)
	sg.Delete("/:clientId", ssh.Close)
	sg.Patch("/:clientId/answers", ssh.SetAnswers)
	sg.Post("/:clientId/save", ssh.Save)
	sg.Post("/:clientId/retry", ssh.Retry)
	sg.Put("/:clientId/template", ssh.SwitchTemplate)
	sg.Put("/:clientId/layout", ssh.CommitLayout)
	sg.Post("/:clientId/fields", middleware.AuthorizePermission(constants.ManageTemplates), ssh.UpsertField)
	sg.Delete("/:clientId/fields/:fieldId", middleware.AuthorizePermission(constants.ManageTemplates), ssh.RemoveField)
	sg.Post("/:clientId/fields/:fieldId/hide", ssh.HideField)
	sg.Post("/:clientId/fields/:fieldId/show", ssh.ShowField)
	sg.Post("/:clientId/notes", ssh.AddNote)
	sg.Patch("/:clientId/client", ssh.RenameClient)
	sg.Delete("/:clientId/client", middleware.AuthorizePermission(constants.DeleteClient), ssh.DeleteClient)
	sg.Patch("/:clientId/confidence", ssh.SetConfidence)

	return app, deps, nil
}

// Handler adapts app to net/http.
func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
