package bootstrap

import (
	"net/http"

	"corkboard-backend/internal/config"
	"corkboard-backend/internal/interfaces/router"
)

// New builds the app as an http.Handler for the serverless entry point.
// Live sessions stay in the memory of each instance.
func New() (http.Handler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	app, _, err := router.CreateApp(cfg)
	if err != nil {
		return nil, err
	}
	return router.Handler(app), nil
}
