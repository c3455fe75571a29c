package handler

import (
	"net/http"

	"corkboard-backend/bootstrap"
)

var app http.Handler

func init() {
	var err error
	app, err = bootstrap.New()
	if err != nil {
		panic("app create: " + err.Error())
	}
}

// Handler is the serverless entry point. All requests are rewritten here.
func Handler(w http.ResponseWriter, r *http.Request) {
	r.RequestURI = r.URL.String()
	app.ServeHTTP(w, r)
}
