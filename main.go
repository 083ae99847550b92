package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/opina-app/opina/app"
	"github.com/opina-app/opina/config"
	"github.com/opina-app/opina/database"
	"github.com/opina-app/opina/httpx"
	"github.com/opina-app/opina/log"
	"github.com/opina-app/opina/routes"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	// one-shot geodata import, then exit
	if cfg.GeodataCSV != "" {
		err := database.ImportGeodata(db, cfg.GeodataCSV)
		if err != nil {
			log.Fatal("main.geodata:", err)
		}
		return
	}

	bearerServer := httpx.NewBearerServer(db, cfg)

	app := app.App{
		DB:           db,
		BearerServer: bearerServer,
		Config:       cfg,
	}

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
