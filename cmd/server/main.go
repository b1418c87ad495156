package main

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/openwrench/openwrench/internal/config"
	"github.com/openwrench/openwrench/internal/database"
	"github.com/openwrench/openwrench/internal/queue"
	"github.com/openwrench/openwrench/internal/router"
	"github.com/openwrench/openwrench/internal/service"
	"github.com/openwrench/openwrench/internal/store"
	"github.com/openwrench/openwrench/internal/ws"
)

func main() {
	cfg := config.Load()

	var st store.Store
	if cfg.UseSQLStore() {
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		if err := database.EnsureSchema(context.Background(), db); err != nil {
			log.Fatalf("database schema: %v", err)
		}
		st = store.NewSQLStore(db)
	} else {
		log.Println("DB_HOST not set, using in-memory store (state is lost on restart)")
		st = store.NewMemoryStore()
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unreachable, rate limiting disabled")
	}

	hub := ws.NewHub()
	payments := service.NewStripePayments(cfg, st, queue.PublishJobConfirmed)
	go queue.StartJobConfirmedConsumer()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	router.Register(e, router.Deps{
		Cfg:      cfg,
		St:       st,
		Payments: payments,
		Hub:      hub,
		Redis:    rdb,
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
