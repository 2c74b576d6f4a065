package main

import (
	"log"

	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/example/stampcard/internal/config"
	"github.com/example/stampcard/internal/database"
	"github.com/example/stampcard/internal/repository"
	"github.com/example/stampcard/internal/routes"
)

func main() {
	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL, false)

	app := routes.NewApp()
	app.Use(logger.New())

	routes.Register(app, db, repository.NewGormStore(db), cfg)

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
