package main

import (
	"flag"
	"log"
	"os"

	"github.com/example/stampcard/internal/config"
	"github.com/example/stampcard/internal/database"
)

func main() {
	file := flag.String("file", "fixtures.yaml", "YAML fixture file to load")
	flag.Parse()

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("[Seed] read %s: %v", *file, err)
	}

	fx, err := parseFixtures(raw)
	if err != nil {
		log.Fatalf("[Seed] %v", err)
	}

	cfg := config.LoadShared()
	db := database.Connect(cfg.DatabaseURL, false)

	if err := load(db, fx); err != nil {
		log.Fatalf("[Seed] %v", err)
	}
	log.Printf("[Seed] loaded %d businesses from %s", len(fx.Businesses), *file)
}
