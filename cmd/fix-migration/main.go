// Package main clears the dirty flag golang-migrate leaves on schema_migrations after a
// failed migration. Run it only after the partial migration has been repaired by hand;
// otherwise the server will apply later migrations on top of a broken schema and the
// "Dirty database version" error that blocks startup will simply move elsewhere.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/orgspace/orgspace/internal/config"
	"github.com/orgspace/orgspace/internal/db"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database, err := db.Connect(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Connected to database successfully")

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check migration state: %v", err)
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)

	if !dirty {
		log.Println("Migration state is already clean")
		return
	}

	forced, err := db.ClearDirty(database)
	if err != nil {
		log.Fatalf("Failed to fix dirty state: %v", err)
	}
	log.Printf("Migration state fixed: version=%d", forced)
}
