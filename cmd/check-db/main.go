// Package main is a diagnostic tool for the PostgreSQL-backed organization registry. It loads
// the server configuration, connects, prints the schema migration version and lists every
// registered organization with its namespace and admin. The binary exits non-zero on any
// failure so it can gate deployment steps on a reachable, migrated database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/orgspace/orgspace/internal/config"
	"github.com/orgspace/orgspace/internal/db"
	"github.com/orgspace/orgspace/internal/registry/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	timeout := flag.Duration("timeout", 10*time.Second, "overall timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	database, err := db.Connect(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("=== SCHEMA ===\nVersion: %d (dirty: %t)\n", version, dirty)
	if dirty {
		fmt.Println("Schema is dirty; fix the failed migration before starting the server.")
		os.Exit(2)
	}

	fmt.Println("\n=== ORGANIZATIONS ===")
	orgs, err := postgres.New(database).List(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	for _, org := range orgs {
		fmt.Printf("Organization: %s (namespace: %s, admin: %s)\n", org.Name, org.NamespaceID, org.AdminID)
	}
	if len(orgs) == 0 {
		fmt.Println("No organizations found!")
	}
}
