// Package main restores an archive written before an organization was deleted. The
// target organization must already exist (create it through the API first); its
// documents are written into the organization's current namespace with their
// original ids. Documents whose id is already present are skipped, so an
// interrupted restore can be re-run. With -delete-archive the archive object is
// removed once every document is in place.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/orgspace/orgspace/internal/archive"
	"github.com/orgspace/orgspace/internal/config"
	"github.com/orgspace/orgspace/internal/crypto"
	"github.com/orgspace/orgspace/internal/db"
	"github.com/orgspace/orgspace/internal/docstore"
	"github.com/orgspace/orgspace/internal/namespace"
	"github.com/orgspace/orgspace/internal/registry"
	"github.com/orgspace/orgspace/internal/registry/postgres"
	"github.com/orgspace/orgspace/internal/storage"
	"github.com/orgspace/orgspace/internal/telemetry"

	_ "github.com/orgspace/orgspace/internal/docstore/memory"
	_ "github.com/orgspace/orgspace/internal/docstore/mongo"
	_ "github.com/orgspace/orgspace/internal/storage/azure"
	_ "github.com/orgspace/orgspace/internal/storage/gcs"
	_ "github.com/orgspace/orgspace/internal/storage/local"
	_ "github.com/orgspace/orgspace/internal/storage/s3"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	key := flag.String("key", "", "archive object key to restore (required)")
	orgName := flag.String("org", "", "organization to restore into (default: the archived organization)")
	deleteArchive := flag.Bool("delete-archive", false, "remove the archive after a complete restore")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall timeout")
	flag.Parse()

	if *key == "" {
		log.Fatal("-key is required")
	}
	if err := run(*configPath, *key, *orgName, *deleteArchive, *timeout); err != nil {
		log.Fatalf("Restore failed: %v", err)
	}
}

func run(configPath, key, orgName string, deleteArchive bool, timeout time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store, closeStore, err := docstore.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer closeStore(context.Background())

	catalog, closeCatalog, err := openCatalog(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer closeCatalog()

	blobs, err := storage.NewStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize archive storage: %w", err)
	}
	opts := []archive.Option{archive.WithLogger(slog.Default())}
	sealer, err := crypto.FromArchiveConfig(&cfg.Archive)
	if err != nil {
		return err
	}
	if sealer != nil {
		opts = append(opts, archive.WithSealer(sealer))
	}
	archiver := archive.New(store, blobs, cfg.Archive.Prefix, opts...)

	snap, err := archiver.Load(ctx, key)
	if err != nil {
		return err
	}
	if orgName == "" {
		orgName = snap.OrgName
	}
	org, err := catalog.Lookup(ctx, orgName)
	if err != nil {
		return fmt.Errorf("organization %q must exist before restoring into it: %w", orgName, err)
	}

	fmt.Printf("Restoring %d documents from %s (%s, taken %s) into %s (%s)\n",
		snap.DocumentCount(), key, snap.OrgName, snap.TakenAt.Format(time.RFC3339), org.Name, org.NamespaceID)

	res, err := archiver.Restore(ctx, snap, org.NamespaceID)
	if err != nil {
		return err
	}
	fmt.Printf("Inserted: %d, already present: %d\n", res.Inserted, res.Duplicates)

	if deleteArchive {
		if err := blobs.Delete(ctx, key); err != nil {
			return fmt.Errorf("restore complete but failed to delete archive: %w", err)
		}
		fmt.Println("Archive deleted")
	}
	return nil
}

// openCatalog opens the registry the server is configured with. Migrations are
// not applied here; the server owns the schema.
func openCatalog(ctx context.Context, cfg *config.Config, store docstore.Store) (registry.Catalog, func(), error) {
	if cfg.Registry.Backend != "postgres" {
		return registry.NewDocRegistry(store, namespace.ID(cfg.Registry.MasterNamespace)), func() {}, nil
	}
	database, err := db.Connect(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return postgres.New(database), func() { database.Close() }, nil
}
