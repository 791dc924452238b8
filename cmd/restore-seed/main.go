// restore-seed rebuilds a development database: every migration is rolled
// back and re-applied, then the master data file is loaded. All movements,
// lots and orders are lost.
//
// Usage: go run ./cmd/restore-seed [-file seed.toml] -yes
package main

import (
	"context"
	"flag"
	"log"

	"inventory-ledger/internal/app"
	"inventory-ledger/internal/config"
	"inventory-ledger/internal/logger"
)

func main() {
	file := flag.String("file", "", "seed file, defaults to SEED_FILE")
	yes := flag.Bool("yes", false, "confirm that all data may be dropped")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logger.Init(cfg.Logger.Level, cfg.Logger.JSON); err != nil {
		log.Fatalf("logger: %v", err)
	}
	if !*yes {
		log.Fatal("refusing to drop data without -yes")
	}
	if *file == "" {
		*file = cfg.SeedFile
	}

	ctx := context.Background()
	rt, err := app.Open(ctx, cfg, false)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer rt.Close()

	log.Println("Resetting schema...")
	if err := rt.Migrator.Reset(ctx); err != nil {
		log.Fatalf("Failed to reset schema: %v", err)
	}

	log.Printf("Loading %s...", *file)
	res, err := rt.Service.Seed(ctx, *file)
	if err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}
	s := res.Summary
	log.Printf("Seed data restored: %d warehouses, %d products, %d supplier items, %d BOMs, %d thresholds.",
		s.Warehouses, s.Products, s.SupplierItems, s.BOMs, s.Thresholds)
}
