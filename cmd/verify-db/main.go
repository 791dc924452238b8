// verify-db checks a live database: it applies pending migrations, verifies
// every lot against the journal and rebuilds every cached stock level.
// It exits non-zero when anything disagreed.
//
// Usage: go run ./cmd/verify-db
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"inventory-ledger/internal/app"
	"inventory-ledger/internal/config"
	"inventory-ledger/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[CONFIG] %v", err)
	}
	if err := logger.Init(cfg.Logger.Level, cfg.Logger.JSON); err != nil {
		log.Fatalf("[LOGGER] %v", err)
	}

	ctx := context.Background()
	rt, err := app.Open(ctx, cfg, false)
	if err != nil {
		log.Fatalf("[CONNECT] %v", err)
	}
	defer rt.Close()
	log.Println("[CONNECT] success")

	m, err := rt.Service.Migrate(ctx)
	if err != nil {
		log.Fatalf("[MIGRATE] %v", err)
	}
	log.Printf("[MIGRATE] schema at version %d", m.Version)

	res, err := rt.Service.Audit(ctx)
	if err != nil {
		log.Fatalf("[AUDIT] %v", err)
	}
	log.Printf("[AUDIT] %d lots, %d levels checked", res.LotsChecked, res.LevelsChecked)
	if res.OK() {
		log.Println("[DONE] ledger is consistent")
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
	rt.Close()
	os.Exit(1)
}
