// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/unclebandit/pushleopard-backend/internal/config"
	"github.com/unclebandit/pushleopard-backend/internal/db"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
)

var seedFiles = []string{
	"seed/recipients.sql",
	"seed/campaigns.sql",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.Database.Postgres)
	if err != nil {
		log.Error("Failed to connect", map[string]interface{}{"error": err})
		os.Exit(1)
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		log.Error("Failed to apply schema", map[string]interface{}{"error": err})
		os.Exit(1)
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Error("Failed to read seed file", map[string]interface{}{"file": file, "error": err})
			os.Exit(1)
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			log.Error("Failed to execute seed file", map[string]interface{}{"file": file, "error": err})
			os.Exit(1)
		}
		log.Info("Seeded", map[string]interface{}{"file": file})
	}

	log.Info("Database seeding completed successfully", nil)
}
