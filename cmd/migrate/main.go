package main

import (
	"context"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"goamcc/adapters/postgres"
	"goamcc/internal"
	"goamcc/internal/migration"
	"goamcc/internal/session"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) > 3 {
		log.Fatal("Usage: migrate [database_url] [runs_dir]")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		databaseURL = os.Args[1]
	}
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	logger := internal.NewDefaultLogger()
	defer logger.Sync()

	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	runner := migration.NewRunner(logger)
	if err := runner.Run(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Schema version %s applied", runner.Version())

	if len(os.Args) < 3 {
		return
	}

	// Import reports kept by `amcc run --store` into the database
	runsDir := os.Args[2]
	store, err := session.NewLocalRunStore(runsDir)
	if err != nil {
		log.Fatalf("Failed to open run store %s: %v", runsDir, err)
	}
	summaries, err := store.ListRuns(ctx, 0)
	if err != nil {
		log.Fatalf("Failed to list runs in %s: %v", runsDir, err)
	}

	repo := postgres.NewRunRepository(db)
	migrated, skipped := 0, 0
	for _, s := range summaries {
		report, err := store.GetReport(ctx, s.RunID)
		if err != nil {
			log.Printf("Failed to load run %s: %v", s.RunID, err)
			skipped++
			continue
		}
		if err := repo.SaveReport(ctx, report); err != nil {
			log.Printf("Failed to save run %s: %v", s.RunID, err)
			skipped++
			continue
		}
		migrated++
	}

	log.Printf("Import complete: %d migrated, %d skipped", migrated, skipped)
}
