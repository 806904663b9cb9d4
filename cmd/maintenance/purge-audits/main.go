package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/smarthotel/booking-wizard/internal/config"
	"github.com/smarthotel/booking-wizard/internal/database"
)

func main() {
	var dbURLFlag string
	var olderThanDays int
	var dryRun bool
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.IntVar(&olderThanDays, "older-than-days", 90, "Delete wizard audits older than this many days")
	flag.BoolVar(&dryRun, "dry-run", false, "Only report how many rows would be deleted")
	flag.Parse()

	// Optional .env in the working directory
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}
	if olderThanDays < 1 {
		log.Fatal("-older-than-days must be at least 1")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
		ConnMaxLifetime:    time.Minute,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewWizardAuditRepository(db, nil)
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if dryRun {
		var count int
		if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM wizard_audits WHERE created_at < $1`, cutoff); err != nil {
			log.Fatalf("failed to count wizard audits: %v", err)
		}
		fmt.Printf("%d wizard audit rows older than %s would be deleted\n", count, cutoff.Format(time.RFC3339))
		return
	}

	deleted, err := repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Fatalf("purge failed: %v", err)
	}
	fmt.Printf("Deleted %d wizard audit rows older than %s\n", deleted, cutoff.Format(time.RFC3339))
}
