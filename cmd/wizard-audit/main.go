package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/smarthotel/booking-wizard/internal/config"
	"github.com/smarthotel/booking-wizard/internal/database"
	"github.com/smarthotel/booking-wizard/internal/models"
)

func main() {
	var dbURLFlag, sessionFlag string
	var hours int
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVar(&sessionFlag, "session", "", "Print the audit trail of one wizard session")
	flag.IntVar(&hours, "hours", 24, "Summary window in hours")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
		ConnMaxLifetime:    time.Minute,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewWizardAuditRepository(db, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if sessionFlag != "" {
		sessionID, err := uuid.Parse(sessionFlag)
		if err != nil {
			log.Fatalf("Invalid -session: %v", err)
		}
		printTrail(ctx, repo, sessionID)
		return
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	fmt.Printf("Wizard events since %s\n", since.Format(time.RFC3339))
	fmt.Println("----------------------------------------------")
	for _, eventType := range []models.WizardAuditEventType{
		models.WizardEventOpened,
		models.WizardEventAvailabilityFailed,
		models.WizardEventSubmissionRejected,
		models.WizardEventConfirmed,
		models.WizardEventCancelled,
		models.WizardEventExpired,
	} {
		count, err := repo.CountByEventSince(ctx, eventType, since)
		if err != nil {
			log.Fatalf("Failed to count %s events: %v", eventType, err)
		}
		fmt.Printf("%-22s %d\n", eventType, count)
	}
	fmt.Println("----------------------------------------------")
}

func printTrail(ctx context.Context, repo *database.WizardAuditRepository, sessionID uuid.UUID) {
	audits, err := repo.ListBySession(ctx, sessionID)
	if err != nil {
		log.Fatalf("Failed to load audit trail: %v", err)
	}
	if len(audits) == 0 {
		fmt.Printf("No audit entries for session %s\n", sessionID)
		return
	}

	fmt.Printf("Audit trail for %s (%s flow)\n", sessionID, audits[0].Flow)
	fmt.Println("----------------------------------------------")
	for _, audit := range audits {
		line := fmt.Sprintf("%s | %-20s | %s", audit.CreatedAt.Format(time.RFC3339), audit.EventType, audit.Step)
		if audit.BookingCode != nil {
			line += " | booking " + *audit.BookingCode
		}
		if audit.TotalAmount != nil {
			line += fmt.Sprintf(" | total %.2f", *audit.TotalAmount)
		}
		if audit.FailureReason != nil {
			line += " | " + *audit.FailureReason
		}
		fmt.Println(line)
	}
	fmt.Println("----------------------------------------------")
}
