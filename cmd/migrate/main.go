// ABOUTME: Migration utility for moving the platform's legacy calendar table to the sync engine schema.
// ABOUTME: Provides dry-run and backup capabilities for safe schema migration.

package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/feelgame3025/ilouli-homepage-sub000/db"
	"github.com/feelgame3025/ilouli-homepage-sub000/models"
)

// The pre-engine platform kept one flat calendar_events table with no origin
// tracking and no provider link. Migration copies those rows into local_events
// tagged 'local' and drops the legacy table.

func main() {
	dbPath := flag.String("db", db.DefaultPath(), "Path to database file")
	dryRun := flag.Bool("dry-run", false, "Show what would happen without making changes")
	backup := flag.Bool("backup", true, "Create backup before migration")
	force := flag.Bool("force", false, "Drop the legacy table after copying")
	flag.Parse()

	if err := migrate(*dbPath, *dryRun, *backup, *force); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration completed successfully")
}

func migrate(dbPath string, dryRun, createBackup, force bool) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database file does not exist: %s", dbPath)
	}

	if createBackup && !dryRun {
		backupPath := fmt.Sprintf("%s.backup.%s", dbPath, time.Now().Format("20060102-150405"))
		log.Printf("Creating backup: %s", backupPath)

		input, err := os.ReadFile(dbPath)
		if err != nil {
			return fmt.Errorf("failed to read database: %w", err)
		}

		if err := os.WriteFile(backupPath, input, 0644); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		log.Printf("Backup created successfully")
	}

	database, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	tables, err := getCurrentTables(database)
	if err != nil {
		return fmt.Errorf("failed to get current tables: %w", err)
	}

	log.Printf("Current tables: %v", tables)

	hasLegacy := false
	hasEngine := false
	for _, table := range tables {
		switch table {
		case "calendar_events":
			hasLegacy = true
		case "local_events":
			hasEngine = true
		}
	}

	if dryRun {
		log.Printf("[DRY RUN] Would perform the following actions:")
		if !hasEngine {
			log.Printf("[DRY RUN] - Create tables: local_events, oauth_tokens")
		}
		if hasLegacy {
			count, err := countLegacyRows(database)
			if err != nil {
				return err
			}
			log.Printf("[DRY RUN] - Copy %d rows from calendar_events as origin 'local'", count)
			if force {
				log.Printf("[DRY RUN] - Drop table calendar_events")
			} else {
				log.Printf("[DRY RUN] - Keep calendar_events (use -force to drop it)")
			}
		}
		return nil
	}

	if !hasEngine {
		log.Printf("Creating sync engine schema...")
		if err := db.InitSchema(database); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	} else {
		log.Printf("Engine tables already exist, skipping creation")
	}

	if hasLegacy {
		copied, err := copyLegacyEvents(database)
		if err != nil {
			return fmt.Errorf("failed to copy legacy events: %w", err)
		}
		log.Printf("Copied %d legacy events", copied)

		if force {
			if _, err := database.Exec("DROP TABLE calendar_events"); err != nil {
				return fmt.Errorf("failed to drop legacy table: %w", err)
			}
			log.Printf("Dropped table: calendar_events")
		} else {
			log.Printf("Legacy table kept; rerun with -force to drop it")
		}
	}

	return nil
}

func getCurrentTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}

	return tables, rows.Err()
}

func countLegacyRows(db *sql.DB) (int, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM calendar_events").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count legacy rows: %w", err)
	}
	return count, nil
}

// copyLegacyEvents moves every legacy row into local_events. Legacy ids are
// not carried over; the engine assigns fresh ones so the two id spaces never
// collide.
func copyLegacyEvents(database *sql.DB) (int, error) {
	tx, err := database.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.Query(`
		SELECT user_id, title, date, time, all_day, description, created_by, created_at
		FROM calendar_events ORDER BY created_at`)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	stmt, err := tx.Prepare(`
		INSERT INTO local_events
			(id, user_id, title, date, time, all_day, category, description,
			 created_by, created_by_name, origin, remote_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, '', ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()

	copied := 0
	for rows.Next() {
		var userID, title, date, createdBy string
		var clock, description sql.NullString
		var allDay bool
		var createdAt time.Time
		if err := rows.Scan(&userID, &title, &date, &clock, &allDay, &description, &createdBy, &createdAt); err != nil {
			return 0, err
		}

		_, err := stmt.Exec(
			uuid.New().String(), userID, title, date, clock.String, allDay,
			models.CategoryOther, description.String, createdBy,
			models.OriginLocal, createdAt.UTC(), createdAt.UTC())
		if err != nil {
			return 0, err
		}
		copied++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return copied, nil
}
