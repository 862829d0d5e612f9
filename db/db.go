package db

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// InitSQLite opens a SQLite file with foreign keys enforced.
func InitSQLite(databaseName string) (*sql.DB, error) {
	if databaseName == "" {
		return nil, fmt.Errorf("empty database path")
	}
	db, err := sql.Open("sqlite3", databaseName+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	var enabled int
	err = db.QueryRow("PRAGMA foreign_keys").Scan(&enabled)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error checking foreign keys: %w", err)
	}
	if enabled != 1 {
		db.Close()
		return nil, fmt.Errorf("foreign keys are not enabled")
	}

	// Serialize writers; go-sqlite3 does not share a file lock across pooled connections well.
	db.SetMaxOpenConns(1)

	return db, nil
}

func CloseDB(databaseInstance *sql.DB) {
	if databaseInstance != nil {
		databaseInstance.Close()
		log.Println("Database connection closed")
	}
}

// ApplySchema runs each statement in order and stops at the first failure.
func ApplySchema(conn *sql.DB, statements []string) error {
	for _, stmt := range statements {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema exec failed: %w", err)
		}
	}
	return nil
}
