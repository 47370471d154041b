package conn

import (
	"context"
	"database/sql"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

// ConnectDatabase opens the SQLite database backing the order store.
func (db *DB) ConnectDatabase(path string) error {
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return err
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY churn.
	database.SetMaxOpenConns(1)
	database.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return err
	}

	db.DB = database
	return nil
}

// CloseDatabase closes the connection between the app and the database.
func (db *DB) CloseDatabase() {
	if err := db.DB.Close(); err != nil {
		log.Println("Failed to close connection from the database:", err.Error())
	} else {
		log.Println("DB Connection Closed")
	}
}
