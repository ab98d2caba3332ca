// Package database opens the backing stores and prepares their schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// schema creates the ledger tables.  seat_holds and booked_seats are keyed
// by the seat itself, which is what keeps two holds or two bookings off the
// same seat.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS layout (
		id        TINYINT UNSIGNED NOT NULL PRIMARY KEY,
		seat_rows SMALLINT UNSIGNED NOT NULL,
		seat_cols SMALLINT UNSIGNED NOT NULL
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS seat_holds (
		seat_row   SMALLINT UNSIGNED NOT NULL,
		seat_col   SMALLINT UNSIGNED NOT NULL,
		user_id    VARCHAR(128) NOT NULL,
		expires_at DATETIME(3) NOT NULL,
		created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		PRIMARY KEY (seat_row, seat_col),
		KEY idx_seat_holds_user (user_id),
		KEY idx_seat_holds_expires (expires_at)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bookings (
		user_id   VARCHAR(128) NOT NULL PRIMARY KEY,
		booked_at DATETIME(3) NOT NULL
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS booked_seats (
		seat_row SMALLINT UNSIGNED NOT NULL,
		seat_col SMALLINT UNSIGNED NOT NULL,
		user_id  VARCHAR(128) NOT NULL,
		PRIMARY KEY (seat_row, seat_col),
		KEY idx_booked_seats_user (user_id),
		CONSTRAINT fk_booked_seats_booking FOREIGN KEY (user_id) REFERENCES bookings (user_id)
	) ENGINE=InnoDB`,
}

// Migrate creates any missing table.  It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
