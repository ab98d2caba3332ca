package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/venue-seat-hold/internal/model"
)

// activeLayoutID is the fixed primary key of the single layout row.
const activeLayoutID = 1

// LayoutRepo reads and replaces the single active layout row.
type LayoutRepo struct {
	db *sql.DB
}

// NewLayoutRepo returns a LayoutRepo bound to db.
func NewLayoutRepo(db *sql.DB) *LayoutRepo { return &LayoutRepo{db: db} }

// GetTx returns the active layout.  ok is false when no layout was ever
// generated.
func (r *LayoutRepo) GetTx(ctx context.Context, tx *sql.Tx) (model.Layout, bool, error) {
	var l model.Layout
	err := tx.QueryRowContext(ctx,
		`SELECT seat_rows, seat_cols FROM layout WHERE id = ?`, activeLayoutID,
	).Scan(&l.Rows, &l.Cols)
	if err == sql.ErrNoRows {
		return model.Layout{}, false, nil
	}
	if err != nil {
		return model.Layout{}, false, err
	}
	return l, true, nil
}

// ReplaceTx overwrites the active layout.
func (r *LayoutRepo) ReplaceTx(ctx context.Context, tx *sql.Tx, l model.Layout) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO layout (id, seat_rows, seat_cols) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE seat_rows = VALUES(seat_rows), seat_cols = VALUES(seat_cols)`,
		activeLayoutID, l.Rows, l.Cols,
	)
	return err
}
