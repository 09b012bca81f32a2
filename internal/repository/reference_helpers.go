package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// existsByID reports whether a row with the id exists in table. table is always a package constant.
func existsByID(ctx context.Context, db *sqlx.DB, table, id string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", table)
	var exists bool
	if err := db.GetContext(ctx, &exists, query, id); err != nil {
		return false, fmt.Errorf("check %s existence: %w", table, err)
	}
	return exists, nil
}
