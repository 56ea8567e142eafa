// Package postgres provides PostgreSQL implementation of the drift repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/OwonaMedia/support-engine/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements drift.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ChangeExists reports whether a change with the same provider and title was
// already recorded after the given time.
func (r *Repository) ChangeExists(ctx context.Context, provider, title string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM external_api_changes
			WHERE provider = $1 AND title = $2 AND detected_at >= $3
		)
	`
	var exists bool
	err := r.db.QueryRow(ctx, query, provider, title, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check existing change: %w", err)
	}
	return exists, nil
}

// SaveChanges persists a batch of detected changes.
func (r *Repository) SaveChanges(ctx context.Context, changes []domain.ExternalChange) error {
	query := `
		INSERT INTO external_api_changes (
			id, provider, change_type, title, description, impact,
			detected_at, status, auto_updated, affected_services, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for _, change := range changes {
		_, err := r.db.Exec(ctx, query,
			change.ID,
			change.Provider,
			change.ChangeType,
			change.Title,
			change.Description,
			change.Impact,
			change.DetectedAt,
			change.Status,
			change.AutoUpdated,
			change.AffectedServices,
			change.Metadata,
		)
		if err != nil {
			return fmt.Errorf("save change %q: %w", change.Title, err)
		}
	}
	return nil
}

// ListRecent returns the most recently detected changes.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]*domain.ExternalChange, error) {
	query := `
		SELECT id, provider, change_type, title, description, impact,
		       detected_at, status, auto_updated, affected_services, metadata
		FROM external_api_changes
		ORDER BY detected_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent changes: %w", err)
	}
	defer rows.Close()

	changes := make([]*domain.ExternalChange, 0)
	for rows.Next() {
		var change domain.ExternalChange
		err := rows.Scan(
			&change.ID,
			&change.Provider,
			&change.ChangeType,
			&change.Title,
			&change.Description,
			&change.Impact,
			&change.DetectedAt,
			&change.Status,
			&change.AutoUpdated,
			&change.AffectedServices,
			&change.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		changes = append(changes, &change)
	}

	return changes, rows.Err()
}
