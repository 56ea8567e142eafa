// Package drift watches third-party platforms the product depends on and
// records changes that may break the integration.
package drift

import (
	"context"
	"time"

	"github.com/OwonaMedia/support-engine/internal/domain"
)

// Repository defines the interface for detected change storage.
type Repository interface {
	// ChangeExists reports whether a change with the same provider and
	// title was already recorded after the given time.
	ChangeExists(ctx context.Context, provider, title string, since time.Time) (bool, error)

	// SaveChanges persists a batch of detected changes.
	SaveChanges(ctx context.Context, changes []domain.ExternalChange) error

	// ListRecent returns the most recently detected changes.
	ListRecent(ctx context.Context, limit int) ([]*domain.ExternalChange, error)
}
