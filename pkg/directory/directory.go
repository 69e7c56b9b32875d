// Package directory resolves organization users for display names and role
// checks. The canonical records live in persistence; a Redis decorator keeps
// hot lookups off the database.
package directory

import (
	"context"

	"github.com/helioshq/helios/pkg/models"
	"github.com/helioshq/helios/pkg/persistence"
)

// Directory looks up user profiles. Lookup returns (nil, nil) when the user
// is unknown; callers treat missing users as blank names and member role.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*models.UserProfile, error)
}

// StoreDirectory serves lookups straight from the persistence layer.
type StoreDirectory struct {
	users persistence.UserRepository
	orgID string
}

func NewStoreDirectory(users persistence.UserRepository, orgID string) *StoreDirectory {
	return &StoreDirectory{users: users, orgID: orgID}
}

func (d *StoreDirectory) Lookup(ctx context.Context, userID string) (*models.UserProfile, error) {
	if userID == "" {
		return nil, nil
	}

	return d.users.GetByID(ctx, d.orgID, userID)
}
