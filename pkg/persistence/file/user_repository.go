package file

import (
	"context"

	"github.com/helioshq/helios/pkg/models"
)

const usersCollection = "users"

// UserRepository resolves directory users from the file store.
type UserRepository struct {
	store *store
}

// userDocument carries the organization scope alongside the profile.
type userDocument struct {
	OrganizationID string             `json:"organization_id"`
	Profile        models.UserProfile `json:"profile"`
}

func (r *UserRepository) GetByID(_ context.Context, orgID, id string) (*models.UserProfile, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var doc userDocument

	found, err := r.store.read(usersCollection, id, &doc)
	if err != nil {
		return nil, err
	}

	if !found || doc.OrganizationID != orgID {
		return nil, nil
	}

	return &doc.Profile, nil
}

// Save seeds or updates a directory user. Not part of the persistence
// interface; tests and local development use it to populate the directory.
func (r *UserRepository) Save(_ context.Context, orgID string, profile *models.UserProfile) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc := userDocument{OrganizationID: orgID, Profile: *profile}

	return r.store.write(usersCollection, profile.ID, doc)
}
