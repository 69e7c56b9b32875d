package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/helioshq/helios/pkg/models"
)

// UserRepository resolves directory users for display enrichment and
// role-based task visibility. Account management lives outside this core;
// only the read path exists here.
type UserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sql.DB, logger *slog.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// GetByID returns a user profile, or nil when no such user exists.
func (r *UserRepository) GetByID(ctx context.Context, orgID, id string) (*models.UserProfile, error) {
	query := `
		SELECT id, email, first_name, last_name, role
		FROM org_users
		WHERE id = $1 AND organization_id = $2
	`

	var profile models.UserProfile

	err := r.db.QueryRowContext(ctx, query, id, orgID).Scan(
		&profile.ID,
		&profile.Email,
		&profile.FirstName,
		&profile.LastName,
		&profile.Role,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}

	return &profile, nil
}
