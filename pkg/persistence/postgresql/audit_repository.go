package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/helioshq/helios/pkg/models"
)

// AuditRepository handles append-only audit trail operations.
type AuditRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sql.DB, logger *slog.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Append inserts an immutable audit entry. There is no update or delete
// path for audit rows.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (id, organization_id, user_id, action, details, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.OrganizationID,
		entry.UserID,
		entry.Action,
		detailsJSON,
		entry.PerformedBy,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// ListRecent returns the newest audit entries first.
func (r *AuditRepository) ListRecent(ctx context.Context, orgID string, limit int) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, organization_id, user_id, action, details, performed_by, created_at
		FROM audit_logs
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	entries := make([]*models.AuditEntry, 0)

	for rows.Next() {
		var (
			entry       models.AuditEntry
			detailsJSON []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.OrganizationID,
			&entry.UserID,
			&entry.Action,
			&detailsJSON,
			&entry.PerformedBy,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		if detailsJSON != nil {
			err := json.Unmarshal(detailsJSON, &entry.Details)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}
