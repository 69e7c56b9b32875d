package file

import (
	"context"
	"sort"

	"github.com/helioshq/helios/pkg/models"
)

const auditCollection = "audit"

// AuditRepository handles append-only audit trail file operations.
type AuditRepository struct {
	store *store
}

func (r *AuditRepository) Append(_ context.Context, entry *models.AuditEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(auditCollection, entry.ID, entry)
}

func (r *AuditRepository) ListRecent(_ context.Context, orgID string, limit int) ([]*models.AuditEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ids, err := r.store.ids(auditCollection)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.AuditEntry, 0, len(ids))

	for _, id := range ids {
		var entry models.AuditEntry

		found, err := r.store.read(auditCollection, id, &entry)
		if err != nil {
			return nil, err
		}

		if found && entry.OrganizationID == orgID {
			entries = append(entries, &entry)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	return entries, nil
}
