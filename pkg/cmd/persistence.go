// Package cmd provides shared construction helpers for the Helios binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/helioshq/helios/pkg/persistence"
	"github.com/helioshq/helios/pkg/persistence/file"
	"github.com/helioshq/helios/pkg/persistence/postgresql"
)

// NewPersistence selects a backend from the database URL scheme. Postgres
// URLs get the SQL backend with migrations applied; anything else falls
// back to the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)

	return parts[0]
}
