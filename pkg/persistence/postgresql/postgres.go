// Package postgresql provides PostgreSQL persistence implementation for
// lifecycle requests, tasks, the audit trail, and the user directory.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/helioshq/helios/pkg/persistence"
	"github.com/helioshq/helios/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	requestRepo *RequestRepository
	taskRepo    *TaskRepository
	auditRepo   *AuditRepository
	userRepo    *UserRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:          database,
		logger:      logger,
		requestRepo: NewRequestRepository(database, logger),
		taskRepo:    NewTaskRepository(database, logger),
		auditRepo:   NewAuditRepository(database, logger),
		userRepo:    NewUserRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) RequestRepository() persistence.RequestRepository {
	return p.requestRepo
}

func (p *Persistence) TaskRepository() persistence.TaskRepository {
	return p.taskRepo
}

func (p *Persistence) AuditRepository() persistence.AuditRepository {
	return p.auditRepo
}

func (p *Persistence) UserRepository() persistence.UserRepository {
	return p.userRepo
}
