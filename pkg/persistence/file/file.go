// Package file provides file-based persistence for lifecycle requests,
// tasks, the audit trail, and the user directory. Each entity is one JSON
// document under the root directory. A process-wide mutex serializes
// writes so the guarded transition semantics of the SQL backend hold here
// too. Intended for tests and local development.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/helioshq/helios/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the
// file system.
type Persistence struct {
	store       *store
	requestRepo *RequestRepository
	taskRepo    *TaskRepository
	auditRepo   *AuditRepository
	userRepo    *UserRepository
}

// NewPersistence creates a new instance of Persistence with the specified
// root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	s := &store{root: cleanRoot}

	return &Persistence{
		store:       s,
		requestRepo: &RequestRepository{store: s},
		taskRepo:    &TaskRepository{store: s},
		auditRepo:   &AuditRepository{store: s},
		userRepo:    &UserRepository{store: s},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there
// is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.store.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) RequestRepository() persistence.RequestRepository {
	return fp.requestRepo
}

func (fp *Persistence) TaskRepository() persistence.TaskRepository {
	return fp.taskRepo
}

func (fp *Persistence) AuditRepository() persistence.AuditRepository {
	return fp.auditRepo
}

func (fp *Persistence) UserRepository() persistence.UserRepository {
	return fp.userRepo
}

// Users returns the concrete user repository, which carries a Save method
// for seeding directory users in tests and local development.
func (fp *Persistence) Users() *UserRepository {
	return fp.userRepo
}

// store is the shared document store underneath the repositories.
type store struct {
	root string
	mu   sync.Mutex
}

func (s *store) dir(collection string) string {
	return filepath.Join(s.root, collection)
}

func (s *store) path(collection, id string) string {
	return filepath.Join(s.root, collection, id+".json")
}

// write persists a document, creating the collection directory on first use.
func (s *store) write(collection, id string, doc any) error {
	err := os.MkdirAll(s.dir(collection), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", collection, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s document: %w", collection, err)
	}

	err = os.WriteFile(s.path(collection, id), data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s document: %w", collection, err)
	}

	return nil
}

// read loads a document into target. It reports found=false when the
// document does not exist.
func (s *store) read(collection, id string, target any) (bool, error) {
	data, err := os.ReadFile(s.path(collection, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s document: %w", collection, err)
	}

	err = json.Unmarshal(data, target)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s document: %w", collection, err)
	}

	return true, nil
}

// ids lists the document ids in a collection.
func (s *store) ids(collection string) ([]string, error) {
	root := os.DirFS(s.dir(collection))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s documents: %w", collection, err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, name := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}

// remove deletes a document. Missing documents are not an error.
func (s *store) remove(collection, id string) error {
	err := os.Remove(s.path(collection, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s document: %w", collection, err)
	}

	return nil
}
