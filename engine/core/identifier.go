package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Identifiers hands out unique ids to owners (contexts, command lists) and
// remembers who owns each of them until released.
type Identifiers struct {
	mu     sync.Mutex
	owners map[uuid.UUID]interface{}
}

func NewIdentifiers() *Identifiers {
	return &Identifiers{
		owners: make(map[uuid.UUID]interface{}),
	}
}

func (ids *Identifiers) AcquireNewID(owner interface{}) uuid.UUID {
	ids.mu.Lock()
	defer ids.mu.Unlock()

	id := uuid.New()
	ids.owners[id] = owner
	return id
}

// Register records owner under an id created elsewhere.
func (ids *Identifiers) Register(id uuid.UUID, owner interface{}) error {
	ids.mu.Lock()
	defer ids.mu.Unlock()

	if _, exists := ids.owners[id]; exists {
		return fmt.Errorf("identifier register: id '%s' is already registered", id)
	}
	ids.owners[id] = owner
	return nil
}

func (ids *Identifiers) ReleaseID(id uuid.UUID) error {
	ids.mu.Lock()
	defer ids.mu.Unlock()

	if _, exists := ids.owners[id]; !exists {
		return fmt.Errorf("identifier release: id '%s' is not registered. Nothing was done", id)
	}
	delete(ids.owners, id)
	return nil
}

func (ids *Identifiers) Owner(id uuid.UUID) (interface{}, bool) {
	ids.mu.Lock()
	defer ids.mu.Unlock()

	owner, ok := ids.owners[id]
	return owner, ok
}

func (ids *Identifiers) Count() int {
	ids.mu.Lock()
	defer ids.mu.Unlock()
	return len(ids.owners)
}
