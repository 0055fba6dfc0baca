// Package contracts keeps the compiled contracts of a deploy run
package contracts

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/pvgupta24/embark/internal/models"
)

// Registry is an insertion ordered set of contracts keyed by class name
// List and Get hand out the stored pointers, which the deployment pipeline
// updates in place; readers on other goroutines use the snapshot methods
type Registry struct {
	mu        sync.RWMutex
	order     []string
	contracts map[string]*models.Contract
}

// NewRegistry creates a registry holding contracts
func NewRegistry(contracts ...*models.Contract) *Registry {
	r := &Registry{contracts: make(map[string]*models.Contract)}
	for _, c := range contracts {
		r.Add(c)
	}
	return r
}

// Load reads a JSON manifest: a list of compiled contract descriptors
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contracts manifest: %w", err)
	}

	var list []*models.Contract
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse contracts manifest %s: %w", path, err)
	}

	r := NewRegistry()
	for i, c := range list {
		if c == nil || c.ClassName == "" {
			return nil, fmt.Errorf("contract #%d in %s has no className", i, path)
		}
		if _, exists := r.Get(c.ClassName); exists {
			return nil, fmt.Errorf("duplicate contract %s in %s", c.ClassName, path)
		}
		r.Add(c)
	}
	return r, nil
}

// Add inserts or replaces a contract
func (r *Registry) Add(c *models.Contract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contracts[c.ClassName]; !exists {
		r.order = append(r.order, c.ClassName)
	}
	r.contracts[c.ClassName] = c
}

// List returns every contract in insertion order
func (r *Registry) List() []*models.Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*models.Contract, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.contracts[name])
	}
	return result
}

// Get returns the contract named name
func (r *Registry) Get(name string) (*models.Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[name]
	return c, ok
}

// SetBytecode replaces the code of a contract
func (r *Registry) SetBytecode(name, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[name]
	if !ok {
		return fmt.Errorf("unknown contract %s", name)
	}
	c.Update(func(c *models.Contract) { c.Code = code })
	return nil
}

// Snapshots returns a consistent copy of every contract in insertion order
func (r *Registry) Snapshots() []*models.Contract {
	list := r.List()
	for i, c := range list {
		list[i] = c.Snapshot()
	}
	return list
}

// Snapshot returns a consistent copy of the contract named name
func (r *Registry) Snapshot(name string) (*models.Contract, bool) {
	c, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	return c.Snapshot(), true
}
