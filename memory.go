package escalation

import (
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Releasable represents any resource backed by Arrow memory.
//
// Datasets, frames and series implement it. Always call Release() when
// done with a resource:
//
//	ds, err := escalation.LoadDataset("complaints.csv", "", nil)
//	if err != nil {
//		return err
//	}
//	defer ds.Release()
type Releasable interface {
	Release()
}

// MemoryManager tracks short-lived resources and releases them together.
//
// Scoring uses one to hold the per-chunk frames of a prediction run; each
// chunk is released once scored and ReleaseAll covers early exits. It is
// safe for concurrent use.
type MemoryManager struct {
	allocator memory.Allocator
	resources []Releasable
	mu        sync.Mutex
}

// NewMemoryManager creates a new memory manager with the given allocator
func NewMemoryManager(allocator memory.Allocator) *MemoryManager {
	return &MemoryManager{
		allocator: allocator,
		resources: make([]Releasable, 0),
	}
}

// Allocator returns the allocator resources should be built with.
func (m *MemoryManager) Allocator() memory.Allocator {
	return m.allocator
}

// Track adds a resource to be released by ReleaseAll
func (m *MemoryManager) Track(resource Releasable) {
	if resource != nil {
		m.mu.Lock()
		m.resources = append(m.resources, resource)
		m.mu.Unlock()
	}
}

// Release releases one tracked resource now and stops tracking it. An
// untracked resource is released as well.
func (m *MemoryManager) Release(resource Releasable) {
	if resource == nil {
		return
	}
	m.mu.Lock()
	for i, r := range m.resources {
		if r == resource {
			m.resources = append(m.resources[:i], m.resources[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	resource.Release()
}

// Count returns the number of tracked resources
func (m *MemoryManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resources)
}

// ReleaseAll releases all tracked resources and clears the tracking list
func (m *MemoryManager) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, resource := range m.resources {
		resource.Release()
	}
	m.resources = m.resources[:0]
}

// WithDatasetFile loads a dataset, runs fn with it and releases it afterwards.
func WithDatasetFile(path, sheet string, allocator memory.Allocator, fn func(*Dataset) error) error {
	ds, err := LoadDataset(path, sheet, allocator)
	if err != nil {
		return err
	}
	defer ds.Release()
	return fn(ds)
}

// WithMemoryManager creates a memory manager, executes a function with it, and releases all tracked resources
func WithMemoryManager(allocator memory.Allocator, fn func(*MemoryManager) error) error {
	manager := NewMemoryManager(allocator)
	defer manager.ReleaseAll()
	return fn(manager)
}
