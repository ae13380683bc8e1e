package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileStore keeps the whole registry in a single JSON document keyed by
// origin, rewritten wholesale on every mutation. Reads always hit the file,
// so edits made by another process are visible on the next request. The mutex
// only guards in-process access; concurrent writers from separate processes
// race with last-completed-write-wins.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore returns a store backed by the JSON document at path. A missing
// file reads as an empty registry.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) load() (map[string]Resource, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Resource{}, nil
		}
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	resources := map[string]Resource{}
	if len(data) == 0 {
		return resources, nil
	}
	if err := json.Unmarshal(data, &resources); err != nil {
		return nil, fmt.Errorf("decode registry file: %w", err)
	}
	return resources, nil
}

func (s *FileStore) save(resources map[string]Resource) error {
	data, err := json.MarshalIndent(resources, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write registry file: %w", err)
	}
	return nil
}

// Get implements Registry.
func (s *FileStore) Get(ctx context.Context, origin string) (Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resources, err := s.load()
	if err != nil {
		return Resource{}, err
	}
	res, ok := resources[origin]
	if !ok {
		return Resource{}, ErrNotFound
	}
	return res, nil
}

// List implements Registry.
func (s *FileStore) List(ctx context.Context) (map[string]Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

// Create implements Registry.
func (s *FileStore) Create(ctx context.Context, origin string, res Resource) (Resource, error) {
	canonical, err := validateCreate(origin, res)
	if err != nil {
		return Resource{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resources, err := s.load()
	if err != nil {
		return Resource{}, err
	}
	if _, ok := resources[canonical]; ok {
		return Resource{}, ErrExists
	}
	stampNew(&res)
	resources[canonical] = res
	if err := s.save(resources); err != nil {
		return Resource{}, err
	}
	return res, nil
}

// Update implements Registry.
func (s *FileStore) Update(ctx context.Context, origin string, upd Update) (Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resources, err := s.load()
	if err != nil {
		return Resource{}, err
	}
	res, ok := resources[origin]
	if !ok {
		return Resource{}, ErrNotFound
	}
	upd.apply(&res)
	resources[origin] = res
	if err := s.save(resources); err != nil {
		return Resource{}, err
	}
	return res, nil
}

// Delete implements Registry.
func (s *FileStore) Delete(ctx context.Context, origin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resources, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := resources[origin]; !ok {
		return ErrNotFound
	}
	delete(resources, origin)
	return s.save(resources)
}
