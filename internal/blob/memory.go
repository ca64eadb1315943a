package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"presupuestos/internal/core"
)

type object struct {
	contentType string
	data        []byte
}

// MemoryStore keeps receipts in process. Used by tests and the memory backend.
type MemoryStore struct {
	mu        sync.RWMutex
	container string
	objects   map[string]object
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{container: DefaultContainer, objects: map[string]object{}, now: time.Now}
}

func (s *MemoryStore) Upload(_ context.Context, filename, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read receipt: %w", err)
	}
	name := NewName(filename, s.now())
	s.mu.Lock()
	s.objects[name] = object{contentType: contentType, data: data}
	s.mu.Unlock()
	return name, nil
}

func (s *MemoryStore) Resolve(_ context.Context, ref string) (string, error) {
	if err := validRef(ref); err != nil {
		return "", core.Invalid(err)
	}
	s.mu.RLock()
	_, ok := s.objects[ref]
	s.mu.RUnlock()
	if !ok {
		return "", core.Failf(core.KindNotFound, "receipt %s", ref)
	}
	return fmt.Sprintf("memory://%s/%s", s.container, ref), nil
}

func (s *MemoryStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[ref]; !ok {
		return core.Failf(core.KindNotFound, "receipt %s", ref)
	}
	delete(s.objects, ref)
	return nil
}

// Open returns the stored bytes and content type of ref.
func (s *MemoryStore) Open(ref string) (io.Reader, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[ref]
	if !ok {
		return nil, "", false
	}
	return bytes.NewReader(o.data), o.contentType, true
}

// Len returns the number of stored receipts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
