// Package storage issues upload URLs for certificate documents and checks
// that uploaded objects exist.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrStorageUnavailable = errors.New("file storage not configured")

// FileStore is the object storage behind certificate file references
type FileStore interface {
	// PresignUpload returns a URL the client can PUT the document to
	PresignUpload(ctx context.Context, key, contentType string) (string, time.Time, error)
	// Exists reports whether an object was uploaded under key
	Exists(ctx context.Context, key string) (bool, error)
}

// MemoryStore keeps object keys in memory. Presigned URLs point at a fake host.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]struct{}
	ttl     time.Duration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]struct{}), ttl: 15 * time.Minute}
}

func (m *MemoryStore) PresignUpload(ctx context.Context, key, contentType string) (string, time.Time, error) {
	return "memory://uploads/" + key, time.Now().Add(m.ttl), nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

// Put marks key as uploaded
func (m *MemoryStore) Put(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = struct{}{}
}

// Unconfigured is used when no bucket is set: references are accepted as-is
// and upload URLs cannot be issued.
type Unconfigured struct{}

func (Unconfigured) PresignUpload(context.Context, string, string) (string, time.Time, error) {
	return "", time.Time{}, ErrStorageUnavailable
}

func (Unconfigured) Exists(context.Context, string) (bool, error) {
	return true, nil
}
