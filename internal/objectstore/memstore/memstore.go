// Package memstore is an in-memory objectstore.Store fake for tests.
package memstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/printsplit/splitengine/internal/objectstore"
)

type entry struct {
	bytes       []byte
	contentType string
	modified    time.Time
}

// Store is a thread-safe in-memory implementation of objectstore.Store.
type Store struct {
	mu      sync.RWMutex
	objects map[objectstore.Bucket]map[string]entry
	now     func() time.Time
}

var _ objectstore.Store = (*Store)(nil)

// New returns an empty Store. now defaults to time.Now when nil.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		objects: map[objectstore.Bucket]map[string]entry{
			objectstore.Uploads: {},
			objectstore.Results: {},
		},
		now: now,
	}
}

func (s *Store) Put(_ context.Context, bucket objectstore.Bucket, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("memstore: reading put payload for %s/%s: %w", bucket, key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket][key] = entry{bytes: data, contentType: contentType, modified: s.now()}
	return nil
}

func (s *Store) Get(_ context.Context, bucket objectstore.Bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.objects[bucket][key]
	if !ok {
		return nil, fmt.Errorf("memstore: %s/%s not found", bucket, key)
	}
	out := make([]byte, len(e.bytes))
	copy(out, e.bytes)
	return out, nil
}

func (s *Store) Exists(_ context.Context, bucket objectstore.Bucket, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[bucket][key]
	return ok, nil
}

func (s *Store) PresignGet(_ context.Context, bucket objectstore.Bucket, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[bucket][key]; !ok {
		return "", fmt.Errorf("memstore: %s/%s not found", bucket, key)
	}
	return fmt.Sprintf("memstore://%s/%s?ttl=%s", bucket, key, ttl), nil
}

func (s *Store) List(_ context.Context, bucket objectstore.Bucket, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.objects[bucket] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *Store) Delete(_ context.Context, bucket objectstore.Bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects[bucket], key)
	return nil
}

func (s *Store) DeletePrefix(_ context.Context, bucket objectstore.Bucket, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.objects[bucket] {
		if strings.HasPrefix(k, prefix) {
			delete(s.objects[bucket], k)
		}
	}
	return nil
}

func (s *Store) Stat(_ context.Context, bucket objectstore.Bucket, key string) (objectstore.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.objects[bucket][key]
	if !ok {
		return objectstore.ObjectInfo{}, fmt.Errorf("memstore: %s/%s not found", bucket, key)
	}
	return objectstore.ObjectInfo{Key: key, Size: int64(len(e.bytes)), ContentType: e.contentType, LastModified: e.modified}, nil
}
