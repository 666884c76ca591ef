package session_test

import (
	"context"
	"sync"

	"github.com/florianilch/cloudsession/internal/recordstore"
	"github.com/florianilch/cloudsession/internal/secretstore"
)

// faultyRecords passes through to a record store unless a key is set to fail.
type faultyRecords struct {
	recordstore.Store

	mu        sync.Mutex
	setErr    map[string]error
	deleteErr map[string]error
}

func newFaultyRecords(store recordstore.Store) *faultyRecords {
	return &faultyRecords{Store: store, setErr: map[string]error{}, deleteErr: map[string]error{}}
}

func (r *faultyRecords) failSet(key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setErr[key] = err
}

func (r *faultyRecords) failDelete(key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteErr[key] = err
}

func (r *faultyRecords) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	err := r.setErr[key]
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Store.Set(ctx, key, value)
}

func (r *faultyRecords) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	err := r.deleteErr[key]
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Store.Delete(ctx, key)
}

// faultySecrets passes through to a secret store unless deletes are set to fail.
type faultySecrets struct {
	secretstore.Store

	mu        sync.Mutex
	deleteErr error
}

func (s *faultySecrets) failDelete(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErr = err
}

func (s *faultySecrets) Delete(ctx context.Context, service, key string) error {
	s.mu.Lock()
	err := s.deleteErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Delete(ctx, service, key)
}
