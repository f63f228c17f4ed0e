// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bureau-foundation/devicehub/lib/blobstore"
	"github.com/bureau-foundation/devicehub/lib/schema/device"
)

var errInjected = errors.New("injected store failure")

// memStore is an in-memory Store with per-operation failure injection.
type memStore struct {
	mu sync.Mutex

	users     []device.User
	domains   map[string]device.Domain
	telemetry map[device.Identity]device.Sample
	images    map[device.Identity]device.Image
	blobs     map[string][]byte

	failWrites  bool
	failBlobs   bool
	panicAppend bool
}

func newMemStore() *memStore {
	return &memStore{
		domains:   make(map[string]device.Domain),
		telemetry: make(map[device.Identity]device.Sample),
		images:    make(map[device.Identity]device.Image),
		blobs:     make(map[string][]byte),
	}
}

func (m *memStore) setFailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

func (m *memStore) setFailBlobs(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failBlobs = fail
}

func (m *memStore) setPanicAppend(panics bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicAppend = panics
}

func (m *memStore) AppendUser(_ context.Context, user device.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicAppend {
		panic("store exploded")
	}
	if m.failWrites {
		return errInjected
	}
	for _, existing := range m.users {
		if existing.ID == user.ID {
			return fmt.Errorf("user %q already stored", user.ID)
		}
	}
	m.users = append(m.users, user)
	return nil
}

func (m *memStore) PutDomain(_ context.Context, domain device.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errInjected
	}
	m.domains[domain.Name] = domain
	return nil
}

func (m *memStore) UpsertTelemetry(_ context.Context, id device.Identity, sample device.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errInjected
	}
	m.telemetry[id] = sample
	return nil
}

func (m *memStore) UpsertImage(_ context.Context, id device.Identity, image device.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errInjected
	}
	m.images[id] = image
	return nil
}

func (m *memStore) PutBlob(_ context.Context, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failBlobs {
		return "", errInjected
	}
	ref := blobstore.HashBlob(data).String()
	m.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (m *memStore) ReadBlob(_ context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[ref]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memStore) DeleteBlob(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, ref)
	return nil
}

func (m *memStore) hasBlob(ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[ref]
	return ok
}

func (m *memStore) userCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memStore) domain(name string) (device.Domain, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	domain, ok := m.domains[name]
	return domain, ok
}

func (m *memStore) image(id device.Identity) (device.Image, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	image, ok := m.images[id]
	return image, ok
}
