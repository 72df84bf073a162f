// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package artifactstore models the external collaborator that maps a vertex
// definition name to the opaque binary needed to instantiate vertices of
// that type on a worker (§1, non-goal: "artifact packaging and binary
// distribution"). It is specified only as an interface in the original
// design; this repo also carries a concrete, exercised filesystem-backed
// implementation, grounded on the local-file-backed blob storage shape of
// the teacher's (deleted) pkg/disk package.
package artifactstore

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"

	"github.com/westerndigitalcorporation/cra/internal/core"
)

// Store uploads and downloads opaque vertex-definition binaries.
type Store interface {
	// Put uploads the binary for definition, replacing any prior one.
	Put(ctx context.Context, definition string, binary []byte) error
	// Get downloads the binary for definition. ok is false if none is
	// stored.
	Get(ctx context.Context, definition string) (binary []byte, ok bool, err error)
	// Delete removes the binary for definition, if any.
	Delete(ctx context.Context, definition string) error
}

// FileStore is a filesystem-backed Store, storing one snappy-compressed
// file per definition under "<root>/cra/<definition>/binaries" (§6's
// "Artifact blob container cra with entries <definition>/binaries").
// Compression via github.com/golang/snappy: definition binaries are cold,
// read-rarely blobs and a fast block compressor is the obvious fit for a
// dependency the teacher's go.mod carries but that this repo otherwise has
// no domain use for.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore returns a Store rooted at root (created if absent).
func NewFileStore(root string) (*FileStore, error) {
	dir := filepath.Join(root, core.ArtifactContainerName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{root: dir}, nil
}

func (s *FileStore) path(definition string) string {
	return filepath.Join(s.root, definition, "binaries")
}

// Put implements Store.
func (s *FileStore) Put(_ context.Context, definition string, binary []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.path(definition)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return ioutil.WriteFile(p, snappy.Encode(nil, binary), 0644)
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, definition string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	compressed, err := ioutil.ReadFile(s.path(definition))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	binary, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, false, err
	}
	return binary, true, nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, definition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.RemoveAll(filepath.Join(s.root, definition))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Memory is an in-memory Store for tests, mirroring the teacher's mem_*
// mock pattern (same rationale as tableservice.Memory).
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, definition string, binary []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(binary))
	copy(cp, binary)
	m.data[definition] = cp
	return nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, definition string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[definition]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, definition string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, definition)
	return nil
}
