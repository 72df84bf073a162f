// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package vertex defines the in-process vertex lifecycle contract (§4.4):
// the Vertex interface user code implements, the EndpointRegistrar
// capability the worker injects at Initialize time, and a Base struct new
// vertex types can embed. Grounded on the handler-embeds-dependencies shape
// of the teacher's TSCtlHandler/TSSrvHandler (deleted
// internal/tractserver/server.go) — pattern only, no surviving file.
package vertex

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/westerndigitalcorporation/cra/internal/metadata"
)

// InputEndpoint consumes an inbound byte stream until the peer closes it;
// EOF must be treated as normal termination (§5).
type InputEndpoint interface {
	HandleInput(ctx context.Context, r io.Reader) error
}

// OutputEndpoint produces an outbound byte stream.
type OutputEndpoint interface {
	HandleOutput(ctx context.Context, w io.WriteCloser) error
}

// EndpointRegistrar is the runtime-provided capability a vertex's
// Initialize receives, replacing the source's mutable callback-slot design
// (§9): calling Add* both records the endpoint locally on the vertex and
// persists the corresponding endpoint row.
type EndpointRegistrar interface {
	AddInputEndpoint(name string, ep InputEndpoint) error
	AddOutputEndpoint(name string, ep OutputEndpoint) error
	AddAsyncInputEndpoint(name string, ep InputEndpoint) error
	AddAsyncOutputEndpoint(name string, ep OutputEndpoint) error
}

// Vertex is the interface every user computation object must implement.
type Vertex interface {
	// Initialize is called once, synchronously, after construction. It may
	// register endpoints via the given registrar.
	Initialize(ctx context.Context, params []byte, registrar EndpointRegistrar) error
	// Dispose releases resources. The runtime guarantees it is called
	// exactly once and that no further endpoint callbacks fire afterward.
	Dispose()
}

// ShardedVertex is implemented by vertex types that need to know their
// shard index; the runtime passes it as the first element of the parameter
// tuple (§4.4).
type ShardedVertex interface {
	Vertex
	SetShardIndex(index int)
}

// Factory constructs a new, uninitialized vertex instance.
type Factory func() Vertex

var (
	registryMu sync.Mutex
	registry   = make(map[string]Factory)
)

// RegisterFactory registers a named vertex-type constructor (§3.1). Workers
// must register every vertex type they can host before accepting
// connections; this is a process-global registry, mirroring
// platform/dyconfig's register-then-resolve shape.
func RegisterFactory(key string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[key] = f
}

// Lookup resolves a factory-registry key to its Factory. ok is false if no
// factory was registered under key.
func Lookup(key string) (Factory, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	f, ok := registry[key]
	return f, ok
}

// Base is an embeddable struct implementing the bookkeeping half of the
// EndpointRegistrar contract: local maps keyed by endpoint name. The
// hosting worker builds one Base per loaded vertex with NewBase, supplying
// the persistence callback, and passes it to the vertex's Initialize as its
// EndpointRegistrar (see internal/worker's loadVertex).
type Base struct {
	mu           sync.Mutex
	input        map[string]InputEndpoint
	output       map[string]OutputEndpoint
	asyncInput   map[string]InputEndpoint
	asyncOutput  map[string]OutputEndpoint
	onRegistered func(name string, dir metadata.Direction, async metadata.Async) error
}

// NewBase returns a Base whose registration callback is onRegistered. A nil
// callback is permitted for vertex types used outside a worker (e.g. in
// tests), in which case endpoints are only tracked locally.
func NewBase(onRegistered func(name string, dir metadata.Direction, async metadata.Async) error) *Base {
	return &Base{
		input:       make(map[string]InputEndpoint),
		output:      make(map[string]OutputEndpoint),
		asyncInput:  make(map[string]InputEndpoint),
		asyncOutput: make(map[string]OutputEndpoint),
		onRegistered: onRegistered,
	}
}

func (b *Base) notify(name string, dir metadata.Direction, async metadata.Async) error {
	if b.onRegistered == nil {
		return nil
	}
	return b.onRegistered(name, dir, async)
}

// AddInputEndpoint implements EndpointRegistrar.
func (b *Base) AddInputEndpoint(name string, ep InputEndpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.notify(name, metadata.Input, metadata.Sync); err != nil {
		return err
	}
	b.input[name] = ep
	return nil
}

// AddOutputEndpoint implements EndpointRegistrar.
func (b *Base) AddOutputEndpoint(name string, ep OutputEndpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.notify(name, metadata.Output, metadata.Sync); err != nil {
		return err
	}
	b.output[name] = ep
	return nil
}

// AddAsyncInputEndpoint implements EndpointRegistrar.
func (b *Base) AddAsyncInputEndpoint(name string, ep InputEndpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.notify(name, metadata.Input, metadata.AsyncMode); err != nil {
		return err
	}
	b.asyncInput[name] = ep
	return nil
}

// AddAsyncOutputEndpoint implements EndpointRegistrar.
func (b *Base) AddAsyncOutputEndpoint(name string, ep OutputEndpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.notify(name, metadata.Output, metadata.AsyncMode); err != nil {
		return err
	}
	b.asyncOutput[name] = ep
	return nil
}

// Input returns the registered input endpoint named name, sync or async.
func (b *Base) Input(name string) (InputEndpoint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ep, ok := b.input[name]; ok {
		return ep, true
	}
	ep, ok := b.asyncInput[name]
	return ep, ok
}

// Output returns the registered output endpoint named name, sync or async.
func (b *Base) Output(name string) (OutputEndpoint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ep, ok := b.output[name]; ok {
		return ep, true
	}
	ep, ok := b.asyncOutput[name]
	return ep, ok
}

// EndpointNames returns the names of every registered endpoint, regardless
// of direction or synchrony.
func (b *Base) EndpointNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for name := range b.input {
		out = append(out, name)
	}
	for name := range b.output {
		out = append(out, name)
	}
	for name := range b.asyncInput {
		out = append(out, name)
	}
	for name := range b.asyncOutput {
		out = append(out, name)
	}
	return out
}

// ErrUnknownEndpoint is returned when a connection names an endpoint the
// vertex never registered.
type ErrUnknownEndpoint struct {
	Vertex, Endpoint string
}

func (e *ErrUnknownEndpoint) Error() string {
	return fmt.Sprintf("vertex %q has no endpoint %q", e.Vertex, e.Endpoint)
}
