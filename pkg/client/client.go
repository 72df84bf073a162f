// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package client is the runtime's public control-plane library (§4.7):
// define vertex types, instantiate (plain or sharded) vertices, connect and
// disconnect endpoints, and register detached (client-hosted) vertices.
// Grounded on client/blb/client.go's Client: an Options struct, a
// newBaseClient-style constructor wiring a retry.Retrier and per-op
// Prometheus metrics keyed by an "instance" label, with the concrete
// backend (there, RPC master/curator/tractserver talkers; here, an already-
// open tableservice.TableService) plugged in by the exported constructor.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/westerndigitalcorporation/cra/internal/artifactstore"
	"github.com/westerndigitalcorporation/cra/internal/connection"
	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/metadata"
	"github.com/westerndigitalcorporation/cra/internal/sharding"
	"github.com/westerndigitalcorporation/cra/internal/streampool"
	"github.com/westerndigitalcorporation/cra/internal/tableservice"
	"github.com/westerndigitalcorporation/cra/pkg/retry"
)

var (
	opLatencies = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Subsystem: "cra_client",
		Name:      "latencies",
	}, []string{"op", "instance"})
	opCounts = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "cra_client",
		Name:      "ops",
	}, []string{"op", "result", "instance"})
)

// Options configures a Client.
type Options struct {
	// DisableRetry makes every call attempt exactly once.
	DisableRetry bool
	// RetryTimeout bounds the total time spent retrying a single call
	// (default 30s).
	RetryTimeout time.Duration
	// Instance labels this client's metrics, distinguishing multiple
	// clients in the same process (default "default").
	Instance string
	// MaxPooledStreams bounds the client's outbound stream pool.
	MaxPooledStreams int
}

// Client is the control-plane handle used to define, instantiate, and wire
// vertices.
type Client struct {
	instance string
	retrier  retry.Retrier

	ts        tableservice.TableService
	instances *metadata.InstanceManager
	vertices  *metadata.VertexManager
	endpoints *metadata.EndpointManager
	conns     *metadata.ConnectionManager
	sharded   *metadata.ShardedVertexManager
	artifacts artifactstore.Store
	pool      *streampool.Pool
	engine    *connection.Engine

	metricDefine      prometheus.Observer
	metricInstantiate prometheus.Observer
	metricConnect     prometheus.Observer
	metricDisconnect  prometheus.Observer
}

// newBaseClient wires the metadata managers and metrics common to every
// constructor, mirroring client/blb/client.go's newBaseClient.
func newBaseClient(options *Options, ts tableservice.TableService, artifacts artifactstore.Store) *Client {
	var retrier retry.Retrier
	if options.DisableRetry {
		retrier = retry.Retrier{MaxNumRetries: 1}
	} else {
		if options.RetryTimeout == 0 {
			options.RetryTimeout = 30 * time.Second
		}
		retrier = retry.Retrier{
			MinSleep: 500 * time.Millisecond,
			MaxSleep: options.RetryTimeout,
			MaxRetry: options.RetryTimeout,
		}
	}
	if options.Instance == "" {
		options.Instance = "default"
	}
	if options.MaxPooledStreams == 0 {
		options.MaxPooledStreams = 64
	}

	instances := metadata.NewInstanceManager(ts)
	vertices := metadata.NewVertexManager(ts)
	endpoints := metadata.NewEndpointManager(ts)
	conns := metadata.NewConnectionManager(ts)
	pool := streampool.New(options.MaxPooledStreams)

	c := &Client{
		instance:          options.Instance,
		retrier:           retrier,
		ts:                ts,
		instances:         instances,
		vertices:          vertices,
		endpoints:         endpoints,
		conns:             conns,
		sharded:           metadata.NewShardedVertexManager(ts),
		artifacts:         artifacts,
		pool:              pool,
		metricDefine:      opLatencies.WithLabelValues("define", options.Instance),
		metricInstantiate: opLatencies.WithLabelValues("instantiate", options.Instance),
		metricConnect:     opLatencies.WithLabelValues("connect", options.Instance),
		metricDisconnect:  opLatencies.WithLabelValues("disconnect", options.Instance),
	}
	c.engine = connection.NewEngine(instances, conns, vertices, pool, nil)
	return c
}

// NewClient returns a Client backed by the metadata store and artifact
// store the caller already opened (see internal/tableservice.Open for the
// connection-string resolution a client binary should reuse).
func NewClient(ts tableservice.TableService, artifacts artifactstore.Store, options Options) *Client {
	return newBaseClient(&options, ts, artifacts)
}

// NewMockClient returns a Client over an in-memory store, for tests.
func NewMockClient() *Client {
	options := Options{DisableRetry: true}
	return newBaseClient(&options, tableservice.NewMemory(), artifactstore.NewMemory())
}

func observe(obs prometheus.Observer, start time.Time) {
	obs.Observe(time.Since(start).Seconds())
}

// recordResult increments the per-op/result/instance counter, letting
// dashboards distinguish a quiet client (no calls) from a failing one.
func (c *Client) recordResult(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	opCounts.WithLabelValues(op, result, c.instance).Inc()
}

// DefineVertex registers a vertex definition by factory key (§3.1, §4.7).
func (c *Client) DefineVertex(ctx context.Context, name, factoryKey string, isSharded bool) (err error) {
	defer observe(c.metricDefine, time.Now())
	defer func() { c.recordResult("define", err) }()
	if !core.IsValidDefinitionName(name) {
		return core.ErrInvalidArgument.AsError()
	}
	return c.vertices.Define(ctx, metadata.VertexDefinition{Name: name, FactoryKey: factoryKey, IsSharded: isSharded})
}

// InstantiateVertex creates a single, unsharded vertex named vertexName from
// definition on instance, with the given serialized parameters (§4.7).
func (c *Client) InstantiateVertex(ctx context.Context, instance, vertexName, definition string, params []byte) (err error) {
	defer observe(c.metricInstantiate, time.Now())
	defer func() { c.recordResult("instantiate", err) }()
	if _, ok, defErr := c.vertices.Definition(ctx, definition); defErr != nil {
		err = defErr
		return err
	} else if !ok {
		err = core.VertexNotDefined.AsError()
		return err
	}
	err = c.vertices.Put(ctx, metadata.VertexRow{Instance: instance, VertexName: vertexName, Definition: definition, Params: params})
	return err
}

// InstantiateShardedVertex creates shardsPerInstance shards on each of
// instances, then publishes the
// resulting ShardingInfo (§4.8: "writes the sharded descriptor after
// launching all shards' instantiations, then awaits all results").
func (c *Client) InstantiateShardedVertex(ctx context.Context, instances []string, base, definition string, params []byte, shardsPerInstance int, locatorName string) (err error) {
	defer observe(c.metricInstantiate, time.Now())
	defer func() { c.recordResult("instantiate_sharded", err) }()
	if _, ok, defErr := c.vertices.Definition(ctx, definition); defErr != nil {
		err = defErr
		return err
	} else if !ok {
		err = core.VertexNotDefined.AsError()
		return err
	}
	if _, ok := sharding.LookupLocator(locatorName); !ok {
		err = fmt.Errorf("cra: unknown shard locator %q", locatorName)
		return err
	}

	total := len(instances) * shardsPerInstance
	allShards := make([]int, total)
	for i := range allShards {
		allShards[i] = i
	}

	err = sharding.Fanout(total, func(shardIdx int) error {
		inst := instances[shardIdx/shardsPerInstance]
		name := core.ShardVertexName(base, shardIdx)
		return c.vertices.Put(ctx, metadata.VertexRow{Instance: inst, VertexName: name, Definition: definition, Params: params})
	})

	regErr := c.sharded.Register(ctx, metadata.ShardingInfo{
		BaseName:     base,
		AllInstances: instances,
		AllShards:    allShards,
		Locator:      locatorName,
	})
	if err != nil {
		return err
	}
	return regErr
}

// Connect establishes fromVertex.fromEndpoint -> toVertex.toEndpoint,
// dialing through initiator (§4.6, §4.7).
func (c *Client) Connect(ctx context.Context, fromVertex, fromEndpoint, toVertex, toEndpoint string, initiator core.ConnectionInitiator) (err error) {
	defer observe(c.metricConnect, time.Now())
	defer func() { c.recordResult("connect", err) }()
	var code core.Error
	c.retrier.Do(ctx, func(int) bool {
		code = c.engine.Connect(ctx, fromVertex, fromEndpoint, toVertex, toEndpoint, initiator)
		return code == core.Success || !code.IsRetriable()
	})
	err = code.AsError()
	return err
}

// Disconnect removes the connection; fire-and-forget per §4.7/§7.
func (c *Client) Disconnect(ctx context.Context, fromVertex, fromEndpoint, toVertex, toEndpoint string) {
	defer observe(c.metricDisconnect, time.Now())
	c.engine.Disconnect(ctx, fromVertex, fromEndpoint, toVertex, toEndpoint)
	c.recordResult("disconnect", nil)
}

// ConnectShardedVerticesWithFullMesh wires every shard of fromBase to every
// shard of toBase per the full-mesh arity rule (§4.7, §4.8).
func (c *Client) ConnectShardedVerticesWithFullMesh(ctx context.Context, fromBase string, fromShards int, fromEndpoints []string, toBase string, toShards int, toEndpoints []string) (err error) {
	defer func() { c.recordResult("connect_full_mesh", err) }()
	edges, code := sharding.FullMesh(fromBase, fromShards, fromEndpoints, toBase, toShards, toEndpoints)
	if code != core.Success {
		err = code.AsError()
		return err
	}
	err = sharding.Fanout(len(edges), func(i int) error {
		e := edges[i]
		return c.Connect(ctx, e.FromVertex, e.FromEndpoint, e.ToVertex, e.ToEndpoint, core.FromSide)
	})
	return err
}

// DeleteVertex removes a vertex's row, its endpoints, and every connection
// touching it (§4.7).
func (c *Client) DeleteVertex(ctx context.Context, instance, vertexName string) (err error) {
	defer func() { c.recordResult("delete_vertex", err) }()
	if _, delErr := c.conns.DeleteAllForVertex(ctx, vertexName); delErr != nil {
		err = delErr
		return err
	}
	if delErr := c.endpoints.DeleteAllForVertex(ctx, vertexName); delErr != nil {
		err = delErr
		return err
	}
	err = c.vertices.Delete(ctx, instance, vertexName)
	return err
}

// DeleteInstance removes an instance's registration row. It does not
// cascade to vertices hosted on it (§4.3's dangling-row tolerance).
func (c *Client) DeleteInstance(ctx context.Context, instance string) (err error) {
	defer func() { c.recordResult("delete_instance", err) }()
	err = c.instances.Delete(ctx, instance)
	return err
}

// Reset drops all five reserved tables (§4.7: "intended for tests and fresh
// bring-up").
func (c *Client) Reset(ctx context.Context) (err error) {
	defer func() { c.recordResult("reset", err) }()
	err = c.ts.Reset(ctx)
	return err
}
