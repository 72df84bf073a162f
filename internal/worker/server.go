// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package worker implements the per-machine server (§4.5): registration,
// vertex loading, the tagged control-message dispatch loop, and the
// reconcile loop that opportunistically re-establishes connections after a
// restart. Grounded directly on internal/tractserver/server.go (read in
// full before deletion): the Server-struct-plus-background-goroutines
// shape, per-handler OpMetric/Semaphore/OpFailure wiring, and the
// status/_quit HTTP routes.
package worker

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	log "github.com/golang/glog"
	sigar "github.com/cloudfoundry/gosigar"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/westerndigitalcorporation/cra/internal/artifactstore"
	"github.com/westerndigitalcorporation/cra/internal/connection"
	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/metadata"
	"github.com/westerndigitalcorporation/cra/internal/server"
	"github.com/westerndigitalcorporation/cra/internal/streampool"
	"github.com/westerndigitalcorporation/cra/internal/vertex"
	"github.com/westerndigitalcorporation/cra/pkg/failures"
	"github.com/westerndigitalcorporation/cra/pkg/retry"
	"github.com/westerndigitalcorporation/cra/pkg/tokenbucket"
)

// Config configures a worker's Server, resolved the way
// cmd/tractserver/tractserver.go resolves DefaultProdConfig (defaults, then
// an optional JSON file, then individual flag overrides) — see
// cmd/worker/main.go.
type Config struct {
	InstanceName      string
	Address           string
	Port              int
	StorageConnStr    string
	ArtifactRoot      string
	MaxPendingOps     int
	MaxConnections    int
	ReconcileRate     float32 // connection dial attempts/sec during reconcile
	UseFailureService bool
}

// DefaultConfig mirrors DefaultProdConfig's role: sane baseline values a
// binary's flags override individually.
var DefaultConfig = Config{
	MaxPendingOps:  256,
	MaxConnections: 1024,
	ReconcileRate:  20,
}

// Validate checks the config is usable, matching the
// cfg.Validate()-before-use idiom from cmd/tractserver/tractserver.go.
func (c *Config) Validate() error {
	if c.InstanceName == "" {
		return core.ErrInvalidArgument.AsError()
	}
	if c.Port <= 0 {
		return core.ErrInvalidArgument.AsError()
	}
	if c.StorageConnStr == "" {
		return core.ErrInvalidArgument.AsError()
	}
	return nil
}

// hostedVertex is a locally loaded vertex plus its runtime bookkeeping.
type hostedVertex struct {
	name string
	v    vertex.Vertex
	base *vertex.Base
}

// Server is a worker process: a TCP listener dispatching tagged control
// messages, an in-process table of hosted vertices, and a background loop
// for connection reconciliation. The instance registers once, in Start.
type Server struct {
	cfg Config

	instances *metadata.InstanceManager
	vertices  *metadata.VertexManager
	endpoints *metadata.EndpointManager
	conns     *metadata.ConnectionManager
	artifacts artifactstore.Store
	pool      *streampool.Pool
	engine    *connection.Engine

	mu     sync.Mutex
	hosted map[string]*hostedVertex

	pendingSem server.Semaphore
	opFailure  *server.OpFailure
	opMetric   *server.OpMetric
	bucket     *tokenbucket.TokenBucket

	listener net.Listener
}

// workerOpMetric is shared by every Server in the process: its collectors
// live in the global Prometheus registry, which accepts each name once.
var workerOpMetric = server.NewOpMetric("cra_worker_ops", "tag")

// NewServer constructs a worker Server. Vertex factories must already be
// registered via vertex.RegisterFactory before Start is called (§3.1).
func NewServer(cfg Config, instances *metadata.InstanceManager, vertices *metadata.VertexManager,
	endpoints *metadata.EndpointManager, conns *metadata.ConnectionManager,
	artifacts artifactstore.Store) *Server {

	pool := streampool.New(cfg.MaxConnections)
	s := &Server{
		cfg:        cfg,
		instances:  instances,
		vertices:   vertices,
		endpoints:  endpoints,
		conns:      conns,
		artifacts:  artifacts,
		pool:       pool,
		hosted:     make(map[string]*hostedVertex),
		pendingSem: server.NewSemaphore(cfg.MaxPendingOps),
		opFailure:  server.NewOpFailure(),
		opMetric:   workerOpMetric,
		bucket:     tokenbucket.New(cfg.ReconcileRate, cfg.ReconcileRate*4),
	}
	s.engine = connection.NewEngine(instances, conns, vertices, pool, s)
	failures.Register("worker", s.opFailure.Handler) //nolint:errcheck // registration failure only possible on duplicate key, which is a programming error
	return s
}

// HostsVertex implements connection.LocalDispatcher.
func (s *Server) HostsVertex(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hosted[name]
	return ok
}

// Start registers the instance, loads any vertices already assigned to it,
// launches the reconcile loop, and blocks serving the control-message
// listener (mirrors tractserver.Server.Start's ListenAndServe-is-the-last-
// call shape).
func (s *Server) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	if err := s.instances.Register(ctx, s.cfg.InstanceName, s.cfg.Address, s.cfg.Port); err != nil {
		return err
	}
	if err := s.loadAssignedVertices(ctx); err != nil {
		log.Errorf("worker: initial vertex load: %v", err)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return err
	}
	s.listener = netutil.LimitListener(ln, s.cfg.MaxConnections)

	go s.reconcileLoop(ctx)
	s.startHTTP()

	log.Infof("worker %s listening on %s:%d", s.cfg.InstanceName, s.cfg.Address, s.cfg.Port)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			log.Errorf("worker: accept: %v", err)
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) startHTTP() {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/_quit", server.QuitHandler)
	mux.Handle("/metrics", promhttp.Handler())
	if s.cfg.UseFailureService {
		failures.InitWithPathAndMux(mux, failures.DefaultFailureServicePath)
	}
	go func() {
		addr := net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port+1))
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("worker: http server on %s: %v", addr, err)
		}
	}()
}

// statusHandler reports hosted vertices and host load (§9.1), grounded on
// tractserver/server.go's statusHandler/getLoad.
func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	names := make([]string, 0, len(s.hosted))
	for name := range s.hosted {
		names = append(names, name)
	}
	s.mu.Unlock()

	mem := sigar.Mem{}
	loadAvg := sigar.LoadAverage{}
	_ = mem.Get()
	_ = loadAvg.Get()

	status := struct {
		Instance      string   `json:"instance"`
		HostedVertex  []string `json:"hosted_vertices"`
		PooledStreams int      `json:"pooled_streams"`
		MemUsedBytes  uint64   `json:"mem_used_bytes"`
		Load1         float64  `json:"load1"`
	}{
		Instance:      s.cfg.InstanceName,
		HostedVertex:  names,
		PooledStreams: s.pool.Len(),
		MemUsedBytes:  mem.Used,
		Load1:         loadAvg.One,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status) //nolint:errcheck // best-effort status endpoint
}

// reconcileLoop periodically re-attempts connection establishment for every
// locally hosted vertex's outbound connections that are not yet live,
// paced by a token bucket and retried with pkg/retry's backoff (§4.5, §2.1).
func (s *Server) reconcileLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(core.ReconcileMinBackoff):
		}
		s.reconcileOnce(ctx)
	}
}

func (s *Server) reconcileOnce(ctx context.Context) {
	s.mu.Lock()
	names := make([]string, 0, len(s.hosted))
	for name := range s.hosted {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		conns, err := s.conns.From(ctx, name)
		if err != nil {
			log.Errorf("worker: reconcile: listing connections for %s: %v", name, err)
			continue
		}
		for _, c := range conns {
			s.bucket.Take(1)
			r := retry.Retrier{MinSleep: core.ReconcileMinBackoff, MaxSleep: core.ReconcileMaxBackoff, MaxNumRetries: 1}
			r.Do(ctx, func(int) bool {
				code := s.engine.Connect(ctx, c.FromVertex, c.FromEndpoint, c.ToVertex, c.ToEndpoint, c.Initiator)
				return code == core.Success || !code.IsRetriable()
			})
		}
	}
}
