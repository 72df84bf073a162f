// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/cra/internal/artifactstore"
	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/metadata"
	"github.com/westerndigitalcorporation/cra/internal/tableservice"
	"github.com/westerndigitalcorporation/cra/internal/worker"
	"github.com/westerndigitalcorporation/cra/platform/dyconfig"
)

/*

Configuring various parameters follows three steps, exactly as
cmd/tractserver/tractserver.go's comment describes:

  (1) Default config parameters are pulled from worker.DefaultConfig.

  (2) An optional configuration file (JSON) can be specified via '-workerCfg'
      to override the default values.

  (3) Optional flags override each individual parameter set in the previous
      two steps, e.g. '-artifactRoot=/var/cra/artifacts'.

*/

var (
	cfg = worker.DefaultConfig

	workerFile = flag.String("workerCfg", "", "configuration file for worker")

	storageConnStr = flag.String("storageConnStr", "", "metadata store connection string, overrides "+core.StorageConnStringEnv)
	artifactRoot   = flag.String("artifactRoot", "", "root directory for the local artifact store (default /var/lib/cra/artifacts)")
	maxPendingOps  = flag.Int("maxPendingOps", 0, "maximum concurrent control-message dispatches")
	maxConnections = flag.Int("maxConnections", 0, "maximum concurrent control-socket connections and pooled streams")
	useFailure     = flag.Bool("useFailure", false, "whether to enable the failure injection service")
)

func main() {
	flag.Parse()

	if *workerFile != "" {
		f, err := os.Open(*workerFile)
		if err != nil {
			log.Fatalf("couldn't open the provided config file: %s", err)
		}
		defer f.Close()
		dec := json.NewDecoder(f)
		if err := dec.Decode(&cfg); err != nil {
			log.Fatalf("failed to decode the config file: %s", err)
		}
	}

	// NOTE: because of how Go's flag package works, there is no way to tell
	// if a value is set by the user or not. Therefore, meaningless default
	// values are used to check whether a particular flag was set, and only
	// the corresponding config field is overridden if so.
	if *storageConnStr != "" {
		cfg.StorageConnStr = *storageConnStr
	}
	if *artifactRoot != "" {
		cfg.ArtifactRoot = *artifactRoot
	}
	if cfg.ArtifactRoot == "" {
		cfg.ArtifactRoot = "/var/lib/cra/artifacts"
	}
	if *maxPendingOps != 0 {
		cfg.MaxPendingOps = *maxPendingOps
	}
	if *maxConnections != 0 {
		cfg.MaxConnections = *maxConnections
	}
	if cfg.StorageConnStr == "" {
		cfg.StorageConnStr = os.Getenv(core.StorageConnStringEnv)
	}

	args := flag.Args()
	if len(args) < 2 {
		log.Fatalf("usage: worker <instanceName> <port> [ipAddress]")
	}
	cfg.InstanceName = args[0]
	var port int
	if _, err := fmt.Sscanf(args[1], "%d", &port); err != nil {
		log.Fatalf("invalid port %q: %v", args[1], err)
	}
	cfg.Port = port

	if len(args) >= 3 && args[2] != "null" {
		cfg.Address = args[2]
	} else {
		addr, err := detectIPv4()
		if err != nil {
			log.Fatalf("couldn't auto-detect an IPv4 address: %v", err)
		}
		cfg.Address = addr
		log.Infof("auto-detected worker address %s", addr)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("failed to validate configuration: %v", err)
	}

	if *useFailure {
		log.Infof("enabling failure service")
		cfg.UseFailureService = true
	}

	ts, err := tableservice.Open(cfg.StorageConnStr)
	if err != nil {
		log.Fatalf("couldn't open metadata store %q: %v", cfg.StorageConnStr, err)
	}
	artifacts, err := artifactstore.NewFileStore(cfg.ArtifactRoot)
	if err != nil {
		log.Fatalf("couldn't open artifact store at %q: %v", cfg.ArtifactRoot, err)
	}

	instances := metadata.NewInstanceManager(ts)
	vertices := metadata.NewVertexManager(ts)
	endpoints := metadata.NewEndpointManager(ts)
	conns := metadata.NewConnectionManager(ts)

	srv := worker.NewServer(cfg, instances, vertices, endpoints, conns, artifacts)

	go dyconfig.Register("worker-config", true, cfg, func(worker.Config) {}) //nolint:errcheck // best-effort dynamic config; worker.Config has no live-reloadable fields yet

	log.Infof("starting worker %s...", cfg.InstanceName)
	if err := srv.Start(context.Background()); err != nil {
		log.Fatalf("worker exited: %v", err)
	}
}

// detectIPv4 returns the first non-loopback IPv4 address bound to this
// host (§6: "auto-detect the first IPv4 address of the host").
func detectIPv4() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return "", fmt.Errorf("no non-loopback IPv4 address found")
}
