// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package core

import "time"

// MessageTag identifies the kind of control message on a freshly-accepted
// worker socket (§4.5). The numeric values are part of the wire protocol and
// must never change once assigned.
type MessageTag int32

const (
	// LoadVertex asks a worker to materialize a vertex from a definition.
	LoadVertex MessageTag = 0
	// ConnectVertexInitiator asks the initiator-side worker to dial the
	// receiver-side worker and establish a connection.
	ConnectVertexInitiator MessageTag = 1
	// ConnectVertexInitiatorReverse is the reverse-dial variant: the peer
	// named by "to" is asked to dial back to this worker.
	ConnectVertexInitiatorReverse MessageTag = 2
	// ConnectVertexReceiver is sent by the dialing side to hand off a
	// freshly-opened stream for a named connection.
	ConnectVertexReceiver MessageTag = 3
	// ConnectVertexReceiverReverse is the reverse-dial counterpart of
	// ConnectVertexReceiver.
	ConnectVertexReceiverReverse MessageTag = 4
)

// Reserved table service names (§6). reset() deletes all five.
const (
	ConnectionTableName     = "craconnectiontable"
	VertexTableName         = "cravertextable"
	EndpointTableName       = "craendpointtable"
	ShardedVertexTableName  = "crashardedvertextable"
	ArtifactContainerName   = "cra"
)

// StorageConnStringEnv is the environment variable (or config key) carrying
// the metadata store's connection string (§6).
const StorageConnStringEnv = "CRA_STORAGE_CONN_STRING"

// Reconcile backoff schedule (§4.5): 2s, 4s, 8s, ... capped at ~60s.
const (
	ReconcileMinBackoff = 2 * time.Second
	ReconcileMaxBackoff = 60 * time.Second
)

// DefaultDialTimeout bounds outbound stream-pool dials and control RPCs.
const DefaultDialTimeout = 10 * time.Second
