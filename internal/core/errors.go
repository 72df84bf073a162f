// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package core

import "io"

// Error is the runtime's own error type, used for replies sent over the wire
// protocol as well as for in-process errors. The zero value is Success so a
// freshly-declared Error is never mistaken for a real failure.
type Error int32

const (
	// Success means the operation completed without error.
	Success = Error(iota)

	// VertexNotFound is returned when an operation names a vertex that has
	// no row in the vertex table.
	VertexNotFound

	// EndpointNotFound is returned when an operation names an endpoint that
	// has no row in the endpoint table, or that a live vertex does not
	// recognize.
	EndpointNotFound

	// VerticesEndpointsNotMatched is returned by full-mesh sharded connect
	// when the source/destination endpoint counts don't match the
	// destination/source shard counts.
	VerticesEndpointsNotMatched

	// ConnectionEstablishFailed is returned when a CONNECT_VERTEX_INITIATOR(_REVERSE)
	// round trip could not complete (dial failure, receiver rejected, etc).
	ConnectionEstablishFailed

	// VertexNotDefined is returned when LOAD_VERTEX names a definition that
	// has no row in the vertex table's definition partition.
	VertexNotDefined

	// InitializationFailed is returned when a vertex's Initialize callback
	// returns an error or panics.
	InitializationFailed

	// ServerFailed is a catch-all for worker-side failures not otherwise
	// classified (metadata store unreachable, artifact download failed).
	ServerFailed

	//--- Errors added beyond the original eight; appended so existing
	//--- numeric values never shift. ---//

	// ErrTooBusy is returned when a worker's pending-request semaphore is
	// exhausted.
	ErrTooBusy

	// ErrInvalidArgument is returned for malformed vertex-definition names,
	// malformed parameter blobs, or other caller-supplied bad input.
	ErrInvalidArgument

	// ErrAlreadyExists is returned when DefineVertex is called twice for
	// the same definition name with different content.
	ErrAlreadyExists

	// ErrRPC is returned for transport-level failures (dial refused,
	// connection reset) distinct from a well-formed error reply.
	ErrRPC

	// ErrCanceled is returned when a context is canceled while a call is
	// blocked.
	ErrCanceled

	// ErrUnknown is a fallback for errors that don't map to any of the
	// above.
	ErrUnknown
)

var description = map[Error]string{
	Success:                     "success",
	VertexNotFound:              "vertex not found",
	EndpointNotFound:            "endpoint not found",
	VerticesEndpointsNotMatched: "vertices and endpoints arity mismatch",
	ConnectionEstablishFailed:   "connection establish failed",
	VertexNotDefined:            "vertex not defined",
	InitializationFailed:        "vertex initialization failed",
	ServerFailed:                "server failed",
	ErrTooBusy:                  "server too busy",
	ErrInvalidArgument:          "invalid argument",
	ErrAlreadyExists:            "already exists",
	ErrRPC:                      "rpc transport error",
	ErrCanceled:                 "canceled",
	ErrUnknown:                  "unknown error",
}

// String implements fmt.Stringer.
func (e Error) String() string {
	if s, ok := description[e]; ok {
		return s
	}
	return "unrecognized CRAErrorCode"
}

// goError adapts an Error to the standard error interface.
type goError struct{ e Error }

func (g goError) Error() string { return g.e.String() }

// Is reports whether target is the same Error value, so errors.Is works
// against values produced by AsError.
func (g goError) Is(target error) bool {
	o, ok := target.(goError)
	return ok && o.e == g.e
}

// AsError adapts e to the standard error interface. Success adapts to nil.
func (e Error) AsError() error {
	if e == Success {
		return nil
	}
	if e == ErrRPC {
		// io.EOF is meaningful to callers that treat stream closure as
		// normal termination (§5); preserve its identity.
		return io.EOF
	}
	return goError{e}
}

// FromError extracts the Error carried by err, if any. The bool result is
// false if err does not wrap a CRAErrorCode.
func FromError(err error) (Error, bool) {
	if err == nil {
		return Success, true
	}
	if g, ok := err.(goError); ok {
		return g.e, true
	}
	return ErrUnknown, false
}

// IsRetriable reports whether a failed operation that produced e is worth
// retrying (used by the worker's reconcile loop and the client's retrier).
func (e Error) IsRetriable() bool {
	switch e {
	case ConnectionEstablishFailed, ServerFailed, ErrTooBusy, ErrRPC:
		return true
	default:
		return false
	}
}
