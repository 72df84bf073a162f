// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package wire

import (
	"io"

	"github.com/westerndigitalcorporation/cra/internal/core"
)

// WriteTag writes a control-message tag.
func WriteTag(w io.Writer, tag core.MessageTag) error {
	return WriteInt32(w, int32(tag))
}

// ReadTag reads a control-message tag.
func ReadTag(r io.Reader) (core.MessageTag, error) {
	v, err := ReadInt32(r)
	return core.MessageTag(v), err
}

// WriteLoadVertexArgs writes a LoadVertex argument tuple.
func WriteLoadVertexArgs(w io.Writer, a core.LoadVertexArgs) error {
	if err := WriteString(w, a.VertexName); err != nil {
		return err
	}
	if err := WriteString(w, a.Definition); err != nil {
		return err
	}
	return WriteByteArray(w, a.Params)
}

// ReadLoadVertexArgs reads a LoadVertex argument tuple.
func ReadLoadVertexArgs(r io.Reader) (core.LoadVertexArgs, error) {
	var a core.LoadVertexArgs
	var err error
	if a.VertexName, err = ReadString(r); err != nil {
		return a, err
	}
	if a.Definition, err = ReadString(r); err != nil {
		return a, err
	}
	if a.Params, err = ReadByteArray(r); err != nil {
		return a, err
	}
	return a, nil
}

// WriteConnectArgs writes a CONNECT_VERTEX_* argument tuple.
func WriteConnectArgs(w io.Writer, a core.ConnectArgs) error {
	if err := WriteString(w, a.FromVertex); err != nil {
		return err
	}
	if err := WriteString(w, a.FromEndpoint); err != nil {
		return err
	}
	if err := WriteString(w, a.ToVertex); err != nil {
		return err
	}
	if err := WriteString(w, a.ToEndpoint); err != nil {
		return err
	}
	return WriteBool(w, a.KillRemote)
}

// ReadConnectArgs reads a CONNECT_VERTEX_* argument tuple.
func ReadConnectArgs(r io.Reader) (core.ConnectArgs, error) {
	var a core.ConnectArgs
	var err error
	if a.FromVertex, err = ReadString(r); err != nil {
		return a, err
	}
	if a.FromEndpoint, err = ReadString(r); err != nil {
		return a, err
	}
	if a.ToVertex, err = ReadString(r); err != nil {
		return a, err
	}
	if a.ToEndpoint, err = ReadString(r); err != nil {
		return a, err
	}
	if a.KillRemote, err = ReadBool(r); err != nil {
		return a, err
	}
	return a, nil
}
