// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/westerndigitalcorporation/cra/internal/core"
)

func TestInt32RoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 1 << 30, -(1 << 30), 2147483647, -2147483648} {
		var buf bytes.Buffer
		require.NoError(t, WriteInt32(&buf, v))
		got, err := ReadInt32(&buf)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestByteArrayRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, 1<<20),
	}
	for _, b := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteByteArray(&buf, b))
		got, err := ReadByteArray(&buf)
		require.NoError(t, err)
		require.Equal(t, len(b), len(got))
		require.True(t, bytes.Equal(b, got))
	}
}

func TestStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteString(&buf, "vertex-name"))
	got, err := ReadString(&buf)
	require.NoError(t, err)
	require.Equal(t, "vertex-name", got)
}

func TestErrorCodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteErrorCode(&buf, core.VertexNotFound))
	got, err := ReadErrorCode(&buf)
	require.NoError(t, err)
	require.Equal(t, core.VertexNotFound, got)
}

func TestConnectArgsRoundTrip(t *testing.T) {
	args := core.ConnectArgs{
		FromVertex:   "src$0",
		FromEndpoint: "out",
		ToVertex:     "snk$1",
		ToEndpoint:   "in",
		KillRemote:   true,
	}
	var buf bytes.Buffer
	require.NoError(t, WriteConnectArgs(&buf, args))
	got, err := ReadConnectArgs(&buf)
	require.NoError(t, err)
	require.Equal(t, args, got)
}

func TestLoadVertexArgsRoundTrip(t *testing.T) {
	args := core.LoadVertexArgs{
		VertexName: "echo1",
		Definition: "echo",
		Params:     []byte{1, 2, 3},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteLoadVertexArgs(&buf, args))
	got, err := ReadLoadVertexArgs(&buf)
	require.NoError(t, err)
	require.Equal(t, args, got)
}
