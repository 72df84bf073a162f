// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package streampool

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/westerndigitalcorporation/cra/pkg/testutil"
)

func TestTryGetEmpty(t *testing.T) {
	p := New(8)
	_, ok := p.TryGet("127.0.0.1", 1)
	require.False(t, ok)
}

func TestReleaseThenTryGet(t *testing.T) {
	port := testutil.GetFreePort()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	addr := ln.Addr().(*net.TCPAddr)

	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	p := New(8)
	conn, err := p.Dial(context.Background(), "127.0.0.1", addr.Port)
	require.NoError(t, err)
	p.Release("127.0.0.1", addr.Port, conn)
	require.Equal(t, 1, p.Len())

	got, ok := p.TryGet("127.0.0.1", addr.Port)
	require.True(t, ok)
	require.Equal(t, conn, got)
	require.Equal(t, 0, p.Len())
	_ = port
}
