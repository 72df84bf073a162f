// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package vertex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/westerndigitalcorporation/cra/internal/metadata"
)

func TestBaseTracksRegisteredEndpoints(t *testing.T) {
	var got []string
	base := NewBase(func(name string, dir metadata.Direction, async metadata.Async) error {
		got = append(got, name)
		return nil
	})

	require.NoError(t, base.AddInputEndpoint("in", nil))
	require.NoError(t, base.AddOutputEndpoint("out", nil))
	require.NoError(t, base.AddAsyncInputEndpoint("ain", nil))

	require.ElementsMatch(t, []string{"in", "out", "ain"}, got)
	require.ElementsMatch(t, []string{"in", "out", "ain"}, base.EndpointNames())

	_, ok := base.Input("in")
	require.True(t, ok)
	_, ok = base.Input("ain")
	require.True(t, ok)
	_, ok = base.Output("missing")
	require.False(t, ok)
}

func TestFactoryRegistry(t *testing.T) {
	f, ok := Lookup("echo")
	require.True(t, ok)
	v := f()
	require.NotNil(t, v)
}
