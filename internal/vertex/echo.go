// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package vertex

import (
	"context"
	"io"
)

// Echo is a minimal reference vertex used by tests and the end-to-end
// scenarios in §8: it copies every byte read on its "in" input endpoint to
// its "out" output endpoint. It is registered under the factory key "echo".
type Echo struct {
	pipeR *io.PipeReader
	pipeW *io.PipeWriter
}

// NewEcho constructs an uninitialized Echo vertex.
func NewEcho() Vertex {
	r, w := io.Pipe()
	return &Echo{pipeR: r, pipeW: w}
}

// Initialize implements Vertex.
func (e *Echo) Initialize(_ context.Context, _ []byte, registrar EndpointRegistrar) error {
	if err := registrar.AddInputEndpoint("in", echoInput{e}); err != nil {
		return err
	}
	return registrar.AddOutputEndpoint("out", echoOutput{e})
}

// Dispose implements Vertex.
func (e *Echo) Dispose() {
	e.pipeW.CloseWithError(io.EOF)
}

type echoInput struct{ e *Echo }

func (in echoInput) HandleInput(_ context.Context, r io.Reader) error {
	_, err := io.Copy(in.e.pipeW, r)
	if err == io.EOF {
		return nil
	}
	return err
}

type echoOutput struct{ e *Echo }

func (out echoOutput) HandleOutput(_ context.Context, w io.WriteCloser) error {
	defer w.Close()
	_, err := io.Copy(w, out.e.pipeR)
	if err == io.EOF {
		return nil
	}
	return err
}

func init() {
	RegisterFactory("echo", NewEcho)
}
