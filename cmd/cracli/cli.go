// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/codegangsta/cli"
	shlex "github.com/flynn-archive/go-shlex"
	"github.com/peterh/liner"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/cra/internal/artifactstore"
	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/tableservice"
	"github.com/westerndigitalcorporation/cra/pkg/client"
	"github.com/westerndigitalcorporation/cra/pkg/failures"
)

var usage = `
	cracli is a tool to interact with a running cra deployment. It connects
	directly to the shared metadata store (the same one every worker in the
	deployment points at) and issues control-plane operations against it.

	You can use cracli in two modes: either issue one command and exit, or
	start a command line interpreter to issue commands interactively:

		cracli --store <connStr> define ...
		cracli --store <connStr> shell
`

// craCli lets operators define, instantiate, connect, and inspect vertices
// in a running deployment, and toggle per-worker failure injection.
// Grounded on cmd/blbcli/cli.go's blbCli: a cli.App built once, a
// persistent client handle cached across commands, and a liner-based
// interactive shell.
type craCli struct {
	app *cli.App
	clt *client.Client
	// storeCacheKey avoids reopening the same table service on every
	// command within a shell session.
	storeCacheKey string
	inShell       bool
}

func newCraCli() *craCli {
	b := &craCli{}
	app := cli.NewApp()
	app.Name = "cracli"
	app.Usage = usage
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "store, s",
			Usage: "metadata store connection string, e.g. bolt:/var/lib/cra/meta.db",
		},
		cli.StringFlag{
			Name:  "artifacts, a",
			Value: "./cracli-artifacts",
			Usage: "root directory for the local artifact store",
		},
	}

	vertexFlag := cli.StringFlag{Name: "vertex, v", Usage: "vertex name"}
	instanceFlag := cli.StringFlag{Name: "instance, i", Usage: "instance name"}
	definitionFlag := cli.StringFlag{Name: "def, d", Usage: "vertex definition name"}

	app.Commands = []cli.Command{
		{
			Name:   "define",
			Usage:  "Registers a vertex definition.",
			Flags:  []cli.Flag{definitionFlag, cli.StringFlag{Name: "factory, f", Usage: "vertex factory-registry key"}, cli.BoolFlag{Name: "sharded", Usage: "whether this definition produces sharded vertices"}},
			Action: b.cmdDefine,
		},
		{
			Name:   "instantiate",
			Usage:  "Instantiates a vertex on an instance from a definition.",
			Flags:  []cli.Flag{instanceFlag, vertexFlag, definitionFlag, cli.StringFlag{Name: "params, p", Usage: "parameter bytes, taken literally"}},
			Action: b.cmdInstantiate,
		},
		{
			Name:      "connect",
			Usage:     "Connects one vertex's output endpoint to another's input endpoint.",
			ArgsUsage: "<fromVertex> <fromEndpoint> <toVertex> <toEndpoint>",
			Flags:     []cli.Flag{cli.BoolFlag{Name: "reverse", Usage: "dial from the to-side instead of the from-side"}},
			Action:    b.cmdConnect,
		},
		{
			Name:      "disconnect",
			Usage:     "Removes a connection.",
			ArgsUsage: "<fromVertex> <fromEndpoint> <toVertex> <toEndpoint>",
			Action:    b.cmdDisconnect,
		},
		{
			Name:   "rm",
			Usage:  "Deletes a vertex and every connection touching it.",
			Flags:  []cli.Flag{instanceFlag, vertexFlag},
			Action: b.cmdDeleteVertex,
		},
		{
			Name:   "rm-instance",
			Usage:  "Deletes an instance's registration.",
			Flags:  []cli.Flag{instanceFlag},
			Action: b.cmdDeleteInstance,
		},
		{
			Name:   "reset",
			Usage:  "Drops every reserved table. Intended for tests and fresh bring-up.",
			Action: b.cmdReset,
		},
		{
			Name:      "fget",
			Usage:     "Prints the current failure configuration of a worker.",
			ArgsUsage: "<host:failurePort>",
			Action:    b.cmdFailureConfigGet,
		},
		{
			Name:      "fset",
			Usage:     "Updates the failure configuration of a worker.",
			ArgsUsage: "<host:failurePort> <key1> <value1> [<key2> <value2> ...]",
			Action:    b.cmdFailureConfigSet,
		},
		{
			Name:   "shell",
			Usage:  "Starts an interactive command shell.",
			Action: b.cmdShell,
		},
	}
	app.Before = b.beforeCommand
	for i := range app.Commands {
		app.Commands[i].HelpName = app.Commands[i].Name
	}
	b.app = app
	return b
}

func (b *craCli) run(args []string) error {
	return b.app.Run(args)
}

// beforeCommand lazily opens (or reuses) the table service named by --store.
func (b *craCli) beforeCommand(c *cli.Context) error {
	store := c.GlobalString("store")
	if store == "" {
		return fmt.Errorf("cracli: --store is required")
	}
	if b.clt != nil && b.storeCacheKey == store {
		return nil
	}
	ts, err := tableservice.Open(store)
	if err != nil {
		return err
	}
	artifacts, err := artifactstore.NewFileStore(c.GlobalString("artifacts"))
	if err != nil {
		return err
	}
	b.clt = client.NewClient(ts, artifacts, client.Options{Instance: "cracli"})
	b.storeCacheKey = store
	return nil
}

func (b *craCli) cmdDefine(c *cli.Context) {
	err := b.clt.DefineVertex(context.Background(), c.String("def"), c.String("factory"), c.Bool("sharded"))
	if err != nil {
		log.Errorf("couldn't define vertex: %v", err)
		return
	}
	log.Infof("defined %s", c.String("def"))
}

func (b *craCli) cmdInstantiate(c *cli.Context) {
	err := b.clt.InstantiateVertex(context.Background(), c.String("instance"), c.String("vertex"), c.String("def"), []byte(c.String("params")))
	if err != nil {
		log.Errorf("couldn't instantiate vertex: %v", err)
		return
	}
	log.Infof("instantiated %s on %s", c.String("vertex"), c.String("instance"))
}

func (b *craCli) cmdConnect(c *cli.Context) {
	if len(c.Args()) != 4 {
		cli.ShowCommandHelp(c, "connect")
		return
	}
	initiator := core.FromSide
	if c.Bool("reverse") {
		initiator = core.ToSide
	}
	args := c.Args()
	if err := b.clt.Connect(context.Background(), args[0], args[1], args[2], args[3], initiator); err != nil {
		log.Errorf("couldn't connect: %v", err)
		return
	}
	log.Infof("connected %s.%s -> %s.%s", args[0], args[1], args[2], args[3])
}

func (b *craCli) cmdDisconnect(c *cli.Context) {
	if len(c.Args()) != 4 {
		cli.ShowCommandHelp(c, "disconnect")
		return
	}
	args := c.Args()
	b.clt.Disconnect(context.Background(), args[0], args[1], args[2], args[3])
	log.Infof("disconnected %s.%s -> %s.%s", args[0], args[1], args[2], args[3])
}

func (b *craCli) cmdDeleteVertex(c *cli.Context) {
	if err := b.clt.DeleteVertex(context.Background(), c.String("instance"), c.String("vertex")); err != nil {
		log.Errorf("couldn't delete vertex: %v", err)
		return
	}
	log.Infof("deleted %s", c.String("vertex"))
}

func (b *craCli) cmdDeleteInstance(c *cli.Context) {
	if err := b.clt.DeleteInstance(context.Background(), c.String("instance")); err != nil {
		log.Errorf("couldn't delete instance: %v", err)
		return
	}
	log.Infof("deleted instance %s", c.String("instance"))
}

func (b *craCli) cmdReset(c *cli.Context) {
	if err := b.clt.Reset(context.Background()); err != nil {
		log.Errorf("couldn't reset: %v", err)
		return
	}
	log.Infof("reset all reserved tables")
}

// cmdFailureConfigGet implements "fget": a plain HTTP GET against the
// worker's failure-service endpoint (pkg/failures' RESTful API), since
// there is no local-cluster process handle to go through in this
// deployment model (unlike cmd/blbcli's cluster.FindProc).
func (b *craCli) cmdFailureConfigGet(c *cli.Context) {
	if len(c.Args()) != 1 {
		cli.ShowCommandHelp(c, "fget")
		return
	}
	url := "http://" + c.Args().Get(0) + failures.DefaultFailureServicePath
	resp, err := http.Get(url)
	if err != nil {
		log.Errorf("couldn't reach failure service: %v", err)
		return
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		log.Errorf("couldn't read response: %v", err)
		return
	}
	log.Infof("%s", string(body))
}

// cmdFailureConfigSet implements "fset": a plain HTTP POST of a JSON object
// built from alternating key/value arguments, same wire contract as
// cmd/blbcli/cli.go's cmdFailureConfigSet.
func (b *craCli) cmdFailureConfigSet(c *cli.Context) {
	args := c.Args()
	if len(args) < 1 || (len(args)-1)%2 != 0 {
		cli.ShowCommandHelp(c, "fset")
		return
	}
	host := args.Get(0)
	kvs := args.Tail()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < len(kvs); i += 2 {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:%s", kvs[i], kvs[i+1])
	}
	buf.WriteByte('}')

	url := "http://" + host + failures.DefaultFailureServicePath
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		log.Errorf("couldn't update failure config: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := ioutil.ReadAll(resp.Body)
		log.Errorf("failure service returned %s: %s", resp.Status, string(body))
		return
	}
	log.Infof("updated failure config on %s", host)
}

// cmdShell starts an interactive command loop, grounded on
// cmd/blbcli/cli.go's cmdShell: a liner.State for editable input with
// completion and history, go-shlex for shell-style tokenizing.
func (b *craCli) cmdShell(c *cli.Context) {
	b.inShell = true
	defer func() { b.inShell = false }()
	cli.OsExiter = func(int) {}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(input string) (completions []string) {
		for _, cmd := range b.app.Commands {
			if strings.HasPrefix(cmd.Name, input) {
				completions = append(completions, cmd.Name)
			}
		}
		return
	})

	for {
		input, err := line.Prompt("(cra) ")
		if err != nil {
			return
		}
		args, err := shlex.Split(input)
		if err != nil {
			log.Errorf("error: %v", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return
		}
		full := append([]string{"cracli", "--store", c.GlobalString("store")}, args...)
		if err := b.app.Run(full); err == nil {
			line.AppendHistory(input)
		}
	}
}
