// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"os"

	log "github.com/golang/glog"
)

func main() {
	cli := newCraCli()
	if err := cli.run(os.Args); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
