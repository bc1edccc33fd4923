// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ic-rec records the full cycles of instruments into a MySQL
// database.
//
// Usage: ic-rec [OPTIONS] ADDR1 [ADDR2 [ADDR3 ...]]
//
// The database credentials are read from the IC_DB_USER and IC_DB_PASS
// environment variables.
package main // import "github.com/go-lpc/ionitof/cmd/ic-rec"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-lpc/ionitof/cycledb"
	"github.com/go-lpc/ionitof/internal/sim"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		host    = flag.String("db-host", "localhost:3306", "database [addr]:port")
		dbname  = flag.String("db-name", "ionitof", "database name")
		period  = flag.Duration("period", 1*time.Second, "acquisition cycle period")
		timeout = flag.Duration("timeout", 2*time.Second, "timeout of full-cycle reads")
	)

	log.SetPrefix("ic-rec: ")
	log.SetFlags(0)

	flag.Parse()

	insts := flag.Args()
	if len(insts) == 0 {
		insts = []string{"localhost"}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	dsn := cycledb.DSN(os.Getenv("IC_DB_USER"), os.Getenv("IC_DB_PASS"), *host, *dbname)
	err := run(ctx, dsn, insts, *period, *timeout)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(ctx context.Context, dsn string, insts []string, period, timeout time.Duration) error {
	db, err := cycledb.Open(dsn)
	if err != nil {
		return fmt.Errorf("could not open cycle db: %w", err)
	}
	defer db.Close()

	err = db.Init(ctx)
	if err != nil {
		return err
	}

	lib := sim.New()
	cli := bridge.New(lib)

	var (
		grp, gctx = errgroup.WithContext(ctx)
		recs      = make([]*cycledb.Recorder, len(insts))
	)
	for i, inst := range insts {
		lib.Add(inst, sim.NewInstrument())
		recs[i] = cycledb.NewRecorder(db, cli, inst, timeout)
		grp.Go(func() error {
			return lib.Run(gctx, inst, period, 0)
		})
		grp.Go(func() error {
			return recs[i].Run(gctx)
		})
	}

	err = grp.Wait()
	for i, rec := range recs {
		log.Printf("%s: %d cycles, %s", insts[i], rec.Cycles(), humanize.Bytes(rec.Bytes()))
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("could not record cycles: %w", err)
	}
	return nil
}
