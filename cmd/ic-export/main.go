// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ic-export exports the full cycles of an instrument, recorded by
// ic-rec, to an LCIO file.
//
// Usage: ic-export [OPTIONS] ADDR
//
// Example:
//
//	$> ic-export -o ptr-1.slcio -beg 100 -end 200 192.168.0.10
//
// The database credentials are read from the IC_DB_USER and IC_DB_PASS
// environment variables.
package main // import "github.com/go-lpc/ionitof/cmd/ic-export"

import (
	"compress/flate"
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-lpc/ionitof/cycledb"
	"github.com/go-lpc/ionitof/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

var (
	msg = log.New(os.Stdout, "ic-export: ", 0)
)

func main() {
	var (
		host   = flag.String("db-host", "localhost:3306", "database [addr]:port")
		dbname = flag.String("db-name", "ionitof", "database name")
		oname  = flag.String("o", "out.slcio", "path to output LCIO file")
		compr  = flag.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")
		beg    = flag.Int("beg", 0, "first overall cycle to export")
		end    = flag.Int("end", -1, "last overall cycle to export (excluded, -1: all)")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: ic-export [OPTIONS] ADDR

ex:
 $> ic-export -o ptr-1.slcio -beg 100 -end 200 192.168.0.10

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("missing instrument address")
	}

	if *oname == "" {
		flag.Usage()
		msg.Fatalf("invalid output LCIO file name")
	}

	dsn := cycledb.DSN(os.Getenv("IC_DB_USER"), os.Getenv("IC_DB_PASS"), *host, *dbname)
	err := process(dsn, *oname, *compr, flag.Arg(0), int32(*beg), int32(*end))
	if err != nil {
		msg.Fatalf("could not export cycles: %+v", err)
	}
}

func process(dsn, oname string, lvl int, addr string, beg, end int32) error {
	db, err := cycledb.Open(dsn)
	if err != nil {
		return fmt.Errorf("could not open cycle db: %w", err)
	}
	defer db.Close()

	w, err := lcio.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(lvl)

	n, err := export(context.Background(), xcnv.NewWriter(w, msg), db, addr, beg, end)
	if err != nil {
		return fmt.Errorf("could not export cycles of %q: %w", addr, err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	msg.Printf("exported %d cycles of %q to %q", n, addr, oname)
	return nil
}

type store interface {
	LastOverall(ctx context.Context, addr string) (int32, bool, error)
	Range(ctx context.Context, addr string, beg, end int32) ([]cycledb.Cycle, error)
}

type cycleWriter interface {
	Write(c cycledb.Cycle) error
}

const chunk = 1000

// export writes the stored cycles of addr in [beg, end) to w, in chunks.
// A negative end exports up to the last stored cycle.
func export(ctx context.Context, w cycleWriter, db store, addr string, beg, end int32) (int, error) {
	if end < 0 {
		last, ok, err := db.LastOverall(ctx, addr)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		end = last + 1
	}

	n := 0
	for lo := beg; lo < end; lo += chunk {
		hi := min(lo+chunk, end)
		cs, err := db.Range(ctx, addr, lo, hi)
		if err != nil {
			return n, err
		}
		for _, c := range cs {
			err = w.Write(c)
			if err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
