// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cycledb

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-lpc/ionitof/internal/fakedb"
	"github.com/go-lpc/ionitof/internal/sim"
)

func init() {
	drvName = "fakedb"
}

const inst = "192.168.0.10"

func newTestClient(t *testing.T) (*bridge.Client, *sim.Server) {
	t.Helper()
	lib := sim.New()
	dev := sim.NewInstrument()
	dev.Timebins = 16
	dev.Masses = []float32{21.022, 33.034, 59.049}
	lib.Add(inst, dev)
	cli := bridge.New(lib,
		bridge.WithLogger(log.New(io.Discard, "", 0)),
		bridge.WithTimeout(10*time.Millisecond),
		bridge.WithJSONBuffer(1<<16),
	)
	return cli, lib
}

func push(t *testing.T, lib *sim.Server, n int) {
	c := sim.Synth(n, 0, 16, 3, time.Unix(1600000000, 0).Add(time.Duration(n)*time.Second), time.Duration(n)*time.Second)
	err := lib.Push(inst, c)
	if err != nil {
		t.Errorf("could not push cycle %d: %+v", n, err)
	}
}

func TestDSN(t *testing.T) {
	got := DSN("username", "s3cr3t", "localhost:3306", "ionitof")
	want := "username:s3cr3t@tcp(localhost:3306)/ionitof?parseTime=true"
	if got != want {
		t.Fatalf("invalid DSN:\ngot= %q\nwant=%q", got, want)
	}
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open cycledb: %+v", err)
	}
	defer db.Close()

	execs, err := fakedb.Run(context.Background(), fakedb.Rows{}, db.Init)
	if err != nil {
		t.Fatalf("could not init cycledb: %+v", err)
	}
	if got, want := len(execs), 1; got != want {
		t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
	}
	if !strings.Contains(execs[0].Query, "CREATE TABLE IF NOT EXISTS cycles") {
		t.Fatalf("invalid schema statement: %q", execs[0].Query)
	}
}

func TestInsertCycle(t *testing.T) {
	cli, lib := newTestClient(t)
	push(t, lib, 42)

	want, flat, err := cli.FullCycleFlat(inst, 42, 0)
	if err != nil {
		t.Fatalf("could not get full cycle: %+v", err)
	}
	want.AddData = append(want.AddData, bridge.AddDataChannel{
		Description: "T_inlet", Group: "PTR", Unit: "C", Value: 60,
	})

	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open cycledb: %+v", err)
	}
	defer db.Close()

	execs, err := fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		return db.Insert(ctx, Cycle{
			Addr:    inst,
			Overall: want.Timing.CycleOverall,
			Cycle:   want.Timing.Cycle,
			Time:    want.Timing.Time(),
			Run:     want.Run,
			Flat:    flat,
			AddData: want.AddData,
		})
	})
	if err != nil {
		t.Fatalf("could not insert cycle: %+v", err)
	}
	if got, want := len(execs), 1; got != want {
		t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
	}
	args := execs[0].Args
	if got, want := len(args), 7; got != want {
		t.Fatalf("invalid number of arguments: got=%d, want=%d", got, want)
	}
	if got, want := args[1], driver.Value(int64(42)); got != want {
		t.Fatalf("invalid overall argument: got=%v, want=%v", got, want)
	}

	_, err = fakedb.Run(context.Background(), fakedb.Rows{
		Names:  []string{"addr", "overall", "cycle", "abstime", "run", "payload", "adddata"},
		Values: [][]driver.Value{args},
	}, func(ctx context.Context) error {
		c, err := db.Cycle(ctx, inst, 42)
		if err != nil {
			t.Fatalf("could not fetch cycle: %+v", err)
		}
		if !bytes.Equal(c.Flat, flat) {
			t.Fatalf("invalid flattened cycle")
		}
		if got, want := c.AddData, want.AddData; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid add-data:\ngot= %+v\nwant=%+v", got, want)
		}

		fc, err := cli.DecodeFullCycle(bytes.NewReader(c.Flat))
		if err != nil {
			t.Fatalf("could not decode stored cycle: %+v", err)
		}
		if got, want := fc.Timing, want.Timing; got != want {
			t.Fatalf("invalid timing: got=%v, want=%v", got, want)
		}
		if got, want := fc.Spectrum, want.Spectrum; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid spectrum:\ngot= %v\nwant=%v", got, want)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("could not run query: %+v", err)
	}

	_, _ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		_, err := db.Cycle(ctx, inst, 43)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("invalid error: got=%+v, want=%v", err, ErrNotFound)
		}
		return nil
	})
}

func TestLastOverall(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open cycledb: %+v", err)
	}
	defer db.Close()

	for _, tc := range []struct {
		name string
		v    driver.Value
		want int32
		ok   bool
	}{
		{name: "empty", v: nil},
		{name: "last", v: int64(139), want: 139, ok: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _ = fakedb.Run(context.Background(), fakedb.Rows{
				Names:  []string{"max"},
				Values: [][]driver.Value{{tc.v}},
			}, func(ctx context.Context) error {
				last, ok, err := db.LastOverall(ctx, inst)
				if err != nil {
					t.Fatalf("could not get last cycle: %+v", err)
				}
				if ok != tc.ok {
					t.Fatalf("invalid last-cycle status: got=%v, want=%v", ok, tc.ok)
				}
				if last != tc.want {
					t.Fatalf("invalid last cycle: got=%d, want=%d", last, tc.want)
				}
				return nil
			})
		})
	}
}

func TestRecorder(t *testing.T) {
	cli, lib := newTestClient(t)
	push(t, lib, 1)

	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open cycledb: %+v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for _, n := range []int{2, 3} {
			time.Sleep(20 * time.Millisecond)
			push(t, lib, n)
		}
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	rec := NewRecorder(db, cli, inst, 10*time.Millisecond)
	rec.SetLogger(log.New(io.Discard, "", 0))

	execs, err := fakedb.Run(ctx, fakedb.Rows{
		Names:  []string{"max"},
		Values: [][]driver.Value{{nil}},
	}, rec.Run)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, context.Canceled)
	}

	if got, want := len(execs), 3; got != want {
		t.Fatalf("invalid number of recorded cycles: got=%d, want=%d", got, want)
	}
	for i, exec := range execs {
		if got, want := exec.Args[1], driver.Value(int64(i+1)); got != want {
			t.Fatalf("invalid overall cycle for exec %d: got=%v, want=%v", i, got, want)
		}
	}
	if got, want := rec.Cycles(), int64(3); got != want {
		t.Fatalf("invalid number of cycles: got=%d, want=%d", got, want)
	}
	if rec.Bytes() == 0 {
		t.Fatalf("no bytes recorded")
	}
}
