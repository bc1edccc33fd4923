// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctl

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/internal/sim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const inst = "192.168.0.10"

func TestServerFail(t *testing.T) {
	err := Serve(":invalid", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func newTestServer(t *testing.T) (*Server, *sim.Server, *prometheus.Registry) {
	t.Helper()

	lib := sim.New()
	dev := sim.NewInstrument()
	dev.Timebins = 16
	dev.Masses = []float32{21.022, 33.034, 59.049}
	lib.Add(inst, dev)

	cli := bridge.New(lib,
		bridge.WithLogger(log.New(io.Discard, "", 0)),
		bridge.WithTimeout(20*time.Millisecond),
		bridge.WithJSONBuffer(1<<16),
	)

	port, err := getTCPPort()
	if err != nil {
		t.Fatalf("could not get TCP port: %+v", err)
	}

	reg := prometheus.NewRegistry()
	srv, err := NewServer("localhost:"+port, cli,
		WithLogger(log.New(io.Discard, "ic-ctl: ", 0)),
		WithRegisterer(reg),
	)
	if err != nil {
		t.Fatalf("could not create ctl server: %+v", err)
	}
	return srv, lib, reg
}

func TestServer(t *testing.T) {
	srv, lib, reg := newTestServer(t)

	errch := make(chan error)
	go func() {
		errch <- srv.Run()
	}()

	cli, err := Dial(srv.Addr().String())
	if err != nil {
		t.Fatalf("could not dial ctl server: %+v", err)
	}
	defer cli.Close()

	push := func(n int) {
		c := sim.Synth(n, 0, 16, 3, time.Unix(1600000000, 0).Add(time.Duration(n)*time.Second), time.Duration(n)*time.Second)
		err := lib.Push(inst, c)
		if err != nil {
			t.Fatalf("could not push cycle %d: %+v", n, err)
		}
	}

	for _, name := range []string{
		"version",
		"commands",
		"state",
		"err-no-addr",
		"err-unknown-addr",
		"err-invalid-cmd",
		"err-action",
		"action",
		"server-action",
		"start",
		"stop",
		"params",
		"set-params",
		"set-ptr",
		"err-param",
		"spectrum",
		"spectrum-timeout",
		"fullcycle",
		"trace",
		"errors",
	} {
		t.Run(name, func(t *testing.T) {
			switch name {
			case "version":
				var rep VersionReply
				err := cli.Call("version", "", nil, &rep)
				if err != nil {
					t.Fatalf("could not get version: %+v", err)
				}
				if rep.Library == 0 {
					t.Fatalf("invalid library version: %v", rep.Library)
				}

			case "commands":
				var names []string
				err := cli.Call("commands", "", nil, &names)
				if err != nil {
					t.Fatalf("could not get commands: %+v", err)
				}
				if got, want := names, Commands(); !reflect.DeepEqual(got, want) {
					t.Fatalf("invalid commands:\ngot= %q\nwant=%q", got, want)
				}

			case "state":
				var rep StateReply
				err := cli.Call("state", inst, nil, &rep)
				if err != nil {
					t.Fatalf("could not get state: %+v", err)
				}
				if got, want := rep.Measure, icapi.ReadyIdle; got != want {
					t.Fatalf("invalid measure state: got=%v, want=%v", got, want)
				}
				if got, want := rep.ServerName, icapi.StateOK.String(); got != want {
					t.Fatalf("invalid server state: got=%q, want=%q", got, want)
				}

			case "err-no-addr":
				err := cli.Call("state", "", nil, nil)
				if err == nil {
					t.Fatalf("expected an error")
				}

			case "err-unknown-addr":
				err := cli.Call("state", "10.0.0.1", nil, nil)
				if !errors.Is(err, bridge.ErrProtocol) {
					t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrProtocol)
				}

			case "err-invalid-cmd":
				err := cli.Call("unknown-command", inst, nil, nil)
				if err == nil {
					t.Fatalf("expected an error")
				}

			case "err-action":
				err := cli.Call("action", inst, ActionArgs{Name: "Fly"}, nil)
				if err == nil {
					t.Fatalf("expected an error")
				}

			case "action":
				err := cli.Call("action", inst, ActionArgs{Name: "disconnect"}, nil)
				if err != nil {
					t.Fatalf("could not run action: %+v", err)
				}
				var rep StateReply
				err = cli.Call("state", inst, nil, &rep)
				if err != nil {
					t.Fatalf("could not get state: %+v", err)
				}
				if got, want := rep.Server, icapi.StateDisconnected; got != want {
					t.Fatalf("invalid server state: got=%v, want=%v", got, want)
				}
				err = cli.Call("action", inst, ActionArgs{Action: icapi.ActReconnect}, nil)
				if err != nil {
					t.Fatalf("could not reconnect: %+v", err)
				}

			case "server-action":
				var rep ActionReply
				err := cli.Call("server-action", inst, nil, &rep)
				if err != nil {
					t.Fatalf("could not get server action: %+v", err)
				}
				if got, want := rep.Action, icapi.ActReconnect; got != want {
					t.Fatalf("invalid server action: got=%v, want=%v", got, want)
				}
				if got, want := rep.Name, icapi.ActReconnect.String(); got != want {
					t.Fatalf("invalid server action name: got=%q, want=%q", got, want)
				}

			case "start":
				err := cli.Call("start", inst, StartArgs{File: "run-001.h5", Timeout: 1000}, nil)
				if err != nil {
					t.Fatalf("could not start measurement: %+v", err)
				}
				var file string
				err = cli.Call("data-file", inst, nil, &file)
				if err != nil {
					t.Fatalf("could not get data file: %+v", err)
				}
				if got, want := file, "run-001.h5"; got != want {
					t.Fatalf("invalid data file: got=%q, want=%q", got, want)
				}

			case "stop":
				err := cli.Call("stop", inst, nil, nil)
				if err != nil {
					t.Fatalf("could not stop measurement: %+v", err)
				}

			case "params":
				var ps []bridge.Param
				err := cli.Call("params", inst, nil, &ps)
				if err != nil {
					t.Fatalf("could not get parameters: %+v", err)
				}
				if len(ps) == 0 {
					t.Fatalf("no parameters")
				}

			case "set-params":
				err := cli.Call("set-params", inst, []bridge.Param{{Name: "Udrift", Value: 350}}, nil)
				if err != nil {
					t.Fatalf("could not set parameters: %+v", err)
				}
				var v float32
				err = cli.Call("param", inst, "DPS_Udrift", &v)
				if err != nil {
					t.Fatalf("could not get parameter: %+v", err)
				}
				if got, want := v, float32(350); got != want {
					t.Fatalf("invalid parameter: got=%v, want=%v", got, want)
				}

			case "set-ptr":
				var rows []bridge.PTRParam
				err := cli.Call("ptr", inst, nil, &rows)
				if err != nil {
					t.Fatalf("could not get PTR data: %+v", err)
				}
				if len(rows) == 0 {
					t.Fatalf("no PTR data")
				}
				row := rows[0]
				row.Set = 123.5
				err = cli.Call("set-ptr", inst, []bridge.PTRParam{row}, nil)
				if err != nil {
					t.Fatalf("could not set PTR data: %+v", err)
				}
				err = cli.Call("ptr", inst, nil, &rows)
				if err != nil {
					t.Fatalf("could not get PTR data: %+v", err)
				}
				if got, want := rows[0].Set, 123.5; got != want {
					t.Fatalf("invalid PTR set value: got=%v, want=%v", got, want)
				}

				row.Name = "NoSuchParam"
				err = cli.Call("set-ptr", inst, []bridge.PTRParam{row}, nil)
				if !errors.Is(err, bridge.ErrProtocol) {
					t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrProtocol)
				}

			case "err-param":
				err := cli.Call("param", inst, "NoSuchParam", nil)
				if !errors.Is(err, bridge.ErrProtocol) {
					t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrProtocol)
				}

			case "spectrum":
				push(1)
				var spec bridge.Spectrum
				err := cli.Call("spectrum", inst, NextArgs{Timeout: 1000}, &spec)
				if err != nil {
					t.Fatalf("could not get spectrum: %+v", err)
				}
				if got, want := spec.Timing.CycleOverall, int32(1); got != want {
					t.Fatalf("invalid overall cycle: got=%d, want=%d", got, want)
				}
				if got, want := len(spec.Data), 16; got != want {
					t.Fatalf("invalid spectrum length: got=%d, want=%d", got, want)
				}

			case "spectrum-timeout":
				var spec bridge.Spectrum
				err := cli.Call("spectrum", inst, NextArgs{Timeout: 10}, &spec)
				if !IsTimeout(err) {
					t.Fatalf("invalid error: got=%+v, want=%v", err, bridge.ErrTimeout)
				}
				if got, want := spec.Timing.CycleOverall, int32(1); got != want {
					t.Fatalf("invalid stale overall cycle: got=%d, want=%d", got, want)
				}

			case "fullcycle":
				push(2)
				for _, kind := range []string{"", "json"} {
					var fc bridge.FullCycle
					err := cli.Call("fullcycle", inst, NextArgs{Since: 2, Timeout: 1000, Kind: kind}, &fc)
					if err != nil {
						t.Fatalf("could not get full cycle (kind=%q): %+v", kind, err)
					}
					if got, want := fc.Timing.CycleOverall, int32(2); got != want {
						t.Fatalf("invalid overall cycle (kind=%q): got=%d, want=%d", kind, got, want)
					}
				}

			case "trace":
				push(3)
				var tr bridge.Trace
				err := cli.Call("trace", inst, NextArgs{Timeout: 1000, Kind: "raw"}, &tr)
				if err != nil {
					t.Fatalf("could not get trace: %+v", err)
				}
				if got, want := len(tr.Data), 3; got != want {
					t.Fatalf("invalid trace length: got=%d, want=%d", got, want)
				}

			case "errors":
				err := lib.Update(inst, func(dev *sim.Instrument) {
					dev.Errors[42] = "pressure too high"
				})
				if err != nil {
					t.Fatalf("could not update instrument: %+v", err)
				}
				var rep ErrorsReply
				err = cli.Call("errors", inst, nil, &rep)
				if err != nil {
					t.Fatalf("could not get errors: %+v", err)
				}
				if got, want := rep.Codes, []int32{42}; !reflect.DeepEqual(got, want) {
					t.Fatalf("invalid error codes: got=%v, want=%v", got, want)
				}
			}
		})
	}

	if got := testutil.ToFloat64(srv.reqs.WithLabelValues("state")); got < 3 {
		t.Fatalf("invalid number of state requests: got=%v, want>=3", got)
	}
	if got, want := testutil.ToFloat64(srv.errs.WithLabelValues("spectrum", icapi.Timeout.String())), 1.0; got != want {
		t.Fatalf("invalid number of spectrum timeouts: got=%v, want=%v", got, want)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("could not gather metrics: %+v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("no metrics registered")
	}

	_ = cli.Close()
	srv.Close()

	err = <-errch
	if err != nil && !isErrClosed(err) {
		t.Fatalf("could not run server: %+v", err)
	}
}

func TestServerInvalidRequest(t *testing.T) {
	srv, _, _ := newTestServer(t)

	errch := make(chan error)
	go func() {
		errch <- srv.Run()
	}()

	dim, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("could not dial ctl server: %+v", err)
	}
	defer dim.Close()

	ackErr := func(name string) {
		var rep Reply
		err := json.NewDecoder(dim).Decode(&rep)
		if err != nil {
			t.Fatalf("could not read %q-reply from ctl server: %+v", name, err)
		}
		if rep.Msg == "ok" {
			t.Fatalf("invalid %q-reply from ctl server: %q", name, rep.Msg)
		}
	}

	_, err = dim.Write([]byte("{]"))
	if err != nil {
		t.Fatalf("could not send invalid request: %+v", err)
	}
	ackErr("err-invalid-req")

	_ = dim.Close()
	srv.Close()

	err = <-errch
	if err != nil && !isErrClosed(err) {
		t.Fatalf("could not run server: %+v", err)
	}
}

func getTCPPort() (string, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return "", err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return "", err
	}
	defer l.Close()
	return strconv.Itoa(l.Addr().(*net.TCPAddr).Port), nil
}
