// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctl

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/go-lpc/ionitof"
	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-lpc/ionitof/icapi"
)

type handler struct {
	addr bool // whether the command targets an instrument
	run  func(srv *Server, addr string, args json.RawMessage) (any, error)
}

// VersionReply is the payload of the "version" command.
type VersionReply struct {
	Bridge  string  `json:"bridge"`
	Library float64 `json:"library"`
	Text    string  `json:"text"`
}

// StateReply is the payload of the "state" command.
type StateReply struct {
	Measure     icapi.MeasureState `json:"measure"`
	MeasureName string             `json:"measure_name"`
	Server      icapi.ServerState  `json:"server"`
	ServerName  string             `json:"server_name"`
}

// ActionArgs are the arguments of the "action" command.
// The action is selected by name when Name is not empty.
type ActionArgs struct {
	Action icapi.ServerAction `json:"action"`
	Name   string             `json:"name,omitempty"`
}

// ActionReply is the payload of the "server-action" command.
type ActionReply struct {
	Action icapi.ServerAction `json:"action"`
	Name   string             `json:"name"`
}

// StartArgs are the arguments of the "start" command.
type StartArgs struct {
	File    string   `json:"file,omitempty"`
	Timeout Duration `json:"timeout,omitempty"`
}

// NextArgs are the arguments of the commands waiting for a new cycle.
type NextArgs struct {
	Since   uint32   `json:"since,omitempty"`
	Timeout Duration `json:"timeout,omitempty"`
	Kind    string   `json:"kind,omitempty"`
}

// ErrorsReply is the payload of the "errors" command.
type ErrorsReply struct {
	Codes []int32  `json:"codes"`
	Infos []string `json:"infos"`
}

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"version": {
			run: func(srv *Server, _ string, _ json.RawMessage) (any, error) {
				txt, lib := srv.cli.Version()
				v, _ := ionitof.Version()
				return VersionReply{Bridge: v, Library: lib, Text: txt}, nil
			},
		},
		"commands": {
			run: func(*Server, string, json.RawMessage) (any, error) {
				return Commands(), nil
			},
		},
		"state": {
			addr: true,
			run: func(srv *Server, addr string, _ json.RawMessage) (any, error) {
				ms, err := srv.cli.MeasureState(addr)
				if err != nil {
					return nil, err
				}
				ss, err := srv.cli.ServerState(addr)
				if err != nil {
					return nil, err
				}
				return StateReply{
					Measure: ms, MeasureName: ms.String(),
					Server: ss, ServerName: ss.String(),
				}, nil
			},
		},
		"action": {
			addr: true,
			run: func(srv *Server, addr string, raw json.RawMessage) (any, error) {
				var args ActionArgs
				err := decode(raw, &args)
				if err != nil {
					return nil, err
				}
				if args.Name != "" {
					args.Action, err = icapi.ParseServerAction(args.Name)
					if err != nil {
						return nil, err
					}
				}
				return nil, srv.cli.Do(addr, args.Action)
			},
		},
		"server-action": {
			addr: true,
			run: func(srv *Server, addr string, _ json.RawMessage) (any, error) {
				act, err := srv.cli.ServerAction(addr)
				if err != nil {
					return nil, err
				}
				return ActionReply{Action: act, Name: act.String()}, nil
			},
		},
		"start": {
			addr: true,
			run: func(srv *Server, addr string, raw json.RawMessage) (any, error) {
				var args StartArgs
				err := decode(raw, &args)
				if err != nil {
					return nil, err
				}
				ctx, cancel := within(args.Timeout, 10*time.Second)
				defer cancel()
				return nil, srv.cli.StartMeasurement(ctx, addr, args.File)
			},
		},
		"stop": {
			addr: true,
			run: func(srv *Server, addr string, raw json.RawMessage) (any, error) {
				var args StartArgs
				err := decode(raw, &args)
				if err != nil {
					return nil, err
				}
				ctx, cancel := within(args.Timeout, 10*time.Second)
				defer cancel()
				return nil, srv.cli.StopMeasurement(ctx, addr)
			},
		},
		"timebins": {
			addr: true,
			run: func(srv *Server, addr string, _ json.RawMessage) (any, error) {
				return srv.cli.Timebins(addr)
			},
		},
		"data-file": {
			addr: true,
			run: func(srv *Server, addr string, _ json.RawMessage) (any, error) {
				return srv.cli.DataFile(addr)
			},
		},
		"masses": {
			addr: true,
			run: func(srv *Server, addr string, _ json.RawMessage) (any, error) {
				return srv.cli.Masses(addr)
			},
		},
		"set-masses": {
			addr: true,
			run: func(srv *Server, addr string, raw json.RawMessage) (any, error) {
				var masses []float32
				err := decode(raw, &masses)
				if err != nil {
					return nil, err
				}
				return nil, srv.cli.SetMasses(addr, masses)
			},
		},
		"spectrum": {
			addr: true,
			run: func(srv *Server, addr string, raw json.RawMessage) (any, error) {
				var args NextArgs
				err := decode(raw, &args)
				if err != nil {
					return nil, err
				}
				if args.Kind == "current" {
					return srv.cli.CurrentSpectrum(addr)
				}
				return srv.cli.NextSpectrum(addr, args.Timeout.std())
			},
		},
		"trace": {
			addr: true,
			run: func(srv *Server, addr string, raw json.RawMessage) (any, error) {
				var args NextArgs
				err := decode(raw, &args)
				if err != nil {
					return nil, err
				}
				if args.Kind == "" {
					return srv.cli.NextTraces(addr, args.Timeout.std())
				}
				tt, err := icapi.ParseTraceType(args.Kind)
				if err != nil {
					return nil, err
				}
				return srv.cli.NextTrace(addr, tt, args.Timeout.std())
			},
		},
		"timing": {
			addr: true,
			run: func(srv *Server, addr string, raw json.RawMessage) (any, error) {
				var args NextArgs
				err := decode(raw, &args)
				if err != nil {
					return nil, err
				}
				return srv.cli.NextTiming(addr, args.Timeout.std())
			},
		},
		"fullcycle": {
			addr: true,
			run: func(srv *Server, addr string, raw json.RawMessage) (any, error) {
				var args NextArgs
				err := decode(raw, &args)
				if err != nil {
					return nil, err
				}
				if args.Kind == "json" {
					return srv.cli.FullCycleJSON(addr, args.Since, args.Timeout.std())
				}
				return srv.cli.FullCycle(addr, args.Since, args.Timeout.std())
			},
		},
		"param": {
			addr: true,
			run: func(srv *Server, addr string, raw json.RawMessage) (any, error) {
				var name string
				err := decode(raw, &name)
				if err != nil {
					return nil, err
				}
				return srv.cli.Parameter(addr, name)
			},
		},
		"params": {
			addr: true,
			run: func(srv *Server, addr string, _ json.RawMessage) (any, error) {
				return srv.cli.Parameters(addr)
			},
		},
		"set-params": {
			addr: true,
			run: func(srv *Server, addr string, raw json.RawMessage) (any, error) {
				var ps []bridge.Param
				err := decode(raw, &ps)
				if err != nil {
					return nil, err
				}
				return nil, srv.cli.SetParameters(addr, ps)
			},
		},
		"schedule-params": {
			addr: true,
			run: func(srv *Server, addr string, raw json.RawMessage) (any, error) {
				var ps []bridge.Param
				err := decode(raw, &ps)
				if err != nil {
					return nil, err
				}
				return nil, srv.cli.ScheduleParameters(addr, ps)
			},
		},
		"ptr": {
			addr: true,
			run: func(srv *Server, addr string, _ json.RawMessage) (any, error) {
				return srv.cli.PTRData(addr)
			},
		},
		"set-ptr": {
			addr: true,
			run: func(srv *Server, addr string, raw json.RawMessage) (any, error) {
				var rows []bridge.PTRParam
				err := decode(raw, &rows)
				if err != nil {
					return nil, err
				}
				return nil, srv.cli.SetPTRData(addr, rows)
			},
		},
		"conc-info": {
			addr: true,
			run: func(srv *Server, addr string, _ json.RawMessage) (any, error) {
				return srv.cli.ConcInfo(addr)
			},
		},
		"add-data": {
			addr: true,
			run: func(srv *Server, addr string, _ json.RawMessage) (any, error) {
				return srv.cli.AddData(addr)
			},
		},
		"errors": {
			addr: true,
			run: func(srv *Server, addr string, _ json.RawMessage) (any, error) {
				codes, err := srv.cli.ErrorCodes(addr)
				if err != nil {
					return nil, err
				}
				infos, err := srv.cli.ErrorInfos(addr)
				if err != nil {
					return nil, err
				}
				return ErrorsReply{Codes: codes, Infos: infos}, nil
			},
		},
	}
}

// Commands returns the names of the commands served by the control server.
func Commands() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

