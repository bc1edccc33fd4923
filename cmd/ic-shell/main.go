// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ic-shell is an interactive shell to drive instruments through an
// ic-ctl server.
//
// Usage: ic-shell [OPTIONS]
//
// Example:
//
//	$> ic-shell -addr localhost:8877 -inst 192.168.0.10
//	ic> state
//	ic> set Udrift 350
//	ic> fullcycle 42
//	ic> quit
package main // import "github.com/go-lpc/ionitof/cmd/ic-shell"

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-lpc/ionitof/ctl"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/peterh/liner"
)

const history = ".ic-shell_history"

func main() {
	log.SetPrefix("ic-shell: ")
	log.SetFlags(0)

	var (
		addr = flag.String("addr", "localhost:8877", "[ip]:port of the ic-ctl server")
		inst = flag.String("inst", "localhost", "address of the instrument to drive")
	)

	flag.Parse()

	cli, err := ctl.Dial(*addr)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer cli.Close()

	sh := newShell(cli, *inst, os.Stdout)
	repl(sh)
}

func repl(sh *shell) {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(sh.complete)

	home, _ := os.UserHomeDir()
	hist := filepath.Join(home, history)
	if f, err := os.Open(hist); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(hist); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	red := color.New(color.FgRed)
	for {
		line, err := ln.Prompt("ic> ")
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, liner.ErrPromptAborted) {
				red.Fprintf(os.Stderr, "could not read line: %+v\n", err)
			}
			fmt.Println()
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		err = sh.exec(line)
		switch {
		case errors.Is(err, errQuit):
			return
		case err != nil:
			red.Fprintf(os.Stderr, "error: %+v\n", err)
		}
	}
}

var errQuit = errors.New("quit")

type caller interface {
	Call(name, addr string, args, reply any) error
}

type shell struct {
	cli  caller
	inst string
	out  io.Writer
}

func newShell(cli caller, inst string, out io.Writer) *shell {
	return &shell{cli: cli, inst: inst, out: out}
}

var commands = []string{
	"help", "use", "version", "state", "action", "start", "stop",
	"masses", "params", "get", "set", "spectrum", "fullcycle",
	"errors", "call", "quit",
}

func (sh *shell) complete(line string) []string {
	var out []string
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, strings.ToLower(line)) {
			out = append(out, cmd)
		}
	}
	return out
}

func (sh *shell) exec(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "quit", "exit":
		return errQuit

	case "help":
		fmt.Fprintf(sh.out, "commands: %s\n", strings.Join(commands, ", "))
		return nil

	case "use":
		if len(args) != 1 {
			return fmt.Errorf("usage: use ADDR")
		}
		sh.inst = args[0]
		fmt.Fprintf(sh.out, "using instrument %q\n", sh.inst)
		return nil

	case "version":
		var rep ctl.VersionReply
		err := sh.cli.Call("version", "", nil, &rep)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "bridge:  %s\nlibrary: %v (%s)\n", rep.Bridge, rep.Library, rep.Text)
		return nil

	case "state":
		var rep ctl.StateReply
		err := sh.cli.Call("state", sh.inst, nil, &rep)
		if err != nil {
			return err
		}
		var act ctl.ActionReply
		err = sh.cli.Call("server-action", sh.inst, nil, &act)
		if err != nil {
			return err
		}
		tbl := newTable("Instrument", "Measure", "Server", "Action")
		tbl.AppendRow(table.Row{sh.inst, rep.MeasureName, rep.ServerName, act.Name})
		fmt.Fprintln(sh.out, tbl.Render())
		return nil

	case "action":
		if len(args) != 1 {
			return fmt.Errorf("usage: action NAME")
		}
		return sh.cli.Call("action", sh.inst, ctl.ActionArgs{Name: args[0]}, nil)

	case "start":
		var file string
		if len(args) > 0 {
			file = args[0]
		}
		return sh.cli.Call("start", sh.inst, ctl.StartArgs{File: file}, nil)

	case "stop":
		return sh.cli.Call("stop", sh.inst, nil, nil)

	case "masses":
		var masses []float32
		err := sh.cli.Call("masses", sh.inst, nil, &masses)
		if err != nil {
			return err
		}
		tbl := newTable("#", "Mass")
		for i, m := range masses {
			tbl.AppendRow(table.Row{i, m})
		}
		fmt.Fprintln(sh.out, tbl.Render())
		return nil

	case "params":
		var ps []bridge.Param
		err := sh.cli.Call("params", sh.inst, nil, &ps)
		if err != nil {
			return err
		}
		tbl := newTable("Index", "Name", "Value")
		for _, p := range ps {
			tbl.AppendRow(table.Row{p.Index, p.Name, p.Value})
		}
		fmt.Fprintln(sh.out, tbl.Render())
		return nil

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: get NAME")
		}
		var v float32
		err := sh.cli.Call("param", sh.inst, args[0], &v)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%s = %v\n", args[0], v)
		return nil

	case "set":
		ps, err := parseParams(args)
		if err != nil {
			return err
		}
		return sh.cli.Call("set-params", sh.inst, ps, nil)

	case "spectrum":
		var nargs ctl.NextArgs
		if len(args) > 0 && args[0] == "current" {
			nargs.Kind = "current"
		}
		var spec bridge.Spectrum
		err := sh.cli.Call("spectrum", sh.inst, nargs, &spec)
		if err != nil && !ctl.IsTimeout(err) {
			return err
		}
		sum, peak, bin := summary(spec.Data)
		tbl := newTable("Overall", "Cycle", "Time", "Bins", "Sum", "Peak", "Peak bin")
		tbl.AppendRow(table.Row{
			spec.Timing.CycleOverall, spec.Timing.Cycle, spec.Timing.Time(),
			len(spec.Data), sum, peak, bin,
		})
		fmt.Fprintln(sh.out, tbl.Render())
		return err

	case "fullcycle":
		var nargs ctl.NextArgs
		if len(args) > 0 {
			since, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("could not parse cycle index %q: %w", args[0], err)
			}
			nargs.Since = uint32(since)
		}
		var fc bridge.FullCycle
		err := sh.cli.Call("fullcycle", sh.inst, nargs, &fc)
		if err != nil && !ctl.IsTimeout(err) {
			return err
		}
		tbl := newTable("Mass", "Raw", "Corr", "Conc")
		for i, m := range fc.Masses {
			tbl.AppendRow(table.Row{m, at(fc.Traces.Raw, i), at(fc.Traces.Corr, i), at(fc.Traces.Conc, i)})
		}
		tbl.AppendFooter(table.Row{
			fmt.Sprintf("cycle %d/%d", fc.Timing.Cycle, fc.Timing.CycleOverall),
			fmt.Sprintf("run %d", fc.Run), "", fc.Timing.Time().Format("2006-01-02 15:04:05"),
		})
		fmt.Fprintln(sh.out, tbl.Render())
		return err

	case "errors":
		var rep ctl.ErrorsReply
		err := sh.cli.Call("errors", sh.inst, nil, &rep)
		if err != nil {
			return err
		}
		if len(rep.Codes) == 0 {
			fmt.Fprintln(sh.out, "no error")
			return nil
		}
		tbl := newTable("Code", "Info")
		for i, code := range rep.Codes {
			var info string
			if i < len(rep.Infos) {
				info = rep.Infos[i]
			}
			tbl.AppendRow(table.Row{code, info})
		}
		fmt.Fprintln(sh.out, tbl.Render())
		return nil

	case "call":
		if len(args) == 0 {
			return fmt.Errorf("usage: call CMD [JSON-ARGS]")
		}
		var cargs any
		if len(args) > 1 {
			raw := json.RawMessage(strings.Join(args[1:], " "))
			if !json.Valid(raw) {
				return fmt.Errorf("invalid JSON arguments %q", raw)
			}
			cargs = raw
		}
		var reply json.RawMessage
		err := sh.cli.Call(args[0], sh.inst, cargs, &reply)
		if len(reply) > 0 {
			out, _ := json.MarshalIndent(reply, "", "  ")
			fmt.Fprintf(sh.out, "%s\n", out)
		}
		return err

	default:
		return fmt.Errorf("unknown command %q (see 'help')", cmd)
	}
}

// parseParams parses a list of name/value pairs.
func parseParams(args []string) ([]bridge.Param, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, fmt.Errorf("usage: set NAME VALUE [NAME VALUE...]")
	}
	ps := make([]bridge.Param, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		v, err := strconv.ParseFloat(args[i+1], 32)
		if err != nil {
			return nil, fmt.Errorf("could not parse value of %q: %w", args[i], err)
		}
		ps = append(ps, bridge.Param{Name: args[i], Value: float32(v)})
	}
	return ps, nil
}

func summary(data []float32) (sum float64, peak float32, bin int) {
	for i, v := range data {
		sum += float64(v)
		if v > peak {
			peak = v
			bin = i
		}
	}
	return sum, peak, bin
}

func at(vs []float32, i int) any {
	if i < len(vs) {
		return vs[i]
	}
	return ""
}

func newTable(header ...any) table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row(header))
	return tbl
}
