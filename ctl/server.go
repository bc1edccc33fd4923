// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ctl exposes the instrument bridge over a line-oriented JSON/TCP
// control protocol.
//
// Each request is a JSON object:
//
//	{"name": "state", "addr": "localhost", "args": {...}}
//
// and each reply holds a message, the library status and an optional
// payload:
//
//	{"msg": "ok", "status": "Ok", "data": {...}}
//
// Calls against the same instrument address are serialized.
package ctl // import "github.com/go-lpc/ionitof/ctl"

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-lpc/ionitof/icapi"
	"github.com/go-lpc/ionitof/internal/addrlock"
	"github.com/prometheus/client_golang/prometheus"
)

// Request is a control command sent to the server.
type Request struct {
	Name string           `json:"name"`
	Addr string           `json:"addr,omitempty"`
	Args *json.RawMessage `json:"args,omitempty"`
}

// Reply is the answer of the server to a Request.
type Reply struct {
	Msg    string           `json:"msg"`
	Status string           `json:"status,omitempty"`
	Data   *json.RawMessage `json:"data,omitempty"`
}

// Server serves control commands for a set of instruments.
type Server struct {
	ctl net.Listener
	msg *log.Logger
	cli *bridge.Client

	locks addrlock.Set

	reqs *prometheus.CounterVec
	errs *prometheus.CounterVec
	dur  *prometheus.HistogramVec
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger of the server.
func WithLogger(msg *log.Logger) Option {
	return func(srv *Server) {
		srv.msg = msg
	}
}

// WithRegisterer registers the metrics of the server with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(srv *Server) {
		reg.MustRegister(srv.reqs, srv.errs, srv.dur)
	}
}

// Serve listens on addr and serves control commands until the listener
// fails.
func Serve(addr string, cli *bridge.Client, opts ...Option) error {
	srv, err := NewServer(addr, cli, opts...)
	if err != nil {
		return fmt.Errorf("could not create ctl server: %w", err)
	}
	defer srv.Close()
	return srv.Run()
}

// NewServer creates a control server listening on addr.
func NewServer(addr string, cli *bridge.Client, opts ...Option) (*Server, error) {
	ctl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not create ctl server on %q: %w", addr, err)
	}

	srv := &Server{
		ctl: ctl,
		msg: log.New(os.Stdout, "ic-ctl: ", 0),
		cli: cli,
		reqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ionitof",
			Subsystem: "ctl",
			Name:      "requests_total",
			Help:      "Number of control requests, per command.",
		}, []string{"cmd"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ionitof",
			Subsystem: "ctl",
			Name:      "errors_total",
			Help:      "Number of failed control requests, per command and status.",
		}, []string{"cmd", "status"}),
		dur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ionitof",
			Subsystem: "ctl",
			Name:      "request_duration_seconds",
			Help:      "Duration of control requests, per command.",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 10),
		}, []string{"cmd"}),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv, nil
}

// Addr returns the address the server listens on.
func (srv *Server) Addr() net.Addr { return srv.ctl.Addr() }

// Run accepts connections and serves them until the server is closed.
func (srv *Server) Run() error {
	for {
		conn, err := srv.ctl.Accept()
		if err != nil {
			return fmt.Errorf("could not accept connection: %w", err)
		}
		go srv.handle(conn)
	}
}

// Close stops the server from accepting new connections.
func (srv *Server) Close() error {
	return srv.ctl.Close()
}

func (srv *Server) handle(conn net.Conn) {
	defer conn.Close()
	srv.msg.Printf("serving %v...", conn.RemoteAddr())
	defer srv.msg.Printf("serving %v... [done]", conn.RemoteAddr())

	var (
		dec = json.NewDecoder(conn)
		enc = json.NewEncoder(conn)
	)
	for {
		var req Request
		err := dec.Decode(&req)
		if err != nil {
			if errors.Is(err, io.EOF) || isErrClosed(err) {
				return
			}
			srv.msg.Printf("could not decode command request: %+v", err)
			srv.reply(enc, nil, err)
			// the decoder can not recover from a syntax error.
			return
		}
		srv.msg.Printf("received request: name=%q, addr=%q", req.Name, req.Addr)

		cmd := strings.ToLower(req.Name)
		start := time.Now()
		data, err := srv.dispatch(cmd, req)
		srv.reqs.WithLabelValues(cmd).Inc()
		srv.dur.WithLabelValues(cmd).Observe(time.Since(start).Seconds())
		if err != nil {
			srv.errs.WithLabelValues(cmd, bridge.StatusOf(err).String()).Inc()
			srv.msg.Printf("could not run %q on %q: %+v", req.Name, req.Addr, err)
		}
		srv.reply(enc, data, err)
	}
}

func (srv *Server) dispatch(cmd string, req Request) (any, error) {
	h, ok := handlers[cmd]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", req.Name)
	}
	if h.addr && req.Addr == "" {
		return nil, fmt.Errorf("command %q needs an instrument address", req.Name)
	}
	var args json.RawMessage
	if req.Args != nil {
		args = *req.Args
	}
	if !h.addr {
		return h.run(srv, req.Addr, args)
	}
	unlock := srv.locks.Lock(req.Addr)
	defer unlock()
	return h.run(srv, req.Addr, args)
}

func (srv *Server) reply(enc *json.Encoder, data any, err error) {
	rep := Reply{
		Msg:    "ok",
		Status: bridge.StatusOf(err).String(),
	}
	if err != nil {
		rep.Msg = fmt.Sprintf("%+v", err)
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			rep.Msg = fmt.Sprintf("could not encode reply payload: %+v", err)
			rep.Status = icapi.Error.String()
		} else {
			msg := json.RawMessage(raw)
			rep.Data = &msg
		}
	}

	_ = enc.Encode(rep)
}

func decode(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	err := json.Unmarshal(args, v)
	if err != nil {
		return fmt.Errorf("could not decode command arguments: %w", err)
	}
	return nil
}

func isErrClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// Duration is a time duration, in milliseconds on the wire.
type Duration int64

func (d Duration) std() time.Duration { return time.Duration(d) * time.Millisecond }

func within(d Duration, def time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		def = d.std()
	}
	return context.WithTimeout(context.Background(), def)
}
