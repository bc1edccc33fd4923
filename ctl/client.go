// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctl

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-lpc/ionitof/icapi"
)

// Client sends control commands to a Server.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

// Dial connects to the control server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("could not dial ctl server %q: %w", addr, err)
	}
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
	}, nil
}

// Close closes the connection to the server.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends the named command with its arguments for the instrument at
// addr and decodes the reply payload into reply, when not nil.
// A payload is decoded even when the command failed with a timeout.
func (c *Client) Call(name, addr string, args, reply any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := Request{Name: name, Addr: addr}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("could not encode %q arguments: %w", name, err)
		}
		msg := json.RawMessage(raw)
		req.Args = &msg
	}

	err := c.enc.Encode(req)
	if err != nil {
		return fmt.Errorf("could not send %q: %w", name, err)
	}

	var rep Reply
	err = c.dec.Decode(&rep)
	if err != nil {
		return fmt.Errorf("could not read %q reply: %w", name, err)
	}

	if reply != nil && rep.Data != nil {
		err = json.Unmarshal(*rep.Data, reply)
		if err != nil {
			return fmt.Errorf("could not decode %q payload: %w", name, err)
		}
	}

	return rep.err(name)
}

// RemoteError is a failure reported by the control server.
type RemoteError struct {
	Cmd    string
	Msg    string
	Status string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ctl: %s: %s", e.Cmd, e.Msg)
}

func (e *RemoteError) Unwrap() error {
	if e.Status == icapi.Timeout.String() {
		return bridge.ErrTimeout
	}
	return bridge.ErrProtocol
}

func (rep Reply) err(name string) error {
	if rep.Msg == "ok" {
		return nil
	}
	return &RemoteError{Cmd: name, Msg: rep.Msg, Status: rep.Status}
}

// IsTimeout reports whether err is a remote timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, bridge.ErrTimeout)
}
