// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/go-lpc/ionitof/icapi"
)

// WaitState polls the measurement state of the instrument every period,
// until it reaches want or ctx is done.
func (c *Client) WaitState(ctx context.Context, addr string, want icapi.MeasureState, period time.Duration) error {
	tck := time.NewTicker(period)
	defer tck.Stop()

	for {
		st, err := c.MeasureState(addr)
		if err != nil {
			return err
		}
		if st == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("bridge: measure state of %q is %v, want %v: %w", addr, st, want, ctx.Err())
		case <-tck.C:
		}
	}
}

// StartMeasurement starts a recorded measurement into the provided data
// file and waits for the acquisition to run.
// An empty file name starts a quick measurement, without recording.
func (c *Client) StartMeasurement(ctx context.Context, addr, file string) error {
	act := icapi.ActStartMeasQuick
	if file != "" {
		err := c.SetAutoDataFile(addr, file)
		if err != nil {
			return err
		}
		act = icapi.ActStartMeasRecord
	}
	err := c.Do(addr, act)
	if err != nil {
		return err
	}
	return c.WaitState(ctx, addr, icapi.MeasurementActive, 100*time.Millisecond)
}

// StopMeasurement stops the measurement and waits for the instrument to
// be idle.
func (c *Client) StopMeasurement(ctx context.Context, addr string) error {
	err := c.Do(addr, icapi.ActStopMeasurement)
	if err != nil {
		return err
	}
	return c.WaitState(ctx, addr, icapi.ReadyIdle, 100*time.Millisecond)
}
