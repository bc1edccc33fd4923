// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv provides tools to convert archived full cycles to/from LCIO.
//
// Each cycle is stored as an LCIO event:
//   - the event number is the overall cycle index,
//   - the "IC_FLAT" collection holds the flattened full-cycle record,
//   - the "IC_ADDDATA" collection holds one value per add-data channel,
//     with the channel descriptions stored in the event parameters.
package xcnv // import "github.com/go-lpc/ionitof/internal/xcnv"

const (
	detector = "IONITOF"

	flatName    = "IC_FLAT"
	addDataName = "IC_ADDDATA"
)
