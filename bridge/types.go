// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"time"

	"github.com/go-lpc/ionitof/icapi"
)

// Spectrum is a mass spectrum, with its timing and mass calibration.
type Spectrum struct {
	Timing     icapi.TimingInfo
	Automation icapi.Automation
	CalPara    []float64
	Data       []float32
}

// Traces holds the ion-trace intensities of a cycle, one entry per peak.
type Traces struct {
	Raw  []float32
	Corr []float32
	Conc []float32
}

// Trace holds one kind of ion-trace intensities of a cycle.
type Trace struct {
	Timing icapi.TimingInfo
	Kind   icapi.TraceType
	Data   []float32
}

// AddDataChannel is one auxiliary measurement quantity.
type AddDataChannel struct {
	Description string
	Group       string
	Unit        string
	Value       float32
}

// GPS is the position reported by the instrument GPS receiver.
type GPS struct {
	State   icapi.GPSState
	UTC     string
	Lat     float32
	Lon     float32
	AltMSL  float32
	SVsUsed int32
}

// FullCycle is the aggregate snapshot of one acquisition cycle.
// Any of its slices may be empty.
type FullCycle struct {
	Timing         icapi.TimingInfo
	Run            int
	CntsPerExtract float64
	NewFile        bool // set by Cursor when the relative cycle restarted

	Spectrum       []float32
	SumIntensities []float32
	Traces         Traces
	Masses         []float32
	AddData        []AddDataChannel
	CalPara        []float64
	Automation     icapi.Automation
	GPS            GPS
}

// Param is a named instrument parameter.
type Param struct {
	Name  string
	Index int32
	Value float32
}

// PTRParam is one row of the PTR data table.
type PTRParam struct {
	Name    string
	Index   int
	AltName string
	Set     float64
	Act     float64
	Unit    string
	Time    time.Time
}

// PrimaryIon is a primary-ion setting used by concentration calculations.
type PrimaryIon struct {
	Name        string
	Masses      []float32
	Multipliers []float32
}

// Transmission is a named transmission curve.
type Transmission struct {
	Name    string
	Voltage int16
	Masses  []float32
	Values  []float32
}

// ConcInfo holds the concentration-calculation settings of an instrument.
type ConcInfo struct {
	Mode          string
	PrimaryIons   []PrimaryIon
	CurrentPI     int
	Presets       []string
	CurrentPreset int
	Transmissions []Transmission
	CurrentTrans  int
}
