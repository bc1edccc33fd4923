// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icapi

import (
	"fmt"
	"math"
	"time"
	"unsafe"
)

// Epoch is the origin of absolute times: 1904-01-01T00:00:00Z.
var Epoch = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)

// epochOffset is the number of seconds between Epoch and the Unix epoch.
const epochOffset = 2082844800

// TimingInfo locates a cycle in time.
//
// Cycle restarts whenever a new data file is started.
// CycleOverall never decreases for the lifetime of a server connection.
type TimingInfo struct {
	Cycle        int32
	CycleOverall int32
	AbsTime      float64 // seconds since Epoch
	RelTime      float64 // seconds since the start of acquisition
}

// Time returns the absolute time of the cycle.
func (ti TimingInfo) Time() time.Time {
	sec, frac := math.Modf(ti.AbsTime)
	return time.Unix(int64(sec)-epochOffset, int64(frac*1e9)).UTC()
}

// Elapsed returns the time elapsed since the start of acquisition.
func (ti TimingInfo) Elapsed() time.Duration {
	return time.Duration(ti.RelTime * float64(time.Second))
}

func (ti TimingInfo) String() string {
	return fmt.Sprintf(
		"cycle=%d overall=%d abs=%s rel=%v",
		ti.Cycle, ti.CycleOverall,
		ti.Time().Format(time.RFC3339Nano), ti.Elapsed(),
	)
}

// AbsTime returns the number of seconds between Epoch and t.
func AbsTime(t time.Time) float64 {
	return float64(t.Unix()+epochOffset) + float64(t.Nanosecond())/1e9
}

// Automation describes the current step of an automated measurement.
type Automation struct {
	AutoStepNumber     int32
	AutoRunNumber      int32
	AutoUseMean        int32
	AutoStartCycleMean int32
	AutoStopCycleMean  int32
	AMEActionNumber    int32
	AMEUserNumber      int32
	AMEStepNumber      int32
	AMERunNumber       int32
}

// the library exchanges these records by address: their sizes are frozen.
var (
	_ [unsafe.Sizeof(TimingInfo{}) - 24]struct{}
	_ [24 - unsafe.Sizeof(TimingInfo{})]struct{}
	_ [unsafe.Sizeof(Automation{}) - 36]struct{}
	_ [36 - unsafe.Sizeof(Automation{})]struct{}
)

// TimeCycle is the timing block of full-cycle records.
type TimeCycle struct {
	Cycle          float64
	OverallCycle   float64
	AbsTime        float64
	RelTime        float64
	Run            float64
	CntsPerExtract float64
}

// Timing returns the timing information held by tc.
func (tc TimeCycle) Timing() TimingInfo {
	return TimingInfo{
		Cycle:        int32(tc.Cycle),
		CycleOverall: int32(tc.OverallCycle),
		AbsTime:      tc.AbsTime,
		RelTime:      tc.RelTime,
	}
}

// TraceType selects one of the trace kinds.
type TraceType int32

const (
	TraceRaw TraceType = iota
	TraceCorr
	TraceConc
)

func (tt TraceType) Valid() bool { return tt >= TraceRaw && tt <= TraceConc }

func (tt TraceType) String() string {
	switch tt {
	case TraceRaw:
		return "raw"
	case TraceCorr:
		return "corr"
	case TraceConc:
		return "conc"
	default:
		return fmt.Sprintf("TraceType(%d)", int32(tt))
	}
}

// ParseTraceType parses a trace kind name.
func ParseTraceType(name string) (TraceType, error) {
	switch name {
	case "raw":
		return TraceRaw, nil
	case "corr", "corrected":
		return TraceCorr, nil
	case "conc", "concentration":
		return TraceConc, nil
	}
	return 0, fmt.Errorf("icapi: unknown trace type %q", name)
}

// SGL packs the absolute and relative times into the legacy
// single-precision timing format: the big-endian bit pattern of each
// float64 is split over two float32 words.
func SGL(abs, rel float64) [4]float32 {
	var sgl [4]float32
	for i, v := range []float64{abs, rel} {
		bits := math.Float64bits(v)
		sgl[2*i+0] = math.Float32frombits(uint32(bits >> 32))
		sgl[2*i+1] = math.Float32frombits(uint32(bits))
	}
	return sgl
}

// FromSGL unpacks times stored with SGL.
func FromSGL(sgl []float32) (abs, rel float64, err error) {
	if len(sgl) < 4 {
		return 0, 0, fmt.Errorf("icapi: invalid SGL timing length %d", len(sgl))
	}
	f64 := func(hi, lo float32) float64 {
		return math.Float64frombits(
			uint64(math.Float32bits(hi))<<32 | uint64(math.Float32bits(lo)),
		)
	}
	return f64(sgl[0], sgl[1]), f64(sgl[2], sgl[3]), nil
}
