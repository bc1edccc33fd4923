// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icapi

import (
	"github.com/go-lpc/ionitof/lv"
)

const (
	// NumCalPars is the number of mass-calibration parameters.
	NumCalPars = 2

	// MaxPath is the capacity of file name buffers.
	MaxPath = 260

	// DefaultTimeout is the default timeout, in milliseconds, of
	// blocking calls.
	DefaultTimeout = 1000
)

// Lib is the call surface of the instrument library.
//
// The first argument of every call is the address of the instrument
// server (or the name of the add-data source for the Add* calls).
//
// Fixed-size slices ([]byte, []float32, ...) are caller-allocated
// buffers: the library writes at most len(buf) elements into them.
// Byte buffers hold NUL-terminated Latin-1 text.
//
// Handles passed by value are caller-owned inputs.
// Handles passed through a **lv.Handle are outputs: the library
// allocates them in Arena when *h is nil, and resizes them otherwise.
// Records are caller-allocated: the library allocates or resizes their
// handle members. The caller releases all of them.
//
// Calls taking a timeout block for at most timeout milliseconds.
// Unless documented otherwise, they return Timeout together with the
// last known data when no new cycle arrived in time.
type Lib interface {
	// Arena returns the arena holding the handles exchanged with the library.
	Arena() *lv.Arena

	GetVersion(str []byte) float64
	GetMeasureState(addr string, st *MeasureState) Status
	GetServerState(addr string, st *ServerState) Status
	GetServerAction(addr string, act *ServerAction) Status
	SetServerAction(addr string, act ServerAction) Status
	GetNumberOfTimebins(addr string, n *int32) Status
	GetCurrentDataFileName(addr string, file []byte) Status
	SetAutoDataFileName(addr string, name []byte) Status

	// GetNumberOfPeaks ignores its timeout.
	GetNumberOfPeaks(addr string, timeout int32, n *uint32) Status
	GetNumberOfPeaksOld(addr string, timeout int32, n *uint32) Status
	GetTraceMasses(addr string, masses []float32) Status
	GetTraceMassesOld(addr string, masses []float32) Status
	SetTraceMasses(addr string, masses []float32) Status
	SetTraceMassesOld(addr string, masses []float32) Status

	GetCurrentSpec(addr string, spec []float32, ti *TimingInfo, calpar []float32) Status
	GetCurrentSpecOld(addr string, spec []float32, ti *TimingInfo, calpar []float32) Status
	GetNextSpec(addr string, timeout int32, auto *Automation, ti *TimingInfo, calpar []float64, spec []float32) Status

	GetTraceData(addr string, timeout int32, raw, corr, conc []float32) Status
	GetTraceDataWithTimingInfo(addr string, timeout int32, ti *TimingInfo, tt TraceType, data []float32) Status
	SetTraceDataWithTimingInfo(addr string, ti *TimingInfo, tt TraceType, data []float32) Status
	SetTraceData(addr string, ti *TimingInfo, raw, corr, conc []float32) Status

	// GetNextTimecycle does not fill the absolute and relative times.
	GetNextTimecycle(addr string, timeout int32, ti *TimingInfo) Status
	ConvertTimingInfo(sgl []float32, ti *TimingInfo) Status

	GetFullCycleData(addr string, timeout int32, overall *uint32, data lv.Record) Status
	GetFullCycleDataJson(addr string, timeout int32, overall *uint32, buf []byte) Status
	GetConcInfo(addr string, timeout int32, data lv.Record) Status
	GetConcInfoJson(addr string, timeout int32, buf []byte) Status

	SetParameter(addr string, par []byte) Status
	SetParameters(addr string, pars *lv.Handle) Status
	SetParametersScheduled(addr string, pars *lv.Handle) Status
	SetParametersAsJson(addr string, pars []byte) Status
	GetParameter(addr string, name []byte, v *float32) Status
	GetParameters(addr string, names **lv.Handle, values []float32, indices []int32) Status
	GetParametersAsJson(addr string, names []byte, values []float32, indices []int32) Status
	ReadPTRData(addr string, table **lv.Handle) Status
	// WritePTRData applies the set values of a table laid out as the one
	// returned by ReadPTRData.
	WritePTRData(addr string, table *lv.Handle) Status

	GetAddDataNames(addr string, names **lv.Handle) Status
	GetAddDataValues(addr string, values []float32, t *float64) Status
	GetNumberOfAddData(addr string, timeout int32, n *uint32) Status
	GetAddDataNameByIndex(addr string, i int32, name []byte) Status
	GetAddDataNamesAsJson(addr string, names []byte) Status
	GetErrorCodes(addr string, codes []int32) Status
	GetErrorInfos(addr string, infos **lv.Handle) Status

	AddCheck() Status
	AddCreate(source string) Status
	AddDispose(source string) Status
	AddSetData(source string, data []float32) Status
	AddSetDescription(source string, desc *lv.Handle) Status
	AddSetDescriptionAsByte(source string, desc []byte) Status
	AddSetUnit(source string, units *lv.Handle) Status
	AddSetUnitAsByte(source string, units []byte) Status
}

// ByteSep separates the entries of the text lists exchanged by the
// AddSet*AsByte calls.
const ByteSep = '\t'

// PTR data table columns.
const (
	PTRName = iota
	PTRIndex
	PTRAltName
	PTRSet
	PTRAct
	PTRNil
	PTRUnit
	PTRTime

	NumPTRFields
)
