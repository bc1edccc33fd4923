// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icapi

import (
	"fmt"

	"github.com/go-lpc/ionitof/lv"
)

// Record layouts of the clusters exchanged with the library.
var (
	TimeCycleLayout = lv.NewLayout(
		"TimeCycle",
		lv.F64("Cycle"),
		lv.F64("OverallCycle"),
		lv.F64("AbsTime"),
		lv.F64("RelTime"),
		lv.F64("Run"),
		lv.F64("CntsPerExtract"),
	)

	SpecDataLayout = lv.NewLayout(
		"SpecData",
		lv.Inline("TimeCycle", TimeCycleLayout),
		lv.Array("Spectrum", lv.Float32),
		lv.Array("SumIntensities", lv.Float32),
		lv.Array2D("MonitorPeaks", lv.Float32),
	)

	// AddDataLayout describes one group of auxiliary channels.
	// Desc, Units, Data and View are parallel arrays.
	AddDataLayout = lv.NewLayout(
		"AddData",
		lv.Str("GroupName"),
		lv.Array("Desc", lv.StringRef),
		lv.Array("Units", lv.StringRef),
		lv.Array("Data", lv.Float32),
		lv.Array("View", lv.Bool),
	)

	TraceDataLayout = lv.NewLayout(
		"TraceData",
		lv.Inline("TimeCycle", TimeCycleLayout),
		lv.Array2D("RawTraces", lv.Float32),
		lv.Array("SumRaw", lv.Float32),
		lv.Array("SumCorr", lv.Float32),
		lv.Array("SumConc", lv.Float32),
		lv.Array("CalcTraces", lv.Float32),
		lv.Array("CalcTracesNames", lv.StringRef),
		lv.Array("PeakCenters", lv.Float32),
		lv.Records("AddDataQ", AddDataLayout),
	)

	MassCalLayout = lv.NewLayout(
		"MassCal",
		lv.Array("Mass", lv.Float64),
		lv.Array("Tbin", lv.Float64),
		lv.Array("CalPara", lv.Float64),
		lv.Array2D("SegmentCalPars", lv.Float64),
		lv.I16("Mode"),
	)

	GGALayout = lv.NewLayout(
		"GGA",
		lv.Str("UTC"),
		lv.F32("Lat"),
		lv.Str("NorthingInd"),
		lv.F32("Lon"),
		lv.Str("EastingInd"),
		lv.I32("Status"),
		lv.I32("SVsUsed"),
		lv.F32("HDOP"),
		lv.F32("AltMSL"),
		lv.Str("UnitAlt"),
	)

	GPSLayout = lv.NewLayout(
		"GPS",
		lv.U16("State"),
		lv.Inline("GGA", GGALayout),
	)

	AutomationLayout = lv.NewLayout(
		"Automation",
		lv.I32("AutoStepNumber"),
		lv.I32("AutoRunNumber"),
		lv.I32("AutoUseMean"),
		lv.I32("AutoStartCycleMean"),
		lv.I32("AutoStopCycleMean"),
		lv.I32("AMEActionNumber"),
		lv.I32("AMEUserNumber"),
		lv.I32("AMEStepNumber"),
		lv.I32("AMERunNumber"),
	)

	// FullCycleLayout is the layout of GetFullCycleData records.
	FullCycleLayout = lv.NewLayout(
		"FullCycleData",
		lv.Inline("SpecData", SpecDataLayout),
		lv.Inline("TraceData", TraceDataLayout),
		lv.Inline("MassCal", MassCalLayout),
		lv.Inline("GPSData", GPSLayout),
		lv.Inline("Automation", AutomationLayout),
	)

	PrimaryIonLayout = lv.NewLayout(
		"PrimaryIon",
		lv.Str("SettingName"),
		lv.Array("Masses", lv.Float32),
		lv.Array("Multiplier", lv.Float32),
	)

	TransSetLayout = lv.NewLayout(
		"TransSet",
		lv.Str("Name"),
		lv.I16("Voltage"),
		lv.Array("Mass", lv.Float32),
		lv.Array("Trans", lv.Float32),
	)

	PISetsLayout = lv.NewLayout(
		"PISets",
		lv.U8("Last"),
		lv.U8("Current"),
		lv.Records("Sets", PrimaryIonLayout),
	)

	PresetsLayout = lv.NewLayout(
		"Presets",
		lv.I32("CurrIdx"),
		lv.Array("Names", lv.StringRef),
	)

	TransSetsLayout = lv.NewLayout(
		"TransSets",
		lv.U8("Last"),
		lv.U8("Current"),
		lv.Records("Sets", TransSetLayout),
	)

	// ConcInfoLayout is the layout of GetConcInfo records.
	ConcInfoLayout = lv.NewLayout(
		"ConcInfo",
		lv.Str("InstModeAndParas"),
		lv.Inline("PISets", PISetsLayout),
		lv.Inline("Presets", PresetsLayout),
		lv.Inline("TransSets", TransSetsLayout),
	)
)

// GPSState is the state of the GPS receiver.
type GPSState uint16

const (
	GPSNotAvailable GPSState = iota
	GPSGood
	GPSComError
)

func (st GPSState) String() string {
	switch st {
	case GPSNotAvailable:
		return "NotAvailable"
	case GPSGood:
		return "Good"
	case GPSComError:
		return "ComError"
	default:
		return fmt.Sprintf("GPSState(%d)", uint16(st))
	}
}

// PutAutomation stores a into the automation record rec.
func PutAutomation(rec lv.Record, a Automation) {
	rec.SetInt32("AutoStepNumber", a.AutoStepNumber)
	rec.SetInt32("AutoRunNumber", a.AutoRunNumber)
	rec.SetInt32("AutoUseMean", a.AutoUseMean)
	rec.SetInt32("AutoStartCycleMean", a.AutoStartCycleMean)
	rec.SetInt32("AutoStopCycleMean", a.AutoStopCycleMean)
	rec.SetInt32("AMEActionNumber", a.AMEActionNumber)
	rec.SetInt32("AMEUserNumber", a.AMEUserNumber)
	rec.SetInt32("AMEStepNumber", a.AMEStepNumber)
	rec.SetInt32("AMERunNumber", a.AMERunNumber)
}

// GetAutomation loads the automation record rec.
func GetAutomation(rec lv.Record) Automation {
	return Automation{
		AutoStepNumber:     rec.Int32("AutoStepNumber"),
		AutoRunNumber:      rec.Int32("AutoRunNumber"),
		AutoUseMean:        rec.Int32("AutoUseMean"),
		AutoStartCycleMean: rec.Int32("AutoStartCycleMean"),
		AutoStopCycleMean:  rec.Int32("AutoStopCycleMean"),
		AMEActionNumber:    rec.Int32("AMEActionNumber"),
		AMEUserNumber:      rec.Int32("AMEUserNumber"),
		AMEStepNumber:      rec.Int32("AMEStepNumber"),
		AMERunNumber:       rec.Int32("AMERunNumber"),
	}
}

// PutTimeCycle stores tc into the time-cycle record rec.
func PutTimeCycle(rec lv.Record, tc TimeCycle) {
	rec.SetFloat64("Cycle", tc.Cycle)
	rec.SetFloat64("OverallCycle", tc.OverallCycle)
	rec.SetFloat64("AbsTime", tc.AbsTime)
	rec.SetFloat64("RelTime", tc.RelTime)
	rec.SetFloat64("Run", tc.Run)
	rec.SetFloat64("CntsPerExtract", tc.CntsPerExtract)
}

// GetTimeCycle loads the time-cycle record rec.
func GetTimeCycle(rec lv.Record) TimeCycle {
	return TimeCycle{
		Cycle:          rec.Float64("Cycle"),
		OverallCycle:   rec.Float64("OverallCycle"),
		AbsTime:        rec.Float64("AbsTime"),
		RelTime:        rec.Float64("RelTime"),
		Run:            rec.Float64("Run"),
		CntsPerExtract: rec.Float64("CntsPerExtract"),
	}
}
