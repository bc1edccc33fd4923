// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package icapi describes the call surface of the IoniTOF instrument
// library: its status codes and enumerations, the layouts of the records
// it exchanges, and the JSON documents of its text-encoded variants.
package icapi // import "github.com/go-lpc/ionitof/icapi"

import (
	"fmt"
	"strings"
)

// Status is the result code of every library call.
type Status uint16

const (
	Ok Status = iota
	Error
	Timeout
)

func (st Status) String() string {
	switch st {
	case Ok:
		return "ok"
	case Error:
		return "error"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("Status(%d)", uint16(st))
	}
}

// MeasureState is the state of the measurement loop of a server.
type MeasureState uint16

const (
	ReadyIdle MeasureState = iota
	MeasurementActive
	TofDaqRecNotRunning
	WriteNewParametersInProgress
	LoadCalibration
	StartTofDaqRec
	ShowTofDaqDialog
	WriteCalibration
	CloseServer
	NotReady
)

var measureStates = []string{
	"ReadyIdle",
	"MeasurementActive",
	"TofDaqRecNotRunning",
	"WriteNewParametersInProgress",
	"LoadCalibration",
	"StartTofDaqRec",
	"ShowTofDaqDialog",
	"WriteCalibration",
	"CloseServer",
	"NotReady",
}

// Valid reports whether st is a known measure state.
func (st MeasureState) Valid() bool { return int(st) < len(measureStates) }

func (st MeasureState) String() string {
	if !st.Valid() {
		return fmt.Sprintf("MeasureState(%d)", uint16(st))
	}
	return measureStates[st]
}

// ServerState is the state of the instrument server.
type ServerState uint16

const (
	StateUnknown ServerState = iota
	StateOK
	StateError
	StateWarning
	StateStartUp
	StateBusy
	StateClosed
	StateNotInitialized
	StateDisconnected
)

var serverStates = []string{
	"Unknown",
	"OK",
	"Error",
	"Warning",
	"StartUp",
	"Busy",
	"Closed",
	"NotInitialized",
	"Disconnected",
}

// Valid reports whether st is a known server state.
func (st ServerState) Valid() bool { return int(st) < len(serverStates) }

func (st ServerState) String() string {
	if !st.Valid() {
		return fmt.Sprintf("ServerState(%d)", uint16(st))
	}
	return serverStates[st]
}

// ServerAction is a command dispatched to the instrument server.
type ServerAction uint16

const (
	ActIdle ServerAction = iota
	ActStartMeasQuick
	ActStopMeasurement
	ActLoadPeaktable
	ActLoadCalibration
	ActShowSettings
	ActWriteCalibration
	ActShowFP
	ActHideFP
	ActReconnect
	ActCloseNoPrompt
	ActITofTDCSettings
	ActITofDIDODialog
	ActDisconnect
	ActInitTPS
	ActShutDownTPS
	ActCloseWithPrompt
	ActStartMeasRecord
	ActStartMeasAuto
	ActEditPeakTable
	ActShowMeasureView
	ActHideMeasureView
	ActConnectPTR
	ActDisconnectPTR
	ActConnectDetector
	ActDisconnectDetector
	ActChangeMeasureView
	ActTofCoarseCal
	ActITofResetAvgView
	ActLoadITofSupplySetFile
	ActLoadAndSetITofSupplySetFile
	ActStartRepeatedMeasurement
	ActStopAfterCurrentRun
	ActSCTDCRestart
	ActSCTDCReboot
	ActChangeTransmission
	ActChangeDataSaveSet
	ActChangeAutoCALset
)

var serverActions = []string{
	"Idle",
	"StartMeasQuick",
	"StopMeasurement",
	"LoadPeaktable",
	"LoadCalibration",
	"ShowSettings",
	"WriteCalibration",
	"ShowFP",
	"HideFP",
	"Reconnect",
	"Close_No_Prompt",
	"ITOF_TDC_Settings",
	"ITOF_DI_DO_Dialog",
	"Disconnect",
	"InitTPS",
	"ShutDownTPS",
	"Close_With_Prompt",
	"StartMeasRecord",
	"StartMeasAuto",
	"EditPeakTable",
	"ShowMeasureView",
	"HideMeasureView",
	"ConnectPTR",
	"DisconnectPTR",
	"ConnectDetector",
	"DisconnectDetector",
	"ChangeMeasureView",
	"TOF_CoarseCal",
	"iTOF_Reset_avg_View",
	"Load_iTofSupply_Set_File",
	"Load_And_Set_iTofsupply_Set_File",
	"StartRepeatedMeasurement",
	"StopAfterCurrentRun",
	"SC_TDC_Restart",
	"SC_TDC_Reboot",
	"ChangeTransmission",
	"ChangeDataSaveSet",
	"ChangeAutoCALset",
}

// Valid reports whether act is a known server action.
func (act ServerAction) Valid() bool { return int(act) < len(serverActions) }

func (act ServerAction) String() string {
	if !act.Valid() {
		return fmt.Sprintf("ServerAction(%d)", uint16(act))
	}
	return serverActions[act]
}

// ServerActions returns all the known server actions.
func ServerActions() []ServerAction {
	acts := make([]ServerAction, len(serverActions))
	for i := range acts {
		acts[i] = ServerAction(i)
	}
	return acts
}

// ParseServerAction returns the server action with the provided name.
// Names are matched case-insensitively, ignoring underscores.
func ParseServerAction(name string) (ServerAction, error) {
	key := normalize(name)
	for i, v := range serverActions {
		if normalize(v) == key {
			return ServerAction(i), nil
		}
	}
	return 0, fmt.Errorf("icapi: unknown server action %q", name)
}

func normalize(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}
