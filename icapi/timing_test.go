// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package icapi

import (
	"testing"
	"time"
)

func TestTimingInfo(t *testing.T) {
	ti := TimingInfo{
		Cycle:        3,
		CycleOverall: 42,
		AbsTime:      2082844800 + 1.5,
		RelTime:      12.25,
	}
	if got, want := ti.Time(), time.Unix(1, 5e8).UTC(); !got.Equal(want) {
		t.Fatalf("invalid abs-time: got=%v, want=%v", got, want)
	}
	if got, want := ti.Elapsed(), 12250*time.Millisecond; got != want {
		t.Fatalf("invalid rel-time: got=%v, want=%v", got, want)
	}
	if got, want := Epoch.Unix(), int64(-epochOffset); got != want {
		t.Fatalf("invalid epoch: got=%d, want=%d", got, want)
	}

	now := time.Date(2024, time.March, 5, 10, 20, 30, 0, time.UTC)
	if got := (TimingInfo{AbsTime: AbsTime(now)}).Time(); !got.Equal(now) {
		t.Fatalf("invalid abs-time round-trip: got=%v, want=%v", got, now)
	}

	tc := TimeCycle{Cycle: 3, OverallCycle: 42, AbsTime: ti.AbsTime, RelTime: ti.RelTime, Run: 1}
	if got, want := tc.Timing(), ti; got != want {
		t.Fatalf("invalid timing: got=%v, want=%v", got, want)
	}
}

func TestSGL(t *testing.T) {
	for _, tc := range []struct {
		abs, rel float64
	}{
		{0, 0},
		{3.7e9 + 0.123456789, 12.5},
		{AbsTime(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)), 1e-9},
	} {
		sgl := SGL(tc.abs, tc.rel)
		abs, rel, err := FromSGL(sgl[:])
		if err != nil {
			t.Fatalf("could not unpack SGL timing: %+v", err)
		}
		if abs != tc.abs || rel != tc.rel {
			t.Fatalf("invalid SGL round-trip: got=(%v, %v), want=(%v, %v)", abs, rel, tc.abs, tc.rel)
		}
	}

	// 1.0 as a big-endian float64 is 0x3ff00000_00000000.
	sgl := SGL(1, 0)
	if got, want := sgl[1], float32(0); got != want {
		t.Fatalf("invalid low word: got=%v, want=%v", got, want)
	}
	if got, want := sgl[0], float32(1.875); got != want {
		t.Fatalf("invalid high word: got=%v, want=%v", got, want)
	}

	_, _, err := FromSGL([]float32{1, 2, 3})
	if err == nil {
		t.Fatalf("expected an error on short SGL timing")
	}
}

func TestTraceType(t *testing.T) {
	for _, tc := range []struct {
		name string
		want TraceType
	}{
		{"raw", TraceRaw},
		{"corr", TraceCorr},
		{"corrected", TraceCorr},
		{"conc", TraceConc},
	} {
		got, err := ParseTraceType(tc.name)
		if err != nil {
			t.Fatalf("could not parse %q: %+v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("invalid trace type: got=%v, want=%v", got, tc.want)
		}
	}
	if _, err := ParseTraceType("conz"); err == nil {
		t.Fatalf("expected an error")
	}
	if TraceType(3).Valid() {
		t.Fatalf("invalid trace type validity")
	}
}
