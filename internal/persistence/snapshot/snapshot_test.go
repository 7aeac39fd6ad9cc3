package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "run.res.zst")
	in := ResultsV1{
		Header:      Header{Version: Version, RunID: "r1", Rows: 3},
		Scenario:    "hunger",
		Agents:      10,
		Cores:       4,
		TotalTicks:  13,
		WarmUpTicks: 10,
		Synced:      true,
		Ticks:       []int{10, 11, 12},
		Series: []SeriesV1{
			{Scope: "agents", Set: "hunger", Kind: "property", Name: "hunger", Values: []float64{1.5, 2.5, 0.5}},
			{Scope: "environment", Set: "clock", Kind: "property", Name: "tick", Values: []float64{11, 12, 13}},
		},
	}
	if err := Write(path, in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.RunID != "r1" || h.Rows != 3 {
		t.Fatalf("header=%+v", h)
	}

	out, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out.Scenario != "hunger" || out.Cores != 4 || len(out.Ticks) != 3 || out.Ticks[0] != 10 {
		t.Fatalf("unexpected results: %+v", out)
	}
	s := out.Find("agents", "hunger", "property", "hunger")
	if s == nil || len(s.Values) != 3 || s.Values[1] != 2.5 {
		t.Fatalf("series=%+v", s)
	}
	if out.Find("agents", "hunger", "property", "thirst") != nil {
		t.Fatalf("Find should miss")
	}
}

func TestRead_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.res.zst")
	if err := Write(path, ResultsV1{Header: Header{Version: 99}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := Read(path); err == nil {
		t.Fatalf("expected version error")
	}
}
