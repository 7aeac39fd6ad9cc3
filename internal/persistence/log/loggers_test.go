package log

import (
	"os"
	"path/filepath"
	"testing"

	"agentsim.ai/internal/sim/results"
)

func TestTickLogger_SegmentsAndReadBack(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir, 2)
	for i := 0; i < 5; i++ {
		row := results.Row{Tick: 10 + i, Index: i, Cells: []results.Cell{
			{Scope: results.ScopeAgents, Set: "needs", Kind: "property", Name: "hunger", Value: float64(i) / 2},
		}}
		if err := l.WriteTick(row); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	segs, _ := filepath.Glob(filepath.Join(dir, "ticks", "*.jsonl.zst"))
	if len(segs) != 3 {
		t.Fatalf("segments=%v", segs)
	}
	rows, err := ReadTicks(dir)
	if err != nil {
		t.Fatalf("ReadTicks: %v", err)
	}
	if len(rows) != 5 || rows[4].Tick != 14 || rows[3].Cells[0].Value != 1.5 {
		t.Fatalf("rows=%+v", rows)
	}
}

func TestRunLogger_WritesFile(t *testing.T) {
	dir := t.TempDir()
	l := NewRunLogger(dir)
	if err := l.WriteRun(RunEntry{RunID: "r1", Event: "start"}); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "runs", "runs-000001.jsonl.zst")); err != nil {
		t.Fatalf("stat: %v", err)
	}
}

func TestReadTicks_EmptyDir(t *testing.T) {
	rows, err := ReadTicks(t.TempDir())
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows=%v err=%v", rows, err)
	}
}
