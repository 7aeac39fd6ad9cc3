// Package snapshot reads and writes sealed run results as a zstd stream: one
// JSON header line followed by a gob-encoded body.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Rows    int    `json:"rows"`
}

type ResultsV1 struct {
	Header Header `json:"header"`

	Scenario    string `json:"scenario,omitempty"`
	Agents      int    `json:"agents"`
	Cores       int    `json:"cores"`
	TotalTicks  int    `json:"total_ticks"`
	WarmUpTicks int    `json:"warm_up_ticks"`
	Synced      bool   `json:"synced"`

	// Ticks holds the absolute tick of every row.
	Ticks  []int      `json:"ticks"`
	Series []SeriesV1 `json:"series"`
}

type SeriesV1 struct {
	Scope  string    `json:"scope"`
	Set    string    `json:"set"`
	Kind   string    `json:"kind"`
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

func Write(path string, res ResultsV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)
	hb, _ := json.Marshal(res.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&res); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func Read(path string) (ResultsV1, error) {
	var res ResultsV1
	f, err := os.Open(path)
	if err != nil {
		return res, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return res, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// The header line is for tools that only peek; gob carries it again.
	if _, err := br.ReadBytes('\n'); err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&res); err != nil {
		return res, fmt.Errorf("gob decode: %w", err)
	}
	if res.Header.Version != Version {
		return res, fmt.Errorf("unsupported results version %d", res.Header.Version)
	}
	return res, nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, err
	}
	return h, nil
}

// Find returns the series matching scope/set/name, or nil.
func (r *ResultsV1) Find(scope, set, kind, name string) *SeriesV1 {
	for i := range r.Series {
		s := &r.Series[i]
		if s.Scope == scope && s.Set == set && s.Kind == kind && s.Name == name {
			return s
		}
	}
	return nil
}
