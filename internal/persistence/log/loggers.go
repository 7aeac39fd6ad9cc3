package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"agentsim.ai/internal/sim/results"
)

// JSONLZstdWriter appends one JSON value per line to zstd-compressed segment
// files, starting a new segment every segmentRows lines (0 means never).
type JSONLZstdWriter struct {
	baseDir     string
	prefix      string
	segmentRows int

	mu      sync.Mutex
	segment int
	rows    int
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string, segmentRows int) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir:     baseDir,
		prefix:      prefix,
		segmentRows: segmentRows,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil || (w.segmentRows > 0 && w.rows >= w.segmentRows) {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.rows++
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked() error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	w.segment++
	f, err := os.OpenFile(w.pathForSegment(w.segment), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.rows = 0
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForSegment(n int) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%06d.jsonl.zst", w.prefix, n))
}

// TickLogger writes one JSONL entry per recorded tick (compressed). It is a
// results.Sink.
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(runDir string, segmentRows int) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "ticks"), "ticks", segmentRows)}
}

func (l *TickLogger) WriteTick(row results.Row) error { return l.w.Write(row) }
func (l *TickLogger) Close() error                    { return l.w.Close() }

// RunEntry marks the start or end of a run.
type RunEntry struct {
	RunID    string    `json:"run_id"`
	Event    string    `json:"event"`
	Time     time.Time `json:"time"`
	Scenario string    `json:"scenario,omitempty"`
	Agents   int       `json:"agents,omitempty"`
	Cores    int       `json:"cores,omitempty"`
	Rows     int       `json:"rows,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// RunLogger writes run lifecycle entries (compressed).
type RunLogger struct{ w *JSONLZstdWriter }

func NewRunLogger(runDir string) *RunLogger {
	return &RunLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "runs"), "runs", 0)}
}

func (l *RunLogger) WriteRun(v RunEntry) error { return l.w.Write(v) }
func (l *RunLogger) Close() error              { return l.w.Close() }

// ReadTicks decodes every tick segment under runDir in order.
func ReadTicks(runDir string) ([]results.Row, error) {
	paths, err := filepath.Glob(filepath.Join(runDir, "ticks", "ticks-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var out []results.Row
	for _, p := range paths {
		if err := readJSONL(p, func(dec *json.Decoder) error {
			var row results.Row
			if err := dec.Decode(&row); err != nil {
				return err
			}
			out = append(out, row)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return out, nil
}

func readJSONL(path string, next func(dec *json.Decoder) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()
	dec := json.NewDecoder(bufio.NewReader(zr))
	for {
		if err := next(dec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
