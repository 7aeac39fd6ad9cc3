package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"agentsim.ai/internal/sim/results"
)

// SQLiteIndex is a queryable secondary index of runs and their recorded
// ticks. Writes are queued and applied by one goroutine in batched
// transactions; the compressed tick logs and results files remain the
// source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick atomic.Uint64
	dropRun  atomic.Uint64
}

type reqKind int

const (
	reqRunStart reqKind = iota + 1
	reqRunEnd
	reqTick
)

type req struct {
	kind reqKind

	run  RunRow
	tick tickRow
}

// RunRow is one indexed run.
type RunRow struct {
	RunID       string
	Scenario    string
	Agents      int
	Cores       int
	TotalTicks  int
	WarmUpTicks int
	Synced      bool
	StartedAt   time.Time
	FinishedAt  time.Time
	Rows        int
	Error       string
}

type tickRow struct {
	RunID string
	Row   results.Row
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropTickTotal uint64
	DropRunTotal  uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{db: db, ch: make(chan req, queue)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			scenario TEXT NOT NULL,
			agents INTEGER NOT NULL,
			cores INTEGER NOT NULL,
			total_ticks INTEGER NOT NULL,
			warm_up_ticks INTEGER NOT NULL,
			synced INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			rows INTEGER NOT NULL DEFAULT 0,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			idx INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS cells (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			scope TEXT NOT NULL,
			set_name TEXT NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (run_id, scope, set_name, kind, name, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue, commits and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTickTotal: s.dropTick.Load(),
		DropRunTotal:  s.dropRun.Load(),
	}
}

func (s *SQLiteIndex) RecordRunStart(r RunRow) {
	s.enqueueRun(req{kind: reqRunStart, run: r})
}

func (s *SQLiteIndex) RecordRunEnd(runID string, rows int, runErr error) {
	r := RunRow{RunID: runID, FinishedAt: time.Now().UTC(), Rows: rows}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	s.enqueueRun(req{kind: reqRunEnd, run: r})
}

func (s *SQLiteIndex) enqueueRun(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropRun.Add(1)
	}
}

// Sink returns a results.Sink indexing the rows of one run.
func (s *SQLiteIndex) Sink(runID string) results.Sink {
	return runSink{idx: s, runID: runID}
}

type runSink struct {
	idx   *SQLiteIndex
	runID string
}

func (r runSink) WriteTick(row results.Row) error {
	s := r.idx
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: tickRow{RunID: r.runID, Row: row}}:
	default:
		// Drop if the indexer falls behind.
		s.dropTick.Add(1)
	}
	return nil
}

// Runs lists indexed runs, newest first.
func (s *SQLiteIndex) Runs(ctx context.Context) ([]RunRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id,scenario,agents,cores,total_ticks,warm_up_ticks,synced,started_at,IFNULL(finished_at,''),rows,IFNULL(error,'')
		FROM runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRow
	for rows.Next() {
		var (
			r                 RunRow
			synced            int
			started, finished string
		)
		if err := rows.Scan(&r.RunID, &r.Scenario, &r.Agents, &r.Cores, &r.TotalTicks, &r.WarmUpTicks, &synced, &started, &finished, &r.Rows, &r.Error); err != nil {
			return nil, err
		}
		r.Synced = synced != 0
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Series returns one indexed series of a run in tick order.
func (s *SQLiteIndex) Series(ctx context.Context, runID string, scope results.Scope, set, kind, name string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT value FROM cells
		WHERE run_id=? AND scope=? AND set_name=? AND kind=? AND name=? ORDER BY tick`,
		runID, string(scope), set, kind, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,scenario,agents,cores,total_ticks,warm_up_ticks,synced,started_at) VALUES(?,?,?,?,?,?,?,?)`)
	finishRun, _ := s.db.Prepare(`UPDATE runs SET finished_at=?, rows=?, error=? WHERE run_id=?`)
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,idx,raw_json) VALUES(?,?,?,?)`)
	insertCell, _ := s.db.Prepare(`INSERT OR REPLACE INTO cells(run_id,tick,scope,set_name,kind,name,value) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRun, finishRun, insertTick, insertCell} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRunStart:
			ru := r.run
			if insertRun != nil {
				if _, err := tx.Stmt(insertRun).Exec(ru.RunID, ru.Scenario, ru.Agents, ru.Cores, ru.TotalTicks, ru.WarmUpTicks, boolInt(ru.Synced), ru.StartedAt.UTC().Format(time.RFC3339Nano)); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqRunEnd:
			ru := r.run
			if finishRun != nil {
				if _, err := tx.Stmt(finishRun).Exec(ru.FinishedAt.UTC().Format(time.RFC3339Nano), ru.Rows, nullString(ru.Error), ru.RunID); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			// Make finished runs visible to readers right away.
			commit()
			continue

		case reqTick:
			t := r.tick
			raw, _ := json.Marshal(t.Row.Cells)
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(t.RunID, t.Row.Tick, t.Row.Index, string(raw)); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			for _, c := range t.Row.Cells {
				if insertCell == nil {
					break
				}
				if _, err := tx.Stmt(insertCell).Exec(t.RunID, t.Row.Tick, string(c.Scope), c.Set, c.Kind, c.Name, c.Value); err != nil {
					rollback()
					break
				}
				opCount++
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
