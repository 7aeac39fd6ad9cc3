package columnstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const (
	phasePre  = "pre"
	phasePost = "post"
)

// SQLite persists one attribute set's columns in a single database file. The
// file is created on the first write and removed by Disconnect.
type SQLite struct {
	path string

	mu        sync.Mutex
	connected bool
	db        *sql.DB
	seq       map[string]int64
}

func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Connect() error {
	if s.path == "" {
		return fmt.Errorf("columnstore: empty db path")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	if s.seq == nil {
		s.seq = map[string]int64{}
	}
	return nil
}

// Disconnect closes the database and deletes its files.
func (s *SQLite) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm", s.path + "-journal"} {
		if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}
	s.seq = nil
	return err
}

func (s *SQLite) openLocked() error {
	if s.db != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	return nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
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
		`CREATE TABLE IF NOT EXISTS property_values (
			name TEXT NOT NULL,
			seq INTEGER NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (name, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS event_values (
			phase TEXT NOT NULL,
			name TEXT NOT NULL,
			seq INTEGER NOT NULL,
			triggered INTEGER NOT NULL,
			PRIMARY KEY (phase, name, seq)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) nextSeqLocked(key string) int64 {
	n := s.seq[key]
	s.seq[key] = n + 1
	return n
}

func (s *SQLite) AddPropertyValue(name string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if err := s.openLocked(); err != nil {
		return err
	}
	seq := s.nextSeqLocked("p|" + name)
	return retryOp(defaultRetryConfig, func() error {
		_, err := s.db.Exec(`INSERT INTO property_values(name,seq,value) VALUES(?,?,?)`, name, seq, v)
		return err
	})
}

func (s *SQLite) AddPreEventValue(name string, triggered int) error {
	return s.addEvent(phasePre, name, triggered)
}

func (s *SQLite) AddPostEventValue(name string, triggered int) error {
	return s.addEvent(phasePost, name, triggered)
}

func (s *SQLite) addEvent(phase, name string, triggered int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if err := s.openLocked(); err != nil {
		return err
	}
	seq := s.nextSeqLocked(phase + "|" + name)
	return retryOp(defaultRetryConfig, func() error {
		_, err := s.db.Exec(`INSERT INTO event_values(phase,name,seq,triggered) VALUES(?,?,?,?)`, phase, name, seq, triggered)
		return err
	})
}

func (s *SQLite) PropertyColumn(name string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrNotConnected
	}
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.Query(`SELECT value FROM property_values WHERE name=? ORDER BY seq`, name)
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

func (s *SQLite) PreEventColumn(name string) ([]int, error) {
	return s.eventColumn(phasePre, name)
}

func (s *SQLite) PostEventColumn(name string) ([]int, error) {
	return s.eventColumn(phasePost, name)
}

func (s *SQLite) eventColumn(phase, name string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrNotConnected
	}
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.Query(`SELECT triggered FROM event_values WHERE phase=? AND name=? ORDER BY seq`, phase, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLite) PropertyNames() ([]string, error) {
	return s.names(`SELECT name FROM property_values GROUP BY name ORDER BY MIN(rowid)`)
}

func (s *SQLite) PreEventNames() ([]string, error) {
	return s.names(`SELECT name FROM event_values WHERE phase=? GROUP BY name ORDER BY MIN(rowid)`, phasePre)
}

func (s *SQLite) PostEventNames() ([]string, error) {
	return s.names(`SELECT name FROM event_values WHERE phase=? GROUP BY name ORDER BY MIN(rowid)`, phasePost)
}

func (s *SQLite) names(query string, args ...any) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrNotConnected
	}
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
