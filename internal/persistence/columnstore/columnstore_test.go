package columnstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

type backend interface {
	Connect() error
	Disconnect() error
	AddPropertyValue(name string, v float64) error
	AddPreEventValue(name string, triggered int) error
	AddPostEventValue(name string, triggered int) error
	PropertyColumn(name string) ([]float64, error)
	PreEventColumn(name string) ([]int, error)
	PostEventColumn(name string) ([]int, error)
	PropertyNames() ([]string, error)
}

func exerciseBackend(t *testing.T, b backend) {
	t.Helper()
	if err := b.AddPropertyValue("x", 1); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("write before Connect: err=%v", err)
	}
	if err := b.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	for i, v := range []float64{0.5, 1.5, 2.5} {
		if err := b.AddPropertyValue("hunger", v); err != nil {
			t.Fatalf("AddPropertyValue: %v", err)
		}
		if err := b.AddPropertyValue("age", float64(i)); err != nil {
			t.Fatalf("AddPropertyValue: %v", err)
		}
		if err := b.AddPreEventValue("wake", i); err != nil {
			t.Fatalf("AddPreEventValue: %v", err)
		}
		if err := b.AddPostEventValue("eat", 2*i); err != nil {
			t.Fatalf("AddPostEventValue: %v", err)
		}
	}
	got, err := b.PropertyColumn("hunger")
	if err != nil || len(got) != 3 || got[0] != 0.5 || got[2] != 2.5 {
		t.Fatalf("hunger column=%v err=%v", got, err)
	}
	pre, err := b.PreEventColumn("wake")
	if err != nil || len(pre) != 3 || pre[1] != 1 {
		t.Fatalf("wake column=%v err=%v", pre, err)
	}
	post, err := b.PostEventColumn("eat")
	if err != nil || len(post) != 3 || post[2] != 4 {
		t.Fatalf("eat column=%v err=%v", post, err)
	}
	names, err := b.PropertyNames()
	if err != nil || len(names) != 2 || names[0] != "hunger" || names[1] != "age" {
		t.Fatalf("names=%v err=%v", names, err)
	}
	missing, err := b.PropertyColumn("nope")
	if err != nil || len(missing) != 0 {
		t.Fatalf("missing column=%v err=%v", missing, err)
	}
}

func TestMemory_Columns(t *testing.T) {
	m := NewMemory()
	exerciseBackend(t, m)
	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := m.PropertyColumn("hunger"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("read after Disconnect: err=%v", err)
	}
}

func TestSQLite_Columns(t *testing.T) {
	s := NewSQLite(filepath.Join(t.TempDir(), "agents-body.db"))
	exerciseBackend(t, s)
	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
}

func TestSQLite_FileLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "environment-weather.db")
	s := NewSQLite(path)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file should not exist before first write, stat err=%v", err)
	}
	if err := s.AddPropertyValue("temp", 21.5); err != nil {
		t.Fatalf("AddPropertyValue: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file missing after first write: %v", err)
	}

	// Another connection can read the store while it is still connected.
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	var v float64
	if err := db.QueryRow(`SELECT value FROM property_values WHERE name='temp' AND seq=0`).Scan(&v); err != nil {
		t.Fatalf("independent read: %v", err)
	}
	_ = db.Close()
	if v != 21.5 {
		t.Fatalf("independent read got %v", v)
	}

	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s still present after Disconnect (err=%v)", filepath.Base(p), err)
		}
	}
}

func TestSQLite_WriteWaitsOutExternalLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents-000-needs.db")
	s := NewSQLite(path)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Disconnect()
	if err := s.AddPropertyValue("hunger", 1); err != nil {
		t.Fatalf("AddPropertyValue: %v", err)
	}

	// Another process-like connection takes the write lock for a moment.
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	conn, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	released := make(chan error, 1)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_, err := conn.ExecContext(ctx, "COMMIT")
		released <- err
	}()

	if err := s.AddPropertyValue("hunger", 2); err != nil {
		t.Fatalf("AddPropertyValue under external lock: %v", err)
	}
	if err := <-released; err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err := s.PropertyColumn("hunger")
	if err != nil || len(got) != 2 || got[1] != 2 {
		t.Fatalf("column=%v err=%v", got, err)
	}
}

func TestSQLite_EmptyPath(t *testing.T) {
	if err := NewSQLite("").Connect(); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestRetryOp_RetriesOnlyTransient(t *testing.T) {
	cfg := retryConfig{maxRetries: 2, baseDelay: time.Millisecond, maxDelay: 2 * time.Millisecond}

	calls := 0
	err := retryOp(cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("transient: err=%v calls=%d", err, calls)
	}

	calls = 0
	permanent := errors.New("no such table: property_values")
	err = retryOp(cfg, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("permanent: err=%v calls=%d", err, calls)
	}
}
