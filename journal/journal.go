// Package journal records progress events of native operations into a
// sqlite database.
package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/brendan-ward/gdalprogress/progress"
	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed Journal.
var ErrClosed = errors.New("journal is closed")

// Journal holds a pool of connections to the journal database.
// It is safe for concurrent use; Close waits for in-flight writes.
type Journal struct {
	mu     sync.RWMutex
	pool   *sqlitex.Pool
	logger *zap.Logger
}

// Record is a journaled progress event.
type Record struct {
	Seq       int64
	Event     progress.Event
	Continued bool
}

const initSQL = `
CREATE TABLE runs (name text, started text);
CREATE TABLE events (run text, seq integer, complete real, message text, continued integer);
CREATE UNIQUE INDEX run_index on runs (name);
CREATE UNIQUE INDEX event_index on events (run, seq);
`

// Open creates a new journal at path, overwriting any existing file.
func Open(path string, poolsize int, logger *zap.Logger) (*Journal, error) {
	if filepath.Ext(path) != ".db" {
		return nil, fmt.Errorf("path must end in .db")
	}
	if poolsize < 1 {
		poolsize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// always overwrite
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("could not remove existing journal: %w", err)
		}
	}

	pool, err := sqlitex.Open(path, sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_READWRITE|sqlite.SQLITE_OPEN_NOMUTEX|sqlite.SQLITE_OPEN_WAL, poolsize)
	if err != nil {
		return nil, fmt.Errorf("could not open journal: %w", err)
	}

	j := &Journal{
		pool:   pool,
		logger: logger,
	}

	con, err := j.getConnection()
	if err != nil {
		pool.Close()
		return nil, err
	}
	err = sqlitex.ExecScript(con, initSQL)
	j.closeConnection(con)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not initialize journal: %w", err)
	}

	return j, nil
}

// Close flushes pending writes and closes all connections. Funcs returned by
// Handler keep forwarding decisions after Close but no longer record events.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.pool == nil {
		return nil
	}

	// make sure that anything pending is written
	con, err := j.getConnection()
	if err != nil {
		return err
	}
	err = sqlitex.Exec(con, `PRAGMA wal_checkpoint;`, nil)
	j.closeConnection(con)

	if closeErr := j.pool.Close(); err == nil {
		err = closeErr
	}
	j.pool = nil
	return err
}

// getConnection gets a sqlite.Conn from the pool; j.mu must be held.
// closeConnection(con) must be called to release the connection.
func (j *Journal) getConnection() (*sqlite.Conn, error) {
	if j.pool == nil {
		return nil, ErrClosed
	}
	con := j.pool.Get(context.Background())
	if con == nil {
		return nil, fmt.Errorf("connection could not be opened")
	}
	return con, nil
}

func (j *Journal) closeConnection(con *sqlite.Conn) {
	if con != nil {
		j.pool.Put(con)
	}
}

// Handler registers run and returns a Func recording every event of run
// together with the decision of fn. A failed write is logged and does not
// cancel the operation.
func (j *Journal) Handler(run string, fn progress.Func) (progress.Func, error) {
	if j == nil {
		return nil, ErrClosed
	}
	if fn == nil {
		fn = progress.Dummy
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	con, err := j.getConnection()
	if err != nil {
		return nil, err
	}
	err = sqlitex.Exec(con, "INSERT INTO runs (name, started) VALUES (?, ?)", nil, run, time.Now().UTC().Format(time.RFC3339Nano))
	j.closeConnection(con)
	if err != nil {
		return nil, fmt.Errorf("could not register run %q: %w", run, err)
	}

	var seq atomic.Int64

	return func(complete float64, message string, arg interface{}) bool {
		ok := fn(complete, message, arg)
		n := seq.Add(1)
		if err := j.write(run, n, complete, message, ok); err != nil {
			j.logger.Warn("could not journal progress event",
				zap.String("run", run),
				zap.Int64("seq", n),
				zap.Error(err),
			)
		}
		return ok
	}, nil
}

func (j *Journal) write(run string, seq int64, complete float64, message string, continued bool) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	con, err := j.getConnection()
	if err != nil {
		return err
	}
	defer j.closeConnection(con)

	flag := 0
	if continued {
		flag = 1
	}
	return sqlitex.Exec(con, "INSERT INTO events (run, seq, complete, message, continued) VALUES (?, ?, ?, ?, ?)", nil, run, seq, complete, message, flag)
}

// Events returns the journaled events of run in the order they were reported.
func (j *Journal) Events(run string) ([]Record, error) {
	if j == nil {
		return nil, ErrClosed
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	con, err := j.getConnection()
	if err != nil {
		return nil, err
	}
	defer j.closeConnection(con)

	var records []Record
	err = sqlitex.Exec(con, "SELECT seq, complete, message, continued FROM events WHERE run = ? ORDER BY seq", func(stmt *sqlite.Stmt) error {
		records = append(records, Record{
			Seq: stmt.ColumnInt64(0),
			Event: progress.Event{
				Complete: stmt.ColumnFloat(1),
				Message:  stmt.ColumnText(2),
			},
			Continued: stmt.ColumnInt64(3) != 0,
		})
		return nil
	}, run)
	if err != nil {
		return nil, fmt.Errorf("could not read events of run %q: %w", run, err)
	}

	return records, nil
}

// Runs returns the names of all registered runs.
func (j *Journal) Runs() ([]string, error) {
	if j == nil {
		return nil, ErrClosed
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	con, err := j.getConnection()
	if err != nil {
		return nil, err
	}
	defer j.closeConnection(con)

	var runs []string
	err = sqlitex.Exec(con, "SELECT name FROM runs ORDER BY name", func(stmt *sqlite.Stmt) error {
		runs = append(runs, stmt.ColumnText(0))
		return nil
	})
	return runs, err
}
