package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/san-kum/rtimpc/internal/solver"
)

// SQLiteRecorder buffers cycles and writes them in batches, one transaction
// per batch. Every recorder writes under its own session id so several
// sessions can share one database file.
type SQLiteRecorder struct {
	*sql.DB
	statement *sql.Stmt

	session   string
	pending   []Cycle
	batchSize int
	logger    *zap.Logger
}

func NewSQLiteRecorder(path string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	r := &SQLiteRecorder{
		DB:        db,
		session:   xid.New().String(),
		batchSize: 256,
		logger:    logger,
	}
	if err := r.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	if err := r.prepareStatement(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRecorder) Session() string { return r.session }

func (r *SQLiteRecorder) createTable() error {
	_, err := r.Exec(`
		CREATE TABLE IF NOT EXISTS cycles
		(
			session        VARCHAR(20) NOT NULL,
			iteration      INTEGER     NOT NULL,
			start          INTEGER     NOT NULL,
			preparation_ns INTEGER     NOT NULL,
			feedback_ns    INTEGER     NOT NULL,
			kkt            REAL        NOT NULL,
			status         INTEGER     NOT NULL,
			degraded       INTEGER     NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create cycles table: %w", err)
	}
	_, err = r.Exec(`CREATE INDEX IF NOT EXISTS cycles_session_index ON cycles (session, iteration);`)
	if err != nil {
		return fmt.Errorf("create cycles index: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) prepareStatement() error {
	stmt, err := r.Prepare(`INSERT INTO cycles VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	r.statement = stmt
	return nil
}

func (r *SQLiteRecorder) Record(c Cycle) {
	r.pending = append(r.pending, c)
	if len(r.pending) >= r.batchSize {
		if err := r.Flush(); err != nil {
			r.logger.Warn("telemetry flush failed", zap.Error(err))
		}
	}
}

// Flush writes all buffered cycles.
func (r *SQLiteRecorder) Flush() error {
	if len(r.pending) == 0 {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return err
	}
	stmt := tx.Stmt(r.statement)
	for _, c := range r.pending {
		_, err := stmt.Exec(
			r.session,
			c.Iteration,
			c.Start.UnixNano(),
			c.Preparation.Nanoseconds(),
			c.Feedback.Nanoseconds(),
			c.KKT,
			int(c.Status),
			c.Degraded,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert cycle %d: %w", c.Iteration, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.pending = r.pending[:0]
	return nil
}

func (r *SQLiteRecorder) Close() error {
	flushErr := r.Flush()
	r.statement.Close()
	if err := r.DB.Close(); err != nil {
		return err
	}
	return flushErr
}

// ReadCycles loads the cycles of one session in iteration order. An empty
// session selects every row.
func ReadCycles(path, session string) ([]Cycle, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query := `SELECT iteration, start, preparation_ns, feedback_ns, kkt, status, degraded
		FROM cycles WHERE session = ? OR ? = '' ORDER BY rowid`
	rows, err := db.Query(query, session, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var (
			c               Cycle
			start, prep, fb int64
			status          int
			degraded        bool
		)
		if err := rows.Scan(&c.Iteration, &start, &prep, &fb, &c.KKT, &status, &degraded); err != nil {
			return nil, err
		}
		c.Start = time.Unix(0, start)
		c.Preparation = time.Duration(prep)
		c.Feedback = time.Duration(fb)
		c.Status = solver.Status(status)
		c.Degraded = degraded
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}
