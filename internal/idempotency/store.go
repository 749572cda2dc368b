package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mbroton/notcli/internal/sqlutil"
)

// Record states. Pending is a sentinel reserved before execution;
// Completed carries the stored response.
const (
	StatePending   = "pending"
	StateCompleted = "completed"
)

// ErrMissingReservation signals a violated invariant: complete was called
// without a matching pending row. This is an internal error, never a
// user-facing condition.
var ErrMissingReservation = errors.New("no pending reservation to complete")

// Outcome is the decision returned by Reserve.
type Outcome int

const (
	// OutcomeExecute means this caller owns the reservation and must run
	// the mutation.
	OutcomeExecute Outcome = iota
	// OutcomePending means another owner holds an unresolved reservation.
	OutcomePending
	// OutcomeReplay means the mutation already completed; Response holds
	// the stored result.
	OutcomeReplay
	// OutcomeConflict means the key is taken by a request with a different
	// input hash; StoredHash identifies the colliding record.
	OutcomeConflict
)

// Decision is the full result of Reserve or Lookup.
type Decision struct {
	Outcome    Outcome
	Response   json.RawMessage // set for OutcomeReplay
	StoredHash string          // set for OutcomeConflict
}

// Store is the persistent idempotency record set, keyed by
// (idempotency key, command name). SQLite gives us the atomic
// insert-if-absent and conditional update the state machine needs, and
// tolerates concurrent CLI processes sharing one state directory.
type Store struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS idempotency_records (
    key        TEXT NOT NULL,
    command    TEXT NOT NULL,
    input_hash TEXT NOT NULL,
    state      TEXT NOT NULL,
    response   TEXT,
    created_at TEXT NOT NULL,
    PRIMARY KEY (key, command)
);
`

// OpenStore opens or creates the idempotency database in stateDir.
func OpenStore(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	dbPath := filepath.Join(stateDir, "idempotency.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open idempotency database: %w", err)
	}

	// Single writer avoids SQLITE_BUSY within this process; WAL plus a
	// busy timeout handles contention from sibling CLI processes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply idempotency schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Reserve atomically inserts a pending record if absent and reports what
// this caller should do. The insert-if-absent makes the race between two
// concurrent invocations resolve to exactly one OutcomeExecute.
func (s *Store) Reserve(ctx context.Context, key, command, inputHash string) (Decision, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (key, command, input_hash, state, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key, command) DO NOTHING
	`, key, command, inputHash, StatePending, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return Decision{}, fmt.Errorf("reserve idempotency record: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return Decision{}, fmt.Errorf("reserve idempotency record: %w", err)
	}
	if inserted == 1 {
		return Decision{Outcome: OutcomeExecute}, nil
	}

	return s.Lookup(ctx, key, command, inputHash)
}

// Lookup reads the record's current state without mutating it. A missing
// record reports OutcomeExecute (nothing reserved yet).
func (s *Store) Lookup(ctx context.Context, key, command, inputHash string) (Decision, error) {
	var storedHash, state string
	var response sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT input_hash, state, response
		FROM idempotency_records
		WHERE key = ? AND command = ?
	`, key, command).Scan(&storedHash, &state, &response)
	if errors.Is(err, sql.ErrNoRows) {
		return Decision{Outcome: OutcomeExecute}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("look up idempotency record: %w", err)
	}

	if storedHash != inputHash {
		return Decision{Outcome: OutcomeConflict, StoredHash: storedHash}, nil
	}
	if state == StateCompleted {
		return Decision{Outcome: OutcomeReplay, Response: json.RawMessage(response.String)}, nil
	}
	return Decision{Outcome: OutcomePending}, nil
}

// Complete transitions the matching pending record to completed, storing
// the response for future replays. A missing match is a violated
// invariant and returns ErrMissingReservation.
func (s *Store) Complete(ctx context.Context, key, command, inputHash string, response json.RawMessage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET state = ?, response = ?
		WHERE key = ? AND command = ? AND input_hash = ? AND state = ?
	`, StateCompleted, string(response), key, command, inputHash, StatePending)
	if err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	if updated == 0 {
		return fmt.Errorf("%w: key=%s command=%s", ErrMissingReservation, key, command)
	}
	return nil
}

// Release deletes the matching pending record, undoing a reservation
// whose execution failed so a later attempt can re-execute. Deleting an
// already-released record is a no-op.
func (s *Store) Release(ctx context.Context, key, command, inputHash string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM idempotency_records
		WHERE key = ? AND command = ? AND input_hash = ? AND state = ?
	`, key, command, inputHash, StatePending)
	if err != nil {
		return fmt.Errorf("release idempotency record: %w", err)
	}
	return nil
}

// Record is one row of the idempotency database, as surfaced by Records.
type Record struct {
	Key       string    `json:"key"`
	Command   string    `json:"command"`
	InputHash string    `json:"input_hash"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Records lists stored records, newest first, optionally filtered to a
// set of commands. limit <= 0 means no limit.
func (s *Store) Records(ctx context.Context, commands []string, limit int) ([]Record, error) {
	query := `
		SELECT key, command, input_hash, state, created_at
		FROM idempotency_records
	`
	var args []any
	if len(commands) > 0 {
		placeholders, inArgs := sqlutil.InClauseArgs(commands)
		query += " WHERE command IN (" + placeholders + ")"
		args = append(args, inArgs...)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list idempotency records: %w", err)
	}

	return sqlutil.ScanRows(rows, func(rows *sql.Rows) (Record, error) {
		var rec Record
		var createdAt string
		if err := rows.Scan(&rec.Key, &rec.Command, &rec.InputHash, &rec.State, &createdAt); err != nil {
			return Record{}, err
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return Record{}, fmt.Errorf("parse record timestamp: %w", err)
		}
		rec.CreatedAt = ts
		return rec, nil
	})
}

// Prune deletes completed records created before the cutoff. Pending
// records are kept; a stuck reservation is released by its owner or
// surfaced as an in-progress error, never silently dropped.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM idempotency_records
		WHERE state = ? AND created_at < ?
	`, StateCompleted, before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune idempotency records: %w", err)
	}
	return res.RowsAffected()
}
