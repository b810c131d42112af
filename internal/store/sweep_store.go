package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/cbf.sweep/internal/sim"
	"github.com/banshee-data/cbf.sweep/internal/sweep"
)

// SweepRecord is a persisted sweep.
type SweepRecord struct {
	ID              int64           `json:"id"`
	SweepID         string          `json:"sweep_id"`
	Status          string          `json:"status"`
	Request         json.RawMessage `json:"request,omitempty"`
	Summary         json.RawMessage `json:"summary,omitempty"`
	TotalCombos     int             `json:"total_combos"`
	CompletedCombos int             `json:"completed_combos"`
	FailedCombos    int             `json:"failed_combos"`
	DatasetPath     string          `json:"dataset_path,omitempty"`
	Error           string          `json:"error,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// OutcomeRecord is one persisted configuration result. Failed and Error
// are not part of the CSV dataset.
type OutcomeRecord struct {
	Index   int         `json:"index"`
	Outcome sim.Outcome `json:"outcome"`
	Failed  bool        `json:"failed"`
	Error   string      `json:"error,omitempty"`
}

// SweepStore persists sweeps. It implements sweep.Recorder.
type SweepStore struct {
	db *sql.DB
}

var _ sweep.Recorder = (*SweepStore)(nil)

// NewSweepStore creates a new SweepStore.
func NewSweepStore(db *DB) *SweepStore {
	return &SweepStore{db: db.DB}
}

// StartSweep inserts the sweep row.
func (s *SweepStore) StartSweep(ctx context.Context, st sweep.SweepState) error {
	request, err := json.Marshal(st.Request)
	if err != nil {
		return fmt.Errorf("encoding request for sweep %s: %w", st.ID, err)
	}
	startedAt := time.Now()
	if st.StartedAt != nil {
		startedAt = *st.StartedAt
	}

	query := `
		INSERT INTO sweeps (sweep_id, status, request, total_combos, started_at)
		VALUES (?, ?, ?, ?, ?)
	`
	err = retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, query,
			st.ID,
			string(st.Status),
			string(request),
			st.TotalCombos,
			startedAt.UTC().Format(time.RFC3339),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting sweep %s: %w", st.ID, err)
	}
	return nil
}

// RecordBatch inserts one batch of outcome rows in a single transaction
// and bumps the sweep's progress counters.
func (s *SweepStore) RecordBatch(ctx context.Context, sweepID string, rows []sweep.Row) error {
	err := retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sweep_outcomes (
				sweep_id, config_index, distance, velocity, theta, gamma1, gamma2,
				collision_free, safety_loss, deadlock_time, sim_time, failed, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		failed := 0
		for _, row := range rows {
			o := row.Outcome
			if row.Failed {
				failed++
			}
			if _, err := stmt.ExecContext(ctx,
				sweepID, row.Index, o.Distance, o.Velocity, o.Theta, o.Gamma1, o.Gamma2,
				o.CollisionFree, o.SafetyLoss, o.DeadlockTime, o.SimTime,
				row.Failed, nullStr(row.Err),
			); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE sweeps
			SET completed_combos = completed_combos + ?, failed_combos = failed_combos + ?
			WHERE sweep_id = ?
		`, len(rows), failed, sweepID); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("recording %d outcomes for sweep %s: %w", len(rows), sweepID, err)
	}
	return nil
}

// FinishSweep records the final status, summary and completion time.
func (s *SweepStore) FinishSweep(ctx context.Context, st sweep.SweepState) error {
	var summary *string
	if len(st.Summary) > 0 {
		b, err := json.Marshal(st.Summary)
		if err != nil {
			return fmt.Errorf("encoding summary for sweep %s: %w", st.ID, err)
		}
		str := string(b)
		summary = &str
	}
	var completedAt *string
	if st.CompletedAt != nil {
		str := st.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &str
	}

	query := `
		UPDATE sweeps
		SET status = ?, summary = ?, dataset_path = ?, error = ?, completed_at = ?
		WHERE sweep_id = ?
	`
	err := retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, query,
			string(st.Status),
			summary,
			nullStr(st.Dataset),
			nullStr(st.Error),
			completedAt,
			st.ID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("finishing sweep %s: %w", st.ID, err)
	}
	return nil
}

const sweepColumns = `
	id, sweep_id, status, request, summary, total_combos, completed_combos,
	failed_combos, dataset_path, error, started_at, completed_at
`

// GetSweep returns a sweep by ID, or nil if it does not exist.
func (s *SweepStore) GetSweep(ctx context.Context, sweepID string) (*SweepRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sweepColumns+` FROM sweeps WHERE sweep_id = ?`, sweepID)
	rec, err := scanSweep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying sweep %s: %w", sweepID, err)
	}
	return rec, nil
}

// ListSweeps returns the most recent sweeps, newest first.
func (s *SweepStore) ListSweeps(ctx context.Context, limit int) ([]SweepRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sweepColumns+` FROM sweeps ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sweeps: %w", err)
	}
	defer rows.Close()

	var out []SweepRecord
	for rows.Next() {
		rec, err := scanSweep(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sweep: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Outcomes returns a sweep's outcome rows in configuration order.
func (s *SweepStore) Outcomes(ctx context.Context, sweepID string) ([]OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT config_index, distance, velocity, theta, gamma1, gamma2,
		       collision_free, safety_loss, deadlock_time, sim_time, failed, error
		FROM sweep_outcomes
		WHERE sweep_id = ?
		ORDER BY config_index
	`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes for sweep %s: %w", sweepID, err)
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		var errMsg sql.NullString
		o := &rec.Outcome
		if err := rows.Scan(&rec.Index, &o.Distance, &o.Velocity, &o.Theta, &o.Gamma1, &o.Gamma2,
			&o.CollisionFree, &o.SafetyLoss, &o.DeadlockTime, &o.SimTime, &rec.Failed, &errMsg); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		rec.Error = errMsg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteSweep removes a sweep and its outcomes.
func (s *SweepStore) DeleteSweep(ctx context.Context, sweepID string) error {
	err := retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM sweeps WHERE sweep_id = ?`, sweepID)
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting sweep %s: %w", sweepID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSweep(sc scanner) (*SweepRecord, error) {
	var rec SweepRecord
	var request, summary, dataset, errMsg, completedAt sql.NullString
	var startedAt string
	if err := sc.Scan(&rec.ID, &rec.SweepID, &rec.Status, &request, &summary,
		&rec.TotalCombos, &rec.CompletedCombos, &rec.FailedCombos,
		&dataset, &errMsg, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	rec.Request = jsonOrNil(request)
	rec.Summary = jsonOrNil(summary)
	rec.DatasetPath = dataset.String
	rec.Error = errMsg.String

	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at for sweep %s: %w", rec.SweepID, err)
	}
	rec.StartedAt = t
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at for sweep %s: %w", rec.SweepID, err)
		}
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func jsonOrNil(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	return json.RawMessage(s.String)
}
