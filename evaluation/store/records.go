package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/clinagents/evaluation"
)

// SaveRecords replaces the score records of experiment. Re-evaluating an
// experiment therefore never leaves stale rows behind.
func (s *Store) SaveRecords(ctx context.Context, experiment string, records []evaluation.ScoreRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM score_records WHERE experiment = ?`, experiment); err != nil {
		return fmt.Errorf("clear score records: %w", err)
	}

	const q = `INSERT INTO score_records (experiment, transcript_id, case_id, run_id, mode, termination, pathology,
diagnosis_match, indeterminate, ranked_hit, treatment_match, turns, requests, unnecessary, violations, tokens, usd, record_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", r.TranscriptID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			experiment,
			r.TranscriptID,
			r.CaseID,
			r.RunID,
			string(r.Mode),
			string(r.Termination),
			r.Pathology,
			r.DiagnosisMatch,
			r.Indeterminate,
			r.RankedHit,
			r.TreatmentMatch,
			r.Process.Turns,
			r.Process.TotalRequests,
			r.Process.Unnecessary,
			r.Process.Violations,
			r.Cost.Tokens(),
			r.Cost.USD,
			string(data),
		); err != nil {
			return fmt.Errorf("insert record %s: %w", r.TranscriptID, err)
		}
	}

	return tx.Commit()
}

// Records returns the score records of experiment ordered by case id.
func (s *Store) Records(ctx context.Context, experiment string) ([]evaluation.ScoreRecord, error) {
	const q = `SELECT record_json FROM score_records WHERE experiment = ? ORDER BY case_id ASC, transcript_id ASC`

	rows, err := s.db.QueryContext(ctx, q, experiment)
	if err != nil {
		return nil, fmt.Errorf("list score records: %w", err)
	}
	defer rows.Close()

	var records []evaluation.ScoreRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan score record: %w", err)
		}

		var r evaluation.ScoreRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal score record: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// SaveSummary upserts the summary of its experiment.
func (s *Store) SaveSummary(ctx context.Context, sum evaluation.Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	const q = `INSERT INTO summaries (experiment, comparator, cases, accuracy, summary_json, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(experiment) DO UPDATE SET
	comparator = excluded.comparator,
	cases = excluded.cases,
	accuracy = excluded.accuracy,
	summary_json = excluded.summary_json,
	created_at = excluded.created_at`

	if _, err := s.db.ExecContext(ctx, q,
		sum.Experiment,
		sum.Comparator,
		sum.Cases,
		sum.DiagnosisAccuracy,
		string(data),
		time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}

	return nil
}

// Summary returns the stored summary of experiment.
func (s *Store) Summary(ctx context.Context, experiment string) (evaluation.Summary, error) {
	var data string

	err := s.db.QueryRowContext(ctx, `SELECT summary_json FROM summaries WHERE experiment = ?`, experiment).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return evaluation.Summary{}, fmt.Errorf("summary %q: %w", experiment, ErrNotFound)
	}
	if err != nil {
		return evaluation.Summary{}, fmt.Errorf("get summary: %w", err)
	}

	var sum evaluation.Summary
	if err := json.Unmarshal([]byte(data), &sum); err != nil {
		return evaluation.Summary{}, fmt.Errorf("unmarshal summary: %w", err)
	}

	return sum, nil
}

// Experiments lists the experiments with a stored summary.
func (s *Store) Experiments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT experiment FROM summaries ORDER BY experiment ASC`)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		out = append(out, e)
	}

	return out, rows.Err()
}
