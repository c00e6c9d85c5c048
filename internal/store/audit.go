// Package store persists attempt and cycle audit rows. The engine only ever
// writes here; the tracker remains the source of truth for item state.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"forgeflow.app/engine/core/db"
	"forgeflow.app/engine/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS engine_cycles (
	id            BIGINT PRIMARY KEY,
	iteration     INT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	elapsed_ms    BIGINT NOT NULL,
	completed     INT NOT NULL,
	blocked       INT NOT NULL,
	review_needed INT NOT NULL,
	skipped       INT NOT NULL,
	worker_errors INT NOT NULL,
	per_worker    JSONB
);

CREATE TABLE IF NOT EXISTS engine_attempts (
	id          BIGINT PRIMARY KEY,
	cycle_id    BIGINT NOT NULL,
	item_id     BIGINT NOT NULL,
	worker      TEXT NOT NULL,
	state       TEXT NOT NULL,
	failure     TEXT NOT NULL DEFAULT '',
	error       TEXT,
	duration_ms BIGINT NOT NULL,
	change_id   BIGINT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_engine_attempts_cycle ON engine_attempts (cycle_id);
CREATE INDEX IF NOT EXISTS idx_engine_attempts_item ON engine_attempts (item_id);
`

type AuditStore struct {
	db *db.DB
}

func NewAuditStore(database *db.DB) *AuditStore {
	return &AuditStore{db: database}
}

// Migrate creates the audit tables if they do not exist yet. Runs in a
// single transaction so a partially applied schema never survives a crash.
func (s *AuditStore) Migrate(ctx context.Context) error {
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("migrating audit schema: %w", err)
	}
	return nil
}

func (s *AuditStore) RecordAttempt(ctx context.Context, rec *model.AttemptRecord) error {
	_, err := s.db.Pool().Exec(ctx, `
		INSERT INTO engine_attempts (id, cycle_id, item_id, worker, state, failure, error, duration_ms, change_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.CycleID, rec.ItemID, string(rec.Worker), string(rec.State),
		string(rec.Failure), rec.Error, rec.Duration.Milliseconds(), rec.ChangeID)
	if err != nil {
		return fmt.Errorf("recording attempt %d: %w", rec.ID, err)
	}
	return nil
}

func (s *AuditStore) RecordCycle(ctx context.Context, report *model.CycleReport) error {
	perWorker, err := json.Marshal(report.PerWorker)
	if err != nil {
		return fmt.Errorf("encoding per-worker counts: %w", err)
	}
	_, err = s.db.Pool().Exec(ctx, `
		INSERT INTO engine_cycles (id, iteration, started_at, elapsed_ms, completed, blocked, review_needed, skipped, worker_errors, per_worker)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		report.ID, report.Iteration, report.StartedAt, report.Elapsed.Milliseconds(),
		report.Completed, report.Blocked, report.ReviewNeeded, report.Skipped,
		report.WorkerErrors, perWorker)
	if err != nil {
		return fmt.Errorf("recording cycle %d: %w", report.ID, err)
	}
	return nil
}
