package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/resume-author/internal/types"
)

// DB is the PostgreSQL-backed Store.
type DB struct {
	pool *pgxpool.Pool
}

var _ Store = (*DB)(nil)

// Connect establishes a connection pool and verifies it.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Schema is the DDL for all orchestrator tables.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                 UUID PRIMARY KEY,
	status             TEXT NOT NULL,
	current_stage      TEXT NOT NULL DEFAULT '',
	active_node        TEXT NOT NULL DEFAULT '',
	pending_gate       TEXT,
	pending_gate_data  JSONB,
	force_advanced     BOOLEAN NOT NULL DEFAULT FALSE,
	archived           BOOLEAN NOT NULL DEFAULT FALSE,
	error_message      TEXT NOT NULL DEFAULT '',
	benchmark_edit_seq INT NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at       TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS stage_nodes (
	run_id         UUID NOT NULL REFERENCES runs(id),
	node_key       TEXT NOT NULL,
	status         TEXT NOT NULL,
	active_version INT NOT NULL DEFAULT 1,
	meta           JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_id, node_key)
);
CREATE TABLE IF NOT EXISTS gates (
	run_id       UUID NOT NULL REFERENCES runs(id),
	id           TEXT NOT NULL,
	node_key     TEXT NOT NULL,
	context      TEXT NOT NULL DEFAULT '',
	node_version INT NOT NULL,
	status       TEXT NOT NULL,
	payload      JSONB NOT NULL,
	response     JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	resolved_at  TIMESTAMPTZ,
	PRIMARY KEY (run_id, id)
);
CREATE TABLE IF NOT EXISTS replan_requests (
	id                     UUID PRIMARY KEY,
	run_id                 UUID NOT NULL REFERENCES runs(id),
	reason                 TEXT NOT NULL,
	benchmark_edit_version INT NOT NULL,
	rebuild_from           TEXT NOT NULL,
	requires_restart       BOOLEAN NOT NULL,
	stale_nodes            JSONB NOT NULL,
	current_stage          TEXT NOT NULL,
	state                  TEXT NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS artifacts (
	run_id       UUID NOT NULL REFERENCES runs(id),
	step         TEXT NOT NULL,
	content      JSONB,
	text_content TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_id, step)
);
`

// EnsureSchema creates the orchestrator tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Runs
// -----------------------------------------------------------------------------

// CreateRun inserts a new run record.
func (db *DB) CreateRun(ctx context.Context, run *types.Run) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO runs (id, status, current_stage, active_node)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		run.ID, run.Status, run.CurrentStage, run.ActiveNode,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

const runColumns = `id, status, current_stage, active_node, pending_gate, pending_gate_data,
	force_advanced, archived, error_message, created_at, updated_at, completed_at`

func scanRun(row pgx.Row) (*types.Run, error) {
	var run types.Run
	err := row.Scan(&run.ID, &run.Status, &run.CurrentStage, &run.ActiveNode,
		&run.PendingGate, &run.PendingGateData, &run.ForceAdvanced, &run.Archived,
		&run.ErrorMessage, &run.CreatedAt, &run.UpdatedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, runID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// UpdateRun persists the mutable run fields.
func (db *DB) UpdateRun(ctx context.Context, run *types.Run) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE runs
		 SET status = $2, current_stage = $3, active_node = $4, pending_gate = $5,
		     pending_gate_data = $6, force_advanced = $7, error_message = $8,
		     completed_at = $9, updated_at = NOW()
		 WHERE id = $1`,
		run.ID, run.Status, run.CurrentStage, run.ActiveNode, run.PendingGate,
		run.PendingGateData, run.ForceAdvanced, run.ErrorMessage, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// ListRuns retrieves recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []types.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// ArchiveRun marks a run archived. Runs are never deleted.
func (db *DB) ArchiveRun(ctx context.Context, runID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE runs SET archived = TRUE, updated_at = NOW() WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("failed to archive run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// -----------------------------------------------------------------------------
// Stage nodes
// -----------------------------------------------------------------------------

// PutNode upserts a stage node.
func (db *DB) PutNode(ctx context.Context, node *types.StageNode) error {
	metaJSON, err := json.Marshal(node.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal node meta: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO stage_nodes (run_id, node_key, status, active_version, meta)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id, node_key) DO UPDATE
		 SET status = $3, active_version = $4, meta = $5, updated_at = NOW()`,
		node.RunID, node.Key, node.Status, node.ActiveVersion, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to put node %s: %w", node.Key, err)
	}
	return nil
}

func scanNode(row pgx.Row) (*types.StageNode, error) {
	var node types.StageNode
	var metaJSON []byte
	err := row.Scan(&node.RunID, &node.Key, &node.Status, &node.ActiveVersion,
		&metaJSON, &node.CreatedAt, &node.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &node.Meta)
	}
	return &node, nil
}

// GetNode retrieves one stage node.
func (db *DB) GetNode(ctx context.Context, runID uuid.UUID, key types.NodeKey) (*types.StageNode, error) {
	node, err := scanNode(db.pool.QueryRow(ctx,
		`SELECT run_id, node_key, status, active_version, meta, created_at, updated_at
		 FROM stage_nodes WHERE run_id = $1 AND node_key = $2`,
		runID, key))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("failed to get node %s: %w", key, err)
	}
	return node, nil
}

// ListNodes retrieves all stage nodes for a run.
func (db *DB) ListNodes(ctx context.Context, runID uuid.UUID) ([]types.StageNode, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, node_key, status, active_version, meta, created_at, updated_at
		 FROM stage_nodes WHERE run_id = $1 ORDER BY created_at`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []types.StageNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, *node)
	}
	return nodes, nil
}

// -----------------------------------------------------------------------------
// Gates
// -----------------------------------------------------------------------------

// OpenGate atomically claims the run's single gate slot and records the gate.
// The WHERE pending_gate IS NULL guard is the compare-and-swap that enforces
// the single-open-gate invariant under concurrency.
func (db *DB) OpenGate(ctx context.Context, gate *types.Gate) error {
	payloadJSON, err := json.Marshal(gate.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal gate payload: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin open-gate tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE runs
		 SET pending_gate = $2, pending_gate_data = $3, updated_at = NOW()
		 WHERE id = $1 AND archived = FALSE AND pending_gate IS NULL`,
		gate.RunID, gate.ID, payloadJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to claim gate slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := db.GetRun(ctx, gate.RunID); err != nil {
			return err
		}
		return ErrGateConflict
	}

	// Reopening the same deterministic id (after a replan) resets the row.
	err = tx.QueryRow(ctx,
		`INSERT INTO gates (run_id, id, node_key, context, node_version, status, payload)
		 VALUES ($1, $2, $3, $4, $5, 'open', $6)
		 ON CONFLICT (run_id, id) DO UPDATE
		 SET node_version = $5, status = 'open', payload = $6,
		     response = NULL, resolved_at = NULL, created_at = NOW()
		 RETURNING created_at`,
		gate.RunID, gate.ID, gate.NodeKey, gate.Context, gate.NodeVersion, payloadJSON,
	).Scan(&gate.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert gate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit open-gate tx: %w", err)
	}
	gate.Status = types.GateOpen
	return nil
}

const gateColumns = `run_id, id, node_key, context, node_version, status, payload, response,
	created_at, resolved_at`

func scanGate(row pgx.Row) (*types.Gate, error) {
	var gate types.Gate
	var payloadJSON []byte
	err := row.Scan(&gate.RunID, &gate.ID, &gate.NodeKey, &gate.Context,
		&gate.NodeVersion, &gate.Status, &payloadJSON, &gate.Response,
		&gate.CreatedAt, &gate.ResolvedAt)
	if err != nil {
		return nil, err
	}
	if len(payloadJSON) > 0 {
		_ = json.Unmarshal(payloadJSON, &gate.Payload)
	}
	return &gate, nil
}

// GetGate retrieves a gate by run and id.
func (db *DB) GetGate(ctx context.Context, runID uuid.UUID, gateID string) (*types.Gate, error) {
	gate, err := scanGate(db.pool.QueryRow(ctx,
		`SELECT `+gateColumns+` FROM gates WHERE run_id = $1 AND id = $2`,
		runID, gateID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrGateNotFound
		}
		return nil, fmt.Errorf("failed to get gate %s: %w", gateID, err)
	}
	return gate, nil
}

// ResolveGate flips an open gate to resolved. The WHERE status = 'open'
// guard makes duplicate resolves lose with ErrGateConflict instead of
// silently succeeding.
func (db *DB) ResolveGate(ctx context.Context, runID uuid.UUID, gateID string, response json.RawMessage) (*types.Gate, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin resolve-gate tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	gate, err := scanGate(tx.QueryRow(ctx,
		`UPDATE gates
		 SET status = 'resolved', response = $3, resolved_at = NOW()
		 WHERE run_id = $1 AND id = $2 AND status = 'open'
		 RETURNING `+gateColumns,
		runID, gateID, response))
	if err != nil {
		if err == pgx.ErrNoRows {
			existing, getErr := db.GetGate(ctx, runID, gateID)
			if getErr != nil {
				return nil, getErr
			}
			if existing.Status == types.GateExpired {
				return nil, ErrGateExpired
			}
			return nil, ErrGateConflict
		}
		return nil, fmt.Errorf("failed to resolve gate %s: %w", gateID, err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE runs
		 SET pending_gate = NULL, pending_gate_data = NULL, updated_at = NOW()
		 WHERE id = $1 AND pending_gate = $2`,
		runID, gateID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to clear pending gate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit resolve-gate tx: %w", err)
	}
	return gate, nil
}

// ExpireGate force-expires a gate (administrative cleanup, abort, replan
// restart) and releases the run's gate slot if it pointed here.
func (db *DB) ExpireGate(ctx context.Context, runID uuid.UUID, gateID string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin expire-gate tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE gates SET status = 'expired' WHERE run_id = $1 AND id = $2`,
		runID, gateID,
	)
	if err != nil {
		return fmt.Errorf("failed to expire gate %s: %w", gateID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGateNotFound
	}

	_, err = tx.Exec(ctx,
		`UPDATE runs
		 SET pending_gate = NULL, pending_gate_data = NULL, updated_at = NOW()
		 WHERE id = $1 AND pending_gate = $2`,
		runID, gateID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear pending gate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit expire-gate tx: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Replans
// -----------------------------------------------------------------------------

// CreateReplan inserts a replan request record.
func (db *DB) CreateReplan(ctx context.Context, req *types.ReplanRequest) error {
	staleJSON, err := json.Marshal(req.StaleNodes)
	if err != nil {
		return fmt.Errorf("failed to marshal stale nodes: %w", err)
	}
	err = db.pool.QueryRow(ctx,
		`INSERT INTO replan_requests
		 (id, run_id, reason, benchmark_edit_version, rebuild_from, requires_restart,
		  stale_nodes, current_stage, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		req.ID, req.RunID, req.Reason, req.BenchmarkEditVersion, req.RebuildFromStage,
		req.RequiresRestart, staleJSON, req.CurrentStage, req.State,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create replan request: %w", err)
	}
	return nil
}

// GetActiveReplan returns the newest non-completed replan request, or nil.
func (db *DB) GetActiveReplan(ctx context.Context, runID uuid.UUID) (*types.ReplanRequest, error) {
	var req types.ReplanRequest
	var staleJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, run_id, reason, benchmark_edit_version, rebuild_from, requires_restart,
		        stale_nodes, current_stage, state, created_at, updated_at
		 FROM replan_requests
		 WHERE run_id = $1 AND state != 'completed'
		 ORDER BY created_at DESC LIMIT 1`,
		runID,
	).Scan(&req.ID, &req.RunID, &req.Reason, &req.BenchmarkEditVersion,
		&req.RebuildFromStage, &req.RequiresRestart, &staleJSON, &req.CurrentStage,
		&req.State, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active replan: %w", err)
	}
	if staleJSON != nil {
		_ = json.Unmarshal(staleJSON, &req.StaleNodes)
	}
	return &req, nil
}

// UpdateReplan persists a replan request's mutable fields.
func (db *DB) UpdateReplan(ctx context.Context, req *types.ReplanRequest) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE replan_requests
		 SET requires_restart = $2, state = $3, updated_at = NOW()
		 WHERE id = $1`,
		req.ID, req.RequiresRestart, req.State,
	)
	if err != nil {
		return fmt.Errorf("failed to update replan request: %w", err)
	}
	return nil
}

// NextBenchmarkEditVersion atomically bumps the run's edit counter.
func (db *DB) NextBenchmarkEditVersion(ctx context.Context, runID uuid.UUID) (int, error) {
	var version int
	err := db.pool.QueryRow(ctx,
		`UPDATE runs SET benchmark_edit_seq = benchmark_edit_seq + 1, updated_at = NOW()
		 WHERE id = $1
		 RETURNING benchmark_edit_seq`,
		runID,
	).Scan(&version)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrRunNotFound
		}
		return 0, fmt.Errorf("failed to bump benchmark edit version: %w", err)
	}
	return version, nil
}

// -----------------------------------------------------------------------------
// Artifacts
// -----------------------------------------------------------------------------

// SaveArtifact stores a JSON artifact for a run step.
func (db *DB) SaveArtifact(ctx context.Context, runID uuid.UUID, step string, content any) error {
	jsonBytes, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO artifacts (run_id, step, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (run_id, step) DO UPDATE SET content = $3, created_at = NOW()`,
		runID, step, jsonBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact %s: %w", step, err)
	}
	return nil
}

// SaveTextArtifact stores a text artifact (like the exported document).
func (db *DB) SaveTextArtifact(ctx context.Context, runID uuid.UUID, step, text string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO artifacts (run_id, step, text_content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (run_id, step) DO UPDATE SET text_content = $3, created_at = NOW()`,
		runID, step, text,
	)
	if err != nil {
		return fmt.Errorf("failed to save text artifact %s: %w", step, err)
	}
	return nil
}

// GetArtifact retrieves a JSON artifact by run and step.
func (db *DB) GetArtifact(ctx context.Context, runID uuid.UUID, step string) ([]byte, error) {
	var content []byte
	err := db.pool.QueryRow(ctx,
		`SELECT content FROM artifacts WHERE run_id = $1 AND step = $2`,
		runID, step,
	).Scan(&content)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artifact %s: %w", step, err)
	}
	return content, nil
}

// GetTextArtifact retrieves a text artifact by run and step.
func (db *DB) GetTextArtifact(ctx context.Context, runID uuid.UUID, step string) (string, error) {
	var text string
	err := db.pool.QueryRow(ctx,
		`SELECT text_content FROM artifacts WHERE run_id = $1 AND step = $2`,
		runID, step,
	).Scan(&text)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get text artifact %s: %w", step, err)
	}
	return text, nil
}
