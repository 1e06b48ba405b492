package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event names recorded against a worker slot. Grounded on spec §7's
// supervisor error taxonomy ("repeated worker crashes manifest as
// continued respawn attempts") — operators want these as queryable rows,
// not only log lines.
const (
	EventSpawned   = "spawned"
	EventExited    = "exited"
	EventCrashed   = "crashed"
	EventKilled    = "killed_stalled"
	EventRespawned = "respawned"
)

// Recorder persists worker-lifecycle events to Postgres via pgxpool.
// Grounded on aras-group-co-aras-auth's repository.postgres pattern
// (a *pgxpool.Pool held by a thin wrapper, one parameterized Exec per
// write), applied here to an append-only event log instead of a CRUD
// table.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder connects a pgxpool against dsn. Callers should call
// RunMigrations against the same dsn before constructing a Recorder in a
// fresh environment.
func NewRecorder(ctx context.Context, dsn string) (*Recorder, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Recorder{pool: pool}, nil
}

// Record inserts one worker-lifecycle event row. Failures are logged and
// swallowed: the supervisor's own fork/respawn/kill decisions must never
// block or abort on an audit-store hiccup (spec §4.6's supervision loop
// owns liveness, not persistence).
func (r *Recorder) Record(slot, pid int, event, detail string) {
	if r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const query = `INSERT INTO worker_events (slot, pid, event, detail) VALUES ($1, $2, $3, $4)`
	if _, err := r.pool.Exec(ctx, query, slot, pid, event, detail); err != nil {
		slog.Warn("audit: failed to record worker event", "slot", slot, "event", event, "error", err)
	}
}

// Close releases the underlying connection pool.
func (r *Recorder) Close() {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
}
