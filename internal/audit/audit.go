// Package audit persists an append-only trail of anomalies and enacted
// decisions so long-run anomaly rates can be audited. The trail is advisory:
// the ledger itself stays the source of truth.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"parliament/internal/events"
)

// Recorder accepts audit entries. Nop satisfies it when no database is
// configured.
type Recorder interface {
	Record(ctx context.Context, kind, motionID, actor, detail string) error
}

type Nop struct{}

func (Nop) Record(context.Context, string, string, string, string) error {
	return nil
}

type Entry struct {
	ID         int64
	Kind       string
	MotionID   string
	Actor      string
	Detail     string
	RecordedAt time.Time
}

// Store is the Postgres-backed recorder.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			id BIGSERIAL PRIMARY KEY,
			kind TEXT NOT NULL,
			motion_id TEXT NOT NULL DEFAULT '',
			actor TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, kind, motionID, actor, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (kind, motion_id, actor, detail) VALUES ($1, $2, $3, $4)`,
		kind, motionID, actor, detail)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, motion_id, actor, detail, recorded_at
		 FROM audit_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Kind, &e.MotionID, &e.Actor, &e.Detail, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Attach subscribes the recorder to every lifecycle event on the bus.
// Recording failures are logged, never propagated into the voting path.
func Attach(bus *events.Bus, rec Recorder, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	types := []events.Type{
		events.MotionCreated,
		events.BallotCast,
		events.DelegationCreated,
		events.TallyComputed,
		events.DecisionEnacted,
		events.AnomalyFlagged,
	}
	for _, eventType := range types {
		bus.Subscribe(eventType, func(evt events.Event) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := rec.Record(ctx, string(evt.Type), evt.MotionID, evt.Actor, evt.Detail); err != nil {
				log.Warn("audit record failed", "type", evt.Type, "err", err)
			}
		})
	}
}
