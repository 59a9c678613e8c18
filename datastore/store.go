// Package datastore persists sessions and trial results in PostgreSQL
package datastore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/lixenwraith/simon-task/participant"
	"github.com/lixenwraith/simon-task/trial"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts pgxpool.Pool so the store can run against pgxmock
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlSchema = `
        CREATE TABLE IF NOT EXISTS participants (
            id         TEXT PRIMARY KEY,
            info       JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );
        CREATE TABLE IF NOT EXISTS sessions (
            id             UUID PRIMARY KEY,
            participant_id TEXT NOT NULL REFERENCES participants(id),
            seed           BIGINT NOT NULL,
            started_at     TIMESTAMPTZ NOT NULL,
            finished_at    TIMESTAMPTZ,
            trials         INTEGER NOT NULL DEFAULT 0
        );
        CREATE TABLE IF NOT EXISTS results (
            session_id     UUID NOT NULL REFERENCES sessions(id),
            trial          INTEGER NOT NULL,
            stimulus       TEXT NOT NULL,
            position       TEXT NOT NULL,
            reaction       SMALLINT NOT NULL,
            reaction_frame INTEGER NOT NULL,
            correct        BOOLEAN NOT NULL,
            duration       INTEGER NOT NULL,
            timed_out      BOOLEAN NOT NULL,
            data           JSONB NOT NULL,
            created_at     TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (session_id, trial)
        );
    `

	sqlUpsertParticipant = `
        INSERT INTO participants (id, info, created_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET info = EXCLUDED.info;
    `
	sqlInsertSession = `
        INSERT INTO sessions (id, participant_id, seed, started_at)
        VALUES ($1, $2, $3, $4);
    `
	sqlFinishSession = `
        UPDATE sessions SET finished_at = $2, trials = $3 WHERE id = $1;
    `
	sqlInsertResult = `
        INSERT INTO results (session_id, trial, stimulus, position, reaction, reaction_frame, correct, duration, timed_out, data, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
    `
	sqlListParticipants = `
        SELECT p.id, p.info, COUNT(s.id)
        FROM participants p LEFT JOIN sessions s ON s.participant_id = p.id
        GROUP BY p.id, p.info
        ORDER BY p.id;
    `
	sqlParticipantRows = `
        SELECT r.session_id, r.trial, r.data, r.created_at
        FROM results r JOIN sessions s ON s.id = r.session_id
        WHERE s.participant_id = $1
        ORDER BY s.started_at, r.trial;
    `
)

var ErrUnknownParticipant = goerr.New("participant has no recorded rows")

// Store is the PostgreSQL experiment datastore
type Store struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

// New creates a store and verifies the connection
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, goerr.Wrap(err, "failed to ping database")
	}
	return &Store{
		pool: pool,
		log:  logger.Named("datastore"),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Open connects a pgx pool to dsn; the returned close func releases it
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to create connection pool")
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Migrate creates the tables when missing
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlSchema); err != nil {
		return goerr.Wrap(err, "failed to apply schema")
	}
	return nil
}

// Session identifies one run of the experiment
type Session struct {
	ID          string
	Participant *participant.Participant
	Seed        uint64
	StartedAt   time.Time
}

// CreateSession records the participant and opens the session in one transaction
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	info, err := json.Marshal(sess.Participant.Map())
	if err != nil {
		return goerr.Wrap(err, "failed to encode participant info")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction.", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlUpsertParticipant, sess.Participant.ID(), info, s.now()); err != nil {
		return goerr.Wrap(err, "failed to upsert participant", goerr.V("participant", sess.Participant.ID()))
	}
	if _, err := tx.Exec(ctx, sqlInsertSession, sess.ID, sess.Participant.ID(), int64(sess.Seed), sess.StartedAt.UTC()); err != nil {
		return goerr.Wrap(err, "failed to insert session", goerr.V("session", sess.ID))
	}

	if err := tx.Commit(ctx); err != nil {
		return goerr.Wrap(err, "failed to commit transaction")
	}
	s.log.Debug("Session created.", zap.String("session", sess.ID), zap.String("participant", sess.Participant.ID()))
	return nil
}

// CommitResult stores one resolved trial; the flattened fields go to the data column
func (s *Store) CommitResult(ctx context.Context, sessionID string, r trial.Result) error {
	data := make(map[string]any)
	for _, f := range r.Fields() {
		data[f.Key] = f.Value
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return goerr.Wrap(err, "failed to encode result data", goerr.V("trial", r.Trial.Index))
	}

	_, err = s.pool.Exec(ctx, sqlInsertResult,
		sessionID, r.Trial.Index, r.Trial.Name(), r.Position.String(),
		int16(r.Reaction), r.ReactionFrame, r.Correct, r.Duration, r.TimedOut,
		payload, s.now(),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert result", goerr.V("session", sessionID), goerr.V("trial", r.Trial.Index))
	}
	return nil
}

// FinishSession stamps the end time and the number of completed trials
func (s *Store) FinishSession(ctx context.Context, sessionID string, completed int) error {
	tag, err := s.pool.Exec(ctx, sqlFinishSession, sessionID, s.now(), completed)
	if err != nil {
		return goerr.Wrap(err, "failed to finish session", goerr.V("session", sessionID))
	}
	if tag.RowsAffected() != 1 {
		return goerr.New("session not found", goerr.V("session", sessionID))
	}
	return nil
}

// ParticipantSummary is one participant with its session count
type ParticipantSummary struct {
	ID       string
	Info     map[string]string
	Sessions int
}

// Participants lists every participant of the experiment, ordered by id
func (s *Store) Participants(ctx context.Context) ([]ParticipantSummary, error) {
	rows, err := s.pool.Query(ctx, sqlListParticipants)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query participants")
	}
	defer rows.Close()

	var out []ParticipantSummary
	for rows.Next() {
		var (
			p    ParticipantSummary
			info []byte
		)
		if err := rows.Scan(&p.ID, &info, &p.Sessions); err != nil {
			return nil, goerr.Wrap(err, "failed to scan participant")
		}
		if err := json.Unmarshal(info, &p.Info); err != nil {
			return nil, goerr.Wrap(err, "failed to decode participant info", goerr.V("participant", p.ID))
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate participants")
	}
	return out, nil
}

// Row is one stored trial result
type Row struct {
	SessionID string
	Trial     int
	Data      map[string]any
	CreatedAt time.Time
}

// Rows returns every trial row of a participant across sessions, in presentation order
func (s *Store) Rows(ctx context.Context, participantID string) ([]Row, error) {
	rows, err := s.pool.Query(ctx, sqlParticipantRows, participantID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query rows", goerr.V("participant", participantID))
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r    Row
			data []byte
		)
		if err := rows.Scan(&r.SessionID, &r.Trial, &data, &r.CreatedAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan row")
		}
		if err := json.Unmarshal(data, &r.Data); err != nil {
			return nil, goerr.Wrap(err, "failed to decode row data", goerr.V("trial", r.Trial))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate rows")
	}
	if len(out) == 0 {
		return nil, goerr.Wrap(ErrUnknownParticipant, "rows", goerr.V("participant", participantID))
	}
	return out, nil
}
