package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/candor-labs/candor/pkg/core"
	"github.com/candor-labs/candor/pkg/core/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	initiator_id   TEXT NOT NULL,
	participant_id TEXT NOT NULL,
	session_type   TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	created_at     INTEGER NOT NULL,
	started_at     INTEGER,
	ended_at       INTEGER
);

CREATE TABLE IF NOT EXISTS consents (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL,
	session_id    TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	consent_given INTEGER NOT NULL,
	ts            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS consents_session ON consents(session_id);

CREATE TABLE IF NOT EXISTS baselines (
	subject_id     TEXT PRIMARY KEY,
	gaze_x         REAL,
	gaze_y         REAL,
	tone_json      TEXT,
	established_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	id                  TEXT PRIMARY KEY,
	session_id          TEXT NOT NULL,
	subject_id          TEXT NOT NULL,
	analyzer_id         TEXT NOT NULL,
	overall_score       REAL NOT NULL,
	gaze_score          REAL NOT NULL,
	tone_score          REAL NOT NULL,
	contradiction_score REAL NOT NULL,
	confidence          REAL NOT NULL,
	ts                  INTEGER NOT NULL,
	source_artifact     TEXT
);
CREATE INDEX IF NOT EXISTS results_session ON results(session_id, ts);
CREATE INDEX IF NOT EXISTS results_subject ON results(subject_id);
CREATE INDEX IF NOT EXISTS results_analyzer ON results(analyzer_id);
`

// SQLiteConfig holds the parameters for opening the sqlite record store.
type SQLiteConfig struct {
	// Path is the filesystem path to the database file. The file is created
	// if it does not exist.
	Path string
	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int
	// Logger receives operational messages. Defaults to slog.Default().
	Logger *slog.Logger
}

// SQLite is the sqlite-backed RecordStore. Safe for concurrent use; each
// operation takes its own pooled connection.
type SQLite struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
}

// OpenSQLite opens (and if necessary creates) the record store database and
// applies the schema. The caller must Close the store when done.
func OpenSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			if err := sqlitex.ExecuteScript(conn, "PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;", nil); err != nil {
				return err
			}
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}

	logger.Info("record store opened", "path", cfg.Path, "pool_size", poolSize)
	return &SQLite{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *SQLite) Close() error {
	return s.pool.Close()
}

// CreateSession inserts a new session row.
func (s *SQLite) CreateSession(ctx context.Context, sess types.Session) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return core.NewStorageError("create session", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO sessions (id, initiator_id, participant_id, session_type, status, created_at, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			sess.ID, sess.Initiator, sess.Participant, sess.Type, string(sess.Status),
			sess.CreatedAt.UnixMilli(), nullableTime(sess.StartedAt), nullableTime(sess.EndedAt),
		}})
	if err != nil {
		return core.NewStorageError("create session", err)
	}
	return nil
}

// GetSession loads a session row.
func (s *SQLite) GetSession(ctx context.Context, id string) (types.Session, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return types.Session{}, false, core.NewStorageError("get session", err)
	}
	defer s.pool.Put(conn)

	var sess types.Session
	found := false
	err = sqlitex.Execute(conn,
		`SELECT id, initiator_id, participant_id, session_type, status, created_at, started_at, ended_at
		 FROM sessions WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				sess = types.Session{
					ID:          stmt.ColumnText(0),
					Initiator:   stmt.ColumnText(1),
					Participant: stmt.ColumnText(2),
					Type:        stmt.ColumnText(3),
					Status:      types.SessionStatus(stmt.ColumnText(4)),
					CreatedAt:   time.UnixMilli(stmt.ColumnInt64(5)),
				}
				if !stmt.ColumnIsNull(6) {
					t := time.UnixMilli(stmt.ColumnInt64(6))
					sess.StartedAt = &t
				}
				if !stmt.ColumnIsNull(7) {
					t := time.UnixMilli(stmt.ColumnInt64(7))
					sess.EndedAt = &t
				}
				return nil
			},
		})
	if err != nil {
		return types.Session{}, false, core.NewStorageError("get session", err)
	}
	return sess, found, nil
}

// UpdateSession replaces a session row.
func (s *SQLite) UpdateSession(ctx context.Context, sess types.Session) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return core.NewStorageError("update session", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE sessions SET status = ?, started_at = ?, ended_at = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{
			string(sess.Status), nullableTime(sess.StartedAt), nullableTime(sess.EndedAt), sess.ID,
		}})
	if err != nil {
		return core.NewStorageError("update session", err)
	}
	if conn.Changes() == 0 {
		return core.NewSessionNotFoundError(sess.ID)
	}
	return nil
}

// AppendConsent inserts a consent ledger row.
func (s *SQLite) AppendConsent(ctx context.Context, rec types.ConsentRecord) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return core.NewStorageError("append consent", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO consents (id, session_id, user_id, consent_given, ts) VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			rec.ID, rec.SessionID, rec.UserID, boolToInt(rec.ConsentGiven), rec.Timestamp.UnixMilli(),
		}})
	if err != nil {
		return core.NewStorageError("append consent", err)
	}
	return nil
}

// ConsentHistory returns the session's consent records ordered by timestamp,
// with the insert sequence breaking ties.
func (s *SQLite) ConsentHistory(ctx context.Context, sessionID string) ([]types.ConsentRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, core.NewStorageError("consent history", err)
	}
	defer s.pool.Put(conn)

	var out []types.ConsentRecord
	err = sqlitex.Execute(conn,
		`SELECT id, session_id, user_id, consent_given, ts FROM consents
		 WHERE session_id = ? ORDER BY ts ASC, seq ASC`,
		&sqlitex.ExecOptions{
			Args: []any{sessionID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, types.ConsentRecord{
					ID:           stmt.ColumnText(0),
					SessionID:    stmt.ColumnText(1),
					UserID:       stmt.ColumnText(2),
					ConsentGiven: stmt.ColumnInt64(3) != 0,
					Timestamp:    time.UnixMilli(stmt.ColumnInt64(4)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, core.NewStorageError("consent history", err)
	}
	return out, nil
}

// SaveResult inserts a result row.
func (s *SQLite) SaveResult(ctx context.Context, rec types.ResultRecord) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return core.NewStorageError("save result", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO results (id, session_id, subject_id, analyzer_id, overall_score, gaze_score,
		                      tone_score, contradiction_score, confidence, ts, source_artifact)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			rec.ID, rec.SessionID, rec.SubjectID, rec.AnalyzerID,
			rec.Scores.Overall, rec.Scores.Gaze, rec.Scores.Tone, rec.Scores.Contradiction,
			rec.Confidence, rec.Timestamp.UnixMilli(), rec.SourceArtifact,
		}})
	if err != nil {
		return core.NewStorageError("save result", err)
	}
	return nil
}

// LatestResult returns the newest result for a session.
func (s *SQLite) LatestResult(ctx context.Context, sessionID string) (types.ResultRecord, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return types.ResultRecord{}, false, core.NewStorageError("latest result", err)
	}
	defer s.pool.Put(conn)

	var rec types.ResultRecord
	found := false
	err = sqlitex.Execute(conn,
		`SELECT id, session_id, subject_id, analyzer_id, overall_score, gaze_score, tone_score,
		        contradiction_score, confidence, ts, source_artifact
		 FROM results WHERE session_id = ? ORDER BY ts DESC, id DESC LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{sessionID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				rec = scanResult(stmt)
				return nil
			},
		})
	if err != nil {
		return types.ResultRecord{}, false, core.NewStorageError("latest result", err)
	}
	return rec, found, nil
}

// ResultHistory returns up to limit results involving the user, newest first.
func (s *SQLite) ResultHistory(ctx context.Context, userID string, limit int) ([]types.ResultRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, core.NewStorageError("result history", err)
	}
	defer s.pool.Put(conn)

	if limit <= 0 {
		limit = 50
	}

	var out []types.ResultRecord
	err = sqlitex.Execute(conn,
		`SELECT id, session_id, subject_id, analyzer_id, overall_score, gaze_score, tone_score,
		        contradiction_score, confidence, ts, source_artifact
		 FROM results WHERE subject_id = ? OR analyzer_id = ?
		 ORDER BY ts DESC, id DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{userID, userID, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanResult(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, core.NewStorageError("result history", err)
	}
	return out, nil
}

// Put stores a baseline record, replacing any prior record for the subject.
func (s *SQLite) Put(ctx context.Context, rec types.BaselineRecord) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return core.NewStorageError("put baseline", err)
	}
	defer s.pool.Put(conn)

	var gazeX, gazeY any
	if rec.GazeCenter != nil {
		gazeX, gazeY = rec.GazeCenter.X, rec.GazeCenter.Y
	}
	var toneJSON any
	if rec.Tone != nil {
		raw, err := json.Marshal(rec.Tone)
		if err != nil {
			return core.NewStorageError("put baseline", err)
		}
		toneJSON = string(raw)
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO baselines (subject_id, gaze_x, gaze_y, tone_json, established_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(subject_id) DO UPDATE SET
		   gaze_x = excluded.gaze_x,
		   gaze_y = excluded.gaze_y,
		   tone_json = excluded.tone_json,
		   established_at = excluded.established_at`,
		&sqlitex.ExecOptions{Args: []any{
			rec.Subject, gazeX, gazeY, toneJSON, rec.EstablishedAt.UnixMilli(),
		}})
	if err != nil {
		return core.NewStorageError("put baseline", err)
	}
	return nil
}

// Get returns the subject's baseline, if established.
func (s *SQLite) Get(ctx context.Context, subject string) (types.BaselineRecord, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return types.BaselineRecord{}, false, core.NewStorageError("get baseline", err)
	}
	defer s.pool.Put(conn)

	var rec types.BaselineRecord
	found := false
	var decodeErr error
	err = sqlitex.Execute(conn,
		`SELECT subject_id, gaze_x, gaze_y, tone_json, established_at FROM baselines WHERE subject_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{subject},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				rec = types.BaselineRecord{
					Subject:       stmt.ColumnText(0),
					EstablishedAt: time.UnixMilli(stmt.ColumnInt64(4)),
				}
				if !stmt.ColumnIsNull(1) && !stmt.ColumnIsNull(2) {
					rec.GazeCenter = &types.Point{X: stmt.ColumnFloat(1), Y: stmt.ColumnFloat(2)}
				}
				if !stmt.ColumnIsNull(3) {
					var tone types.ToneFeatures
					if err := json.Unmarshal([]byte(stmt.ColumnText(3)), &tone); err != nil {
						decodeErr = err
						return nil
					}
					rec.Tone = &tone
				}
				return nil
			},
		})
	if err != nil {
		return types.BaselineRecord{}, false, core.NewStorageError("get baseline", err)
	}
	if decodeErr != nil {
		return types.BaselineRecord{}, false, core.NewStorageError("get baseline: decode tone", decodeErr)
	}
	return rec, found, nil
}

func scanResult(stmt *sqlite.Stmt) types.ResultRecord {
	return types.ResultRecord{
		ID:         stmt.ColumnText(0),
		SessionID:  stmt.ColumnText(1),
		SubjectID:  stmt.ColumnText(2),
		AnalyzerID: stmt.ColumnText(3),
		Scores: types.ScoreSet{
			Overall:       stmt.ColumnFloat(4),
			Gaze:          stmt.ColumnFloat(5),
			Tone:          stmt.ColumnFloat(6),
			Contradiction: stmt.ColumnFloat(7),
		},
		Confidence:     stmt.ColumnFloat(8),
		Timestamp:      time.UnixMilli(stmt.ColumnInt64(9)),
		SourceArtifact: stmt.ColumnText(10),
	}
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
