package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"conference-central/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entities (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	partition_key TEXT NOT NULL,
	row_key       TEXT NOT NULL,
	kind          TEXT NOT NULL,
	body          BLOB NOT NULL,
	UNIQUE (partition_key, row_key)
);
CREATE INDEX IF NOT EXISTS entities_kind ON entities (kind, id);
`

// SQLiteStore keeps the same rows as TablesStore in a single SQLite table.
// One connection is used, so transactions are serialized by the database.
type SQLiteStore struct {
	db        *sql.DB
	maxGroups int
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, maxGroups: MaxTransactionGroups}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getRow(ctx context.Context, q querier, pk, rk string) ([]byte, error) {
	var body []byte
	err := q.QueryRowContext(ctx, `SELECT body FROM entities WHERE partition_key = ? AND row_key = ?`, pk, rk).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", pk, rk, err)
	}
	return body, nil
}

func putRow(ctx context.Context, q querier, kind string, payload []byte) error {
	var ent entity
	if err := json.Unmarshal(payload, &ent); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `
INSERT INTO entities (partition_key, row_key, kind, body) VALUES (?, ?, ?, ?)
ON CONFLICT (partition_key, row_key) DO UPDATE SET body = excluded.body
`, ent.PartitionKey, ent.RowKey, kind, payload)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", ent.PartitionKey, ent.RowKey, err)
	}
	return nil
}

func (s *SQLiteStore) listRows(ctx context.Context, query string, args ...any) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	data, err := getRow(ctx, s.db, userID, profileRowKey)
	if err != nil || data == nil {
		return nil, err
	}
	p, err := decodeProfile(data)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) PutProfile(ctx context.Context, p domain.Profile) error {
	payload, err := encodeProfile(p)
	if err != nil {
		return err
	}
	return putRow(ctx, s.db, domain.KindProfile, payload)
}

func (s *SQLiteStore) GetConference(ctx context.Context, key domain.ConferenceKey) (*domain.Conference, error) {
	data, err := getRow(ctx, s.db, key.Group(), conferenceRowKey(key.ID))
	if err != nil || data == nil {
		return nil, err
	}
	c, err := decodeConference(data)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) GetConferences(ctx context.Context, keys []domain.ConferenceKey) ([]domain.Conference, error) {
	out := make([]domain.Conference, 0, len(keys))
	for _, k := range keys {
		c, err := s.GetConference(ctx, k)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *SQLiteStore) PutConference(ctx context.Context, c domain.Conference) error {
	payload, err := encodeConference(c)
	if err != nil {
		return err
	}
	return putRow(ctx, s.db, domain.KindConference, payload)
}

func (s *SQLiteStore) conferencesWhere(ctx context.Context, keep func(domain.Conference) bool, query string, args ...any) ([]domain.Conference, error) {
	rows, err := s.listRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Conference, 0, len(rows))
	for _, row := range rows {
		c, err := decodeConference(row)
		if err != nil {
			return nil, err
		}
		if keep(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

const allConferences = `SELECT body FROM entities WHERE kind = 'Conference' ORDER BY id`

func (s *SQLiteStore) ConferencesByOrganizer(ctx context.Context, userID string) ([]domain.Conference, error) {
	return s.conferencesWhere(ctx, func(domain.Conference) bool { return true },
		`SELECT body FROM entities WHERE kind = 'Conference' AND partition_key = ? ORDER BY id`, userID)
}

func (s *SQLiteStore) QueryConferences(ctx context.Context, plan domain.QueryPlan) ([]domain.Conference, error) {
	confs, err := s.conferencesWhere(ctx, func(domain.Conference) bool { return true }, allConferences)
	if err != nil {
		return nil, err
	}
	return plan.Apply(confs), nil
}

func (s *SQLiteStore) ConferencesWithSeats(ctx context.Context, min, max int) ([]domain.Conference, error) {
	return s.conferencesWhere(ctx, func(c domain.Conference) bool {
		return c.SeatsAvailable >= min && c.SeatsAvailable <= max
	}, allConferences)
}

func (s *SQLiteStore) GetSession(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	data, err := getRow(ctx, s.db, key.Group(), sessionRowKey(key))
	if err != nil || data == nil {
		return nil, err
	}
	sess, err := decodeSession(data)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SQLiteStore) GetSessions(ctx context.Context, keys []domain.SessionKey) ([]domain.Session, error) {
	out := make([]domain.Session, 0, len(keys))
	for _, k := range keys {
		sess, err := s.GetSession(ctx, k)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (s *SQLiteStore) PutSession(ctx context.Context, sess domain.Session) error {
	payload, err := encodeSession(sess)
	if err != nil {
		return err
	}
	return putRow(ctx, s.db, domain.KindSession, payload)
}

func (s *SQLiteStore) sessionsWhere(ctx context.Context, keep func(domain.Session) bool, query string, args ...any) ([]domain.Session, error) {
	rows, err := s.listRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		sess, err := decodeSession(row)
		if err != nil {
			return nil, err
		}
		if keep(sess) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *SQLiteStore) SessionsByConference(ctx context.Context, key domain.ConferenceKey, filter domain.SessionFilter) ([]domain.Session, error) {
	prefix := sessionRowPrefix(key.ID)
	return s.sessionsWhere(ctx, filter.Match,
		`SELECT body FROM entities WHERE kind = 'Session' AND partition_key = ? AND substr(row_key, 1, ?) = ? ORDER BY id`,
		key.Group(), len(prefix), prefix)
}

func (s *SQLiteStore) Sessions(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	return s.sessionsWhere(ctx, filter.Match, `SELECT body FROM entities WHERE kind = 'Session' ORDER BY id`)
}

func (s *SQLiteStore) AllocateIDs(ctx context.Context, n int) ([]string, error) {
	return allocateIDs(n), nil
}

// RunInTransaction runs fn inside an immediate transaction. Writes are staged
// and applied before commit once the group limit is checked.
func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(tx domain.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	tx := &sqliteTx{tx: sqlTx, profiles: map[string]domain.Profile{}, conferences: map[domain.ConferenceKey]domain.Conference{}}
	if err := fn(tx); err != nil {
		return err
	}
	groups := map[string]struct{}{}
	for id := range tx.profiles {
		groups[id] = struct{}{}
	}
	for k := range tx.conferences {
		groups[k.Group()] = struct{}{}
	}
	if len(groups) > s.maxGroups {
		return domain.ErrTransactionScopeExceeded
	}
	for _, p := range tx.profiles {
		payload, err := encodeProfile(p)
		if err != nil {
			return err
		}
		if err := putRow(ctx, sqlTx, domain.KindProfile, payload); err != nil {
			return err
		}
	}
	for _, c := range tx.conferences {
		payload, err := encodeConference(c)
		if err != nil {
			return err
		}
		if err := putRow(ctx, sqlTx, domain.KindConference, payload); err != nil {
			return err
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx          *sql.Tx
	profiles    map[string]domain.Profile
	conferences map[domain.ConferenceKey]domain.Conference
}

func (t *sqliteTx) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if p, ok := t.profiles[userID]; ok {
		c := p.Clone()
		return &c, nil
	}
	data, err := getRow(ctx, t.tx, userID, profileRowKey)
	if err != nil || data == nil {
		return nil, err
	}
	p, err := decodeProfile(data)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *sqliteTx) GetConference(ctx context.Context, key domain.ConferenceKey) (*domain.Conference, error) {
	if c, ok := t.conferences[key]; ok {
		cc := c.Clone()
		return &cc, nil
	}
	data, err := getRow(ctx, t.tx, key.Group(), conferenceRowKey(key.ID))
	if err != nil || data == nil {
		return nil, err
	}
	c, err := decodeConference(data)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *sqliteTx) PutProfile(p domain.Profile) { t.profiles[p.UserID] = p.Clone() }

func (t *sqliteTx) PutConference(c domain.Conference) { t.conferences[c.Key] = c.Clone() }
