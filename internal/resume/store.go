// Package resume persists cold-start state: the last-viewed position and
// the set of seen item keys, per profile.
package resume

import (
	"context"
	"database/sql"
	"time"

	"reelfeed/pkg/types"
)

type Store struct {
	DB  *sql.DB
	TTL time.Duration // resume records older than this are discarded

	SeenMax int // retained seen keys per profile; oldest pruned first
}

func NewStore(db *sql.DB, ttl time.Duration, seenMax int) *Store {
	return &Store{DB: db, TTL: ttl, SeenMax: seenMax}
}

// EnsureSchema creates the two tables. DDL is portable across the sqlite
// and postgres drivers.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS resume_state (
			profile_id TEXT PRIMARY KEY,
			item_id    TEXT NOT NULL,
			idx        INTEGER NOT NULL,
			page       INTEGER NOT NULL,
			updated_ms BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS seen_keys (
			profile_id TEXT NOT NULL,
			item_key   TEXT NOT NULL,
			seen_ms    BIGINT NOT NULL,
			PRIMARY KEY (profile_id, item_key)
		)`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// SaveResume upserts the resume record for a profile.
func (s *Store) SaveResume(ctx context.Context, profileID string, rec types.ResumeRecord) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO resume_state (profile_id, item_id, idx, page, updated_ms)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (profile_id) DO UPDATE
SET item_id=EXCLUDED.item_id, idx=EXCLUDED.idx, page=EXCLUDED.page, updated_ms=EXCLUDED.updated_ms`,
		profileID, rec.ItemID, rec.Index, rec.Page, rec.TimestampMillis)
	return err
}

// GetResume returns the stored record when present and within TTL. Stale
// records are deleted and reported as absent.
func (s *Store) GetResume(ctx context.Context, profileID string) (types.ResumeRecord, bool, error) {
	var rec types.ResumeRecord
	err := s.DB.QueryRowContext(ctx, `
SELECT item_id, idx, page, updated_ms FROM resume_state WHERE profile_id=$1`,
		profileID).Scan(&rec.ItemID, &rec.Index, &rec.Page, &rec.TimestampMillis)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.ResumeRecord{}, false, nil
		}
		return types.ResumeRecord{}, false, err
	}
	if s.TTL > 0 {
		age := time.Since(time.UnixMilli(rec.TimestampMillis))
		if age > s.TTL {
			_, _ = s.DB.ExecContext(ctx, `DELETE FROM resume_state WHERE profile_id=$1`, profileID)
			return types.ResumeRecord{}, false, nil
		}
	}
	return rec, true, nil
}

// ClearResume drops the record, e.g. after an explicit reset.
func (s *Store) ClearResume(ctx context.Context, profileID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM resume_state WHERE profile_id=$1`, profileID)
	return err
}

// MarkSeen records item keys as shown, then prunes oldest entries past the
// retention cap.
func (s *Store) MarkSeen(ctx context.Context, profileID string, keys ...string) error {
	nowMs := time.Now().UnixMilli()
	for _, k := range keys {
		if _, err := s.DB.ExecContext(ctx, `
INSERT INTO seen_keys (profile_id, item_key, seen_ms) VALUES ($1,$2,$3)
ON CONFLICT (profile_id, item_key) DO UPDATE SET seen_ms=EXCLUDED.seen_ms`,
			profileID, k, nowMs); err != nil {
			return err
		}
	}
	return s.pruneSeen(ctx, profileID)
}

func (s *Store) pruneSeen(ctx context.Context, profileID string) error {
	if s.SeenMax <= 0 {
		return nil
	}
	_, err := s.DB.ExecContext(ctx, `
DELETE FROM seen_keys
WHERE profile_id=$1 AND item_key NOT IN (
  SELECT item_key FROM seen_keys WHERE profile_id=$1
  ORDER BY seen_ms DESC LIMIT $2
)`, profileID, s.SeenMax)
	return err
}

// SeenKeys loads the full seen set for ranking.
func (s *Store) SeenKeys(ctx context.Context, profileID string) (map[string]bool, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT item_key FROM seen_keys WHERE profile_id=$1`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out[k] = true
	}
	return out, rows.Err()
}

// ResetSeen clears the seen set for a profile.
func (s *Store) ResetSeen(ctx context.Context, profileID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM seen_keys WHERE profile_id=$1`, profileID)
	return err
}
