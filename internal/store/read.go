package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Entry is one journal row: a request, its outcome if any, and the scopes
// that discarded it.
type Entry struct {
	Session  string            `json:"session"`
	IssuedAt int64             `json:"issuedAt"`
	Kind     string            `json:"kind"`
	TargetID string            `json:"targetId,omitempty"`
	Method   string            `json:"method"`
	URL      string            `json:"url"`
	Payload  map[string]string `json:"payload"`
	Result   string            `json:"result"` // "success", "failure" or "pending"
	Status   int               `json:"status,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Body     string            `json:"body,omitempty"`
	Stale    []string          `json:"stale,omitempty"`
}

// Journal returns recorded requests ordered by issued_at.
// An empty session returns every session. limit <= 0 means no limit; a
// positive limit keeps the most recent entries.
//
// Returns an empty slice (not nil) if nothing was recorded.
func (s *Store) Journal(ctx context.Context, session string, limit int) ([]Entry, error) {
	query := `
		SELECT m.session, m.issued_at, m.kind, m.target_id, m.method, m.url, m.payload,
		       COALESCE(o.result, 'pending'), COALESCE(o.status, 0),
		       COALESCE(o.reason, ''), COALESCE(o.body, ''),
		       COALESCE((SELECT GROUP_CONCAT(st.scope, ',') FROM stale_scopes st
		           WHERE st.session = m.session AND st.issued_at = m.issued_at), '')
		FROM mutations m
		LEFT JOIN outcomes o ON o.session = m.session AND o.issued_at = m.issued_at
		WHERE (? = '' OR m.session = ?)
		ORDER BY m.issued_at DESC, m.session COLLATE BINARY DESC
	`
	args := []any{session, session}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var payload, stale string
		if err := rows.Scan(
			&e.Session, &e.IssuedAt, &e.Kind, &e.TargetID, &e.Method, &e.URL, &payload,
			&e.Result, &e.Status, &e.Reason, &e.Body, &stale,
		); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		if e.Payload, err = unmarshalPayload(payload); err != nil {
			return nil, err
		}
		if stale != "" {
			e.Stale = strings.Split(stale, ",")
			sort.Strings(e.Stale)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}

	// Newest-first for LIMIT, then flip to ascending issued_at.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// MaxIssuedAt returns the highest recorded issued_at, or 0 for an empty
// journal.
func (s *Store) MaxIssuedAt(ctx context.Context) (int64, error) {
	var maxSeq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(issued_at) FROM mutations`).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("query max issued_at: %w", err)
	}
	return maxSeq.Int64, nil
}

// GetPreference returns the value for key, or ErrNotFound.
func (s *Store) GetPreference(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("preference %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, nil
}
