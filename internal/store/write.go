package store

import (
	"context"
	"fmt"

	"github.com/roach88/cartsync/internal/mutation"
)

// RecordRequest inserts an issued mutation request.
// Uses ON CONFLICT DO NOTHING for idempotency - re-recording the same
// (session, issuedAt) is silently ignored.
func (s *Store) RecordRequest(ctx context.Context, session string, req mutation.Request) error {
	payload := req.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	payloadJSON, err := marshalJSON(payload)
	if err != nil {
		return fmt.Errorf("record request: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mutations (session, issued_at, kind, target_id, method, url, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session, issued_at) DO NOTHING
	`,
		session,
		req.IssuedAt,
		req.Kind.String(),
		req.TargetID,
		req.Method,
		req.URL,
		payloadJSON,
	)
	if err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	return nil
}

// RecordOutcome inserts the outcome of a previously recorded request.
// Each request has at most one outcome; later writes are ignored.
//
// Note: the request must already be recorded (foreign key constraint).
func (s *Store) RecordOutcome(ctx context.Context, session string, o mutation.Outcome) error {
	body := "{}"
	if o.Payload != nil {
		encoded, err := marshalJSON(o.Payload)
		if err != nil {
			return fmt.Errorf("record outcome: %w", err)
		}
		body = encoded
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (session, issued_at, result, status, reason, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session, issued_at) DO NOTHING
	`,
		session,
		o.Request.IssuedAt,
		o.Result(),
		o.Status,
		o.Reason,
		body,
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// MarkStale records that the response to (session, issuedAt) was discarded
// for scope because a newer response had already been applied.
func (s *Store) MarkStale(ctx context.Context, session string, issuedAt int64, scope string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stale_scopes (session, issued_at, scope)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, session, issuedAt, scope)
	if err != nil {
		return fmt.Errorf("mark stale: %w", err)
	}
	return nil
}

// SetPreference upserts a preference value.
func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// Session binds the store to one session id. It is the journal handed to
// the dispatcher and reconciler.
type Session struct {
	store *Store
	id    string
}

// Session returns a journal writer for session id.
func (s *Store) Session(id string) *Session {
	return &Session{store: s, id: id}
}

// ID returns the session id.
func (j *Session) ID() string {
	return j.id
}

// RecordRequest records req under this session.
func (j *Session) RecordRequest(ctx context.Context, req mutation.Request) error {
	return j.store.RecordRequest(ctx, j.id, req)
}

// RecordOutcome records o under this session.
func (j *Session) RecordOutcome(ctx context.Context, o mutation.Outcome) error {
	return j.store.RecordOutcome(ctx, j.id, o)
}

// MarkStale records a discarded response under this session.
func (j *Session) MarkStale(ctx context.Context, issuedAt int64, scope string) error {
	return j.store.MarkStale(ctx, j.id, issuedAt, scope)
}
