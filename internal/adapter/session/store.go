package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/ports"
)

const keyPrefix = "session:"

// Store keeps sessions as JSON documents in a ports.Cache, keyed by session id.
// Entries expire after ttl so abandoned conversations do not accumulate.
type Store struct {
	cache ports.Cache
	ttl   time.Duration
}

func NewStore(cache ports.Cache, ttl time.Duration) *Store {
	return &Store{cache: cache, ttl: ttl}
}

func (s *Store) Load(ctx context.Context, sessionID string) (domain.Session, error) {
	raw, err := s.cache.Get(ctx, key(sessionID))
	if err != nil {
		if errors.Is(err, ports.ErrCacheMiss) {
			return domain.Session{}, ports.ErrSessionNotFound
		}
		return domain.Session{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return domain.Session{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	sess.ID = sessionID
	return sess, nil
}

func (s *Store) Save(ctx context.Context, sess domain.Session) error {
	if sess.ID == "" {
		return errors.New("save session: empty session id")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := s.cache.Set(ctx, key(sess.ID), string(data), s.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.cache.Delete(ctx, key(sessionID)); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

var _ ports.SessionStore = (*Store)(nil)
