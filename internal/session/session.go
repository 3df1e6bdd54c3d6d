// Package session persists the authenticated user and the device preferences
// in the shared key-value store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fieldmission/internal/kv"
	"fieldmission/internal/logging"
	"fieldmission/pkg/domain"
)

// AuthKey holds the serialized session.
const AuthKey = "authData"

// Store reads and writes the session record.
type Store struct {
	kv     kv.Store
	logger *slog.Logger
}

// NewStore returns a session store over store.
func NewStore(store kv.Store, logger *slog.Logger) *Store {
	return &Store{kv: store, logger: logging.OrDiscard(logger)}
}

// Save replaces the stored session.
func (s *Store) Save(ctx context.Context, sess domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.kv.Set(ctx, AuthKey, raw); err != nil {
		return &domain.StorageError{Op: "set", Key: AuthKey, Err: err}
	}
	return nil
}

// Load returns the stored session. Unreadable records are logged and reported
// as absent.
func (s *Store) Load(ctx context.Context) (domain.Session, bool) {
	raw, ok, err := s.kv.Get(ctx, AuthKey)
	if err != nil {
		s.logger.Error("load session", "error", err)
		return domain.Session{}, false
	}
	if !ok {
		return domain.Session{}, false
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		s.logger.Error("decode session", "error", err)
		return domain.Session{}, false
	}
	return sess, sess.Token != ""
}

// Require returns the stored session or domain.ErrNotAuthenticated.
func (s *Store) Require(ctx context.Context) (domain.Session, error) {
	sess, ok := s.Load(ctx)
	if !ok {
		return domain.Session{}, domain.ErrNotAuthenticated
	}
	return sess, nil
}

// Token returns the bearer token, empty when signed out.
func (s *Store) Token(ctx context.Context) string {
	sess, _ := s.Load(ctx)
	return sess.Token
}

// Clear removes the session. Failures are logged only.
func (s *Store) Clear(ctx context.Context) {
	if err := s.kv.Remove(ctx, AuthKey); err != nil {
		s.logger.Error("clear session", "error", err)
	}
}

// Expired reports whether token carries an exp claim at or before now. The
// signature is not verified; the server remains the authority.
func Expired(token string, now time.Time) (bool, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return false, nil
	}
	return !now.Before(exp.Time), nil
}

// Expired reports whether the stored session token has expired. An absent
// session counts as expired; an opaque token does not.
func (s *Store) Expired(ctx context.Context, now time.Time) bool {
	sess, ok := s.Load(ctx)
	if !ok {
		return true
	}
	expired, err := Expired(sess.Token, now)
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenMalformed) {
			s.logger.Warn("inspect session token", "error", err)
		}
		return false
	}
	return expired
}
