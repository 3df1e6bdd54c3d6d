package devapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fieldmission/pkg/domain"
)

type claims struct {
	Login string `json:"login"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (t *tokenIssuer) issue(user domain.User) (string, error) {
	now := t.now()
	c := claims{
		Login: user.Login,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    "fieldmission-devapi",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *tokenIssuer) verify(token string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return c, nil
}

type ctxKey struct{}

type principal struct {
	user  domain.User
	token string
}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(principal)
	return p, ok
}

func bearer(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", errors.New("invalid authorization header format")
	}
	return token, nil
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearer(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		c, err := s.tokens.verify(token)
		if err != nil {
			writeError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		_, revoked := s.revoked[token]
		acct, known := s.accounts[c.Login]
		s.mu.Unlock()
		if revoked || !known {
			writeError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, principal{user: acct.user, token: token})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userDocument renders a user the way the remote API does, with a populated
// company reference.
func userDocument(u domain.User) map[string]any {
	return map[string]any{
		"_id":            u.ID,
		"first_name":     u.FirstName,
		"last_name":      u.LastName,
		"login":          u.Login,
		"role":           u.Role,
		"creation_dt":    u.CreatedAt,
		"_company_owner": map[string]string{"_id": string(u.CompanyOwner)},
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Login == "" || req.Password == "" {
		writeError(w, "Login and password are required", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	acct, ok := s.accounts[req.Login]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(req.Password)) != nil {
		s.logger.Info("devapi login rejected", "login", req.Login)
		writeError(w, "Invalid login or password", http.StatusUnauthorized)
		return
	}
	token, err := s.tokens.issue(acct.user)
	if err != nil {
		writeError(w, "Could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  map[string]any{"user": userDocument(acct.user), "token": token},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID != p.user.ID {
		writeError(w, "Cannot log out another user", http.StatusForbidden)
		return
	}
	s.mu.Lock()
	s.revoked[p.token] = struct{}{}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
