// Package devapi is an in-memory stand-in for the remote mission API, used for
// local development and as the fake server in tests.
package devapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"fieldmission/internal/logging"
	"fieldmission/pkg/domain"
)

// Collections served by the query endpoints.
const (
	CollectionAsset   = "asset"
	CollectionDriver  = "driver"
	CollectionGeodata = "geodata"
	CollectionForm    = "form"
)

// Document is a stored record as the API returns it.
type Document = map[string]any

type account struct {
	user domain.User
	hash []byte
}

// Server holds the fake API state.
type Server struct {
	mu          sync.Mutex
	accounts    map[string]account
	collections map[string][]Document
	submissions []json.RawMessage
	revoked     map[string]struct{}
	failures    map[string][]int
	hits        map[string]int

	tokens     *tokenIssuer
	bcryptCost int
	logger     *slog.Logger
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
}

// Option configures a Server.
type Option func(*Server)

// WithSecret sets the HS256 signing secret.
func WithSecret(secret string) Option {
	return func(s *Server) { s.tokens.secret = []byte(secret) }
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.tokens.ttl = ttl
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option { return func(s *Server) { s.bcryptCost = cost } }

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = logging.OrDiscard(l) } }

// New returns an empty server.
func New(opts ...Option) *Server {
	s := &Server{
		accounts:    make(map[string]account),
		collections: make(map[string][]Document),
		revoked:     make(map[string]struct{}),
		failures:    make(map[string][]int),
		hits:        make(map[string]int),
		tokens:      &tokenIssuer{secret: []byte("fieldmission-dev-secret"), ttl: 12 * time.Hour, now: time.Now},
		bcryptCost:  bcrypt.DefaultCost,
		logger:      logging.Discard(),
		registry:    prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldmission_devapi",
		Name:      "requests_total",
		Help:      "Requests served by the development API.",
	}, []string{"route", "status"})
	s.registry.MustRegister(s.requests)
	return s
}

// AddUser registers an account with a bcrypt-hashed password.
func (s *Server) AddUser(login, password string, user domain.User) error {
	if login == "" || password == "" {
		return errors.New("login and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.Login = login
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[login] = account{user: user, hash: hash}
	return nil
}

// AddDocuments appends records to a query collection.
func (s *Server) AddDocuments(collection string, docs ...Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], docs...)
}

// Submissions returns the raw bodies received on /form_data/.
func (s *Server) Submissions() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]json.RawMessage, len(s.submissions))
	copy(out, s.submissions)
	return out
}

// FailNext makes the next request to path answer status without handling it.
func (s *Server) FailNext(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], status)
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Registry exposes the server metrics.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(s.injectFailures)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Head("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Post("/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/logout", s.handleLogout)
		r.Post("/{collection}/query", s.handleQuery)
		r.Post("/form_data/", s.handleFormData)
		r.Get("/form_data/", s.handleListFormData)
	})
	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.requests.WithLabelValues(route, fmt.Sprint(status)).Inc()
		s.logger.Debug("devapi request", "method", r.Method, "path", r.URL.Path, "status", status, "duration", time.Since(start))
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		var status int
		if queued := s.failures[r.URL.Path]; len(queued) > 0 {
			status = queued[0]
			s.failures[r.URL.Path] = queued[1:]
		}
		s.mu.Unlock()
		if status != 0 {
			writeError(w, "injected failure", status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}
