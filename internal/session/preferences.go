package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"fieldmission/internal/kv"
	"fieldmission/internal/logging"
	"fieldmission/pkg/domain"
)

// Preference keys.
const (
	OnboardingKey      = "onboardingCompleted"
	LanguageKey        = "language"
	RememberedUsersKey = "rememberedUsers"
)

// DefaultLanguage is used until the agent picks one.
const DefaultLanguage = "en"

// MaxRememberedUsers bounds the remembered login list.
const MaxRememberedUsers = 5

// Preferences holds device-level settings. Reads fail soft to defaults.
type Preferences struct {
	kv     kv.Store
	logger *slog.Logger
}

// NewPreferences returns preferences over store.
func NewPreferences(store kv.Store, logger *slog.Logger) *Preferences {
	return &Preferences{kv: store, logger: logging.OrDiscard(logger)}
}

func (p *Preferences) get(ctx context.Context, key string) (string, bool) {
	raw, ok, err := p.kv.Get(ctx, key)
	if err != nil {
		p.logger.Error("load preference", "key", key, "error", err)
		return "", false
	}
	return string(raw), ok
}

func (p *Preferences) set(ctx context.Context, key string, value []byte) error {
	if err := p.kv.Set(ctx, key, value); err != nil {
		return &domain.StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// OnboardingCompleted reports whether the onboarding flow was finished.
func (p *Preferences) OnboardingCompleted(ctx context.Context) bool {
	v, ok := p.get(ctx, OnboardingKey)
	return ok && v == "true"
}

// CompleteOnboarding records the onboarding as finished.
func (p *Preferences) CompleteOnboarding(ctx context.Context) error {
	return p.set(ctx, OnboardingKey, []byte("true"))
}

// ResetOnboarding forgets the onboarding flag.
func (p *Preferences) ResetOnboarding(ctx context.Context) error {
	if err := p.kv.Remove(ctx, OnboardingKey); err != nil {
		return &domain.StorageError{Op: "remove", Key: OnboardingKey, Err: err}
	}
	return nil
}

// Language returns the stored UI language or DefaultLanguage.
func (p *Preferences) Language(ctx context.Context) string {
	v, ok := p.get(ctx, LanguageKey)
	if !ok || strings.TrimSpace(v) == "" {
		return DefaultLanguage
	}
	return v
}

// SetLanguage stores the UI language code.
func (p *Preferences) SetLanguage(ctx context.Context, lang string) error {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = DefaultLanguage
	}
	return p.set(ctx, LanguageKey, []byte(lang))
}

// RememberedUsers returns remembered logins, most recent first.
func (p *Preferences) RememberedUsers(ctx context.Context) []string {
	v, ok := p.get(ctx, RememberedUsersKey)
	if !ok {
		return nil
	}
	var logins []string
	if err := json.Unmarshal([]byte(v), &logins); err != nil {
		p.logger.Error("decode remembered users", "error", err)
		return nil
	}
	return logins
}

// Remember moves login to the front of the remembered list.
func (p *Preferences) Remember(ctx context.Context, login string) error {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil
	}
	logins := []string{login}
	for _, l := range p.RememberedUsers(ctx) {
		if l != login && len(logins) < MaxRememberedUsers {
			logins = append(logins, l)
		}
	}
	return p.writeUsers(ctx, logins)
}

// Forget removes login from the remembered list.
func (p *Preferences) Forget(ctx context.Context, login string) error {
	current := p.RememberedUsers(ctx)
	logins := make([]string, 0, len(current))
	for _, l := range current {
		if l != login {
			logins = append(logins, l)
		}
	}
	if len(logins) == len(current) {
		return nil
	}
	return p.writeUsers(ctx, logins)
}

func (p *Preferences) writeUsers(ctx context.Context, logins []string) error {
	raw, err := json.Marshal(logins)
	if err != nil {
		return err
	}
	return p.set(ctx, RememberedUsersKey, raw)
}
