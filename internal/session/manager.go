package session

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	applog "github.com/elpatron68/sheetdash/internal/log"
)

var ErrInvalidEmail = errors.New("please enter a valid email address")

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool { return emailPattern.MatchString(s) }

// Scoper is implemented by stores that can keep a separate identity per
// Basic Auth operator.
type Scoper interface {
	Scope(operator string) Store
}

// Manager owns the current identity. With the auth gate on, each operator
// has its own identity; the empty operator is the instance-wide one. The
// in-memory value is authoritative for reads and the store is written
// through on login and logout.
type Manager struct {
	mu      sync.RWMutex
	store   Store
	stores  map[string]Store
	current map[string]string
}

func NewManager(store Store) *Manager {
	if store == nil {
		store = &MemoryStore{}
	}
	return &Manager{
		store:   store,
		stores:  map[string]Store{"": store},
		current: map[string]string{},
	}
}

func (m *Manager) storeFor(operator string) Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stores[operator]; ok {
		return s
	}
	var s Store = &MemoryStore{}
	if sc, ok := m.store.(Scoper); ok {
		s = sc.Scope(operator)
	}
	m.stores[operator] = s
	return s
}

func (m *Manager) load(ctx context.Context, operator string) (string, error) {
	email, err := m.storeFor(operator).Get(ctx)
	if err != nil {
		return "", err
	}
	if email != "" && !ValidEmail(email) {
		applog.Warnf("session: ignoring invalid stored identity %q", email)
		email = ""
	}
	m.mu.Lock()
	m.current[operator] = email
	m.mu.Unlock()
	return email, nil
}

// Init loads any persisted instance-wide identity. An invalid stored value
// is ignored.
func (m *Manager) Init(ctx context.Context) error {
	_, err := m.load(ctx, "")
	return err
}

// Current returns the instance-wide email, or "" when nobody is signed in.
func (m *Manager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current[""]
}

// CurrentFor returns the identity of operator, loading it from the store on
// first use. A store error reads as signed out and is retried next time.
func (m *Manager) CurrentFor(ctx context.Context, operator string) string {
	m.mu.RLock()
	email, ok := m.current[operator]
	m.mu.RUnlock()
	if ok {
		return email
	}
	email, err := m.load(ctx, operator)
	if err != nil {
		applog.Warnf("session: load identity for %q: %v", operator, err)
		return ""
	}
	return email
}

func (m *Manager) Login(ctx context.Context, email string) error {
	return m.LoginAs(ctx, "", email)
}

// LoginAs sets the identity of operator.
func (m *Manager) LoginAs(ctx context.Context, operator, email string) error {
	email = strings.TrimSpace(email)
	if !ValidEmail(email) {
		return ErrInvalidEmail
	}
	if err := m.storeFor(operator).Set(ctx, email); err != nil {
		return err
	}
	m.mu.Lock()
	m.current[operator] = email
	m.mu.Unlock()
	if operator == "" {
		applog.Infof("session: signed in as %s", email)
	} else {
		applog.Infof("session: %s signed in as %s", operator, email)
	}
	return nil
}

func (m *Manager) Logout(ctx context.Context) error {
	return m.LogoutAs(ctx, "")
}

// LogoutAs clears the identity of operator.
func (m *Manager) LogoutAs(ctx context.Context, operator string) error {
	if err := m.storeFor(operator).Clear(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.current[operator] = ""
	m.mu.Unlock()
	if operator == "" {
		applog.Infof("session: signed out")
	} else {
		applog.Infof("session: %s signed out", operator)
	}
	return nil
}
