package auth

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "sync"

    "golang.org/x/crypto/bcrypt"

    "github.com/elpatron68/sheetdash/internal/config"
)

type UserStore interface {
    Len() int
    CheckPassword(username, plain string) bool
}

// InMemoryUserStore holds operator accounts for the optional Basic Auth gate.
// These are distinct from the dashboard identity (an email) kept in the session.
type InMemoryUserStore struct {
    mu     sync.RWMutex
    hashes map[string][]byte
}

func NewInMemoryUserStore() *InMemoryUserStore {
    return &InMemoryUserStore{hashes: make(map[string][]byte)}
}

// NewStoreFromConfig seeds a store from configured bcrypt hashes.
func NewStoreFromConfig(users []config.UserConfig) (*InMemoryUserStore, error) {
    s := NewInMemoryUserStore()
    for _, u := range users {
        if err := s.AddUserHash(u.Username, []byte(u.PasswordHash)); err != nil {
            return nil, err
        }
    }
    return s, nil
}

func (s *InMemoryUserStore) Len() int {
    s.mu.RLock(); defer s.mu.RUnlock()
    return len(s.hashes)
}

func (s *InMemoryUserStore) AddUserPlain(username, password string) error {
    if username == "" {
        return errors.New("username empty")
    }
    if password == "" {
        return errors.New("password empty")
    }
    hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
    if err != nil {
        return err
    }
    s.mu.Lock(); defer s.mu.Unlock()
    s.hashes[username] = hash
    return nil
}

func (s *InMemoryUserStore) AddUserHash(username string, bcryptHash []byte) error {
    if username == "" {
        return errors.New("username empty")
    }
    if len(bcryptHash) == 0 {
        return errors.New("hash empty")
    }
    s.mu.Lock(); defer s.mu.Unlock()
    s.hashes[username] = bcryptHash
    return nil
}

func (s *InMemoryUserStore) CheckPassword(username, plain string) bool {
    s.mu.RLock()
    hash, ok := s.hashes[username]
    s.mu.RUnlock()
    if !ok {
        return false
    }
    return bcrypt.CompareHashAndPassword(hash, []byte(plain)) == nil
}

// BasicAuthMiddleware gates every path except the exempt ones. With an empty
// store the gate is disabled and requests pass through untouched.
func BasicAuthMiddleware(store UserStore, realm string, exempt []string, next http.Handler) http.Handler {
    if realm == "" {
        realm = "Restricted"
    }
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if store == nil || store.Len() == 0 || isExempt(r.URL.Path, exempt) {
            next.ServeHTTP(w, r)
            return
        }
        username, password, ok := r.BasicAuth()
        if !ok || !store.CheckPassword(username, password) {
            unauthorized(w, realm)
            return
        }
        ctx := context.WithValue(r.Context(), userKey, username)
        next.ServeHTTP(w, r.WithContext(ctx))
    })
}

func isExempt(path string, exempt []string) bool {
    for _, p := range exempt {
        if strings.HasSuffix(p, "/") && strings.HasPrefix(path, p) {
            return true
        }
        if path == p {
            return true
        }
    }
    return false
}

func unauthorized(w http.ResponseWriter, realm string) {
    w.Header().Set("WWW-Authenticate", "Basic realm=\""+realm+"\"")
    http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

type contextKey string

const userKey contextKey = "auth.user"

// UsernameFromRequest returns the Basic Auth operator, if the gate is active.
func UsernameFromRequest(r *http.Request) (string, bool) {
    v := r.Context().Value(userKey)
    s, ok := v.(string)
    return s, ok
}
