// Package auth is an in-memory email/password identity provider with
// expiring session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/padmon/pkg/metrics"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultSessionTTL = 24 * time.Hour
	minPasswordLen    = 6
	maxPasswordLen    = 72 // bcrypt input limit
	watchBuffer       = 16
)

// Sentinel errors. Their messages are shown to users as is.
var (
	ErrInvalidEmail       = errors.New("the email address is badly formatted")
	ErrWeakPassword       = errors.New("password should be at least 6 characters")
	ErrEmailInUse         = errors.New("the email address is already in use")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("session not found or expired")
)

// EventType describes a session change.
type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
	EventExpired   EventType = "expired"
)

// Session is an authenticated user session.
type Session struct {
	Token       string    `json:"token"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// SessionEvent is emitted to watchers whenever a session starts or ends.
type SessionEvent struct {
	Type    EventType `json:"type"`
	Session Session   `json:"session"`
}

type user struct {
	id          string
	email       string
	displayName string
	hash        []byte
}

// Provider keeps users and sessions in memory.
type Provider struct {
	mu       sync.RWMutex
	users    map[string]*user
	sessions map[string]Session

	ttl   time.Duration
	cost  int
	clock func() time.Time

	watchMu  sync.Mutex
	watchers map[chan SessionEvent]struct{}
}

// NewProvider creates an empty provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		users:    make(map[string]*user),
		sessions: make(map[string]Session),
		ttl:      defaultSessionTTL,
		cost:     bcrypt.DefaultCost,
		clock:    time.Now,
		watchers: make(map[chan SessionEvent]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SignUp registers a user and signs them in.
func (p *Provider) SignUp(_ context.Context, email, password, displayName string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		metrics.RecordAuthEvent("signup", false)
		return Session{}, err
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		metrics.RecordAuthEvent("signup", false)
		return Session{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		metrics.RecordAuthEvent("signup", false)
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	if _, ok := p.users[email]; ok {
		p.mu.Unlock()
		metrics.RecordAuthEvent("signup", false)
		return Session{}, ErrEmailInUse
	}
	u := &user{id: uuid.NewString(), email: email, displayName: strings.TrimSpace(displayName), hash: hash}
	p.users[email] = u
	s := p.openLocked(u)
	p.mu.Unlock()

	metrics.RecordAuthEvent("signup", true)
	p.broadcast(SessionEvent{Type: EventSignedIn, Session: s})
	return s, nil
}

// SignIn checks the credentials and opens a session.
func (p *Provider) SignIn(_ context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		metrics.RecordAuthEvent("signin", false)
		return Session{}, ErrInvalidCredentials
	}

	p.mu.RLock()
	u, ok := p.users[email]
	p.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(password)) != nil {
		metrics.RecordAuthEvent("signin", false)
		return Session{}, ErrInvalidCredentials
	}

	p.mu.Lock()
	s := p.openLocked(u)
	p.mu.Unlock()

	metrics.RecordAuthEvent("signin", true)
	p.broadcast(SessionEvent{Type: EventSignedIn, Session: s})
	return s, nil
}

// SignOut ends the session identified by token.
func (p *Provider) SignOut(_ context.Context, token string) error {
	p.mu.Lock()
	s, ok := p.sessions[token]
	delete(p.sessions, token)
	p.mu.Unlock()
	if !ok {
		metrics.RecordAuthEvent("signout", false)
		return ErrSessionNotFound
	}
	metrics.RecordAuthEvent("signout", true)
	p.broadcast(SessionEvent{Type: EventSignedOut, Session: s})
	return nil
}

// Current returns the live session for token. Expired sessions are
// removed and reported to watchers.
func (p *Provider) Current(_ context.Context, token string) (Session, error) {
	p.mu.RLock()
	s, ok := p.sessions[token]
	p.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if p.clock().Before(s.ExpiresAt) {
		return s, nil
	}

	p.mu.Lock()
	_, still := p.sessions[token]
	delete(p.sessions, token)
	p.mu.Unlock()
	if still {
		metrics.RecordAuthEvent("expire", true)
		p.broadcast(SessionEvent{Type: EventExpired, Session: s})
	}
	return Session{}, ErrSessionNotFound
}

// Sessions returns the number of open sessions.
func (p *Provider) Sessions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// Watch streams session changes until ctx is done. A watcher that falls
// behind by more than its buffer misses events.
func (p *Provider) Watch(ctx context.Context) <-chan SessionEvent {
	ch := make(chan SessionEvent, watchBuffer)
	p.watchMu.Lock()
	p.watchers[ch] = struct{}{}
	p.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		p.watchMu.Lock()
		delete(p.watchers, ch)
		close(ch)
		p.watchMu.Unlock()
	}()
	return ch
}

func (p *Provider) broadcast(ev SessionEvent) {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()
	for ch := range p.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// openLocked creates a session for u. Callers hold p.mu.
func (p *Provider) openLocked(u *user) Session {
	now := p.clock()
	s := Session{
		Token:       uuid.NewString(),
		UserID:      u.id,
		Email:       u.email,
		DisplayName: u.displayName,
		CreatedAt:   now,
		ExpiresAt:   now.Add(p.ttl),
	}
	p.sessions[s.Token] = s
	return s
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
