package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxAge bounds a session created without extended login.
	DefaultMaxAge = 5 * time.Minute
	// ExtendedMaxAge bounds a session created with extended login.
	ExtendedMaxAge = 60 * 24 * time.Hour
)

// MaxAge returns the lifetime selected by the extended-login flag.
func MaxAge(extended bool) time.Duration {
	if extended {
		return ExtendedMaxAge
	}
	return DefaultMaxAge
}

// State is the authentication state of a session at a point in time.
type State uint8

const (
	Unauthenticated State = iota
	ChallengePending
	Authenticated
	Expired
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case ChallengePending:
		return "challenge_pending"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// NewClientID returns a fresh installation identifier in the upper-case UUID form
// the service expects.
func NewClientID() string {
	return strings.ToUpper(uuid.NewString())
}

// LoginInfo is the group of fields a successful login writes into a session.
type LoginInfo struct {
	SessionID         string
	AccountInfo       map[string]any
	ServiceMap        map[string]any
	ChallengeRequired bool
	CreatedAt         time.Time
	ExtendedLogin     bool
}

// Snapshot is an immutable, independent copy of a session's login state.
type Snapshot struct {
	ClientID          string
	SessionID         string
	CreatedAt         time.Time
	ExtendedLogin     bool
	AccountInfo       map[string]any
	ServiceMap        map[string]any
	ChallengeRequired bool
}

// MaxAge returns the lifetime that applies to the snapshot.
func (s Snapshot) MaxAge() time.Duration {
	return MaxAge(s.ExtendedLogin)
}

// ExpiresAt returns the instant after which the snapshot is no longer valid.
// It is the zero time before the first login.
func (s Snapshot) ExpiresAt() time.Time {
	if s.SessionID == "" {
		return time.Time{}
	}
	return s.CreatedAt.Add(s.MaxAge())
}

// IsValidAt reports whether a session id is present and now is within max age.
func (s Snapshot) IsValidAt(now time.Time) bool {
	return s.SessionID != "" && now.Sub(s.CreatedAt) < s.MaxAge()
}

// State derives the authentication state at now.
func (s Snapshot) State(now time.Time) State {
	switch {
	case s.SessionID == "":
		return Unauthenticated
	case !s.IsValidAt(now):
		return Expired
	case s.ChallengeRequired:
		return ChallengePending
	default:
		return Authenticated
	}
}

// AccountIdentifier returns the login identifier the service echoed back in the
// account info, or "" when absent.
func (s Snapshot) AccountIdentifier() string {
	v, _ := s.AccountInfo["appleId"].(string)
	return v
}

// ServiceURL returns the url entry of a named service from the service map.
func (s Snapshot) ServiceURL(name string) (string, bool) {
	entry, ok := s.ServiceMap[name].(map[string]any)
	if !ok {
		return "", false
	}
	u, ok := entry["url"].(string)
	if !ok || u == "" {
		return "", false
	}
	return u, true
}

// Session is the mutable, shared login state of one client installation.
//
// The login fields are replaced as a group by [Session.Apply]; readers obtain
// consistent copies through [Session.Snapshot]. The cookie jar is owned by the
// session and synchronized independently.
type Session struct {
	clientID string
	jar      *CookieJar

	mu    sync.RWMutex
	login LoginInfo
}

// New returns an unauthenticated session. An empty clientID is replaced by
// [NewClientID].
func New(clientID string) *Session {
	if clientID == "" {
		clientID = NewClientID()
	}
	return &Session{clientID: clientID, jar: NewCookieJar()}
}

// ClientID returns the stable installation identifier.
func (s *Session) ClientID() string {
	return s.clientID
}

// Cookies returns the jar owned by the session.
func (s *Session) Cookies() *CookieJar {
	return s.jar
}

// Apply atomically overwrites every login field with info.
func (s *Session) Apply(info LoginInfo) {
	next := LoginInfo{
		SessionID:         info.SessionID,
		AccountInfo:       cloneMap(info.AccountInfo),
		ServiceMap:        cloneMap(info.ServiceMap),
		ChallengeRequired: info.ChallengeRequired,
		CreatedAt:         info.CreatedAt,
		ExtendedLogin:     info.ExtendedLogin,
	}
	s.mu.Lock()
	s.login = next
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the current login state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ClientID:          s.clientID,
		SessionID:         s.login.SessionID,
		CreatedAt:         s.login.CreatedAt,
		ExtendedLogin:     s.login.ExtendedLogin,
		AccountInfo:       cloneMap(s.login.AccountInfo),
		ServiceMap:        cloneMap(s.login.ServiceMap),
		ChallengeRequired: s.login.ChallengeRequired,
	}
}

// SessionID returns the server-assigned session id, or "" before login.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.login.SessionID
}

// ChallengeRequired reflects the flag from the last successful login.
func (s *Session) ChallengeRequired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.login.ChallengeRequired
}

// IsValid reports validity at the current time.
func (s *Session) IsValid() bool {
	return s.IsValidAt(time.Now())
}

// IsValidAt reports whether the session has an id and is younger than its max age at now.
func (s *Session) IsValidAt(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.login.SessionID != "" && now.Sub(s.login.CreatedAt) < MaxAge(s.login.ExtendedLogin)
}

// State derives the authentication state at now.
func (s *Session) State(now time.Time) State {
	return s.Snapshot().State(now)
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
