package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const compactFormatVersion = 1

// ErrInvalidEncoding is returned when a persisted session cannot be decoded.
var ErrInvalidEncoding = errors.New("invalid session encoding")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("session: cbor encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic("session: cbor decoder initialization failed: " + err.Error())
	}
}

type persistedCookie struct {
	Name       string            `json:"name"`
	Value      string            `json:"value"`
	Domain     string            `json:"domain"`
	Path       string            `json:"path"`
	Expiry     *int64            `json:"expiry"`
	Secure     bool              `json:"secure"`
	Version    int               `json:"version"`
	Attributes map[string]string `json:"attributes"`
}

type persistedSession struct {
	ClientID          string            `json:"clientId"`
	SessionID         string            `json:"sessionId"`
	CreatedAt         int64             `json:"createdAt"`
	ExtendedLogin     bool              `json:"extendedLogin"`
	AccountInfo       map[string]any    `json:"accountInfo"`
	ServiceMap        map[string]any    `json:"serviceMap"`
	ChallengeRequired bool              `json:"challengeRequired"`
	Cookies           []persistedCookie `json:"cookies"`
}

func toPersisted(s *Session) persistedSession {
	snap := s.Snapshot()
	p := persistedSession{
		ClientID:          snap.ClientID,
		SessionID:         snap.SessionID,
		ExtendedLogin:     snap.ExtendedLogin,
		AccountInfo:       snap.AccountInfo,
		ServiceMap:        snap.ServiceMap,
		ChallengeRequired: snap.ChallengeRequired,
		Cookies:           []persistedCookie{},
	}
	if !snap.CreatedAt.IsZero() {
		p.CreatedAt = snap.CreatedAt.UnixMilli()
	}
	for _, c := range s.jar.List() {
		pc := persistedCookie{
			Name:       c.Name,
			Value:      c.Value,
			Domain:     c.Domain,
			Path:       c.Path,
			Secure:     c.Secure,
			Version:    c.Version,
			Attributes: c.Attributes,
		}
		if c.Expiry != nil {
			ms := c.Expiry.UnixMilli()
			pc.Expiry = &ms
		}
		p.Cookies = append(p.Cookies, pc)
	}
	return p
}

func fromPersisted(p persistedSession) (*Session, error) {
	if p.ClientID == "" {
		return nil, fmt.Errorf("%w: missing clientId", ErrInvalidEncoding)
	}
	s := New(p.ClientID)
	info := LoginInfo{
		SessionID:         p.SessionID,
		AccountInfo:       normalizeMap(p.AccountInfo),
		ServiceMap:        normalizeMap(p.ServiceMap),
		ChallengeRequired: p.ChallengeRequired,
		ExtendedLogin:     p.ExtendedLogin,
	}
	if p.CreatedAt != 0 {
		info.CreatedAt = time.UnixMilli(p.CreatedAt)
	}
	s.Apply(info)

	// Cookies are restored verbatim, expired ones included. PurgeExpired drops
	// them on demand. A repeated identity keeps the last entry.
	s.jar.mu.Lock()
	for _, pc := range p.Cookies {
		c := Cookie{
			Name:       pc.Name,
			Value:      pc.Value,
			Domain:     pc.Domain,
			Path:       pc.Path,
			Secure:     pc.Secure,
			Version:    pc.Version,
			Attributes: pc.Attributes,
		}
		if pc.Expiry != nil {
			t := time.UnixMilli(*pc.Expiry)
			c.Expiry = &t
		}
		s.jar.replaceLocked(c)
	}
	s.jar.mu.Unlock()
	return s, nil
}

// Encode serializes s into its portable JSON representation.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	return json.Marshal(toPersisted(s))
}

// Decode restores a session from the JSON produced by [Encode].
func Decode(data []byte) (*Session, error) {
	var p persistedSession
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return fromPersisted(p)
}

// EncodeCompact serializes s as a version byte followed by deterministic CBOR.
func EncodeCompact(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	body, err := encMode.Marshal(toPersisted(s))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, compactFormatVersion)
	return append(out, body...), nil
}

// DecodeCompact restores a session from [EncodeCompact] output.
func DecodeCompact(data []byte) (*Session, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: short buffer", ErrInvalidEncoding)
	}
	if data[0] != compactFormatVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrInvalidEncoding, data[0])
	}

	var p persistedSession
	if err := decMode.Unmarshal(data[1:], &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return fromPersisted(p)
}

// NormalizeNumbers replaces json.Number with int64 when integral and float64
// otherwise, recursing into maps and slices. Session maps hold only these.
func NormalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = NormalizeNumbers(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = NormalizeNumbers(val)
		}
		return out
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return NormalizeNumbers(m).(map[string]any)
}
