package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goICloud/session"
	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func validSession(created time.Time, extended bool) *session.Session {
	s := session.New("CLIENT-1")
	s.Apply(session.LoginInfo{
		SessionID:     "8123456789",
		AccountInfo:   map[string]any{"appleId": "user@example.com"},
		ServiceMap:    map[string]any{"ckdatabasews": map[string]any{"url": "https://p31-ckdatabasews.icloud.com:443"}},
		CreatedAt:     created,
		ExtendedLogin: extended,
	})
	s.Cookies().Add(session.Cookie{Name: "X-APPLE-WEBAUTH-TOKEN", Value: "v", Domain: "icloud.com", Path: "/"})
	return s
}

func TestSealOpenRoundTrip(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, Issuer: "icloudctl", Audience: "workers", KeyID: "k1"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	sess := validSession(time.Now(), true)
	token, err := m.Seal(sess)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := m.Open(token)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got.ClientID() != "CLIENT-1" || got.SessionID() != "8123456789" {
		t.Fatalf("unexpected session: %s %s", got.ClientID(), got.SessionID())
	}
	if got.Cookies().Len() != 1 {
		t.Fatalf("expected cookie carried through, got %d", got.Cookies().Len())
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	wantExp := sess.Snapshot().ExpiresAt().Truncate(time.Second)
	if !claims.ExpiresAt.Time.Equal(wantExp) {
		t.Fatalf("expected exp %v, got %v", wantExp, claims.ExpiresAt.Time)
	}
}

func TestSealRejectsInvalidSession(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("secret-secret-secret-secret")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.Seal(session.New("c")); !errors.Is(err, session.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	stale := validSession(time.Now().Add(-session.DefaultMaxAge-time.Second), false)
	if _, err := m.Seal(stale); !errors.Is(err, session.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestOpenRejectsExpiredToken(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("secret-secret-secret-secret")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.Seal(validSession(time.Now(), false))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	m.now = func() time.Time { return time.Now().Add(session.DefaultMaxAge + time.Minute) }
	if _, err := m.Open(token); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestOpenRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := HandoffClaims{SessionID: "s1", Payload: []byte{1}, RegisteredClaims: gjwt.RegisteredClaims{
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Open(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestOpenRejectsMismatchedClaims(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: priv.Public().(ed25519.PublicKey)})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	payload, err := session.EncodeCompact(validSession(time.Now(), false))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	claims := HandoffClaims{ClientID: "CLIENT-1", SessionID: "other", Payload: payload, RegisteredClaims: gjwt.RegisteredClaims{
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Open(token); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}
}

func TestOpenUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	good, err := m.Seal(validSession(time.Now(), false))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := m.Open(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	pub2, _ := newEdKeys(t)
	m2, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m2.Open(good); err == nil {
		t.Fatal("expected unknown kid failure")
	}
}

func TestNewManagerValidation(t *testing.T) {
	pub, _ := newEdKeys(t)
	cases := []Config{
		{SigningMethod: "rs256"},
		{SigningMethod: MethodHS256},
		{SigningMethod: MethodEd25519},
		{SigningMethod: MethodEd25519, PublicKey: pub, Leeway: time.Hour},
		{SigningMethod: MethodEd25519, PublicKey: pub, KeyID: "k9", VerifyKeys: map[string][]byte{"k1": pub}},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}

// FuzzHandoffOpen feeds arbitrary strings to Open; it must never panic.
func FuzzHandoffOpen(f *testing.F) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	mgr, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, KeyID: "k1", VerifyKeys: map[string][]byte{"k1": pub}})
	if err != nil {
		f.Fatal(err)
	}
	valid, err := mgr.Seal(validSession(time.Now(), true))
	if err != nil {
		f.Fatal(err)
	}
	f.Add(valid)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJub25lIn0.eyJzaWQiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		sess, err := mgr.Open(input)
		if err != nil {
			return
		}
		if sess == nil {
			t.Fatal("Open returned nil session without error")
		}
	})
}
