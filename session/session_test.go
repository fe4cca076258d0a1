package session

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func testLoginInfo(now time.Time, extended bool) LoginInfo {
	return LoginInfo{
		SessionID:   "8123456789",
		AccountInfo: map[string]any{"dsid": "8123456789", "appleId": "user@example.com", "fullName": "Test User"},
		ServiceMap: map[string]any{
			"ckdatabasews": map[string]any{"url": "https://p31-ckdatabasews.icloud.com:443", "pcsRequired": true},
			"findme":       map[string]any{"url": "https://p31-fmipweb.icloud.com:443"},
		},
		CreatedAt:     now,
		ExtendedLogin: extended,
	}
}

func TestSessionValidityWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		extended bool
		age      time.Duration
		want     bool
	}{
		{"fresh default", false, 0, true},
		{"default just inside", false, DefaultMaxAge - time.Millisecond, true},
		{"default at boundary", false, DefaultMaxAge, false},
		{"extended after default window", true, time.Hour, true},
		{"extended just inside", true, ExtendedMaxAge - time.Second, true},
		{"extended at boundary", true, ExtendedMaxAge, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New("client")
			s.Apply(testLoginInfo(now, tc.extended))
			if got := s.IsValidAt(now.Add(tc.age)); got != tc.want {
				t.Fatalf("IsValidAt(+%v) = %v, want %v", tc.age, got, tc.want)
			}
			if got := s.Snapshot().IsValidAt(now.Add(tc.age)); got != tc.want {
				t.Fatalf("snapshot IsValidAt(+%v) = %v, want %v", tc.age, got, tc.want)
			}
		})
	}
}

func TestSessionWithoutIDIsNeverValid(t *testing.T) {
	s := New("client")
	if s.IsValid() {
		t.Fatalf("new session must not be valid")
	}
	info := testLoginInfo(time.Now(), true)
	info.SessionID = ""
	s.Apply(info)
	if s.IsValid() {
		t.Fatalf("session without id must not be valid")
	}
}

func TestSessionStateTransitions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New("client")
	if st := s.State(now); st != Unauthenticated {
		t.Fatalf("expected unauthenticated, got %s", st)
	}

	info := testLoginInfo(now, false)
	info.ChallengeRequired = true
	s.Apply(info)
	if st := s.State(now); st != ChallengePending {
		t.Fatalf("expected challenge pending, got %s", st)
	}

	info.ChallengeRequired = false
	s.Apply(info)
	if st := s.State(now); st != Authenticated {
		t.Fatalf("expected authenticated, got %s", st)
	}
	if st := s.State(now.Add(DefaultMaxAge)); st != Expired {
		t.Fatalf("expected expired, got %s", st)
	}
}

func TestSessionSnapshotIsDeepCopy(t *testing.T) {
	s := New("client")
	info := testLoginInfo(time.Now(), false)
	s.Apply(info)

	info.AccountInfo["appleId"] = "changed@example.com"
	snap := s.Snapshot()
	if snap.AccountIdentifier() != "user@example.com" {
		t.Fatalf("Apply must copy input maps, got %q", snap.AccountIdentifier())
	}

	snap.ServiceMap["ckdatabasews"].(map[string]any)["url"] = "https://evil.example"
	u, ok := s.Snapshot().ServiceURL("ckdatabasews")
	if !ok || u != "https://p31-ckdatabasews.icloud.com:443" {
		t.Fatalf("snapshot mutation leaked: %q %v", u, ok)
	}
	if _, ok := snap.ServiceURL("missing"); ok {
		t.Fatalf("expected missing service lookup to fail")
	}
}

func TestSessionApplyIsAtomicForReaders(t *testing.T) {
	s := New("client")
	now := time.Now()
	a := testLoginInfo(now, false)
	b := testLoginInfo(now, true)
	b.SessionID = "other"
	b.ServiceMap = map[string]any{"ckdatabasews": map[string]any{"url": "https://other.example"}}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				s.Apply(a)
			} else {
				s.Apply(b)
			}
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		snap := s.Snapshot()
		if snap.SessionID == "" {
			continue
		}
		u, _ := snap.ServiceURL("ckdatabasews")
		if snap.SessionID == "other" && u != "https://other.example" {
			t.Fatalf("observed new session id with stale service map")
		}
		if snap.SessionID == a.SessionID && u == "https://other.example" {
			t.Fatalf("observed old session id with new service map")
		}
	}
}

func TestNewClientID(t *testing.T) {
	id := NewClientID()
	if len(id) != 36 || strings.ToUpper(id) != id {
		t.Fatalf("unexpected client id %q", id)
	}
	if New("").ClientID() == "" {
		t.Fatalf("expected generated client id")
	}
}
