package session

import (
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestCookieJarAddReplacesSameIdentity(t *testing.T) {
	jar := NewCookieJar()
	jar.Add(Cookie{Name: "X-APPLE-WEBAUTH-TOKEN", Value: "one", Domain: ".icloud.com", Path: "/"})
	jar.Add(Cookie{Name: "X-APPLE-WEBAUTH-TOKEN", Value: "two", Domain: ".ICLOUD.com", Path: "/"})
	jar.Add(Cookie{Name: "X-APPLE-WEBAUTH-TOKEN", Value: "other-path", Domain: ".icloud.com", Path: "/setup"})

	if jar.Len() != 2 {
		t.Fatalf("expected 2 cookies, got %d", jar.Len())
	}
	list := jar.List()
	if list[1].Value != "two" {
		t.Fatalf("expected replaced value, got %+v", list)
	}
	if list[1].Domain != ".icloud.com" {
		t.Fatalf("expected lower-cased domain, got %q", list[1].Domain)
	}
}

func TestCookieJarExpiredAddRemovesMatchAndNeverGrows(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	jar := NewCookieJar()
	jar.now = func() time.Time { return now }

	jar.Add(Cookie{Name: "a", Value: "1", Domain: "icloud.com", Path: "/"})
	jar.Add(Cookie{Name: "a", Value: "gone", Domain: "icloud.com", Path: "/", Expiry: timePtr(now)})
	if jar.Len() != 0 {
		t.Fatalf("expected expired add to remove match, got %d cookies", jar.Len())
	}

	jar.Add(Cookie{Name: "b", Value: "gone", Domain: "icloud.com", Path: "/", Expiry: timePtr(now.Add(-time.Hour))})
	if jar.Len() != 0 {
		t.Fatalf("expected expired add to store nothing, got %d cookies", jar.Len())
	}
}

func TestCookieJarListIsIndependentSnapshot(t *testing.T) {
	jar := NewCookieJar()
	expiry := time.Now().Add(time.Hour)
	jar.Add(Cookie{Name: "a", Value: "1", Domain: "icloud.com", Path: "/", Expiry: &expiry, Attributes: map[string]string{"httponly": ""}})

	list := jar.List()
	list[0].Value = "mutated"
	list[0].Attributes["secure"] = ""
	*list[0].Expiry = time.Time{}

	again := jar.List()
	if again[0].Value != "1" {
		t.Fatalf("snapshot mutation leaked into jar: %+v", again[0])
	}
	if _, ok := again[0].Attributes["secure"]; ok {
		t.Fatalf("attribute mutation leaked into jar")
	}
	if !again[0].Expiry.Equal(expiry) {
		t.Fatalf("expiry mutation leaked into jar")
	}
}

func TestCookieJarPurgeExpired(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	jar := NewCookieJar()
	jar.now = func() time.Time { return now }
	jar.Add(Cookie{Name: "short", Domain: "icloud.com", Path: "/", Expiry: timePtr(now.Add(time.Minute))})
	jar.Add(Cookie{Name: "session", Domain: "icloud.com", Path: "/"})

	if jar.PurgeExpired(now) {
		t.Fatalf("expected nothing purged yet")
	}
	if !jar.PurgeExpired(now.Add(2 * time.Minute)) {
		t.Fatalf("expected purge to report removal")
	}
	list := jar.List()
	if len(list) != 1 || list[0].Name != "session" {
		t.Fatalf("unexpected jar after purge: %+v", list)
	}

	jar.Clear()
	if jar.Len() != 0 {
		t.Fatalf("expected empty jar after clear")
	}
}

func TestCookieJarHTTPRoundTrip(t *testing.T) {
	jar := NewCookieJar()
	u, _ := url.Parse("https://setup.icloud.com/setup/ws/1/login")

	jar.SetCookies(u, []*http.Cookie{
		{Name: "X-APPLE-WEBAUTH-USER", Value: "v=1", Domain: ".icloud.com", Path: "/", Secure: true, HttpOnly: true},
		{Name: "host-only", Value: "h"},
		{Name: "dead", Value: "x", MaxAge: -1},
	})
	if jar.Len() != 2 {
		t.Fatalf("expected 2 stored cookies, got %d", jar.Len())
	}

	for _, c := range jar.List() {
		switch c.Name {
		case "X-APPLE-WEBAUTH-USER":
			if c.Domain != "icloud.com" || !c.Secure {
				t.Fatalf("unexpected domain cookie: %+v", c)
			}
			if _, ok := c.Attributes[AttrHTTPOnly]; !ok {
				t.Fatalf("expected httponly attribute recorded: %+v", c.Attributes)
			}
		case "host-only":
			if c.Domain != "setup.icloud.com" || c.Path != "/setup/ws/1" {
				t.Fatalf("unexpected host-only cookie: %+v", c)
			}
		}
	}

	other, _ := url.Parse("https://p31-ckdatabasews.icloud.com/database/1/query")
	got := jar.Cookies(other)
	if len(got) != 1 || got[0].Name != "X-APPLE-WEBAUTH-USER" {
		t.Fatalf("expected only the domain cookie for other host, got %v", got)
	}

	plain, _ := url.Parse("http://setup.icloud.com/setup/ws/1/listDevices")
	got = jar.Cookies(plain)
	if len(got) != 1 || got[0].Name != "host-only" {
		t.Fatalf("expected secure cookie withheld over http, got %v", got)
	}
}

func TestCookieJarConcurrentAccess(t *testing.T) {
	jar := NewCookieJar()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				jar.Add(Cookie{Name: "c", Value: "v", Domain: "icloud.com", Path: "/"})
				_ = jar.List()
				jar.PurgeExpired(time.Now())
			}
		}(i)
	}
	wg.Wait()
	if jar.Len() != 1 {
		t.Fatalf("expected single cookie identity, got %d", jar.Len())
	}
}
