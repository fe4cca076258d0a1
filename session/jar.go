package session

import (
	"net/http"
	"net/url"
	"sync"
	"time"
)

// CookieJar is an identity-keyed cookie collection safe for concurrent use.
//
// Mutations are serialized by a mutex; reads return independent copies so callers
// can iterate without holding the lock. CookieJar also implements [http.CookieJar]
// so it can be installed on an [http.Client] or fed by a transport directly.
type CookieJar struct {
	mu      sync.Mutex
	cookies []Cookie
	now     func() time.Time
}

var _ http.CookieJar = (*CookieJar)(nil)

// NewCookieJar returns an empty jar.
func NewCookieJar() *CookieJar {
	return &CookieJar{now: time.Now}
}

func (j *CookieJar) clock() time.Time {
	if j.now == nil {
		return time.Now()
	}
	return j.now()
}

// Add inserts c, replacing any cookie with the same identity. An already expired
// cookie removes the existing match and is not stored.
func (j *CookieJar) Add(c Cookie) {
	now := j.clock()
	j.mu.Lock()
	defer j.mu.Unlock()
	j.addLocked(c, now)
}

// AddAll inserts every cookie in order, under one lock acquisition.
func (j *CookieJar) AddAll(cookies []Cookie) {
	now := j.clock()
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		j.addLocked(c, now)
	}
}

func (j *CookieJar) addLocked(c Cookie, now time.Time) {
	k := c.key()
	j.removeLocked(k)
	if c.Expired(now) {
		return
	}
	stored := c.Clone()
	stored.Domain = k.domain
	j.cookies = append(j.cookies, stored)
}

// replaceLocked stores c as given, expired or not, dropping any cookie with
// the same identity.
func (j *CookieJar) replaceLocked(c Cookie) {
	j.removeLocked(c.key())
	j.cookies = append(j.cookies, c.Clone())
}

func (j *CookieJar) removeLocked(k cookieKey) {
	for i := range j.cookies {
		if j.cookies[i].key() == k {
			j.cookies = append(j.cookies[:i], j.cookies[i+1:]...)
			return
		}
	}
}

// List returns a snapshot of every stored cookie in insertion order.
func (j *CookieJar) List() []Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Cookie, len(j.cookies))
	for i, c := range j.cookies {
		out[i] = c.Clone()
	}
	return out
}

// PurgeExpired drops cookies expired at now and reports whether any were removed.
func (j *CookieJar) PurgeExpired(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	kept := j.cookies[:0]
	for _, c := range j.cookies {
		if !c.Expired(now) {
			kept = append(kept, c)
		}
	}
	removed := len(kept) != len(j.cookies)
	for i := len(kept); i < len(j.cookies); i++ {
		j.cookies[i] = Cookie{}
	}
	j.cookies = kept
	return removed
}

// Clear removes every cookie.
func (j *CookieJar) Clear() {
	j.mu.Lock()
	j.cookies = nil
	j.mu.Unlock()
}

// Len returns the number of stored cookies, expired ones included until purged.
func (j *CookieJar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.cookies)
}

// SetCookies records Set-Cookie values received in a response from u.
func (j *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if u == nil || len(cookies) == 0 {
		return
	}
	now := j.clock()
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, hc := range cookies {
		if hc == nil || hc.Name == "" {
			continue
		}
		j.addLocked(fromHTTPCookie(u, hc, now), now)
	}
}

// Cookies returns the unexpired cookies that should be sent to u.
func (j *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	if u == nil {
		return nil
	}
	now := j.clock()
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*http.Cookie
	for _, c := range j.cookies {
		if !c.matches(u, now) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}
