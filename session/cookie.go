package session

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Attribute names recorded on cookies captured from Set-Cookie headers.
const (
	AttrDomain   = "domain"
	AttrPath     = "path"
	AttrExpires  = "expires"
	AttrMaxAge   = "max-age"
	AttrSecure   = "secure"
	AttrHTTPOnly = "httponly"
	AttrSameSite = "samesite"
)

// Cookie is a client-side cookie as held by a [CookieJar].
//
// Identity is the (Name, Domain, Path) triple. Domain is stored lower-cased.
// A nil Expiry marks a session cookie that never expires on its own.
type Cookie struct {
	Name       string
	Value      string
	Domain     string
	Path       string
	Expiry     *time.Time
	Secure     bool
	Version    int
	Attributes map[string]string
}

type cookieKey struct {
	name   string
	domain string
	path   string
}

func (c Cookie) key() cookieKey {
	return cookieKey{name: c.Name, domain: strings.ToLower(c.Domain), path: c.Path}
}

// SameIdentity reports whether c and other share name, domain and path.
func (c Cookie) SameIdentity(other Cookie) bool {
	return c.key() == other.key()
}

// Expired reports whether the cookie's expiry is at or before now.
func (c Cookie) Expired(now time.Time) bool {
	return c.Expiry != nil && !c.Expiry.After(now)
}

// Persistent reports whether the cookie carries an explicit expiry.
func (c Cookie) Persistent() bool {
	return c.Expiry != nil
}

// Clone returns a deep copy of c.
func (c Cookie) Clone() Cookie {
	out := c
	if c.Expiry != nil {
		t := *c.Expiry
		out.Expiry = &t
	}
	if c.Attributes != nil {
		out.Attributes = make(map[string]string, len(c.Attributes))
		for k, v := range c.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

func (c Cookie) matches(u *url.URL, now time.Time) bool {
	if c.Expired(now) {
		return false
	}
	if c.Secure && u.Scheme != "https" {
		return false
	}
	if !domainMatch(strings.ToLower(u.Hostname()), c.Domain) {
		return false
	}
	return pathMatch(requestPath(u), c.Path)
}

// fromHTTPCookie converts a Set-Cookie received for u into a jar cookie.
// Max-Age wins over Expires; a negative Max-Age produces an already expired cookie.
func fromHTTPCookie(u *url.URL, hc *http.Cookie, now time.Time) Cookie {
	c := Cookie{
		Name:       hc.Name,
		Value:      hc.Value,
		Domain:     strings.ToLower(strings.TrimPrefix(hc.Domain, ".")),
		Path:       hc.Path,
		Secure:     hc.Secure,
		Attributes: map[string]string{},
	}
	if hc.Domain != "" {
		c.Attributes[AttrDomain] = hc.Domain
	} else {
		c.Domain = strings.ToLower(u.Hostname())
	}
	if hc.Path != "" {
		c.Attributes[AttrPath] = hc.Path
	} else {
		c.Path = defaultPath(u)
	}

	switch {
	case hc.MaxAge < 0:
		expired := now
		c.Expiry = &expired
		c.Attributes[AttrMaxAge] = "0"
	case hc.MaxAge > 0:
		expiry := now.Add(time.Duration(hc.MaxAge) * time.Second)
		c.Expiry = &expiry
		c.Attributes[AttrMaxAge] = strconv.Itoa(hc.MaxAge)
	case !hc.Expires.IsZero():
		expiry := hc.Expires.UTC()
		c.Expiry = &expiry
		c.Attributes[AttrExpires] = hc.RawExpires
	}
	if hc.Secure {
		c.Attributes[AttrSecure] = ""
	}
	if hc.HttpOnly {
		c.Attributes[AttrHTTPOnly] = ""
	}
	switch hc.SameSite {
	case http.SameSiteLaxMode:
		c.Attributes[AttrSameSite] = "Lax"
	case http.SameSiteStrictMode:
		c.Attributes[AttrSameSite] = "Strict"
	case http.SameSiteNoneMode:
		c.Attributes[AttrSameSite] = "None"
	}
	return c
}

func domainMatch(host, domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	if domain == "" {
		return false
	}
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

func pathMatch(reqPath, cookiePath string) bool {
	if cookiePath == "" || cookiePath == "/" {
		return true
	}
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

func requestPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func defaultPath(u *url.URL) string {
	p := requestPath(u)
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i]
}
