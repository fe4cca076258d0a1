// Package transport issues the HTTP round trips made by the client.
//
// Every request carries the fixed browser headers the service expects and the
// cookies of the session it is made for. Response cookies are merged back
// into that session's jar, including cookies set on redirects. The package
// performs no retries; a failed round trip is returned as is.
package transport
