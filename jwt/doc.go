// Package jwt seals a session into a signed handoff token so another process can
// resume it without logging in again. The token lifetime matches the session:
// it is issued at the login time and expires when the session's max age elapses.
//
// Tokens are signed, not encrypted. They carry live cookies and must be handled
// as secrets.
package jwt
