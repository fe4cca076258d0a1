// Package middleware accepts session handoff tokens on incoming HTTP requests.
//
// [RequireSession] reads a bearer token from the Authorization header, opens
// it with [goICloud.Client.OpenSession] and hands the recovered session to the
// next handler through the request context. Requests without a token, with a
// token that fails verification, or whose session is no longer valid are
// rejected with 401 before the next handler runs.
package middleware
