// Package common contains shared constants and sentinel errors used across
// kajix components.
package common

// AuthorizationHeaderName is the HTTP header that carries the bearer access token.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the access token inside the Authorization header.
const BearerPrefix = "Bearer "

// RequestIDHeaderName carries the per-request correlation id.
const RequestIDHeaderName = "X-Request-ID"
