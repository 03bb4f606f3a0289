// Package auth issues and verifies the bearer tokens of the CTI proxy API.
//
// Tokens are HS256 JWTs minted by the "ctiproxy token" command and carry
// one of two roles: viewer (state, history, event stream) and operator
// (viewer plus command execution). There is no user database; revoking
// access means rotating security.jwt.secret.
package auth
