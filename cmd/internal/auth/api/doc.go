// Package authapi is the HTTP surface of authentication: register, login,
// refresh, logout, and /me, plus the Gate middleware that admits bearer
// access tokens into the rest of the API.
//
// Transport rules: the refresh token travels only in an httpOnly cookie,
// never in a JSON body, and every 401 clears that cookie so a broken client
// cannot keep replaying a dead session.
package authapi
