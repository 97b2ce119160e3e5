// Package authcore is the authentication and session-integrity core of the
// marketmosaic gateway: it issues and verifies signed bearer tokens,
// revokes them before natural expiry, throttles repeated failed logins per
// account, and rate-limits arbitrary keyed operations under concurrent
// multi-client access.
//
// The root package exposes the [Facade], assembled by [Builder] from a
// [UserDirectory] collaborator, an optional shared Redis store, and the
// configuration surface in [Config]. Token signing lives in the token
// subpackage, revocation in revocation, lockout tracking in attempt, and
// sliding-window admission in ratelimit. Routing, persistence of user
// records, and outbound delivery are external collaborators; the core only
// consumes and produces opaque token strings.
package authcore
