// Package authcore is the credential and token-lifecycle core of an
// authentication service. It mints and verifies audience-bound HMAC
// tokens, records refresh tokens durably so individual sessions can be
// revoked, checks password credentials with timing-safe failure
// behavior, drives OAuth2 authorization-code logins against pluggable
// identity providers, and makes distributed rate-limit decisions.
//
// The package deliberately has no HTTP surface. A Service is constructed
// from a Config wiring the collaborators (identity store, token store,
// hasher, limiter, providers) and is then adapted to whatever boundary
// the embedding service exposes.
package authcore
