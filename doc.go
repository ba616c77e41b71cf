// Package identity implements account lifecycle and lead conversion for an
// education loan platform: passwordless registration with email
// verification, deferred password issuance, Google sign-in unification, and
// the staff pipeline that turns eligibility-form leads into verified
// accounts. Every state change is recorded in an append-only activity log.
package identity
