// Package identity is the identity and session core for the marketbase
// storefront. It reconciles two identity sources (the client identity SDK and
// backend-issued session tokens) into a single authoritative session, drives
// the email one-time-passcode verification workflow, and gates routes by role.
//
// Session lifecycle:
//   - CredentialVerifier and OAuthBridge resolve an Identity from password
//     credentials or a provider assertion. SessionIssuer mints an immutable
//     SessionObject plus a signed HS256 token from that Identity; the claim set
//     is fixed at issuance and role changes only apply on re-issuance.
//   - SessionMirror keeps the backend session synchronized with the client SDK
//     auth state. Reconciliations are last-write-wins: a newer change event
//     supersedes any pending exchange, and failures degrade to an unknown
//     session rather than an elevated one.
//
// Verification challenges:
//   - ChallengeMachine owns the per (email, purpose) OTP state. Challenges move
//     NONE -> PENDING -> VERIFIED or EXPIRED; a resend re-enters PENDING and
//     invalidates the previous code. Email delivery is best-effort and never
//     corrupts challenge state.
//
// Route protection:
//   - Gate maps (session, Requirement) to allow, redirect, or a neutral pending
//     outcome while a reconciliation is in flight. The sessionware middleware
//     applies the same decision table to HTTP routes.
package identity
