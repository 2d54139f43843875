// Package auth provides credential verification and session handling for the
// family-tree core.
//
// A login passes through four stages:
//   - Throttle gates the attempt per lower-cased username and applies a
//     Fibonacci lockout schedule after repeated failures
//   - Hasher verifies the password (Argon2id, with bcrypt digests accepted
//     for accounts imported from older deployments)
//   - TokenService issues a signed HS256 token valid for a fixed window
//   - Lifecycle stores the token and an activity timestamp in a Carrier and
//     enforces the idle timeout on every later request
//
// Token validity and idle policy are independent: a token can be unexpired
// while the session is already over because the user went idle.
//
// Throttle state lives in memory only and is lost when the process restarts.
// Past a configured record count, unlocked records idle beyond the retention
// window are swept.
//
// Known limitation: ResetPassword needs only a username. Anyone who knows an
// account name can replace its password, and the reset also lifts a lockout.
// Deployments exposing the reset route publicly should front it with an
// out-of-band check (email link, admin approval).
package auth
