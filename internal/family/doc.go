// Package family implements family groups and the access-control model
// inside them.
//
// Every user-in-family relation is a Membership carrying exactly one Role
// from a fixed catalog (creator, participant, observer). Each role has a
// default permission set; a membership stores its own copy of the catalog
// (seeded from its role) which the creator may then override per key.
//
// Effective permissions resolve in this order:
//
//  1. The family creator holds every permission, regardless of stored rows.
//  2. A membership-level row for the key, if present.
//  3. The role default for the key.
//  4. false, including for keys outside the catalog.
//
// Role changes (promote) and per-key overrides run inside a single SQLite
// transaction scoped to the membership, so a membership never ends up
// with zero or duplicate permission rows.
package family
