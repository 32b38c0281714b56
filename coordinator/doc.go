// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package coordinator runs a single vote attempt from gesture to settlement.

	Idle -> GestureStaged -> Submitting -> Success | Duplicate | Failure -> Idle

Stage is the entry guard: the projection must be ready, the voter must not
have voted, and no other attempt may be staged or submitting. The gesture
between Stage and Confirm carries no data; it only gates the submission.

Duplicate rejections from the ledger are authoritative and mark the voter
as voted even if the local projection disagreed. Any other error leaves
HasVoted untouched so the voter can retry.
*/
package coordinator
