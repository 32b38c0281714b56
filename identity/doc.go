// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package identity manages the voter's pseudonymous identity token.

A Store is created once per process from a KV (FileKV for a CLI profile,
MemoryKV in tests) and passed to whatever needs the token. GetOrCreate
is idempotent: the first call generates a random UUID and persists it
under "voter_id"; later calls return the same value.

If the KV cannot be read or written the Store falls back to an ephemeral
token for the rest of the process and logs a warning. A Store never hands
out two different tokens.

The voted marker ("voted_marker") caches the participant this token voted
for. It is bound to the token that wrote it and is only used when the
ledger cannot be reached.
*/
package identity
