// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides token generation and admin credential utilities.

# Voter Identifiers

Voter identifiers are random v4 UUIDs:

	voterID, err := auth.GenerateVoterIdentifier()

They are generated once per client profile and never derived from the
(simulated) fingerprint scan.

# Admin Passwords

Passwords are stored as bcrypt hashes:

	hash, err := auth.HashPassword(password)
	err := auth.CheckPassword(hash, candidate) // ErrInvalidCredentials on mismatch

# Session Tokens

Admin sessions are HS256 JWTs whose jti is the admin_session row id:

	token, err := auth.SignSessionToken(secret, sessionID, userID, email, now, now.Add(auth.SessionTTL))
	claims, err := auth.ParseSessionToken(secret, token)

Parsing checks signature and expiry only. Sign-out revokes the session row,
so callers must also check the row.

# ID Generation

Random hex IDs for database records:

	id, err := auth.GenerateID(16)  // 32 hex characters
*/
package auth
