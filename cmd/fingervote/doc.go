// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Command fingervote is the voter and administrator client for a fingervote
ledger server.

Each profile holds one voter identity, a random token stored under the
user config directory (fingervote/<profile>.json). The token is never
derived from the fingerprint scan; the scan only confirms intent.

	fingervote participants
	fingervote vote p_3f9c...          # prompts for the scan
	fingervote -profile kiosk2 vote -yes p_3f9c...
	fingervote watch
	fingervote admin login -email admin@example.com
	fingervote admin add -name "Aroha" -age 24 -country NZ

Exit status is 0 on success, 1 on errors, 2 on usage errors and 3 when the
profile has already voted.
*/
package main
