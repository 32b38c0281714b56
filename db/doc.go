// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles connections, schema creation, and driver error
classification.

# Connections

Open selects the driver by database type:

	conn, err := db.Open(db.TypeSQLite, "fingervote.db")
	conn, err := db.Open(db.TypePostgres, "postgres://...")

SQLite connections enable foreign keys, WAL journaling and a busy timeout.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

  - participant: Roster entries managed by administrators
  - vote: One row per voter_identifier (UNIQUE across the ledger)
  - admin_user: Administrator credentials (bcrypt hash)
  - admin_session: Issued admin sessions, revocable on sign-out

# Relationships

	participant 1──* vote
	admin_user 1──* admin_session

All foreign keys use ON DELETE CASCADE.

# Constraint Errors

The vote ledger relies on the database to reject a second vote from the
same voter. IsUniqueViolation and IsForeignKeyViolation classify driver
errors from lib/pq (SQLSTATE 23505/23503) and modernc sqlite
(SQLITE_CONSTRAINT_UNIQUE/FOREIGNKEY).
*/
package db
