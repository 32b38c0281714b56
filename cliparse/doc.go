// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration
for the ledger server and the voter CLI.

# Server Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

  - Port: Server listen port (default: 3318)
  - DatabaseURL: PostgreSQL URL or SQLite path (required)
  - DatabaseType: sqlite (default) or postgres
  - JWTSecret: Admin session signing secret (required)
  - AdminEmail, AdminPassword: Bootstrap administrator (optional, set together)
  - RedisURL: Tally cache and cross-instance feed (optional)
  - KafkaBrokers, KafkaTopic: Vote event export (optional)

# Environment Variables

Flags fall back to environment variables:

	PORT           → -p
	DATABASE_URL   → -d
	DATABASE_TYPE  → -t
	JWT_SECRET     → -jwt-secret
	ADMIN_EMAIL    → -admin-email
	ADMIN_PASSWORD → -admin-password
	REDIS_URL      → -redis
	KAFKA_BROKERS  → -kafka-brokers
	KAFKA_TOPIC    → -kafka-topic

CLI flags take precedence over environment variables, and real environment
variables take precedence over the .env file (-env, default ".env").

# Client Configuration

ParseClientFlags parses the voter CLI's global flags and returns the
remaining arguments:

	cfg, args, err := cliparse.ParseClientFlags(os.Args[1:])

	FINGERVOTE_API     → -api (default http://localhost:3318)
	FINGERVOTE_PROFILE → -profile (default "default")
	-tally-interval    (default 15s)
	-leader-interval   (default 30s)
*/
package cliparse
