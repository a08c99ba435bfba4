// Package config loads application configuration from ACCOUNTS_* environment
// variables. Secrets (the PII encryption key, the email hash salt, the
// webhook shared secret) are required values with no defaults; everything
// else has a sensible default so a local instance starts with just a
// Postgres URL and the secrets set.
package config
