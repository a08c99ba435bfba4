// Package sync provisions account rows for newly registered users. The
// auth system owns user signup; this package periodically sweeps for users
// without an account row and creates one with Free-tier defaults, encrypted
// PII, and a virtual inbox address. Creation is idempotent, so a sweep that
// races a concurrent one is harmless.
package sync
