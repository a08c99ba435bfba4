// Package contact stores contact-form submissions. Submissions carry PII
// (email, name, company, free-text message) and are encrypted at rest with
// the same codec as account rows.
package contact
