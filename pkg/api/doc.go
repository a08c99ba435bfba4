// Package api exposes the HTTP surface: the billing webhook endpoint,
// account status checks, portal session creation, and the contact forms.
// Handlers are thin glue over the core services; all business rules live in
// pkg/webhook and pkg/account.
package api
