package api

import (
	"errors"
	"net/http"

	"github.com/receiptdrop/accounts/pkg/account"
	"github.com/receiptdrop/accounts/pkg/httputil"
	"github.com/receiptdrop/accounts/pkg/webhook"
)

// AccountCheckRequest asks for a user's current status
type AccountCheckRequest struct {
	UserID string `json:"user_id"`

	// IncludePII requests decrypted email and name in the response.
	IncludePII bool `json:"include_pii,omitempty"`
}

// handleAccountCheck returns tier and quota usage for one user
func (s *Server) handleAccountCheck(w http.ResponseWriter, r *http.Request) {
	var req AccountCheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	status, err := s.query.CheckStatus(r.Context(), req.UserID, req.IncludePII)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			httputil.WriteNotFoundError(w, "account not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, status)
}

// AccountDeleteRequest asks for full erasure of a user's account
type AccountDeleteRequest struct {
	UserID string `json:"user_id"`
}

// handleAccountDelete removes the account row and all encrypted PII on it
func (s *Server) handleAccountDelete(w http.ResponseWriter, r *http.Request) {
	var req AccountDeleteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	if err := s.deleter.DeleteAccount(r.Context(), req.UserID); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			httputil.WriteNotFoundError(w, "account not found")
			return
		}
		s.logger.WithError(err).WithField("user_id", req.UserID).Error("failed to delete account")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"user_id": req.UserID, "deleted": true})
}

// PortalSessionRequest asks for a billing-portal session by account email
type PortalSessionRequest struct {
	Email string `json:"email"`
}

// PortalSessionResponse carries the provider session URL
type PortalSessionResponse struct {
	URL string `json:"url"`
}

// handlePortalSession creates a billing-portal session for the account
// matching the given email.
func (s *Server) handlePortalSession(w http.ResponseWriter, r *http.Request) {
	var req PortalSessionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	url, err := s.portal.SessionForEmail(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			httputil.WriteNotFoundError(w, "no account for that email")
		case errors.Is(err, webhook.ErrPortalUnavailable):
			httputil.WriteBadGateway(w, "billing portal unavailable")
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}
	httputil.WriteSuccess(w, PortalSessionResponse{URL: url})
}
