package api

import (
	"net/http"

	"github.com/receiptdrop/accounts/pkg/contact"
	"github.com/receiptdrop/accounts/pkg/httputil"
)

// ContactRequest is one contact-form post
type ContactRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	Message string `json:"message"`
}

// handleContact stores a contact submission of the given kind
func (s *Server) handleContact(kind contact.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ContactRequest
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		if !httputil.RequireNonEmpty(w, req.Email, "email") {
			return
		}
		if !httputil.RequireNonEmpty(w, req.Message, "message") {
			return
		}
		if kind == contact.KindEnterprise && !httputil.RequireNonEmpty(w, req.Company, "company") {
			return
		}

		sub := &contact.Submission{
			Kind:    kind,
			Email:   req.Email,
			Name:    req.Name,
			Company: req.Company,
			Message: req.Message,
		}
		if err := s.contacts.Create(r.Context(), sub); err != nil {
			s.logger.WithError(err).Error("failed to store contact submission")
			httputil.WriteInternalError(w, err)
			return
		}
		httputil.WriteCreated(w, map[string]interface{}{"id": sub.ID})
	}
}
