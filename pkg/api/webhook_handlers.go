package api

import (
	"errors"
	"net/http"

	"github.com/receiptdrop/accounts/pkg/httputil"
	"github.com/receiptdrop/accounts/pkg/webhook"
)

// handleBillingWebhook ingests one provider event. Response codes steer the
// provider's redelivery: 2xx stops it, anything else causes a retry.
func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	var evt webhook.Event
	if !httputil.ParseJSONOrError(w, r, &evt) {
		return
	}
	if !httputil.RequireNonEmpty(w, evt.ID, "event_id") {
		return
	}

	result, err := s.processor.Process(r.Context(), &evt)
	if err != nil {
		var sigErr *webhook.SignatureError
		switch {
		case errors.As(err, &sigErr):
			httputil.WriteUnauthorized(w, sigErr.Error())
		case errors.Is(err, webhook.ErrStorageUnavailable):
			httputil.WriteServiceUnavailable(w, "event not processed, retry later")
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	if !result.Outcome.Success() {
		httputil.WriteBadRequest(w, string(result.Outcome))
		return
	}
	httputil.WriteSuccess(w, result)
}

// handleRecentEvents lists the newest ledger rows. Operators use it to review
// deliveries that claimed an id without mutating state, unknown-user events
// in particular.
func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := s.events.Recent(r.Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("failed to list processed events")
		httputil.WriteInternalError(w, err)
		return
	}
	if events == nil {
		events = []*webhook.ProcessedEvent{}
	}
	httputil.WriteSuccess(w, events)
}
