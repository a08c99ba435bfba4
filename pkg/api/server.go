package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/receiptdrop/accounts/pkg/account"
	"github.com/receiptdrop/accounts/pkg/contact"
	"github.com/receiptdrop/accounts/pkg/httputil"
	"github.com/receiptdrop/accounts/pkg/observability"
	"github.com/receiptdrop/accounts/pkg/webhook"
)

// maxBodyBytes caps request bodies. Webhook payloads and contact forms are
// small; anything larger is noise.
const maxBodyBytes = 1 << 20

// EventProcessor runs billing events through the webhook state machine
type EventProcessor interface {
	Process(ctx context.Context, evt *webhook.Event) (*webhook.Result, error)
}

// StatusChecker answers account status queries
type StatusChecker interface {
	CheckStatus(ctx context.Context, userID string, includePII bool) (*account.Status, error)
}

// AccountDeleter erases an account and its PII
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, userID string) error
}

// PortalSessions creates billing-portal sessions by account email
type PortalSessions interface {
	SessionForEmail(ctx context.Context, email string) (string, error)
}

// EventLog reads the processed-event ledger
type EventLog interface {
	Recent(ctx context.Context, limit int) ([]*webhook.ProcessedEvent, error)
}

// Server is the API server
type Server struct {
	router    *mux.Router
	processor EventProcessor
	query     StatusChecker
	deleter   AccountDeleter
	portal    PortalSessions
	events    EventLog
	contacts  contact.Store
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewServer creates a new API server. metrics may be nil.
func NewServer(processor EventProcessor, query StatusChecker, deleter AccountDeleter, portal PortalSessions, events EventLog, contacts contact.Store, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		processor: processor,
		query:     query,
		deleter:   deleter,
		portal:    portal,
		events:    events,
		contacts:  contacts,
		logger:    logger,
		metrics:   metrics,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/webhooks/billing", s.handleBillingWebhook).Methods("POST")
	s.router.HandleFunc("/webhooks/billing/events", s.handleRecentEvents).Methods("GET")
	s.router.HandleFunc("/users/account-check", s.handleAccountCheck).Methods("POST")
	s.router.HandleFunc("/users/account-delete", s.handleAccountDelete).Methods("POST")
	s.router.HandleFunc("/billing/portal-session", s.handlePortalSession).Methods("POST")
	s.router.HandleFunc("/contact", s.handleContact(contact.KindIndividual)).Methods("POST")
	s.router.HandleFunc("/contact/enterprise", s.handleContact(contact.KindEnterprise)).Methods("POST")
}

// Handler returns the server's handler with the middleware chain applied
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.MaxBytesMiddleware(maxBodyBytes),
	}
	if s.metrics != nil {
		middlewares = append(middlewares, httputil.MetricsMiddleware(s.metrics))
	}
	return httputil.Chain(middlewares...)(s.router)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
