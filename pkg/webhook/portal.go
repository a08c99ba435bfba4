package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/receiptdrop/accounts/pkg/account"
	"github.com/receiptdrop/accounts/pkg/observability"
	"github.com/receiptdrop/accounts/pkg/pii"
)

// ErrPortalUnavailable is returned when the billing provider cannot issue a
// portal session. Never retried here; the request is user-initiated and the
// user can simply try again.
var ErrPortalUnavailable = errors.New("billing portal unavailable")

// PortalClient requests management-portal sessions from the billing provider
type PortalClient interface {
	CreateSession(ctx context.Context, billingRef string) (string, error)
}

// HTTPPortalClient implements PortalClient against the provider's REST API
type HTTPPortalClient struct {
	baseURL   string
	apiKey    string
	returnURL string
	client    *http.Client
}

// NewHTTPPortalClient creates a portal client. baseURL is the provider API
// root without a trailing slash.
func NewHTTPPortalClient(baseURL, apiKey, returnURL string, timeout time.Duration) *HTTPPortalClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPortalClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		returnURL: returnURL,
		client:    &http.Client{Timeout: timeout},
	}
}

// CreateSession asks the provider for a session URL for a billing customer
func (c *HTTPPortalClient) CreateSession(ctx context.Context, billingRef string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"customer":   billingRef,
		"return_url": c.returnURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode portal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/billing_portal/sessions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create portal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPortalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: provider returned status %d", ErrPortalUnavailable, resp.StatusCode)
	}

	var session struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("%w: failed to decode session response: %v", ErrPortalUnavailable, err)
	}
	if session.URL == "" {
		return "", fmt.Errorf("%w: empty session url", ErrPortalUnavailable)
	}
	return session.URL, nil
}

// PortalService resolves a user's billing reference and requests a portal
// session. Read-only against the store and never touches the ledger.
type PortalService struct {
	store  account.Store
	hasher *pii.Hasher
	client PortalClient
	logger *observability.Logger
}

// NewPortalService creates a PortalService
func NewPortalService(store account.Store, hasher *pii.Hasher, client PortalClient, logger *observability.Logger) *PortalService {
	return &PortalService{
		store:  store,
		hasher: hasher,
		client: client,
		logger: logger,
	}
}

// SessionForEmail looks the account up by email hash and returns a portal
// session URL. Returns account.ErrNotFound when no account matches, and
// ErrPortalUnavailable when the account has no billing reference yet or the
// provider call fails.
func (s *PortalService) SessionForEmail(ctx context.Context, email string) (string, error) {
	acct, err := s.store.GetByEmailHash(ctx, s.hasher.EmailHash(email))
	if err != nil {
		return "", err
	}
	if acct.BillingRef == "" {
		return "", fmt.Errorf("%w: account has no billing reference", ErrPortalUnavailable)
	}

	url, err := s.client.CreateSession(ctx, acct.BillingRef)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).WithField("user_id", acct.UserID).Warn("portal session request failed")
		}
		return "", err
	}
	return url, nil
}
