package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPOwnerResolver is an HTTP implementation of the OwnerResolver interface
// backed by the account management service.
type HTTPOwnerResolver struct {
	url    string
	client *http.Client
}

// NewHTTPOwnerResolver creates a new HTTPOwnerResolver. Every lookup is
// bounded by timeout.
func NewHTTPOwnerResolver(baseURL string, timeout time.Duration) *HTTPOwnerResolver {
	return &HTTPOwnerResolver{
		url:    strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

type account struct {
	ID       string `json:"id"`
	LegacyID string `json:"_id"`
	Name     string `json:"name"`
}

func (a account) id() string {
	if a.ID != "" {
		return a.ID
	}
	return a.LegacyID
}

// ResolveID returns the id of the named owner.
func (c *HTTPOwnerResolver) ResolveID(ctx context.Context, name string) (string, error) {
	acct, err := c.lookup(ctx, "/accounts/"+url.PathEscape(name), ErrOwnerNotFound, name)
	if err != nil {
		return "", err
	}
	if acct.id() == "" {
		return "", fmt.Errorf("%w: %s", ErrOwnerNotFound, name)
	}
	return acct.id(), nil
}

// ResolveName returns the name of the owner with the given id.
func (c *HTTPOwnerResolver) ResolveName(ctx context.Context, id string) (string, error) {
	acct, err := c.lookup(ctx, "/accounts/_id/"+url.PathEscape(id), ErrOwnerIDNotFound, id)
	if err != nil {
		return "", err
	}
	if acct.Name == "" {
		return "", fmt.Errorf("%w: %s", ErrOwnerIDNotFound, id)
	}
	return acct.Name, nil
}

// lookup classifies a non-200 response as notFound and anything that keeps
// a response from arriving as ErrServiceUnavailable.
func (c *HTTPOwnerResolver) lookup(ctx context.Context, path string, notFound error, subject string) (*account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", notFound, subject)
	}

	var acct account
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response body: %v", ErrServiceUnavailable, err)
	}
	return &acct, nil
}
