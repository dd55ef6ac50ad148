package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/service"
)

// IdentityClient implements service.IdentityClientInterface against the
// platform identity HTTP API. The approval engine fails closed when these
// lookups error, so transport failures here block approvals rather than
// letting an unverified actor through.
type IdentityClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewIdentityClient creates an IdentityClient.
func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetUsersWithRole returns user IDs holding a role within an entity.
func (c *IdentityClient) GetUsersWithRole(ctx context.Context, entityID, role string) ([]string, error) {
	var resp struct {
		UserIDs []string `json:"user_ids"`
	}
	path := "/api/v1/entities/" + url.PathEscape(entityID) + "/roles/" + url.PathEscape(role) + "/users"
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.UserIDs, nil
}

// GetUserRoles returns the role names a user holds within an entity.
func (c *IdentityClient) GetUserRoles(ctx context.Context, entityID, userID string) ([]string, error) {
	var resp struct {
		Roles []string `json:"roles"`
	}
	path := "/api/v1/entities/" + url.PathEscape(entityID) + "/users/" + url.PathEscape(userID) + "/roles"
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Roles, nil
}

func (c *IdentityClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "identity service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.Newf(apperrors.CodeUnavailable, "identity service returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "failed to decode identity response")
	}
	return nil
}

var _ service.IdentityClientInterface = (*IdentityClient)(nil)
