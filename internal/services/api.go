package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/synclist/internal/models"
	"github.com/desertthunder/synclist/internal/shared"
	"golang.org/x/time/rate"
)

// SyncClient implements [SyncAPI] against the sync server's HTTP API.
type SyncClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSyncClient creates a client for the server at baseURL, authenticating
// with the given bearer token. requestsPerSecond bounds outgoing request
// rate; zero or negative disables the limit.
func NewSyncClient(baseURL, token string, requestsPerSecond float64) *SyncClient {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &SyncClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// SetHTTPClient swaps the underlying transport, used by tests.
func (c *SyncClient) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// doRequest performs an authenticated JSON request against the sync API and
// decodes the response into result when result is non-nil.
func (c *SyncClient) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}

	var reqBody *bytes.Buffer = &bytes.Buffer{}
	if body != nil {
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// statusError maps a non-2xx status onto the error taxonomy. Server-side
// failures and unknown statuses count as network errors so callers retry.
func statusError(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return shared.ErrUnauthorized
	case http.StatusForbidden:
		return shared.ErrForbidden
	case http.StatusNotFound:
		return shared.ErrNotFound
	case http.StatusBadRequest:
		return shared.ErrValidation
	default:
		return fmt.Errorf("%w: server returned status %d", shared.ErrNetwork, status)
	}
}

// CreatePlaylist uploads a full local snapshot, creating the share.
func (c *SyncClient) CreatePlaylist(ctx context.Context, req models.CreatePlaylistRequest) (*models.CreatePlaylistResponse, error) {
	var resp models.CreatePlaylistResponse
	if err := c.doRequest(ctx, http.MethodPost, "/playlists", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PushChanges submits a batch of track operations and returns the server
// commit time, the client's next cursor.
func (c *SyncClient) PushChanges(ctx context.Context, shareID string, changes []models.Change) (int64, error) {
	var resp models.PushResponse
	endpoint := fmt.Sprintf("/playlists/%s/changes", url.PathEscape(shareID))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, models.PushRequest{Changes: changes}, &resp); err != nil {
		return 0, err
	}
	return resp.AppliedAt, nil
}

// PullChanges retrieves the diff since the given cursor.
func (c *SyncClient) PullChanges(ctx context.Context, shareID string, since int64) (*models.Diff, error) {
	var diff models.Diff
	endpoint := fmt.Sprintf("/playlists/%s/changes?since=%s", url.PathEscape(shareID), strconv.FormatInt(since, 10))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &diff); err != nil {
		return nil, err
	}
	return &diff, nil
}

// UpdateMetadata submits the latest metadata tuple for a share.
func (c *SyncClient) UpdateMetadata(ctx context.Context, shareID string, req models.UpdateMetadataRequest) error {
	endpoint := fmt.Sprintf("/playlists/%s", url.PathEscape(shareID))
	return c.doRequest(ctx, http.MethodPatch, endpoint, req, nil)
}

// Subscribe registers the caller as a member of a share.
func (c *SyncClient) Subscribe(ctx context.Context, shareID string) (*models.SubscribeResponse, error) {
	var resp models.SubscribeResponse
	endpoint := fmt.Sprintf("/playlists/%s/subscribe", url.PathEscape(shareID))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPlaylist retrieves metadata and the live track snapshot of a share.
func (c *SyncClient) GetPlaylist(ctx context.Context, shareID string) (*models.Diff, error) {
	var diff models.Diff
	endpoint := fmt.Sprintf("/playlists/%s", url.PathEscape(shareID))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &diff); err != nil {
		return nil, err
	}
	return &diff, nil
}

// ListMyPlaylists retrieves every share the caller is a member of.
func (c *SyncClient) ListMyPlaylists(ctx context.Context) ([]models.RemotePlaylist, error) {
	var resp struct {
		Playlists []models.RemotePlaylist `json:"playlists"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/me/playlists", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Playlists, nil
}

// DeletePlaylist deletes a share the caller owns.
func (c *SyncClient) DeletePlaylist(ctx context.Context, shareID string) error {
	endpoint := fmt.Sprintf("/playlists/%s", url.PathEscape(shareID))
	return c.doRequest(ctx, http.MethodDelete, endpoint, nil, nil)
}
