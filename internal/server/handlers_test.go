package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/synclist/internal/models"
)

// setupTestServer starts an httptest server over the full router with one
// seeded owner and one seeded subscriber.
func setupTestServer(t *testing.T) (*httptest.Server, *Store) {
	t.Helper()

	store, _ := setupTestStore(t)
	ctx := context.Background()
	for _, u := range [][3]string{
		{"user-owner", "Owner", "token-owner"},
		{"user-subscriber", "Subscriber", "token-subscriber"},
	} {
		if err := store.EnsureUser(ctx, u[0], u[1], u[2]); err != nil {
			t.Fatalf("failed to seed user %s: %v", u[0], err)
		}
	}

	srv := httptest.NewServer(NewServer(store, nil).Router())
	t.Cleanup(srv.Close)
	return srv, store
}

// doRequest performs an authenticated JSON request and decodes the response
// body into out when out is non-nil.
func doRequest(t *testing.T, srv *httptest.Server, method, path, token string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response body: %v", err)
		}
	}
	return resp.StatusCode
}

func createTestPlaylist(t *testing.T, srv *httptest.Server) models.CreatePlaylistResponse {
	t.Helper()
	var resp models.CreatePlaylistResponse
	status := doRequest(t, srv, http.MethodPost, "/playlists", "token-owner",
		models.CreatePlaylistRequest{Title: "Road Trip"}, &resp)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	return resp
}

func TestRouter_Health(t *testing.T) {
	srv, _ := setupTestServer(t)
	if status := doRequest(t, srv, http.MethodGet, "/health", "", nil, nil); status != http.StatusOK {
		t.Errorf("expected 200 without auth, got %d", status)
	}
}

func TestRouter_Unauthorized(t *testing.T) {
	srv, _ := setupTestServer(t)

	if status := doRequest(t, srv, http.MethodGet, "/me/playlists", "", nil, nil); status != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", status)
	}
	if status := doRequest(t, srv, http.MethodGet, "/me/playlists", "token-bogus", nil, nil); status != http.StatusUnauthorized {
		t.Errorf("unknown token: expected 401, got %d", status)
	}
}

func TestRouter_PushPullRoundTrip(t *testing.T) {
	srv, _ := setupTestServer(t)
	created := createTestPlaylist(t, srv)

	push := models.PushRequest{Changes: []models.Change{
		{Op: models.OpUpsert, Track: track("T"), SortKey: "a0", OperationAt: 100},
	}}
	var pushResp models.PushResponse
	status := doRequest(t, srv, http.MethodPost, "/playlists/"+created.ID+"/changes", "token-owner", push, &pushResp)
	if status != http.StatusOK {
		t.Fatalf("push: expected 200, got %d", status)
	}
	if pushResp.AppliedAt <= 0 {
		t.Errorf("expected an applied_at cursor, got %d", pushResp.AppliedAt)
	}

	var diff models.Diff
	status = doRequest(t, srv, http.MethodGet, "/playlists/"+created.ID+"/changes?since=0", "token-owner", nil, &diff)
	if status != http.StatusOK {
		t.Fatalf("pull: expected 200, got %d", status)
	}
	if len(diff.Tracks) != 1 || diff.Tracks[0].Key() != "T" {
		t.Errorf("expected one event for T, got %+v", diff.Tracks)
	}
}

func TestRouter_ErrorMapping(t *testing.T) {
	srv, _ := setupTestServer(t)
	created := createTestPlaylist(t, srv)

	// Subscriber role can pull but not push.
	status := doRequest(t, srv, http.MethodPost, "/playlists/"+created.ID+"/subscribe", "token-subscriber", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("subscribe: expected 200, got %d", status)
	}

	push := models.PushRequest{Changes: []models.Change{
		{Op: models.OpUpsert, Track: track("T"), SortKey: "a0", OperationAt: 100},
	}}
	if status := doRequest(t, srv, http.MethodPost, "/playlists/"+created.ID+"/changes", "token-subscriber", push, nil); status != http.StatusForbidden {
		t.Errorf("subscriber push: expected 403, got %d", status)
	}

	if status := doRequest(t, srv, http.MethodGet, "/playlists/missing/changes", "token-owner", nil, nil); status != http.StatusNotFound {
		t.Errorf("unknown playlist: expected 404, got %d", status)
	}

	empty := models.PushRequest{}
	if status := doRequest(t, srv, http.MethodPost, "/playlists/"+created.ID+"/changes", "token-owner", empty, nil); status != http.StatusBadRequest {
		t.Errorf("empty batch: expected 400, got %d", status)
	}

	if status := doRequest(t, srv, http.MethodGet, "/playlists/"+created.ID+"/changes?since=abc", "token-owner", nil, nil); status != http.StatusBadRequest {
		t.Errorf("bad since: expected 400, got %d", status)
	}
}

func TestRouter_SubscribeAndList(t *testing.T) {
	srv, _ := setupTestServer(t)
	created := createTestPlaylist(t, srv)

	var sub models.SubscribeResponse
	for i := 0; i < 2; i++ {
		status := doRequest(t, srv, http.MethodPost, "/playlists/"+created.ID+"/subscribe", "token-subscriber", nil, &sub)
		if status != http.StatusOK {
			t.Fatalf("subscribe attempt %d: expected 200, got %d", i+1, status)
		}
	}
	if sub.Role != models.RoleSubscriber {
		t.Errorf("expected subscriber role, got %s", sub.Role)
	}

	var listed struct {
		Playlists []models.RemotePlaylist `json:"playlists"`
	}
	status := doRequest(t, srv, http.MethodGet, "/me/playlists", "token-subscriber", nil, &listed)
	if status != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", status)
	}
	if len(listed.Playlists) != 1 || listed.Playlists[0].ID != created.ID {
		t.Errorf("expected one listed playlist, got %+v", listed.Playlists)
	}
}

func TestRouter_DeleteTurnsTerminal(t *testing.T) {
	srv, _ := setupTestServer(t)
	created := createTestPlaylist(t, srv)

	if status := doRequest(t, srv, http.MethodDelete, "/playlists/"+created.ID, "token-owner", nil, nil); status != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", status)
	}

	for _, probe := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, fmt.Sprintf("/playlists/%s", created.ID)},
		{http.MethodGet, fmt.Sprintf("/playlists/%s/changes", created.ID)},
	} {
		if status := doRequest(t, srv, probe.method, probe.path, "token-owner", nil, nil); status != http.StatusNotFound {
			t.Errorf("%s %s after delete: expected 404, got %d", probe.method, probe.path, status)
		}
	}
}

func TestRouter_Metadata(t *testing.T) {
	srv, _ := setupTestServer(t)
	created := createTestPlaylist(t, srv)

	update := models.UpdateMetadataRequest{Title: "Renamed", UpdatedAt: created.ServerTime + 1}
	if status := doRequest(t, srv, http.MethodPatch, "/playlists/"+created.ID, "token-owner", update, nil); status != http.StatusOK {
		t.Fatalf("metadata update: expected 200, got %d", status)
	}

	var diff models.Diff
	if status := doRequest(t, srv, http.MethodGet, "/playlists/"+created.ID, "token-owner", nil, &diff); status != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", status)
	}
	if diff.Metadata == nil || diff.Metadata.Title != "Renamed" {
		t.Errorf("expected renamed metadata, got %+v", diff.Metadata)
	}
}
