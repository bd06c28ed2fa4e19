// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/desertthunder/synclist/internal/models"
	"github.com/desertthunder/synclist/internal/shared"
)

// MockSyncAPI is a test double for [services.SyncAPI]. Each method delegates
// to its corresponding function field; unset fields report ErrNotImplemented.
type MockSyncAPI struct {
	CreatePlaylistFunc  func(ctx context.Context, req models.CreatePlaylistRequest) (*models.CreatePlaylistResponse, error)
	PushChangesFunc     func(ctx context.Context, shareID string, changes []models.Change) (int64, error)
	PullChangesFunc     func(ctx context.Context, shareID string, since int64) (*models.Diff, error)
	UpdateMetadataFunc  func(ctx context.Context, shareID string, req models.UpdateMetadataRequest) error
	SubscribeFunc       func(ctx context.Context, shareID string) (*models.SubscribeResponse, error)
	GetPlaylistFunc     func(ctx context.Context, shareID string) (*models.Diff, error)
	ListMyPlaylistsFunc func(ctx context.Context) ([]models.RemotePlaylist, error)
	DeletePlaylistFunc  func(ctx context.Context, shareID string) error
}

func (m *MockSyncAPI) CreatePlaylist(ctx context.Context, req models.CreatePlaylistRequest) (*models.CreatePlaylistResponse, error) {
	if m.CreatePlaylistFunc == nil {
		return nil, shared.ErrNotImplemented
	}
	return m.CreatePlaylistFunc(ctx, req)
}

func (m *MockSyncAPI) PushChanges(ctx context.Context, shareID string, changes []models.Change) (int64, error) {
	if m.PushChangesFunc == nil {
		return 0, shared.ErrNotImplemented
	}
	return m.PushChangesFunc(ctx, shareID, changes)
}

func (m *MockSyncAPI) PullChanges(ctx context.Context, shareID string, since int64) (*models.Diff, error) {
	if m.PullChangesFunc == nil {
		return nil, shared.ErrNotImplemented
	}
	return m.PullChangesFunc(ctx, shareID, since)
}

func (m *MockSyncAPI) UpdateMetadata(ctx context.Context, shareID string, req models.UpdateMetadataRequest) error {
	if m.UpdateMetadataFunc == nil {
		return shared.ErrNotImplemented
	}
	return m.UpdateMetadataFunc(ctx, shareID, req)
}

func (m *MockSyncAPI) Subscribe(ctx context.Context, shareID string) (*models.SubscribeResponse, error) {
	if m.SubscribeFunc == nil {
		return nil, shared.ErrNotImplemented
	}
	return m.SubscribeFunc(ctx, shareID)
}

func (m *MockSyncAPI) GetPlaylist(ctx context.Context, shareID string) (*models.Diff, error) {
	if m.GetPlaylistFunc == nil {
		return nil, shared.ErrNotImplemented
	}
	return m.GetPlaylistFunc(ctx, shareID)
}

func (m *MockSyncAPI) ListMyPlaylists(ctx context.Context) ([]models.RemotePlaylist, error) {
	if m.ListMyPlaylistsFunc == nil {
		return nil, shared.ErrNotImplemented
	}
	return m.ListMyPlaylistsFunc(ctx)
}

func (m *MockSyncAPI) DeletePlaylist(ctx context.Context, shareID string) error {
	if m.DeletePlaylistFunc == nil {
		return shared.ErrNotImplemented
	}
	return m.DeletePlaylistFunc(ctx, shareID)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// RoundTripFunc adapts a function into an [http.RoundTripper].
type RoundTripFunc func(*http.Request) (*http.Response, error)

func (f RoundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// DrainCloser wraps a reader into a no-op ReadCloser for response bodies.
type DrainCloser struct {
	io.Reader
}

func (DrainCloser) Close() error { return nil }
