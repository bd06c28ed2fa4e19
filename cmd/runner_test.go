package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/desertthunder/synclist/internal/models"
	"github.com/desertthunder/synclist/internal/shared"
	"github.com/desertthunder/synclist/internal/tasks"
	tu "github.com/desertthunder/synclist/internal/testing"
	"github.com/urfave/cli/v3"
)

func newTestRunner(t *testing.T) (*Runner, *tu.MockSyncAPI, *bytes.Buffer, *tasks.Engine) {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := shared.RunClientMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	mock := &tu.MockSyncAPI{}
	output := &bytes.Buffer{}
	logger := shared.NewLogger(io.Discard)
	runner := NewRunner(RunnerOpts{
		Config: shared.DefaultConfig(),
		API:    mock,
		DB:     db,
		Logger: logger,
		Output: output,
	})

	return runner, mock, output, tasks.NewEngine(db, mock, logger)
}

func runApp(t *testing.T, runner *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "synclist", Commands: runner.register()}
	return app.Run(context.Background(), append([]string{"synclist"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			api := &tu.MockSyncAPI{}

			runner := NewRunner(RunnerOpts{
				Config: config,
				API:    api,
				Logger: logger,
				Output: output,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.api != api {
				t.Error("expected api to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			if err := runner.writeJSON(data, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		if len(commands) != 11 {
			t.Errorf("expected 11 commands, got %d", len(commands))
		}
		for i, cmd := range commands {
			if cmd == nil {
				t.Errorf("command at index %d is nil", i)
			}
		}
	})
}

func TestCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("share uploads the playlist snapshot", func(t *testing.T) {
		runner, mock, output, engine := newTestRunner(t)

		playlist, err := engine.CreatePlaylist(ctx, "Road Trip", "")
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if err := engine.AddTracks(ctx, playlist.ID, []models.Track{
			{Key: "spotify:1", Title: "Opener", Artist: "Band"},
		}); err != nil {
			t.Fatalf("failed to add track: %v", err)
		}

		var captured models.CreatePlaylistRequest
		mock.CreatePlaylistFunc = func(ctx context.Context, req models.CreatePlaylistRequest) (*models.CreatePlaylistResponse, error) {
			captured = req
			return &models.CreatePlaylistResponse{ID: "share-9", Role: models.RoleOwner, ServerTime: 42}, nil
		}

		if err := runApp(t, runner, "share", playlist.ID); err != nil {
			t.Fatalf("share failed: %v", err)
		}

		if captured.Title != "Road Trip" || len(captured.Tracks) != 1 {
			t.Errorf("unexpected snapshot: title=%q tracks=%d", captured.Title, len(captured.Tracks))
		}
		if !strings.Contains(output.String(), "share-9") {
			t.Errorf("expected share id in output, got %q", output.String())
		}

		stored, err := engine.Playlists().Get(ctx, playlist.ID)
		if err != nil {
			t.Fatalf("failed to reload playlist: %v", err)
		}
		if stored.ShareID != "share-9" || stored.Role != models.RoleOwner || stored.LastSyncedAt != 42 {
			t.Errorf("share linkage not stored: %+v", stored)
		}
	})

	t.Run("share requires a playlist argument", func(t *testing.T) {
		runner, _, _, _ := newTestRunner(t)

		err := runApp(t, runner, "share")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing argument error, got %v", err)
		}
	})

	t.Run("subscribe mirrors the share", func(t *testing.T) {
		runner, mock, output, engine := newTestRunner(t)

		mock.SubscribeFunc = func(ctx context.Context, shareID string) (*models.SubscribeResponse, error) {
			return &models.SubscribeResponse{PlaylistID: shareID, Role: models.RoleSubscriber}, nil
		}
		mock.PullChangesFunc = func(ctx context.Context, shareID string, since int64) (*models.Diff, error) {
			return &models.Diff{
				Metadata: &models.Metadata{Title: "Friday Mix", UpdatedAt: 10},
				Tracks: []models.ChangeEvent{
					{Type: models.EventUpsert, Track: &models.Track{Key: "spotify:1", Title: "One"}, SortKey: "a0", UpdatedAt: 10},
				},
				ServerTime: 50,
			}, nil
		}

		if err := runApp(t, runner, "subscribe", "share-2"); err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		if !strings.Contains(output.String(), "Friday Mix") {
			t.Errorf("expected playlist title in output, got %q", output.String())
		}

		mirror, err := engine.Playlists().GetByShareID(ctx, "share-2")
		if err != nil {
			t.Fatalf("expected local mirror: %v", err)
		}
		links, err := engine.Tracks().ListLinks(ctx, mirror.ID)
		if err != nil {
			t.Fatalf("failed to list links: %v", err)
		}
		if len(links) != 1 || links[0].TrackKey != "spotify:1" {
			t.Errorf("expected mirrored track, got %+v", links)
		}
	})

	t.Run("push drains the outbox", func(t *testing.T) {
		runner, mock, output, engine := newTestRunner(t)

		playlist, err := engine.CreatePlaylist(ctx, "Shared", "")
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if err := engine.Playlists().MarkShared(ctx, playlist.ID, "share-1", models.RoleOwner, 1); err != nil {
			t.Fatalf("failed to mark shared: %v", err)
		}
		if err := engine.AddTracks(ctx, playlist.ID, []models.Track{
			{Key: "spotify:1", Title: "One", Artist: "Band"},
		}); err != nil {
			t.Fatalf("failed to add track: %v", err)
		}

		mock.PushChangesFunc = func(ctx context.Context, shareID string, changes []models.Change) (int64, error) {
			return 5000, nil
		}

		if err := runApp(t, runner, "push"); err != nil {
			t.Fatalf("push failed: %v", err)
		}
		if !strings.Contains(output.String(), "1 done, 0 failed") {
			t.Errorf("expected push summary, got %q", output.String())
		}
	})

	t.Run("pull --all reports deleted shares without failing", func(t *testing.T) {
		runner, mock, output, engine := newTestRunner(t)

		playlist, err := engine.CreatePlaylist(ctx, "Gone", "")
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if err := engine.Playlists().MarkShared(ctx, playlist.ID, "share-1", models.RoleSubscriber, 1); err != nil {
			t.Fatalf("failed to mark shared: %v", err)
		}

		mock.PullChangesFunc = func(ctx context.Context, shareID string, since int64) (*models.Diff, error) {
			return nil, shared.ErrNotFound
		}

		if err := runApp(t, runner, "pull", "--all"); err != nil {
			t.Fatalf("expected deleted share to be non-fatal, got %v", err)
		}
		if !strings.Contains(output.String(), "deleted on the server") {
			t.Errorf("expected deletion notice, got %q", output.String())
		}
	})

	t.Run("unsubscribe removes a subscriber mirror", func(t *testing.T) {
		runner, _, _, engine := newTestRunner(t)

		playlist, err := engine.CreatePlaylist(ctx, "Mirror", "")
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if err := engine.Playlists().MarkShared(ctx, playlist.ID, "share-3", models.RoleSubscriber, 1); err != nil {
			t.Fatalf("failed to mark shared: %v", err)
		}

		if err := runApp(t, runner, "unsubscribe", playlist.ID); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}
		if _, err := engine.Playlists().Get(ctx, playlist.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected mirror to be gone, got %v", err)
		}
	})

	t.Run("restore mirrors missing shares", func(t *testing.T) {
		runner, mock, output, engine := newTestRunner(t)

		mock.ListMyPlaylistsFunc = func(ctx context.Context) ([]models.RemotePlaylist, error) {
			return []models.RemotePlaylist{
				{ID: "share-7", Role: models.RoleEditor, Metadata: models.Metadata{Title: "Archive"}},
			}, nil
		}
		mock.SubscribeFunc = func(ctx context.Context, shareID string) (*models.SubscribeResponse, error) {
			return &models.SubscribeResponse{PlaylistID: shareID, Role: models.RoleEditor}, nil
		}
		mock.PullChangesFunc = func(ctx context.Context, shareID string, since int64) (*models.Diff, error) {
			return &models.Diff{
				Metadata:   &models.Metadata{Title: "Archive", UpdatedAt: 10},
				ServerTime: 50,
			}, nil
		}

		if err := runApp(t, runner, "restore"); err != nil {
			t.Fatalf("restore failed: %v", err)
		}
		if !strings.Contains(output.String(), "Restore complete: 1 playlists") {
			t.Errorf("expected restore summary, got %q", output.String())
		}
		if _, err := engine.Playlists().GetByShareID(ctx, "share-7"); err != nil {
			t.Errorf("expected restored mirror: %v", err)
		}
	})

	t.Run("show prints the remote snapshot", func(t *testing.T) {
		runner, mock, output, engine := newTestRunner(t)

		playlist, err := engine.CreatePlaylist(ctx, "Shared", "")
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if err := engine.Playlists().MarkShared(ctx, playlist.ID, "share-5", models.RoleSubscriber, 1); err != nil {
			t.Fatalf("failed to mark shared: %v", err)
		}

		mock.GetPlaylistFunc = func(ctx context.Context, shareID string) (*models.Diff, error) {
			return &models.Diff{
				Metadata: &models.Metadata{Title: "Server Copy", UpdatedAt: 10},
				Tracks: []models.ChangeEvent{
					{Type: models.EventUpsert, Track: &models.Track{Key: "spotify:1", Title: "One", Artist: "Band"}, SortKey: "a0", UpdatedAt: 10},
				},
				ServerTime: 50,
			}, nil
		}

		if err := runApp(t, runner, "show", playlist.ID); err != nil {
			t.Fatalf("show failed: %v", err)
		}
		text := output.String()
		if !strings.Contains(text, "Server Copy") || !strings.Contains(text, "One - Band") {
			t.Errorf("expected remote state in output, got %q", text)
		}
	})

	t.Run("delete detaches the share", func(t *testing.T) {
		runner, mock, output, engine := newTestRunner(t)

		playlist, err := engine.CreatePlaylist(ctx, "Shared", "")
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if err := engine.Playlists().MarkShared(ctx, playlist.ID, "share-6", models.RoleOwner, 1); err != nil {
			t.Fatalf("failed to mark shared: %v", err)
		}

		var deleted string
		mock.DeletePlaylistFunc = func(ctx context.Context, shareID string) error {
			deleted = shareID
			return nil
		}

		if err := runApp(t, runner, "delete", playlist.ID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if deleted != "share-6" {
			t.Errorf("expected share-6 deleted, got %q", deleted)
		}
		if !strings.Contains(output.String(), "local copy kept") {
			t.Errorf("expected confirmation, got %q", output.String())
		}

		got, err := engine.Playlists().Get(ctx, playlist.ID)
		if err != nil {
			t.Fatalf("expected the playlist kept: %v", err)
		}
		if got.Shared() {
			t.Errorf("share linkage not cleared: %+v", got)
		}
	})

	t.Run("playlists lists local and shared", func(t *testing.T) {
		runner, _, output, engine := newTestRunner(t)

		local, err := engine.CreatePlaylist(ctx, "Local Only", "")
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		linked, err := engine.CreatePlaylist(ctx, "Linked", "")
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if err := engine.Playlists().MarkShared(ctx, linked.ID, "share-4", models.RoleOwner, 1); err != nil {
			t.Fatalf("failed to mark shared: %v", err)
		}

		if err := runApp(t, runner, "playlists"); err != nil {
			t.Fatalf("playlists failed: %v", err)
		}
		text := output.String()
		if !strings.Contains(text, local.Title) || !strings.Contains(text, "[local]") {
			t.Errorf("expected local playlist line, got %q", text)
		}
		if !strings.Contains(text, "share-4") {
			t.Errorf("expected shared playlist line, got %q", text)
		}

		output.Reset()
		if err := runApp(t, runner, "playlists", "--json"); err != nil {
			t.Fatalf("playlists --json failed: %v", err)
		}
		var decoded []map[string]any
		if err := json.Unmarshal(output.Bytes(), &decoded); err != nil {
			t.Fatalf("expected valid JSON output: %v", err)
		}
		if len(decoded) != 2 {
			t.Errorf("expected 2 playlists in JSON, got %d", len(decoded))
		}
	})
}
