package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/synclist/internal/models"
	"github.com/desertthunder/synclist/internal/shared"
	"github.com/urfave/cli/v3"
)

func shareCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "share",
		Usage:     "Upload a local playlist as a new share",
		Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
		Flags:     []cli.Flag{configFlag()},
		Action:    r.Share,
	}
}

func subscribeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Join a share and mirror it locally",
		Arguments: []cli.Argument{&cli.StringArg{Name: "share"}},
		Flags:     []cli.Flag{configFlag()},
		Action:    r.Subscribe,
	}
}

func unsubscribeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "unsubscribe",
		Usage:     "Detach a playlist from its share",
		Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
		Flags:     []cli.Flag{configFlag()},
		Action:    r.Unsubscribe,
	}
}

func deleteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a share on the server, keeping the local playlist",
		Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
		Flags:     []cli.Flag{configFlag()},
		Action:    r.Delete,
	}
}

func pullCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "pull",
		Usage:     "Pull remote changes into the local mirror",
		Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Pull every shared playlist",
			},
		},
		Action: r.Pull,
	}
}

func pushCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "push",
		Usage:  "Push pending local changes to the server",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Push,
	}
}

func restoreCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "restore",
		Usage:  "Re-mirror every share this device belongs to",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Restore,
	}
}

// Share uploads a local playlist and stores its share linkage.
func (r *Runner) Share(ctx context.Context, cmd *cli.Command) error {
	playlistID, err := requireArg(cmd, "playlist")
	if err != nil {
		return err
	}

	engine, cleanup, err := r.openEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	playlist, err := engine.EnableSharing(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("failed to enable sharing: %w", err)
	}

	r.writePlain("Playlist %q is now shared as %s\n", playlist.Title, playlist.ShareID)
	return nil
}

// Subscribe joins a share and materializes its snapshot locally.
func (r *Runner) Subscribe(ctx context.Context, cmd *cli.Command) error {
	shareID, err := requireArg(cmd, "share")
	if err != nil {
		return err
	}

	engine, cleanup, err := r.openEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	playlist, err := engine.Subscribe(ctx, shareID)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	r.writePlain("Subscribed to %q (%s) as %s\n", playlist.Title, playlist.ID, playlist.Role)
	return nil
}

// Unsubscribe detaches a playlist from its share.
func (r *Runner) Unsubscribe(ctx context.Context, cmd *cli.Command) error {
	playlistID, err := requireArg(cmd, "playlist")
	if err != nil {
		return err
	}

	engine, cleanup, err := r.openEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := engine.Unsubscribe(ctx, playlistID); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}

	r.writePlain("Unsubscribed playlist %s\n", playlistID)
	return nil
}

// Delete removes the share server-side and detaches the local playlist.
func (r *Runner) Delete(ctx context.Context, cmd *cli.Command) error {
	playlistID, err := requireArg(cmd, "playlist")
	if err != nil {
		return err
	}

	engine, cleanup, err := r.openEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := engine.DeleteShare(ctx, playlistID); err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}

	r.writePlain("Deleted share for playlist %s; local copy kept\n", playlistID)
	return nil
}

// Pull applies remote diffs to one playlist, or to every shared playlist
// with --all. A deleted share is reported per playlist, not fatal for the
// rest.
func (r *Runner) Pull(ctx context.Context, cmd *cli.Command) error {
	engine, cleanup, err := r.openEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if cmd.Bool("all") {
		playlists, err := engine.Playlists().ListShared(ctx)
		if err != nil {
			return err
		}
		for _, playlist := range playlists {
			if err := engine.PullChanges(ctx, playlist.ID); err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					r.writePlain("Share for %q was deleted on the server; run unsubscribe to clean up\n", playlist.Title)
					continue
				}
				return fmt.Errorf("pull failed for %s: %w", playlist.ID, err)
			}
			r.writePlain("Pulled %q\n", playlist.Title)
		}
		return nil
	}

	playlistID, err := requireArg(cmd, "playlist")
	if err != nil {
		return err
	}
	if err := engine.PullChanges(ctx, playlistID); err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	r.writePlain("Pulled playlist %s\n", playlistID)
	return nil
}

// Push recovers crashed rows, then drains the outbox.
func (r *Runner) Push(ctx context.Context, cmd *cli.Command) error {
	engine, cleanup, err := r.openEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := engine.RecoverStuckRows(ctx); err != nil {
		return err
	}
	if err := engine.TriggerSync(ctx); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	counts, err := engine.Queue().Counts(ctx)
	if err != nil {
		return err
	}
	r.writePlain("Push complete: %d done, %d failed\n", counts[models.StatusDone], counts[models.StatusFailed])
	return nil
}

// Restore re-subscribes to every share missing from the local mirror.
func (r *Runner) Restore(ctx context.Context, cmd *cli.Command) error {
	engine, cleanup, err := r.openEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	restored, err := engine.RestoreFromCloud(ctx)
	for _, playlist := range restored {
		r.writePlain("Restored %q (%s)\n", playlist.Title, playlist.ID)
	}
	if err != nil {
		return fmt.Errorf("restore finished with errors: %w", err)
	}
	r.writePlain("Restore complete: %d playlists\n", len(restored))
	return nil
}
