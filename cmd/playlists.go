package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/synclist/internal/models"
	"github.com/urfave/cli/v3"
)

func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "List local playlists and their share status",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output as JSON",
			},
			&cli.BoolFlag{
				Name:    "pretty",
				Aliases: []string{"p"},
				Usage:   "Pretty-print JSON output",
			},
		},
		Action: r.Playlists,
	}
}

func showCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show the server-side state of a shared playlist",
		Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output as JSON",
			},
			&cli.BoolFlag{
				Name:    "pretty",
				Aliases: []string{"p"},
				Usage:   "Pretty-print JSON output",
			},
		},
		Action: r.Show,
	}
}

// Playlists prints every local playlist, shared or not.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	engine, cleanup, err := r.openEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	playlists, err := engine.Playlists().List(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") || cmd.Bool("pretty") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	if len(playlists) == 0 {
		return r.writePlain("No playlists found\n")
	}
	for _, playlist := range playlists {
		if playlist.Shared() {
			r.writePlain("%s  %s  [share %s, %s]\n", playlist.ID, playlist.Title, playlist.ShareID, playlist.Role)
		} else {
			r.writePlain("%s  %s  [local]\n", playlist.ID, playlist.Title)
		}
	}
	return nil
}

// Show prints the authoritative server-side state of a shared playlist.
func (r *Runner) Show(ctx context.Context, cmd *cli.Command) error {
	playlistID, err := requireArg(cmd, "playlist")
	if err != nil {
		return err
	}

	engine, cleanup, err := r.openEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	diff, err := engine.RemoteSnapshot(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("failed to fetch remote playlist: %w", err)
	}

	if cmd.Bool("json") || cmd.Bool("pretty") {
		return r.writeJSON(diff, cmd.Bool("pretty"))
	}

	if diff.Metadata != nil {
		r.writePlain("%s\n", diff.Metadata.Title)
	}
	for _, event := range diff.Tracks {
		if event.Type != models.EventUpsert || event.Track == nil {
			continue
		}
		r.writePlain("  %s  %s - %s\n", event.SortKey, event.Track.Title, event.Track.Artist)
	}
	return nil
}
