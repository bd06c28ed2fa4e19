package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/synclist/internal/server"
	"github.com/desertthunder/synclist/internal/shared"
	"github.com/urfave/cli/v3"
)

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the sync server",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Serve,
	}
}

// Serve runs migrations against the authoritative database and starts the
// HTTP API.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db := r.db
	if db == nil {
		opened, err := shared.NewDatabase(config.Server.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open server database: %w", err)
		}
		defer opened.Close()
		db = opened
	}

	if err := shared.RunServerMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	srv := server.NewServer(server.NewStore(db), r.logger)

	r.logger.Info("sync server listening", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}
