package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/server"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Serve starts the transfer web service.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		return err
	}

	sessions := repositories.NewSessionRepository(db)
	songs := repositories.NewSongRepository(db)
	transfers := repositories.NewTransferRepository(db)

	spotifyAuth, err := services.NewSpotifyAuth(config.Credentials.Spotify)
	if err != nil {
		return err
	}
	youtubeAuth, err := services.NewYouTubeAuth(config.Credentials.YouTube)
	if err != nil {
		return err
	}

	source := func(ctx context.Context, tokenBlob string) (services.LibraryReader, error) {
		client, err := spotifyAuth.Client(ctx, tokenBlob)
		if err != nil {
			return nil, err
		}
		client.SetPageSize(config.Transfer.FetchPageSize)
		return client, nil
	}

	destination := func(ctx context.Context, tokenBlob string, onRefresh func(string)) (tasks.Destination, error) {
		client, err := youtubeAuth.Client(ctx, tokenBlob, onRefresh)
		if err != nil {
			return nil, err
		}
		client.SetMaxResults(config.Transfer.SearchMaxResults)
		return client, nil
	}

	engine := tasks.NewTransferEngine(tasks.EngineOpts{
		Sessions:     sessions,
		Songs:        songs,
		Transfers:    transfers,
		Source:       source,
		Destination:  destination,
		StepInterval: time.Duration(config.Transfer.StepIntervalMS) * time.Millisecond,
		Logger:       r.logger,
	})

	router := server.NewBasicRouter()
	router.Use(
		server.LoggingMiddleware(r.logger),
		server.SessionMiddleware(sessions, r.logger),
	)
	server.NewAPI(engine, sessions, r.logger).Register(router)
	server.NewAuth(spotifyAuth, youtubeAuth, sessions, r.logger).Register(router)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		time.Duration(config.Transfer.ShutdownTimeoutMS)*time.Millisecond,
	)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the transfer web service",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Serve,
	}
}
