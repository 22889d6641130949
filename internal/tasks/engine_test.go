package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	testhelpers "github.com/desertthunder/tunesync/internal/testing"
)

// testEnv bundles an engine wired to an in-memory database with mock
// source and destination services.
type testEnv struct {
	db          *sql.DB
	engine      *TransferEngine
	sessions    *repositories.SessionRepository
	songs       *repositories.SongRepository
	transfers   *repositories.TransferRepository
	reader      *testhelpers.MockReader
	destination *testhelpers.MockDestination
}

func setupEngine(t *testing.T) *testEnv {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:          db,
		sessions:    repositories.NewSessionRepository(db),
		songs:       repositories.NewSongRepository(db),
		transfers:   repositories.NewTransferRepository(db),
		reader:      &testhelpers.MockReader{},
		destination: &testhelpers.MockDestination{},
	}

	env.engine = NewTransferEngine(EngineOpts{
		Sessions:  env.sessions,
		Songs:     env.songs,
		Transfers: env.transfers,
		Source: func(ctx context.Context, tokenBlob string) (services.LibraryReader, error) {
			return env.reader, nil
		},
		Destination: func(ctx context.Context, tokenBlob string, onRefresh func(string)) (Destination, error) {
			return env.destination, nil
		},
		StepInterval: time.Millisecond,
	})

	return env
}

// connect stores token blobs so the session counts as connected.
func (env *testEnv) connect(t *testing.T, sessionID string, spotify, youtube bool) {
	t.Helper()

	if _, err := env.sessions.GetOrCreate(sessionID); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if spotify {
		if err := env.sessions.UpdateSpotifyToken(sessionID, `{"access_token":"sp"}`, "user"); err != nil {
			t.Fatalf("failed to store spotify token: %v", err)
		}
	}
	if youtube {
		if err := env.sessions.UpdateYouTubeToken(sessionID, `{"access_token":"yt"}`); err != nil {
			t.Fatalf("failed to store youtube token: %v", err)
		}
	}
}

func TestFetchSongs(t *testing.T) {
	ctx := context.Background()

	t.Run("ReplacesSnapshot", func(t *testing.T) {
		env := setupEngine(t)
		env.connect(t, "sess-1", true, false)
		env.reader.Songs = testhelpers.SongFixtures(3)

		songs, err := env.engine.FetchSongs(ctx, "sess-1")
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if len(songs) != 3 {
			t.Fatalf("expected 3 songs, got %d", len(songs))
		}

		// A second fetch replaces, never appends.
		env.reader.Songs = testhelpers.SongFixtures(2)
		songs, err = env.engine.FetchSongs(ctx, "sess-1")
		if err != nil {
			t.Fatalf("second fetch failed: %v", err)
		}
		if len(songs) != 2 {
			t.Fatalf("snapshot should be replaced, got %d songs", len(songs))
		}
	})

	t.Run("RequiresSpotify", func(t *testing.T) {
		env := setupEngine(t)
		env.connect(t, "sess-1", false, true)

		_, err := env.engine.FetchSongs(ctx, "sess-1")
		if err == nil {
			t.Fatal("expected error without a spotify credential")
		}
	})

	t.Run("RejectedDuringActiveTransfer", func(t *testing.T) {
		env := setupEngine(t)
		env.connect(t, "sess-1", true, true)
		env.reader.Songs = testhelpers.SongFixtures(2)

		if _, err := env.engine.FetchSongs(ctx, "sess-1"); err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if _, err := env.engine.Start(ctx, "sess-1", "Mix"); err != nil {
			t.Fatalf("start failed: %v", err)
		}

		if _, err := env.engine.FetchSongs(ctx, "sess-1"); err != shared.ErrTransferInProgress {
			t.Fatalf("expected ErrTransferInProgress, got %v", err)
		}

		// Completing the transfer lifts the guard.
		for i := 0; i < 2; i++ {
			if _, err := env.engine.Step(ctx, "sess-1"); err != nil {
				t.Fatalf("step %d failed: %v", i, err)
			}
		}
		if _, err := env.engine.FetchSongs(ctx, "sess-1"); err != nil {
			t.Fatalf("fetch after completion failed: %v", err)
		}
	})
}

func TestStartTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesPlaylistAndTransfer", func(t *testing.T) {
		env := setupEngine(t)
		env.connect(t, "sess-1", true, true)
		env.reader.Songs = testhelpers.SongFixtures(3)

		if _, err := env.engine.FetchSongs(ctx, "sess-1"); err != nil {
			t.Fatalf("fetch failed: %v", err)
		}

		transfer, err := env.engine.Start(ctx, "sess-1", "My Mix")
		if err != nil {
			t.Fatalf("start failed: %v", err)
		}
		if transfer.PlaylistID != "PL-test" {
			t.Errorf("expected playlist id from destination, got %q", transfer.PlaylistID)
		}
		if transfer.PlaylistName != "My Mix" {
			t.Errorf("expected given playlist name, got %q", transfer.PlaylistName)
		}
		if transfer.Total != 3 {
			t.Errorf("total should be fixed to snapshot size, got %d", transfer.Total)
		}
		if transfer.Status != models.TransferPending {
			t.Errorf("new transfer should be pending, got %q", transfer.Status)
		}
		if env.destination.CreateCalls != 1 {
			t.Errorf("expected one playlist creation, got %d", env.destination.CreateCalls)
		}
	})

	t.Run("DefaultPlaylistName", func(t *testing.T) {
		env := setupEngine(t)
		env.connect(t, "sess-1", true, true)
		env.reader.Songs = testhelpers.SongFixtures(1)

		if _, err := env.engine.FetchSongs(ctx, "sess-1"); err != nil {
			t.Fatalf("fetch failed: %v", err)
		}

		transfer, err := env.engine.Start(ctx, "sess-1", "")
		if err != nil {
			t.Fatalf("start failed: %v", err)
		}
		want := fmt.Sprintf("Spotify Liked Songs - %s", time.Now().Format("2006-01-02"))
		if transfer.PlaylistName != want {
			t.Errorf("expected dated default name %q, got %q", want, transfer.PlaylistName)
		}
	})

	t.Run("EmptySnapshot", func(t *testing.T) {
		env := setupEngine(t)
		env.connect(t, "sess-1", true, true)

		if _, err := env.engine.Start(ctx, "sess-1", "Mix"); err != shared.ErrEmptyLibrary {
			t.Fatalf("expected ErrEmptyLibrary, got %v", err)
		}
	})

	t.Run("RequiresBothServices", func(t *testing.T) {
		env := setupEngine(t)
		env.connect(t, "sess-1", true, false)

		if _, err := env.engine.Start(ctx, "sess-1", "Mix"); err == nil {
			t.Fatal("expected error without a youtube credential")
		}
	})

	t.Run("PlaylistCreationFailure", func(t *testing.T) {
		env := setupEngine(t)
		env.connect(t, "sess-1", true, true)
		env.reader.Songs = testhelpers.SongFixtures(1)
		env.destination.CreateFunc = func(title, description string) (string, error) {
			return "", fmt.Errorf("quota exceeded")
		}

		if _, err := env.engine.FetchSongs(ctx, "sess-1"); err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if _, err := env.engine.Start(ctx, "sess-1", "Mix"); err == nil {
			t.Fatal("expected error when playlist creation fails")
		}
		if _, err := env.transfers.Latest("sess-1"); err != sql.ErrNoRows {
			t.Error("no transfer row should exist when playlist creation fails")
		}
	})
}

// startTransfer fetches a snapshot of n songs and starts a transfer.
func startTransfer(t *testing.T, env *testEnv, sessionID string, n int) *models.Transfer {
	t.Helper()
	ctx := context.Background()

	env.connect(t, sessionID, true, true)
	env.reader.Songs = testhelpers.SongFixtures(n)

	if _, err := env.engine.FetchSongs(ctx, sessionID); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	transfer, err := env.engine.Start(ctx, sessionID, "Mix")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return transfer
}

func TestStep(t *testing.T) {
	ctx := context.Background()

	t.Run("RunToCompletion", func(t *testing.T) {
		env := setupEngine(t)
		transfer := startTransfer(t, env, "sess-1", 3)

		for i := 0; i < 3; i++ {
			out, err := env.engine.Step(ctx, "sess-1")
			if err != nil {
				t.Fatalf("step %d failed: %v", i, err)
			}
			if out.Progress.Current != i+1 {
				t.Errorf("step %d: expected cursor %d, got %d", i, i+1, out.Progress.Current)
			}
			if out.Result.Status != models.ResultSuccess {
				t.Errorf("step %d: expected success, got %q", i, out.Result.Status)
			}
			wantSong := fmt.Sprintf("Song %d", i+1)
			if out.Result.Song.Title != wantSong {
				t.Errorf("step %d: expected %q, got %q", i, wantSong, out.Result.Song.Title)
			}
			if out.Completed != (i == 2) {
				t.Errorf("step %d: completed = %v", i, out.Completed)
			}

			// Counter invariant holds after every step.
			current, err := env.transfers.Get(transfer.ID)
			if err != nil {
				t.Fatalf("failed to reload transfer: %v", err)
			}
			if err := current.Validate(); err != nil {
				t.Errorf("step %d: %v", i, err)
			}
			ledger, _ := env.transfers.CountResults(transfer.ID)
			if ledger != current.Processed {
				t.Errorf("step %d: ledger length %d != processed %d", i, ledger, current.Processed)
			}
		}

		// A step past the end is an explicit completion error.
		if _, err := env.engine.Step(ctx, "sess-1"); err != shared.ErrTransferComplete {
			t.Fatalf("expected ErrTransferComplete, got %v", err)
		}

		if env.destination.AddCalls != 3 {
			t.Errorf("expected 3 playlist appends, got %d", env.destination.AddCalls)
		}
	})

	t.Run("NotFoundAdvancesCursor", func(t *testing.T) {
		env := setupEngine(t)
		transfer := startTransfer(t, env, "sess-1", 2)

		env.destination.SearchFunc = func(title, artist string) (*models.VideoMatch, error) {
			if title == "Song 1" {
				return nil, nil
			}
			return &models.VideoMatch{VideoID: "vid-2", Title: title, Channel: artist}, nil
		}

		out, err := env.engine.Step(ctx, "sess-1")
		if err != nil {
			t.Fatalf("step failed: %v", err)
		}
		if out.Result.Status != models.ResultNotFound {
			t.Errorf("expected not_found, got %q", out.Result.Status)
		}
		if out.Result.Match != nil {
			t.Error("not_found must carry no match")
		}
		if out.Progress.Current != 1 || out.Progress.Failed != 1 {
			t.Errorf("cursor should advance on not_found: %+v", out.Progress)
		}
		if env.destination.AddCalls != 0 {
			t.Error("no append should happen without a match")
		}

		out, err = env.engine.Step(ctx, "sess-1")
		if err != nil {
			t.Fatalf("second step failed: %v", err)
		}
		if out.Result.Status != models.ResultSuccess || !out.Completed {
			t.Errorf("second step should succeed and complete: %+v", out)
		}

		final, _ := env.transfers.Get(transfer.ID)
		if final.Successful != 1 || final.Failed != 1 {
			t.Errorf("expected 1/1 split, got %d/%d", final.Successful, final.Failed)
		}
	})

	t.Run("SearchErrorDegradesToNotFound", func(t *testing.T) {
		env := setupEngine(t)
		startTransfer(t, env, "sess-1", 1)

		env.destination.SearchFunc = func(title, artist string) (*models.VideoMatch, error) {
			return nil, fmt.Errorf("search backend down")
		}

		out, err := env.engine.Step(ctx, "sess-1")
		if err != nil {
			t.Fatalf("step must not fail on a search error: %v", err)
		}
		if out.Result.Status != models.ResultNotFound {
			t.Errorf("expected not_found, got %q", out.Result.Status)
		}
		if out.Progress.Current != 1 {
			t.Error("cursor should still advance")
		}
	})

	t.Run("AddFailureRecordsMatch", func(t *testing.T) {
		env := setupEngine(t)
		transfer := startTransfer(t, env, "sess-1", 1)

		env.destination.AddFunc = func(playlistID, videoID string) error {
			return fmt.Errorf("append rejected")
		}

		out, err := env.engine.Step(ctx, "sess-1")
		if err != nil {
			t.Fatalf("step must not fail on an append error: %v", err)
		}
		if out.Result.Status != models.ResultAddFailed {
			t.Errorf("expected add_failed, got %q", out.Result.Status)
		}
		if out.Result.Match == nil {
			t.Fatal("add_failed must keep the match metadata")
		}
		if out.Result.AddedToPlaylist {
			t.Error("add_failed must not be marked as added")
		}

		results, err := env.transfers.ListResults(transfer.ID)
		if err != nil {
			t.Fatalf("failed to list results: %v", err)
		}
		if len(results) != 1 || results[0].Match == nil {
			t.Fatal("ledger row should record the found match")
		}
	})

	t.Run("NoActiveTransfer", func(t *testing.T) {
		env := setupEngine(t)
		env.connect(t, "sess-1", true, true)

		if _, err := env.engine.Step(ctx, "sess-1"); err != shared.ErrNoActiveTransfer {
			t.Fatalf("expected ErrNoActiveTransfer, got %v", err)
		}
	})

	t.Run("RequiresYouTube", func(t *testing.T) {
		env := setupEngine(t)
		startTransfer(t, env, "sess-1", 1)

		if err := env.sessions.Disconnect("sess-1", repositories.ServiceYouTube); err != nil {
			t.Fatalf("disconnect failed: %v", err)
		}
		if _, err := env.engine.Step(ctx, "sess-1"); err == nil {
			t.Fatal("expected error without a youtube credential")
		}
	})
}

func TestStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("NoActiveTransfer", func(t *testing.T) {
		env := setupEngine(t)
		env.connect(t, "sess-1", true, true)

		if _, err := env.engine.Status("sess-1"); err != shared.ErrNoActiveTransfer {
			t.Fatalf("expected ErrNoActiveTransfer, got %v", err)
		}
	})

	t.Run("ReadIsIdempotent", func(t *testing.T) {
		env := setupEngine(t)
		startTransfer(t, env, "sess-1", 3)

		if _, err := env.engine.Step(ctx, "sess-1"); err != nil {
			t.Fatalf("step failed: %v", err)
		}

		first, err := env.engine.Status("sess-1")
		if err != nil {
			t.Fatalf("status failed: %v", err)
		}
		second, err := env.engine.Status("sess-1")
		if err != nil {
			t.Fatalf("second status failed: %v", err)
		}

		if first.Progress != second.Progress {
			t.Errorf("status reads must not change state: %+v vs %+v", first.Progress, second.Progress)
		}
		if len(first.Results) != 1 || len(second.Results) != 1 {
			t.Errorf("expected 1 ledger row in both reads, got %d and %d", len(first.Results), len(second.Results))
		}
	})

	t.Run("ProgressPercentage", func(t *testing.T) {
		env := setupEngine(t)
		startTransfer(t, env, "sess-1", 4)

		if _, err := env.engine.Step(ctx, "sess-1"); err != nil {
			t.Fatalf("step failed: %v", err)
		}

		out, err := env.engine.Status("sess-1")
		if err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if out.Progress.Percentage != 25 {
			t.Errorf("expected 25%%, got %v", out.Progress.Percentage)
		}
		if out.Completed {
			t.Error("transfer should not be completed")
		}
		if out.PlaylistID != "PL-test" || out.PlaylistName != "Mix" {
			t.Errorf("playlist identity should round-trip: %q %q", out.PlaylistID, out.PlaylistName)
		}
	})
}
