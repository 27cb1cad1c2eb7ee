package accounts

import (
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestCreateAndAuthenticate(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateUser("alex@example.com", "Alex", "hunter22"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	u, err := s.Authenticate("alex@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if u.Email != "alex@example.com" || u.Name != "Alex" {
		t.Errorf("user = %+v", u)
	}

	if _, err := s.Authenticate("alex@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v", err)
	}
	if _, err := s.Authenticate("nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: err = %v", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateUser("alex@example.com", "Alex", "pw"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateUser("alex@example.com", "Other", "pw2"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email: err = %v", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetUser("ghost@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPlaylistLifecycle(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateUser("alex@example.com", "Alex", "pw"); err != nil {
		t.Fatal(err)
	}
	pl := Playlist{ID: "PL123", URL: "https://example.com/playlist", Title: "Go Basics", TotalVideos: 4}
	if err := s.UpsertPlaylist(pl); err != nil {
		t.Fatalf("UpsertPlaylist: %v", err)
	}
	if err := s.LinkUserPlaylist("alex@example.com", "PL123"); err != nil {
		t.Fatalf("LinkUserPlaylist: %v", err)
	}

	// Two of four videos completed -> 50%.
	for i, done := range []bool{true, true, false} {
		err := s.SaveProgress("alex@example.com", "PL123", VideoProgress{
			VideoID:        string(rune('a' + i)),
			WatchedSeconds: 30,
			Duration:       60,
			Completed:      done,
		})
		if err != nil {
			t.Fatalf("SaveProgress: %v", err)
		}
	}

	lists, err := s.UserPlaylists("alex@example.com")
	if err != nil {
		t.Fatalf("UserPlaylists: %v", err)
	}
	if len(lists) != 1 {
		t.Fatalf("got %d playlists", len(lists))
	}
	got := lists[0]
	if got.Title != "Go Basics" || got.CompletedVideos != 2 || got.ProgressPercent != 50 {
		t.Errorf("playlist = %+v", got)
	}

	progress, err := s.PlaylistProgress("alex@example.com", "PL123")
	if err != nil {
		t.Fatalf("PlaylistProgress: %v", err)
	}
	if len(progress) != 3 || !progress["a"].Completed || progress["c"].Completed {
		t.Errorf("progress = %+v", progress)
	}

	if err := s.UnlinkUserPlaylist("alex@example.com", "PL123"); err != nil {
		t.Fatalf("UnlinkUserPlaylist: %v", err)
	}
	lists, err = s.UserPlaylists("alex@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(lists) != 0 {
		t.Errorf("playlists after unlink = %+v", lists)
	}
	progress, err = s.PlaylistProgress("alex@example.com", "PL123")
	if err != nil {
		t.Fatal(err)
	}
	if len(progress) != 0 {
		t.Errorf("progress after unlink = %+v", progress)
	}
}

func TestSaveProgressUpsert(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateUser("alex@example.com", "Alex", "pw"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertPlaylist(Playlist{ID: "PL1", URL: "u", Title: "t", TotalVideos: 1}); err != nil {
		t.Fatal(err)
	}

	p := VideoProgress{VideoID: "vid", WatchedSeconds: 10, Duration: 100}
	if err := s.SaveProgress("alex@example.com", "PL1", p); err != nil {
		t.Fatal(err)
	}
	p.WatchedSeconds = 95
	p.Completed = true
	if err := s.SaveProgress("alex@example.com", "PL1", p); err != nil {
		t.Fatal(err)
	}

	progress, err := s.PlaylistProgress("alex@example.com", "PL1")
	if err != nil {
		t.Fatal(err)
	}
	got := progress["vid"]
	if got.WatchedSeconds != 95 || !got.Completed {
		t.Errorf("progress = %+v", got)
	}
}
