// Package accounts stores user accounts, playlist subscriptions, and
// per-video watch progress in SQLite.
package accounts

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for users, playlists, and
// watch progress.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "codio.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Users ---

// CreateUser registers a new account with a bcrypt-hashed password.
func (s *Store) CreateUser(email, name, password string) error {
	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE email = ?", email).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(
		"INSERT INTO users (email, name, password_hash, created_at, last_login) VALUES (?, ?, ?, ?, ?)",
		email, name, string(hash), now, now,
	)
	return err
}

// Authenticate verifies the credentials, updates last_login on success, and
// returns the user. Any mismatch yields ErrInvalidCredentials.
func (s *Store) Authenticate(email, password string) (User, error) {
	var u User
	var hash, createdAt, lastLogin string
	err := s.db.QueryRow(
		"SELECT email, name, password_hash, created_at, last_login FROM users WHERE email = ?", email,
	).Scan(&u.Email, &u.Name, &hash, &createdAt, &lastLogin)
	if err == sql.ErrNoRows {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if _, err := s.db.Exec("UPDATE users SET last_login = ? WHERE email = ?", now.Format(time.RFC3339), email); err != nil {
		return User{}, err
	}

	if u.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return User{}, fmt.Errorf("parsing created_at: %w", err)
	}
	u.LastLogin = now
	return u, nil
}

// GetUser returns the account for email.
func (s *Store) GetUser(email string) (User, error) {
	var u User
	var createdAt, lastLogin string
	err := s.db.QueryRow(
		"SELECT email, name, created_at, last_login FROM users WHERE email = ?", email,
	).Scan(&u.Email, &u.Name, &createdAt, &lastLogin)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return User{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if u.LastLogin, err = time.Parse(time.RFC3339, lastLogin); err != nil {
		return User{}, fmt.Errorf("parsing last_login: %w", err)
	}
	return u, nil
}

// --- Playlists ---

// UpsertPlaylist inserts or refreshes playlist metadata.
func (s *Store) UpsertPlaylist(p Playlist) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO playlists (playlist_id, playlist_url, playlist_title, total_videos, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(playlist_id) DO UPDATE SET
			playlist_url = excluded.playlist_url,
			playlist_title = excluded.playlist_title,
			total_videos = excluded.total_videos,
			updated_at = excluded.updated_at`,
		p.ID, p.URL, p.Title, p.TotalVideos, now, now,
	)
	return err
}

// LinkUserPlaylist records that a user accessed a playlist, creating the
// link on first access and bumping last_accessed afterwards.
func (s *Store) LinkUserPlaylist(email, playlistID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO user_playlists (user_email, playlist_id, first_accessed, last_accessed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_email, playlist_id) DO UPDATE SET last_accessed = excluded.last_accessed`,
		email, playlistID, now, now,
	)
	return err
}

// UserPlaylists returns the user's playlists with completion percentages,
// most recently accessed first.
func (s *Store) UserPlaylists(email string) ([]UserPlaylist, error) {
	rows, err := s.db.Query(`
		SELECT
			p.playlist_id, p.playlist_url, p.playlist_title, p.total_videos,
			up.first_accessed, up.last_accessed,
			COUNT(CASE WHEN vp.completed = 1 THEN 1 END) AS completed_videos
		FROM playlists p
		JOIN user_playlists up ON p.playlist_id = up.playlist_id
		LEFT JOIN video_progress vp ON p.playlist_id = vp.playlist_id
			AND vp.user_email = up.user_email
		WHERE up.user_email = ?
		GROUP BY p.playlist_id
		ORDER BY up.last_accessed DESC`, email,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []UserPlaylist
	for rows.Next() {
		var pl UserPlaylist
		if err := rows.Scan(&pl.ID, &pl.URL, &pl.Title, &pl.TotalVideos,
			&pl.FirstAccessed, &pl.LastAccessed, &pl.CompletedVideos); err != nil {
			return nil, err
		}
		if pl.TotalVideos > 0 {
			pct := float64(pl.CompletedVideos) / float64(pl.TotalVideos) * 100
			pl.ProgressPercent = float64(int(pct*10+0.5)) / 10
		}
		results = append(results, pl)
	}
	return results, rows.Err()
}

// UnlinkUserPlaylist removes a playlist from a user's list along with its
// progress records. The playlist row itself is shared and stays.
func (s *Store) UnlinkUserPlaylist(email, playlistID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM user_playlists WHERE user_email = ? AND playlist_id = ?", email, playlistID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM video_progress WHERE user_email = ? AND playlist_id = ?", email, playlistID); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Video progress ---

// SaveProgress inserts or updates one video's watch state.
func (s *Store) SaveProgress(email, playlistID string, p VideoProgress) error {
	completed := 0
	if p.Completed {
		completed = 1
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO video_progress (user_email, playlist_id, video_id, watched_seconds, duration, completed, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_email, playlist_id, video_id) DO UPDATE SET
			watched_seconds = excluded.watched_seconds,
			duration = excluded.duration,
			completed = excluded.completed,
			last_updated = excluded.last_updated`,
		email, playlistID, p.VideoID, p.WatchedSeconds, p.Duration, completed, now,
	)
	return err
}

// PlaylistProgress returns the user's watch state for every video in the
// playlist, keyed by video id.
func (s *Store) PlaylistProgress(email, playlistID string) (map[string]VideoProgress, error) {
	rows, err := s.db.Query(`
		SELECT video_id, watched_seconds, duration, completed, last_updated
		FROM video_progress
		WHERE user_email = ? AND playlist_id = ?`, email, playlistID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]VideoProgress)
	for rows.Next() {
		var p VideoProgress
		var completed int
		if err := rows.Scan(&p.VideoID, &p.WatchedSeconds, &p.Duration, &completed, &p.LastUpdated); err != nil {
			return nil, err
		}
		p.Completed = completed == 1
		result[p.VideoID] = p
	}
	return result, rows.Err()
}
