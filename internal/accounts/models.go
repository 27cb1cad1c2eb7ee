package accounts

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned when registering an email that already has an
// account.
var ErrEmailTaken = errors.New("email already registered")

// ErrInvalidCredentials is returned on a failed login. It deliberately does
// not distinguish an unknown email from a wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

type User struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login"`
}

type Playlist struct {
	ID          string    `json:"playlist_id"`
	URL         string    `json:"playlist_url"`
	Title       string    `json:"playlist_title"`
	TotalVideos int       `json:"total_videos"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserPlaylist is a playlist joined with one user's completion progress.
type UserPlaylist struct {
	ID              string  `json:"playlist_id"`
	URL             string  `json:"playlist_url"`
	Title           string  `json:"playlist_title"`
	TotalVideos     int     `json:"total_videos"`
	CompletedVideos int     `json:"completed_videos"`
	ProgressPercent float64 `json:"progress_percentage"`
	FirstAccessed   string  `json:"first_accessed"`
	LastAccessed    string  `json:"last_accessed"`
}

// VideoProgress is one user's watch state for one video in a playlist.
type VideoProgress struct {
	VideoID        string  `json:"video_id"`
	WatchedSeconds float64 `json:"watchedSeconds"`
	Duration       float64 `json:"duration"`
	Completed      bool    `json:"completed"`
	LastUpdated    string  `json:"lastUpdated"`
}
