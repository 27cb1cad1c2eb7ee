package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/1Usman7/Codio-Final-Year-Project/internal/accounts"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func handleRegister(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Email == "" || req.Name == "" || req.Password == "" {
			httpError(w, http.StatusBadRequest, "email, name and password are required")
			return
		}

		err := deps.Accounts.CreateUser(req.Email, req.Name, req.Password)
		if errors.Is(err, accounts.ErrEmailTaken) {
			httpError(w, http.StatusConflict, "Email already registered")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to create user: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"message": "User created successfully",
		})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func handleLogin(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		user, err := deps.Accounts.Authenticate(req.Email, req.Password)
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			httpError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Login failed: %v", err)
			return
		}

		access, err := deps.Auth.AccessToken(user.Email, user.Name)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to issue token: %v", err)
			return
		}
		refresh, err := deps.Auth.RefreshToken(user.Email)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to issue token: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"access_token":  access,
			"refresh_token": refresh,
			"user": map[string]string{
				"email": user.Email,
				"name":  user.Name,
			},
		})
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func handleRefresh(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		id, err := deps.Auth.Verify(req.RefreshToken, auth.TypeRefresh)
		if err != nil {
			httpError(w, http.StatusUnauthorized, "Invalid refresh token: %v", err)
			return
		}

		// Re-resolve the account so a renamed or deleted user is reflected.
		user, err := deps.Accounts.GetUser(id.Email)
		if errors.Is(err, accounts.ErrNotFound) {
			httpError(w, http.StatusUnauthorized, "Account no longer exists")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Refresh failed: %v", err)
			return
		}

		access, err := deps.Auth.AccessToken(user.Email, user.Name)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to issue token: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"access_token": access,
		})
	}
}

func handleMe(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.IdentityFrom(r.Context())

		user, err := deps.Accounts.GetUser(id.Email)
		if errors.Is(err, accounts.ErrNotFound) {
			httpError(w, http.StatusNotFound, "Account not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to load account: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"user":    user,
		})
	}
}

type trackPlaylistRequest struct {
	PlaylistID  string `json:"playlist_id"`
	PlaylistURL string `json:"playlist_url"`
	Title       string `json:"playlist_title"`
	TotalVideos int    `json:"total_videos"`
}

func handleTrackPlaylist(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.IdentityFrom(r.Context())

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req trackPlaylistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.PlaylistID == "" {
			httpError(w, http.StatusBadRequest, "playlist_id is required")
			return
		}

		err := deps.Accounts.UpsertPlaylist(accounts.Playlist{
			ID:          req.PlaylistID,
			URL:         req.PlaylistURL,
			Title:       req.Title,
			TotalVideos: req.TotalVideos,
		})
		if err == nil {
			err = deps.Accounts.LinkUserPlaylist(id.Email, req.PlaylistID)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to track playlist: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Playlist tracked",
		})
	}
}

func handleUserPlaylists(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.IdentityFrom(r.Context())

		playlists, err := deps.Accounts.UserPlaylists(id.Email)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to list playlists: %v", err)
			return
		}
		if playlists == nil {
			playlists = []accounts.UserPlaylist{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"playlists": playlists,
		})
	}
}

func handleUntrackPlaylist(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.IdentityFrom(r.Context())
		playlistID := chi.URLParam(r, "playlistID")

		if err := deps.Accounts.UnlinkUserPlaylist(id.Email, playlistID); err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to remove playlist: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Playlist removed",
		})
	}
}

type saveProgressRequest struct {
	PlaylistID     string  `json:"playlist_id"`
	VideoID        string  `json:"video_id"`
	WatchedSeconds float64 `json:"watched_seconds"`
	Duration       float64 `json:"duration"`
	Completed      bool    `json:"completed"`
}

func handleSaveProgress(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.IdentityFrom(r.Context())

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req saveProgressRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.PlaylistID == "" || req.VideoID == "" {
			httpError(w, http.StatusBadRequest, "playlist_id and video_id are required")
			return
		}

		err := deps.Accounts.SaveProgress(id.Email, req.PlaylistID, accounts.VideoProgress{
			VideoID:        req.VideoID,
			WatchedSeconds: req.WatchedSeconds,
			Duration:       req.Duration,
			Completed:      req.Completed,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to save progress: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Progress saved",
		})
	}
}

func handleGetProgress(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.IdentityFrom(r.Context())
		playlistID := chi.URLParam(r, "playlistID")

		progress, err := deps.Accounts.PlaylistProgress(id.Email, playlistID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to load progress: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"progress": progress,
		})
	}
}
