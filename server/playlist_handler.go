package server

import (
	"net/http"

	"Bt1QMedia/core/apperr"
	"Bt1QMedia/core/playlist"
	"Bt1QMedia/model"
)

// ContentRequest names one track or one podcast.
type ContentRequest struct {
	TrackID   *int64 `json:"track_id"`
	PodcastID *int64 `json:"podcast_id"`
}

// Ref converts the request into a content reference. Exactly one id must be set.
func (c ContentRequest) Ref() (model.ContentRef, error) {
	switch {
	case c.TrackID != nil && c.PodcastID != nil:
		return model.ContentRef{}, apperr.BadRequestf("Provide either track_id or podcast_id, not both")
	case c.TrackID != nil:
		return model.TrackRef(*c.TrackID), nil
	case c.PodcastID != nil:
		return model.PodcastRef(*c.PodcastID), nil
	default:
		return model.ContentRef{}, apperr.BadRequestf("Either track_id or podcast_id is required")
	}
}

func callerOf(r *http.Request) playlist.Caller {
	u := currentUser(r)
	return playlist.Caller{UserID: u.ID, IsAdmin: u.IsAdmin}
}

func (s *Server) listPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.playlists.ListPlaylists(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) createPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.playlists.CreatePlaylist(r.Context(), currentUser(r).ID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": p.ID, "name": p.Name})
}

func (s *Server) listPlaylistItemsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.playlists.ListPlaylistItems(r.Context(), callerOf(r), pathID(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) addPlaylistItemHandler(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ref, err := req.Ref()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.playlists.AddToPlaylist(r.Context(), callerOf(r), pathID(r, "id"), ref); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Content added to playlist")
}

func (s *Server) listRecentlyPlayedHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.playlists.ListRecentlyPlayed(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) recordPlayedHandler(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ref, err := req.Ref()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.playlists.RecordPlayed(r.Context(), currentUser(r).ID, ref); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Recently played updated")
}
