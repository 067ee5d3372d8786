package server

import (
	"net/http"

	"Bt1QMedia/core/apperr"
	"Bt1QMedia/core/favorite"
)

// favoritesOwner returns the {userId} path value if the caller may act on it.
func favoritesOwner(r *http.Request) (int64, error) {
	userID := pathID(r, "userId")
	caller := currentUser(r)
	if caller.ID != userID && !caller.IsAdmin {
		return 0, apperr.Forbiddenf("Not your favorites")
	}
	return userID, nil
}

func (s *Server) listFavoritesHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := favoritesOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tracks, err := s.favorites.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) toggleFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := favoritesOwner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		TrackID int64 `json:"track_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	status, err := s.favorites.Toggle(r.Context(), userID, req.TrackID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := "Added to favorites"
	if status == favorite.Removed {
		msg = "Removed from favorites"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg, "status": status})
}
