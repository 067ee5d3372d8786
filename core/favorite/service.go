package favorite

import (
	"context"
	"errors"

	"Bt1QMedia/core/apperr"
	"Bt1QMedia/model"
	"Bt1QMedia/repository"
)

// Toggle outcomes.
const (
	Added   = "added"
	Removed = "removed"
)

// Service toggles and lists favorite tracks.
type Service struct {
	favorites repository.FavoriteRepository
}

func NewService(favorites repository.FavoriteRepository) *Service {
	return &Service{favorites: favorites}
}

// Toggle adds the track to the user's favorites, or removes it if it is already there.
// Removing an id whose track was deleted is allowed; adding a missing track is not.
func (s *Service) Toggle(ctx context.Context, userID, trackID int64) (string, error) {
	if trackID <= 0 {
		return "", apperr.BadRequestf("track_id is required")
	}
	added, err := s.favorites.ToggleFavorite(ctx, userID, trackID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", apperr.NotFoundf("Track not found")
	}
	if err != nil {
		return "", apperr.Wrap(err, "failed to toggle favorite")
	}
	if added {
		return Added, nil
	}
	return Removed, nil
}

// List returns the user's favorite tracks ordered by id.
func (s *Service) List(ctx context.Context, userID int64) ([]*model.Track, error) {
	tracks, err := s.favorites.ListFavoriteTracks(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list favorites")
	}
	return tracks, nil
}
