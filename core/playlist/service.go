package playlist

import (
	"context"
	"strings"
	"time"

	"Bt1QMedia/core/apperr"
	"Bt1QMedia/logger"
	"Bt1QMedia/model"
	"Bt1QMedia/repository"
)

// ContentResolver looks up catalog items referenced by playlists and history.
type ContentResolver interface {
	Resolve(ctx context.Context, ref model.ContentRef) (*model.ContentSummary, error)
}

// Caller identifies who is acting.
type Caller struct {
	UserID  int64
	IsAdmin bool
}

// RecentItem is one recently played entry.
type RecentItem struct {
	model.ContentSummary
	PlayedAt time.Time `json:"played_at"`
}

// Service implements playlists and play history.
type Service struct {
	playlists repository.PlaylistRepository
	history   repository.HistoryRepository
	content   ContentResolver
	now       func() time.Time
}

func NewService(playlists repository.PlaylistRepository, history repository.HistoryRepository, content ContentResolver) *Service {
	return &Service{playlists: playlists, history: history, content: content, now: time.Now}
}

// CreatePlaylist creates an empty playlist owned by userID.
func (s *Service) CreatePlaylist(ctx context.Context, userID int64, name string) (*model.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.BadRequestf("Playlist name is required")
	}
	p := &model.Playlist{Name: name, UserID: userID, CreatedAt: s.now()}
	if err := s.playlists.CreatePlaylist(ctx, p); err != nil {
		return nil, apperr.Wrap(err, "failed to create playlist")
	}
	logger.Info("[Playlist] created", logger.Int64("playlistId", p.ID), logger.Int64("userId", userID))
	return p, nil
}

// ListPlaylists returns the playlists owned by userID, ordered by id.
func (s *Service) ListPlaylists(ctx context.Context, userID int64) ([]*model.Playlist, error) {
	playlists, err := s.playlists.ListPlaylistsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list playlists")
	}
	return playlists, nil
}

// owned loads the playlist and checks that the caller may use it.
func (s *Service) owned(ctx context.Context, caller Caller, playlistID int64) (*model.Playlist, error) {
	p, err := s.playlists.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load playlist")
	}
	if p == nil {
		return nil, apperr.NotFoundf("Playlist not found")
	}
	if p.UserID != caller.UserID && !caller.IsAdmin {
		return nil, apperr.Forbiddenf("Not your playlist")
	}
	return p, nil
}

func (s *Service) mustExist(ctx context.Context, ref model.ContentRef) error {
	if !ref.Valid() {
		return apperr.BadRequestf("Either track_id or podcast_id is required")
	}
	sum, err := s.content.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if sum == nil {
		return apperr.NotFoundf("Content not found")
	}
	return nil
}

// AddToPlaylist appends ref to the playlist.
func (s *Service) AddToPlaylist(ctx context.Context, caller Caller, playlistID int64, ref model.ContentRef) error {
	if _, err := s.owned(ctx, caller, playlistID); err != nil {
		return err
	}
	if err := s.mustExist(ctx, ref); err != nil {
		return err
	}
	entry := &model.PlaylistEntry{PlaylistID: playlistID, Content: ref, AddedAt: s.now()}
	if err := s.playlists.AddPlaylistEntry(ctx, entry); err != nil {
		return apperr.Wrap(err, "failed to add to playlist")
	}
	return nil
}

// ListPlaylistItems returns the playlist's content in append order.
// Entries whose track or podcast has since been deleted are skipped.
func (s *Service) ListPlaylistItems(ctx context.Context, caller Caller, playlistID int64) ([]model.ContentSummary, error) {
	if _, err := s.owned(ctx, caller, playlistID); err != nil {
		return nil, err
	}
	entries, err := s.playlists.ListPlaylistEntries(ctx, playlistID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list playlist entries")
	}
	items := make([]model.ContentSummary, 0, len(entries))
	for _, e := range entries {
		sum, err := s.content.Resolve(ctx, e.Content)
		if err != nil {
			return nil, err
		}
		if sum == nil {
			continue
		}
		items = append(items, *sum)
	}
	return items, nil
}

// RecordPlayed appends a play event; repeated plays are all kept.
func (s *Service) RecordPlayed(ctx context.Context, userID int64, ref model.ContentRef) error {
	if err := s.mustExist(ctx, ref); err != nil {
		return err
	}
	rp := &model.RecentlyPlayed{UserID: userID, Content: ref, PlayedAt: s.now()}
	if err := s.history.AddRecentlyPlayed(ctx, rp); err != nil {
		return apperr.Wrap(err, "failed to record play")
	}
	return nil
}

// ListRecentlyPlayed returns up to ten plays, most recent first.
func (s *Service) ListRecentlyPlayed(ctx context.Context, userID int64) ([]RecentItem, error) {
	plays, err := s.history.ListRecentlyPlayed(ctx, userID, model.RecentLimit)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list recently played")
	}
	items := make([]RecentItem, 0, len(plays))
	for _, p := range plays {
		sum, err := s.content.Resolve(ctx, p.Content)
		if err != nil {
			return nil, err
		}
		if sum == nil {
			continue
		}
		items = append(items, RecentItem{ContentSummary: *sum, PlayedAt: p.PlayedAt})
	}
	return items, nil
}
