package repository

import (
	"context"
	"errors"

	"Bt1QMedia/model"
)

var (
	// ErrNotFound is returned by mutations that target a missing row.
	// Lookups return (nil, nil) instead.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateUser is returned when a username or email is already taken.
	ErrDuplicateUser = errors.New("username or email already exists")
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// ContentRepository stores tracks and podcasts. Listings are ordered by id.
type ContentRepository interface {
	ListTracks(ctx context.Context) ([]*model.Track, error)
	ListPodcasts(ctx context.Context) ([]*model.Podcast, error)
	// SearchTracks matches title or artist, case-insensitively, as a plain substring.
	SearchTracks(ctx context.Context, query string) ([]*model.Track, error)
	// SearchPodcasts matches title or host.
	SearchPodcasts(ctx context.Context, query string) ([]*model.Podcast, error)
	GetTrack(ctx context.Context, id int64) (*model.Track, error)
	GetPodcast(ctx context.Context, id int64) (*model.Podcast, error)
	CreateTrack(ctx context.Context, track *model.Track) error
	CreatePodcast(ctx context.Context, podcast *model.Podcast) error
	DeleteTrack(ctx context.Context, id int64) error
	DeletePodcast(ctx context.Context, id int64) error
	CountContent(ctx context.Context) (int64, error)
}

// PlaylistRepository stores playlists and their entries.
type PlaylistRepository interface {
	CreatePlaylist(ctx context.Context, playlist *model.Playlist) error
	GetPlaylist(ctx context.Context, id int64) (*model.Playlist, error)
	ListPlaylistsByUser(ctx context.Context, userID int64) ([]*model.Playlist, error)
	AddPlaylistEntry(ctx context.Context, entry *model.PlaylistEntry) error
	// ListPlaylistEntries returns entries in append order.
	ListPlaylistEntries(ctx context.Context, playlistID int64) ([]*model.PlaylistEntry, error)
}

// HistoryRepository stores play events.
type HistoryRepository interface {
	AddRecentlyPlayed(ctx context.Context, rp *model.RecentlyPlayed) error
	// ListRecentlyPlayed returns at most limit events, newest first, ties broken by id descending.
	ListRecentlyPlayed(ctx context.Context, userID int64, limit int) ([]*model.RecentlyPlayed, error)
}

// FavoriteRepository stores favorite tracks.
type FavoriteRepository interface {
	// ToggleFavorite removes the favorite if present, otherwise adds it, as one atomic step.
	// Adding a track that does not exist returns ErrNotFound.
	ToggleFavorite(ctx context.Context, userID, trackID int64) (added bool, err error)
	ListFavoriteTracks(ctx context.Context, userID int64) ([]*model.Track, error)
}

// Store is the full persistence surface the services depend on.
type Store interface {
	UserRepository
	ContentRepository
	PlaylistRepository
	HistoryRepository
	FavoriteRepository

	Ping(ctx context.Context) error
	Close() error
}
