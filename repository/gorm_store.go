package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"Bt1QMedia/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store over a relational database through GORM.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore wraps an open GORM connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the underlying connection for migrations and seeding.
func (r *GormStore) DB() *gorm.DB {
	return r.db
}

func (r *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormStore) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// first loads one row into dest and maps "no row" to (false, nil).
func first(db *gorm.DB, dest interface{}, query string, args ...interface{}) (bool, error) {
	err := db.Where(query, args...).First(dest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// likePattern builds a case-insensitive substring pattern in which % and _ match literally.
func likePattern(query string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(strings.ToLower(query)) + "%"
}

// ========== users ==========

func (r *GormStore) CreateUser(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *GormStore) getUser(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	ok, err := first(r.db.WithContext(ctx), &user, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (r *GormStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getUser(ctx, "id = ?", id)
}

func (r *GormStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getUser(ctx, "username = ?", username)
}

func (r *GormStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx, "email = ?", email)
}

// ========== content ==========

func (r *GormStore) ListTracks(ctx context.Context) ([]*model.Track, error) {
	var tracks []*model.Track
	if err := r.db.WithContext(ctx).Order("id").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return tracks, nil
}

func (r *GormStore) ListPodcasts(ctx context.Context) ([]*model.Podcast, error) {
	var podcasts []*model.Podcast
	if err := r.db.WithContext(ctx).Order("id").Find(&podcasts).Error; err != nil {
		return nil, fmt.Errorf("failed to list podcasts: %w", err)
	}
	return podcasts, nil
}

func (r *GormStore) SearchTracks(ctx context.Context, query string) ([]*model.Track, error) {
	pattern := likePattern(query)
	var tracks []*model.Track
	err := r.db.WithContext(ctx).
		Where("LOWER(title) LIKE ? ESCAPE '!' OR LOWER(artist) LIKE ? ESCAPE '!'", pattern, pattern).
		Order("id").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}
	return tracks, nil
}

func (r *GormStore) SearchPodcasts(ctx context.Context, query string) ([]*model.Podcast, error) {
	pattern := likePattern(query)
	var podcasts []*model.Podcast
	err := r.db.WithContext(ctx).
		Where("LOWER(title) LIKE ? ESCAPE '!' OR LOWER(host) LIKE ? ESCAPE '!'", pattern, pattern).
		Order("id").
		Find(&podcasts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search podcasts: %w", err)
	}
	return podcasts, nil
}

func (r *GormStore) GetTrack(ctx context.Context, id int64) (*model.Track, error) {
	var track model.Track
	ok, err := first(r.db.WithContext(ctx), &track, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get track %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return &track, nil
}

func (r *GormStore) GetPodcast(ctx context.Context, id int64) (*model.Podcast, error) {
	var podcast model.Podcast
	ok, err := first(r.db.WithContext(ctx), &podcast, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get podcast %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return &podcast, nil
}

func (r *GormStore) CreateTrack(ctx context.Context, track *model.Track) error {
	if err := r.db.WithContext(ctx).Create(track).Error; err != nil {
		return fmt.Errorf("failed to create track: %w", err)
	}
	return nil
}

func (r *GormStore) CreatePodcast(ctx context.Context, podcast *model.Podcast) error {
	if err := r.db.WithContext(ctx).Create(podcast).Error; err != nil {
		return fmt.Errorf("failed to create podcast: %w", err)
	}
	return nil
}

func (r *GormStore) DeleteTrack(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Track{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete track %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormStore) DeletePodcast(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Podcast{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete podcast %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormStore) CountContent(ctx context.Context) (int64, error) {
	var tracks, podcasts int64
	if err := r.db.WithContext(ctx).Model(&model.Track{}).Count(&tracks).Error; err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&model.Podcast{}).Count(&podcasts).Error; err != nil {
		return 0, fmt.Errorf("failed to count podcasts: %w", err)
	}
	return tracks + podcasts, nil
}

// ========== playlists ==========

func (r *GormStore) CreatePlaylist(ctx context.Context, playlist *model.Playlist) error {
	if err := r.db.WithContext(ctx).Create(playlist).Error; err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	return nil
}

func (r *GormStore) GetPlaylist(ctx context.Context, id int64) (*model.Playlist, error) {
	var playlist model.Playlist
	ok, err := first(r.db.WithContext(ctx), &playlist, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return &playlist, nil
}

func (r *GormStore) ListPlaylistsByUser(ctx context.Context, userID int64) ([]*model.Playlist, error) {
	var playlists []*model.Playlist
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&playlists).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists for user %d: %w", userID, err)
	}
	return playlists, nil
}

func (r *GormStore) AddPlaylistEntry(ctx context.Context, entry *model.PlaylistEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to add playlist entry: %w", err)
	}
	return nil
}

func (r *GormStore) ListPlaylistEntries(ctx context.Context, playlistID int64) ([]*model.PlaylistEntry, error) {
	var entries []*model.PlaylistEntry
	err := r.db.WithContext(ctx).Where("playlist_id = ?", playlistID).Order("id").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list entries of playlist %d: %w", playlistID, err)
	}
	return entries, nil
}

// ========== history ==========

func (r *GormStore) AddRecentlyPlayed(ctx context.Context, rp *model.RecentlyPlayed) error {
	if err := r.db.WithContext(ctx).Create(rp).Error; err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	return nil
}

func (r *GormStore) ListRecentlyPlayed(ctx context.Context, userID int64, limit int) ([]*model.RecentlyPlayed, error) {
	var items []*model.RecentlyPlayed
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("played_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list recently played for user %d: %w", userID, err)
	}
	return items, nil
}

// ========== favorites ==========

func (r *GormStore) ToggleFavorite(ctx context.Context, userID, trackID int64) (bool, error) {
	var added bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND track_id = ?", userID, trackID).Delete(&model.Favorite{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			added = false
			return nil
		}

		var count int64
		if err := tx.Model(&model.Track{}).Where("id = ?", trackID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}

		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.Favorite{UserID: userID, TrackID: trackID})
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			// A concurrent toggle inserted the row first; this toggle removes it.
			if err := tx.Where("user_id = ? AND track_id = ?", userID, trackID).Delete(&model.Favorite{}).Error; err != nil {
				return err
			}
			added = false
			return nil
		}
		added = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, err
		}
		return false, fmt.Errorf("failed to toggle favorite: %w", err)
	}
	return added, nil
}

func (r *GormStore) ListFavoriteTracks(ctx context.Context, userID int64) ([]*model.Track, error) {
	var tracks []*model.Track
	err := r.db.WithContext(ctx).
		Joins("JOIN favorites ON favorites.track_id = tracks.id").
		Where("favorites.user_id = ?", userID).
		Order("tracks.id").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites for user %d: %w", userID, err)
	}
	return tracks, nil
}
