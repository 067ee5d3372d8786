package model

import "time"

// Playlist is a named list owned by one user.
type Playlist struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	UserID    int64     `json:"user_id" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (Playlist) TableName() string {
	return "playlists"
}

// PlaylistEntry is one appended item; append order is id order.
type PlaylistEntry struct {
	ID         int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	PlaylistID int64      `json:"playlist_id" gorm:"index;not null"`
	Content    ContentRef `json:"content" gorm:"embedded"`
	AddedAt    time.Time  `json:"added_at"`
}

func (PlaylistEntry) TableName() string {
	return "playlist_entries"
}

// RecentlyPlayed records one play event.
type RecentlyPlayed struct {
	ID       int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID   int64      `json:"user_id" gorm:"index:idx_recent_user_played,priority:1;not null"`
	Content  ContentRef `json:"content" gorm:"embedded"`
	PlayedAt time.Time  `json:"played_at" gorm:"index:idx_recent_user_played,priority:2;not null"`
}

func (RecentlyPlayed) TableName() string {
	return "recently_played"
}

// Favorite marks a track as favorited by a user.
type Favorite struct {
	UserID    int64     `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	TrackID   int64     `json:"track_id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `json:"created_at"`
}

func (Favorite) TableName() string {
	return "favorites"
}

// RecentLimit caps recently played listings.
const RecentLimit = 10

// AllModels lists every persisted entity for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&User{}, &Track{}, &Podcast{}, &Playlist{}, &PlaylistEntry{}, &RecentlyPlayed{}, &Favorite{},
	}
}
