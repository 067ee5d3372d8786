package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ContentType tags a playable item.
type ContentType string

const (
	ContentTrack   ContentType = "track"
	ContentPodcast ContentType = "podcast"
)

// ParseContentType accepts "track"/"podcast" and their plural route forms.
func ParseContentType(s string) (ContentType, bool) {
	switch strings.ToLower(s) {
	case "track", "tracks":
		return ContentTrack, true
	case "podcast", "podcasts":
		return ContentPodcast, true
	}
	return "", false
}

// ContentRef points at exactly one track or podcast.
type ContentRef struct {
	Type ContentType `json:"type" gorm:"column:content_type;type:varchar(16);not null"`
	ID   int64       `json:"id" gorm:"column:content_id;not null"`
}

func TrackRef(id int64) ContentRef   { return ContentRef{Type: ContentTrack, ID: id} }
func PodcastRef(id int64) ContentRef { return ContentRef{Type: ContentPodcast, ID: id} }

func (r ContentRef) String() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

// Valid reports whether the ref names a known type and a positive id.
func (r ContentRef) Valid() bool {
	return (r.Type == ContentTrack || r.Type == ContentPodcast) && r.ID > 0
}

// Track is a music file in the catalog.
type Track struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Title     string    `json:"title" gorm:"type:varchar(255);not null"`
	Artist    string    `json:"artist" gorm:"type:varchar(255);not null"`
	FilePath  string    `json:"file_path" gorm:"type:varchar(512);not null"`
	Duration  int       `json:"duration" gorm:"not null;default:0"` // seconds
	Category  string    `json:"category" gorm:"type:varchar(100);not null;default:''"`
	CreatedAt time.Time `json:"created_at"`
}

func (Track) TableName() string {
	return "tracks"
}

// MarshalJSON adds the "type" tag listings carry.
func (t Track) MarshalJSON() ([]byte, error) {
	type plain Track
	return json.Marshal(struct {
		plain
		Type ContentType `json:"type"`
	}{plain(t), ContentTrack})
}

// Podcast is a spoken-word episode in the catalog.
type Podcast struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Title       string    `json:"title" gorm:"type:varchar(255);not null"`
	Host        string    `json:"host" gorm:"type:varchar(255);not null"`
	FilePath    string    `json:"file_path" gorm:"type:varchar(512);not null"`
	Duration    int       `json:"duration" gorm:"not null;default:0"`
	PodcastName string    `json:"podcast_name" gorm:"type:varchar(255);not null;default:''"`
	Category    string    `json:"category" gorm:"type:varchar(100);not null;default:''"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Podcast) TableName() string {
	return "podcasts"
}

func (p Podcast) MarshalJSON() ([]byte, error) {
	type plain Podcast
	return json.Marshal(struct {
		plain
		Type ContentType `json:"type"`
	}{plain(p), ContentPodcast})
}

// ContentSummary is the shape returned by search and playlist listings.
type ContentSummary struct {
	ID     int64       `json:"id"`
	Title  string      `json:"title"`
	Artist string      `json:"artist,omitempty"`
	Host   string      `json:"host,omitempty"`
	Type   ContentType `json:"type"`
}

func (t *Track) Summary() ContentSummary {
	return ContentSummary{ID: t.ID, Title: t.Title, Artist: t.Artist, Type: ContentTrack}
}

func (p *Podcast) Summary() ContentSummary {
	return ContentSummary{ID: p.ID, Title: p.Title, Host: p.Host, Type: ContentPodcast}
}

// NewContent carries the admin supplied fields for a track or podcast.
// For podcasts Artist is stored as the host.
type NewContent struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	FilePath    string `json:"file_path"`
	Duration    int    `json:"duration"`
	Category    string `json:"category"`
	PodcastName string `json:"podcast_name"`
}
