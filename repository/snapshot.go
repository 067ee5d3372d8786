package repository

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"Bt1QMedia/model"
)

// Sequence names inside snapshot.Sequences.
const (
	seqUsers     = "users"
	seqTracks    = "tracks"
	seqPodcasts  = "podcasts"
	seqPlaylists = "playlists"
	seqEntries   = "playlist_entries"
	seqRecent    = "recently_played"
)

// snapshot is the whole catalog held in process memory. It backs both the memory
// store and the document store, whose on-disk layout is this struct as JSON.
// snapshot methods do no locking; callers serialize access.
type snapshot struct {
	Tracks          []*model.Track          `json:"tracks"`
	Podcasts        []*model.Podcast        `json:"podcasts"`
	Favorites       map[string][]int64      `json:"favorites"` // user id string -> track ids
	Users           []*model.User           `json:"users,omitempty"`
	Playlists       []*model.Playlist       `json:"playlists,omitempty"`
	PlaylistEntries []*model.PlaylistEntry  `json:"playlist_entries,omitempty"`
	RecentlyPlayed  []*model.RecentlyPlayed `json:"recently_played,omitempty"`
	Sequences       map[string]int64        `json:"sequences,omitempty"`
}

func newSnapshot() *snapshot {
	s := &snapshot{}
	s.normalize()
	return s
}

// normalize fills nil collections and derives missing sequences from the highest id,
// so documents that only carry tracks, podcasts and favorites load as-is.
func (s *snapshot) normalize() {
	if s.Tracks == nil {
		s.Tracks = []*model.Track{}
	}
	if s.Podcasts == nil {
		s.Podcasts = []*model.Podcast{}
	}
	if s.Favorites == nil {
		s.Favorites = map[string][]int64{}
	}
	if s.Sequences == nil {
		s.Sequences = map[string]int64{}
	}

	bump := func(name string, id int64) {
		if id > s.Sequences[name] {
			s.Sequences[name] = id
		}
	}
	for _, u := range s.Users {
		bump(seqUsers, u.ID)
	}
	for _, t := range s.Tracks {
		bump(seqTracks, t.ID)
	}
	for _, p := range s.Podcasts {
		bump(seqPodcasts, p.ID)
	}
	for _, p := range s.Playlists {
		bump(seqPlaylists, p.ID)
	}
	for _, e := range s.PlaylistEntries {
		bump(seqEntries, e.ID)
	}
	for _, r := range s.RecentlyPlayed {
		bump(seqRecent, r.ID)
	}
}

func (s *snapshot) nextID(name string) int64 {
	s.Sequences[name]++
	return s.Sequences[name]
}

// clone returns a deep copy. Entities are copied by value so the copy can be mutated freely.
func (s *snapshot) clone() *snapshot {
	c := &snapshot{
		Tracks:          make([]*model.Track, len(s.Tracks)),
		Podcasts:        make([]*model.Podcast, len(s.Podcasts)),
		Favorites:       make(map[string][]int64, len(s.Favorites)),
		Users:           make([]*model.User, len(s.Users)),
		Playlists:       make([]*model.Playlist, len(s.Playlists)),
		PlaylistEntries: make([]*model.PlaylistEntry, len(s.PlaylistEntries)),
		RecentlyPlayed:  make([]*model.RecentlyPlayed, len(s.RecentlyPlayed)),
		Sequences:       make(map[string]int64, len(s.Sequences)),
	}
	for i, v := range s.Tracks {
		cp := *v
		c.Tracks[i] = &cp
	}
	for i, v := range s.Podcasts {
		cp := *v
		c.Podcasts[i] = &cp
	}
	for k, v := range s.Favorites {
		c.Favorites[k] = append([]int64(nil), v...)
	}
	for i, v := range s.Users {
		cp := *v
		c.Users[i] = &cp
	}
	for i, v := range s.Playlists {
		cp := *v
		c.Playlists[i] = &cp
	}
	for i, v := range s.PlaylistEntries {
		cp := *v
		c.PlaylistEntries[i] = &cp
	}
	for i, v := range s.RecentlyPlayed {
		cp := *v
		c.RecentlyPlayed[i] = &cp
	}
	for k, v := range s.Sequences {
		c.Sequences[k] = v
	}
	return c
}

// ========== users ==========

func (s *snapshot) createUser(u *model.User) error {
	for _, existing := range s.Users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrDuplicateUser
		}
	}
	u.ID = s.nextID(seqUsers)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	cp := *u
	s.Users = append(s.Users, &cp)
	return nil
}

func (s *snapshot) findUser(match func(*model.User) bool) *model.User {
	for _, u := range s.Users {
		if match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

// ========== content ==========

func (s *snapshot) trackByID(id int64) *model.Track {
	for _, t := range s.Tracks {
		if t.ID == id {
			cp := *t
			return &cp
		}
	}
	return nil
}

func (s *snapshot) podcastByID(id int64) *model.Podcast {
	for _, p := range s.Podcasts {
		if p.ID == id {
			cp := *p
			return &cp
		}
	}
	return nil
}

func (s *snapshot) listTracks(match func(*model.Track) bool) []*model.Track {
	out := make([]*model.Track, 0, len(s.Tracks))
	for _, t := range s.Tracks {
		if match == nil || match(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *snapshot) listPodcasts(match func(*model.Podcast) bool) []*model.Podcast {
	out := make([]*model.Podcast, 0, len(s.Podcasts))
	for _, p := range s.Podcasts {
		if match == nil || match(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}

func (s *snapshot) searchTracks(query string) []*model.Track {
	q := strings.ToLower(query)
	return s.listTracks(func(t *model.Track) bool {
		return containsFold(t.Title, q) || containsFold(t.Artist, q)
	})
}

func (s *snapshot) searchPodcasts(query string) []*model.Podcast {
	q := strings.ToLower(query)
	return s.listPodcasts(func(p *model.Podcast) bool {
		return containsFold(p.Title, q) || containsFold(p.Host, q)
	})
}

func (s *snapshot) createTrack(t *model.Track) {
	t.ID = s.nextID(seqTracks)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	cp := *t
	s.Tracks = append(s.Tracks, &cp)
}

func (s *snapshot) createPodcast(p *model.Podcast) {
	p.ID = s.nextID(seqPodcasts)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cp := *p
	s.Podcasts = append(s.Podcasts, &cp)
}

func (s *snapshot) deleteTrack(id int64) error {
	for i, t := range s.Tracks {
		if t.ID == id {
			s.Tracks = append(s.Tracks[:i], s.Tracks[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *snapshot) deletePodcast(id int64) error {
	for i, p := range s.Podcasts {
		if p.ID == id {
			s.Podcasts = append(s.Podcasts[:i], s.Podcasts[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ========== playlists ==========

func (s *snapshot) createPlaylist(p *model.Playlist) {
	p.ID = s.nextID(seqPlaylists)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cp := *p
	s.Playlists = append(s.Playlists, &cp)
}

func (s *snapshot) playlistByID(id int64) *model.Playlist {
	for _, p := range s.Playlists {
		if p.ID == id {
			cp := *p
			return &cp
		}
	}
	return nil
}

func (s *snapshot) playlistsByUser(userID int64) []*model.Playlist {
	out := []*model.Playlist{}
	for _, p := range s.Playlists {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *snapshot) addEntry(e *model.PlaylistEntry) {
	e.ID = s.nextID(seqEntries)
	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now()
	}
	cp := *e
	s.PlaylistEntries = append(s.PlaylistEntries, &cp)
}

func (s *snapshot) entries(playlistID int64) []*model.PlaylistEntry {
	out := []*model.PlaylistEntry{}
	for _, e := range s.PlaylistEntries {
		if e.PlaylistID == playlistID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ========== history ==========

func (s *snapshot) addRecent(r *model.RecentlyPlayed) {
	r.ID = s.nextID(seqRecent)
	if r.PlayedAt.IsZero() {
		r.PlayedAt = time.Now()
	}
	cp := *r
	s.RecentlyPlayed = append(s.RecentlyPlayed, &cp)
}

func (s *snapshot) recent(userID int64, limit int) []*model.RecentlyPlayed {
	out := []*model.RecentlyPlayed{}
	for _, r := range s.RecentlyPlayed {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlayedAt.Equal(out[j].PlayedAt) {
			return out[i].PlayedAt.After(out[j].PlayedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ========== favorites ==========

func favoriteKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (s *snapshot) toggleFavorite(userID, trackID int64) (bool, error) {
	key := favoriteKey(userID)
	ids := s.Favorites[key]
	for i, id := range ids {
		if id == trackID {
			s.Favorites[key] = append(ids[:i], ids[i+1:]...)
			return false, nil
		}
	}
	if s.trackByID(trackID) == nil {
		return false, ErrNotFound
	}
	s.Favorites[key] = append(ids, trackID)
	return true, nil
}

func (s *snapshot) favoriteTracks(userID int64) []*model.Track {
	ids := s.Favorites[favoriteKey(userID)]
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return s.listTracks(func(t *model.Track) bool {
		_, ok := set[t.ID]
		return ok
	})
}
