package repository

import (
	"context"
	"sync"

	"Bt1QMedia/model"
)

// MemoryStore keeps everything in process memory. Data is lost on restart.
type MemoryStore struct {
	mu sync.RWMutex
	s  *snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{s: newSnapshot()}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) read(fn func(s *snapshot)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.s)
}

func (m *MemoryStore) write(fn func(s *snapshot) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.s)
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close() error { return nil }

// ========== users ==========

func (m *MemoryStore) CreateUser(ctx context.Context, user *model.User) error {
	return m.write(func(s *snapshot) error { return s.createUser(user) })
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id int64) (user *model.User, err error) {
	m.read(func(s *snapshot) {
		user = s.findUser(func(u *model.User) bool { return u.ID == id })
	})
	return user, nil
}

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (user *model.User, err error) {
	m.read(func(s *snapshot) {
		user = s.findUser(func(u *model.User) bool { return u.Username == username })
	})
	return user, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (user *model.User, err error) {
	m.read(func(s *snapshot) {
		user = s.findUser(func(u *model.User) bool { return u.Email == email })
	})
	return user, nil
}

// ========== content ==========

func (m *MemoryStore) ListTracks(ctx context.Context) (tracks []*model.Track, err error) {
	m.read(func(s *snapshot) { tracks = s.listTracks(nil) })
	return tracks, nil
}

func (m *MemoryStore) ListPodcasts(ctx context.Context) (podcasts []*model.Podcast, err error) {
	m.read(func(s *snapshot) { podcasts = s.listPodcasts(nil) })
	return podcasts, nil
}

func (m *MemoryStore) SearchTracks(ctx context.Context, query string) (tracks []*model.Track, err error) {
	m.read(func(s *snapshot) { tracks = s.searchTracks(query) })
	return tracks, nil
}

func (m *MemoryStore) SearchPodcasts(ctx context.Context, query string) (podcasts []*model.Podcast, err error) {
	m.read(func(s *snapshot) { podcasts = s.searchPodcasts(query) })
	return podcasts, nil
}

func (m *MemoryStore) GetTrack(ctx context.Context, id int64) (track *model.Track, err error) {
	m.read(func(s *snapshot) { track = s.trackByID(id) })
	return track, nil
}

func (m *MemoryStore) GetPodcast(ctx context.Context, id int64) (podcast *model.Podcast, err error) {
	m.read(func(s *snapshot) { podcast = s.podcastByID(id) })
	return podcast, nil
}

func (m *MemoryStore) CreateTrack(ctx context.Context, track *model.Track) error {
	return m.write(func(s *snapshot) error {
		s.createTrack(track)
		return nil
	})
}

func (m *MemoryStore) CreatePodcast(ctx context.Context, podcast *model.Podcast) error {
	return m.write(func(s *snapshot) error {
		s.createPodcast(podcast)
		return nil
	})
}

func (m *MemoryStore) DeleteTrack(ctx context.Context, id int64) error {
	return m.write(func(s *snapshot) error { return s.deleteTrack(id) })
}

func (m *MemoryStore) DeletePodcast(ctx context.Context, id int64) error {
	return m.write(func(s *snapshot) error { return s.deletePodcast(id) })
}

func (m *MemoryStore) CountContent(ctx context.Context) (n int64, err error) {
	m.read(func(s *snapshot) { n = int64(len(s.Tracks) + len(s.Podcasts)) })
	return n, nil
}

// ========== playlists ==========

func (m *MemoryStore) CreatePlaylist(ctx context.Context, playlist *model.Playlist) error {
	return m.write(func(s *snapshot) error {
		s.createPlaylist(playlist)
		return nil
	})
}

func (m *MemoryStore) GetPlaylist(ctx context.Context, id int64) (playlist *model.Playlist, err error) {
	m.read(func(s *snapshot) { playlist = s.playlistByID(id) })
	return playlist, nil
}

func (m *MemoryStore) ListPlaylistsByUser(ctx context.Context, userID int64) (playlists []*model.Playlist, err error) {
	m.read(func(s *snapshot) { playlists = s.playlistsByUser(userID) })
	return playlists, nil
}

func (m *MemoryStore) AddPlaylistEntry(ctx context.Context, entry *model.PlaylistEntry) error {
	return m.write(func(s *snapshot) error {
		s.addEntry(entry)
		return nil
	})
}

func (m *MemoryStore) ListPlaylistEntries(ctx context.Context, playlistID int64) (entries []*model.PlaylistEntry, err error) {
	m.read(func(s *snapshot) { entries = s.entries(playlistID) })
	return entries, nil
}

// ========== history ==========

func (m *MemoryStore) AddRecentlyPlayed(ctx context.Context, rp *model.RecentlyPlayed) error {
	return m.write(func(s *snapshot) error {
		s.addRecent(rp)
		return nil
	})
}

func (m *MemoryStore) ListRecentlyPlayed(ctx context.Context, userID int64, limit int) (items []*model.RecentlyPlayed, err error) {
	m.read(func(s *snapshot) { items = s.recent(userID, limit) })
	return items, nil
}

// ========== favorites ==========

func (m *MemoryStore) ToggleFavorite(ctx context.Context, userID, trackID int64) (added bool, err error) {
	err = m.write(func(s *snapshot) error {
		added, err = s.toggleFavorite(userID, trackID)
		return err
	})
	return added, err
}

func (m *MemoryStore) ListFavoriteTracks(ctx context.Context, userID int64) (tracks []*model.Track, err error) {
	m.read(func(s *snapshot) { tracks = s.favoriteTracks(userID) })
	return tracks, nil
}
