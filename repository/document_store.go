package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"Bt1QMedia/logger"
	"Bt1QMedia/model"

	"github.com/fsnotify/fsnotify"
)

// ErrStoreClosed is returned by operations on a closed DocumentStore.
var ErrStoreClosed = errors.New("document store closed")

type docOp struct {
	write  bool
	fn     func(s *snapshot) error
	result chan error
}

// DocumentStore persists the catalog as one JSON document.
// A single goroutine owns the state: writes are applied to a copy, the copy is
// written to a temp file and renamed over the document, and only then swapped in.
type DocumentStore struct {
	path    string
	ops     chan docOp
	reload  chan struct{}
	done    chan struct{}
	stopped chan struct{}
	watcher *fsnotify.Watcher
	once    sync.Once
}

var _ Store = (*DocumentStore)(nil)

// OpenDocumentStore loads (or creates) the document at path. With watch set,
// edits made to the file by other processes are picked up.
func OpenDocumentStore(path string, watch bool) (*DocumentStore, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create document directory: %w", err)
	}

	state, raw, err := loadDocument(path)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		if raw, err = writeDocument(path, state); err != nil {
			return nil, err
		}
	}

	d := &DocumentStore{
		path:    path,
		ops:     make(chan docOp),
		reload:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create document watcher: %w", err)
		}
		// Watch the directory: the rename on every write replaces the file's inode.
		if err := w.Add(filepath.Dir(path)); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
		}
		d.watcher = w
		go d.watch()
	}

	go d.loop(state, raw)
	return d, nil
}

// loadDocument returns a nil raw slice when the file does not exist yet.
func loadDocument(path string) (*snapshot, []byte, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return newSnapshot(), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	s := &snapshot{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, s); err != nil {
			return nil, nil, fmt.Errorf("failed to decode document %s: %w", path, err)
		}
	}
	s.normalize()
	return s, raw, nil
}

func writeDocument(path string, s *snapshot) ([]byte, error) {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp document: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to sync temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp document: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return nil, fmt.Errorf("failed to replace document: %w", err)
	}
	return raw, nil
}

func (d *DocumentStore) loop(state *snapshot, lastWritten []byte) {
	defer close(d.stopped)
	for {
		select {
		case <-d.done:
			return
		case op := <-d.ops:
			if !op.write {
				op.result <- op.fn(state)
				continue
			}
			next := state.clone()
			if err := op.fn(next); err != nil {
				op.result <- err
				continue
			}
			raw, err := writeDocument(d.path, next)
			if err != nil {
				op.result <- err
				continue
			}
			state, lastWritten = next, raw
			op.result <- nil
		case <-d.reload:
			fresh, raw, err := loadDocument(d.path)
			if err != nil {
				logger.Warn("document reload failed, keeping current state",
					logger.String("path", d.path), logger.ErrorField(err))
				continue
			}
			if raw == nil || bytes.Equal(raw, lastWritten) {
				continue
			}
			state, lastWritten = fresh, raw
			logger.Info("document reloaded after external change", logger.String("path", d.path))
		}
	}
}

func (d *DocumentStore) watch() {
	for {
		select {
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != d.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case d.reload <- struct{}{}:
			default:
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("document watcher error", logger.ErrorField(err))
		}
	}
}

func (d *DocumentStore) do(ctx context.Context, write bool, fn func(s *snapshot) error) error {
	op := docOp{write: write, fn: fn, result: make(chan error, 1)}
	select {
	case d.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		return ErrStoreClosed
	}
	// Once submitted the op runs to completion; wait so the caller sees its outcome.
	return <-op.result
}

func (d *DocumentStore) read(ctx context.Context, fn func(s *snapshot)) error {
	return d.do(ctx, false, func(s *snapshot) error {
		fn(s)
		return nil
	})
}

func (d *DocumentStore) write(ctx context.Context, fn func(s *snapshot) error) error {
	return d.do(ctx, true, fn)
}

func (d *DocumentStore) Ping(ctx context.Context) error {
	return d.read(ctx, func(*snapshot) {})
}

// Close stops the owner goroutine and the watcher.
func (d *DocumentStore) Close() error {
	var err error
	d.once.Do(func() {
		close(d.done)
		<-d.stopped
		if d.watcher != nil {
			err = d.watcher.Close()
		}
	})
	return err
}

// ========== users ==========

func (d *DocumentStore) CreateUser(ctx context.Context, user *model.User) error {
	// The caller's struct is only updated once the document has been written.
	u := *user
	err := d.write(ctx, func(s *snapshot) error {
		u = *user
		return s.createUser(&u)
	})
	if err == nil {
		*user = u
	}
	return err
}

func (d *DocumentStore) GetUserByID(ctx context.Context, id int64) (user *model.User, err error) {
	err = d.read(ctx, func(s *snapshot) {
		user = s.findUser(func(u *model.User) bool { return u.ID == id })
	})
	return user, err
}

func (d *DocumentStore) GetUserByUsername(ctx context.Context, username string) (user *model.User, err error) {
	err = d.read(ctx, func(s *snapshot) {
		user = s.findUser(func(u *model.User) bool { return u.Username == username })
	})
	return user, err
}

func (d *DocumentStore) GetUserByEmail(ctx context.Context, email string) (user *model.User, err error) {
	err = d.read(ctx, func(s *snapshot) {
		user = s.findUser(func(u *model.User) bool { return u.Email == email })
	})
	return user, err
}

// ========== content ==========

func (d *DocumentStore) ListTracks(ctx context.Context) (tracks []*model.Track, err error) {
	err = d.read(ctx, func(s *snapshot) { tracks = s.listTracks(nil) })
	return tracks, err
}

func (d *DocumentStore) ListPodcasts(ctx context.Context) (podcasts []*model.Podcast, err error) {
	err = d.read(ctx, func(s *snapshot) { podcasts = s.listPodcasts(nil) })
	return podcasts, err
}

func (d *DocumentStore) SearchTracks(ctx context.Context, query string) (tracks []*model.Track, err error) {
	err = d.read(ctx, func(s *snapshot) { tracks = s.searchTracks(query) })
	return tracks, err
}

func (d *DocumentStore) SearchPodcasts(ctx context.Context, query string) (podcasts []*model.Podcast, err error) {
	err = d.read(ctx, func(s *snapshot) { podcasts = s.searchPodcasts(query) })
	return podcasts, err
}

func (d *DocumentStore) GetTrack(ctx context.Context, id int64) (track *model.Track, err error) {
	err = d.read(ctx, func(s *snapshot) { track = s.trackByID(id) })
	return track, err
}

func (d *DocumentStore) GetPodcast(ctx context.Context, id int64) (podcast *model.Podcast, err error) {
	err = d.read(ctx, func(s *snapshot) { podcast = s.podcastByID(id) })
	return podcast, err
}

func (d *DocumentStore) CreateTrack(ctx context.Context, track *model.Track) error {
	t := *track
	err := d.write(ctx, func(s *snapshot) error {
		t = *track
		s.createTrack(&t)
		return nil
	})
	if err == nil {
		*track = t
	}
	return err
}

func (d *DocumentStore) CreatePodcast(ctx context.Context, podcast *model.Podcast) error {
	p := *podcast
	err := d.write(ctx, func(s *snapshot) error {
		p = *podcast
		s.createPodcast(&p)
		return nil
	})
	if err == nil {
		*podcast = p
	}
	return err
}

func (d *DocumentStore) DeleteTrack(ctx context.Context, id int64) error {
	return d.write(ctx, func(s *snapshot) error { return s.deleteTrack(id) })
}

func (d *DocumentStore) DeletePodcast(ctx context.Context, id int64) error {
	return d.write(ctx, func(s *snapshot) error { return s.deletePodcast(id) })
}

func (d *DocumentStore) CountContent(ctx context.Context) (n int64, err error) {
	err = d.read(ctx, func(s *snapshot) { n = int64(len(s.Tracks) + len(s.Podcasts)) })
	return n, err
}

// ========== playlists ==========

func (d *DocumentStore) CreatePlaylist(ctx context.Context, playlist *model.Playlist) error {
	p := *playlist
	err := d.write(ctx, func(s *snapshot) error {
		p = *playlist
		s.createPlaylist(&p)
		return nil
	})
	if err == nil {
		*playlist = p
	}
	return err
}

func (d *DocumentStore) GetPlaylist(ctx context.Context, id int64) (playlist *model.Playlist, err error) {
	err = d.read(ctx, func(s *snapshot) { playlist = s.playlistByID(id) })
	return playlist, err
}

func (d *DocumentStore) ListPlaylistsByUser(ctx context.Context, userID int64) (playlists []*model.Playlist, err error) {
	err = d.read(ctx, func(s *snapshot) { playlists = s.playlistsByUser(userID) })
	return playlists, err
}

func (d *DocumentStore) AddPlaylistEntry(ctx context.Context, entry *model.PlaylistEntry) error {
	e := *entry
	err := d.write(ctx, func(s *snapshot) error {
		e = *entry
		s.addEntry(&e)
		return nil
	})
	if err == nil {
		*entry = e
	}
	return err
}

func (d *DocumentStore) ListPlaylistEntries(ctx context.Context, playlistID int64) (entries []*model.PlaylistEntry, err error) {
	err = d.read(ctx, func(s *snapshot) { entries = s.entries(playlistID) })
	return entries, err
}

// ========== history ==========

func (d *DocumentStore) AddRecentlyPlayed(ctx context.Context, rp *model.RecentlyPlayed) error {
	r := *rp
	err := d.write(ctx, func(s *snapshot) error {
		r = *rp
		s.addRecent(&r)
		return nil
	})
	if err == nil {
		*rp = r
	}
	return err
}

func (d *DocumentStore) ListRecentlyPlayed(ctx context.Context, userID int64, limit int) (items []*model.RecentlyPlayed, err error) {
	err = d.read(ctx, func(s *snapshot) { items = s.recent(userID, limit) })
	return items, err
}

// ========== favorites ==========

func (d *DocumentStore) ToggleFavorite(ctx context.Context, userID, trackID int64) (bool, error) {
	var added bool
	err := d.write(ctx, func(s *snapshot) error {
		var err error
		added, err = s.toggleFavorite(userID, trackID)
		return err
	})
	return added, err
}

func (d *DocumentStore) ListFavoriteTracks(ctx context.Context, userID int64) (tracks []*model.Track, err error) {
	err = d.read(ctx, func(s *snapshot) { tracks = s.favoriteTracks(userID) })
	return tracks, err
}
