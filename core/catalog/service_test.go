package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"Bt1QMedia/core/apperr"
	"Bt1QMedia/core/events"
	"Bt1QMedia/model"
	"Bt1QMedia/repository"
	"Bt1QMedia/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu          sync.Mutex
	data        map[string][]byte
	gen         int
	invalidated int
	failGet     bool
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Key(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("%d:%s", c.gen, name), nil
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return false, errors.New("redis down")
	}
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	c.data[key] = raw
	return err
}

func (c *mapCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.invalidated++
	return nil
}

// slowTracks blocks the first ListTracks call until release is closed.
type slowTracks struct {
	*repository.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *slowTracks) ListTracks(ctx context.Context) ([]*model.Track, error) {
	tracks, err := s.MemoryStore.ListTracks(ctx)
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return tracks, err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(evt events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

type fixture struct {
	svc     *Service
	store   *repository.MemoryStore
	objects *storage.LocalStore
	cache   *mapCache
	pub     *recordingPublisher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	objects, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	f := &fixture{store: store, objects: objects, cache: newMapCache(), pub: &recordingPublisher{}}
	opts = append([]Option{WithCache(f.cache), WithEvents(f.pub)}, opts...)
	f.svc = NewService(store, objects, opts...)
	return f
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.AddContent(ctx, model.NewContent{Title: "Sample Song 1", Artist: "Artist 1", FilePath: "sample1.mp3", Duration: 180, Category: "Pop"}, false)
	require.NoError(t, err)
	_, err = f.svc.AddContent(ctx, model.NewContent{Title: "Sample Song 2", Artist: "Artist 2", FilePath: "sample2.mp3", Duration: 210, Category: "Rock"}, false)
	require.NoError(t, err)
	_, err = f.svc.AddContent(ctx, model.NewContent{Title: "Tech Talk Ep1", Artist: "Tech Host", FilePath: "podcast1.mp3", Duration: 1800, PodcastName: "Tech Talk", Category: "Technology"}, true)
	require.NoError(t, err)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	tests := []struct {
		query string
		want  []model.ContentSummary
	}{
		{"tech", []model.ContentSummary{{ID: 1, Title: "Tech Talk Ep1", Host: "Tech Host", Type: model.ContentPodcast}}},
		{"ARTIST 2", []model.ContentSummary{{ID: 2, Title: "Sample Song 2", Artist: "Artist 2", Type: model.ContentTrack}}},
		{"zzz-no-match", []model.ContentSummary{}},
		{"%", []model.ContentSummary{}},
		{"_", []model.ContentSummary{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := f.svc.Search(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchTracksFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.AddContent(ctx, model.NewContent{Title: "Jazz Hour", Artist: "Host", FilePath: "p.mp3"}, true)
	require.NoError(t, err)
	_, err = f.svc.AddContent(ctx, model.NewContent{Title: "Jazz Song", Artist: "Band", FilePath: "t.mp3"}, false)
	require.NoError(t, err)

	got, err := f.svc.Search(ctx, "jazz")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.ContentTrack, got[0].Type)
	assert.Equal(t, model.ContentPodcast, got[1].Type)
}

func TestAddContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.AddContent(ctx, model.NewContent{Title: "x", Artist: "y"}, false)
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	id, err := f.svc.AddContent(ctx, model.NewContent{Title: "Ep", Artist: "Host", FilePath: "ep.mp3"}, true)
	require.NoError(t, err)
	p, err := f.store.GetPodcast(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Host", p.Host)
	assert.Equal(t, 0, p.Duration)
	assert.Equal(t, "", p.Category)
	assert.Equal(t, "", p.PodcastName)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, events.ContentAdded, f.pub.events[0].Type)
	assert.Equal(t, 1, f.cache.invalidated)
}

func TestListUsesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	tracks, err := f.svc.ListTracks(ctx)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Contains(t, f.cache.data, fmt.Sprintf("%d:tracks", f.cache.gen))

	// A write behind the service's back is invisible until invalidation.
	require.NoError(t, f.store.CreateTrack(ctx, &model.Track{Title: "Hidden", Artist: "A", FilePath: "h.mp3"}))
	tracks, err = f.svc.ListTracks(ctx)
	require.NoError(t, err)
	assert.Len(t, tracks, 2)

	require.NoError(t, f.svc.DeleteContent(ctx, "track", 1))
	tracks, err = f.svc.ListTracks(ctx)
	require.NoError(t, err)
	assert.Len(t, tracks, 2)
	assert.Equal(t, "Sample Song 2", tracks[0].Title)
}

func TestListRacingWriteDoesNotCacheStaleResult(t *testing.T) {
	ctx := context.Background()
	store := &slowTracks{MemoryStore: repository.NewMemoryStore(), entered: make(chan struct{}), release: make(chan struct{})}
	objects, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	c := newMapCache()
	svc := NewService(store, objects, WithCache(c))

	done := make(chan []*model.Track)
	go func() {
		tracks, err := svc.ListTracks(ctx)
		assert.NoError(t, err)
		done <- tracks
	}()

	<-store.entered
	_, err = svc.AddContent(ctx, model.NewContent{Title: "Fresh", Artist: "A", FilePath: "fresh.mp3"}, false)
	require.NoError(t, err)
	close(store.release)
	assert.Empty(t, <-done)

	tracks, err := svc.ListTracks(ctx)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Fresh", tracks[0].Title)
}

func TestCacheFailureFallsThrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	f.cache.failGet = true

	podcasts, err := f.svc.ListPodcasts(ctx)
	require.NoError(t, err)
	assert.Len(t, podcasts, 1)
}

func TestDeleteAndStream(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	require.NoError(t, f.objects.Put(ctx, "sample1.mp3", strings.NewReader("mp3-bytes"), 9, "audio/mpeg"))

	st, err := f.svc.StreamContent(ctx, "track", 1)
	require.NoError(t, err)
	data, err := io.ReadAll(st.Body)
	st.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "mp3-bytes", string(data))
	assert.Equal(t, "audio/mpeg", st.ContentType)

	// Row exists but the file does not.
	_, err = f.svc.StreamContent(ctx, "track", 2)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	require.NoError(t, f.svc.DeleteContent(ctx, "track", 1))
	_, err = f.svc.StreamContent(ctx, "track", 1)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	err = f.svc.DeleteContent(ctx, "track", 1)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	err = f.svc.DeleteContent(ctx, "video", 1)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	_, err = f.svc.StreamContent(ctx, "video", 1)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	require.NoError(t, f.svc.DeleteContent(ctx, "podcasts", 1))
	last := f.pub.events[len(f.pub.events)-1]
	assert.Equal(t, events.ContentDeleted, last.Type)
	assert.Equal(t, model.PodcastRef(1), last.Content)
}

func TestStreamRejectsEscapingPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.AddContent(ctx, model.NewContent{Title: "x", Artist: "y", FilePath: "../../etc/passwd"}, false)
	require.NoError(t, err)

	_, err = f.svc.StreamContent(ctx, "track", 1)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "My Song (Live).MP3", want: "my-song-live.mp3"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: `C:\music\Café del Mar.flac`, want: "cafe-del-mar.flac"},
		{in: "???.wav", want: "file.wav"},
		{in: "noext", want: "noext"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithUploadPolicy(UploadPolicy{MaxBytes: 16, AllowedExts: []string{".mp3", ".wav"}}))

	res, err := f.svc.Upload(ctx, "Road Trip.wav", bytes.NewReader([]byte("RIFFdata")))
	require.NoError(t, err)
	assert.Equal(t, "road-trip.wav", res.FilePath)
	assert.Equal(t, int64(8), res.Size)

	again, err := f.svc.Upload(ctx, "Road Trip.wav", bytes.NewReader([]byte("RIFFmore")))
	require.NoError(t, err)
	assert.NotEqual(t, res.FilePath, again.FilePath)
	assert.True(t, strings.HasPrefix(again.FilePath, "road-trip-"))
	assert.True(t, strings.HasSuffix(again.FilePath, ".wav"))

	_, err = f.svc.Upload(ctx, "notes.txt", strings.NewReader("hello"))
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	_, err = f.svc.Upload(ctx, "big.wav", strings.NewReader(strings.Repeat("x", 17)))
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))
	assert.Equal(t, "File too large", apperr.Message(err))

	_, err = f.svc.Upload(ctx, "", strings.NewReader("x"))
	assert.Equal(t, apperr.BadRequest, apperr.KindOf(err))

	objects, err := f.objects.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, objects, 2)
}
