package catalog

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"strings"

	"Bt1QMedia/core/apperr"
	"Bt1QMedia/core/events"
	"Bt1QMedia/logger"
	"Bt1QMedia/model"
	"Bt1QMedia/repository"
	"Bt1QMedia/storage"

	"golang.org/x/sync/errgroup"
)

// Cache is the read-through cache for catalog listings. Key pins a listing name to the
// current cache generation; Get and Set take the pinned key.
type Cache interface {
	Key(ctx context.Context, name string) (string, error)
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Invalidate(ctx context.Context) error
}

// Service implements catalog listing, search, admin mutations and streaming.
type Service struct {
	content repository.ContentRepository
	objects storage.ObjectStore
	cache   Cache            // optional
	events  events.Publisher // optional
	uploads UploadPolicy
}

// Option configures optional collaborators.
type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithUploadPolicy(p UploadPolicy) Option {
	return func(s *Service) { s.uploads = p }
}

func NewService(content repository.ContentRepository, objects storage.ObjectStore, opts ...Option) *Service {
	s := &Service{content: content, objects: objects, uploads: UploadPolicy{MaxBytes: 50 << 20}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// cached serves name from the cache when possible and fills it after a store read.
// Cache failures are logged and never fail the request.
func cached[T any](ctx context.Context, s *Service, name string, load func() (T, error)) (T, error) {
	var key string
	if s.cache != nil {
		k, err := s.cache.Key(ctx, name)
		if err != nil {
			logger.Warn("catalog cache key failed", logger.String("key", name), logger.ErrorField(err))
		} else {
			key = k
		}
	}
	if key != "" {
		var hit T
		ok, err := s.cache.Get(ctx, key, &hit)
		if err != nil {
			logger.Warn("catalog cache read failed", logger.String("key", key), logger.ErrorField(err))
		} else if ok {
			return hit, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if key != "" {
		if err := s.cache.Set(ctx, key, v); err != nil {
			logger.Warn("catalog cache write failed", logger.String("key", key), logger.ErrorField(err))
		}
	}
	return v, nil
}

func (s *Service) changed(ctx context.Context, evt events.EventType, content interface{}) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			logger.Warn("catalog cache invalidation failed", logger.ErrorField(err))
		}
	}
	if s.events != nil {
		s.events.Publish(events.Event{Type: evt, Content: content})
	}
}

// ListTracks returns every track ordered by id.
func (s *Service) ListTracks(ctx context.Context) ([]*model.Track, error) {
	tracks, err := cached(ctx, s, "tracks", func() ([]*model.Track, error) {
		return s.content.ListTracks(ctx)
	})
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list tracks")
	}
	return tracks, nil
}

// ListPodcasts returns every podcast ordered by id.
func (s *Service) ListPodcasts(ctx context.Context) ([]*model.Podcast, error) {
	podcasts, err := cached(ctx, s, "podcasts", func() ([]*model.Podcast, error) {
		return s.content.ListPodcasts(ctx)
	})
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list podcasts")
	}
	return podcasts, nil
}

// Search matches tracks by title or artist and podcasts by title or host.
// Tracks come first; within each kind results are ordered by id.
func (s *Service) Search(ctx context.Context, query string) ([]model.ContentSummary, error) {
	results, err := cached(ctx, s, "search:"+strings.ToLower(query), func() ([]model.ContentSummary, error) {
		var (
			tracks   []*model.Track
			podcasts []*model.Podcast
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			tracks, err = s.content.SearchTracks(gctx, query)
			return err
		})
		g.Go(func() error {
			var err error
			podcasts, err = s.content.SearchPodcasts(gctx, query)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		out := make([]model.ContentSummary, 0, len(tracks)+len(podcasts))
		for _, t := range tracks {
			out = append(out, t.Summary())
		}
		for _, p := range podcasts {
			out = append(out, p.Summary())
		}
		return out, nil
	})
	if err != nil {
		return nil, apperr.Wrap(err, "failed to search catalog")
	}
	return results, nil
}

// AddContent creates a track, or a podcast when isPodcast is set, and returns its id.
// Callers must have checked admin rights.
func (s *Service) AddContent(ctx context.Context, in model.NewContent, isPodcast bool) (int64, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Artist = strings.TrimSpace(in.Artist)
	in.FilePath = strings.TrimSpace(in.FilePath)
	if in.Title == "" || in.Artist == "" || in.FilePath == "" {
		return 0, apperr.BadRequestf("Missing required fields: title, artist, file_path")
	}
	if in.Duration < 0 {
		return 0, apperr.BadRequestf("Duration must not be negative")
	}

	if isPodcast {
		p := &model.Podcast{
			Title:       in.Title,
			Host:        in.Artist,
			FilePath:    in.FilePath,
			Duration:    in.Duration,
			PodcastName: in.PodcastName,
			Category:    in.Category,
		}
		if err := s.content.CreatePodcast(ctx, p); err != nil {
			return 0, apperr.Wrap(err, "failed to add podcast")
		}
		logger.Info("[Catalog] podcast added", logger.Int64("id", p.ID), logger.String("title", p.Title))
		s.changed(ctx, events.ContentAdded, p.Summary())
		return p.ID, nil
	}

	t := &model.Track{
		Title:    in.Title,
		Artist:   in.Artist,
		FilePath: in.FilePath,
		Duration: in.Duration,
		Category: in.Category,
	}
	if err := s.content.CreateTrack(ctx, t); err != nil {
		return 0, apperr.Wrap(err, "failed to add track")
	}
	logger.Info("[Catalog] track added", logger.Int64("id", t.ID), logger.String("title", t.Title))
	s.changed(ctx, events.ContentAdded, t.Summary())
	return t.ID, nil
}

// DeleteContent removes a track or podcast row. The stored file is left in place.
func (s *Service) DeleteContent(ctx context.Context, kind string, id int64) error {
	ct, ok := model.ParseContentType(kind)
	if !ok {
		return apperr.NotFoundf("Content not found")
	}

	var err error
	if ct == model.ContentTrack {
		err = s.content.DeleteTrack(ctx, id)
	} else {
		err = s.content.DeletePodcast(ctx, id)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFoundf("Content not found")
	}
	if err != nil {
		return apperr.Wrap(err, "failed to delete content")
	}
	logger.Info("[Catalog] content deleted", logger.String("type", string(ct)), logger.Int64("id", id))
	s.changed(ctx, events.ContentDeleted, model.ContentRef{Type: ct, ID: id})
	return nil
}

// Exists reports whether ref names a stored track or podcast.
func (s *Service) Exists(ctx context.Context, ref model.ContentRef) (bool, error) {
	summary, err := s.Resolve(ctx, ref)
	if err != nil {
		return false, err
	}
	return summary != nil, nil
}

// Resolve loads the summary for ref, or nil when the content no longer exists.
func (s *Service) Resolve(ctx context.Context, ref model.ContentRef) (*model.ContentSummary, error) {
	switch ref.Type {
	case model.ContentTrack:
		t, err := s.content.GetTrack(ctx, ref.ID)
		if err != nil {
			return nil, apperr.Wrap(err, "failed to load track")
		}
		if t == nil {
			return nil, nil
		}
		sum := t.Summary()
		return &sum, nil
	case model.ContentPodcast:
		p, err := s.content.GetPodcast(ctx, ref.ID)
		if err != nil {
			return nil, apperr.Wrap(err, "failed to load podcast")
		}
		if p == nil {
			return nil, nil
		}
		sum := p.Summary()
		return &sum, nil
	default:
		return nil, nil
	}
}

// Stream is an opened media object.
type Stream struct {
	Body        io.ReadCloser
	ContentType string
	Name        string
}

// StreamContent opens the stored file of a track or podcast.
func (s *Service) StreamContent(ctx context.Context, kind string, id int64) (*Stream, error) {
	ct, ok := model.ParseContentType(kind)
	if !ok {
		return nil, apperr.NotFoundf("Content not found")
	}

	var filePath string
	if ct == model.ContentTrack {
		t, err := s.content.GetTrack(ctx, id)
		if err != nil {
			return nil, apperr.Wrap(err, "failed to load track")
		}
		if t != nil {
			filePath = t.FilePath
		}
	} else {
		p, err := s.content.GetPodcast(ctx, id)
		if err != nil {
			return nil, apperr.Wrap(err, "failed to load podcast")
		}
		if p != nil {
			filePath = p.FilePath
		}
	}
	if filePath == "" {
		return nil, apperr.NotFoundf("Content not found")
	}

	body, err := s.objects.Open(ctx, filePath)
	if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidKey) {
		return nil, apperr.NotFoundf("File not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "failed to open media file")
	}
	return &Stream{Body: body, ContentType: contentTypeFor(filePath), Name: path.Base(filePath)}, nil
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
