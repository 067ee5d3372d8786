package db

import (
	"context"
	"fmt"

	"Bt1QMedia/core/auth"
	"Bt1QMedia/logger"
	"Bt1QMedia/model"
	"Bt1QMedia/repository"
)

// AdminAccount is the account Seed makes sure exists.
type AdminAccount struct {
	Username string
	Email    string
	Password string
}

// SampleTracks and SamplePodcasts populate an empty catalog.
var (
	SampleTracks = []model.Track{
		{Title: "Sample Song 1", Artist: "Artist 1", FilePath: "sample1.mp3", Duration: 180, Category: "Pop"},
		{Title: "Sample Song 2", Artist: "Artist 2", FilePath: "sample2.mp3", Duration: 210, Category: "Rock"},
	}
	SamplePodcasts = []model.Podcast{
		{Title: "Tech Talk Ep1", Host: "Tech Host", FilePath: "podcast1.mp3", Duration: 1800, PodcastName: "Tech Talk", Category: "Technology"},
	}
)

// SeedResult reports what Seed created.
type SeedResult struct {
	AdminCreated bool
	Tracks       int
	Podcasts     int
}

// Seed creates the admin account if missing and, when the catalog is empty, the sample content.
// Running it again changes nothing.
func Seed(ctx context.Context, store repository.Store, admin AdminAccount) (*SeedResult, error) {
	res := &SeedResult{}

	users := auth.NewService(store, nil)
	created, err := users.EnsureAdmin(ctx, admin.Username, admin.Email, admin.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure admin user: %w", err)
	}
	res.AdminCreated = created

	count, err := store.CountContent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count content: %w", err)
	}
	if count > 0 {
		logger.Info("catalog not empty, skipping sample content", logger.Int64("items", count))
		return res, nil
	}

	for _, t := range SampleTracks {
		t := t
		if err := store.CreateTrack(ctx, &t); err != nil {
			return nil, fmt.Errorf("failed to seed track %q: %w", t.Title, err)
		}
		res.Tracks++
	}
	for _, p := range SamplePodcasts {
		p := p
		if err := store.CreatePodcast(ctx, &p); err != nil {
			return nil, fmt.Errorf("failed to seed podcast %q: %w", p.Title, err)
		}
		res.Podcasts++
	}
	logger.Info("sample catalog seeded",
		logger.Bool("adminCreated", res.AdminCreated),
		logger.Int("tracks", res.Tracks),
		logger.Int("podcasts", res.Podcasts))
	return res, nil
}
