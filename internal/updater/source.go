package updater

import (
	"context"
	"fmt"
	"time"

	"github.com/creativeprojects/go-selfupdate"
)

// release is the subset of a GitHub release the updater acts on.
type release struct {
	version     string
	notes       string
	url         string
	publishedAt time.Time
	assetSize   int
	newer       bool

	raw *selfupdate.Release
}

// releaseSource finds and installs releases.
type releaseSource interface {
	latest(ctx context.Context, current string) (*release, error)
	apply(ctx context.Context, rel *release, exePath string) error
}

// githubSource serves releases from a GitHub repository.
type githubSource struct {
	repo    selfupdate.Repository
	updater *selfupdate.Updater
}

func newGitHubSource(slug string, prerelease bool) (*githubSource, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub source: %w", err)
	}
	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}
	return &githubSource{
		repo:    selfupdate.ParseSlug(slug),
		updater: updater,
	}, nil
}

// latest returns nil when the repository has no matching release.
func (g *githubSource) latest(ctx context.Context, current string) (*release, error) {
	rel, found, err := g.updater.DetectLatest(ctx, g.repo)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &release{
		version:     rel.Version(),
		notes:       rel.ReleaseNotes,
		url:         rel.URL,
		publishedAt: rel.PublishedAt,
		assetSize:   rel.AssetByteSize,
		// A dev build is always outdated
		newer: current == "dev" || rel.GreaterThan(current),
		raw:   rel,
	}, nil
}

func (g *githubSource) apply(ctx context.Context, rel *release, exePath string) error {
	return g.updater.UpdateTo(ctx, rel.raw, exePath)
}
