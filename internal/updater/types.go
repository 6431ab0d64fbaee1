package updater

import "time"

// DefaultRepository is the GitHub slug releases are fetched from.
const DefaultRepository = "smazurov/botlauncher"

// UpdateInfo contains information about an available update.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at,omitzero"`
	AssetSize       int       `json:"asset_size,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
}

// Options contains configuration for the updater.
type Options struct {
	Repository string // GitHub repo slug, DefaultRepository when empty
	Prerelease bool   // Whether to include prereleases
	// BackupDir holds the previous binary; ~/.cache/botlauncher/backup when empty.
	BackupDir string
}
