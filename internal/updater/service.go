// Package updater replaces the botlauncher binary with the latest GitHub
// release, keeping the previous binary for rollback.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/smazurov/botlauncher/internal/version"
)

// Updater checks for, applies and rolls back self-updates.
type Updater struct {
	source   releaseSource
	backups  *backupManager
	execPath func() (string, error)
	current  string

	enabled        bool
	disabledReason string

	logger *slog.Logger
}

// New creates an Updater. When the binary's directory is not writable the
// updater is returned disabled rather than failing.
func New(opts Options, logger *slog.Logger) (*Updater, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u := &Updater{
		execPath: selfupdate.ExecutablePath,
		current:  version.Version,
		logger:   logger,
	}

	if ok, reason := checkWritePermission(); !ok {
		logger.Warn("Update disabled", "reason", reason)
		u.disabledReason = reason
		return u, nil
	}

	slug := opts.Repository
	if slug == "" {
		slug = DefaultRepository
	}
	source, err := newGitHubSource(slug, opts.Prerelease)
	if err != nil {
		return nil, err
	}
	u.source = source

	dir := opts.BackupDir
	if dir == "" {
		if dir, err = defaultBackupDir(); err != nil {
			return nil, err
		}
	}
	if u.backups, err = newBackupManager(dir, logger); err != nil {
		logger.Warn("Rollback unavailable", "error", err)
	}

	if version.IsDev() {
		logger.Debug("Development build, any release is treated as newer")
	}
	u.enabled = true
	return u, nil
}

func checkWritePermission() (bool, string) {
	exe, err := os.Executable()
	if err != nil {
		return false, fmt.Sprintf("failed to get executable path: %v", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return false, fmt.Sprintf("failed to resolve symlinks: %v", err)
	}

	dir := filepath.Dir(exe)
	f, err := os.CreateTemp(dir, ".botlauncher.update.*")
	if err != nil {
		return false, fmt.Sprintf("no write permission to %s: %v", dir, err)
	}
	f.Close()
	os.Remove(f.Name())
	return true, ""
}

// Enabled reports whether updates can be applied.
func (u *Updater) Enabled() bool {
	return u.enabled
}

// DisabledReason returns why updates are disabled, empty if enabled.
func (u *Updater) DisabledReason() string {
	return u.disabledReason
}

// BackupVersion returns the version of the backed up binary, if any.
func (u *Updater) BackupVersion() string {
	if u.backups == nil {
		return ""
	}
	return u.backups.version()
}

// CheckForUpdate queries GitHub for the latest release without downloading.
func (u *Updater) CheckForUpdate(ctx context.Context) (*UpdateInfo, error) {
	info, _, err := u.check(ctx)
	return info, err
}

func (u *Updater) check(ctx context.Context) (*UpdateInfo, *release, error) {
	if !u.enabled {
		return nil, nil, newError(ErrCodeDisabled, u.disabledReason, nil)
	}

	rel, err := u.source.latest(ctx, u.current)
	if err != nil {
		return nil, nil, newError(ErrCodeCheckFailed, "failed to check for updates", err)
	}
	if rel == nil {
		return nil, nil, newError(ErrCodeNotFound, "repository not found or has no releases", nil)
	}

	info := &UpdateInfo{
		CurrentVersion:  u.current,
		LatestVersion:   rel.version,
		UpdateAvailable: rel.newer,
	}
	if rel.newer {
		info.ReleaseNotes = rel.notes
		info.ReleaseURL = rel.url
		info.PublishedAt = rel.publishedAt
		info.AssetSize = rel.assetSize
	}
	u.logger.Debug("Checked for update", "current", u.current, "latest", rel.version, "available", rel.newer)
	return info, rel, nil
}

// ApplyUpdate backs up the running binary and replaces it with the latest
// release. A failed replacement restores the backup.
func (u *Updater) ApplyUpdate(ctx context.Context) (*UpdateInfo, error) {
	info, rel, err := u.check(ctx)
	if err != nil {
		return nil, err
	}
	if !info.UpdateAvailable {
		return info, newError(ErrCodeNoUpdate, "no update available", nil)
	}

	exe, err := u.execPath()
	if err != nil {
		return nil, newError(ErrCodeApplyFailed, "failed to get executable path", err)
	}

	if u.backups != nil {
		if err := u.backups.create(exe, u.current); err != nil {
			return nil, newError(ErrCodeBackupFailed, "failed to create backup", err)
		}
	}

	if err := u.source.apply(ctx, rel, exe); err != nil {
		u.attemptRollback()
		return nil, newError(ErrCodeApplyFailed, "failed to apply update", err)
	}

	u.logger.Info("Update applied", "from", u.current, "to", rel.version)
	return info, nil
}

// Rollback restores the previously backed up binary.
func (u *Updater) Rollback(_ context.Context) error {
	if !u.enabled {
		return newError(ErrCodeDisabled, u.disabledReason, nil)
	}
	if u.backups == nil || u.backups.info == nil {
		return newError(ErrCodeNoBackup, "no backup available for rollback", nil)
	}
	if err := u.backups.restore(); err != nil {
		return newError(ErrCodeRollbackFailed, "failed to restore backup", err)
	}
	return nil
}

func (u *Updater) attemptRollback() {
	if u.backups == nil || u.backups.info == nil {
		u.logger.Error("No backup available for automatic rollback")
		return
	}
	if err := u.backups.restore(); err != nil {
		u.logger.Error("Failed to restore backup", "error", err)
		return
	}
	u.logger.Info("Automatic rollback completed")
}
