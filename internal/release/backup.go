package release

import (
	"context"
	"time"
)

// backupCommitCount is how many recent commits a backup point records
const backupCommitCount = 5

// CreateBackupPoint snapshots the current branch and recent history
func (m *Manager) CreateBackupPoint(ctx context.Context) (*BackupPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.repo.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}
	commits, err := m.repo.RecentCommits(ctx, backupCommitCount)
	if err != nil {
		return nil, err
	}
	return &BackupPoint{
		Branch:        current.Name,
		Head:          current.Head,
		Timestamp:     time.Now().UTC(),
		RecentCommits: commits,
	}, nil
}

// Stats collects a summary of the repository
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.repo.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}
	clean, err := m.repo.IsClean(ctx)
	if err != nil {
		return nil, err
	}
	detached, err := m.repo.IsDetached(ctx)
	if err != nil {
		return nil, err
	}
	branches, err := m.repo.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := m.repo.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	remotes, err := m.repo.Remotes(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Branch:      current.Name,
		Head:        current.Head,
		Clean:       clean,
		Detached:    detached,
		Ahead:       current.Ahead,
		Behind:      current.Behind,
		BranchCount: len(branches),
		TagCount:    len(tags),
		RemoteCount: len(remotes),
	}, nil
}
