// Package state persists the progress of a release run so that status,
// rollback and cleanup can pick it up from another process.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/release"
)

// FormatVersion is bumped when the on-disk layout changes incompatibly
const FormatVersion = 1

const (
	dirName  = ".runway"
	fileName = "release-state.json"
)

// Phase is a stage of the orchestrated release
type Phase string

const (
	PhaseValidation    Phase = "validation"
	PhaseGitRelease    Phase = "git_release"
	PhasePublishing    Phase = "publishing"
	PhaseBundling      Phase = "bundling"
	PhaseGitHubRelease Phase = "github_release"
	PhaseUploading     Phase = "uploading"
	PhaseGitHubPublish Phase = "github_publish"
	PhaseCompleted     Phase = "completed"
	PhaseFailed        Phase = "failed"
)

// Progress is a rough completion percentage for display
func (p Phase) Progress() int {
	switch p {
	case PhaseValidation:
		return 10
	case PhaseGitRelease:
		return 20
	case PhasePublishing:
		return 40
	case PhaseBundling:
		return 60
	case PhaseGitHubRelease:
		return 70
	case PhaseUploading:
		return 80
	case PhaseGitHubPublish:
		return 90
	case PhaseCompleted:
		return 100
	}
	return 0
}

// Checkpoint records a completed step
type Checkpoint struct {
	Name      string    `json:"name"`
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// GitHubState is the draft release created for the run
type GitHubState struct {
	Owner     string   `json:"owner"`
	Repo      string   `json:"repo"`
	ReleaseID int64    `json:"release_id,omitempty"`
	HTMLURL   string   `json:"html_url,omitempty"`
	Draft     bool     `json:"draft"`
	Uploaded  []string `json:"uploaded,omitempty"`
}

// ReleaseState is the persisted checkpoint of one release run
type ReleaseState struct {
	FormatVersion int                 `json:"format_version"`
	ID            string              `json:"id"`
	Version       string              `json:"version"`
	Phase         Phase               `json:"phase"`
	Checkpoints   []Checkpoint        `json:"checkpoints"`
	Git           release.State       `json:"git"`
	GitHub        *GitHubState        `json:"github,omitempty"`
	Artifacts     map[string][]string `json:"artifacts,omitempty"`
	Published     []string            `json:"published,omitempty"`
	DryRun        bool                `json:"dry_run,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	LastError     string              `json:"last_error,omitempty"`
}

// New starts a state for version in the validation phase
func New(version string) *ReleaseState {
	now := time.Now().UTC()
	return &ReleaseState{
		FormatVersion: FormatVersion,
		ID:            uuid.NewString(),
		Version:       version,
		Phase:         PhaseValidation,
		StartedAt:     now,
		UpdatedAt:     now,
	}
}

// SetPhase moves the run to phase
func (s *ReleaseState) SetPhase(phase Phase) {
	s.Phase = phase
	s.UpdatedAt = time.Now().UTC()
}

// AddCheckpoint records that step name finished in the current phase
func (s *ReleaseState) AddCheckpoint(name string) {
	now := time.Now().UTC()
	s.Checkpoints = append(s.Checkpoints, Checkpoint{Name: name, Phase: s.Phase, Timestamp: now})
	s.UpdatedAt = now
}

// HasCompleted reports whether any checkpoint was recorded in phase
func (s *ReleaseState) HasCompleted(phase Phase) bool {
	for _, cp := range s.Checkpoints {
		if cp.Phase == phase {
			return true
		}
	}
	return false
}

// Fail marks the run failed with err
func (s *ReleaseState) Fail(err error) {
	s.Phase = PhaseFailed
	if err != nil {
		s.LastError = err.Error()
	}
	s.UpdatedAt = time.Now().UTC()
}

// AddArtifacts records artifacts produced for pkg
func (s *ReleaseState) AddArtifacts(pkg string, paths []string) {
	if s.Artifacts == nil {
		s.Artifacts = map[string][]string{}
	}
	s.Artifacts[pkg] = append(s.Artifacts[pkg], paths...)
	s.UpdatedAt = time.Now().UTC()
}

// InProgress reports whether the run neither completed nor failed
func (s *ReleaseState) InProgress() bool {
	return s.Phase != PhaseCompleted && s.Phase != PhaseFailed
}

// NeedsRollback reports whether an unfinished run left anything behind
func (s *ReleaseState) NeedsRollback() bool {
	if s.Phase == PhaseCompleted {
		return false
	}
	return !s.Git.IsZero() || (s.GitHub != nil && s.GitHub.ReleaseID != 0)
}

// Elapsed is the time between start and the last update
func (s *ReleaseState) Elapsed() time.Duration {
	return s.UpdatedAt.Sub(s.StartedAt)
}

// Summary is a one-line description for status output
func (s *ReleaseState) Summary() string {
	return fmt.Sprintf("Release v%s (%s) - %d%% complete - %s elapsed",
		s.Version, s.Phase, s.Phase.Progress(), s.Elapsed().Round(time.Second))
}

// Store reads and writes the state file of one workspace
type Store struct {
	path string
}

// NewStore returns the store for the workspace at root
func NewStore(root string) *Store {
	return &Store{path: filepath.Join(root, dirName, fileName)}
}

// Path returns the state file location
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a state file is present
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the state file. A missing file yields ErrNoReleaseState.
func (s *Store) Load() (*ReleaseState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, runwayerrors.NewWithPath(runwayerrors.KindIO, "load release state", s.path, runwayerrors.ErrNoReleaseState)
		}
		return nil, runwayerrors.NewWithPath(runwayerrors.KindIO, "load release state", s.path, err)
	}

	var st ReleaseState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindIO, "parse release state", s.path, err)
	}
	if st.FormatVersion != FormatVersion {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindIO, "load release state", s.path,
			fmt.Errorf("unsupported state format %d (expected %d); run 'runway cleanup' to discard it", st.FormatVersion, FormatVersion))
	}
	return &st, nil
}

// Save writes st atomically and stamps UpdatedAt
func (s *Store) Save(st *ReleaseState) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return runwayerrors.New(runwayerrors.KindIO, "marshal release state", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return runwayerrors.NewWithPath(runwayerrors.KindIO, "create state directory", filepath.Dir(s.path), err)
	}
	if err := safeWrite(s.path, append(data, '\n'), 0600); err != nil {
		return runwayerrors.NewWithPath(runwayerrors.KindIO, "save release state", s.path, err)
	}
	return nil
}

// Clear removes the state file; a missing file is not an error
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return runwayerrors.NewWithPath(runwayerrors.KindIO, "clear release state", s.path, err)
	}
	return nil
}

// safeWrite writes data to path through a temp file in the same directory,
// fsyncs it and renames it into place
func safeWrite(path string, data []byte, perm os.FileMode) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err = f.Chmod(perm); err != nil {
		_ = f.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
