// Package orchestrator runs a complete workspace release.
//
// A run plans the publish order, drives the git release once with the
// manifests bumped to the release version, then walks the plan tier by tier
// on the release branch: each package is published and, when it declares
// bundle metadata, built and packaged natively or in the build container.
// Artifacts can be attached to a GitHub release. Every phase is checkpointed
// to disk, and a failure after the git release rolls back what was created.
package orchestrator

import (
	"context"
	"time"

	"runway.dev/runway/internal/bundler"
	"runway.dev/runway/internal/container"
	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/github"
	"runway.dev/runway/internal/graph"
	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/publish"
	"runway.dev/runway/internal/release"
	"runway.dev/runway/internal/state"
	"runway.dev/runway/internal/tui"
	"runway.dev/runway/internal/workspace"
)

// Publisher uploads one package to the registry
type Publisher interface {
	Publish(ctx context.Context, name string) (*publish.Result, error)
}

// BinaryBuilder compiles the release binaries of a package for formats
type BinaryBuilder interface {
	Build(ctx context.Context, pkg string, formats []platform.Format) error
}

// ContainerBuilder bundles formats the host cannot build natively
type ContainerBuilder interface {
	Run(ctx context.Context, req container.Request) ([]string, error)
}

// GitHubReleaser manages the GitHub release of a run
type GitHubReleaser interface {
	CreateRelease(ctx context.Context, version, commit string) (*github.Release, error)
	UploadArtifacts(ctx context.Context, id int64, version string, paths []string) ([]string, error)
	PublishDraft(ctx context.Context, id int64) error
	// VerifyIsDraft reports false for a published or missing release
	VerifyIsDraft(ctx context.Context, id int64) (bool, error)
	DeleteRelease(ctx context.Context, id int64) error
}

// BundlerFactory returns the bundler for a format
type BundlerFactory func(f platform.Format) (bundler.Bundler, error)

// ProgressReporter observes the steps of a run, indexed into Steps.
// Implementations must not block.
type ProgressReporter interface {
	StepStarted(stepIndex int, description string)
	StepCompleted(stepIndex int)
	StepFailed(stepIndex int, err error)
	StepSkipped(stepIndex int, reason string)
}

// Steps describes the progress steps of a run, in order
var Steps = []string{
	"Analyze workspace and plan publish order",
	"Create git release",
	"Publish packages",
	"Bundle installers",
	"Create GitHub draft release",
	"Upload artifacts",
	"Publish GitHub release",
}

const (
	stepPlan = iota
	stepGit
	stepPublish
	stepBundle
	stepGitHubDraft
	stepUpload
	stepGitHubPublish
)

var phaseStep = map[state.Phase]int{
	state.PhaseValidation:    stepPlan,
	state.PhaseGitRelease:    stepGit,
	state.PhasePublishing:    stepPublish,
	state.PhaseBundling:      stepBundle,
	state.PhaseGitHubRelease: stepGitHubDraft,
	state.PhaseUploading:     stepUpload,
	state.PhaseGitHubPublish: stepGitHubPublish,
}

type nopReporter struct{}

func (nopReporter) StepStarted(int, string) {}
func (nopReporter) StepCompleted(int)       {}
func (nopReporter) StepFailed(int, error)   {}
func (nopReporter) StepSkipped(int, string) {}

// Deps are the collaborators of an Orchestrator. Release, Store and
// Bundlers are required; the rest are optional and their steps are skipped
// when nil.
type Deps struct {
	Root     string
	Release  *release.Manager
	Store    *state.Store
	Bundlers BundlerFactory
	// Builder compiles binaries before native bundling when the request
	// asks for it
	Builder   BinaryBuilder
	Publisher Publisher
	Container ContainerBuilder
	GitHub    GitHubReleaser
	// GitHubOwner and GitHubRepo are recorded with the draft so it can be
	// removed by a later rollback
	GitHubOwner string
	GitHubRepo  string
	// Host decides which formats are native; zero means the current host
	Host platform.Host
	// OutDir is the project output directory; bundles land in OutDir/bundle
	OutDir   string
	Splog    *tui.Splog
	Progress ProgressReporter
}

// Request is one release run
type Request struct {
	Version string
	Push    bool
	// Formats overrides each package's bundle.formats when set
	Formats []platform.Format
	// Publish runs cargo publish for every publishable package
	Publish    bool
	SkipBundle bool
	// NativeOnly skips formats that would need the build container
	NativeOnly bool
	// Build compiles release binaries before bundling, natively through
	// Builder and inside the build container
	Build         bool
	GitHubRelease bool
	DryRun        bool
}

// Report is the outcome of a successful run
type Report struct {
	Version string
	Plan    graph.Plan
	Release *release.Result
	// Artifacts maps package name to the absolute artifact paths
	Artifacts map[string][]string
	Published []string
	// Skipped lists formats that were not built, as "pkg: format (reason)"
	Skipped  []string
	GitHub   *github.Release
	Uploaded []string
	DryRun   bool
	Duration time.Duration
}

// Orchestrator runs releases for one workspace
type Orchestrator struct {
	deps Deps
}

// New creates an Orchestrator
func New(deps Deps) *Orchestrator {
	if deps.Splog == nil {
		deps.Splog = tui.NewSplog()
	}
	if deps.Host == (platform.Host{}) {
		deps.Host = platform.Detect()
	}
	if deps.Store == nil {
		deps.Store = state.NewStore(deps.Root)
	}
	if deps.Progress == nil {
		deps.Progress = nopReporter{}
	}
	return &Orchestrator{deps: deps}
}

// run is the mutable state of one Run call
type run struct {
	o      *Orchestrator
	req    Request
	ws     *workspace.Workspace
	graph  *graph.Graph
	st     *state.ReleaseState
	report *Report
	// released is set once the git release created something to roll back
	released bool
}

// Run executes the release described by req. A failure before the git
// release leaves the repository untouched. A later failure triggers a
// rollback and returns a *RunError carrying both outcomes.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	version, err := release.NormalizeVersion(req.Version)
	if err != nil {
		return nil, err
	}
	req.Version = version

	r := &run{
		o:      o,
		req:    req,
		st:     state.New(version),
		report: &Report{Version: version, Artifacts: map[string][]string{}, DryRun: req.DryRun},
	}
	r.st.DryRun = req.DryRun

	if err := r.prepare(); err != nil {
		o.deps.Progress.StepFailed(stepPlan, err)
		return nil, err
	}
	if err := r.gitRelease(ctx); err != nil {
		return nil, r.failed(ctx, err)
	}
	if err := r.packages(ctx); err != nil {
		return nil, r.failed(ctx, err)
	}
	if err := r.githubRelease(ctx); err != nil {
		return nil, r.failed(ctx, err)
	}

	if !req.DryRun {
		if err := o.deps.Release.ReturnToMain(ctx); err != nil {
			o.deps.Splog.Warn("Release v%s is complete but HEAD stayed on its branch: %v", version, err)
		}
		o.deps.Release.Commit()
	}
	r.st.Git = release.State{}
	r.phase(state.PhaseCompleted)
	r.checkpoint("release complete")
	r.report.Duration = time.Since(start)
	return r.report, nil
}

func (r *run) phase(p state.Phase) {
	r.st.SetPhase(p)
}

func (r *run) start(step int) {
	r.o.deps.Progress.StepStarted(step, Steps[step])
}

func (r *run) done(step int) {
	r.o.deps.Progress.StepCompleted(step)
}

func (r *run) skipped(reason string, steps ...int) {
	for _, step := range steps {
		r.o.deps.Progress.StepSkipped(step, reason)
	}
}

// checkpoint records a completed step and persists the state. Dry runs are
// never persisted so they cannot shadow a real release.
func (r *run) checkpoint(name string) {
	r.st.AddCheckpoint(name)
	r.save()
}

func (r *run) save() {
	if r.req.DryRun {
		return
	}
	if err := r.o.deps.Store.Save(r.st); err != nil {
		r.o.deps.Splog.Warn("Could not save release state: %v", err)
	}
}

// prepare analyzes the workspace and plans the publish order. Nothing is
// mutated until it succeeds.
func (r *run) prepare() error {
	d := r.o.deps
	r.phase(state.PhaseValidation)
	r.start(stepPlan)

	if prev, err := d.Store.Load(); err == nil && prev.NeedsRollback() && !r.req.DryRun {
		return runwayerrors.Errorf(runwayerrors.KindCLI,
			"release v%s left %s unfinished; run 'runway rollback' or 'runway cleanup %s' first",
			prev.Version, prev.Phase, prev.Version)
	}

	ws, err := workspace.Analyze(d.Root)
	if err != nil {
		return err
	}
	issues := workspace.Validate(ws)
	for _, issue := range issues {
		if issue.Severity == workspace.SeverityWarning {
			d.Splog.Warn("%s", issue)
		} else {
			d.Splog.Error("%s", issue)
		}
	}
	if workspace.HasErrors(issues) {
		return runwayerrors.Errorf(runwayerrors.KindWorkspace, "workspace has %d validation error(s)", countErrors(issues))
	}
	if ws.Version != "" && ws.Version != r.req.Version {
		d.Splog.Info("Manifests move from %s to %s", ws.Version, r.req.Version)
	}

	g, err := graph.New(ws)
	if err != nil {
		return err
	}
	r.ws, r.graph = ws, g
	r.report.Plan = g.Plan()
	d.Splog.Info("Planned %d package(s) in %d tier(s)", g.TotalPackages(), g.TierCount())
	r.checkpoint("plan")
	r.done(stepPlan)
	return nil
}

func countErrors(issues []workspace.Issue) int {
	n := 0
	for _, i := range issues {
		if i.Severity == workspace.SeverityError {
			n++
		}
	}
	return n
}

func (r *run) gitRelease(ctx context.Context) error {
	d := r.o.deps
	r.phase(state.PhaseGitRelease)
	r.start(stepGit)
	// Packaging runs on the release branch so cargo and the build container
	// see the bumped manifests
	res, err := d.Release.Release(ctx, r.req.Version, release.Options{
		Push:          r.req.Push,
		DryRun:        r.req.DryRun,
		Hold:          true,
		Stager:        workspace.NewVersionUpdater(r.ws),
		StayOnRelease: true,
	})
	r.st.Git = d.Release.State()
	r.released = !r.st.Git.IsZero()
	if err != nil {
		return err
	}
	r.report.Release = res
	r.checkpoint("git release")
	r.done(stepGit)
	return nil
}

func (r *run) packages(ctx context.Context) error {
	d := r.o.deps
	publishing := r.req.Publish && d.Publisher != nil
	if publishing {
		r.start(stepPublish)
	} else {
		r.skipped("not requested", stepPublish)
	}
	if r.req.SkipBundle {
		r.skipped("bundling disabled", stepBundle)
	} else {
		r.start(stepBundle)
	}

	for tier, names := range r.report.Plan {
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			d.Splog.Debug("Tier %d: %s", tier, name)
			pkg, _ := r.ws.Package(name)

			if publishing {
				if !pkg.Publish {
					d.Splog.Debug("Skipping publish of %s (publish = false)", name)
				} else {
					r.phase(state.PhasePublishing)
					res, err := d.Publisher.Publish(ctx, name)
					if err != nil {
						return err
					}
					if !res.Skipped {
						r.report.Published = append(r.report.Published, name)
						r.st.Published = append(r.st.Published, name)
					}
					r.checkpoint("publish " + name)
				}
			}

			if r.req.SkipBundle || pkg.Bundle == nil {
				continue
			}
			r.phase(state.PhaseBundling)
			paths, err := r.bundle(ctx, tier, name)
			if err != nil {
				return err
			}
			if len(paths) > 0 {
				r.report.Artifacts[name] = paths
				r.st.AddArtifacts(name, paths)
				r.checkpoint("bundle " + name)
			}
		}
	}

	if publishing {
		r.done(stepPublish)
	}
	if !r.req.SkipBundle {
		r.done(stepBundle)
	}
	return nil
}

func (r *run) githubRelease(ctx context.Context) error {
	d := r.o.deps
	if !r.req.GitHubRelease || d.GitHub == nil {
		r.skipped("not requested", stepGitHubDraft, stepUpload, stepGitHubPublish)
		return nil
	}
	if r.req.DryRun {
		d.Splog.Info("Would create a GitHub release for v%s with %d artifact(s)", r.req.Version, len(r.allArtifacts()))
		r.skipped("dry run", stepGitHubDraft, stepUpload, stepGitHubPublish)
		return nil
	}

	r.phase(state.PhaseGitHubRelease)
	r.start(stepGitHubDraft)
	commit := ""
	if r.report.Release != nil {
		commit = r.report.Release.Commit
	}
	rel, err := d.GitHub.CreateRelease(ctx, r.req.Version, commit)
	if err != nil {
		return err
	}
	r.report.GitHub = rel
	r.st.GitHub = &state.GitHubState{
		Owner:     d.GitHubOwner,
		Repo:      d.GitHubRepo,
		ReleaseID: rel.ID,
		HTMLURL:   rel.HTMLURL,
		Draft:     true,
	}
	r.checkpoint("github draft")
	r.done(stepGitHubDraft)

	r.phase(state.PhaseUploading)
	r.start(stepUpload)
	urls, err := d.GitHub.UploadArtifacts(ctx, rel.ID, r.req.Version, r.allArtifacts())
	r.report.Uploaded = urls
	r.st.GitHub.Uploaded = urls
	if err != nil {
		return err
	}
	r.checkpoint("github upload")
	r.done(stepUpload)

	r.phase(state.PhaseGitHubPublish)
	r.start(stepGitHubPublish)
	if err := d.GitHub.PublishDraft(ctx, rel.ID); err != nil {
		return err
	}
	rel.Draft = false
	r.st.GitHub.Draft = false
	r.checkpoint("github publish")
	r.done(stepGitHubPublish)
	return nil
}

func (r *run) allArtifacts() []string {
	var all []string
	for _, name := range r.report.Plan.Flatten() {
		all = append(all, r.report.Artifacts[name]...)
	}
	return all
}
