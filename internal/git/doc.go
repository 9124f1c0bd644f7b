// Package git provides the repository facade used by the release flow.
//
// Repo is the verb surface the release state machine consumes:
//   - Inspection (clean tree, current branch, tags, branches, remotes)
//   - Mutation (add, commit, tag, checkout, branch, merge, reset)
//   - Remote operations (fetch, push, remote tag and branch deletion)
//
// CLIRepo implements Repo. Reads go through go-git; everything that mutates
// the repository or talks to a remote shells out to the git binary so that
// hooks, credentials helpers and user configuration apply.
//
// This package should be the only place where direct git commands are executed.
package git
