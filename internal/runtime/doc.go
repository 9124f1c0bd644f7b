// Package runtime provides the execution context for runway commands.
//
// It encapsulates the shared dependencies commands need: the workspace root,
// its configuration, the logger, the process runner, and lazily opened
// collaborators such as the git repository and the GitHub client.
package runtime
