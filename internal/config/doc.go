// Package config reads the per-workspace runway configuration.
//
// Settings live in .runway.yaml at the workspace root. Every field is
// optional; getters fall back to the defaults of the component the setting
// belongs to, so a workspace without the file releases with conventional
// settings (origin, main, v-prefixed tags).
package config
