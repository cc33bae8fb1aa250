// Package version exposes build metadata of the packager.
//
// Version, Commit and BuildTime are injected at build time via ldflags.
// Generator names the program in package manifests.
package version
