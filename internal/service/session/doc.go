// Package session loads settings and the project, resolves the view and
// holds the live file model shared by the packager commands.
package session
