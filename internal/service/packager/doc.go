// Package packager assembles the deployable update package.
//
// The Assembler takes the validated node file sets, drops nodes that retain no
// file, builds a manifest (deployment order, device identity with accepted
// names, bus, per-file SHA-512 checksums) and writes either a directory tree
// or a single ZIP archive. Assembly is all-or-nothing: a stale artifact that
// cannot be removed aborts the run before anything is written.
package packager
