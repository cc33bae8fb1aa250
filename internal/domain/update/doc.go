// Package update contains the core domain types for update-package assembly.
//
// It defines the project context (nodes, device catalog and view), the resolved
// NodeSlot, file entries grouped into sections, the eligibility policy and the
// pure classification rules that decide which file kinds a node accepts.
// The error taxonomy shared by all services lives here as well.
package update
