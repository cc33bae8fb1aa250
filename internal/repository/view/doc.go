// Package view implements the read-only project/view store adapter.
//
// The FileRepository loads a YAML project description (device catalog, nodes
// and the update view) and converts it into the update.Project context object
// consumed by the resolver and the collector.
package view
