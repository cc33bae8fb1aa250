// Package resolver turns the view of a project into the ordered set of node
// slots taking part in an update.
package resolver
