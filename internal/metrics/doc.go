// Package metrics exposes Prometheus collectors for validation and package
// assembly outcomes. The command line tool can dump them to a text file for
// the node exporter textfile collector.
package metrics
