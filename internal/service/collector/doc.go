// Package collector maintains the per-node file assignments of an update.
//
// Each resolved node slot owns one section group per file kind. Entries are
// created from build-tool defaults and then changed only through the Editor
// operations, so the model can be driven by any presentation layer or by the
// configuration codec. The model is single-writer; callers serialize edits
// against validation and export.
package collector
