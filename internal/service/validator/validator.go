package validator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/oshokin/update-packager/internal/domain/update"
	"github.com/oshokin/update-packager/internal/logger"
	"github.com/oshokin/update-packager/internal/service/collector"
)

// CompatibilityChecker inspects an existing application image for its target device.
type CompatibilityChecker interface {
	// Compatible reports whether the image at path suits the device of the slot.
	Compatible(slot *update.NodeSlot, path string) (bool, error)
}

// Report is the aggregated result of one validation pass.
type Report struct {
	// ValidFiles counts non-skipped entries that resolve to an existing file.
	ValidFiles int
	// CompatibilityWarnings lists application images that exist but may not suit their node.
	CompatibilityWarnings []string
	// MissingApplications lists application images that do not resolve.
	MissingApplications []string
	// MissingParamSets lists parameter-set images that do not resolve.
	MissingParamSets []string
	// MissingOther lists certificates and generic files that do not resolve.
	MissingOther []string
}

// Validate checks every non-skipped entry of the nodes. The checker may be nil.
func Validate(ctx context.Context, nodes []*collector.NodeFiles, checker CompatibilityChecker) *Report {
	report := new(Report)

	for _, nf := range nodes {
		for _, group := range nf.Groups() {
			for _, entry := range group.Retained() {
				report.check(ctx, nf, entry, checker)
			}
		}
	}

	logger.InfoKV(ctx, "Validation finished",
		"valid_files", report.ValidFiles,
		"missing", len(report.Missing()),
		"warnings", len(report.CompatibilityWarnings))

	return report
}

// check validates one entry and records the outcome.
func (r *Report) check(ctx context.Context, nf *collector.NodeFiles, entry *update.FileEntry, checker CompatibilityChecker) {
	if !exists(entry.Resolved) {
		r.addMissing(nf, entry)
		logger.WarnKV(ctx, "File not found", "node", nf.Slot.NodeName, "kind", entry.Kind, "path", entry.Resolved)

		return
	}

	r.ValidFiles++

	if checker == nil || entry.Kind != update.KindApplicationImage || nf.Slot.Device.FileBased {
		return
	}

	compatible, err := checker.Compatible(&nf.Slot, entry.Resolved)
	if err != nil {
		logger.WarnKV(ctx, "Application image could not be inspected",
			"node", nf.Slot.NodeName, "path", entry.Resolved, "error", err)
	}

	if err != nil || !compatible {
		r.CompatibilityWarnings = append(r.CompatibilityWarnings, entry.Resolved)
	}
}

// addMissing sorts a missing entry into its category.
func (r *Report) addMissing(nf *collector.NodeFiles, entry *update.FileEntry) {
	name := entry.Resolved
	if name == "" {
		name = fmt.Sprintf("%s: %s (no file)", nf.Slot.NodeName, entry.Application)
	}

	switch entry.Kind {
	case update.KindApplicationImage:
		r.MissingApplications = append(r.MissingApplications, name)
	case update.KindParamSetImage:
		r.MissingParamSets = append(r.MissingParamSets, name)
	default:
		r.MissingOther = append(r.MissingOther, name)
	}
}

// HasMissing reports whether any non-skipped file is missing.
func (r *Report) HasMissing() bool {
	return len(r.MissingApplications)+len(r.MissingParamSets)+len(r.MissingOther) > 0
}

// Missing returns every missing file over all categories.
func (r *Report) Missing() []string {
	result := make([]string, 0, len(r.MissingApplications)+len(r.MissingParamSets)+len(r.MissingOther))
	result = append(result, r.MissingApplications...)
	result = append(result, r.MissingParamSets...)
	result = append(result, r.MissingOther...)

	return result
}

// String renders the categorized report for users.
func (r *Report) String() string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "Files ready for update: %d", r.ValidFiles)

	writeSection(&builder, "Application files with compatibility warnings", r.CompatibilityWarnings)
	writeSection(&builder, "Missing application files", r.MissingApplications)
	writeSection(&builder, "Missing parameter set image files", r.MissingParamSets)
	writeSection(&builder, "Missing other files", r.MissingOther)

	return builder.String()
}

// writeSection appends one titled list when it has items.
func writeSection(builder *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}

	fmt.Fprintf(builder, "\n%s (%d):", title, len(items))

	for _, item := range items {
		builder.WriteString("\n  ")
		builder.WriteString(item)
	}
}

// exists reports whether path names a regular file.
func exists(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}
