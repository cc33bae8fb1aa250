package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/update-packager/internal/domain/update"
	"github.com/oshokin/update-packager/internal/logger"
)

// Assignment is a complete replacement of the file sections of one node.
type Assignment struct {
	// NodeID selects the node whose sections are replaced.
	NodeID string
	// Groups are the new sections; kinds missing here become empty.
	Groups []*update.SectionGroup
}

// errUnknownApplication is returned when an entry names a data block the node does not have.
var errUnknownApplication = errors.New("unknown application")

// ReplaceAssignments validates every assignment and then swaps in the new
// sections. On any error the model is left untouched.
func (c *Collector) ReplaceAssignments(ctx context.Context, assignments []Assignment) error {
	staged := make(map[string]map[update.FileKind]*update.SectionGroup, len(assignments))

	for _, assignment := range assignments {
		nf, err := c.Node(assignment.NodeID)
		if err != nil {
			return err
		}

		groups, err := c.stage(nf, assignment.Groups)
		if err != nil {
			return fmt.Errorf("node %s: %w", nf.Slot.NodeName, err)
		}

		staged[assignment.NodeID] = groups
	}

	for nodeID, groups := range staged {
		nf := c.byID[nodeID]
		nf.groups = groups

		logger.DebugKV(ctx, "Node assignments replaced", "node", nf.Slot.NodeName, "files", nf.RetainedCount())
	}

	return nil
}

// stage builds a checked copy of the sections for one node.
func (c *Collector) stage(nf *NodeFiles, groups []*update.SectionGroup) (map[update.FileKind]*update.SectionGroup, error) {
	caps := nf.Slot.Capabilities()
	result := make(map[update.FileKind]*update.SectionGroup, len(nf.groups))

	for kind := range nf.groups {
		result[kind] = &update.SectionGroup{Kind: kind}
	}

	for _, group := range groups {
		target, ok := result[group.Kind]
		if !ok || !update.Accepts(group.Kind, caps) {
			return nil, fmt.Errorf("section %s: %w", group.Kind, update.ErrUnsupportedFile)
		}

		for _, source := range group.Entries {
			entry, err := c.stageEntry(nf, group.Kind, source)
			if err != nil {
				return nil, err
			}

			if containsResolved(target, entry.Resolved, -1) {
				return nil, fmt.Errorf("%s: %w", entry.Path, update.ErrDuplicateEntry)
			}

			target.Entries = append(target.Entries, entry)
		}
	}

	return result, nil
}

// stageEntry checks one incoming entry and resolves its path.
func (c *Collector) stageEntry(nf *NodeFiles, kind update.FileKind, source *update.FileEntry) (*update.FileEntry, error) {
	entry := source.Clone()
	entry.Kind = kind

	if kind == update.KindApplicationImage && entry.Application != "" {
		app, ok := nf.application(entry.Application)
		if !ok {
			return nil, fmt.Errorf("%s: %w", entry.Application, errUnknownApplication)
		}

		entry.DefaultPath = app.OutputPath
		if entry.Origin == update.OriginDefault {
			entry.Path = app.OutputPath
		}
	} else {
		entry.Application = ""
		entry.DefaultPath = ""
	}

	if entry.Path == "" && !entry.ToolManaged() {
		return nil, fmt.Errorf("section %s: %w", kind, update.ErrEmptyPath)
	}

	if kind != update.KindApplicationImage {
		classified, err := update.Classify(entry.Path, nf.Slot.Capabilities())
		if err != nil {
			return nil, err
		}

		if classified != kind {
			return nil, fmt.Errorf("%s is %s: %w", entry.Path, classified, update.ErrKindMismatch)
		}
	}

	entry.Resolved = c.Resolve(entry.Path)

	return entry, nil
}
