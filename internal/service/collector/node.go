package collector

import "github.com/oshokin/update-packager/internal/domain/update"

// NodeFiles holds the section groups of one node slot.
type NodeFiles struct {
	// Slot is the resolved node the files belong to.
	Slot update.NodeSlot

	groups map[update.FileKind]*update.SectionGroup
}

// newNodeFiles creates empty groups for every kind the node can take.
func newNodeFiles(slot update.NodeSlot) *NodeFiles {
	nf := &NodeFiles{
		Slot:   slot,
		groups: make(map[update.FileKind]*update.SectionGroup, len(update.Kinds)),
	}

	for _, kind := range update.Kinds {
		if kind == update.KindGenericFile && !slot.Device.FileBased {
			continue
		}

		nf.groups[kind] = &update.SectionGroup{Kind: kind}
	}

	return nf
}

// Group returns the section of the given kind, nil when the node cannot take it.
func (n *NodeFiles) Group(kind update.FileKind) *update.SectionGroup {
	return n.groups[kind]
}

// Groups returns the sections in stable kind order.
func (n *NodeFiles) Groups() []*update.SectionGroup {
	result := make([]*update.SectionGroup, 0, len(n.groups))

	for _, kind := range update.Kinds {
		if group, ok := n.groups[kind]; ok {
			result = append(result, group)
		}
	}

	return result
}

// Retained returns the non-skipped entries of the given kind.
func (n *NodeFiles) Retained(kind update.FileKind) []*update.FileEntry {
	group := n.groups[kind]
	if group == nil {
		return nil
	}

	return group.Retained()
}

// RetainedCount returns the number of non-skipped entries over all sections.
func (n *NodeFiles) RetainedCount() int {
	count := 0
	for _, group := range n.groups {
		count += len(group.Retained())
	}

	return count
}

// application returns the data block with the given name.
func (n *NodeFiles) application(name string) (update.ApplicationUnit, bool) {
	for _, app := range n.Slot.Applications {
		if app.Name == name {
			return app, true
		}
	}

	return update.ApplicationUnit{}, false
}
