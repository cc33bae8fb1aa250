package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/update-packager/internal/domain/update"
	"github.com/oshokin/update-packager/internal/logger"
)

// Editor is the set of edit operations allowed on the file model.
type Editor interface {
	// AddFile classifies path for the node and appends it to the matching section.
	AddFile(ctx context.Context, nodeID string, hint update.FileKind, path string) (update.EntryRef, error)
	// RemoveFile deletes an entry from its section.
	RemoveFile(ctx context.Context, ref update.EntryRef) error
	// RevertFile restores the build-tool path of a tool-managed application image.
	RevertFile(ctx context.Context, ref update.EntryRef) error
	// ToggleSkip flips the skip flag of an entry and returns the new value.
	ToggleSkip(ctx context.Context, ref update.EntryRef) (bool, error)
	// SetPath replaces the path of an entry without changing its kind.
	SetPath(ctx context.Context, ref update.EntryRef, path string) error
}

// Collector is the live file model of all node slots.
type Collector struct {
	// baseDir resolves relative paths.
	baseDir string
	// nodes in deployment order.
	nodes []*NodeFiles
	// byID indexes nodes by node id.
	byID map[string]*NodeFiles
}

var _ Editor = (*Collector)(nil)

// New builds the model for the resolved slots and fills application sections
// from the build-tool outputs of each programmable data block.
func New(ctx context.Context, project *update.Project, slots []update.NodeSlot) *Collector {
	c := &Collector{
		nodes: make([]*NodeFiles, 0, len(slots)),
		byID:  make(map[string]*NodeFiles, len(slots)),
	}

	if project != nil {
		c.baseDir = project.BaseDir
	}

	for _, slot := range slots {
		nf := newNodeFiles(slot)
		c.fillDefaults(nf)

		c.nodes = append(c.nodes, nf)
		c.byID[slot.NodeID] = nf

		logger.DebugKV(ctx, "Collected node defaults",
			"node", slot.NodeName, "position", slot.Position, "files", nf.RetainedCount())
	}

	return c
}

// fillDefaults adds one entry per programmable data block.
// File-based targets receive the outputs as generic files.
// Data blocks sharing an output file yield a single entry owned by the first.
func (c *Collector) fillDefaults(nf *NodeFiles) {
	for _, app := range nf.Slot.Applications {
		if !app.Programmable {
			continue
		}

		resolved := c.Resolve(app.OutputPath)

		if nf.Slot.Device.FileBased {
			generic := nf.groups[update.KindGenericFile]
			if app.OutputPath == "" || containsResolved(generic, resolved, -1) {
				continue
			}

			generic.Entries = append(generic.Entries, &update.FileEntry{
				Kind:     update.KindGenericFile,
				Path:     app.OutputPath,
				Resolved: resolved,
				Origin:   update.OriginDefault,
			})

			continue
		}

		images := nf.groups[update.KindApplicationImage]
		if containsResolved(images, resolved, -1) {
			continue
		}

		images.Entries = append(images.Entries, &update.FileEntry{
			Kind:        update.KindApplicationImage,
			Path:        app.OutputPath,
			Resolved:    resolved,
			Origin:      update.OriginDefault,
			Application: app.Name,
			DefaultPath: app.OutputPath,
		})
	}
}

// Nodes returns the node file sets in deployment order.
func (c *Collector) Nodes() []*NodeFiles {
	return c.nodes
}

// Node returns the file set of one node.
func (c *Collector) Node(nodeID string) (*NodeFiles, error) {
	nf, ok := c.byID[nodeID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", nodeID, update.ErrUnknownNode)
	}

	return nf, nil
}

// Entry returns the entry addressed by ref.
func (c *Collector) Entry(ref update.EntryRef) (*update.FileEntry, error) {
	nf, err := c.Node(ref.NodeID)
	if err != nil {
		return nil, err
	}

	group := nf.Group(ref.Kind)
	if group == nil || ref.Index < 0 || ref.Index >= len(group.Entries) {
		return nil, fmt.Errorf("%s/%s[%d]: %w", ref.NodeID, ref.Kind, ref.Index, update.ErrUnknownEntry)
	}

	return group.Entries[ref.Index], nil
}

// Resolve expands environment variables and makes the path absolute
// against the project directory. An empty path stays empty.
func (c *Collector) Resolve(path string) string {
	if path == "" {
		return ""
	}

	expanded := os.ExpandEnv(path)
	if !filepath.IsAbs(expanded) && c.baseDir != "" {
		expanded = filepath.Join(c.baseDir, expanded)
	}

	return filepath.Clean(expanded)
}

// AddFile classifies path for the node and appends it to the matching section.
// The hint never overrides classification.
func (c *Collector) AddFile(ctx context.Context, nodeID string, hint update.FileKind, path string) (update.EntryRef, error) {
	nf, err := c.Node(nodeID)
	if err != nil {
		return update.EntryRef{}, err
	}

	if path == "" {
		return update.EntryRef{}, update.ErrEmptyPath
	}

	kind, err := update.Classify(path, nf.Slot.Capabilities())
	if err != nil {
		return update.EntryRef{}, fmt.Errorf("node %s: %w", nf.Slot.NodeName, err)
	}

	if hint != update.KindUnknown && hint != kind {
		logger.DebugKV(ctx, "Ignoring conflicting kind hint",
			"node", nf.Slot.NodeName, "path", path, "hint", hint, "kind", kind)
	}

	group := nf.Group(kind)
	resolved := c.Resolve(path)

	if containsResolved(group, resolved, -1) {
		return update.EntryRef{}, fmt.Errorf("%s: %w", path, update.ErrDuplicateEntry)
	}

	group.Entries = append(group.Entries, &update.FileEntry{
		Kind:     kind,
		Path:     path,
		Resolved: resolved,
		Origin:   update.OriginCustom,
	})

	logger.InfoKV(ctx, "File added", "node", nf.Slot.NodeName, "kind", kind, "path", path)

	return update.EntryRef{NodeID: nodeID, Kind: kind, Index: len(group.Entries) - 1}, nil
}

// RemoveFile deletes an entry. The node stays in the model even without files.
func (c *Collector) RemoveFile(ctx context.Context, ref update.EntryRef) error {
	entry, err := c.Entry(ref)
	if err != nil {
		return err
	}

	nf := c.byID[ref.NodeID]
	group := nf.Group(ref.Kind)
	group.Entries = append(group.Entries[:ref.Index], group.Entries[ref.Index+1:]...)

	logger.InfoKV(ctx, "File removed", "node", nf.Slot.NodeName, "kind", ref.Kind, "path", entry.Path)

	return nil
}

// RevertFile restores the build-tool path of a tool-managed application image.
func (c *Collector) RevertFile(ctx context.Context, ref update.EntryRef) error {
	entry, err := c.Entry(ref)
	if err != nil {
		return err
	}

	if !entry.ToolManaged() {
		return fmt.Errorf("%s/%s[%d]: %w", ref.NodeID, ref.Kind, ref.Index, update.ErrRevertNotAllowed)
	}

	entry.Path = entry.DefaultPath
	entry.Resolved = c.Resolve(entry.DefaultPath)
	entry.Origin = update.OriginDefault

	logger.InfoKV(ctx, "File reverted to default", "node", ref.NodeID, "application", entry.Application)

	return nil
}

// ToggleSkip flips the skip flag of an entry and returns the new value.
func (c *Collector) ToggleSkip(ctx context.Context, ref update.EntryRef) (bool, error) {
	entry, err := c.Entry(ref)
	if err != nil {
		return false, err
	}

	entry.Skip = !entry.Skip

	logger.DebugKV(ctx, "File skip toggled", "node", ref.NodeID, "path", entry.Path, "skip", entry.Skip)

	return entry.Skip, nil
}

// SetPath replaces the path of an entry. Application images accept any path;
// other kinds must classify to their current kind.
func (c *Collector) SetPath(ctx context.Context, ref update.EntryRef, path string) error {
	entry, err := c.Entry(ref)
	if err != nil {
		return err
	}

	if path == "" {
		return update.ErrEmptyPath
	}

	nf := c.byID[ref.NodeID]

	if entry.Kind != update.KindApplicationImage {
		kind, classifyErr := update.Classify(path, nf.Slot.Capabilities())
		if classifyErr != nil {
			return classifyErr
		}

		if kind != entry.Kind {
			return fmt.Errorf("%s is %s, entry is %s: %w", path, kind, entry.Kind, update.ErrKindMismatch)
		}
	}

	resolved := c.Resolve(path)
	if containsResolved(nf.Group(ref.Kind), resolved, ref.Index) {
		return fmt.Errorf("%s: %w", path, update.ErrDuplicateEntry)
	}

	entry.Path = path
	entry.Resolved = resolved
	entry.Origin = update.OriginCustom

	if entry.ToolManaged() && path == entry.DefaultPath {
		entry.Origin = update.OriginDefault
	}

	logger.InfoKV(ctx, "File path replaced", "node", nf.Slot.NodeName, "kind", entry.Kind, "path", path)

	return nil
}

// containsResolved reports whether another entry of the group has the same resolved path.
func containsResolved(group *update.SectionGroup, resolved string, except int) bool {
	if resolved == "" {
		return false
	}

	for i, entry := range group.Entries {
		if i != except && entry.Resolved == resolved {
			return true
		}
	}

	return false
}
