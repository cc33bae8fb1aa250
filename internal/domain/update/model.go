package update

import "slices"

// Capabilities are the device catalog flags consumed by the packager.
type Capabilities struct {
	// Programmable means the device runs a flashloader speaking the update protocol.
	Programmable bool
	// FileBased means the device accepts arbitrary named files instead of addressed images.
	FileBased bool
	// LegacyFlashloader means the device only has the legacy flashloader.
	LegacyFlashloader bool
	// Aliases are additional device names the transport executor must accept.
	Aliases []string
}

// AcceptsStructuredFiles reports whether parameter sets and certificates can be deployed.
// Legacy-only targets cannot take them.
func (c Capabilities) AcceptsStructuredFiles() bool {
	return c.Programmable || c.FileBased
}

// Device is one entry of the device catalog.
type Device struct {
	// Type is the catalog name of the device.
	Type string
	Capabilities
}

// AcceptedNames returns the device type followed by its aliases without duplicates.
func (d Device) AcceptedNames() []string {
	names := make([]string, 0, len(d.Aliases)+1)
	if d.Type != "" {
		names = append(names, d.Type)
	}

	for _, alias := range d.Aliases {
		if alias == "" || slices.Contains(names, alias) {
			continue
		}

		names = append(names, alias)
	}

	return names
}

// ApplicationUnit is a data block built by the build tool for one node.
type ApplicationUnit struct {
	// Name identifies the data block within its node.
	Name string
	// Programmable marks units that are deployed by the update process.
	Programmable bool
	// OutputPath is the path of the built image as computed by the build tool.
	OutputPath string
}

// Node is a network node as declared in the project.
type Node struct {
	// ID is the stable identifier of the node.
	ID string
	// Name is the human-readable node name.
	Name string
	// DeviceType references a Device in the catalog.
	DeviceType string
	// Bus is the bus the node is connected to for updates.
	Bus string
	// Squad groups nodes that are activated together.
	Squad string
	// Applications are the data blocks of the node.
	Applications []ApplicationUnit
}

// HasProgrammableApplication reports whether at least one unit takes part in updates.
func (n *Node) HasProgrammableApplication() bool {
	for _, app := range n.Applications {
		if app.Programmable {
			return true
		}
	}

	return false
}

// View holds per-node update positions and activation flags, indexed like Project.Nodes.
type View struct {
	// Name is the view name.
	Name string
	// Positions are the requested update positions.
	Positions []uint32
	// Active are the raw activation flags.
	Active []bool
}

// Project is the context object passed to every component instead of global state.
type Project struct {
	// Name is the project name.
	Name string
	// BaseDir resolves relative file paths.
	BaseDir string
	// Devices is the device catalog keyed by type.
	Devices map[string]Device
	// Nodes are the project nodes in declaration order.
	Nodes []Node
	// View is the selected view, nil when the project has none.
	View *View
}

// NodeSlot is a node participating in the view with its resolved deployment position.
type NodeSlot struct {
	// Index is the declaration index of the node in the project.
	Index int
	// NodeID is the stable identifier of the node.
	NodeID string
	// NodeName is the human-readable node name.
	NodeName string
	// Device is the catalog entry of the node.
	Device Device
	// Bus is the bus the node is updated over.
	Bus string
	// RequestedPosition is the position asked for in the view.
	RequestedPosition uint32
	// Position is the resolved dense deployment position.
	Position int
	// Active is the resolved activation flag.
	Active bool
	// Applications are the data blocks of the node.
	Applications []ApplicationUnit
}

// Capabilities returns the device flags of the slot.
func (s *NodeSlot) Capabilities() Capabilities {
	return s.Device.Capabilities
}

// FileEntry is one file assigned to a node.
type FileEntry struct {
	// Kind never changes after creation.
	Kind FileKind
	// Path is the path as declared by the user or the build tool.
	Path string
	// Resolved is the absolute path after variable expansion.
	Resolved string
	// Origin tells whether Path is the tool default.
	Origin Origin
	// Skip keeps the entry in the model but excludes it from packages.
	Skip bool
	// Application names the data block for tool-managed application images.
	Application string
	// DefaultPath is the tool-computed path RevertFile restores.
	DefaultPath string
}

// ToolManaged reports whether the entry has a build-tool default it can be reverted to.
func (e *FileEntry) ToolManaged() bool {
	return e.Kind == KindApplicationImage && e.Application != ""
}

// Clone returns a copy of the entry.
func (e *FileEntry) Clone() *FileEntry {
	cloned := *e

	return &cloned
}

// SectionGroup holds the ordered entries of one kind for one node.
type SectionGroup struct {
	// Kind of every entry in the group.
	Kind FileKind
	// Entries in user order.
	Entries []*FileEntry
}

// Retained returns the entries that are not skipped.
func (g *SectionGroup) Retained() []*FileEntry {
	result := make([]*FileEntry, 0, len(g.Entries))

	for _, entry := range g.Entries {
		if !entry.Skip {
			result = append(result, entry)
		}
	}

	return result
}

// Clone returns a deep copy of the group.
func (g *SectionGroup) Clone() *SectionGroup {
	cloned := &SectionGroup{
		Kind:    g.Kind,
		Entries: make([]*FileEntry, 0, len(g.Entries)),
	}

	for _, entry := range g.Entries {
		cloned.Entries = append(cloned.Entries, entry.Clone())
	}

	return cloned
}

// EntryRef addresses one entry in the collector.
type EntryRef struct {
	// NodeID is the owning node.
	NodeID string
	// Kind selects the section.
	Kind FileKind
	// Index is the position within the section.
	Index int
}

// Actor identifies who created a package.
type Actor struct {
	// Hostname is the machine name where the package was created.
	Hostname string `yaml:"hostname"`
	// Username is the system user who created the package.
	Username string `yaml:"username"`
}
