package codec

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/update-packager/internal/domain/update"
	"github.com/oshokin/update-packager/internal/service/collector"
)

// newCollector builds a model with a programmable and a file-based node and a few edits.
func newCollector(t *testing.T) *collector.Collector {
	t.Helper()

	ctx := context.Background()
	slots := []update.NodeSlot{
		{
			NodeID:   "n1",
			NodeName: "ECU1",
			Device:   update.Device{Type: "ESX", Capabilities: update.Capabilities{Programmable: true}},
			Active:   true,
			Applications: []update.ApplicationUnit{
				{Name: "main", Programmable: true, OutputPath: "build/main.hex"},
				{Name: "aux", Programmable: true, OutputPath: "build/aux.hex"},
			},
		},
		{
			NodeID:   "n2",
			NodeName: "HMI",
			Device:   update.Device{Type: "HMI", Capabilities: update.Capabilities{FileBased: true}},
			Position: 1,
			Active:   true,
		},
	}

	c := collector.New(ctx, &update.Project{BaseDir: "/project"}, slots)

	require.NoError(t, c.SetPath(ctx, update.EntryRef{NodeID: "n1", Kind: update.KindApplicationImage, Index: 1}, "custom/aux.hex"))

	psi, err := c.AddFile(ctx, "n1", update.KindUnknown, "nvm/a.syde_psi")
	require.NoError(t, err)

	_, err = c.ToggleSkip(ctx, psi)
	require.NoError(t, err)

	_, err = c.AddFile(ctx, "n1", update.KindUnknown, "keys/device.pem")
	require.NoError(t, err)

	_, err = c.AddFile(ctx, "n2", update.KindUnknown, "ui/bundle.tar")
	require.NoError(t, err)

	return c
}

// TestExportImportRoundtrip verifies kind, path, skip and default flags survive in both formats.
func TestExportImportRoundtrip(t *testing.T) {
	t.Parallel()

	for _, format := range []Format{FormatYAML, FormatCBOR} {
		format := format

		t.Run(format.String(), func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			source := newCollector(t)

			var buf bytes.Buffer
			require.NoError(t, Export(ctx, &buf, source, format))

			target := collector.New(ctx, &update.Project{BaseDir: "/project"}, slotsOf(source))

			result, err := Import(ctx, &buf, target, format)
			require.NoError(t, err)
			require.Equal(t, []string{"n1", "n2"}, result.UpdatedNodes)
			require.Empty(t, result.IgnoredNodes)

			require.Equal(t, Build(source), Build(target))
			requireSameEntries(t, source, target)
		})
	}
}

// TestImport_LeavesUnmatchedNodes replaces only matched nodes and reports unknown ones.
func TestImport_LeavesUnmatchedNodes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newCollector(t)

	document := `version: 1
nodes:
  - id: ghost
    name: GHOST
    sections: []
  - id: renamed
    name: ECU1
    sections:
      - kind: param_set_image
        files:
          - path: other.syde_psi
            skip: false
            default: false
`

	result, err := Import(ctx, strings.NewReader(document), c, FormatYAML)
	require.NoError(t, err)
	require.Equal(t, []string{"n1"}, result.UpdatedNodes)
	require.Equal(t, []string{"GHOST"}, result.IgnoredNodes)

	n1, err := c.Node("n1")
	require.NoError(t, err)
	require.Empty(t, n1.Group(update.KindApplicationImage).Entries)
	require.Len(t, n1.Group(update.KindParamSetImage).Entries, 1)

	n2, err := c.Node("n2")
	require.NoError(t, err)
	require.Len(t, n2.Group(update.KindGenericFile).Entries, 1)
}

// TestImport_FailureLeavesModel checks malformed and illegal documents change nothing.
func TestImport_FailureLeavesModel(t *testing.T) {
	t.Parallel()

	documents := map[string]string{
		"malformed":     "version: [",
		"unknown field": "version: 1\nnodes: []\nextra: true\n",
		"wrong version": "version: 7\nnodes: []\n",
		"unknown kind": `version: 1
nodes:
  - id: n1
    sections:
      - kind: firmware
        files: []
`,
		"illegal file": `version: 1
nodes:
  - id: n2
    sections:
      - kind: generic_file
        files:
          - path: ok.bin
  - id: n1
    sections:
      - kind: param_set_image
        files:
          - path: not-a-psi.bin
`,
	}

	for name, document := range documents {
		document := document

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			c := newCollector(t)
			before := Build(c)

			_, err := Import(ctx, strings.NewReader(document), c, FormatYAML)
			require.ErrorIs(t, err, update.ErrCodec)
			require.Equal(t, before, Build(c))
		})
	}
}

// TestImport_RejectsUnknownBinaryField decodes binary documents as strictly as YAML ones.
func TestImport_RejectsUnknownBinaryField(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newCollector(t)
	before := Build(c)

	data, err := encMode.Marshal(map[string]any{
		"version": DocumentVersion,
		"nodes":   []NodeDocument{},
		"extra":   true,
	})
	require.NoError(t, err)

	_, err = Import(ctx, bytes.NewReader(data), c, FormatCBOR)
	require.ErrorIs(t, err, update.ErrCodec)
	require.Equal(t, before, Build(c))
}

// TestExportImport_SharedOutput round-trips a node whose data blocks share one output file.
func TestExportImport_SharedOutput(t *testing.T) {
	t.Parallel()

	slots := []update.NodeSlot{
		{
			NodeID:   "n1",
			NodeName: "ECU1",
			Device:   update.Device{Type: "ESX", Capabilities: update.Capabilities{Programmable: true}},
			Active:   true,
			Applications: []update.ApplicationUnit{
				{Name: "boot", Programmable: true, OutputPath: "/fw/all.hex"},
				{Name: "main", Programmable: true, OutputPath: "/fw/all.hex"},
			},
		},
	}

	for _, format := range []Format{FormatYAML, FormatCBOR} {
		format := format

		t.Run(format.String(), func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			source := collector.New(ctx, &update.Project{BaseDir: "/project"}, slots)

			var buf bytes.Buffer
			require.NoError(t, Export(ctx, &buf, source, format))

			target := collector.New(ctx, &update.Project{BaseDir: "/project"}, slots)

			_, err := Import(ctx, &buf, target, format)
			require.NoError(t, err)
			require.Equal(t, Build(source), Build(target))
			requireSameEntries(t, source, target)
		})
	}
}

// TestExportFile writes the document and picks CBOR by extension.
func TestExportFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	c := newCollector(t)

	yamlPath := filepath.Join(dir, "assignments"+ConfigExtension)
	require.NoError(t, ExportFile(ctx, yamlPath, c))

	contents, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	require.Contains(t, string(contents), "kind: application_image")

	cborPath := filepath.Join(dir, "assignments"+BinaryConfigExtension)
	require.NoError(t, ExportFile(ctx, cborPath, c))

	target := collector.New(ctx, &update.Project{BaseDir: "/project"}, slotsOf(c))

	_, err = ImportFile(ctx, cborPath, target)
	require.NoError(t, err)
	require.Equal(t, Build(c), Build(target))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

// TestFormatFromPath maps extensions to formats.
func TestFormatFromPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, FormatYAML, FormatFromPath("a.syde_up"))
	require.Equal(t, FormatYAML, FormatFromPath("a.yaml"))
	require.Equal(t, FormatCBOR, FormatFromPath("a.SYDE_UPB"))
	require.Equal(t, FormatCBOR, FormatFromPath("a.cbor"))
}

// slotsOf returns the slots of a collector.
func slotsOf(c *collector.Collector) []update.NodeSlot {
	slots := make([]update.NodeSlot, 0, len(c.Nodes()))
	for _, nf := range c.Nodes() {
		slots = append(slots, nf.Slot)
	}

	return slots
}

// requireSameEntries compares every entry field that the document carries.
func requireSameEntries(t *testing.T, want, got *collector.Collector) {
	t.Helper()

	for i, nf := range want.Nodes() {
		other := got.Nodes()[i]

		for _, group := range nf.Groups() {
			otherGroup := other.Group(group.Kind)
			require.Len(t, otherGroup.Entries, len(group.Entries))

			for j, entry := range group.Entries {
				require.Equal(t, entry.Kind, otherGroup.Entries[j].Kind)
				require.Equal(t, entry.Path, otherGroup.Entries[j].Path)
				require.Equal(t, entry.Resolved, otherGroup.Entries[j].Resolved)
				require.Equal(t, entry.Skip, otherGroup.Entries[j].Skip)
				require.Equal(t, entry.Origin, otherGroup.Entries[j].Origin)
			}
		}
	}
}
