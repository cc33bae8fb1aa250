package view

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const projectYAML = `name: tractor
devices:
  - type: ESX3CM
    programmable: true
    aliases: [ESX3CM_B]
  - type: HMI
    file_based: true
nodes:
  - id: n1
    name: ECU1
    device: ESX3CM
    bus: CAN1
    applications:
      - name: main
        programmable: true
        output: build/ecu1.hex
  - id: n2
    device: HMI
    bus: ETH1
view:
  name: service
  positions: [1, 0]
  active: [true, true]
`

// TestFileRepository_NotFound verifies Load returns ErrNotFound for a missing file.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "missing.yaml"))
	project, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, project)
}

// TestFileRepository_Load converts the YAML layout into the domain project.
func TestFileRepository_Load(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(projectYAML), 0o600))

	project, err := NewFileRepository(path).Load(context.Background())
	require.NoError(t, err)

	require.Equal(t, "tractor", project.Name)
	require.Equal(t, dir, project.BaseDir)
	require.Len(t, project.Devices, 2)
	require.True(t, project.Devices["ESX3CM"].Programmable)
	require.Equal(t, []string{"ESX3CM_B"}, project.Devices["ESX3CM"].Aliases)
	require.True(t, project.Devices["HMI"].FileBased)

	require.Len(t, project.Nodes, 2)
	require.Equal(t, "ECU1", project.Nodes[0].Name)
	require.Equal(t, "n2", project.Nodes[1].Name)
	require.Equal(t, "build/ecu1.hex", project.Nodes[0].Applications[0].OutputPath)

	require.NotNil(t, project.View)
	require.Equal(t, []uint32{1, 0}, project.View.Positions)
	require.Equal(t, []bool{true, true}, project.View.Active)
}

// TestFileRepository_Duplicates rejects repeated node ids.
func TestFileRepository_Duplicates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "project.yaml")
	contents := "nodes:\n  - id: a\n  - id: a\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	_, err := NewFileRepository(path).Load(context.Background())
	require.ErrorIs(t, err, errDuplicateNode)
}
