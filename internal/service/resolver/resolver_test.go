package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/update-packager/internal/domain/update"
)

// newProject builds a project with one programmable device and the given view.
func newProject(positions []uint32, active []bool) *update.Project {
	project := &update.Project{
		Name: "test",
		Devices: map[string]update.Device{
			"ECU": {Type: "ECU", Capabilities: update.Capabilities{Programmable: true}},
			"IO":  {Type: "IO"},
		},
		View: &update.View{Name: "v", Positions: positions, Active: active},
	}

	for i := range positions {
		project.Nodes = append(project.Nodes, update.Node{
			ID:         string(rune('a' + i)),
			Name:       "node-" + string(rune('a'+i)),
			DeviceType: "ECU",
			Applications: []update.ApplicationUnit{
				{Name: "app", Programmable: true, OutputPath: "app.hex"},
			},
		})
	}

	return project
}

// nodeIDs extracts the node ids in slot order.
func nodeIDs(slots []update.NodeSlot) []string {
	ids := make([]string, 0, len(slots))
	for _, slot := range slots {
		ids = append(ids, slot.NodeID)
	}

	return ids
}

// TestResolve_InactiveFirstAtSharedPosition checks the hole left by an inactive node is closed.
func TestResolve_InactiveFirstAtSharedPosition(t *testing.T) {
	t.Parallel()

	project := newProject([]uint32{0, 0, 1}, []bool{false, true, true})

	slots, err := Resolve(context.Background(), project, update.DefaultEligibilityPolicy())
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, nodeIDs(slots))
	require.Equal(t, 0, slots[0].Position)
	require.Equal(t, 1, slots[1].Position)
}

// TestResolve_OrderAndTies verifies sorting by requested position with declaration-order ties.
func TestResolve_OrderAndTies(t *testing.T) {
	t.Parallel()

	project := newProject([]uint32{5, 2, 5, 0, 2}, []bool{true, true, true, true, true})

	slots, err := Resolve(context.Background(), project, update.DefaultEligibilityPolicy())
	require.NoError(t, err)
	require.Equal(t, []string{"d", "b", "e", "a", "c"}, nodeIDs(slots))

	for i, slot := range slots {
		require.Equal(t, i, slot.Position)
		require.True(t, slot.Active)
	}
}

// TestResolve_IneligibleExcluded ensures ineligible and unknown devices are silently dropped.
func TestResolve_IneligibleExcluded(t *testing.T) {
	t.Parallel()

	project := newProject([]uint32{0, 1, 2}, []bool{true, true, true})
	project.Nodes[0].DeviceType = "IO"
	project.Nodes[1].DeviceType = "missing"

	slots, err := Resolve(context.Background(), project, update.DefaultEligibilityPolicy())
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, nodeIDs(slots))
	require.Equal(t, 0, slots[0].Position)
}

// TestResolve_ConfigurationMissing covers absent and inconsistent view data.
func TestResolve_ConfigurationMissing(t *testing.T) {
	t.Parallel()

	_, err := Resolve(context.Background(), nil, update.DefaultEligibilityPolicy())
	require.ErrorIs(t, err, update.ErrConfigurationMissing)

	project := newProject([]uint32{0}, []bool{true})
	project.View = nil

	_, err = Resolve(context.Background(), project, update.DefaultEligibilityPolicy())
	require.ErrorIs(t, err, update.ErrConfigurationMissing)

	project = newProject([]uint32{0, 1}, []bool{true, true})
	project.View.Active = []bool{true}

	_, err = Resolve(context.Background(), project, update.DefaultEligibilityPolicy())
	require.ErrorIs(t, err, update.ErrConfigurationMissing)
}

// TestResolve_Squads verifies squad members follow the first member's activation.
func TestResolve_Squads(t *testing.T) {
	t.Parallel()

	project := newProject([]uint32{0, 1, 2}, []bool{true, false, false})
	project.Nodes[0].Squad = "boom"
	project.Nodes[1].Squad = "boom"

	slots, err := Resolve(context.Background(), project, update.DefaultEligibilityPolicy())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, nodeIDs(slots))
}

// TestResolve_PolicyApplied checks the configured policy decides eligibility.
func TestResolve_PolicyApplied(t *testing.T) {
	t.Parallel()

	project := newProject([]uint32{0, 1}, []bool{true, true})
	project.Nodes[1].Applications = nil

	slots, err := Resolve(context.Background(), project, update.EligibilityPolicy{RequireApplication: true})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, nodeIDs(slots))
}
