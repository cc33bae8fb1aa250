package resolver

import (
	"context"
	"fmt"
	"slices"

	"github.com/oshokin/update-packager/internal/domain/update"
	"github.com/oshokin/update-packager/internal/logger"
)

// Resolve returns the active, eligible nodes of the project view ordered by
// requested position. Ties keep declaration order; positions are reassigned
// densely starting at 0.
func Resolve(ctx context.Context, project *update.Project, policy update.EligibilityPolicy) ([]update.NodeSlot, error) {
	if project == nil || project.View == nil {
		return nil, update.ErrConfigurationMissing
	}

	view := project.View
	if len(view.Positions) != len(project.Nodes) || len(view.Active) != len(project.Nodes) {
		return nil, fmt.Errorf("view %q covers %d positions and %d flags for %d nodes: %w",
			view.Name, len(view.Positions), len(view.Active), len(project.Nodes), update.ErrConfigurationMissing)
	}

	active := adaptSquads(project.Nodes, view.Active)
	slots := make([]update.NodeSlot, 0, len(project.Nodes))

	for i := range project.Nodes {
		node := &project.Nodes[i]
		if !active[i] {
			continue
		}

		device, known := project.Devices[node.DeviceType]
		if !known {
			logger.WarnKV(ctx, "Node references an unknown device, skipping",
				"node", node.Name, "device", node.DeviceType)

			continue
		}

		if !policy.Eligible(node, device) {
			logger.DebugKV(ctx, "Node is not eligible for updates", "node", node.Name, "device", device.Type)

			continue
		}

		slots = append(slots, update.NodeSlot{
			Index:             i,
			NodeID:            node.ID,
			NodeName:          node.Name,
			Device:            device,
			Bus:               node.Bus,
			RequestedPosition: view.Positions[i],
			Active:            true,
			Applications:      node.Applications,
		})
	}

	slices.SortStableFunc(slots, func(a, b update.NodeSlot) int {
		switch {
		case a.RequestedPosition < b.RequestedPosition:
			return -1
		case a.RequestedPosition > b.RequestedPosition:
			return 1
		default:
			return a.Index - b.Index
		}
	})

	for i := range slots {
		slots[i].Position = i
	}

	return slots, nil
}

// adaptSquads makes every member of a squad share the activation flag of the
// first declared member.
func adaptSquads(nodes []update.Node, active []bool) []bool {
	result := slices.Clone(active)
	leader := make(map[string]bool, len(nodes))

	for i, node := range nodes {
		if node.Squad == "" {
			continue
		}

		flag, seen := leader[node.Squad]
		if !seen {
			leader[node.Squad] = active[i]
			continue
		}

		result[i] = flag
	}

	return result
}
