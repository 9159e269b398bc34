// Package topology validates raw dependency graphs into renderable form.
package topology

import (
	"log/slog"

	"github.com/ankitchouhan119/SkyObserv/internal/models"
)

// Build assembles a renderable graph from backend nodes and call edges. Any
// edge referencing a node id absent from the node set is dropped and logged;
// a dangling edge would otherwise crash or corrupt the consuming renderer.
// Nodes are kept verbatim, including virtual (non-real) peers.
func Build(logger *slog.Logger, nodes []models.TopologyNode, calls []models.TopologyCall) models.TopologyGraph {
	valid := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		valid[n.ID] = struct{}{}
	}

	edges := make([]models.TopologyEdge, 0, len(calls))
	for _, call := range calls {
		source, target := call.Source.String(), call.Target.String()
		_, okS := valid[source]
		_, okT := valid[target]
		if !okS || !okT {
			logger.Warn("dropping dangling topology edge",
				"edge", call.ID, "source", source, "target", target)
			continue
		}
		edges = append(edges, models.TopologyEdge{ID: call.ID, Source: source, Target: target})
	}

	out := make([]models.TopologyNode, len(nodes))
	copy(out, nodes)
	return models.TopologyGraph{Nodes: out, Edges: edges}
}
