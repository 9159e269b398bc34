package topology

import (
	"log/slog"
	"testing"

	"github.com/ankitchouhan119/SkyObserv/internal/models"
)

func TestBuildDropsDanglingEdges(t *testing.T) {
	nodes := []models.TopologyNode{
		{ID: "a", Name: "gateway", IsReal: true},
		{ID: "b", Name: "checkout", IsReal: true},
	}
	calls := []models.TopologyCall{
		{ID: "a-b", Source: "a", Target: "b"},
		{ID: "a-c", Source: "a", Target: "c"},
		{ID: "d-b", Source: "d", Target: "b"},
	}

	g := Build(slog.Default(), nodes, calls)

	if len(g.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(g.Nodes))
	}
	if len(g.Edges) != 1 {
		t.Fatalf("edges = %+v, want only a-b", g.Edges)
	}
	if g.Edges[0].Source != "a" || g.Edges[0].Target != "b" {
		t.Fatalf("surviving edge = %+v", g.Edges[0])
	}
}

func TestBuildKeepsVirtualNodes(t *testing.T) {
	nodes := []models.TopologyNode{
		{ID: "a", Name: "checkout", IsReal: true},
		{ID: "db", Name: "mysql:3306", IsReal: false},
	}
	calls := []models.TopologyCall{{ID: "a-db", Source: "a", Target: "db"}}

	g := Build(slog.Default(), nodes, calls)

	if len(g.Nodes) != 2 || len(g.Edges) != 1 {
		t.Fatalf("graph = %+v", g)
	}
	if g.Nodes[1].IsReal {
		t.Fatalf("virtual flag lost: %+v", g.Nodes[1])
	}
}

func TestBuildEmptyInputs(t *testing.T) {
	g := Build(slog.Default(), nil, nil)
	if len(g.Nodes) != 0 || len(g.Edges) != 0 {
		t.Fatalf("empty build = %+v", g)
	}
}
