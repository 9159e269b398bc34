package models

import (
	"bytes"
	"encoding/json"
)

// TopologyNode is one vertex of the service dependency graph. IsReal
// distinguishes backend-observed services from inferred/virtual peers (a
// pass-through flag that drives styling in the consuming renderer).
type TopologyNode struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Kind   string   `json:"type,omitempty"`
	IsReal bool     `json:"isReal"`
	Layers []string `json:"layers,omitempty"`
}

// TopologyCall is a raw directed edge as delivered by the backend. Endpoints
// may arrive as bare ids or as nested objects carrying an id.
type TopologyCall struct {
	ID           string   `json:"id"`
	Source       NodeRef  `json:"source"`
	Target       NodeRef  `json:"target"`
	DetectPoints []string `json:"detectPoints,omitempty"`
}

// NodeRef decodes either a JSON string id or an object with an "id" field.
type NodeRef string

func (r *NodeRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*r = NodeRef(obj.ID)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = NodeRef(s)
	return nil
}

func (r NodeRef) String() string { return string(r) }

// TopologyEdge is a validated edge of a renderable graph; both endpoints are
// guaranteed to reference ids present in the node set.
type TopologyEdge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// TopologyGraph is the validated, renderable service graph.
type TopologyGraph struct {
	Nodes []TopologyNode `json:"nodes"`
	Edges []TopologyEdge `json:"edges"`
}
