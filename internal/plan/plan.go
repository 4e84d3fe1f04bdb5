package plan

import (
	"encoding/json"
	"fmt"

	"github.com/smilemakc/dagengine/internal/expr"
	"github.com/smilemakc/dagengine/internal/pred"
)

// Node is one plan node: an operator invocation with bound params and
// its input node ids.
type Node struct {
	ID         string                     `json:"node_id"`
	Op         string                     `json:"op"`
	Inputs     []string                   `json:"inputs"`
	Params     map[string]any             `json:"params"`
	Extensions map[string]json.RawMessage `json:"extensions,omitempty"`
}

// BuiltBy records the producing backend and tool version (carried
// verbatim in the artifact, never interpreted by the engine).
type BuiltBy struct {
	Backend     string `json:"backend"`
	Tool        string `json:"tool"`
	ToolVersion string `json:"tool_version"`
}

// Plan is the parsed form of a plan artifact.
type Plan struct {
	SchemaVersion        int                        `json:"schema_version"`
	Name                 string                     `json:"plan_name"`
	Nodes                []Node                     `json:"nodes"`
	Outputs              []string                   `json:"outputs"`
	ExprTable            map[string]*expr.Node      `json:"-"`
	PredTable            map[string]*pred.Node      `json:"-"`
	CapabilitiesRequired []string                   `json:"capabilities_required"`
	Extensions           map[string]json.RawMessage `json:"extensions,omitempty"`
	BuiltBy              BuiltBy                    `json:"built_by"`

	rawExprTable map[string]json.RawMessage
	rawPredTable map[string]json.RawMessage

	nodeByID map[string]*Node
}

type planJSON struct {
	SchemaVersion        int                        `json:"schema_version"`
	Name                 string                     `json:"plan_name"`
	Nodes                []Node                     `json:"nodes"`
	Outputs              []string                   `json:"outputs"`
	ExprTable            map[string]json.RawMessage `json:"expr_table"`
	PredTable            map[string]json.RawMessage `json:"pred_table"`
	CapabilitiesRequired []string                   `json:"capabilities_required"`
	Extensions           map[string]json.RawMessage `json:"extensions,omitempty"`
	BuiltBy              BuiltBy                    `json:"built_by"`
}

// Parse decodes a plan artifact from its canonical JSON encoding,
// resolving expr_table and pred_table entries into IR trees.
func Parse(data []byte) (*Plan, error) {
	var raw planJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	p := &Plan{
		SchemaVersion:        raw.SchemaVersion,
		Name:                 raw.Name,
		Nodes:                raw.Nodes,
		Outputs:              raw.Outputs,
		CapabilitiesRequired: raw.CapabilitiesRequired,
		Extensions:           raw.Extensions,
		BuiltBy:              raw.BuiltBy,
		ExprTable:            make(map[string]*expr.Node, len(raw.ExprTable)),
		PredTable:            make(map[string]*pred.Node, len(raw.PredTable)),
		nodeByID:             make(map[string]*Node, len(raw.Nodes)),
	}

	for id, rawNode := range raw.ExprTable {
		n, err := expr.ParseNode(rawNode)
		if err != nil {
			return nil, fmt.Errorf("expr_table[%s]: %w", id, err)
		}
		p.ExprTable[id] = n
	}
	for id, rawNode := range raw.PredTable {
		n, err := pred.ParseNode(rawNode)
		if err != nil {
			return nil, fmt.Errorf("pred_table[%s]: %w", id, err)
		}
		p.PredTable[id] = n
	}
	for i := range p.Nodes {
		p.nodeByID[p.Nodes[i].ID] = &p.Nodes[i]
	}

	return p, nil
}

// NodeByID returns the node with the given id, or nil.
func (p *Plan) NodeByID(id string) *Node {
	return p.nodeByID[id]
}
