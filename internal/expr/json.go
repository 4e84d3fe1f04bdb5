package expr

import (
	"encoding/json"
	"fmt"

	"github.com/smilemakc/dagengine/internal/column"
)

type nodeJSON struct {
	Kind  string          `json:"kind"`
	Value float64         `json:"value,omitempty"`
	Key   column.KeyID    `json:"key,omitempty"`
	Param string          `json:"param,omitempty"`
	A     json.RawMessage `json:"a,omitempty"`
	B     json.RawMessage `json:"b,omitempty"`
}

// ParseNode decodes one expression IR node (and its subtree) from its
// JSON encoding, the wire shape of a plan artifact's expr_table entries.
func ParseNode(data []byte) (*Node, error) {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse expr node: %w", err)
	}

	n := &Node{Value: raw.Value, Key: raw.Key, Param: raw.Param}
	switch raw.Kind {
	case "const_number":
		n.Kind = ConstNumber
	case "const_null":
		n.Kind = ConstNull
	case "key_ref":
		n.Kind = KeyRef
	case "param_ref":
		n.Kind = ParamRef
	case "add", "sub", "mul", "coalesce":
		switch raw.Kind {
		case "add":
			n.Kind = Add
		case "sub":
			n.Kind = Sub
		case "mul":
			n.Kind = Mul
		case "coalesce":
			n.Kind = Coalesce
		}
		a, err := ParseNode(raw.A)
		if err != nil {
			return nil, err
		}
		b, err := ParseNode(raw.B)
		if err != nil {
			return nil, err
		}
		n.A, n.B = a, b
	case "neg":
		n.Kind = Neg
		a, err := ParseNode(raw.A)
		if err != nil {
			return nil, err
		}
		n.A = a
	default:
		return nil, fmt.Errorf("unknown expr node kind %q", raw.Kind)
	}
	return n, nil
}
