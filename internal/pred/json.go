package pred

import (
	"encoding/json"
	"fmt"

	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/expr"
)

type nodeJSON struct {
	Kind         string          `json:"kind"`
	Value        bool            `json:"value,omitempty"`
	A            json.RawMessage `json:"a,omitempty"`
	B            json.RawMessage `json:"b,omitempty"`
	Op           string          `json:"op,omitempty"`
	LHS          json.RawMessage `json:"lhs,omitempty"`
	RHS          json.RawMessage `json:"rhs,omitempty"`
	RHSLiteralNull bool          `json:"rhs_literal_null,omitempty"`
	NumericList  []float64       `json:"numeric_list,omitempty"`
	StringList   []string        `json:"string_list,omitempty"`
	RegexKey     column.KeyID    `json:"key,omitempty"`
	Pattern      string          `json:"pattern,omitempty"`
	PatternParam string          `json:"pattern_param,omitempty"`
	Flags        string          `json:"flags,omitempty"`
}

var cmpOps = map[string]CmpOp{
	"==": Eq, "!=": Ne, "<": Lt, "<=": Le, ">": Gt, ">=": Ge,
}

// ParseNode decodes one predicate IR node (and its subtree) from its
// JSON encoding, the wire shape of a plan artifact's pred_table entries.
func ParseNode(data []byte) (*Node, error) {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse pred node: %w", err)
	}

	n := &Node{
		Value:            raw.Value,
		RHSIsLiteralNull: raw.RHSLiteralNull,
		NumericList:      raw.NumericList,
		StringList:       raw.StringList,
		IsStringIn:       raw.StringList != nil,
		RegexKey:         raw.RegexKey,
		Pattern:          raw.Pattern,
		PatternParam:     raw.PatternParam,
		Flags:            raw.Flags,
	}

	switch raw.Kind {
	case "const_bool":
		n.Kind = ConstBool
	case "and", "or":
		if raw.Kind == "and" {
			n.Kind = And
		} else {
			n.Kind = Or
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
	case "not":
		n.Kind = Not
		a, err := ParseNode(raw.A)
		if err != nil {
			return nil, err
		}
		n.A = a
	case "cmp":
		n.Kind = Cmp
		op, ok := cmpOps[raw.Op]
		if !ok {
			return nil, fmt.Errorf("unknown cmp op %q", raw.Op)
		}
		n.Op = op
		lhs, err := expr.ParseNode(raw.LHS)
		if err != nil {
			return nil, err
		}
		n.LHS = lhs
		if !raw.RHSLiteralNull {
			rhs, err := expr.ParseNode(raw.RHS)
			if err != nil {
				return nil, err
			}
			n.RHS = rhs
			if rhs.Kind == expr.ConstNull {
				n.RHSIsLiteralNull = true
			}
		}
	case "in":
		n.Kind = In
		lhs, err := expr.ParseNode(raw.LHS)
		if err != nil {
			return nil, err
		}
		n.LHS = lhs
	case "is_null", "not_null":
		if raw.Kind == "is_null" {
			n.Kind = IsNull
		} else {
			n.Kind = NotNull
		}
		lhs, err := expr.ParseNode(raw.LHS)
		if err != nil {
			return nil, err
		}
		n.LHS = lhs
	case "regex":
		n.Kind = Regex
	default:
		return nil, fmt.Errorf("unknown pred node kind %q", raw.Kind)
	}
	return n, nil
}
