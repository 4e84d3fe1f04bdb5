package plan

import (
	"encoding/json"
	"fmt"

	"github.com/smilemakc/dagengine/internal/column"
)

// effectJSON is the wire shape of an Effect node: a "kind" discriminator
// plus the fields relevant to that kind, mirroring the expr/pred IR
// tables' own JSON encoding.
type effectJSON struct {
	Kind     string            `json:"kind"`
	Keys     []column.KeyID    `json:"keys,omitempty"`
	Param    string            `json:"param,omitempty"`
	Cases    []effectCaseJSON  `json:"cases,omitempty"`
	Operands []json.RawMessage `json:"operands,omitempty"`
	Source   string            `json:"source,omitempty"`
}

type effectCaseJSON struct {
	Value  string          `json:"value"`
	Effect json.RawMessage `json:"effect"`
}

// ParseEffect decodes a writes-effect IR tree from its JSON encoding, as
// carried in a task manifest entry's writes_effect field.
func ParseEffect(data []byte) (*Effect, error) {
	var raw effectJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse writes-effect: %w", err)
	}
	switch raw.Kind {
	case "keys":
		return &Effect{Kind: EffectKeys, Keys: raw.Keys}, nil
	case "from_param":
		if raw.Param == "" {
			return nil, fmt.Errorf("from_param writes-effect missing param")
		}
		return &Effect{Kind: EffectFromParam, Param: raw.Param}, nil
	case "switch_enum":
		if raw.Param == "" {
			return nil, fmt.Errorf("switch_enum writes-effect missing param")
		}
		cases := make([]EffectCase, 0, len(raw.Cases))
		for _, c := range raw.Cases {
			inner, err := ParseEffect(c.Effect)
			if err != nil {
				return nil, err
			}
			cases = append(cases, EffectCase{Value: c.Value, Effect: inner})
		}
		return &Effect{Kind: EffectSwitchEnum, Param: raw.Param, Cases: cases}, nil
	case "union":
		ops := make([]*Effect, 0, len(raw.Operands))
		for _, o := range raw.Operands {
			inner, err := ParseEffect(o)
			if err != nil {
				return nil, err
			}
			ops = append(ops, inner)
		}
		return &Effect{Kind: EffectUnion, Operands: ops}, nil
	case "expr":
		if raw.Source == "" {
			return nil, fmt.Errorf("expr writes-effect missing source")
		}
		return &Effect{Kind: EffectExpr, Source: raw.Source}, nil
	default:
		return nil, fmt.Errorf("unknown writes-effect kind %q", raw.Kind)
	}
}
