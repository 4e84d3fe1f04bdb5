// Package plan implements the Plan data model, the writes-effect
// algebra, and the nine-step validator.
package plan

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"

	"github.com/smilemakc/dagengine/internal/column"
)

// EffectKind identifies a writes-effect IR node's operator.
type EffectKind int

const (
	EffectKeys EffectKind = iota
	EffectFromParam
	EffectSwitchEnum
	EffectUnion
	// EffectExpr is the best-effort arm of the writes_effect.v2
	// capability: an expr-lang expression over the node's bound params,
	// expected to evaluate to a key id or a list of key ids. It never
	// reaches Exact precision — a compile or evaluation failure widens
	// to Unknown rather than failing validation, since the expression
	// is not checked by the closed-form algebra the other arms are.
	EffectExpr
)

// EffectCase is one case of a SwitchEnum node.
type EffectCase struct {
	Value  string
	Effect *Effect
}

// Effect is a writes-effect IR node (the algebra of the data model).
type Effect struct {
	Kind EffectKind

	Keys []column.KeyID // EffectKeys

	Param string // EffectFromParam, EffectSwitchEnum

	Cases []EffectCase // EffectSwitchEnum

	Operands []*Effect // EffectUnion

	Source string // EffectExpr: expr-lang expression source
}

// ResultKind is the precision of an evaluated writes-effect.
type ResultKind int

const (
	Exact ResultKind = iota
	May
	Unknown
)

// Result is the outcome of evaluating a writes-effect against a bound
// parameter environment: a precision tag plus a sorted, duplicate-free
// key set.
type Result struct {
	Kind ResultKind
	Keys []column.KeyID
}

// Eval evaluates e against params (the node's bound parameter values),
// producing a precision-tagged, sorted, duplicate-free key set.
func Eval(e *Effect, params map[string]any) (Result, error) {
	switch e.Kind {
	case EffectKeys:
		return Result{Kind: Exact, Keys: sortedUnique(e.Keys)}, nil
	case EffectFromParam:
		return evalFromParam(e, params)
	case EffectSwitchEnum:
		return evalSwitchEnum(e, params)
	case EffectUnion:
		return evalUnion(e, params)
	case EffectExpr:
		return evalExpr(e, params)
	default:
		return Result{}, fmt.Errorf("unknown writes-effect kind %d", e.Kind)
	}
}

// evalExpr runs e.Source as an expr-lang program over params. Any
// compile or evaluation failure widens to Unknown rather than
// propagating an error: the expression is an optional, best-effort
// refinement, not load-bearing for plan validation to succeed.
func evalExpr(e *Effect, params map[string]any) (Result, error) {
	program, err := expr.Compile(e.Source, expr.Env(params))
	if err != nil {
		return Result{Kind: Unknown}, nil
	}
	output, err := expr.Run(program, params)
	if err != nil {
		return Result{Kind: Unknown}, nil
	}

	keys, ok := exprOutputToKeys(output)
	if !ok {
		return Result{Kind: Unknown}, nil
	}
	return Result{Kind: May, Keys: sortedUnique(keys)}, nil
}

func exprOutputToKeys(output any) ([]column.KeyID, bool) {
	switch v := output.(type) {
	case nil:
		return nil, true
	case []any:
		keys := make([]column.KeyID, 0, len(v))
		for _, item := range v {
			k, err := paramAsKey(item)
			if err != nil {
				return nil, false
			}
			keys = append(keys, k)
		}
		return keys, true
	default:
		k, err := paramAsKey(v)
		if err != nil {
			return nil, false
		}
		return []column.KeyID{k}, true
	}
}

func evalFromParam(e *Effect, params map[string]any) (Result, error) {
	v, ok := params[e.Param]
	if !ok || v == nil {
		return Result{Kind: Unknown}, nil
	}
	key, err := paramAsKey(v)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: Exact, Keys: []column.KeyID{key}}, nil
}

func paramAsKey(v any) (column.KeyID, error) {
	switch n := v.(type) {
	case column.KeyID:
		return n, nil
	case int:
		return column.KeyID(n), nil
	case int64:
		return column.KeyID(n), nil
	case float64:
		return column.KeyID(n), nil
	default:
		return 0, fmt.Errorf("writes-effect FromParam: value %v is not a key id", v)
	}
}

func evalSwitchEnum(e *Effect, params map[string]any) (Result, error) {
	v, ok := params[e.Param]
	if !ok || v == nil {
		return Result{Kind: Unknown}, nil
	}
	s, ok := v.(string)
	if !ok {
		return Result{}, fmt.Errorf("writes-effect SwitchEnum: param %q is not a string", e.Param)
	}
	for _, c := range e.Cases {
		if c.Value == s {
			return Eval(c.Effect, params)
		}
	}
	// Bound to a value outside the known cases, but the case set is
	// bounded: May over the union of all declared alternatives.
	union := &Effect{Kind: EffectUnion}
	for _, c := range e.Cases {
		union.Operands = append(union.Operands, c.Effect)
	}
	res, err := evalUnion(union, params)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: May, Keys: res.Keys}, nil
}

func evalUnion(e *Effect, params map[string]any) (Result, error) {
	kind := Exact
	var keys []column.KeyID
	for _, op := range e.Operands {
		res, err := Eval(op, params)
		if err != nil {
			return Result{}, err
		}
		keys = append(keys, res.Keys...)
		switch res.Kind {
		case Unknown:
			kind = Unknown
		case May:
			if kind != Unknown {
				kind = May
			}
		}
	}
	return Result{Kind: kind, Keys: sortedUnique(keys)}, nil
}

func sortedUnique(keys []column.KeyID) []column.KeyID {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[column.KeyID]struct{}, len(keys))
	out := make([]column.KeyID, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
