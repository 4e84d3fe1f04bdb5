package operators

import (
	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/expr"
	"github.com/smilemakc/dagengine/internal/pred"
)

// The linker resolves a node's expr_ref/pred_ref params against the
// plan's expr_table/pred_table before the scheduler invokes an
// operator, injecting the resolved IR tree under the same param name
// (e.g. "expr", "predicate") rather than making every operator carry a
// table lookup.
func paramExprNode(params map[string]any, name string) (*expr.Node, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return nil, apperr.New(apperr.KindValidation, "missing required expression param %q", name).WithParam(name)
	}
	n, ok := v.(*expr.Node)
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "param %q is not a resolved expression", name).WithParam(name)
	}
	return n, nil
}

func paramPredNode(params map[string]any, name string) (*pred.Node, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return nil, apperr.New(apperr.KindValidation, "missing required predicate param %q", name).WithParam(name)
	}
	n, ok := v.(*pred.Node)
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "param %q is not a resolved predicate", name).WithParam(name)
	}
	return n, nil
}

func paramInt(params map[string]any, name string) (int, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return 0, apperr.New(apperr.KindValidation, "missing required param %q", name).WithParam(name)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, apperr.New(apperr.KindValidation, "param %q is not an integer", name).WithParam(name)
	}
}

func paramString(params map[string]any, name string) (string, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return "", apperr.New(apperr.KindValidation, "missing required param %q", name).WithParam(name)
	}
	s, ok := v.(string)
	if !ok {
		return "", apperr.New(apperr.KindValidation, "param %q is not a string", name).WithParam(name)
	}
	return s, nil
}

func paramBool(params map[string]any, name string, def bool) (bool, error) {
	v, ok := params[name]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, apperr.New(apperr.KindValidation, "param %q is not a bool", name).WithParam(name)
	}
	return b, nil
}

func paramKeyID(params map[string]any, name string) (column.KeyID, error) {
	n, err := paramInt(params, name)
	if err != nil {
		return 0, err
	}
	return column.KeyID(n), nil
}
