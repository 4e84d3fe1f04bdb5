package scheduler

import (
	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/plan"
)

// resolveNodeParams copies a node's raw params, substituting any
// expr_ref/pred_ref entry with the resolved IR tree it names, under the
// "expr"/"predicate" keys the operators package expects. This keeps the
// plan's table-of-IR-trees indirection out of every operator.
func resolveNodeParams(node *plan.Node, p *plan.Plan) (map[string]any, error) {
	out := make(map[string]any, len(node.Params)+2)
	for k, v := range node.Params {
		out[k] = v
	}

	if ref, ok := node.Params["expr_ref"]; ok {
		id, ok := ref.(string)
		if !ok {
			return nil, apperr.New(apperr.KindValidation, "expr_ref must be a string").WithNode(node.ID)
		}
		n, ok := p.ExprTable[id]
		if !ok {
			return nil, apperr.New(apperr.KindValidation, "expr_ref %q not found in expr_table", id).WithNode(node.ID)
		}
		out["expr"] = n
	}

	if ref, ok := node.Params["pred_ref"]; ok {
		id, ok := ref.(string)
		if !ok {
			return nil, apperr.New(apperr.KindValidation, "pred_ref must be a string").WithNode(node.ID)
		}
		n, ok := p.PredTable[id]
		if !ok {
			return nil, apperr.New(apperr.KindValidation, "pred_ref %q not found in pred_table", id).WithNode(node.ID)
		}
		out["predicate"] = n
	}

	return out, nil
}
