package operators

import (
	"context"

	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/expr"
	"github.com/smilemakc/dagengine/internal/ioclient"
	"github.com/smilemakc/dagengine/internal/plan"
)

// vmOp evaluates one expression per active row and writes a float
// column at a param-specified key. Sync, unary-preserve-view.
type vmOp struct{}

func (vmOp) Name() string  { return "vm" }
func (vmOp) Shape() Shape  { return UnaryPreserveView }
func (vmOp) IsAsync() bool { return false }

func (vmOp) WritesEffect(params map[string]any) *plan.Effect {
	return &plan.Effect{Kind: plan.EffectFromParam, Param: "out_key"}
}

func (vmOp) RunSync(ctx context.Context, in []column.RowView, params map[string]any, env EvalEnv) (column.RowView, error) {
	if len(in) != 1 {
		return column.RowView{}, errWrongMode("vm", false)
	}
	view := in[0]
	outKey, err := paramKeyID(params, "out_key")
	if err != nil {
		return column.RowView{}, err
	}
	node, err := paramExprNode(params, "expr")
	if err != nil {
		return column.RowView{}, err
	}

	active := view.Active()
	n := view.Bundle.N
	values := make([]float64, n)
	valid := make([]bool, n)
	for _, i := range active {
		v, ok, err := expr.Eval(node, expr.Row{Bundle: view.Bundle, Index: i}, env.Params)
		if err != nil {
			return column.RowView{}, err
		}
		values[i], valid[i] = v, ok
	}

	out := view.Bundle.WithFloatColumn(outKey, &column.FloatColumn{Values: values, Valid: valid})
	return column.RowView{Bundle: out, Selection: view.Selection, Permutation: view.Permutation}, nil
}

func (vmOp) RunAsync(ctx context.Context, io *ioclient.Cache, in []column.RowView, params map[string]any) (column.RowView, error) {
	return column.RowView{}, errWrongMode("vm", true)
}
