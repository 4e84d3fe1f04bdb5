package operators

import (
	"context"

	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/ioclient"
	"github.com/smilemakc/dagengine/internal/plan"
	"github.com/smilemakc/dagengine/internal/pred"
)

// filterOp evaluates a predicate per active row and updates selection
// only — it never touches a column. Sync, unary-subset-view.
type filterOp struct{}

func (filterOp) Name() string  { return "filter" }
func (filterOp) Shape() Shape  { return UnarySubsetView }
func (filterOp) IsAsync() bool { return false }

func (filterOp) WritesEffect(params map[string]any) *plan.Effect {
	return nil
}

func (filterOp) RunSync(ctx context.Context, in []column.RowView, params map[string]any, env EvalEnv) (column.RowView, error) {
	if len(in) != 1 {
		return column.RowView{}, errWrongMode("filter", false)
	}
	view := in[0]
	node, err := paramPredNode(params, "predicate")
	if err != nil {
		return column.RowView{}, err
	}

	active := view.Active()
	sel := make([]int, 0, len(active))
	for _, i := range active {
		ok, err := pred.EvalForFilter(node, pred.Row{Bundle: view.Bundle, Index: i}, env.Params, env.Regex)
		if err != nil {
			return column.RowView{}, err
		}
		if ok {
			sel = append(sel, i)
		}
	}
	return view.WithSelection(sel), nil
}

func (filterOp) RunAsync(ctx context.Context, io *ioclient.Cache, in []column.RowView, params map[string]any) (column.RowView, error) {
	return column.RowView{}, errWrongMode("filter", true)
}
