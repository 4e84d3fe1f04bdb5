package operators

import (
	"context"

	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/ioclient"
	"github.com/smilemakc/dagengine/internal/plan"
)

// takeOp truncates a view to its first count active rows. Sync,
// prefix-of-input.
type takeOp struct{}

func (takeOp) Name() string  { return "take" }
func (takeOp) Shape() Shape  { return PrefixOfInput }
func (takeOp) IsAsync() bool { return false }

func (takeOp) WritesEffect(params map[string]any) *plan.Effect {
	return nil
}

func (takeOp) RunSync(ctx context.Context, in []column.RowView, params map[string]any, env EvalEnv) (column.RowView, error) {
	if len(in) != 1 {
		return column.RowView{}, errWrongMode("take", false)
	}
	count, err := paramInt(params, "count")
	if err != nil {
		return column.RowView{}, err
	}
	return in[0].Truncate(count), nil
}

func (takeOp) RunAsync(ctx context.Context, io *ioclient.Cache, in []column.RowView, params map[string]any) (column.RowView, error) {
	return column.RowView{}, errWrongMode("take", true)
}
