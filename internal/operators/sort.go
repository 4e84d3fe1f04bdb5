package operators

import (
	"context"
	"sort"

	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/ioclient"
	"github.com/smilemakc/dagengine/internal/plan"
)

// sortOp produces a permutation ordering active rows by a key's float
// value, nulls last. Sync, unary-preserve-view (reorders rather than
// subsets).
type sortOp struct{}

func (sortOp) Name() string  { return "sort" }
func (sortOp) Shape() Shape  { return UnaryPreserveView }
func (sortOp) IsAsync() bool { return false }

func (sortOp) WritesEffect(params map[string]any) *plan.Effect {
	return nil
}

func (sortOp) RunSync(ctx context.Context, in []column.RowView, params map[string]any, env EvalEnv) (column.RowView, error) {
	if len(in) != 1 {
		return column.RowView{}, errWrongMode("sort", false)
	}
	view := in[0]
	key, err := paramKeyID(params, "key")
	if err != nil {
		return column.RowView{}, err
	}
	descending, err := paramBool(params, "descending", false)
	if err != nil {
		return column.RowView{}, err
	}

	col, hasCol := view.Bundle.Floats[key]
	active := view.Active()
	perm := make([]int, len(active))
	copy(perm, active)

	value := func(i int) (float64, bool) {
		if !hasCol {
			return 0, false
		}
		return col.Get(i)
	}

	sort.SliceStable(perm, func(a, b int) bool {
		va, oka := value(perm[a])
		vb, okb := value(perm[b])
		if !oka && !okb {
			return false
		}
		if !oka {
			return false // nulls last
		}
		if !okb {
			return true
		}
		if descending {
			return va > vb
		}
		return va < vb
	})

	return view.WithPermutation(perm), nil
}

func (sortOp) RunAsync(ctx context.Context, io *ioclient.Cache, in []column.RowView, params map[string]any) (column.RowView, error) {
	return column.RowView{}, errWrongMode("sort", true)
}
