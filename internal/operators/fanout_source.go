package operators

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/ioclient"
	"github.com/smilemakc/dagengine/internal/plan"
)

// fanoutSourceOp issues one remote read per candidate row, each call
// bounded by its endpoint's own inflight limiter (ioclient.Adapter
// owns that concurrency bound, so this operator just fires one
// goroutine per candidate and lets the adapter queue them). Async,
// source-fanout-dense.
type fanoutSourceOp struct{}

func (fanoutSourceOp) Name() string  { return "fanout_source" }
func (fanoutSourceOp) Shape() Shape  { return SourceFanoutDense }
func (fanoutSourceOp) IsAsync() bool { return true }

func (fanoutSourceOp) WritesEffect(params map[string]any) *plan.Effect {
	return &plan.Effect{Kind: plan.EffectFromParam, Param: "out_key"}
}

func (fanoutSourceOp) RunSync(ctx context.Context, in []column.RowView, params map[string]any, env EvalEnv) (column.RowView, error) {
	return column.RowView{}, errWrongMode("fanout_source", false)
}

func (fanoutSourceOp) RunAsync(ctx context.Context, io *ioclient.Cache, in []column.RowView, params map[string]any) (column.RowView, error) {
	if len(in) != 1 {
		return column.RowView{}, errWrongMode("fanout_source", true)
	}
	endpointID, err := paramString(params, "endpoint")
	if err != nil {
		return column.RowView{}, err
	}
	keyTemplate, err := paramString(params, "key_template")
	if err != nil {
		return column.RowView{}, err
	}
	outKey, err := paramKeyID(params, "out_key")
	if err != nil {
		return column.RowView{}, err
	}

	adapter, err := io.Adapter(endpointID)
	if err != nil {
		return column.RowView{}, err
	}

	candidates := in[0]
	active := candidates.Active()
	n := len(active)

	ids := make([]int64, n)
	values := make([]float64, n)
	valid := make([]bool, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for pos, rowIdx := range active {
		pos, rowIdx := pos, rowIdx
		id := candidates.Bundle.IDs[rowIdx]
		ids[pos] = id
		go func() {
			defer wg.Done()
			key := fmt.Sprintf(keyTemplate, id)
			raw, found, err := adapter.Get(ctx, key)
			if err != nil {
				errs[pos] = err
				return
			}
			if !found {
				return
			}
			v, perr := strconv.ParseFloat(raw, 64)
			if perr != nil {
				errs[pos] = apperr.Wrap(apperr.KindEvaluation, perr, "fanout_source: value at key %q is not numeric", key).WithKey(key)
				return
			}
			values[pos], valid[pos] = v, true
		}()
	}
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			return column.RowView{}, e
		}
	}

	bundle := column.NewBundle(ids).WithFloatColumn(outKey, &column.FloatColumn{Values: values, Valid: valid})
	return column.NewRowView(bundle), nil
}
