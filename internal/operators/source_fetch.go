package operators

import (
	"context"
	"strconv"

	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/ioclient"
	"github.com/smilemakc/dagengine/internal/plan"
)

// sourceFetchOp fetches a single fixed viewer record from a
// key-value store and broadcasts its value across fanout freshly
// minted rows. Async, source-fanout-dense.
type sourceFetchOp struct{}

func (sourceFetchOp) Name() string  { return "source_fetch" }
func (sourceFetchOp) Shape() Shape  { return SourceFanoutDense }
func (sourceFetchOp) IsAsync() bool { return true }

func (sourceFetchOp) WritesEffect(params map[string]any) *plan.Effect {
	return &plan.Effect{Kind: plan.EffectFromParam, Param: "out_key"}
}

func (sourceFetchOp) RunSync(ctx context.Context, in []column.RowView, params map[string]any, env EvalEnv) (column.RowView, error) {
	return column.RowView{}, errWrongMode("source_fetch", false)
}

func (sourceFetchOp) RunAsync(ctx context.Context, io *ioclient.Cache, in []column.RowView, params map[string]any) (column.RowView, error) {
	endpointID, err := paramString(params, "endpoint")
	if err != nil {
		return column.RowView{}, err
	}
	key, err := paramString(params, "key")
	if err != nil {
		return column.RowView{}, err
	}
	fanout, err := paramInt(params, "fanout")
	if err != nil {
		return column.RowView{}, err
	}
	outKey, err := paramKeyID(params, "out_key")
	if err != nil {
		return column.RowView{}, err
	}
	if fanout < 0 {
		return column.RowView{}, apperr.New(apperr.KindValidation, "source_fetch: fanout must be non-negative")
	}

	adapter, err := io.Adapter(endpointID)
	if err != nil {
		return column.RowView{}, err
	}
	raw, found, err := adapter.Get(ctx, key)
	if err != nil {
		return column.RowView{}, err
	}

	var value float64
	valid := false
	if found {
		value, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return column.RowView{}, apperr.Wrap(apperr.KindEvaluation, err, "source_fetch: value at key %q is not numeric", key).WithKey(key)
		}
		valid = true
	}

	ids := make([]int64, fanout)
	values := make([]float64, fanout)
	validFlags := make([]bool, fanout)
	for i := range ids {
		ids[i] = int64(i)
		values[i] = value
		validFlags[i] = valid
	}

	bundle := column.NewBundle(ids).WithFloatColumn(outKey, &column.FloatColumn{Values: values, Valid: validFlags})
	return column.NewRowView(bundle), nil
}
