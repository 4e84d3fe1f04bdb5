package operators

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/expr"
	"github.com/smilemakc/dagengine/internal/ioclient"
	"github.com/smilemakc/dagengine/internal/pred"
	"github.com/smilemakc/dagengine/internal/registry"
)

func floatBundle(ids []int64, key column.KeyID, values []float64, valid []bool) *column.Bundle {
	b := column.NewBundle(ids)
	return b.WithFloatColumn(key, &column.FloatColumn{Values: values, Valid: valid})
}

func TestTable_HasAllEightOperators(t *testing.T) {
	for _, name := range []string{"source_fetch", "fanout_source", "vm", "filter", "take", "sort", "concat", "sleep"} {
		_, ok := Table[name]
		require.True(t, ok, "missing operator %q", name)
	}
}

func TestVM_WritesFloatColumnPreservingView(t *testing.T) {
	b := floatBundle([]int64{1, 2, 3}, 10, []float64{1, 2, 3}, []bool{true, true, true})
	view := column.NewRowView(b)

	node := &expr.Node{Kind: expr.Mul, A: &expr.Node{Kind: expr.KeyRef, Key: 1}, B: &expr.Node{Kind: expr.ConstNumber, Value: 2}}
	params := map[string]any{"out_key": 20, "expr": node}

	out, err := vmOp{}.RunSync(context.Background(), []column.RowView{view}, params, EvalEnv{Params: expr.Env{}})
	require.NoError(t, err)
	require.Equal(t, view.LogicalSize(), out.LogicalSize())

	col := out.Bundle.Floats[20]
	v, ok := col.Get(0)
	require.True(t, ok)
	require.Equal(t, 2.0, v)
}

func TestFilter_SubsetsSelectionOnly(t *testing.T) {
	b := floatBundle([]int64{1, 2, 3, 4}, 10, []float64{1, 2, 3, 4}, []bool{true, true, true, true})
	view := column.NewRowView(b)

	node := &pred.Node{
		Kind: pred.Cmp, Op: pred.Gt,
		LHS: &expr.Node{Kind: expr.KeyRef, Key: 10},
		RHS: &expr.Node{Kind: expr.ConstNumber, Value: 2},
	}
	params := map[string]any{"predicate": node}

	out, err := filterOp{}.RunSync(context.Background(), []column.RowView{view}, params, EvalEnv{Params: expr.Env{}, Regex: pred.NewCache()})
	require.NoError(t, err)
	require.Equal(t, []int{2, 3}, out.Active())
	require.True(t, out.IsSubsequenceOf(view))
}

func TestTake_Prefix(t *testing.T) {
	b := column.NewBundle([]int64{1, 2, 3, 4, 5})
	view := column.NewRowView(b)
	out, err := takeOp{}.RunSync(context.Background(), []column.RowView{view}, map[string]any{"count": 2}, EvalEnv{})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, out.Active())
}

func TestSort_NullsLast(t *testing.T) {
	b := floatBundle([]int64{1, 2, 3}, 10, []float64{3, 0, 1}, []bool{true, false, true})
	view := column.NewRowView(b)
	out, err := sortOp{}.RunSync(context.Background(), []column.RowView{view}, map[string]any{"key": 10}, EvalEnv{})
	require.NoError(t, err)
	require.Equal(t, []int{2, 0, 1}, out.Active())
}

func TestSort_Descending(t *testing.T) {
	b := floatBundle([]int64{1, 2, 3}, 10, []float64{3, 1, 2}, []bool{true, true, true})
	view := column.NewRowView(b)
	out, err := sortOp{}.RunSync(context.Background(), []column.RowView{view}, map[string]any{"key": 10, "descending": true}, EvalEnv{})
	require.NoError(t, err)
	require.Equal(t, []int{0, 2, 1}, out.Active())
}

func TestConcat_DenseUnionOfActiveRows(t *testing.T) {
	lhs := floatBundle([]int64{1, 2}, 10, []float64{1, 2}, []bool{true, true})
	rhs := floatBundle([]int64{3, 4}, 10, []float64{3, 4}, []bool{true, true})

	out, err := concatOp{}.RunSync(context.Background(), []column.RowView{column.NewRowView(lhs), column.NewRowView(rhs)}, map[string]any{"keys": []any{10}}, EvalEnv{})
	require.NoError(t, err)
	require.Equal(t, 4, out.Bundle.N)
	require.Nil(t, out.Selection)
	require.Nil(t, out.Permutation)

	v, ok := out.Bundle.Floats[10].Get(2)
	require.True(t, ok)
	require.Equal(t, 3.0, v)
}

func TestConcat_IncompatibleSchemaFails(t *testing.T) {
	lhs := floatBundle([]int64{1}, 10, []float64{1}, []bool{true})
	rhs := column.NewBundle([]int64{2}) // no key 10 at all

	_, err := concatOp{}.RunSync(context.Background(), []column.RowView{column.NewRowView(lhs), column.NewRowView(rhs)}, map[string]any{"keys": []any{10}}, EvalEnv{})
	require.Error(t, err)
}

func TestSleep_PassesInputThroughAfterDelay(t *testing.T) {
	b := column.NewBundle([]int64{1, 2})
	view := column.NewRowView(b)

	out, err := sleepOp{}.RunAsync(context.Background(), nil, []column.RowView{view}, map[string]any{"duration_ms": 1})
	require.NoError(t, err)
	require.Equal(t, view.Bundle, out.Bundle)
}

func TestSourceFetch_BroadcastsFetchedValue(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.Set("viewer:home", "1.5")

	reg := &registry.Set{
		Endpoints: map[string]registry.EndpointDef{
			"ep_0001": {
				ID: "ep_0001", Kind: registry.EndpointRedis, Host: mr.Host(), Port: mustAtoi(t, mr.Port()),
				Policy: registry.EndpointPolicy{MaxInflight: 4, RequestTimeoutMs: 500, ConnectTimeoutMs: 500},
			},
		},
	}
	cache := ioclient.NewCache(reg)
	defer cache.Close()

	params := map[string]any{
		"endpoint": "ep_0001",
		"key":      "viewer:home",
		"fanout":   4,
		"out_key":  20,
	}
	out, err := sourceFetchOp{}.RunAsync(context.Background(), cache, nil, params)
	require.NoError(t, err)
	require.Equal(t, 4, out.Bundle.N)
	for i := 0; i < 4; i++ {
		v, ok := out.Bundle.Floats[20].Get(i)
		require.True(t, ok)
		require.Equal(t, 1.5, v)
	}
}

func TestFanoutSource_OneReadPerCandidate(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.Set("candidate:1", "10")
	mr.Set("candidate:2", "20")

	reg := &registry.Set{
		Endpoints: map[string]registry.EndpointDef{
			"ep_0001": {
				ID: "ep_0001", Kind: registry.EndpointRedis, Host: mr.Host(), Port: mustAtoi(t, mr.Port()),
				Policy: registry.EndpointPolicy{MaxInflight: 4, RequestTimeoutMs: 500, ConnectTimeoutMs: 500},
			},
		},
	}
	cache := ioclient.NewCache(reg)
	defer cache.Close()

	candidates := column.NewRowView(column.NewBundle([]int64{1, 2, 3}))
	params := map[string]any{
		"endpoint":     "ep_0001",
		"key_template": "candidate:%d",
		"out_key":      30,
	}
	out, err := fanoutSourceOp{}.RunAsync(context.Background(), cache, []column.RowView{candidates}, params)
	require.NoError(t, err)
	require.Equal(t, 3, out.Bundle.N)

	v1, ok := out.Bundle.Floats[30].Get(0)
	require.True(t, ok)
	require.Equal(t, 10.0, v1)

	v2, ok := out.Bundle.Floats[30].Get(1)
	require.True(t, ok)
	require.Equal(t, 20.0, v2)

	_, ok = out.Bundle.Floats[30].Get(2)
	require.False(t, ok)
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		require.True(t, c >= '0' && c <= '9')
		n = n*10 + int(c-'0')
	}
	return n
}
